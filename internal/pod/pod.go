// Package pod implements the "voxpod/1" result envelope (spec.md §6): every
// persisted value is wrapped as structural metadata (descriptor) plus a
// JSON payload and, for binary-shaped vox_types, a raw byte payload.
package pod

import (
	"context"
	"fmt"
	"math"

	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
)

const FormatVersion = "voxpod/1"

// VoxType tags the shape of an encoded value.
type VoxType string

const (
	TypeInteger   VoxType = "integer"
	TypeNumber    VoxType = "number"
	TypeString    VoxType = "string"
	TypeBoolean   VoxType = "boolean"
	TypeNull      VoxType = "null"
	TypeSequence  VoxType = "sequence"
	TypeBytes     VoxType = "bytes"
	TypeNdarray   VoxType = "ndarray"
	TypeSitkImage VoxType = "sitk_image"
)

// Descriptor is the envelope's self-describing header, echoed from the
// envelope's own vox_type/format_version for quick inspection without
// parsing payload_json.
type Descriptor struct {
	VoxType       VoxType `json:"vox_type"`
	FormatVersion string  `json:"format_version"`
	Summary       string  `json:"summary"`
	Navigation    string  `json:"navigation,omitempty"`
}

// Envelope is the full persisted unit, matching spec.md §6 field-for-field.
type Envelope struct {
	FormatVersion string         `json:"format_version"`
	VoxType       VoxType        `json:"vox_type"`
	Descriptor    Descriptor     `json:"descriptor"`
	PayloadJSON   map[string]any `json:"payload_json"`
	PayloadBin    []byte         `json:"payload_bin,omitempty"`
}

// Ndarray is the in-memory shape Encode expects for vox_type "ndarray":
// row-major data with an explicit shape and dtype tag.
type Ndarray struct {
	Shape []int
	Dtype string // "float32" | "float64" | "int32" | "int64" | "uint8"
	Data  []byte // row-major little-endian, length == prod(shape)*itemsize(dtype)
}

// SitkImage is an Ndarray plus the spatial metadata spec.md §6 requires for
// vox_type "sitk_image".
type SitkImage struct {
	Ndarray
	Spacing   []float64
	Origin    []float64
	Direction []float64
}

// itemSize returns the byte width of dtype, used to validate Ndarray.Data's
// length against its declared shape (spec.md §6: "total length MUST equal
// prod(shape)*dtype.itemsize").
func itemSize(dtype string) (int, error) {
	switch dtype {
	case "uint8":
		return 1, nil
	case "int32", "float32":
		return 4, nil
	case "int64", "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("voxlogica: unknown ndarray dtype %q", dtype)
	}
}

func prod(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Encode projects a runtime Go value into an Envelope. Sequence values are
// previewed (≤16 items) per spec.md §6: the envelope carries the length and
// the preview only, and no per-element records are written for the
// remaining elements, here or in the store.
func Encode(value any) (Envelope, error) {
	switch v := value.(type) {
	case nil:
		return Envelope{
			FormatVersion: FormatVersion,
			VoxType:       TypeNull,
			Descriptor:    Descriptor{VoxType: TypeNull, FormatVersion: FormatVersion, Summary: "null"},
			PayloadJSON:   map[string]any{"encoding": "scalar-json-v1", "value": nil},
		}, nil

	case bool:
		return scalarEnvelope(TypeBoolean, v, fmt.Sprintf("%v", v)), nil

	case string:
		return scalarEnvelope(TypeString, v, truncate(v, 64)), nil

	case int:
		return scalarEnvelope(TypeInteger, v, fmt.Sprintf("%d", v)), nil

	case int64:
		return scalarEnvelope(TypeInteger, v, fmt.Sprintf("%d", v)), nil

	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return scalarEnvelope(TypeInteger, v, fmt.Sprintf("%v", v)), nil
		}
		return scalarEnvelope(TypeNumber, v, fmt.Sprintf("%v", v)), nil

	case []byte:
		return Envelope{
			FormatVersion: FormatVersion,
			VoxType:       TypeBytes,
			Descriptor:    Descriptor{VoxType: TypeBytes, FormatVersion: FormatVersion, Summary: fmt.Sprintf("%d bytes", len(v))},
			PayloadJSON:   map[string]any{"encoding": "bytes-binary-v1", "length": len(v)},
			PayloadBin:    v,
		}, nil

	case Ndarray:
		size, err := itemSize(v.Dtype)
		if err != nil {
			return Envelope{}, err
		}
		if len(v.Data) != prod(v.Shape)*size {
			return Envelope{}, fmt.Errorf("voxlogica: ndarray payload length %d does not match shape %v dtype %s", len(v.Data), v.Shape, v.Dtype)
		}
		return Envelope{
			FormatVersion: FormatVersion,
			VoxType:       TypeNdarray,
			Descriptor:    Descriptor{VoxType: TypeNdarray, FormatVersion: FormatVersion, Summary: fmt.Sprintf("ndarray%v %s", v.Shape, v.Dtype)},
			PayloadJSON:   map[string]any{"encoding": "ndarray-binary-v1", "shape": intsToAny(v.Shape), "dtype": v.Dtype},
			PayloadBin:    v.Data,
		}, nil

	case SitkImage:
		env, err := Encode(v.Ndarray)
		if err != nil {
			return Envelope{}, err
		}
		env.VoxType = TypeSitkImage
		env.Descriptor.VoxType = TypeSitkImage
		env.PayloadJSON["spacing"] = v.Spacing
		env.PayloadJSON["origin"] = v.Origin
		env.PayloadJSON["direction"] = v.Direction
		return env, nil

	case lazyseq.LazySequence:
		return encodeSequence(v)

	case []any:
		return encodeSequence(lazyseq.FromSlice(v))

	default:
		return Envelope{}, fmt.Errorf("voxlogica: no voxpod/1 encoding for value of type %T", value)
	}
}

func scalarEnvelope(t VoxType, value any, summary string) Envelope {
	return Envelope{
		FormatVersion: FormatVersion,
		VoxType:       t,
		Descriptor:    Descriptor{VoxType: t, FormatVersion: FormatVersion, Summary: summary},
		PayloadJSON:   map[string]any{"encoding": "scalar-json-v1", "value": value},
	}
}

func encodeSequence(seq lazyseq.LazySequence) (Envelope, error) {
	preview, err := seq.Take(context.Background(), 16)
	if err != nil {
		return Envelope{}, err
	}
	length := seq.CountLowerBound()
	return Envelope{
		FormatVersion: FormatVersion,
		VoxType:       TypeSequence,
		Descriptor:    Descriptor{VoxType: TypeSequence, FormatVersion: FormatVersion, Summary: fmt.Sprintf("sequence of %d items", length)},
		PayloadJSON: map[string]any{
			"encoding": "sequence-json-v1",
			"length":   length,
			"preview":  preview,
		},
	}, nil
}

func intsToAny(ints []int) []any {
	out := make([]any, len(ints))
	for i, n := range ints {
		out[i] = n
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
