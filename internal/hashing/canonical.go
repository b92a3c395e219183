// Package hashing implements the canonical hasher (spec.md §4.1): mapping a
// NodeSpec to its 256-bit content identifier via RFC 8785 JSON
// Canonicalization (JCS) over a normalized payload, then SHA-256.
//
// This is the one place in the system where implementation and the original
// VoxLogicA reducer must agree bit-for-bit — independent implementations in
// different host languages are expected to reproduce the exact same NodeId
// for the same NodeSpec, which is why this package reaches for a published
// JCS encoder rather than a hand-rolled one: key ordering and number
// formatting subtleties are exactly the kind of thing that silently drifts
// between ad-hoc encoders.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/voxlogica-go/voxlogica/internal/ir"
)

// nodePayload is the canonical shape hashed for a NodeSpec, matching
// spec.md §4.1 field-for-field.
type nodePayload struct {
	Kind       ir.NodeKind   `json:"kind"`
	Operator   string        `json:"operator"`
	Args       []ir.NodeId   `json:"args"`
	Kwargs     [][2]string   `json:"kwargs"`
	Attrs      any           `json:"attrs"`
	OutputKind ir.OutputKind `json:"output_kind"`
}

// HashNode computes the NodeId of n: lower_hex(SHA256(JCS(payload(n)))).
//
// HashNode is total for any NodeSpec whose Attrs can be canonicalized (see
// Normalize); a non-canonicalizable attrs value (e.g. a channel, a function
// with no Syntax projection) is a reducer bug and surfaces as an error
// wrapping ErrNonCanonical rather than silently hashing something arbitrary.
func HashNode(n ir.NodeSpec) (ir.NodeId, error) {
	payload, err := Payload(n)
	if err != nil {
		return "", err
	}
	return hashPayload(payload)
}

// Payload builds the canonical hashing payload for n without hashing it —
// exposed so tests can assert on the normalized shape directly (H1).
func Payload(n ir.NodeSpec) (nodePayload, error) {
	kwargs := make([][2]string, len(n.Kwargs))
	for i, kw := range n.Kwargs {
		kwargs[i] = [2]string{kw.Key, kw.Value}
	}
	sort.Slice(kwargs, func(i, j int) bool { return kwargs[i][0] < kwargs[j][0] })

	attrs, err := Normalize(n.Attrs)
	if err != nil {
		return nodePayload{}, err
	}

	args := n.Args
	if args == nil {
		args = []ir.NodeId{}
	}

	return nodePayload{
		Kind:       n.Kind,
		Operator:   n.Operator,
		Args:       args,
		Kwargs:     kwargs,
		Attrs:      attrs,
		OutputKind: n.OutputKind,
	}, nil
}

func hashPayload(payload any) (ir.NodeId, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("voxlogica: marshal canonical payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("voxlogica: %w: %v", ErrNonCanonical, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashSequenceItem mints the synthetic NodeId for element index of the
// sequence produced by parentID, without altering the parent node. This lets
// per-element results be cached and addressed independently of how many
// elements the parent's producer ultimately yields.
func HashSequenceItem(parentID ir.NodeId, index int) (ir.NodeId, error) {
	return hashPayload(struct {
		Kind     string `json:"kind"`
		ParentID string `json:"parent_node_id"`
		Index    int    `json:"index"`
	}{
		Kind:     "sequence-item-ref",
		ParentID: parentID,
		Index:    index,
	})
}

// ErrNonCanonical is wrapped by HashNode/Normalize when an attrs value
// cannot be reduced to a JCS-encodable form.
var ErrNonCanonical = fmt.Errorf("attrs value is not canonicalizable")

// Normalize recursively projects an attrs value into a form made only of
// JSON scalars, []any and map[string]any — the form JCS can canonicalize.
//
//   - a value implementing ir.Syntax uses its Syntax() projection;
//   - a map is rewritten with string-coerced, sorted keys;
//   - a slice/array is mapped element-wise;
//   - any other JSON-marshalable scalar passes through unchanged.
//
// Struct values are rejected: the reducer converts them to map[string]any
// before they reach the hasher. Normalize does not use reflection over
// struct fields so that hashing stays
// a pure function of the declared payload, never of Go's runtime field
// ordering.
func Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case ir.Syntax:
		return Normalize(v.Syntax())
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(v))
		for _, k := range keys {
			nv, err := Normalize(v[k])
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			nv, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			items := make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
			return Normalize(items)
		case reflect.Map:
			m := make(map[string]any, rv.Len())
			for _, k := range rv.MapKeys() {
				m[fmt.Sprint(k.Interface())] = rv.MapIndex(k).Interface()
			}
			return Normalize(m)
		}
		// Reject anything else (channels, funcs, unexported-field structs,
		// pointers to runtime objects) rather than let encoding/json produce
		// a payload whose shape depends on Go-specific reflection rules.
		return nil, fmt.Errorf("%w: %T", ErrNonCanonical, value)
	}
}
