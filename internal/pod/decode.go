package pod

import "fmt"

// Decode reverses Encode for every vox_type (spec.md H6: decode(encode(v)) ==
// v up to float tolerance/array equality). For TypeSequence, Decode returns
// only the envelope's preview; elements beyond the preview are not encoded
// and are not stored as separate records, so they cannot be recovered.
func Decode(env Envelope) (any, error) {
	switch env.VoxType {
	case TypeNull:
		return nil, nil

	case TypeBoolean, TypeString, TypeInteger, TypeNumber:
		v, ok := env.PayloadJSON["value"]
		if !ok {
			return nil, fmt.Errorf("voxlogica: envelope for %s missing payload_json.value", env.VoxType)
		}
		return v, nil

	case TypeBytes:
		return env.PayloadBin, nil

	case TypeNdarray:
		shape, dtype, err := ndarrayMeta(env)
		if err != nil {
			return nil, err
		}
		return Ndarray{Shape: shape, Dtype: dtype, Data: env.PayloadBin}, nil

	case TypeSitkImage:
		shape, dtype, err := ndarrayMeta(env)
		if err != nil {
			return nil, err
		}
		spacing, _ := floatSlice(env.PayloadJSON["spacing"])
		origin, _ := floatSlice(env.PayloadJSON["origin"])
		direction, _ := floatSlice(env.PayloadJSON["direction"])
		return SitkImage{
			Ndarray:   Ndarray{Shape: shape, Dtype: dtype, Data: env.PayloadBin},
			Spacing:   spacing,
			Origin:    origin,
			Direction: direction,
		}, nil

	case TypeSequence:
		preview, _ := env.PayloadJSON["preview"].([]any)
		return preview, nil

	default:
		return nil, fmt.Errorf("voxlogica: unknown vox_type %q in envelope", env.VoxType)
	}
}

func ndarrayMeta(env Envelope) (shape []int, dtype string, err error) {
	dtype, ok := env.PayloadJSON["dtype"].(string)
	if !ok {
		return nil, "", fmt.Errorf("voxlogica: ndarray envelope missing payload_json.dtype")
	}
	rawShape, ok := env.PayloadJSON["shape"].([]any)
	if !ok {
		return nil, "", fmt.Errorf("voxlogica: ndarray envelope missing payload_json.shape")
	}
	shape = make([]int, len(rawShape))
	for i, v := range rawShape {
		n, ok := v.(int)
		if !ok {
			if f, ok := v.(float64); ok {
				n = int(f)
			} else {
				return nil, "", fmt.Errorf("voxlogica: ndarray shape element %v is not numeric", v)
			}
		}
		shape[i] = n
	}
	return shape, dtype, nil
}

func floatSlice(v any) ([]float64, bool) {
	raw, ok := v.([]float64)
	if ok {
		return raw, true
	}
	anySlice, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(anySlice))
	for i, x := range anySlice {
		f, ok := x.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
