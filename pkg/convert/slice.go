package convert

// ToFloat32Slice converts a vector supplied as interface{} (typically decoded
// from JSON, e.g. the CLI's --vector flag) to []float32. Returns nil if v is
// not one of the recognized shapes. For []interface{}, elements that fail to
// convert are skipped, so the result may be shorter than the input.
//
// Supported shapes: []float32, []float64, []interface{}.
func ToFloat32Slice(v interface{}) []float32 {
	switch val := v.(type) {
	case []float32:
		return val
	case []float64:
		result := make([]float32, len(val))
		for i, f := range val {
			result[i] = float32(f)
		}
		return result
	case []interface{}:
		result := make([]float32, 0, len(val))
		for _, item := range val {
			if f, ok := ToFloat64(item); ok {
				result = append(result, float32(f))
			}
		}
		return result
	}
	return nil
}
