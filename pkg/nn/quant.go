package nn

// QuantizationParams maps uint8 tensor values to real values: real = Scale * (q - ZeroPoint)
type QuantizationParams struct {
	Scale     float32 `json:"scale"`
	ZeroPoint int     `json:"zeroPoint"`
}

// Output quantization of the INT8 yolov5s 320x320 model
var DefaultOutputQuantization = QuantizationParams{
	Scale:     0.006305381190031767,
	ZeroPoint: 5,
}

// Dequantize converts a uint8 output tensor to float32, so that it can be passed to Decode
func (q QuantizationParams) Dequantize(raw []uint8) []float32 {
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = q.Scale * float32(int(v)-q.ZeroPoint)
	}
	return out
}
