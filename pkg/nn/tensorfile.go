package nn

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Float32FromLE decodes a raw little-endian float32 tensor
func Float32FromLE(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, errors.New("Tensor length must be a multiple of 4 bytes")
	}
	t := make([]float32, len(raw)/4)
	for i := range t {
		t[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return t, nil
}

// Float32ToLE encodes a tensor as raw little-endian float32
func Float32ToLE(t []float32) []byte {
	raw := make([]byte, len(t)*4)
	for i, v := range t {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return raw
}

// A tensor that was read from disk. Exactly one of Float and Quantized is populated.
type TensorFile struct {
	Float     []float32
	Quantized []uint8
}

// LoadTensorFile reads a dumped model output.
// The format is chosen by extension:
//
//	.f32   raw little-endian float32
//	.u8    raw uint8 (quantized)
//	.json  either [...] or {"tensor": [...]}
func LoadTensorFile(filename string) (*TensorFile, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".f32", ".bin":
		t, err := Float32FromLE(raw)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		return &TensorFile{Float: t}, nil
	case ".u8":
		return &TensorFile{Quantized: raw}, nil
	case ".json":
		var t []float32
		// encoding/json rejects a UTF-8 BOM
		raw = bytes.TrimSpace(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
		if len(raw) != 0 && raw[0] == '[' {
			err = json.Unmarshal(raw, &t)
		} else {
			wrapped := struct {
				Tensor []float32 `json:"tensor"`
			}{}
			err = json.Unmarshal(raw, &wrapped)
			t = wrapped.Tensor
		}
		if err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
		return &TensorFile{Float: t}, nil
	}
	return nil, fmt.Errorf("Unknown tensor file type '%v'. Must be .f32, .u8, or .json", filepath.Ext(filename))
}
