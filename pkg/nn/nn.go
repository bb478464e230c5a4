// Package nn turns the raw output tensor of a YOLO-style object detector into a
// list of named, non-overlapping detections. Running the network itself is not
// done here. Callers hand us the tensor that their inference engine produced.
package nn

import (
	"encoding/json"
	"fmt"
	"os"
)

const DefaultDetectThreshold = 0.25
const DefaultNmsIouThreshold = 0.45
const DefaultDuplicateIouThreshold = 0.7

// SuppressionParams controls the two stages of non-maximum suppression
type SuppressionParams struct {
	DetectThreshold       float32 `json:"detectThreshold"`       // Objectness must be greater than this. Zero value will use the default.
	NmsIouThreshold       float32 `json:"nmsIouThreshold"`       // Same-class boxes with IOU >= this are merged. Zero value will use the default.
	DuplicateIouThreshold float32 `json:"duplicateIouThreshold"` // Boxes of any class with IOU >= this are merged. Zero value will use the default.
}

// Create a default SuppressionParams object
func NewSuppressionParams() *SuppressionParams {
	return &SuppressionParams{
		DetectThreshold:       DefaultDetectThreshold,
		NmsIouThreshold:       DefaultNmsIouThreshold,
		DuplicateIouThreshold: DefaultDuplicateIouThreshold,
	}
}

func (p *SuppressionParams) withDefaults() SuppressionParams {
	r := SuppressionParams{}
	if p != nil {
		r = *p
	}
	if r.DetectThreshold == 0 {
		r.DetectThreshold = DefaultDetectThreshold
	}
	if r.NmsIouThreshold == 0 {
		r.NmsIouThreshold = DefaultNmsIouThreshold
	}
	if r.DuplicateIouThreshold == 0 {
		r.DuplicateIouThreshold = DefaultDuplicateIouThreshold
	}
	return r
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string              `json:"architecture"`           // eg "yolov5s"
	Width        int                 `json:"width"`                  // eg 320
	Height       int                 `json:"height"`                 // eg 320
	Predictions  int                 `json:"predictions"`            // Number of output rows, eg 6300
	Classes      LabelTable          `json:"classes"`                // eg ["person", "bicycle", "car", ...]
	Quantization *QuantizationParams `json:"quantization,omitempty"` // Only for models with uint8 outputs
}

// Default config of the yolov5s 320x320 COCO model
func NewYOLOv5sConfig() *ModelConfig {
	return &ModelConfig{
		Architecture: "yolov5s",
		Width:        320,
		Height:       320,
		Predictions:  6300,
		Classes:      COCOClasses,
	}
}

// Shape of the output tensor
func (c *ModelConfig) TensorShape() TensorShape {
	return TensorShape{
		Predictions: c.Predictions,
		Classes:     len(c.Classes),
	}
}

func (c *ModelConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("Invalid model size %v x %v", c.Width, c.Height)
	}
	if c.Predictions <= 0 {
		return fmt.Errorf("Invalid number of predictions %v", c.Predictions)
	}
	if len(c.Classes) == 0 {
		return fmt.Errorf("Model has no classes")
	}
	return nil
}

// Load model config from a JSON file.
// If the JSON has no classes, and labelFile is not empty, then the classes are read from labelFile.
func LoadModelConfig(filename, labelFile string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if len(config.Classes) == 0 && labelFile != "" {
		config.Classes, err = LoadClassFile(labelFile)
		if err != nil {
			return nil, fmt.Errorf("Error loading labels %v: %w", labelFile, err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
