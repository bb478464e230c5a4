package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
)

type Config struct {
	Model                 string                        `json:"model"`                 // Path to model config JSON. Empty means the built-in yolov5s 320x320 COCO model.
	Labels                string                        `json:"labels"`                // Path to label file, such as coco_label.txt. Only needed if the model config has no classes.
	ReferenceSizes        string                        `json:"referenceSizes"`        // Path to reference sizes JSON. Empty means the built-in table.
	DB                    string                        `json:"db"`                    // Path to calibration database
	Listen                string                        `json:"listen"`                // HTTP listen address, eg ":8080"
	DetectThreshold       float32                       `json:"detectThreshold"`       // Minimum objectness of a detection
	NmsIouThreshold       float32                       `json:"nmsIouThreshold"`       // Same-class IOU threshold for NMS
	DuplicateIouThreshold float32                       `json:"duplicateIouThreshold"` // Cross-class IOU threshold for NMS
	MinSelectConfidence   float32                       `json:"minSelectConfidence"`   // Minimum confidence of the nearest object
	CalibrationMethod     rangefinder.CalibrationMethod `json:"calibrationMethod"`     // "scan" or "closedForm"
	ReferenceDistance     float32                       `json:"referenceDistance"`     // Meters between camera and calibration object
	FramesPerSecond       int                           `json:"framesPerSecond"`       // Rate limit of frames per client IP
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/var/lib"
	}
	return &Config{
		DB:                    filepath.Join(home, "rangefinder", "calibration.sqlite"),
		Listen:                ":8080",
		DetectThreshold:       nn.DefaultDetectThreshold,
		NmsIouThreshold:       nn.DefaultNmsIouThreshold,
		DuplicateIouThreshold: nn.DefaultDuplicateIouThreshold,
		MinSelectConfidence:   rangefinder.DefaultMinSelectConfidence,
		CalibrationMethod:     rangefinder.CalibrationMethodScan,
		ReferenceDistance:     rangefinder.DefaultReferenceDistance,
		FramesPerSecond:       30,
	}
}

// Load config from a JSON file. Fields that are missing from the file keep their default values.
// If filename is empty, the defaults are returned.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.CalibrationMethod != "" && !c.CalibrationMethod.Valid() {
		return fmt.Errorf("Unknown calibration method '%v'", c.CalibrationMethod)
	}
	for _, t := range []float32{c.DetectThreshold, c.NmsIouThreshold, c.DuplicateIouThreshold, c.MinSelectConfidence} {
		// Zero would silently fall back to the default threshold downstream
		if t <= 0 || t > 1 {
			return fmt.Errorf("Thresholds must be greater than 0 and at most 1, but found %v", t)
		}
	}
	if c.ReferenceDistance < 0 {
		return fmt.Errorf("Reference distance may not be negative (%v)", c.ReferenceDistance)
	}
	return nil
}

func (c *Config) SuppressionParams() nn.SuppressionParams {
	return nn.SuppressionParams{
		DetectThreshold:       c.DetectThreshold,
		NmsIouThreshold:       c.NmsIouThreshold,
		DuplicateIouThreshold: c.DuplicateIouThreshold,
	}
}

// Load the model config, or return the built-in model
func (c *Config) LoadModel() (*nn.ModelConfig, error) {
	if c.Model == "" {
		model := nn.NewYOLOv5sConfig()
		if c.Labels != "" {
			labels, err := nn.LoadClassFile(c.Labels)
			if err != nil {
				return nil, fmt.Errorf("Error loading labels %v: %w", c.Labels, err)
			}
			model.Classes = labels
		}
		return model, model.Validate()
	}
	return nn.LoadModelConfig(c.Model, c.Labels)
}

// Load the reference sizes, or return the built-in table
func (c *Config) LoadReferenceSizes() (*rangefinder.ReferenceSizes, error) {
	if c.ReferenceSizes == "" {
		return rangefinder.DefaultReferenceSizes(), nil
	}
	return rangefinder.LoadReferenceSizes(c.ReferenceSizes)
}
