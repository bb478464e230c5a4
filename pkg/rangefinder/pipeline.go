package rangefinder

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/nn"
)

// Reasons why a frame did not produce a distance. These are normal outcomes, not errors.
const (
	NoDistanceNoObject = "no object selected"
	NoDistanceZeroSpan = "object spans zero pixels"
	NoDistanceNoSize   = "no reference size"
	NoDistanceBadScale = "invalid scale constant"
)

// FrameResult is everything the presentation layer needs to draw one frame
type FrameResult struct {
	Width            int            `json:"width"`  // Width of the image that the model was run on
	Height           int            `json:"height"` // Height of the image that the model was run on
	Detections       []nn.Detection `json:"detections"`
	Nearest          *Nearest       `json:"nearest,omitempty"`
	Estimate         *Estimate      `json:"estimate,omitempty"`
	NoDistanceReason string         `json:"noDistanceReason,omitempty"`
	Scale            float32        `json:"scale"`
}

type PipelineConfig struct {
	Model               *nn.ModelConfig
	Suppression         nn.SuppressionParams
	MinSelectConfidence float32 // Zero means DefaultMinSelectConfidence
}

// Pipeline runs decode, suppression, nearest object selection, and distance
// estimation on one tensor at a time. It is safe to call from multiple goroutines.
type Pipeline struct {
	Stats Stats

	log                 logs.Log
	model               *nn.ModelConfig
	shape               nn.TensorShape
	params              nn.SuppressionParams
	minSelectConfidence float32
	sizes               *ReferenceSizes
	calib               *CalibrationState
}

func NewPipeline(log logs.Log, cfg PipelineConfig, sizes *ReferenceSizes, calib *CalibrationState) (*Pipeline, error) {
	if cfg.Model == nil {
		return nil, errors.New("Pipeline needs a model config")
	}
	if err := cfg.Model.Validate(); err != nil {
		return nil, err
	}
	if sizes == nil || calib == nil {
		return nil, errors.New("Pipeline needs reference sizes and a calibration state")
	}
	minConf := cfg.MinSelectConfidence
	if minConf == 0 {
		minConf = DefaultMinSelectConfidence
	}

	// A class in the size table that the model can't produce is harmless, but probably a typo
	for _, name := range sizes.Classes() {
		if cfg.Model.Classes.Index(name) == -1 {
			log.Debugf("Reference size for '%v' is unused, because the model has no such class", name)
		}
	}

	return &Pipeline{
		log:                 log,
		model:               cfg.Model,
		shape:               cfg.Model.TensorShape(),
		params:              cfg.Suppression,
		minSelectConfidence: minConf,
		sizes:               sizes,
		calib:               calib,
	}, nil
}

func (p *Pipeline) Model() *nn.ModelConfig {
	return p.model
}

func (p *Pipeline) ReferenceSizes() *ReferenceSizes {
	return p.sizes
}

func (p *Pipeline) Calibration() *CalibrationState {
	return p.calib
}

func (p *Pipeline) SuppressionParams() nn.SuppressionParams {
	return p.params
}

func (p *Pipeline) MinSelectConfidence() float32 {
	return p.minSelectConfidence
}

// ProcessQuantized dequantizes a uint8 output tensor and then runs Process
func (p *Pipeline) ProcessQuantized(raw []uint8, imgWidth, imgHeight int) (*FrameResult, error) {
	q := nn.DefaultOutputQuantization
	if p.model.Quantization != nil {
		q = *p.model.Quantization
	}
	return p.Process(q.Dequantize(raw), imgWidth, imgHeight)
}

// Process runs the whole pipeline on one output tensor.
// imgWidth and imgHeight are the dimensions of the image that the model was run on.
// If they are zero, the model's input size is used.
// An error is returned only for problems that will recur on every frame, such as a
// tensor of the wrong size, or a model that doesn't match its label table.
func (p *Pipeline) Process(tensor []float32, imgWidth, imgHeight int) (*FrameResult, error) {
	if imgWidth == 0 && imgHeight == 0 {
		imgWidth = p.model.Width
		imgHeight = p.model.Height
	}
	if imgWidth <= 0 || imgHeight <= 0 {
		return nil, fmt.Errorf("Invalid image size %v x %v", imgWidth, imgHeight)
	}

	start := time.Now()
	candidates, err := nn.Decode(tensor, p.shape, imgWidth, imgHeight)
	if err != nil {
		return nil, err
	}
	decodeDone := time.Now()

	kept := nn.Suppress(candidates, &p.params)
	named, err := nn.ResolveClassNames(kept, p.model.Classes)
	if err != nil {
		return nil, err
	}
	suppressDone := time.Now()

	k := p.calib.Scale()
	result := &FrameResult{
		Width:      imgWidth,
		Height:     imgHeight,
		Detections: named,
		Scale:      k,
	}
	if nearest, ok := SelectNearest(named, p.sizes, imgWidth, imgHeight, p.minSelectConfidence); ok {
		result.Nearest = &nearest
		est, err := EstimateDistance(nearest.Detection, p.sizes, k)
		if err == nil {
			result.Estimate = &est
		} else {
			result.NoDistanceReason = noDistanceReason(err)
		}
	} else {
		result.NoDistanceReason = NoDistanceNoObject
	}
	selectDone := time.Now()

	p.Stats.add(decodeDone.Sub(start), suppressDone.Sub(decodeDone), selectDone.Sub(suppressDone), result)
	return result, nil
}

func noDistanceReason(err error) string {
	switch {
	case errors.Is(err, ErrZeroSpan):
		return NoDistanceZeroSpan
	case errors.Is(err, ErrUnknownClass):
		return NoDistanceNoSize
	case errors.Is(err, ErrInvalidScale):
		return NoDistanceBadScale
	}
	return err.Error()
}
