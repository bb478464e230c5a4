package rangefinder

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/rangefinder/pkg/nn"
)

// Scale constant used until the first calibration
const DefaultScale = 0.35

var ErrZeroSpan = errors.New("Object spans zero pixels")
var ErrInvalidScale = errors.New("Scale constant must be positive")
var ErrUnknownClass = errors.New("No reference size for class")

// ScaleStore persists the scale constant between sessions.
// LoadScale returns DefaultScale if nothing has been saved yet.
type ScaleStore interface {
	LoadScale() (float32, error)
	SaveScale(k float32) error
}

// CalibrationState holds the scale constant k, which converts a raw size-based
// estimate into meters. k is replaced atomically, so frames may be processed
// while a calibration is being saved.
type CalibrationState struct {
	bits atomic.Uint32
}

func NewCalibrationState(k float32) (*CalibrationState, error) {
	c := &CalibrationState{}
	if err := c.SetScale(k); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CalibrationState) Scale() float32 {
	return math.Float32frombits(c.bits.Load())
}

func (c *CalibrationState) SetScale(k float32) error {
	if !validScale(k) {
		return fmt.Errorf("%w: %v", ErrInvalidScale, k)
	}
	c.bits.Store(math.Float32bits(k))
	return nil
}

// Load the scale constant from the store
func (c *CalibrationState) Load(store ScaleStore) error {
	k, err := store.LoadScale()
	if err != nil {
		return fmt.Errorf("Failed to load scale constant: %w", err)
	}
	return c.SetScale(k)
}

// Save the scale constant to the store
func (c *CalibrationState) Save(store ScaleStore) error {
	if err := store.SaveScale(c.Scale()); err != nil {
		return fmt.Errorf("Failed to save scale constant: %w", err)
	}
	return nil
}

func validScale(k float32) bool {
	return k > 0 && !math32.IsInf(k, 0)
}

// RawEstimate is the un-calibrated distance: sizeMeters * 1000 / spanPixels.
// Dividing it by the scale constant gives meters.
func RawEstimate(sizeMeters float32, spanPixels int32) (float32, error) {
	if spanPixels <= 0 {
		return 0, ErrZeroSpan
	}
	return sizeMeters * 1000 / float32(spanPixels), nil
}

// Convert a raw estimate into meters
func DistanceFromRaw(raw, k float32) (float32, error) {
	if !validScale(k) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScale, k)
	}
	return raw / k, nil
}

// Estimate is the distance to a single object, along with the numbers that produced it
type Estimate struct {
	ClassName   string      `json:"className"`
	Axis        MeasureAxis `json:"axis"`
	SizeMeters  float32     `json:"sizeMeters"`
	SpanPixels  int32       `json:"spanPixels"`
	RawEstimate float32     `json:"rawEstimate"`
	Scale       float32     `json:"scale"`
	Distance    float32     `json:"distance"` // Meters
}

// EstimateDistance computes the distance to det, using the reference size of its class.
// Returns ErrUnknownClass, ErrZeroSpan, or ErrInvalidScale if no distance can be computed.
func EstimateDistance(det nn.Detection, sizes *ReferenceSizes, k float32) (Estimate, error) {
	size, span, axis, ok := sizes.Measure(det.ClassName, det.Box)
	if !ok {
		return Estimate{}, fmt.Errorf("%w '%v'", ErrUnknownClass, det.ClassName)
	}
	raw, err := RawEstimate(size, span)
	if err != nil {
		return Estimate{}, err
	}
	dist, err := DistanceFromRaw(raw, k)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		ClassName:   det.ClassName,
		Axis:        axis,
		SizeMeters:  size,
		SpanPixels:  span,
		RawEstimate: raw,
		Scale:       k,
		Distance:    dist,
	}, nil
}
