package rangefinder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/rangefinder/pkg/nn"
)

// During calibration, the user stands this many meters away from the object
const DefaultReferenceDistance = 5.0

// The scale constant is searched over (0, MaxScale] in steps of ScaleStep
const (
	ScaleStep  = 0.01
	MaxScale   = 4.0
	scaleSteps = 400
)

// A candidate k must produce a distance within this many meters of the reference
// distance before the scan will accept it
const scanTolerance = 5.0

var ErrCalibrationOutOfRange = errors.New("No scale constant in range fits the calibration")

type CalibrationMethod string

const (
	CalibrationMethodScan       CalibrationMethod = "scan"       // Linear scan over every step of k
	CalibrationMethodClosedForm CalibrationMethod = "closedForm" // k = raw / reference, clamped and rounded
)

func (m CalibrationMethod) Valid() bool {
	return m == CalibrationMethodScan || m == CalibrationMethodClosedForm
}

// CalibrateScan finds the k in {0.00, 0.01, ..., 4.00} for which raw/k is closest
// to reference. Ties go to the smallest k.
func CalibrateScan(raw, reference float32) (float32, error) {
	if !(reference > 0) || !(raw > 0) {
		return 0, fmt.Errorf("%w: raw %v, reference %v", ErrCalibrationOutOfRange, raw, reference)
	}
	best := -1
	bestDiff := float32(scanTolerance)
	// i = 0 is k = 0, which is never a valid answer, so start at 1
	for i := 1; i <= scaleSteps; i++ {
		k := float32(i) / 100
		diff := math32.Abs(raw/k - reference)
		if diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	if best == -1 {
		return 0, fmt.Errorf("%w: raw %v, reference %v", ErrCalibrationOutOfRange, raw, reference)
	}
	return float32(best) / 100, nil
}

// CalibrateClosedForm solves raw/k = reference directly, clamps k to [ScaleStep, MaxScale],
// and rounds it to the nearest ScaleStep.
func CalibrateClosedForm(raw, reference float32) (float32, error) {
	if !(reference > 0) || !(raw > 0) {
		return 0, fmt.Errorf("%w: raw %v, reference %v", ErrCalibrationOutOfRange, raw, reference)
	}
	k := raw / reference
	k = max(ScaleStep, min(MaxScale, k))
	return float32(math.Round(float64(k)*100)) / 100, nil
}

// CalibrationInput is a frozen snapshot of the calibration object, and what the user told us about it
type CalibrationInput struct {
	Detection         nn.Detection      // Object at the reference distance. ClassName must be resolved.
	ManualHeightCm    string            // Optional height of the object, as typed in by the user
	ReferenceDistance float32           // Zero means DefaultReferenceDistance
	Method            CalibrationMethod // Empty means CalibrationMethodScan
}

type CalibrationResult struct {
	ClassName   string      `json:"className"`
	Manual      bool        `json:"manual"` // True if the size came from the user instead of the reference table
	Axis        MeasureAxis `json:"axis"`
	SizeMeters  float32     `json:"sizeMeters"`
	SpanPixels  int32       `json:"spanPixels"`
	RawEstimate float32     `json:"rawEstimate"`
	Scale       float32     `json:"scale"`
}

// Parse the manual height (centimeters). Returns false if the text is not a positive number.
func ParseManualHeight(text string) (meters float32, ok bool) {
	cm, err := strconv.ParseFloat(strings.TrimSpace(text), 32)
	if err != nil || !(cm > 0) || math32.IsInf(float32(cm), 0) {
		return 0, false
	}
	return float32(cm) / 100, true
}

// Calibrate computes a new scale constant from an object at a known distance.
// If the user supplied a valid height, that is compared against the box height.
// Otherwise we fall back to the reference size table, with its width/height rule.
func Calibrate(in CalibrationInput, sizes *ReferenceSizes) (CalibrationResult, error) {
	reference := in.ReferenceDistance
	if reference == 0 {
		reference = DefaultReferenceDistance
	}
	method := in.Method
	if method == "" {
		method = CalibrationMethodScan
	}

	r := CalibrationResult{
		ClassName: in.Detection.ClassName,
	}
	if manual, ok := ParseManualHeight(in.ManualHeightCm); ok {
		r.Manual = true
		r.Axis = MeasureHeight
		r.SizeMeters = manual
		r.SpanPixels = in.Detection.Box.Height
	} else {
		size, span, axis, ok := sizes.Measure(in.Detection.ClassName, in.Detection.Box)
		if !ok {
			return CalibrationResult{}, fmt.Errorf("%w '%v'", ErrUnknownClass, in.Detection.ClassName)
		}
		r.Axis = axis
		r.SizeMeters = size
		r.SpanPixels = span
	}

	raw, err := RawEstimate(r.SizeMeters, r.SpanPixels)
	if err != nil {
		return CalibrationResult{}, err
	}
	r.RawEstimate = raw

	switch method {
	case CalibrationMethodScan:
		r.Scale, err = CalibrateScan(raw, reference)
	case CalibrationMethodClosedForm:
		r.Scale, err = CalibrateClosedForm(raw, reference)
	default:
		err = fmt.Errorf("Unknown calibration method '%v'", method)
	}
	if err != nil {
		return CalibrationResult{}, err
	}
	return r, nil
}
