package rangefinder

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cyclopcam/rangefinder/pkg/nn"
)

// MeasureAxis is the dimension of a bounding box that we compare against the
// known physical size of an object.
type MeasureAxis int

const (
	MeasureHeight MeasureAxis = iota
	MeasureWidth
)

func (a MeasureAxis) String() string {
	if a == MeasureWidth {
		return "width"
	}
	return "height"
}

func (a MeasureAxis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *MeasureAxis) UnmarshalText(b []byte) error {
	switch string(b) {
	case "height":
		*a = MeasureHeight
	case "width":
		*a = MeasureWidth
	default:
		return fmt.Errorf("Invalid measure axis '%v'", string(b))
	}
	return nil
}

// ReferenceSizes is the assumed real-world size (in meters) of each class that
// we can estimate distance to. For most classes this is the height of the object,
// but some classes are better described by their width (eg a person's shoulders).
// It is read-only after loading.
type ReferenceSizes struct {
	sizes         map[string]float32
	widthMeasured map[string]bool
}

// Classes that are measured horizontally
var DefaultWidthMeasured = []string{"person", "bottle", "traffic light", "stop sign", "chair"}

// Default sizes in meters
var DefaultSizes = map[string]float32{
	"person":        0.5,
	"car":           1.5,
	"bottle":        0.08,
	"bicycle":       1.0,
	"motorbike":     1.0,
	"motorcycle":    1.0, // COCO label for motorbike
	"bus":           3.5,
	"train":         5.0,
	"truck":         3.5,
	"traffic light": 0.3,
	"stop sign":     0.7,
	"sports ball":   0.24,
	"chair":         0.55,
}

func NewReferenceSizes(sizes map[string]float32, widthMeasured []string) (*ReferenceSizes, error) {
	r := &ReferenceSizes{
		sizes:         map[string]float32{},
		widthMeasured: map[string]bool{},
	}
	for name, s := range sizes {
		if !(s > 0) {
			return nil, fmt.Errorf("Reference size of '%v' must be positive, but is %v", name, s)
		}
		r.sizes[name] = s
	}
	for _, name := range widthMeasured {
		r.widthMeasured[name] = true
	}
	return r, nil
}

func DefaultReferenceSizes() *ReferenceSizes {
	r, _ := NewReferenceSizes(DefaultSizes, DefaultWidthMeasured)
	return r
}

// Returns true if we know the physical size of the class
func (r *ReferenceSizes) Has(className string) bool {
	_, ok := r.sizes[className]
	return ok
}

func (r *ReferenceSizes) Size(className string) (float32, bool) {
	s, ok := r.sizes[className]
	return s, ok
}

func (r *ReferenceSizes) Axis(className string) MeasureAxis {
	if r.widthMeasured[className] {
		return MeasureWidth
	}
	return MeasureHeight
}

// Returns the reference size of the class, and the span of the box along the
// axis that the reference size describes. ok is false if the class is unknown.
func (r *ReferenceSizes) Measure(className string, box nn.Rect) (sizeMeters float32, spanPixels int32, axis MeasureAxis, ok bool) {
	sizeMeters, ok = r.sizes[className]
	if !ok {
		return 0, 0, MeasureHeight, false
	}
	axis = r.Axis(className)
	if axis == MeasureWidth {
		spanPixels = box.Width
	} else {
		spanPixels = box.Height
	}
	return
}

// Class names, sorted
func (r *ReferenceSizes) Classes() []string {
	names := make([]string, 0, len(r.sizes))
	for name := range r.sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type referenceSizesJSON struct {
	Sizes         map[string]float32 `json:"sizes"`
	WidthMeasured []string           `json:"widthMeasured"`
}

func (r *ReferenceSizes) MarshalJSON() ([]byte, error) {
	j := referenceSizesJSON{
		Sizes:         r.sizes,
		WidthMeasured: []string{},
	}
	for name := range r.widthMeasured {
		j.WidthMeasured = append(j.WidthMeasured, name)
	}
	sort.Strings(j.WidthMeasured)
	return json.Marshal(&j)
}

// Load reference sizes from a JSON file such as
// {"sizes": {"person": 0.5, "car": 1.5}, "widthMeasured": ["person"]}
func LoadReferenceSizes(filename string) (*ReferenceSizes, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	j := referenceSizesJSON{}
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if len(j.Sizes) == 0 {
		return nil, fmt.Errorf("No sizes in %v", filename)
	}
	return NewReferenceSizes(j.Sizes, j.WidthMeasured)
}
