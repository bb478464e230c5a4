package nn

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrClassOutOfRange = errors.New("Class index is outside of the label table")
var ErrClassAlreadyNamed = errors.New("Detection already has a class name")

// Detection is an object that the neural network has found in an image.
// All fields are fixed at decode time, except for ClassName, which is
// filled in once, after final suppression (see ResolveClassNames).
type Detection struct {
	Class      int     `json:"class"`
	ClassName  string  `json:"className,omitempty"`
	ClassScore float32 `json:"classScore"` // Highest per-class probability
	Confidence float32 `json:"confidence"` // Objectness
	Box        Rect    `json:"box"`
}

// LabelTable maps class index to class name. It is never modified after loading.
type LabelTable []string

// Returns the name of the class, or ErrClassOutOfRange
func (t LabelTable) Name(class int) (string, error) {
	if class < 0 || class >= len(t) {
		return "", fmt.Errorf("%w: class %v, table has %v labels", ErrClassOutOfRange, class, len(t))
	}
	return t[class], nil
}

// Returns the index of the class, or -1 if it is not present
func (t LabelTable) Index(name string) int {
	for i, n := range t {
		if n == name {
			return i
		}
	}
	return -1
}

// ResolveClassNames returns a copy of dets with ClassName populated from labels.
// A class index outside of the table means the model and label file don't match,
// so this is a configuration error, and the whole batch is rejected.
func ResolveClassNames(dets []Detection, labels LabelTable) ([]Detection, error) {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		if d.ClassName != "" {
			return nil, fmt.Errorf("%w (%v)", ErrClassAlreadyNamed, d.ClassName)
		}
		name, err := labels.Name(d.Class)
		if err != nil {
			return nil, err
		}
		d.ClassName = name
		out[i] = d
	}
	return out, nil
}

// Load a text file with class names on each line
func LoadClassFile(filename string) (LabelTable, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	classes := LabelTable{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return classes, nil
}
