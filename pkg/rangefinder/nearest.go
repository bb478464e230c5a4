package rangefinder

import (
	"github.com/chewxy/math32"
	"github.com/cyclopcam/rangefinder/pkg/nn"
)

// Objects below this confidence are never chosen as the nearest object
const DefaultMinSelectConfidence = 0.6

// Nearest is the object closest to the center of the frame
type Nearest struct {
	Detection      nn.Detection `json:"detection"`
	CenterDistance float32      `json:"centerDistance"` // Pixels from the center of the box to the center of the image
}

// SelectNearest finds the detection whose box center is closest to the image center,
// considering only detections with Confidence > minConfidence, and whose class has
// a reference size. If several detections are equally close, the last one wins.
// Returns false if nothing qualifies, which is a normal outcome for an empty scene.
func SelectNearest(dets []nn.Detection, sizes *ReferenceSizes, imgWidth, imgHeight int, minConfidence float32) (Nearest, bool) {
	cx := float32(imgWidth) / 2
	cy := float32(imgHeight) / 2
	best := -1
	bestDist := float32(0)
	for i, d := range dets {
		if d.Confidence <= minConfidence || !sizes.Has(d.ClassName) {
			continue
		}
		bx, by := d.Box.CenterF()
		dx := bx - cx
		dy := by - cy
		dist := math32.Sqrt(dx*dx + dy*dy)
		if best == -1 || dist <= bestDist {
			best = i
			bestDist = dist
		}
	}
	if best == -1 {
		return Nearest{}, false
	}
	return Nearest{
		Detection:      dets[best],
		CenterDistance: bestDist,
	}, true
}
