package nn

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var ErrTensorSize = errors.New("Tensor size does not match model output shape")

// TensorShape is the shape of a YOLOv5 output tensor, [1, Predictions, 5 + Classes].
// Each row is x, y, w, h, objectness, followed by one score per class.
type TensorShape struct {
	Predictions int
	Classes     int
}

func (s TensorShape) Stride() int {
	return 5 + s.Classes
}

func (s TensorShape) Len() int {
	return s.Predictions * s.Stride()
}

// Decode turns a flat YOLOv5 output tensor into one Detection per row.
// Box coordinates in the tensor are fractions of the image that the model was run on,
// so imgWidth and imgHeight must be the dimensions of that (resized) image.
// No thresholding is done here. Every row becomes a Detection.
func Decode(tensor []float32, shape TensorShape, imgWidth, imgHeight int) ([]Detection, error) {
	if shape.Predictions <= 0 || shape.Classes <= 0 {
		return nil, fmt.Errorf("%w: invalid shape %v x %v", ErrTensorSize, shape.Predictions, shape.Stride())
	}
	if len(tensor) != shape.Len() {
		return nil, fmt.Errorf("%w: got %v values, expected %v x %v = %v", ErrTensorSize, len(tensor), shape.Predictions, shape.Stride(), shape.Len())
	}

	fw := float32(imgWidth)
	fh := float32(imgHeight)
	stride := shape.Stride()
	dets := make([]Detection, shape.Predictions)

	for i := 0; i < shape.Predictions; i++ {
		row := tensor[i*stride : (i+1)*stride]
		x := finite(row[0] * fw)
		y := finite(row[1] * fh)
		w := finite(row[2] * fw)
		h := finite(row[3] * fh)
		xmin := clampEdge(max(0, x-w/2), fw)
		ymin := clampEdge(max(0, y-h/2), fh)
		xmax := max(xmin, min(fw, x+w/2))
		ymax := max(ymin, min(fh, y+h/2))

		// Strict > means the first of several equal maxima wins.
		// An all-zero row yields class 0 with score 0.
		bestClass := 0
		bestScore := float32(0)
		for c, score := range row[5:] {
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}

		dets[i] = Detection{
			Class:      bestClass,
			ClassScore: bestScore,
			Confidence: row[4],
			Box:        MakeRect(int32(xmin), int32(ymin), int32(xmax), int32(ymax)),
		}
	}
	return dets, nil
}

// NaN and Inf become zero. NaN would otherwise survive min/max, and become MinInt32 in the box.
func finite(v float32) float32 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	return v
}

// Keep the left/top edge inside the image, so that right >= left survives the
// upper clamp.
func clampEdge(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	return v
}
