package nn

// Rect is an axis-aligned box in pixel coordinates.
// Left is X, top is Y, right is X2(), bottom is Y2().
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// Create a rectangle from its left, top, right and bottom edges
func MakeRect(left, top, right, bottom int32) Rect {
	return Rect{
		X:      left,
		Y:      top,
		Width:  right - left,
		Height: bottom - top,
	}
}

func (r Rect) X2() int32 {
	return r.X + r.Width
}

func (r Rect) Y2() int32 {
	return r.Y + r.Height
}

func (r Rect) Area() int32 {
	return r.Width * r.Height
}

// Area of overlap between r and b. Zero if they don't overlap.
func (r Rect) IntersectionArea(b Rect) float32 {
	w := min(r.X2(), b.X2()) - max(r.X, b.X)
	h := min(r.Y2(), b.Y2()) - max(r.Y, b.Y)
	if w < 0 || h < 0 {
		return 0
	}
	return float32(w) * float32(h)
}

func (r Rect) UnionArea(b Rect) float32 {
	return float32(r.Area()) + float32(b.Area()) - r.IntersectionArea(b)
}

// Intersection over Union.
// Two zero-area boxes have no meaningful union, and are treated as identical (IOU = 1).
func (r Rect) IOU(b Rect) float32 {
	union := r.UnionArea(b)
	if union <= 0 {
		return 1
	}
	return r.IntersectionArea(b) / union
}

// Center without integer rounding
func (r Rect) CenterF() (float32, float32) {
	return float32(r.X+r.X2()) / 2, float32(r.Y+r.Y2()) / 2
}
