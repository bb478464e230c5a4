package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// Suppress runs both stages of non-maximum suppression:
// first within each class, and then across all classes, to remove
// boxes that are the same physical object, but were classified differently.
// The returned detections do not yet have ClassName populated.
func Suppress(dets []Detection, params *SuppressionParams) []Detection {
	perClass := SuppressPerClass(dets, params)
	return SuppressAcrossClasses(perClass, params)
}

// SuppressPerClass runs greedy NMS separately on each class.
// Only detections with Confidence > DetectThreshold are considered.
// The result is ordered by class index, and within a class, by descending confidence.
func SuppressPerClass(dets []Detection, params *SuppressionParams) []Detection {
	p := params.withDefaults()

	byClass := map[int][]Detection{}
	for _, d := range dets {
		if d.Confidence > p.DetectThreshold {
			byClass[d.Class] = append(byClass[d.Class], d)
		}
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	keep := []Detection{}
	for _, c := range classes {
		keep = append(keep, greedyNMS(byClass[c], p.NmsIouThreshold)...)
	}
	return keep
}

// SuppressAcrossClasses runs greedy NMS on all detections, ignoring class.
func SuppressAcrossClasses(dets []Detection, params *SuppressionParams) []Detection {
	p := params.withDefaults()

	candidates := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence > p.DetectThreshold {
			candidates = append(candidates, d)
		}
	}
	return greedyNMS(candidates, p.DuplicateIouThreshold)
}

// Repeatedly pick the most confident remaining detection, and discard every other
// remaining detection whose IOU with it is >= minIoU.
// Equal confidences are resolved by input order (earlier wins).
func greedyNMS(input []Detection, minIoU float32) []Detection {
	if len(input) == 0 {
		return nil
	}

	order := make([]int, len(input))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return input[order[a]].Confidence > input[order[b]].Confidence
	})

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(d.Box.X, d.Box.Y, d.Box.X2(), d.Box.Y2())
	}
	fb.Finish()

	// Only needed for the zero-area special case below
	var zeroArea []int
	for i, d := range input {
		if d.Box.Area() == 0 {
			zeroArea = append(zeroArea, i)
		}
	}

	suppressed := make([]bool, len(input))
	keep := make([]Detection, 0, len(input))
	nearby := []int{}

	for _, i := range order {
		if suppressed[i] {
			continue
		}
		suppressed[i] = true
		keeper := input[i].Box
		keep = append(keep, input[i])

		// IOU >= minIoU > 0 requires overlap, so everything we need to suppress
		// is returned by the spatial search.
		nearby = fb.SearchFast(keeper.X, keeper.Y, keeper.X2(), keeper.Y2(), nearby[:0])
		for _, j := range nearby {
			if !suppressed[j] && keeper.IOU(input[j].Box) >= minIoU {
				suppressed[j] = true
			}
		}

		// Two zero-area boxes have IOU = 1, wherever they are in the image
		if keeper.Area() == 0 {
			for _, j := range zeroArea {
				suppressed[j] = true
			}
		}
	}
	return keep
}
