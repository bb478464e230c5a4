package rangefinder

import (
	"testing"

	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/stretchr/testify/require"
)

func named(name string, confidence float32, left, top, right, bottom int32) nn.Detection {
	return nn.Detection{
		ClassName:  name,
		Confidence: confidence,
		Box:        nn.MakeRect(left, top, right, bottom),
	}
}

func TestSelectNearest(t *testing.T) {
	sizes := DefaultReferenceSizes()

	_, ok := SelectNearest(nil, sizes, 320, 320, DefaultMinSelectConfidence)
	require.False(t, ok)

	dets := []nn.Detection{
		named("car", 0.9, 0, 0, 40, 40),          // far from center
		named("person", 0.6, 150, 150, 170, 170), // at the center, but not confident enough
		named("dog", 0.95, 150, 150, 170, 170),   // at the center, but no reference size
		named("bottle", 0.7, 170, 150, 190, 170), // 20 pixels from center
	}
	n, ok := SelectNearest(dets, sizes, 320, 320, DefaultMinSelectConfidence)
	require.True(t, ok)
	require.Equal(t, "bottle", n.Detection.ClassName)
	require.InDelta(t, 20, n.CenterDistance, 1e-5)

	// Only unqualified detections
	_, ok = SelectNearest(dets[1:3], sizes, 320, 320, DefaultMinSelectConfidence)
	require.False(t, ok)

	// Equal distance: the last one wins
	tied := []nn.Detection{
		named("car", 0.9, 100, 150, 120, 170),
		named("truck", 0.9, 200, 150, 220, 170),
	}
	n, ok = SelectNearest(tied, sizes, 320, 320, DefaultMinSelectConfidence)
	require.True(t, ok)
	require.Equal(t, "truck", n.Detection.ClassName)
}

func TestSelectNearestNonSquare(t *testing.T) {
	sizes := DefaultReferenceSizes()
	dets := []nn.Detection{
		named("car", 0.9, 90, 0, 110, 20),   // horizontally centered, 40 from center
		named("car", 0.9, 0, 40, 20, 60),    // vertically centered, 90 from center
		named("bus", 0.9, 170, 40, 190, 60), // vertically centered, 80 from center
	}
	n, ok := SelectNearest(dets, sizes, 200, 100, DefaultMinSelectConfidence)
	require.True(t, ok)
	require.Equal(t, int32(90), n.Detection.Box.X)
	require.InDelta(t, 40, n.CenterDistance, 1e-5)
}
