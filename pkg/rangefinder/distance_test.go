package rangefinder

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/stretchr/testify/require"
)

type memoryScaleStore struct {
	lock  sync.Mutex
	k     float32
	saves int
	fail  bool
}

func (m *memoryScaleStore) LoadScale() (float32, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.k == 0 {
		return DefaultScale, nil
	}
	return m.k, nil
}

func (m *memoryScaleStore) SaveScale(k float32) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.k = k
	m.saves++
	return nil
}

func TestReferenceSizes(t *testing.T) {
	sizes := DefaultReferenceSizes()
	box := nn.MakeRect(10, 20, 60, 220) // 50 wide, 200 high

	s, span, axis, ok := sizes.Measure("person", box)
	require.True(t, ok)
	require.Equal(t, float32(0.5), s)
	require.Equal(t, int32(50), span)
	require.Equal(t, MeasureWidth, axis)

	s, span, axis, ok = sizes.Measure("car", box)
	require.True(t, ok)
	require.Equal(t, float32(1.5), s)
	require.Equal(t, int32(200), span)
	require.Equal(t, MeasureHeight, axis)

	_, _, _, ok = sizes.Measure("dog", box)
	require.False(t, ok)

	for _, name := range []string{"person", "bottle", "traffic light", "stop sign", "chair"} {
		require.Equal(t, MeasureWidth, sizes.Axis(name), name)
	}
	for _, name := range []string{"car", "bicycle", "motorbike", "motorcycle", "bus", "train", "truck", "sports ball"} {
		require.Equal(t, MeasureHeight, sizes.Axis(name), name)
		require.True(t, sizes.Has(name), name)
	}
}

func TestLoadReferenceSizes(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sizes.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"sizes": {"person": 1.7, "dog": 0.6}, "widthMeasured": ["dog"]}`), 0644))
	sizes, err := LoadReferenceSizes(good)
	require.NoError(t, err)
	require.Equal(t, MeasureHeight, sizes.Axis("person"))
	require.Equal(t, MeasureWidth, sizes.Axis("dog"))
	s, _ := sizes.Size("person")
	require.Equal(t, float32(1.7), s)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"sizes": {"person": -1}}`), 0644))
	_, err = LoadReferenceSizes(bad)
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0644))
	_, err = LoadReferenceSizes(empty)
	require.Error(t, err)
}

func TestReferenceSizesJSON(t *testing.T) {
	sizes := DefaultReferenceSizes()
	first, err := json.Marshal(sizes)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(sizes)
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}

	j := referenceSizesJSON{}
	require.NoError(t, json.Unmarshal(first, &j))
	require.Equal(t, []string{"bottle", "chair", "person", "stop sign", "traffic light"}, j.WidthMeasured)

	classes := sizes.Classes()
	require.Len(t, classes, len(j.Sizes))
	require.Equal(t, "bicycle", classes[0])
	require.Equal(t, "truck", classes[len(classes)-1])
}

func TestDistance(t *testing.T) {
	raw, err := RawEstimate(1.7, 340)
	require.NoError(t, err)
	require.InDelta(t, 5.0, raw, 1e-5)
	d, err := DistanceFromRaw(raw, 0.35)
	require.NoError(t, err)
	require.InDelta(t, 14.2857, d, 1e-3)

	_, err = RawEstimate(1.7, 0)
	require.ErrorIs(t, err, ErrZeroSpan)
	_, err = DistanceFromRaw(raw, 0)
	require.ErrorIs(t, err, ErrInvalidScale)
	_, err = DistanceFromRaw(raw, -0.1)
	require.ErrorIs(t, err, ErrInvalidScale)
}

func TestEstimateDistance(t *testing.T) {
	sizes := DefaultReferenceSizes()
	car := nn.Detection{ClassName: "car", Confidence: 0.9, Box: nn.MakeRect(0, 0, 500, 300)}
	est, err := EstimateDistance(car, sizes, 0.35)
	require.NoError(t, err)
	require.Equal(t, int32(300), est.SpanPixels)
	require.InDelta(t, 5.0, est.RawEstimate, 1e-5)
	require.InDelta(t, 14.2857, est.Distance, 1e-3)

	flat := car
	flat.Box = nn.MakeRect(0, 100, 500, 100)
	_, err = EstimateDistance(flat, sizes, 0.35)
	require.ErrorIs(t, err, ErrZeroSpan)

	dog := car
	dog.ClassName = "dog"
	_, err = EstimateDistance(dog, sizes, 0.35)
	require.ErrorIs(t, err, ErrUnknownClass)
}

func TestCalibrationState(t *testing.T) {
	_, err := NewCalibrationState(0)
	require.ErrorIs(t, err, ErrInvalidScale)

	c, err := NewCalibrationState(DefaultScale)
	require.NoError(t, err)
	require.Equal(t, float32(0.35), c.Scale())
	require.ErrorIs(t, c.SetScale(-1), ErrInvalidScale)
	require.Equal(t, float32(0.35), c.Scale())

	store := &memoryScaleStore{}
	require.NoError(t, c.SetScale(0.42))
	require.NoError(t, c.Save(store))
	require.Equal(t, float32(0.42), store.k)

	c2, _ := NewCalibrationState(DefaultScale)
	require.NoError(t, c2.Load(store))
	require.Equal(t, float32(0.42), c2.Scale())

	store.fail = true
	require.Error(t, c.Save(store))
}
