package rangefinder

import (
	"sync"
	"time"

	"github.com/cyclopcam/rangefinder/pkg/perfstats"
)

// Stats records the time spent in each stage of the pipeline, and how often
// a frame produced a distance.
type Stats struct {
	lock               sync.Mutex
	decode             perfstats.TimeAccumulator
	suppress           perfstats.TimeAccumulator
	selectAndMeasure   perfstats.TimeAccumulator
	frames             int64
	framesWithObject   int64
	framesWithDistance int64
	distance           perfstats.Accumulator
}

type StatsSnapshot struct {
	Decode             perfstats.TimeSummary `json:"decode"`
	Suppress           perfstats.TimeSummary `json:"suppress"`
	Select             perfstats.TimeSummary `json:"select"`
	Frames             int64                 `json:"frames"`
	FramesWithObject   int64                 `json:"framesWithObject"`
	FramesWithDistance int64                 `json:"framesWithDistance"`
	AverageDistance    float64               `json:"averageDistance"` // Meters, over frames that produced a distance
}

func (s *Stats) add(decode, suppress, selectAndMeasure time.Duration, r *FrameResult) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.decode.AddSample(decode)
	s.suppress.AddSample(suppress)
	s.selectAndMeasure.AddSample(selectAndMeasure)
	s.frames++
	if r.Nearest != nil {
		s.framesWithObject++
	}
	if r.Estimate != nil {
		s.framesWithDistance++
		s.distance.AddSample(float64(r.Estimate.Distance))
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return StatsSnapshot{
		Decode:             s.decode.Summary(),
		Suppress:           s.suppress.Summary(),
		Select:             s.selectAndMeasure.Summary(),
		Frames:             s.frames,
		FramesWithObject:   s.framesWithObject,
		FramesWithDistance: s.framesWithDistance,
		AverageDistance:    s.distance.Average(),
	}
}

func (s *Stats) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.decode.Reset()
	s.suppress.Reset()
	s.selectAndMeasure.Reset()
	s.frames = 0
	s.framesWithObject = 0
	s.framesWithDistance = 0
	s.distance.Reset()
}
