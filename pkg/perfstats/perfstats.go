// Package perfstats accumulates simple counters and timings, so that we can
// see how long each stage of frame processing takes on a given machine.
package perfstats

import "time"

// Accumulator sums float samples, so that we can report a running average
type Accumulator struct {
	Samples int64
	Total   float64
}

func (a *Accumulator) Reset() {
	a.Samples = 0
	a.Total = 0
}

func (a *Accumulator) AddSample(v float64) {
	a.Samples++
	a.Total += v
}

func (a *Accumulator) Average() float64 {
	if a.Samples == 0 {
		return 0
	}
	return a.Total / float64(a.Samples)
}

// TimeAccumulator records how long something took, over many runs
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.Samples = 0
	a.Total = 0
	a.Max = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Summary of a TimeAccumulator, in milliseconds
type TimeSummary struct {
	Samples   int64   `json:"samples"`
	AverageMS float64 `json:"averageMS"`
	MaxMS     float64 `json:"maxMS"`
}

func (a *TimeAccumulator) Summary() TimeSummary {
	return TimeSummary{
		Samples:   a.Samples,
		AverageMS: float64(a.Average().Nanoseconds()) / 1e6,
		MaxMS:     float64(a.Max.Nanoseconds()) / 1e6,
	}
}
