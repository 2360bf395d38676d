// Package stats measures playback rate from buffer arrival times at the sink.
package stats

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of the expected interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20
)

// Summary describes the frames observed at the sink
type Summary struct {
	Frames       uint64        // Total frames seen over the whole session
	Bytes        uint64        // Total bytes seen over the whole session
	Window       int           // Frames used for the rate statistics below
	Duration     time.Duration // Span covered by the window
	FPSMean      float64
	FPSStdDev    float64
	FPSMin       float64
	FPSMax       float64
	JitterMean   float64 // Seconds
	JitterStdDev float64 // Seconds
	JitterMax    float64 // Seconds
	IsStable     bool
}

// Calculate computes rate statistics from frame arrival times.
//
// Stability requires FPS stddev < 15% of the mean AND mean jitter < 20% of the
// expected inter-frame interval. Frames and Bytes are left for the caller.
func Calculate(frameTimes []time.Time, duration time.Duration) Summary {
	n := len(frameTimes)
	s := Summary{Window: n, Duration: duration}

	if n == 0 || duration <= 0 {
		return s
	}

	s.FPSMean = float64(n) / duration.Seconds()

	instantaneous := make([]float64, 0, n-1)
	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, interval)
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}

	if len(instantaneous) == 0 {
		return s
	}

	s.FPSMin, s.FPSMax = instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		s.FPSMin = math.Min(s.FPSMin, fps)
		s.FPSMax = math.Max(s.FPSMax, fps)
		diff := fps - s.FPSMean
		sumSquares += diff * diff
	}
	s.FPSStdDev = math.Sqrt(sumSquares / float64(len(instantaneous)))

	expected := 1.0 / s.FPSMean

	var jitterSum float64
	jitters := make([]float64, 0, len(intervals))
	for _, interval := range intervals {
		j := math.Abs(interval - expected)
		jitters = append(jitters, j)
		jitterSum += j
		s.JitterMax = math.Max(s.JitterMax, j)
	}
	s.JitterMean = jitterSum / float64(len(jitters))

	var jitterSquares float64
	for _, j := range jitters {
		diff := j - s.JitterMean
		jitterSquares += diff * diff
	}
	s.JitterStdDev = math.Sqrt(jitterSquares / float64(len(jitters)))

	s.IsStable = s.FPSStdDev < s.FPSMean*fpsStabilityThreshold &&
		s.JitterMean < expected*jitterStabilityThreshold

	return s
}
