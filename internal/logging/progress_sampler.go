package logging

import "math"

// ProgressSampler picks which render progress updates get a log line: the
// first, the first in each new bucket, and completion. Encoder chunks arrive
// twice a second, far more often than anyone reads progress logs.
type ProgressSampler struct {
	buckets int
	last    int
}

// NewProgressSampler splits [0,1] into buckets equal steps; 10 when buckets
// is not positive.
func NewProgressSampler(buckets int) *ProgressSampler {
	if buckets <= 0 {
		buckets = 10
	}
	return &ProgressSampler{buckets: buckets, last: -1}
}

// ShouldLog takes a progress fraction. Values outside [0,1] are clamped and
// NaN is never logged. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(progress float64) bool {
	if s == nil {
		return true
	}
	if math.IsNaN(progress) {
		return false
	}
	progress = math.Max(0, math.Min(progress, 1))
	bucket := int(progress * float64(s.buckets))
	if bucket <= s.last {
		return false
	}
	s.last = bucket
	return true
}

// Reset forgets the last bucket, for a new render.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.last = -1
	}
}
