package logging

import (
	"strings"
	"sync"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when stages or percentage buckets change. State is tracked per key so one
// sampler can serve every item in a queue.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	states     map[string]*sampleState
}

type sampleState struct {
	stage  string
	bucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the stage changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, states: make(map[string]*sampleState)}
}

// ShouldLog reports whether a progress event for key should be logged.
// Percent can be negative to indicate "unknown".
func (s *ProgressSampler) ShouldLog(key string, percent float64, stage string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok {
		state = &sampleState{bucket: -1}
		s.states[key] = state
	}
	stage = strings.TrimSpace(stage)
	emit := false
	if stage != "" && stage != state.stage {
		state.stage = stage
		state.bucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > state.bucket {
			state.bucket = bucket
			emit = true
		}
	}
	return emit
}

// Forget drops the state for key (e.g. once an item reaches a terminal state).
func (s *ProgressSampler) Forget(key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()
}
