package progress

import "math"

// Weights converts a (stage, stage-local percent) pair into overall percent.
// Stages are ordered; every stage before the current one counts as complete,
// so stages skipped by a fast path are credited in full.
type Weights struct {
	order  []string
	offset map[string]float64
	share  map[string]float64
}

// NewWeights builds weights for stages in pipeline order. Stages missing from
// weights contribute nothing. When all weights are zero, each stage gets an
// equal share.
func NewWeights(order []string, weights map[string]float64) Weights {
	total := 0.0
	for _, stage := range order {
		total += math.Max(weights[stage], 0)
	}
	w := Weights{
		order:  append([]string(nil), order...),
		offset: make(map[string]float64, len(order)),
		share:  make(map[string]float64, len(order)),
	}
	running := 0.0
	for _, stage := range order {
		share := 0.0
		switch {
		case total > 0:
			share = math.Max(weights[stage], 0) / total * 100
		case len(order) > 0:
			share = 100 / float64(len(order))
		}
		w.offset[stage] = running
		w.share[stage] = share
		running += share
	}
	return w
}

// Overall returns the overall percent for a stage at stagePercent. Unknown
// stages report 0.
func (w Weights) Overall(stage string, stagePercent float64) float64 {
	offset, ok := w.offset[stage]
	if !ok {
		return 0
	}
	local := math.Min(math.Max(stagePercent, 0), 100)
	return math.Min(offset+w.share[stage]*local/100, 100)
}

// Stages returns the configured stage order.
func (w Weights) Stages() []string {
	return append([]string(nil), w.order...)
}
