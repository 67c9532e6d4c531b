package usecase

import "time"

// EstimateProgress maps elapsed time onto 0..100 against the provider's
// expected ceiling. It is advisory only; the backend reports no progress.
func EstimateProgress(elapsed, maxWait time.Duration) float64 {
	if maxWait <= 0 || elapsed <= 0 {
		return 0
	}
	if elapsed >= maxWait {
		return 100
	}
	return 100 * float64(elapsed) / float64(maxWait)
}

// ProgressTracker keeps the displayed value monotonic while polling and
// holds it once polling stops.
type ProgressTracker struct {
	value  float64
	frozen bool
}

// Update recomputes the value unless frozen. It never goes backwards.
func (p *ProgressTracker) Update(elapsed, maxWait time.Duration) float64 {
	if p.frozen {
		return p.value
	}
	if v := EstimateProgress(elapsed, maxWait); v > p.value {
		p.value = v
	}
	return p.value
}

func (p *ProgressTracker) Freeze() { p.frozen = true }

// Reset starts over at zero for a new submission.
func (p *ProgressTracker) Reset() { *p = ProgressTracker{} }

func (p *ProgressTracker) Value() float64 { return p.value }

func (p *ProgressTracker) Frozen() bool { return p.frozen }
