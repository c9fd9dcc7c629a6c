package sage

import "math"

// pSquareEstimator implements the P² algorithm for streaming quantile
// estimation in O(1) time and space per observation, avoiding the need to
// retain the full sample history. Used by ExecController to track pacing
// jitter (how far each nap's actual wall-sleep misses its target).
//
// Reference: Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for
// Dynamic Calculation of Quantiles and Histograms Without Storing
// Observations". Communications of the ACM, 28(10), pp. 1076-1085.
//
// Not safe for concurrent use; callers serialize access (ExecController
// updates it only from its nap events, which run on the executive's
// dispatch goroutine).
type pSquareEstimator struct {
	p  float64
	q  [5]float64
	n  [5]int
	np [5]float64
	dn [5]float64

	count      int
	initBuffer [5]float64
}

func newPSquareEstimator(p float64) *pSquareEstimator {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &pSquareEstimator{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

func (ps *pSquareEstimator) Update(x float64) {
	ps.count++
	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
		k = 0
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := ps.parabolic(i, sign)
			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

func (ps *pSquareEstimator) initialize() {
	for i := 1; i < 5; i++ {
		key := ps.initBuffer[i]
		j := i - 1
		for j >= 0 && ps.initBuffer[j] > key {
			ps.initBuffer[j+1] = ps.initBuffer[j]
			j--
		}
		ps.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		ps.q[i] = ps.initBuffer[i]
		ps.n[i] = i
	}
	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
}

func (ps *pSquareEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(ps.n[i]), float64(ps.n[i-1]), float64(ps.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)
	return ps.q[i] + term1*(term2+term3)
}

func (ps *pSquareEstimator) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

// Quantile returns the current estimate.
func (ps *pSquareEstimator) Quantile() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		sorted := append([]float64(nil), ps.initBuffer[:ps.count]...)
		for i := 1; i < len(sorted); i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		idx := int(float64(ps.count-1) * ps.p)
		if idx >= ps.count {
			idx = ps.count - 1
		}
		return sorted[idx]
	}
	return ps.q[2]
}

// Count returns the number of observations fed in.
func (ps *pSquareEstimator) Count() int { return ps.count }

// PacingStats reports ExecController jitter quantiles, in real seconds.
type PacingStats struct {
	P50, P99, Max float64
	Count         int
}

// pacingJitter tracks the P50/P99/max of |actual_nap - target_nap| across
// an ExecController's run.
type pacingJitter struct {
	p50 *pSquareEstimator
	p99 *pSquareEstimator
	max float64
}

func newPacingJitter() *pacingJitter {
	return &pacingJitter{p50: newPSquareEstimator(0.5), p99: newPSquareEstimator(0.99), max: -math.MaxFloat64}
}

func (j *pacingJitter) update(errSeconds float64) {
	if errSeconds < 0 {
		errSeconds = -errSeconds
	}
	j.p50.Update(errSeconds)
	j.p99.Update(errSeconds)
	if errSeconds > j.max {
		j.max = errSeconds
	}
}

func (j *pacingJitter) stats() PacingStats {
	max := j.max
	if max < 0 {
		max = 0
	}
	return PacingStats{P50: j.p50.Quantile(), P99: j.p99.Quantile(), Max: max, Count: j.p50.Count()}
}
