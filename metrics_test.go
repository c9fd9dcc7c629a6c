package sage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPSquareEstimatorConvergesOnUniformSamples(t *testing.T) {
	ps := newPSquareEstimator(0.5)
	for i := 1; i <= 1000; i++ {
		ps.Update(float64(i))
	}
	median := ps.Quantile()
	require.InDelta(t, 500, median, 25)
	require.Equal(t, 1000, ps.Count())
}

func TestPSquareEstimatorHandlesFewerThanFiveSamples(t *testing.T) {
	ps := newPSquareEstimator(0.5)
	ps.Update(3)
	ps.Update(1)
	ps.Update(2)
	require.Equal(t, float64(2), ps.Quantile())
}

func TestPacingJitterTracksAbsoluteError(t *testing.T) {
	j := newPacingJitter()
	j.update(-0.5)
	j.update(0.1)
	j.update(2.0)
	stats := j.stats()
	require.Equal(t, 3, stats.Count)
	require.Equal(t, 2.0, stats.Max)
	require.False(t, math.IsNaN(stats.P50))
}
