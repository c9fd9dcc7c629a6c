package sage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveExecutiveOptionsDefaults(t *testing.T) {
	cfg := resolveExecutiveOptions(nil)
	require.Equal(t, CausalityClamp, cfg.causality)
	require.Equal(t, ExecutiveFull, cfg.kind)
	require.Equal(t, 1, cfg.minWorkerThreads)
	require.Equal(t, 4, cfg.maxWorkerThreads)
	require.IsType(t, &NoOpLogger{}, cfg.logger)
}

func TestResolveExecutiveOptionsOverrides(t *testing.T) {
	logger := NewDefaultLogger(LevelError)
	cfg := resolveExecutiveOptions([]ExecutiveOption{
		WithCausalityPolicy(CausalityRaise),
		WithExecutiveKind(ExecutiveLightWithRollback),
		WithWorkerThreads(2, 8),
		WithLogger(logger),
		nil,
	})
	require.Equal(t, CausalityRaise, cfg.causality)
	require.Equal(t, ExecutiveLightWithRollback, cfg.kind)
	require.Equal(t, 2, cfg.minWorkerThreads)
	require.Equal(t, 8, cfg.maxWorkerThreads)
	require.Same(t, logger, cfg.logger)
}

func TestResolveManagerOptionsDefaults(t *testing.T) {
	cfg := resolveManagerOptions(nil)
	require.False(t, cfg.priorityWaiters)
	require.IsType(t, &NoOpLogger{}, cfg.logger)

	cfg = resolveManagerOptions([]ManagerOption{WithPriorityWaiters(true)})
	require.True(t, cfg.priorityWaiters)
}

func TestResolveControllerOptionsDefaultsToUnbounded(t *testing.T) {
	cfg, err := resolveControllerOptions(nil)
	require.NoError(t, err)
	require.True(t, cfg.unbounded)
	require.Equal(t, 0, cfg.frameRate)
}

func TestResolveControllerOptionsValidatesFrameRate(t *testing.T) {
	_, err := resolveControllerOptions([]ControllerOption{WithFrameRate(-1)})
	require.Error(t, err)

	_, err = resolveControllerOptions([]ControllerOption{WithFrameRate(26)})
	require.Error(t, err)

	cfg, err := resolveControllerOptions([]ControllerOption{WithFrameRate(25), WithScale(2)})
	require.NoError(t, err)
	require.Equal(t, 25, cfg.frameRate)
	require.False(t, cfg.unbounded)
	require.Equal(t, 2.0, cfg.log10Scale)
}
