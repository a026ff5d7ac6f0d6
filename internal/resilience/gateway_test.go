package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

func testGateway(services map[string]config.Service) *Gateway {
	return New(services, hclog.NewNullLogger())
}

func TestInvokeSuccess(t *testing.T) {
	g := testGateway(nil)

	result, err := Call(context.Background(), g, "github", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"github": {
			FailureThreshold: 3,
			Cooldown:         time.Minute,
			RatePerSecond:    1000,
			Burst:            1000,
		},
	})

	attempts := 0
	fail := func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("boom")
	}

	for i := 0; i < 3; i++ {
		err := g.Invoke(context.Background(), "github", fail)
		require.Error(t, err)
		var ue *errors.UpstreamError
		require.ErrorAs(t, err, &ue)
	}
	assert.Equal(t, 3, attempts)

	// The breaker is now open: the operation must not be attempted.
	err := g.Invoke(context.Background(), "github", fail)
	assert.ErrorIs(t, err, errors.ErrServiceUnavailable)
	assert.Equal(t, 3, attempts, "open breaker must fail fast without calling the operation")
}

func TestBreakerHalfOpenProbeRecovers(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"github": {
			FailureThreshold: 2,
			Cooldown:         50 * time.Millisecond,
			RatePerSecond:    1000,
			Burst:            1000,
		},
	})

	fail := func(ctx context.Context) error { return fmt.Errorf("boom") }
	for i := 0; i < 2; i++ {
		_ = g.Invoke(context.Background(), "github", fail)
	}
	require.ErrorIs(t, g.Invoke(context.Background(), "github", fail), errors.ErrServiceUnavailable)

	time.Sleep(60 * time.Millisecond)

	// After the cooldown a probe is allowed; success closes the breaker again.
	err := g.Invoke(context.Background(), "github", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	err = g.Invoke(context.Background(), "github", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRateLimitDistinctFromBreaker(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"algora": {
			RatePerSecond:    1,
			Burst:            1,
			FailureThreshold: 100,
		},
	})

	require.NoError(t, g.Invoke(context.Background(), "algora", func(ctx context.Context) error { return nil }))

	// The bucket is drained; the next call is a rate-limit rejection, not a
	// breaker rejection.
	err := g.Invoke(context.Background(), "algora", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.NotErrorIs(t, err, errors.ErrServiceUnavailable)
}

func TestPerCallDeadline(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"slow": {
			CallTimeout:      20 * time.Millisecond,
			RatePerSecond:    1000,
			Burst:            1000,
			FailureThreshold: 100,
		},
	})

	err := g.Invoke(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.ErrorIs(t, err, errors.ErrTimeout)
}

func TestAnalysisFailurePassesThroughUnclassified(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"inference": {RatePerSecond: 1000, Burst: 1000, FailureThreshold: 100},
	})

	failure := errors.NewAnalysisFailure("presence", fmt.Errorf("malformed response"))
	err := g.Invoke(context.Background(), "inference", func(ctx context.Context) error { return failure })
	require.Error(t, err)
	assert.True(t, errors.IsAnalysisFailure(err))
	var ue *errors.UpstreamError
	assert.False(t, stderrors.As(err, &ue), "analysis failures must not be wrapped as upstream errors")
}

func TestServicesAreIsolated(t *testing.T) {
	g := testGateway(map[string]config.Service{
		"github": {FailureThreshold: 1, Cooldown: time.Minute, RatePerSecond: 1000, Burst: 1000},
		"polar":  {FailureThreshold: 5, Cooldown: time.Minute, RatePerSecond: 1000, Burst: 1000},
	})

	_ = g.Invoke(context.Background(), "github", func(ctx context.Context) error { return fmt.Errorf("boom") })
	require.ErrorIs(t, g.Invoke(context.Background(), "github", func(ctx context.Context) error { return nil }), errors.ErrServiceUnavailable)

	// The polar breaker is untouched by github failures.
	assert.NoError(t, g.Invoke(context.Background(), "polar", func(ctx context.Context) error { return nil }))
}
