package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/patchwatch/patchwatch/pkg/shared/config"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

// Gateway is the protective shell around every outbound call. It holds one
// breaker and one rate limiter per external dependency key and carries no
// business logic.
type Gateway struct {
	logger   hclog.Logger
	defaults config.Service

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// New builds a gateway from the per-service configuration. Services without
// an explicit entry get the defaults on first use.
func New(services map[string]config.Service, logger hclog.Logger) *Gateway {
	g := &Gateway{
		logger:   logger,
		defaults: config.DefaultService(),
		entries:  make(map[string]*entry),
	}
	for name, svc := range services {
		g.entries[name] = g.newEntry(name, svc)
	}
	return g
}

func (g *Gateway) newEntry(name string, svc config.Service) *entry {
	if svc.RatePerSecond == 0 {
		svc.RatePerSecond = g.defaults.RatePerSecond
	}
	if svc.Burst == 0 {
		svc.Burst = g.defaults.Burst
	}
	if svc.FailureThreshold == 0 {
		svc.FailureThreshold = g.defaults.FailureThreshold
	}
	if svc.Cooldown == 0 {
		svc.Cooldown = g.defaults.Cooldown
	}
	if svc.CallTimeout == 0 {
		svc.CallTimeout = g.defaults.CallTimeout
	}

	threshold := svc.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: svc.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("breaker state change", "service", name, "from", from.String(), "to", to.String())
		},
	})

	return &entry{
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(svc.RatePerSecond), svc.Burst),
		timeout: svc.CallTimeout,
	}
}

func (g *Gateway) entryFor(service string) *entry {
	g.mu.RLock()
	e, ok := g.entries[service]
	g.mu.RUnlock()
	if ok {
		return e
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok = g.entries[service]; ok {
		return e
	}
	e = g.newEntry(service, g.defaults)
	g.entries[service] = e
	return e
}

// Invoke executes op against the named external dependency under its breaker,
// rate limiter, and per-call deadline, and returns a classified error.
//
// Rate-limit rejections (ErrRateLimited) are distinguishable from breaker
// rejections (ErrServiceUnavailable) so callers can retry with backoff versus
// defer entirely.
func (g *Gateway) Invoke(ctx context.Context, service string, op func(context.Context) error) error {
	e := g.entryFor(service)

	if !e.limiter.Allow() {
		g.logger.Debug("rate limiter rejected call", "service", service)
		return errors.ErrRateLimited
	}

	_, err := e.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return nil, op(callCtx)
	})

	return classify(service, err)
}

// Call executes op through the gateway and returns its typed result.
func Call[T any](ctx context.Context, g *Gateway, service string, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := g.Invoke(ctx, service, func(callCtx context.Context) error {
		var opErr error
		result, opErr = op(callCtx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func classify(service string, err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.ErrServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout
	case stderrors.Is(err, context.Canceled):
		return err
	case errors.IsAnalysisFailure(err):
		// An analysis stage that answered but could not produce a result is
		// not a transport failure; pass it through unclassified.
		return err
	default:
		return errors.NewUpstreamError(service, err)
	}
}
