package provider

import (
	"context"

	"golang.org/x/time/rate"

	"uniai-studio/internal/domain/ports/adapter"
	"uniai-studio/internal/infra/metrics"
)

// Compile-time check
var _ adapter.ImageGenerator = (*limitedGenerator)(nil)

type limitedGenerator struct {
	name    string
	inner   adapter.ImageGenerator
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewLimited bounds concurrent calls with a semaphore and call starts with a
// token bucket. Zero values disable the respective bound.
func NewLimited(name string, inner adapter.ImageGenerator, maxConcurrent int, perSecond float64) adapter.ImageGenerator {
	if maxConcurrent <= 0 && perSecond <= 0 {
		return inner
	}
	l := &limitedGenerator{name: name, inner: inner}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

func (l *limitedGenerator) Generate(ctx context.Context, req adapter.GenerateRequest) ([]string, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		default:
			metrics.IncThrottled(l.name)
			select {
			case l.sem <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		defer func() { <-l.sem }()
	}
	if l.limiter != nil {
		if !l.limiter.Allow() {
			metrics.IncThrottled(l.name)
			if err := l.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
	}
	return l.inner.Generate(ctx, req)
}
