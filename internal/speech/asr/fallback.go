package asr

import (
	"context"
	"fmt"

	"github.com/augmentos-org/cloud-core/internal/resilience"
)

// FallbackProvider wraps a primary Provider and zero or more fallbacks behind
// a [resilience.FallbackGroup], so that a recognizer outage on the primary
// (e.g. Deepgram returning 5xx, or its circuit breaker tripping) falls
// through to the next configured provider instead of failing StartStream
// outright.
type FallbackProvider struct {
	name  string
	group *resilience.FallbackGroup[Provider]
}

// NewFallbackProvider builds a FallbackProvider trying primary first, then
// each of fallbacks in order.
func NewFallbackProvider(primary Provider, fallbacks ...Provider) *FallbackProvider {
	group := resilience.NewFallbackGroup[Provider](primary, primary.Name(), resilience.FallbackConfig{})
	for _, fb := range fallbacks {
		group.AddFallback(fb.Name(), fb)
	}
	return &FallbackProvider{name: primary.Name(), group: group}
}

// Name returns the primary provider's name. Metrics and logs that want to
// know which entry actually served a given stream should inspect the
// returned [SessionHandle], not this.
func (fp *FallbackProvider) Name() string { return fp.name }

// StartStream tries each provider in order until one returns a session
// without error.
func (fp *FallbackProvider) StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error) {
	handle, err := resilience.ExecuteWithResult(fp.group, func(p Provider) (SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("asr: all providers failed: %w", err)
	}
	return handle, nil
}
