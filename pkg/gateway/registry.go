package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
)

// Registry resolves gateways by provider and wraps initiation with the
// timeout and single-retry policy.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
	fallback enums.PaymentProvider
	timeout  time.Duration
	backoff  time.Duration
	metrics  *metrics.GatewayMetrics
	sleep    func(context.Context, time.Duration) error
}

// RegistryParams configures NewRegistry.
type RegistryParams struct {
	Gateways        []Gateway
	DefaultProvider enums.PaymentProvider
	Timeout         time.Duration
	RetryBackoff    time.Duration
	Metrics         *metrics.GatewayMetrics
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if len(params.Gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway required")
	}
	r := &Registry{
		gateways: make(map[enums.PaymentProvider]Gateway, len(params.Gateways)),
		fallback: params.DefaultProvider,
		timeout:  params.Timeout,
		backoff:  params.RetryBackoff,
		metrics:  params.Metrics,
		sleep:    sleepContext,
	}
	for _, gw := range params.Gateways {
		if gw == nil {
			continue
		}
		r.gateways[gw.Provider()] = gw
	}
	if _, ok := r.gateways[r.fallback]; !ok {
		return nil, fmt.Errorf("default provider %q not registered", r.fallback)
	}
	if r.timeout <= 0 {
		r.timeout = 5 * time.Second
	}
	return r, nil
}

// Default returns the provider used for new payment attempts.
func (r *Registry) Default() enums.PaymentProvider {
	return r.fallback
}

// Get returns the gateway for provider.
func (r *Registry) Get(provider enums.PaymentProvider) (Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider").
			WithDetails(map[string]any{"provider": provider.String()})
	}
	return gw, nil
}

// Initiate calls the provider with a bounded timeout. Transient failures are
// retried once after the configured backoff; anything else fails immediately.
// The retry reuses the reference, and the first call may have reached the
// provider, so a refusal on the retry is reported as unavailable rather than
// rejected. Callers mint a new reference on their next attempt.
func (r *Registry) Initiate(ctx context.Context, provider enums.PaymentProvider, req InitiateRequest) (*InitiateResult, error) {
	gw, err := r.Get(provider)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.backoff); err != nil {
				lastErr = err
				break
			}
		}
		result, err := r.initiateOnce(ctx, gw, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt > 0 {
			break
		}
		if !IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway rejected request").
				WithDetails(map[string]any{"provider": provider.String()})
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, lastErr, "payment gateway unavailable")
}

func (r *Registry) initiateOnce(ctx context.Context, gw Gateway, req InitiateRequest) (*InitiateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := gw.Initiate(callCtx, req)
	outcome := "ok"
	switch {
	case err != nil && (IsTransient(err) || errors.Is(err, context.DeadlineExceeded)):
		outcome = "retry"
	case err != nil:
		outcome = "error"
	case result == nil || result.AuthorizationURL == "":
		err = fmt.Errorf("%s returned no authorization url", gw.Provider())
		outcome = "error"
	}
	r.metrics.Observe(gw.Provider().String(), "initiate", outcome, time.Since(start))
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
