// Package providers builds the gateway registry from configuration. It lives
// apart from pkg/gateway because the provider clients import that package.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
	"github.com/angelmondragon/checkout-engine/pkg/paystack"
	"github.com/angelmondragon/checkout-engine/pkg/square"
)

// NewRegistry registers every provider that has credentials configured. The
// configured default must be among them.
func NewRegistry(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.GatewayMetrics) (*gateway.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	defaultProvider, err := enums.ParsePaymentProvider(cfg.Gateway.DefaultProvider)
	if err != nil {
		return nil, err
	}

	var gateways []gateway.Gateway
	if strings.TrimSpace(cfg.Paystack.SecretKey) != "" {
		client, err := paystack.NewClient(cfg.Paystack.SecretKey, paystack.WithBaseURL(cfg.Paystack.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("paystack client: %w", err)
		}
		gateways = append(gateways, client)
	}
	if strings.TrimSpace(cfg.Square.AccessToken) != "" {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		gateways = append(gateways, client)
	}

	return gateway.NewRegistry(gateway.RegistryParams{
		Gateways:        gateways,
		DefaultProvider: defaultProvider,
		Timeout:         cfg.Gateway.Timeout,
		RetryBackoff:    cfg.Gateway.RetryBackoff,
		Metrics:         m,
	})
}
