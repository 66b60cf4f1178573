package providers

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

func TestNewRegistryWiresPaystack(t *testing.T) {
	cfg := &config.Config{
		Gateway:  config.GatewayConfig{DefaultProvider: "paystack"},
		Paystack: config.PaystackConfig{SecretKey: "sk_test_123", BaseURL: "https://api.paystack.co"},
	}
	reg, err := NewRegistry(context.Background(), cfg, logger.New(logger.Options{Output: io.Discard}), nil)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentProviderPaystack, reg.Default())

	_, err = reg.Get(enums.PaymentProviderSquare)
	require.Error(t, err)
}

func TestNewRegistryRequiresDefaultCredentials(t *testing.T) {
	cfg := &config.Config{
		Gateway:  config.GatewayConfig{DefaultProvider: "square"},
		Paystack: config.PaystackConfig{SecretKey: "sk_test_123"},
	}
	_, err := NewRegistry(context.Background(), cfg, logger.New(logger.Options{Output: io.Discard}), nil)
	require.Error(t, err)
}

func TestNewRegistryRejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{DefaultProvider: "stripe"}}
	_, err := NewRegistry(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}
