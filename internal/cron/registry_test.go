package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopiesJobs(t *testing.T) {
	registry, err := NewRegistry(namedJob("checkout-session-expiry"), nil, namedJob("outbox-retention"))
	require.NoError(t, err)
	require.Equal(t, []string{"checkout-session-expiry", "outbox-retention"}, registry.Names())

	jobs := registry.Jobs()
	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndUnnamedJobs(t *testing.T) {
	_, err := NewRegistry(namedJob("sweep"), namedJob("sweep"))
	require.ErrorContains(t, err, "duplicate")

	var registry Registry
	require.Error(t, registry.Register(namedJob("")))
	require.Error(t, registry.Register(nil))
	require.NoError(t, registry.Register(namedJob("sweep")))
	require.Len(t, registry.Jobs(), 1)
}
