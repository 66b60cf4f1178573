package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSellerBreakdownsScanRoundTrip(t *testing.T) {
	t.Parallel()

	in := SellerBreakdowns{{
		SellerID:           uuid.New(),
		MerchSubtotalMinor: 2000,
		ProcessingFeeMinor: 30,
		EscrowFeeMinor:     2500,
		TotalMinor:         4530,
	}}
	raw, err := in.Value()
	require.NoError(t, err)

	var out SellerBreakdowns
	require.NoError(t, out.Scan(string(raw.([]byte))))
	require.Equal(t, in, out)
}

func TestLineItemsNilValueIsEmptyArray(t *testing.T) {
	t.Parallel()

	var items LineItems
	raw, err := items.Value()
	require.NoError(t, err)
	require.Equal(t, []byte("[]"), raw)
}

func TestScanRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	var list StringList
	require.Error(t, list.Scan(42))
}

func TestStringListContainsFold(t *testing.T) {
	t.Parallel()

	list := StringList{"Gauteng", " western cape "}
	require.True(t, list.ContainsFold("gauteng"))
	require.True(t, list.ContainsFold("Western Cape"))
	require.False(t, list.ContainsFold("Limpopo"))
}

func TestEscrowAmountExcludesPlatformFees(t *testing.T) {
	t.Parallel()

	block := SellerBreakdown{MerchSubtotalMinor: 5000, DeliveryMinor: 700, AbattoirMinor: 300, ProcessingFeeMinor: 86, EscrowFeeMinor: 2500}
	require.Equal(t, int64(5700), block.EscrowAmountMinor())
}
