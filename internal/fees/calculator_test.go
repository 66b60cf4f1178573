package fees

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

func defaultCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: 2500})
	require.NoError(t, err)
	return calc
}

func TestComputeTwoSellerScenario(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)

	s1, s2 := uuid.New(), uuid.New()
	items := []Item{
		{ListingID: uuid.New(), SellerID: s1, Quantity: 2, UnitPriceMinor: 1000},
		{ListingID: uuid.New(), SellerID: s2, Quantity: 1, UnitPriceMinor: 5000},
	}

	out, err := calc.Compute(items, nil)
	require.NoError(t, err)
	require.Len(t, out.Sellers, 2)

	bySeller := map[uuid.UUID]int{}
	for i, s := range out.Sellers {
		bySeller[s.SellerID] = i
	}
	first := out.Sellers[bySeller[s1]]
	require.Equal(t, int64(2000), first.MerchSubtotalMinor)
	require.Equal(t, int64(30), first.ProcessingFeeMinor)
	require.Equal(t, int64(2500), first.EscrowFeeMinor)
	require.Equal(t, int64(4530), first.TotalMinor)

	second := out.Sellers[bySeller[s2]]
	require.Equal(t, int64(5000), second.MerchSubtotalMinor)
	require.Equal(t, int64(75), second.ProcessingFeeMinor)
	require.Equal(t, int64(7575), second.TotalMinor)

	require.Equal(t, int64(12105), out.GrandTotalMinor)
	require.Equal(t, int64(105), out.ProcessingFeeMinor)
	require.Equal(t, int64(5000), out.EscrowFeeMinor)
	require.NoError(t, out.Verify())
}

func TestComputeIncludesDeliveryInProcessingBase(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)

	seller := uuid.New()
	items := []Item{{ListingID: uuid.New(), SellerID: seller, Quantity: 3, UnitPriceMinor: 1000, AbattoirFeeMinor: 150}}
	out, err := calc.Compute(items, map[uuid.UUID]DeliveryQuote{seller: {FeeMinor: 1500, DistanceKm: 12.5}})
	require.NoError(t, err)

	block := out.Sellers[0]
	require.Equal(t, int64(450), block.AbattoirMinor)
	require.Equal(t, int64(1500), block.DeliveryMinor)
	// 1.5% of (3000 + 1500) = 67.5 -> 68
	require.Equal(t, int64(68), block.ProcessingFeeMinor)
	require.Equal(t, int64(3000+1500+450+68+2500), out.GrandTotalMinor)
	require.InDelta(t, 12.5, block.DistanceKm, 1e-9)
}

func TestComputeRejectsInvalidItems(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)

	_, err := calc.Compute(nil, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = calc.Compute([]Item{{ListingID: uuid.New(), SellerID: uuid.New(), Quantity: 0, UnitPriceMinor: 10}}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = calc.Compute([]Item{{ListingID: uuid.New(), SellerID: uuid.New(), Quantity: 1, UnitPriceMinor: -1}}, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestComputeIsDeterministicAndBalanced(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		sellers := make([]uuid.UUID, 1+rng.Intn(4))
		for i := range sellers {
			sellers[i] = uuid.New()
		}
		delivery := map[uuid.UUID]DeliveryQuote{}
		for _, s := range sellers {
			delivery[s] = DeliveryQuote{FeeMinor: int64(rng.Intn(5000))}
		}
		items := make([]Item, 1+rng.Intn(8))
		for i := range items {
			items[i] = Item{
				ListingID:        uuid.New(),
				SellerID:         sellers[rng.Intn(len(sellers))],
				Quantity:         int64(1 + rng.Intn(10)),
				UnitPriceMinor:   int64(rng.Intn(100000)),
				AbattoirFeeMinor: int64(rng.Intn(500)),
			}
		}

		first, err := calc.Compute(items, delivery)
		require.NoError(t, err)
		require.NoError(t, first.Verify())

		shuffled := append([]Item(nil), items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		second, err := calc.Compute(shuffled, delivery)
		require.NoError(t, err)

		require.Equal(t, first.GrandTotalMinor, second.GrandTotalMinor)
		require.Equal(t, len(first.Sellers), len(second.Sellers))
		for i := range first.Sellers {
			require.Equal(t, first.Sellers[i].SellerID, second.Sellers[i].SellerID)
			require.Equal(t, first.Sellers[i].TotalMinor, second.Sellers[i].TotalMinor)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)

	block, err := calc.Preview(2000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(30), block.ProcessingFeeMinor)
	require.Equal(t, int64(4530), block.TotalMinor)

	_, err = calc.Preview(-1, 0)
	require.Error(t, err)
}

func TestVerifyDetectsDrift(t *testing.T) {
	t.Parallel()
	calc := defaultCalculator(t)

	out, err := calc.Compute([]Item{{ListingID: uuid.New(), SellerID: uuid.New(), Quantity: 1, UnitPriceMinor: 100}}, nil)
	require.NoError(t, err)
	out.GrandTotalMinor++
	require.Error(t, out.Verify())
}

func TestNewCalculatorRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	_, err := NewCalculator(Schedule{ProcessingFeeBps: -1})
	require.Error(t, err)
	_, err = NewCalculator(Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: -5})
	require.Error(t, err)
}
