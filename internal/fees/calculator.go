package fees

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/money"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// Schedule is the platform fee configuration applied to every seller order.
type Schedule struct {
	ProcessingFeeBps int64
	EscrowFeeMinor   int64
}

// ScheduleFromConfig maps the fee config onto a Schedule.
func ScheduleFromConfig(cfg config.FeesConfig) Schedule {
	return Schedule{
		ProcessingFeeBps: cfg.ProcessingFeeBps,
		EscrowFeeMinor:   cfg.EscrowFeeMinor,
	}
}

// Item is one priced cart line.
type Item struct {
	ListingID        uuid.UUID
	SellerID         uuid.UUID
	Title            string
	Quantity         int64
	UnitPriceMinor   int64
	AbattoirFeeMinor int64
}

// DeliveryQuote is the resolved delivery charge for one seller.
type DeliveryQuote struct {
	FeeMinor   int64
	DistanceKm float64
}

// Breakdown is the full monetary result for a cart.
type Breakdown struct {
	Sellers            []types.SellerBreakdown
	MerchTotalMinor    int64
	DeliveryTotalMinor int64
	AbattoirTotalMinor int64
	ProcessingFeeMinor int64
	EscrowFeeMinor     int64
	GrandTotalMinor    int64
}

// Calculator computes fee breakdowns. It holds no state beyond its schedule.
type Calculator struct {
	schedule Schedule
}

func NewCalculator(schedule Schedule) (*Calculator, error) {
	if schedule.ProcessingFeeBps < 0 || schedule.ProcessingFeeBps > 10000 {
		return nil, fmt.Errorf("processing fee bps out of range: %d", schedule.ProcessingFeeBps)
	}
	if schedule.EscrowFeeMinor < 0 {
		return nil, fmt.Errorf("escrow fee must not be negative")
	}
	return &Calculator{schedule: schedule}, nil
}

// Schedule returns the fee schedule in use.
func (c *Calculator) Schedule() Schedule {
	return c.schedule
}

// Compute groups items by seller and prices each seller order. Sellers missing
// from delivery are charged no delivery. Output order is by seller id so equal
// inputs always yield equal breakdowns.
func (c *Calculator) Compute(items []Item, delivery map[uuid.UUID]DeliveryQuote) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	grouped := make(map[uuid.UUID][]Item)
	for i, item := range items {
		if err := validateItem(i, item); err != nil {
			return Breakdown{}, err
		}
		grouped[item.SellerID] = append(grouped[item.SellerID], item)
	}

	sellerIDs := make([]uuid.UUID, 0, len(grouped))
	for id := range grouped {
		sellerIDs = append(sellerIDs, id)
	}
	sort.Slice(sellerIDs, func(i, j int) bool {
		return sellerIDs[i].String() < sellerIDs[j].String()
	})

	var out Breakdown
	for _, sellerID := range sellerIDs {
		quote := delivery[sellerID]
		if quote.FeeMinor < 0 {
			return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery fee must not be negative").
				WithDetails(map[string]any{"seller_id": sellerID.String()})
		}
		block := c.sellerBlock(sellerID, grouped[sellerID], quote)

		out.Sellers = append(out.Sellers, block)
		out.MerchTotalMinor += block.MerchSubtotalMinor
		out.DeliveryTotalMinor += block.DeliveryMinor
		out.AbattoirTotalMinor += block.AbattoirMinor
		out.ProcessingFeeMinor += block.ProcessingFeeMinor
		out.EscrowFeeMinor += block.EscrowFeeMinor
		out.GrandTotalMinor += block.TotalMinor
	}
	return out, nil
}

func (c *Calculator) sellerBlock(sellerID uuid.UUID, items []Item, quote DeliveryQuote) types.SellerBreakdown {
	block := types.SellerBreakdown{
		SellerID:      sellerID,
		DeliveryMinor: quote.FeeMinor,
		DistanceKm:    quote.DistanceKm,
		LineItems:     make(types.LineItems, 0, len(items)),
	}
	for _, item := range items {
		lineTotal := item.Quantity * item.UnitPriceMinor
		block.MerchSubtotalMinor += lineTotal
		block.AbattoirMinor += item.Quantity * item.AbattoirFeeMinor
		block.LineItems = append(block.LineItems, types.LineItem{
			ListingID:        item.ListingID,
			SellerID:         item.SellerID,
			Title:            item.Title,
			Quantity:         item.Quantity,
			UnitPriceMinor:   item.UnitPriceMinor,
			AbattoirFeeMinor: item.AbattoirFeeMinor,
			LineTotalMinor:   lineTotal,
		})
	}
	block.ProcessingFeeMinor = money.ApplyBps(block.MerchSubtotalMinor+block.DeliveryMinor, c.schedule.ProcessingFeeBps)
	block.EscrowFeeMinor = c.schedule.EscrowFeeMinor
	block.TotalMinor = block.MerchSubtotalMinor + block.DeliveryMinor + block.AbattoirMinor +
		block.ProcessingFeeMinor + block.EscrowFeeMinor
	return block
}

// Preview prices a single seller order of the given merchandise amount. It
// backs the public fee preview endpoint.
func (c *Calculator) Preview(merchMinor, deliveryMinor int64) (types.SellerBreakdown, error) {
	if merchMinor < 0 || deliveryMinor < 0 {
		return types.SellerBreakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative")
	}
	block := types.SellerBreakdown{
		MerchSubtotalMinor: merchMinor,
		DeliveryMinor:      deliveryMinor,
		ProcessingFeeMinor: money.ApplyBps(merchMinor+deliveryMinor, c.schedule.ProcessingFeeBps),
		EscrowFeeMinor:     c.schedule.EscrowFeeMinor,
	}
	block.TotalMinor = merchMinor + deliveryMinor + block.ProcessingFeeMinor + block.EscrowFeeMinor
	return block, nil
}

// Verify checks the money invariant of a breakdown: the grand total equals the
// sum of every seller's merchandise, delivery, abattoir and fee components.
func (b Breakdown) Verify() error {
	var sum int64
	for _, s := range b.Sellers {
		parts := s.MerchSubtotalMinor + s.DeliveryMinor + s.AbattoirMinor + s.ProcessingFeeMinor + s.EscrowFeeMinor
		if parts != s.TotalMinor {
			return fmt.Errorf("seller %s total %d does not match components %d", s.SellerID, s.TotalMinor, parts)
		}
		sum += parts
	}
	if sum != b.GrandTotalMinor {
		return fmt.Errorf("grand total %d does not match seller sum %d", b.GrandTotalMinor, sum)
	}
	return nil
}

func validateItem(index int, item Item) error {
	details := map[string]any{"index": index, "listing_id": item.ListingID.String()}
	switch {
	case item.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(details)
	case item.UnitPriceMinor < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").WithDetails(details)
	case item.AbattoirFeeMinor < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "abattoir fee must not be negative").WithDetails(details)
	case item.SellerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "seller is required").WithDetails(details)
	}
	return nil
}
