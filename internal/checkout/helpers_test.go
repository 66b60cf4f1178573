package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/pkg/db"
	"github.com/angelmondragon/checkout-engine/pkg/db/dbtest"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

var baseNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type listingMap map[uuid.UUID]models.Listing

func (m listingMap) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error) {
	out := map[uuid.UUID]models.Listing{}
	for _, id := range ids {
		if l, ok := m[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type freeDelivery struct{}

func (freeDelivery) Quote(_ context.Context, sellerID uuid.UUID, _ delivery.Destination) (delivery.Quote, error) {
	return delivery.Quote{SellerID: sellerID}, nil
}

type fakeGateways struct {
	mu    sync.Mutex
	calls []gateway.InitiateRequest
	err   error
}

func (f *fakeGateways) Default() enums.PaymentProvider {
	return enums.PaymentProviderPaystack
}

func (f *fakeGateways) Initiate(_ context.Context, _ enums.PaymentProvider, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.InitiateResult{AuthorizationURL: "https://pay.test/" + req.Reference}, nil
}

func (f *fakeGateways) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	client   *db.Client
	repo     *Repository
	svc      Service
	builder  quotes.Builder
	listings listingMap
	gateways *fakeGateways
	clock    *clock
	logg     *logger.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	clk := &clock{now: baseNow}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	s1, s2 := uuid.New(), uuid.New()
	a := models.Listing{ID: uuid.New(), SellerID: s1, Title: "Weaner", UnitPriceMinor: 1000, Currency: "ZAR", IsActive: true}
	b := models.Listing{ID: uuid.New(), SellerID: s2, Title: "Heifer", UnitPriceMinor: 5000, Currency: "ZAR", IsActive: true}
	listings := listingMap{a.ID: a, b.ID: b}

	calc, err := fees.NewCalculator(fees.Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: 2500})
	require.NoError(t, err)
	quoteRepo := quotes.NewRepository(client.DB())
	builder, err := quotes.NewBuilder(quotes.BuilderParams{
		Repo:       quoteRepo,
		Tx:         client,
		Listings:   listings,
		Delivery:   freeDelivery{},
		Calculator: calc,
		TTL:        15 * time.Minute,
		Now:        clk.Now,
	})
	require.NoError(t, err)

	gw := &fakeGateways{}
	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Tx:          client,
		Quotes:      quoteRepo,
		Gateways:    gw,
		Outbox:      outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:      logg,
		SessionTTL:  30 * time.Minute,
		CallbackURL: "https://shop.test/checkout/return",
		Now:         clk.Now,
	})
	require.NoError(t, err)

	return &harness{
		client:   client,
		repo:     repo,
		svc:      svc,
		builder:  builder,
		listings: listings,
		gateways: gw,
		clock:    clk,
		logg:     logg,
	}
}

// scenarioQuote prices 2 x 1000 from one seller and 1 x 5000 from another.
func (h *harness) scenarioQuote(t *testing.T) *models.Quote {
	t.Helper()
	snapshot := &models.CartSnapshot{
		SessionRef: "test",
		Currency:   "ZAR",
		CapturedAt: h.clock.Now(),
	}
	for _, l := range h.listings {
		qty := int64(1)
		if l.UnitPriceMinor == 1000 {
			qty = 2
		}
		snapshot.Items = append(snapshot.Items, types.LineItem{
			ListingID:      l.ID,
			SellerID:       l.SellerID,
			Title:          l.Title,
			Quantity:       qty,
			UnitPriceMinor: l.UnitPriceMinor,
			LineTotalMinor: qty * l.UnitPriceMinor,
		})
		snapshot.SubtotalMinor += qty * l.UnitPriceMinor
	}
	quote, err := h.builder.Build(context.Background(), snapshot, delivery.Destination{Province: "Gauteng"})
	require.NoError(t, err)
	require.Equal(t, int64(12105), quote.GrandTotalMinor)
	return quote
}

func (h *harness) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func buyer() BuyerRef {
	return BuyerRef{UserID: uuid.New(), Email: "buyer@example.com"}
}
