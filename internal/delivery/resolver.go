package delivery

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
)

const earthRadiusKm = 6371.0

// RateCardSource loads a seller's delivery rate card; nil means not configured.
type RateCardSource interface {
	FindRateCard(ctx context.Context, sellerID uuid.UUID) (*models.SellerRateCard, error)
}

// Destination is where the buyer wants the goods delivered.
type Destination struct {
	Province string
	Country  string
	Lat      float64
	Lng      float64
}

// Quote is the delivery price for one seller.
type Quote struct {
	SellerID    uuid.UUID
	DistanceKm  float64
	FeeMinor    int64
	OutOfRange  bool
	Reason      string
	UsedDefault bool
}

// Resolver prices delivery from seller rate cards.
type Resolver struct {
	cards           RateCardSource
	defaultFeeMinor int64
}

func NewResolver(cards RateCardSource, defaultFeeMinor int64) (*Resolver, error) {
	if cards == nil {
		return nil, fmt.Errorf("rate card source required")
	}
	if defaultFeeMinor < 0 {
		return nil, fmt.Errorf("default delivery fee must not be negative")
	}
	return &Resolver{cards: cards, defaultFeeMinor: defaultFeeMinor}, nil
}

// Quote prices delivery from sellerID to dest. An undeliverable seller yields
// OutOfRange with a zero fee; callers must not treat that as free delivery.
func (r *Resolver) Quote(ctx context.Context, sellerID uuid.UUID, dest Destination) (Quote, error) {
	card, err := r.cards.FindRateCard(ctx, sellerID)
	if err != nil {
		return Quote{}, fmt.Errorf("load rate card for seller %s: %w", sellerID, err)
	}
	if card == nil {
		return Quote{SellerID: sellerID, FeeMinor: r.defaultFeeMinor, UsedDefault: true}, nil
	}
	return PriceWithCard(*card, dest), nil
}

// PriceWithCard applies a rate card to a destination.
//
// Billable distance is max(distance, min_km) rounded up to the metre, and the
// per-km charge is rounded half-up to the minor unit.
func PriceWithCard(card models.SellerRateCard, dest Destination) Quote {
	distance := HaversineKm(card.OriginLat, card.OriginLng, dest.Lat, dest.Lng)
	quote := Quote{SellerID: card.SellerID, DistanceKm: distance}

	if len(card.ProvinceWhitelist) > 0 && !card.ProvinceWhitelist.ContainsFold(dest.Province) {
		quote.OutOfRange = true
		quote.Reason = "province_not_served"
		return quote
	}
	if card.MaxKm > 0 && distance > card.MaxKm {
		quote.OutOfRange = true
		quote.Reason = "distance_exceeds_max"
		return quote
	}

	billable := math.Max(distance, card.MinKm)
	metres := int64(math.Ceil(billable * 1000))
	quote.FeeMinor = card.BaseFeeMinor + (card.PerKmMinor*metres+500)/1000
	return quote
}

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
