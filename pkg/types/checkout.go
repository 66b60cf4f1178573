package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// LineItem is a priced listing line captured at snapshot time. Amounts are minor units.
type LineItem struct {
	ListingID        uuid.UUID `json:"listing_id"`
	SellerID         uuid.UUID `json:"seller_id"`
	Title            string    `json:"title"`
	Quantity         int64     `json:"qty"`
	UnitPriceMinor   int64     `json:"unit_price_minor"`
	AbattoirFeeMinor int64     `json:"abattoir_fee_minor"`
	LineTotalMinor   int64     `json:"line_total_minor"`
}

// LineItems is persisted as a JSON array.
type LineItems []LineItem

// Value serializes the line items to JSON.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan decodes JSON into the line items.
func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded LineItems
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*l = decoded
	return nil
}

// SellerBreakdown is the per-seller money block of a quote.
type SellerBreakdown struct {
	SellerID           uuid.UUID `json:"seller_id"`
	LineItems          LineItems `json:"line_items"`
	MerchSubtotalMinor int64     `json:"merch_subtotal_minor"`
	DeliveryMinor      int64     `json:"delivery_minor"`
	AbattoirMinor      int64     `json:"abattoir_minor"`
	ProcessingFeeMinor int64     `json:"buyer_processing_fee_minor"`
	EscrowFeeMinor     int64     `json:"escrow_service_fee_minor"`
	TotalMinor         int64     `json:"total_minor"`
	DistanceKm         float64   `json:"distance_km,omitempty"`
}

// EscrowAmountMinor is the part of the seller block that is held for the seller.
func (s SellerBreakdown) EscrowAmountMinor() int64 {
	return s.MerchSubtotalMinor + s.DeliveryMinor
}

// SellerBreakdowns is persisted as a JSON array.
type SellerBreakdowns []SellerBreakdown

// Value serializes the breakdowns to JSON.
func (s SellerBreakdowns) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan decodes JSON into the breakdowns.
func (s *SellerBreakdowns) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded SellerBreakdowns
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// StringList persists a list of strings as a JSON array.
type StringList []string

// Value serializes the list to JSON.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan decodes JSON into the list.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded StringList
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// ContainsFold reports whether value is in the list ignoring case and surrounding space.
func (s StringList) ContainsFold(value string) bool {
	needle := strings.TrimSpace(value)
	for _, candidate := range s {
		if strings.EqualFold(strings.TrimSpace(candidate), needle) {
			return true
		}
	}
	return false
}
