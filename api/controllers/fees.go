package controllers

import (
	"net/http"

	"github.com/angelmondragon/checkout-engine/api/responses"
	"github.com/angelmondragon/checkout-engine/api/validators"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/money"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

type feePreviewer interface {
	Preview(merchMinor, deliveryMinor int64) (types.SellerBreakdown, error)
}

type feeBreakdownResponse struct {
	MerchSubtotalMinor int64  `json:"merch_subtotal_minor"`
	DeliveryMinor      int64  `json:"delivery_minor"`
	ProcessingFeeMinor int64  `json:"buyer_processing_fee_minor"`
	EscrowFeeMinor     int64  `json:"escrow_service_fee_minor"`
	TotalMinor         int64  `json:"total_minor"`
	Total              string `json:"total"`
	Currency           string `json:"currency"`
}

// FeesBreakdown previews the fees for a single seller order of ?amount= with
// an optional ?delivery= charge. Amounts are decimal major units.
func FeesBreakdown(calc feePreviewer, currency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := validators.ParseQueryAmount(r, "amount", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryFee, err := validators.ParseQueryAmount(r, "delivery", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		block, err := calc.Preview(amount, deliveryFee)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, feeBreakdownResponse{
			MerchSubtotalMinor: block.MerchSubtotalMinor,
			DeliveryMinor:      block.DeliveryMinor,
			ProcessingFeeMinor: block.ProcessingFeeMinor,
			EscrowFeeMinor:     block.EscrowFeeMinor,
			TotalMinor:         block.TotalMinor,
			Total:              money.Format(block.TotalMinor),
			Currency:           currency,
		})
	}
}
