package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/checkout-engine/api/responses"
	"github.com/angelmondragon/checkout-engine/internal/settlement"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

const maxWebhookBytes = 256 << 10

type webhookReconciler interface {
	HandleWebhook(ctx context.Context, providerName string, body []byte, header http.Header) (*settlement.Result, error)
}

// PaymentWebhook receives gateway deliveries on /payments/webhook/{provider}.
// The raw body is handed to the reconciler untouched because signatures are
// computed over the exact bytes. Duplicates and unknown references still
// answer 200 so the gateway stops retrying; a bad signature answers 401 and a
// storage failure 5xx so the gateway redelivers.
func PaymentWebhook(reconciler webhookReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook reconciler unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}
		if len(body) > maxWebhookBytes {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
			return
		}

		result, err := reconciler.HandleWebhook(ctx, chi.URLParam(r, "provider"), body, r.Header)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
