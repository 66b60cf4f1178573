package square

import (
	"context"
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

type fakeLinks struct {
	req  *sqcheckout.CreatePaymentLinkRequest
	resp *sq.CreatePaymentLinkResponse
	err  error
}

func (f *fakeLinks) Create(_ context.Context, req *sqcheckout.CreatePaymentLinkRequest, _ ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error) {
	f.req = req
	return f.resp, f.err
}

func strPtr(v string) *string { return &v }

func TestInitiateBuildsQuickPayLink(t *testing.T) {
	t.Parallel()
	links := &fakeLinks{resp: &sq.CreatePaymentLinkResponse{PaymentLink: &sq.PaymentLink{
		URL:     strPtr("https://square.link/u/abc"),
		OrderID: strPtr("order-1"),
	}}}
	client := &Client{links: links, locationID: "LOC1"}

	res, err := client.Initiate(context.Background(), gateway.InitiateRequest{
		Reference:   "CHK-1",
		AmountMinor: 12105,
		Currency:    "usd",
		BuyerEmail:  "buyer@example.com",
		CallbackURL: "https://shop.test/return",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if res.AuthorizationURL != "https://square.link/u/abc" || res.ProviderRef != "order-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if *links.req.IdempotencyKey != "CHK-1" || *links.req.PaymentNote != "CHK-1" {
		t.Fatalf("reference not propagated")
	}
	if links.req.QuickPay.LocationID != "LOC1" || *links.req.QuickPay.PriceMoney.Amount != 12105 {
		t.Fatalf("unexpected quick pay %+v", links.req.QuickPay)
	}
	if *links.req.QuickPay.PriceMoney.Currency != sq.Currency("USD") {
		t.Fatalf("currency not normalized")
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"server", sqcore.NewAPIError(http.StatusInternalServerError, errors.New(`{"errors":[]}`)), true},
		{"rate limited", sqcore.NewAPIError(http.StatusTooManyRequests, errors.New(`{}`)), true},
		{"auth", sqcore.NewAPIError(http.StatusUnauthorized, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)), false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		if got := gateway.IsTransient(classifyError(tc.err)); got != tc.transient {
			t.Fatalf("%s: transient=%v want %v", tc.name, got, tc.transient)
		}
	}
}

func TestExtractSquareErrors(t *testing.T) {
	t.Parallel()
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	got := extractSquareErrors(sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload)))
	if len(got) != 1 || got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected errors %+v", got)
	}
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()
	client := &Client{webhookSecret: "sig-key", notificationURL: "https://api.test/webhooks/square"}
	body := []byte(`{"merchant_id":"M1","type":"payment.updated","event_id":"evt-1","data":{"type":"payment","id":"P1","object":{"payment":{"id":"P1","status":"COMPLETED","note":"CHK-9","amount_money":{"amount":5000,"currency":"USD"}}}}}`)
	header := http.Header{}
	header.Set(SignatureHeader, security.SignHMACSHA256Base64("sig-key", append([]byte(client.notificationURL), body...)))

	evt, err := client.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.EventID != "evt-1" || evt.Reference != "CHK-9" || evt.Status != enums.PaymentStatusSuccess {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.AmountMinor != 5000 || evt.Currency != "USD" {
		t.Fatalf("unexpected amount %+v", evt)
	}

	header.Set(SignatureHeader, security.SignHMACSHA256Base64("sig-key", body))
	if _, err := client.ParseWebhook(body, header); !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("signature without notification url must fail, got %v", err)
	}
}

func TestMapPaymentStatus(t *testing.T) {
	t.Parallel()
	cases := map[string]enums.PaymentStatus{
		"COMPLETED": enums.PaymentStatusSuccess,
		"FAILED":    enums.PaymentStatusFailed,
		"CANCELED":  enums.PaymentStatusFailed,
		"APPROVED":  enums.PaymentStatusPending,
	}
	for in, want := range cases {
		if got := mapPaymentStatus(in); got != want {
			t.Fatalf("%s: got %s want %s", in, got, want)
		}
	}
}

func TestNormalizeEnv(t *testing.T) {
	t.Parallel()
	if env, err := normalizeEnv(" Production "); err != nil || env != productionEnv {
		t.Fatalf("unexpected env %q err %v", env, err)
	}
	if _, err := normalizeEnv("staging"); err == nil {
		t.Fatal("expected error for unknown env")
	}
}
