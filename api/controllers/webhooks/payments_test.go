package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/internal/settlement"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

type fakeReconciler struct {
	result *settlement.Result
	err    error

	calls    int
	provider string
	body     []byte
	sig      string
}

func (f *fakeReconciler) HandleWebhook(_ context.Context, provider string, body []byte, header http.Header) (*settlement.Result, error) {
	f.calls++
	f.provider = provider
	f.body = body
	f.sig = header.Get("X-Paystack-Signature")
	return f.result, f.err
}

func serve(t *testing.T, rec *fakeReconciler, provider string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/payments/webhook/{provider}", PaymentWebhook(rec, nil))

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook/"+provider, bytes.NewReader(body))
	req.Header.Set("X-Paystack-Signature", "abc123")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestPaymentWebhookPassesRawBody(t *testing.T) {
	sessionID := uuid.New()
	rec := &fakeReconciler{result: &settlement.Result{
		Provider:  enums.PaymentProviderPaystack,
		EventID:   "evt_1",
		Outcome:   enums.PaymentEventApplied,
		SessionID: &sessionID,
	}}
	payload := []byte(`{"event":"charge.success","data":{"reference":"chk_1"}}`)

	resp := serve(t, rec, "paystack", payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if rec.provider != "paystack" || rec.sig != "abc123" {
		t.Fatalf("unexpected forwarding provider=%q sig=%q", rec.provider, rec.sig)
	}
	if !bytes.Equal(rec.body, payload) {
		t.Fatalf("body mutated: %s", rec.body)
	}

	var envelope struct {
		Data settlement.Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Outcome != enums.PaymentEventApplied {
		t.Fatalf("unexpected outcome %s", envelope.Data.Outcome)
	}
}

func TestPaymentWebhookDuplicateIsOK(t *testing.T) {
	rec := &fakeReconciler{result: &settlement.Result{Provider: enums.PaymentProviderPaystack, Outcome: enums.PaymentEventDuplicate}}
	resp := serve(t, rec, "paystack", []byte(`{}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", resp.Code)
	}
}

func TestPaymentWebhookInvalidSignature(t *testing.T) {
	rec := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeSignature, "webhook signature invalid")}
	resp := serve(t, rec, "paystack", []byte(`{}`))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestPaymentWebhookUnknownProvider(t *testing.T) {
	rec := &fakeReconciler{err: pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment provider")}
	resp := serve(t, rec, "paypal", []byte(`{}`))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestPaymentWebhookStorageFailureIsRetryable(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("connection reset")}
	resp := serve(t, rec, "square", []byte(`{}`))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestPaymentWebhookRejectsOversizedBody(t *testing.T) {
	rec := &fakeReconciler{}
	resp := serve(t, rec, "paystack", bytes.Repeat([]byte("a"), maxWebhookBytes+1))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if rec.calls != 0 {
		t.Fatalf("reconciler should not run for oversized body")
	}
}
