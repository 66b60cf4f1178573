package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestInitiateRequest(t *testing.T) {
	t.Parallel()
	var captured *http.Request
	var payload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"CHK-1"}}`), nil
	})

	client, err := NewClient("sk_test", WithBaseURL("http://paystack.test/"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := client.Initiate(context.Background(), gateway.InitiateRequest{
		Reference:   "CHK-1",
		AmountMinor: 12105,
		Currency:    "zar",
		BuyerEmail:  "buyer@example.com",
		CallbackURL: "https://shop.test/return",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if captured.URL.String() != "http://paystack.test/transaction/initialize" {
		t.Fatalf("unexpected url %s", captured.URL)
	}
	if captured.Header.Get("Authorization") != "Bearer sk_test" {
		t.Fatalf("missing bearer token")
	}
	if payload["amount"] != float64(12105) || payload["currency"] != "ZAR" || payload["reference"] != "CHK-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if res.AuthorizationURL != "https://checkout.paystack.com/abc" || res.ProviderRef != "abc" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInitiateErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		rt        roundTripFunc
		transient bool
	}{
		{
			name:      "network",
			rt:        func(*http.Request) (*http.Response, error) { return nil, errors.New("dial tcp: refused") },
			transient: true,
		},
		{
			name: "server error",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusBadGateway, `bad gateway`), nil
			},
			transient: true,
		},
		{
			name: "client error",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusBadRequest, `{"status":false}`), nil
			},
			transient: false,
		},
		{
			name: "status false",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"status":false,"message":"Duplicate Transaction Reference"}`), nil
			},
			transient: false,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client, err := NewClient("sk_test", WithHTTPClient(&http.Client{Transport: tc.rt}))
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.Initiate(context.Background(), gateway.InitiateRequest{Reference: "CHK-2", AmountMinor: 100})
			if err == nil {
				t.Fatal("expected error")
			}
			if gateway.IsTransient(err) != tc.transient {
				t.Fatalf("transient=%v want %v (%v)", gateway.IsTransient(err), tc.transient, err)
			}
		})
	}
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()
	client, err := NewClient("sk_test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	body := []byte(`{"event":"charge.success","data":{"id":302961,"reference":"CHK-1","amount":12105,"currency":"ZAR","status":"success"}}`)
	header := http.Header{}
	header.Set(SignatureHeader, security.SignHMACSHA512Hex("sk_test", body))

	evt, err := client.ParseWebhook(body, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if evt.EventID != "charge.success:302961" || evt.Reference != "CHK-1" {
		t.Fatalf("unexpected identity %+v", evt)
	}
	if evt.Status != enums.PaymentStatusSuccess || evt.AmountMinor != 12105 || evt.Currency != "ZAR" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.PayloadHash != security.SHA256Hex(body) {
		t.Fatal("payload hash mismatch")
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	client, _ := NewClient("sk_test")
	body := []byte(`{"event":"charge.success","data":{"id":1,"reference":"CHK-1","amount":1,"currency":"ZAR","status":"success"}}`)

	header := http.Header{}
	header.Set(SignatureHeader, security.SignHMACSHA512Hex("sk_wrong", body))
	if _, err := client.ParseWebhook(body, header); !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, err := client.ParseWebhook(body, http.Header{}); !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}

func TestMapStatus(t *testing.T) {
	t.Parallel()
	cases := map[[2]string]enums.PaymentStatus{
		{"charge.success", "success"}:  enums.PaymentStatusSuccess,
		{"charge.failed", "failed"}:    enums.PaymentStatusFailed,
		{"charge.success", "reversed"}: enums.PaymentStatusFailed,
		{"charge.dispute.create", ""}:  enums.PaymentStatusPending,
	}
	for in, want := range cases {
		if got := mapStatus(in[0], in[1]); got != want {
			t.Fatalf("mapStatus(%v)=%s want %s", in, got, want)
		}
	}
}
