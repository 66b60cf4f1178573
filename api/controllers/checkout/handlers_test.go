package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/api/controllers/dto"
	"github.com/angelmondragon/checkout-engine/api/middleware"
	"github.com/angelmondragon/checkout-engine/internal/auth"
	checkoutsvc "github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

type stubSessions struct {
	session    *models.CheckoutSession
	initiation *checkoutsvc.PaymentInitiation
	err        error

	lastQuote   uuid.UUID
	lastBuyer   checkoutsvc.BuyerRef
	lastSession uuid.UUID
	lastUser    uuid.UUID
}

func (s *stubSessions) Create(_ context.Context, quoteID uuid.UUID, buyer checkoutsvc.BuyerRef) (*models.CheckoutSession, error) {
	s.lastQuote, s.lastBuyer = quoteID, buyer
	return s.session, s.err
}

func (s *stubSessions) CreateTx(context.Context, *gorm.DB, *models.Quote, *uuid.UUID, checkoutsvc.BuyerRef) (*models.CheckoutSession, error) {
	return s.session, s.err
}

func (s *stubSessions) InitiatePayment(_ context.Context, sessionID, buyer uuid.UUID) (*checkoutsvc.PaymentInitiation, error) {
	s.lastSession, s.lastUser = sessionID, buyer
	return s.initiation, s.err
}

func (s *stubSessions) Get(_ context.Context, sessionID, buyer uuid.UUID) (*models.CheckoutSession, error) {
	s.lastSession, s.lastUser = sessionID, buyer
	return s.session, s.err
}

func (s *stubSessions) ExpireStaleSessions(context.Context, time.Time) (int, error) {
	return 0, nil
}

type stubGuest struct {
	quote  *models.Quote
	result *checkoutsvc.GuestCheckoutResult
	err    error

	lastCreate checkoutsvc.GuestCreateRequest
}

func (s *stubGuest) Quote(context.Context, checkoutsvc.GuestQuoteRequest) (*models.Quote, error) {
	return s.quote, s.err
}

func (s *stubGuest) Create(_ context.Context, req checkoutsvc.GuestCreateRequest) (*checkoutsvc.GuestCheckoutResult, error) {
	s.lastCreate = req
	return s.result, s.err
}

func newRouter(sessions checkoutsvc.Service, guest checkoutsvc.GuestService) chi.Router {
	r := chi.NewRouter()
	r.Post("/checkout/guest/quote", GuestQuote(guest, nil))
	r.Post("/checkout/guest/create", GuestCreate(guest, nil))
	r.Post("/checkout/create", Create(sessions, nil))
	r.Post("/checkout/{session_id}/complete", Complete(sessions, nil))
	r.Get("/checkout/{session_id}", Get(sessions, nil))
	return r
}

func asBuyer(req *http.Request, buyer uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), buyer.String()))
}

func TestCreateOpensSession(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	quoteID := uuid.New()
	session := &models.CheckoutSession{
		ID:          uuid.New(),
		QuoteID:     quoteID,
		Status:      enums.CheckoutSessionPending,
		AmountMinor: 12105,
		Currency:    "ZAR",
	}
	svc := &stubSessions{session: session}

	req := asBuyer(httptest.NewRequest(http.MethodPost, "/checkout/create", strings.NewReader(`{"quote_id":"`+quoteID.String()+`"}`)), buyer)
	rec := httptest.NewRecorder()
	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, quoteID, svc.lastQuote)
	require.Equal(t, buyer, svc.lastBuyer.UserID)

	var envelope struct {
		Data dto.SessionView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, session.ID, envelope.Data.ID)
	require.Equal(t, "121.05", envelope.Data.Amount)
}

func TestCreateMapsExpiredQuote(t *testing.T) {
	t.Parallel()

	svc := &stubSessions{err: pkgerrors.New(pkgerrors.CodeQuoteExpired, "quote expired")}
	req := asBuyer(httptest.NewRequest(http.MethodPost, "/checkout/create", strings.NewReader(`{"quote_id":"`+uuid.NewString()+`"}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeQuoteExpired).HTTPStatus, rec.Code)
	require.Contains(t, rec.Body.String(), "QUOTE_EXPIRED")
}

func TestCompleteReturnsPaymentLink(t *testing.T) {
	t.Parallel()

	buyer := uuid.New()
	sessionID := uuid.New()
	svc := &stubSessions{initiation: &checkoutsvc.PaymentInitiation{
		SessionID:        sessionID,
		OrderGroupID:     uuid.New(),
		Reference:        "chk_abc",
		AuthorizationURL: "https://checkout.paystack.com/abc",
		Provider:         enums.PaymentProviderPaystack,
		AmountMinor:      12105,
		Currency:         "ZAR",
	}}

	req := asBuyer(httptest.NewRequest(http.MethodPost, "/checkout/"+sessionID.String()+"/complete", nil), buyer)
	rec := httptest.NewRecorder()
	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, sessionID, svc.lastSession)
	require.Equal(t, buyer, svc.lastUser)

	var envelope struct {
		Data dto.PaymentView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, "chk_abc", envelope.Data.Reference)
	require.Equal(t, "https://checkout.paystack.com/abc", envelope.Data.AuthorizationURL)
	require.Equal(t, "paystack", envelope.Data.Provider)
}

func TestCompleteSurfacesGatewayOutage(t *testing.T) {
	t.Parallel()

	svc := &stubSessions{err: pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway timeout")}
	req := asBuyer(httptest.NewRequest(http.MethodPost, "/checkout/"+uuid.NewString()+"/complete", nil), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, pkgerrors.MetadataFor(pkgerrors.CodeGatewayUnavailable).HTTPStatus, rec.Code)
}

func TestGetRejectsMalformedSessionID(t *testing.T) {
	t.Parallel()

	svc := &stubSessions{}
	req := asBuyer(httptest.NewRequest(http.MethodGet, "/checkout/not-a-uuid", nil), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uuid.Nil, svc.lastSession)
}

func TestGuestQuoteReturnsBreakdown(t *testing.T) {
	t.Parallel()

	guest := &stubGuest{quote: &models.Quote{GrandTotalMinor: 12105, Currency: "ZAR"}}
	body := `{"items":[{"listing_id":"` + uuid.NewString() + `","quantity":2}],"ship_to":{"province":"Gauteng","country":"ZA","lat":-26.2,"lng":28.04}}`
	rec := httptest.NewRecorder()
	newRouter(nil, guest).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/quote", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"grand_total":"121.05"`)
}

func TestGuestQuoteRequiresItems(t *testing.T) {
	t.Parallel()

	body := `{"items":[],"ship_to":{"province":"Gauteng","country":"ZA"}}`
	rec := httptest.NewRecorder()
	newRouter(nil, &stubGuest{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/quote", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuestCreateIssuesAccessToken(t *testing.T) {
	t.Parallel()

	guest := &stubGuest{result: &checkoutsvc.GuestCheckoutResult{
		SessionID:        uuid.New(),
		OrderGroupID:     uuid.New(),
		QuoteID:          uuid.New(),
		Reference:        "chk_guest",
		AuthorizationURL: "https://pay.example/guest",
		AmountMinor:      12105,
		Currency:         "ZAR",
		ExpiresAt:        time.Now().Add(30 * time.Minute),
		Access:           &auth.LoginResponse{AccessToken: "jwt", ExpiresIn: 3600},
	}}
	quotedID := uuid.New()
	body := `{"contact":{"email":"Guest@Example.com","full_name":" Thandi "},` +
		`"items":[{"listing_id":"` + uuid.NewString() + `","quantity":1}],` +
		`"ship_to":{"province":"Gauteng","country":"ZA","lat":-26.2,"lng":28.04},` +
		`"quote":{"id":"` + quotedID.String() + `","grand_total_minor":12105,"currency":"zar"}}`

	rec := httptest.NewRecorder()
	newRouter(nil, guest).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/create", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "ZAR", guest.lastCreate.ExpectedCurrency)
	require.Equal(t, int64(12105), guest.lastCreate.ExpectedGrandTotalMinor)
	require.Equal(t, quotedID, guest.lastCreate.QuotedID)
	require.Equal(t, "Thandi", guest.lastCreate.Contact.FullName)

	var envelope struct {
		Data struct {
			Reference string `json:"payment_reference"`
			Access    struct {
				AccessToken string `json:"access_token"`
			} `json:"access"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, "chk_guest", envelope.Data.Reference)
	require.Equal(t, "jwt", envelope.Data.Access.AccessToken)
}

func TestGuestCreateSurfacesAmountMismatch(t *testing.T) {
	t.Parallel()

	guest := &stubGuest{err: pkgerrors.New(pkgerrors.CodeAmountMismatch, "quoted total changed").
		WithDetails(map[string]any{"grand_total_minor": 12200})}
	body := `{"contact":{"email":"guest@example.com"},` +
		`"items":[{"listing_id":"` + uuid.NewString() + `","quantity":1}],` +
		`"ship_to":{"province":"Gauteng","country":"ZA"},` +
		`"quote":{"grand_total_minor":12105,"currency":"ZAR"}}`

	rec := httptest.NewRecorder()
	newRouter(nil, guest).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/create", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "AMOUNT_MISMATCH")
	require.Contains(t, rec.Body.String(), "12200")
}

func TestGuestCreateAcceptsQuoteAsReturned(t *testing.T) {
	t.Parallel()

	quoted := dto.NewQuoteView(&models.Quote{
		ID: uuid.New(),
		PerSeller: types.SellerBreakdowns{
			{SellerID: uuid.New(), MerchSubtotalMinor: 2000, ProcessingFeeMinor: 30, EscrowFeeMinor: 2500, TotalMinor: 4530},
		},
		MerchTotalMinor:       2000,
		ProcessingFeeMinor:    30,
		EscrowServiceFeeMinor: 2500,
		GrandTotalMinor:       4530,
		Currency:              "ZAR",
		ExpiresAt:             time.Now().Add(15 * time.Minute).UTC(),
	})
	raw, err := json.Marshal(map[string]any{
		"contact": map[string]any{"email": "guest@example.com"},
		"items":   []map[string]any{{"listing_id": uuid.NewString(), "quantity": 2}},
		"ship_to": map[string]any{"province": "Gauteng", "country": "ZA"},
		"quote":   quoted,
	})
	require.NoError(t, err)

	guest := &stubGuest{result: &checkoutsvc.GuestCheckoutResult{SessionID: uuid.New(), Reference: "chk_echo", AmountMinor: 4530, Currency: "ZAR"}}
	rec := httptest.NewRecorder()
	newRouter(nil, guest).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/create", bytes.NewReader(raw)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, quoted.ID, guest.lastCreate.QuotedID)
	require.Equal(t, int64(4530), guest.lastCreate.ExpectedGrandTotalMinor)
	require.Equal(t, "ZAR", guest.lastCreate.ExpectedCurrency)
}

func TestGuestCreateRequiresQuote(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"quote":                   `}`,
		"quote.grand_total_minor": `,"quote":{"currency":"ZAR"}}`,
		"quote.currency":          `,"quote":{"grand_total_minor":12105,"currency":"R"}}`,
	}
	for field, tail := range cases {
		body := `{"contact":{"email":"guest@example.com"},` +
			`"items":[{"listing_id":"` + uuid.NewString() + `","quantity":1}],` +
			`"ship_to":{"province":"Gauteng","country":"ZA"}` + tail
		guest := &stubGuest{}
		rec := httptest.NewRecorder()
		newRouter(nil, guest).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/guest/create", strings.NewReader(body)))

		require.Equal(t, http.StatusBadRequest, rec.Code, field)
		require.Contains(t, rec.Body.String(), `"`+field+`"`, field)
		require.Empty(t, guest.lastCreate.Contact.Email, field)
	}
}
