package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/pkg/auth"
	"github.com/angelmondragon/checkout-engine/pkg/config"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "checkout-test", ExpirationMinutes: 60}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, guest bool) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Email:  "buyer@example.com",
		Guest:  guest,
	})
	require.NoError(t, err)
	return token
}

func TestAuthRejections(t *testing.T) {
	t.Parallel()
	cfg := testJWT()
	valid := mintTestToken(t, cfg, uuid.New(), false)

	cases := []struct {
		name     string
		header   string
		verifier stubSessionVerifier
		want     int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "bare token", header: valid, verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic " + valid, verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer   ", verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer invalid", verifier: stubSessionVerifier{ok: true}, want: http.StatusUnauthorized},
		{name: "revoked", header: "Bearer " + valid, verifier: stubSessionVerifier{ok: false}, want: http.StatusUnauthorized},
		{name: "store down", header: "Bearer " + valid, verifier: stubSessionVerifier{err: errors.New("redis down")}, want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			Auth(cfg, tc.verifier, nil)(okHandler()).ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthSeedsBuyerIdentity(t *testing.T) {
	t.Parallel()
	cfg := testJWT()
	userID := uuid.New()
	token := mintTestToken(t, cfg, userID, true)

	var user, email, access string
	var guest bool
	handler := Auth(cfg, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserIDFromContext(r.Context())
		email = EmailFromContext(r.Context())
		guest = GuestFromContext(r.Context())
		access = AccessIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID.String(), user)
	require.Equal(t, "buyer@example.com", email)
	require.True(t, guest)
	require.NotEmpty(t, access)
}

func TestAuthWithoutVerifierTrustsToken(t *testing.T) {
	t.Parallel()
	cfg := testJWT()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, cfg, uuid.New(), false))
	rec := httptest.NewRecorder()
	Auth(cfg, nil, nil)(okHandler()).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
