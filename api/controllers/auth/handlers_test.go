package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/api/middleware"
	"github.com/angelmondragon/checkout-engine/internal/auth"
	"github.com/angelmondragon/checkout-engine/internal/users"
	pkgauth "github.com/angelmondragon/checkout-engine/pkg/auth"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

type stubAuthService struct {
	resp      *auth.LoginResponse
	err       error
	lastLogin auth.LoginRequest
	revoked   string
}

func (s *stubAuthService) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	s.lastLogin = req
	return s.resp, s.err
}

func (s *stubAuthService) Logout(_ context.Context, accessID string) error {
	s.revoked = accessID
	return s.err
}

func (s *stubAuthService) IssueToken(context.Context, *models.User) (*auth.LoginResponse, error) {
	return s.resp, s.err
}

type stubRegister struct {
	err     error
	last    auth.RegisterRequest
	claimed uuid.UUID
}

func (s *stubRegister) Register(_ context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{ID: uuid.New(), Email: req.Email}, nil
}

func (s *stubRegister) ClaimGuest(_ context.Context, userID uuid.UUID, _ auth.ClaimGuestRequest) (*users.UserDTO, error) {
	s.claimed = userID
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{ID: userID, Email: "guest@example.com"}, nil
}

func TestLoginReturnsToken(t *testing.T) {
	t.Parallel()

	svc := &stubAuthService{resp: &auth.LoginResponse{AccessToken: "jwt", ExpiresIn: 3600}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"buyer@example.com","password":"hunter22"}`))
	rec := httptest.NewRecorder()
	Login(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "buyer@example.com", svc.lastLogin.Email)

	var envelope struct {
		Data auth.LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, "jwt", envelope.Data.AccessToken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"buyer@example.com","password":"nope"}`))
	rec := httptest.NewRecorder()
	Login(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidatesEmail(t *testing.T) {
	t.Parallel()

	svc := &stubAuthService{}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	rec := httptest.NewRecorder()
	Login(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.lastLogin.Email)
}

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()

	svc := &stubAuthService{resp: &auth.LoginResponse{AccessToken: "jwt"}}
	reg := &stubRegister{}
	body := `{"email":"new@example.com","password":"longenough","full_name":"New Buyer"}`
	rec := httptest.NewRecorder()
	Register(reg, svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "new@example.com", reg.last.Email)
	require.Equal(t, "longenough", svc.lastLogin.Password)
}

func TestRegisterConflictSkipsLogin(t *testing.T) {
	t.Parallel()

	svc := &stubAuthService{}
	reg := &stubRegister{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
	body := `{"email":"taken@example.com","password":"longenough","full_name":"Someone"}`
	rec := httptest.NewRecorder()
	Register(reg, svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Empty(t, svc.lastLogin.Email)
}

func TestLogoutRevokesTokenAccessID(t *testing.T) {
	t.Parallel()

	cfg := config.JWTConfig{Secret: "secret", Issuer: "checkout-test", ExpirationMinutes: 10}
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{UserID: uuid.New(), JTI: "access-1"})
	require.NoError(t, err)

	svc := &stubAuthService{}
	handler := middleware.Auth(cfg, nil, nil)(Logout(svc, nil))
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "access-1", svc.revoked)
}

func TestMeRequiresIdentity(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Me(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func claimRequest(t *testing.T, cfg config.JWTConfig, payload pkgauth.AccessTokenPayload) *http.Request {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/claim", strings.NewReader(`{"password":"longenough","full_name":"Now Member"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestClaimGuestUsesTokenIdentity(t *testing.T) {
	t.Parallel()

	cfg := config.JWTConfig{Secret: "secret", Issuer: "checkout-test", ExpirationMinutes: 10}
	guestID := uuid.New()
	svc := &stubAuthService{resp: &auth.LoginResponse{AccessToken: "member-jwt"}}
	reg := &stubRegister{}
	handler := middleware.Auth(cfg, nil, nil)(ClaimGuest(reg, svc, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, claimRequest(t, cfg, pkgauth.AccessTokenPayload{UserID: guestID, Email: "guest@example.com", Guest: true, JTI: "guest-1"}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, guestID, reg.claimed)
	require.Equal(t, "guest-1", svc.revoked)
	require.Equal(t, "guest@example.com", svc.lastLogin.Email)
	require.Equal(t, "longenough", svc.lastLogin.Password)
}

func TestClaimGuestRejectsMemberToken(t *testing.T) {
	t.Parallel()

	cfg := config.JWTConfig{Secret: "secret", Issuer: "checkout-test", ExpirationMinutes: 10}
	svc := &stubAuthService{}
	reg := &stubRegister{}
	handler := middleware.Auth(cfg, nil, nil)(ClaimGuest(reg, svc, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, claimRequest(t, cfg, pkgauth.AccessTokenPayload{UserID: uuid.New(), Email: "member@example.com", JTI: "member-1"}))

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, uuid.Nil, reg.claimed)
	require.Empty(t, svc.revoked)
}
