package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/internal/users"
	pkgAuth "github.com/angelmondragon/checkout-engine/pkg/auth"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db/dbtest"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

type fakeSessions struct {
	registered map[string]string
	revoked    []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{registered: map[string]string{}}
}

func (f *fakeSessions) Register(_ context.Context, accessID, userID string) error {
	f.registered[accessID] = userID
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.revoked = append(f.revoked, accessID)
	delete(f.registered, accessID)
	return nil
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "checkout-engine", ExpirationMinutes: 30}
}

func mustHashPassword(t *testing.T, password string) *string {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig())
	require.NoError(t, err)
	return &hash
}

func TestServiceLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := users.NewRepository(dbtest.Open(t))
	user := &models.User{Email: "buyer@example.com", PasswordHash: mustHashPassword(t, "buyer-secret"), FullName: "Buyer"}
	_, err := repo.CreateIfAbsent(ctx, user)
	require.NoError(t, err)

	sessions := newFakeSessions()
	svc, err := NewService(ServiceParams{UserRepo: repo, SessionManager: sessions, JWTConfig: testJWTConfig(), Now: time.Now})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, LoginRequest{Email: " Buyer@Example.com", Password: "buyer-secret"})
	require.NoError(t, err)
	require.Equal(t, int64(1800), resp.ExpiresIn)
	require.Equal(t, user.ID, resp.User.ID)

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, user.ID.String(), sessions.registered[claims.ID])

	require.NoError(t, svc.Logout(ctx, claims.ID))
	require.Equal(t, []string{claims.ID}, sessions.revoked)
}

func TestServiceLoginRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := users.NewRepository(dbtest.Open(t))
	_, err := repo.CreateIfAbsent(ctx, &models.User{Email: "member@example.com", PasswordHash: mustHashPassword(t, "right-password")})
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, &models.User{Email: "guest@example.com", IsGuest: true})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{UserRepo: repo, SessionManager: newFakeSessions(), JWTConfig: testJWTConfig()})
	require.NoError(t, err)

	cases := []LoginRequest{
		{Email: "member@example.com", Password: "wrong-password"},
		{Email: "guest@example.com", Password: "anything"},
		{Email: "nobody@example.com", Password: "anything"},
		{Email: "  ", Password: "anything"},
	}
	for _, req := range cases {
		_, err := svc.Login(ctx, req)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, req.Email)
		require.Equal(t, pkgerrors.CodeUnauthorized, typed.Code(), req.Email)
		require.Equal(t, invalidCredentialsMessage, typed.Message())
	}
}
