package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/foyerlink/foyer-core/internal/auth"
)

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)

	var resp loginResponse
	status := env.request(t, http.MethodPost, "/api/v1/auth/login", "",
		loginRequest{Username: "guard1", Password: testPassword}, &resp)

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %q", resp.TokenType)
	}
	if resp.User == nil || resp.User.ID != guard.ID {
		t.Error("expected the authenticated user in the response")
	}

	// The issued token must be accepted by the protected surface.
	var me auth.User
	status = env.request(t, http.MethodGet, "/api/v1/auth/me", resp.AccessToken, nil, &me)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", status)
	}
	if me.Username != "guard1" {
		t.Errorf("expected guard1, got %q", me.Username)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "guard1", auth.RoleGuard)

	status := env.request(t, http.MethodPost, "/api/v1/auth/login", "",
		loginRequest{Username: "guard1", Password: "wrong"}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestLogin_UnknownUserSameResponse(t *testing.T) {
	env := newTestEnv(t)

	var errResp Error
	status := env.request(t, http.MethodPost, "/api/v1/auth/login", "",
		loginRequest{Username: "nobody", Password: testPassword}, &errResp)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if errResp.Message != "invalid credentials" {
		t.Errorf("unknown user must not be distinguishable, got %q", errResp.Message)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "former", auth.RoleHost)
	user.IsActive = false
	if err := env.userRepo.Update(context.Background(), user); err != nil {
		t.Fatalf("deactivating user: %v", err)
	}

	status := env.request(t, http.MethodPost, "/api/v1/auth/login", "",
		loginRequest{Username: "former", Password: testPassword}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	status := env.request(t, http.MethodGet, "/api/v1/visitors/", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status = env.request(t, http.MethodGet, "/api/v1/visitors/", "not-a-jwt", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", status)
	}
}

func TestUserRoutes_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)

	status := env.request(t, http.MethodGet, "/api/v1/users/", env.tokenFor(t, guard), nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for guard on /users, got %d", status)
	}

	admin := env.seedUser(t, "admin1", auth.RoleAdmin)
	status = env.request(t, http.MethodGet, "/api/v1/users/", env.tokenFor(t, admin), nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for admin on /users, got %d", status)
	}
}
