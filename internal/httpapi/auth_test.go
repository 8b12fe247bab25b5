package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	archivemem "apotekku/backend/internal/archive/memory"
	"apotekku/backend/internal/domain"
)

func TestLoginAndParseToken(t *testing.T) {
	arch := archivemem.NewSeeded()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, arch)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "Sari", Password: "pharmacist123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RolePharmacist {
		t.Fatalf("expected pharmacist role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "sari" || actor.Role != domain.RolePharmacist {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if actor.DisplayName != "Sari Wulandari" {
		t.Fatalf("expected display name in claims, got %q", actor.DisplayName)
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	arch := archivemem.NewSeeded()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, arch)

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "sari", Password: "wrong"}); err == nil {
		t.Fatalf("expected error for wrong password")
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "whatever"}); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestLogin_UpgradesLegacyPlainPassword(t *testing.T) {
	arch := archivemem.NewSeeded()
	if err := arch.CreateUser(context.Background(), domain.UserAccount{
		Username:     "legacy",
		DisplayName:  "Legacy User",
		Role:         domain.RolePharmacist,
		PasswordHash: "plain-secret",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, arch)
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("legacy login: %v", err)
	}

	stored, err := arch.GetUserByUsername(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !isPasswordHash(stored.PasswordHash) {
		t.Fatalf("expected upgraded bcrypt hash, got %q", stored.PasswordHash)
	}

	// And the upgraded credential still works.
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestParseToken_RejectsTampered(t *testing.T) {
	arch := archivemem.NewSeeded()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, arch)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	other := NewAuthManager("a-completely-different-secret-key!!", time.Hour, arch)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("tampered token must be rejected")
	}
}

func TestCreateUser_Validation(t *testing.T) {
	arch := archivemem.NewSeeded()
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour, arch)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateUserRequest
	}{
		{"short username", domain.CreateUserRequest{Username: "ab", Password: "secret123"}},
		{"username with spaces", domain.CreateUserRequest{Username: "two words", Password: "secret123"}},
		{"short password", domain.CreateUserRequest{Username: "newuser", Password: "abc"}},
		{"unknown role", domain.CreateUserRequest{Username: "newuser", Password: "secret123", Role: "owner"}},
		{"duplicate", domain.CreateUserRequest{Username: "sari", Password: "secret123"}},
	}
	for _, tc := range cases {
		if _, err := auth.CreateUser(ctx, tc.req); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	user, err := auth.CreateUser(ctx, domain.CreateUserRequest{
		Username:    "Dewi",
		DisplayName: "Dewi Lestari",
		Password:    "secret123",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Username != "dewi" {
		t.Fatalf("expected normalized username, got %q", user.Username)
	}
	if user.Role != domain.RolePharmacist {
		t.Fatalf("expected default pharmacist role, got %q", user.Role)
	}
	if strings.Contains(user.PasswordHash, "secret123") {
		t.Fatalf("password must not be stored in plain text")
	}
}
