package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/rbac"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:       "crew-7",
		Role:      rbac.RoleInspector,
		ProjectID: "proj-1",
		JTI:       "jti-1",
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "crew-7" || claims.Role != rbac.RoleInspector || claims.ProjectID != "proj-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  "crew-7",
		Role: rbac.RoleEditor,
		JTI:  "jti-1",
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), Claims{Sub: "crew-7", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken() error = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseToken([]byte("secret"), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ParseToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticator(t *testing.T) {
	if NewAuthenticator("", " ").Enabled() {
		t.Fatal("expected authenticator without credentials to be disabled")
	}

	a := NewAuthenticator("static-token", "signing-secret")
	claims, err := a.Authenticate("static-token")
	if err != nil || claims.Role != rbac.RoleAdmin {
		t.Fatalf("static token: claims=%+v err=%v", claims, err)
	}
	if _, err := a.Authenticate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token error = %v", err)
	}

	issued, err := IssueToken([]byte("signing-secret"), Claims{
		Sub:       "crew-7",
		Role:      "superuser",
		ProjectID: "proj-1",
		JTI:       "jti-2",
		Exp:       time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err = a.Authenticate(issued)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if claims.Role != rbac.RoleViewer {
		t.Fatalf("unknown role should fall back to viewer, got %q", claims.Role)
	}

	staticOnly := NewAuthenticator("static-token", "")
	if _, err := staticOnly.Authenticate(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("signed token without secret error = %v", err)
	}
}

func TestClaimsAllows(t *testing.T) {
	scoped := Claims{Role: rbac.RoleEditor, ProjectID: "proj-1"}
	if !scoped.Allows("proj-1", rbac.ActionEdit) {
		t.Fatal("editor should edit its own project")
	}
	if scoped.Allows("proj-2", rbac.ActionRead) {
		t.Fatal("scoped claims should not reach another project")
	}
	if scoped.Allows("", rbac.ActionRecord) {
		t.Fatal("scoped claims should not use unscoped routes")
	}
	if scoped.Allows("proj-1", rbac.ActionAdmin) {
		t.Fatal("editor should not overwrite stored layouts")
	}
	global := Claims{Role: rbac.RoleInspector}
	if !global.Allows("", rbac.ActionRecord) {
		t.Fatal("unscoped inspector should create records")
	}
}
