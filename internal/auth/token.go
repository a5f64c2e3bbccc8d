package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/rbac"
)

// Claims identify a caller. An empty ProjectID grants access to every
// project.
type Claims struct {
	Sub       string    `json:"sub"`
	Role      rbac.Role `json:"role"`
	ProjectID string    `json:"projectId,omitempty"`
	JTI       string    `json:"jti"`
	Exp       int64     `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrMissingToken = errors.New("missing token")
)

func IssueToken(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature := sign(secret, payload)
	return payload + "." + signature, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalidToken
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	claims.Role = rbac.Normalize(string(claims.Role))
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}

// Authenticator accepts either the static service token, which acts as an
// admin, or a token signed with the shared secret.
type Authenticator struct {
	static []byte
	secret []byte
}

func NewAuthenticator(staticToken, signingSecret string) *Authenticator {
	return &Authenticator{
		static: []byte(strings.TrimSpace(staticToken)),
		secret: []byte(strings.TrimSpace(signingSecret)),
	}
}

// Enabled reports whether any credential is configured. A disabled
// authenticator lets every request through.
func (a *Authenticator) Enabled() bool {
	return len(a.static) > 0 || len(a.secret) > 0
}

func (a *Authenticator) Authenticate(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}
	if len(a.static) > 0 && subtle.ConstantTimeCompare([]byte(token), a.static) == 1 {
		return Claims{Sub: "service", Role: rbac.RoleAdmin}, nil
	}
	if len(a.secret) == 0 {
		return Claims{}, ErrInvalidToken
	}
	return ParseToken(a.secret, token)
}

// Allows reports whether the claims permit action on projectID. An empty
// projectID names a route that is not scoped to one project, which only
// unscoped claims may use.
func (c Claims) Allows(projectID string, action rbac.Action) bool {
	if !rbac.Can(c.Role, action) {
		return false
	}
	return c.ProjectID == "" || c.ProjectID == projectID
}
