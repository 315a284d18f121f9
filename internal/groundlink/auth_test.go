package groundlink

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret string, expired bool) string {
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ground-control",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAbortDisabledWithoutSecret(t *testing.T) {
	auth := newAbortAuthenticator("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/abort", nil)
	req.Header.Set("Authorization", "Bearer anything")
	if err := auth.authenticate(req); err == nil {
		t.Fatal("expected abort to be disabled with no secret configured")
	}
}

func TestAbortRejectsMissingBearer(t *testing.T) {
	auth := newAbortAuthenticator("topsecret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/abort", nil)
	if err := auth.authenticate(req); err == nil {
		t.Fatal("expected missing bearer token to fail")
	}
}

func TestAbortRejectsWrongSecret(t *testing.T) {
	auth := newAbortAuthenticator("topsecret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/abort", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrongsecret", false))
	if err := auth.authenticate(req); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestAbortRejectsExpiredToken(t *testing.T) {
	auth := newAbortAuthenticator("topsecret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/abort", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "topsecret", true))
	if err := auth.authenticate(req); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestAbortAcceptsValidToken(t *testing.T) {
	auth := newAbortAuthenticator("topsecret")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/abort", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "topsecret", false))
	if err := auth.authenticate(req); err != nil {
		t.Fatalf("expected valid token to pass: %v", err)
	}
}
