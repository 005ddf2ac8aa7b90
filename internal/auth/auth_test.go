package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

func hsToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": "user-123",
		"aud": "tada",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".tada")
	c := NewCredentials(dir)
	c.getenv = func(string) string { return "" }

	ti, err := c.Get()
	if err != nil || ti != nil {
		t.Fatalf("expected no token, got %+v %v", ti, err)
	}

	token := hsToken(t, "s", validClaims())
	saved, err := c.Set("Bearer " + token)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if saved.ExpiresAt == nil {
		t.Fatal("expected expiry from the exp claim")
	}
	info, err := os.Stat(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected permissions %v", perm)
	}

	ti, err = c.Get()
	if err != nil || ti == nil {
		t.Fatalf("get: %+v %v", ti, err)
	}
	if ti.Token != token || ti.Source != "file" {
		t.Fatalf("unexpected token info %+v", ti)
	}

	if err := c.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ti, _ := c.Get(); ti != nil {
		t.Fatalf("expected logged out, got %+v", ti)
	}
}

func TestCredentialsEnvOverride(t *testing.T) {
	c := NewCredentials(t.TempDir())
	c.getenv = func(k string) string {
		if k == EnvToken {
			return " bearer abc "
		}
		return ""
	}
	ti, err := c.Get()
	if err != nil || ti == nil || ti.Token != "abc" || ti.Source != "env" {
		t.Fatalf("unexpected %+v %v", ti, err)
	}
}

func TestCredentialsRejectEmpty(t *testing.T) {
	if _, err := NewCredentials(t.TempDir()).Set("   "); err == nil {
		t.Fatal("expected error")
	}
}

func TestCredentialsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCredentials(dir)
	c.getenv = func(string) string { return "" }
	if err := os.WriteFile(c.Path(), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{in: "", err: ErrMissingToken},
		{in: "   ", err: ErrMissingToken},
		{in: "Bearer a.b.c", want: "a.b.c"},
		{in: "bearer  a.b.c ", want: "a.b.c"},
		{in: "Basic a.b.c", err: ErrBadToken},
		{in: "Bearer abc", err: ErrBadToken},
		{in: "Bearer ....", err: ErrBadToken},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.in)
		if err != tt.err || got != tt.want {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tt.in, got, err, tt.want, tt.err)
		}
	}
}

func TestHS256Actor(t *testing.T) {
	v, err := NewHS256([]byte("test-secret"), "tada", "https://issuer/")
	if err != nil {
		t.Fatal(err)
	}
	actor, err := v.ActorFromHeader("Bearer " + hsToken(t, "test-secret", validClaims()))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if actor != "user-123" {
		t.Fatalf("unexpected actor %q", actor)
	}
}

func TestHS256Rejects(t *testing.T) {
	v, _ := NewHS256([]byte("test-secret"), "tada", "https://issuer/")

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAud := validClaims()
	wrongAud["aud"] = "other"
	wrongIss := validClaims()
	wrongIss["iss"] = "https://evil/"
	noSubject := validClaims()
	delete(noSubject, "sub")

	tests := map[string]string{
		"wrong secret": hsToken(t, "other-secret", validClaims()),
		"expired":      hsToken(t, "test-secret", expired),
		"audience":     hsToken(t, "test-secret", wrongAud),
		"issuer":       hsToken(t, "test-secret", wrongIss),
		"no subject":   hsToken(t, "test-secret", noSubject),
		"garbage":      "a.b.c",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Actor(token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNameClaimFallback(t *testing.T) {
	v, _ := NewHS256([]byte("k"), "", "")
	actor, err := v.Actor(hsToken(t, "k", jwt.MapClaims{"name": "Ada"}))
	if err != nil || actor != "Ada" {
		t.Fatalf("got %q %v", actor, err)
	}
}

func TestNewHS256RequiresSecret(t *testing.T) {
	if _, err := NewHS256(nil, "", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestJWKSActor(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	set := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": "k1",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	raw, _ := json.Marshal(set)
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	v := newKeyfuncVerifier(jwks, "tada", "")
	defer v.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	actor, err := v.Actor(signed)
	if err != nil || actor != "user-123" {
		t.Fatalf("got %q %v", actor, err)
	}

	if _, err := v.Actor(hsToken(t, "k", validClaims())); err == nil {
		t.Fatal("HS256 token must not pass the RS256 verifier")
	}
}

func TestInspect(t *testing.T) {
	c, err := Inspect(hsToken(t, "whatever", validClaims()))
	if err != nil {
		t.Fatal(err)
	}
	if c.Actor != "user-123" || c.Issuer != "https://issuer/" || c.ExpiresAt == nil {
		t.Fatalf("unexpected claims %+v", c)
	}
	if _, err := Inspect("opaque"); err == nil {
		t.Fatal("expected error for a non-JWT token")
	}
}
