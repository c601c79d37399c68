package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

func signRS256(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func validClaims(sub string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "auth-service",
			Audience:  jwt.ClaimStrings{"chat"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Username: "ann",
	}
}

func TestAuthenticate_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	// the public key goes through the PEM loader like in production
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{PublicKeyPath: path, Issuer: "auth-service", Audience: "chat", ClockSkew: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	expired := validClaims("42")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongAud := validClaims("42")
	wrongAud.Audience = jwt.ClaimStrings{"other"}
	noName := validClaims("42")
	noName.Username = ""

	tests := []struct {
		name     string
		token    string
		wantUser int64
		wantName string
	}{
		{"valid", signRS256(t, key, validClaims("42")), 42, "ann"},
		{"falls back to claimed name", signRS256(t, key, noName), 42, "visitor"},
		{"expired", signRS256(t, key, expired), 0, "visitor"},
		{"wrong audience", signRS256(t, key, wrongAud), 0, "visitor"},
		{"non numeric subject", signRS256(t, key, validClaims("abc")), 0, "visitor"},
		{"garbage", "not.a.jwt", 0, "visitor"},
		{"empty", "", 0, "visitor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := a.Authenticate(ctx, tt.token, " visitor ")
			switch v := id.(type) {
			case domain.Authenticated:
				if tt.wantUser == 0 || v.UserID != tt.wantUser || v.Username != tt.wantName {
					t.Fatalf("got %+v", v)
				}
			case domain.Guest:
				if tt.wantUser != 0 {
					t.Fatalf("expected user %d, got guest", tt.wantUser)
				}
				if v.EphemeralID == "" || v.Name != tt.wantName {
					t.Fatalf("guest = %+v", v)
				}
			}
		})
	}
}

func TestAuthenticate_HS256RejectsOtherAlgorithms(t *testing.T) {
	a, err := New(Config{Secret: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}

	good, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("7")).SignedString([]byte("s3cret"))
	if _, err := a.Principal(good); err != nil {
		t.Fatalf("valid HS256: %v", err)
	}

	bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims("7")).SignedString([]byte("s3cret"))
	if _, err := a.Principal(bad); err == nil {
		t.Fatal("HS512 must be rejected")
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("7")).SignedString([]byte("other"))
	if !a.Authenticate(context.Background(), forged, "").IsGuest() {
		t.Fatal("wrong secret must degrade to guest")
	}
}

func TestAuthenticate_NoKeyConfigured(t *testing.T) {
	a, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify("x"); err != ErrNoKey {
		t.Fatalf("err = %v", err)
	}
	if !a.Authenticate(context.Background(), "x", "n").IsGuest() {
		t.Fatal("expected guest")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
