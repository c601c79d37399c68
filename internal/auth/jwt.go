package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var (
	ErrNoKey          = errors.New("no verification key configured")
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidSubject = errors.New("invalid token subject")
)

type Config struct {
	PublicKeyPath string // RS256
	Secret        string // HS256, used when no public key is set
	Issuer        string
	Audience      string
	ClockSkew     time.Duration
}

// Claims are the access-token claims issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Authenticator turns bearer tokens into identities.
type Authenticator struct {
	key    any
	parser *jwt.Parser
}

func New(cfg Config) (*Authenticator, error) {
	var key any
	switch {
	case cfg.PublicKeyPath != "":
		pub, err := LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load public key: %w", err)
		}
		key = pub
	case cfg.Secret != "":
		key = []byte(cfg.Secret)
	default:
		slog.Warn("auth: no jwt key configured, every connection is a guest")
	}
	return NewWithKey(key, cfg), nil
}

// NewWithKey accepts an *rsa.PublicKey (RS256) or a []byte secret (HS256).
func NewWithKey(key any, cfg Config) *Authenticator {
	opts := []jwt.ParserOption{jwt.WithLeeway(cfg.ClockSkew), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	switch key.(type) {
	case *rsa.PublicKey:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	case []byte:
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}
	return &Authenticator{key: key, parser: jwt.NewParser(opts...)}
}

// Verify validates signature, issuer, audience and expiry.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	if a.key == nil {
		return nil, ErrNoKey
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

// Principal verifies the token and returns the authenticated identity.
func (a *Authenticator) Principal(token string) (domain.Authenticated, error) {
	claims, err := a.Verify(token)
	if err != nil {
		return domain.Authenticated{}, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Authenticated{}, ErrInvalidSubject
	}
	name := claims.Username
	if name == "" {
		name = claims.Name
	}
	return domain.Authenticated{UserID: id, Username: name}, nil
}

// Authenticate never fails: a missing or bad token degrades to a Guest with
// the claimed display name.
func (a *Authenticator) Authenticate(_ context.Context, token, claimedName string) domain.Identity {
	claimedName = strings.TrimSpace(claimedName)
	if strings.TrimSpace(token) != "" {
		p, err := a.Principal(token)
		if err == nil {
			if p.Username == "" {
				p.Username = claimedName
			}
			return p
		}
		slog.Warn("auth: token rejected, continuing as guest", "err", err)
	}
	return domain.Guest{EphemeralID: uuid.NewString(), Name: claimedName}
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
