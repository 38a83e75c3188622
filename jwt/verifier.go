package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the accepted token algorithm.
type SigningMethod string

const (
	// MethodEd25519 accepts EdDSA tokens verified with a public key.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 accepts HMAC-SHA256 tokens verified with a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrTokenInvalid covers any verification failure: bad signature, wrong
	// algorithm, expired, malformed, or missing subject.
	ErrTokenInvalid = errors.New("invalid token")
)

// Config holds verifier tuning. Key material depends on the method: HS256
// requires Secret, ed25519 requires PublicKey (raw 32 bytes or PEM).
type Config struct {
	Method    SigningMethod
	Secret    []byte
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

// Verifier validates bearer tokens and extracts the subject user ID. It is
// immutable after construction and safe for concurrent use.
type Verifier struct {
	config Config
	edKey  ed25519.PublicKey
}

// NewVerifier validates the configuration and prepares key material.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	v := &Verifier{config: cfg}
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a shared secret")
		}
	case MethodEd25519:
		key, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		v.edKey = key
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Method)
	}
	return v, nil
}

// Verify checks the token and returns its subject claim. All failures wrap
// [ErrTokenInvalid] so callers can classify with errors.Is.
func (v *Verifier) Verify(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.validMethods()),
		jwt.WithExpirationRequired(),
	}
	if v.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.Parse(token, v.keyFunc, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrTokenInvalid
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrTokenInvalid
	}
	return sub, nil
}

func (v *Verifier) validMethods() []string {
	if v.config.Method == MethodHS256 {
		return []string{jwt.SigningMethodHS256.Alg()}
	}
	return []string{jwt.SigningMethodEdDSA.Alg()}
}

func (v *Verifier) keyFunc(_ *jwt.Token) (any, error) {
	if v.config.Method == MethodHS256 {
		return v.config.Secret, nil
	}
	return v.edKey, nil
}

func parseEdPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == 0 {
		return nil, errors.New("ed25519 requires a public key")
	}
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("ed25519 public key is neither raw nor PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse ed25519 public key: %w", err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("PEM block does not contain an ed25519 key")
	}
	return key, nil
}
