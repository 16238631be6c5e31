// Package auth mints and verifies short-lived admin grants. Template
// mutations and feedback review are admin-only; the transport layers
// verify a grant before delegating to the core services, which stay
// grant-agnostic.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	"github.com/jsantora/replycore/internal/platform/id"
)

// ScopeAdmin marks a grant allowed to mutate templates and review
// feedback.
const ScopeAdmin = "admin"

// DefaultGrantTTL bounds how long a minted grant stays valid.
const DefaultGrantTTL = 15 * time.Minute

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"REPLYCORE_GRANT_ISSUER"`
	Audience  string `env:"REPLYCORE_GRANT_AUDIENCE"`
	PublicKey string `env:"REPLYCORE_GRANT_PUBLIC_KEY"`
}

// VerifierConfig defines how admin grants are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Claims captures validated admin grant claims.
type Claims struct {
	Issuer    string
	Audience  []string
	Subject   string
	Scope     string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// LoadVerifierConfigFromEnv reads grant verification configuration.
func LoadVerifierConfigFromEnv(now func() time.Time) (VerifierConfig, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return VerifierConfig{}, fmt.Errorf("parse grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return VerifierConfig{}, fmt.Errorf("REPLYCORE_GRANT_ISSUER is required")
	}
	if audience == "" {
		return VerifierConfig{}, fmt.Errorf("REPLYCORE_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return VerifierConfig{}, fmt.Errorf("REPLYCORE_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := DecodeKey(publicKey)
	if err != nil {
		return VerifierConfig{}, fmt.Errorf("decode grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return VerifierConfig{}, fmt.Errorf("grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return VerifierConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// MintParams defines the identity of a minted grant.
type MintParams struct {
	Issuer   string
	Audience string
	Subject  string
	TTL      time.Duration
	Now      func() time.Time
}

// Mint signs a new admin grant with the given ed25519 private key.
func Mint(key ed25519.PrivateKey, params MintParams) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("grant private key must be %d bytes", ed25519.PrivateKeySize)
	}
	issuer := strings.TrimSpace(params.Issuer)
	audience := strings.TrimSpace(params.Audience)
	subject := strings.TrimSpace(params.Subject)
	if issuer == "" || audience == "" || subject == "" {
		return "", errors.New("issuer, audience and subject are required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}
	jwtID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}

	issuedAt := now().UTC()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        jwtID,
		},
		Scope: ScopeAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
}

// Verify checks a grant token's signature and claims.
func Verify(grant string, cfg VerifierConfig) (Claims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return Claims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("grant verifier is not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"admin grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"admin grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.Scope != ScopeAdmin {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"admin grant scope mismatch",
			map[string]string{"Field": "scope"},
		)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant subject is required")
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeGrantExpired, "admin grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant not active yet")
	}

	claims := Claims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		Subject:   parsed.Subject,
		Scope:     parsed.Scope,
		ExpiresAt: exp,
		JWTID:     parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeGrantInvalid, "admin grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeGrantInvalid, "admin grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeGrantInvalid, "admin grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

// DecodeKey decodes a base64 key, accepting raw and padded encodings.
func DecodeKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

// EncodeKey encodes key material for env transport.
func EncodeKey(key []byte) string {
	return base64.RawStdEncoding.EncodeToString(key)
}
