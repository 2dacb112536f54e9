package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenAuthority signs and validates access tokens and generates opaque
// refresh secrets. It holds the process-wide RSA signing key, loaded
// once at startup. It does not decide whether a rotation is allowed;
// that policy belongs to AuthService.
type TokenAuthority struct {
	key        *rsa.PrivateKey
	audience   string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Claims are the verified contents of an access token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed subject claim: %w", err)
	}
	return uint(id), nil
}

// NewTokenAuthority loads the RSA private key from the configured PEM
// file. A missing or unparsable key is a startup failure, never a
// per-request one.
func NewTokenAuthority(cfg *config.JWTConfig) (*TokenAuthority, error) {
	pemData, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("signing key unavailable at %s: %w", cfg.PrivateKeyPath, err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("signing key invalid: %w", err)
	}

	return NewTokenAuthorityWithKey(key, cfg), nil
}

// NewTokenAuthorityWithKey builds a TokenAuthority around an already
// loaded key.
func NewTokenAuthorityWithKey(key *rsa.PrivateKey, cfg *config.JWTConfig) *TokenAuthority {
	return &TokenAuthority{
		key:        key,
		audience:   cfg.Audience,
		issuer:     cfg.Issuer,
		accessTTL:  time.Duration(cfg.AccessTokenMinutes) * time.Minute,
		refreshTTL: time.Duration(cfg.RefreshTokenDays) * 24 * time.Hour,
	}
}

// Issue produces a signed access token and a fresh refresh secret for
// the given user. The secret is returned raw; callers persist only its
// digest.
func (a *TokenAuthority) Issue(userID uint, username string) (string, string, error) {
	accessToken, err := a.signAccessToken(userID, username)
	if err != nil {
		return "", "", err
	}

	secret, err := newRefreshSecret()
	if err != nil {
		return "", "", err
	}

	return accessToken, secret, nil
}

// Rotate issues a fresh access/refresh pair. It deliberately does not
// check the validity of the previous secret.
func (a *TokenAuthority) Rotate(userID uint, username string) (string, string, error) {
	return a.Issue(userID, username)
}

// Validate verifies signature, signing algorithm, audience, issuer and
// expiration with zero clock-skew tolerance. Every failure collapses to
// ErrInvalidToken; the cause is logged for diagnostics only.
func (a *TokenAuthority) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return &a.key.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	)
	if err != nil || !token.Valid {
		logger.Warn().Err(err).Msg("access token validation failed")
		return nil, ErrInvalidToken
	}

	if _, err := claims.UserID(); err != nil {
		logger.Warn().Err(err).Msg("access token subject invalid")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// AccessTTL returns the configured access-token lifetime.
func (a *TokenAuthority) AccessTTL() time.Duration {
	return a.accessTTL
}

// RefreshExpiry returns the absolute expiration instant for a refresh
// record created now.
func (a *TokenAuthority) RefreshExpiry() time.Time {
	return time.Now().Add(a.refreshTTL)
}

func (a *TokenAuthority) signAccessToken(userID uint, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  jwt.ClaimStrings{a.audience},
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.key)
}

// newRefreshSecret returns a base64url-encoded 256-bit random value.
func newRefreshSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DigestSecret returns the SHA-256 digest under which a refresh secret
// is persisted. The raw secret is never stored.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
