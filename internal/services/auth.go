package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/chatrelay/backend/internal/models"
	"github.com/chatrelay/backend/internal/store"
	"github.com/chatrelay/backend/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the username does not exist, so a
// failed login costs one bcrypt verification either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chatrelay-timing-pad"), bcrypt.DefaultCost)

// AuthService coordinates registration, login, refresh, revocation and
// token verification. It combines the credential store and the token
// authority and carries no transport concerns.
type AuthService struct {
	store  store.CredentialStore
	tokens *TokenAuthority
	audit  *AuditService
}

func NewAuthService(credStore store.CredentialStore, tokens *TokenAuthority, audit *AuditService) *AuthService {
	return &AuthService{
		store:  credStore,
		tokens: tokens,
		audit:  audit,
	}
}

// Credentials is the result of a successful register, login or refresh.
type Credentials struct {
	AccessToken   string `json:"access_token"`
	RefreshSecret string `json:"refresh_token"`
	UserID        uint   `json:"user_id"`
	ExpiresIn     int64  `json:"expires_in"`
}

// Register creates a new user and issues the first token pair. The
// username check is case-insensitive. If the refresh record cannot be
// persisted after the user row was created, the user remains and the
// call fails with ErrTokenIssuance; the client recovers by logging in.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*Credentials, error) {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		s.audit.Record(ctx, "register_conflict", nil, username, "username taken")
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		LastLogin:    &now,
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		// The store's uniqueness guarantee catches registrations that
		// raced past the lookup above.
		if errors.Is(err, store.ErrDuplicate) {
			s.audit.Record(ctx, "register_conflict", nil, username, "username taken")
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	creds, err := s.issueTokens(ctx, user)
	if err != nil {
		logger.Error().Err(err).Uint("user_id", user.ID).Msg("token issuance failed after user creation")
		s.audit.Record(ctx, "register_token_failure", &user.ID, username, err.Error())
		return nil, ErrTokenIssuance
	}

	s.audit.Record(ctx, "register", &user.ID, username, "")
	return creds, nil
}

// Login authenticates a user by username and password. Unknown user and
// wrong password return the same error and cost the same bcrypt work;
// the transport layer additionally pads response latency.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Credentials, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.audit.Record(ctx, "login_failed", nil, username, "unknown username")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit.Record(ctx, "login_failed", &user.ID, username, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	creds, err := s.issueTokens(ctx, user)
	if err != nil {
		s.audit.Record(ctx, "login_token_failure", &user.ID, username, err.Error())
		return nil, ErrTokenIssuance
	}

	s.audit.Record(ctx, "login", &user.ID, username, "")
	return creds, nil
}

// Refresh validates the provided secret against the stored record and,
// on success, rotates to a fresh pair. Rotation is single-use: the old
// secret is unusable once the new record is persisted. Expiry, digest
// and revocation checks all run so the audit trail names the true
// cause, while the caller sees one undifferentiated ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, userID uint, providedSecret string) (*Credentials, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.audit.Record(ctx, "refresh_denied", &userID, "", "user not found")
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	record, err := s.store.GetRefreshRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.audit.Record(ctx, "refresh_denied", &userID, user.Username, "no refresh record")
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	expired := time.Now().After(record.ExpiresAt)
	digest := DigestSecret(providedSecret)
	mismatch := subtle.ConstantTimeCompare([]byte(digest), []byte(record.SecretDigest)) != 1
	revoked := record.Revoked

	if expired {
		s.audit.Record(ctx, "refresh_denied", &userID, user.Username, "record expired")
	}
	if mismatch {
		s.audit.Record(ctx, "refresh_denied", &userID, user.Username, "secret digest mismatch")
	}
	if revoked {
		s.audit.Record(ctx, "refresh_denied", &userID, user.Username, "record revoked")
	}
	if expired || mismatch || revoked {
		return nil, ErrUnauthorized
	}

	accessToken, newSecret, err := s.tokens.Rotate(user.ID, user.Username)
	if err != nil {
		return nil, ErrTokenIssuance
	}

	newRecord := &models.RefreshToken{
		UserID:       user.ID,
		SecretDigest: DigestSecret(newSecret),
		ExpiresAt:    s.tokens.RefreshExpiry(),
	}
	if err := s.store.UpsertRefreshRecord(ctx, newRecord); err != nil {
		return nil, ErrTokenIssuance
	}

	s.audit.Record(ctx, "refresh", &userID, user.Username, "")
	return &Credentials{
		AccessToken:   accessToken,
		RefreshSecret: newSecret,
		UserID:        user.ID,
		ExpiresIn:     int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Revoke marks the user's refresh record revoked. Revoking a missing or
// already-revoked record fails with ErrInvalidOperation; an issued
// access token keeps verifying until its own expiry elapses.
func (s *AuthService) Revoke(ctx context.Context, userID uint) error {
	record, err := s.store.GetRefreshRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.audit.Record(ctx, "revoke_rejected", &userID, "", "no refresh record")
			return ErrInvalidOperation
		}
		return err
	}
	if record.Revoked {
		s.audit.Record(ctx, "revoke_rejected", &userID, "", "already revoked")
		return ErrInvalidOperation
	}

	record.Revoked = true
	if err := s.store.UpsertRefreshRecord(ctx, record); err != nil {
		return err
	}

	s.audit.Record(ctx, "revoke", &userID, "", "")
	return nil
}

// Verify delegates access-token validation to the token authority.
func (s *AuthService) Verify(accessToken string) (*Claims, error) {
	return s.tokens.Validate(accessToken)
}

// GetUser loads a user by id.
func (s *AuthService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*Credentials, error) {
	accessToken, secret, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		UserID:       user.ID,
		SecretDigest: DigestSecret(secret),
		ExpiresAt:    s.tokens.RefreshExpiry(),
	}
	if err := s.store.UpsertRefreshRecord(ctx, record); err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:   accessToken,
		RefreshSecret: secret,
		UserID:        user.ID,
		ExpiresIn:     int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}
