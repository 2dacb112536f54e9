package store

import (
	"context"
	"errors"

	"github.com/chatrelay/backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when inserting a user whose username is
// already taken, case-insensitively. The store enforces this even when
// two inserts race past a lookup.
var ErrDuplicate = errors.New("record already exists")

// CredentialStore persists user records and the single refresh-token
// record each user may hold. Mutations that touch both a user and a
// token record must be atomic; implementations roll back fully on
// failure.
type CredentialStore interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error

	GetRefreshRecord(ctx context.Context, userID uint) (*models.RefreshToken, error)
	// UpsertRefreshRecord replaces any existing record for the same user.
	UpsertRefreshRecord(ctx context.Context, record *models.RefreshToken) error
}
