package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chatrelay/backend/internal/models"
)

// MemoryStore is a mutex-guarded in-memory CredentialStore. Used for
// tests and for running the server without a database (driver "memory").
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   uint
	users    map[uint]models.User
	byName   map[string]uint // lowercased username -> id
	refresh  map[uint]models.RefreshToken
	refreshN uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uint]models.User),
		byName:  make(map[string]uint),
		refresh: make(map[uint]models.RefreshToken),
	}
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *MemoryStore) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same guarantee as the unique index on the normalized column.
	if owner, ok := s.byName[strings.ToLower(user.Username)]; ok && owner != user.ID {
		return ErrDuplicate
	}

	now := time.Now()
	if user.ID == 0 {
		s.nextID++
		user.ID = s.nextID
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if existing, ok := s.users[user.ID]; ok {
		delete(s.byName, strings.ToLower(existing.Username))
	}
	s.users[user.ID] = *user
	s.byName[strings.ToLower(user.Username)] = user.ID
	return nil
}

func (s *MemoryStore) GetRefreshRecord(_ context.Context, userID uint) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.refresh[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStore) UpsertRefreshRecord(_ context.Context, record *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.refresh[record.UserID]; ok {
		record.ID = existing.ID
	} else {
		s.refreshN++
		record.ID = s.refreshN
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.refresh[record.UserID] = *record
	return nil
}
