package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Session is one user's live generation context. The turn slot admits
// at most one in-flight generation; lastActive drives orphan eviction.
type Session struct {
	userID       uint
	conversation Conversation
	turnSlot     chan struct{}

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SessionBroker owns the user-to-session registry. Each user has at
// most one session; its conversation is created exactly once, inside
// the registry critical section, so racing requests for the same user
// share a single generation context.
type SessionBroker struct {
	mu       sync.Mutex
	sessions map[uint]*Session

	engine      Engine
	policy      SamplingPolicy
	rejectBusy  bool
	turnTimeout time.Duration
	orphanTTL   time.Duration
	sweepEvery  time.Duration
	janitor     *cron.Cron
}

func NewSessionBroker(engine Engine, engineCfg *config.EngineConfig, sessCfg *config.SessionConfig) *SessionBroker {
	return &SessionBroker{
		sessions: make(map[uint]*Session),
		engine:   engine,
		policy: SamplingPolicy{
			Temperature: engineCfg.Temperature,
			MaxTokens:   engineCfg.MaxTokens,
			StopTokens:  engineCfg.StopTokens,
		},
		rejectBusy:  sessCfg.ConcurrentTurn == "reject",
		turnTimeout: time.Duration(sessCfg.TurnTimeoutSeconds) * time.Second,
		orphanTTL:   time.Duration(sessCfg.OrphanTTLMinutes) * time.Minute,
		sweepEvery:  time.Duration(sessCfg.SweepIntervalMinutes) * time.Minute,
	}
}

// GetOrCreate returns the user's session, creating it and its
// conversation if none exists.
func (b *SessionBroker) GetOrCreate(userID uint) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess, ok := b.sessions[userID]; ok {
		sess.touch()
		return sess, nil
	}

	conv, err := b.engine.NewConversation()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}

	sess := &Session{
		userID:       userID,
		conversation: conv,
		turnSlot:     make(chan struct{}, 1),
		lastActive:   time.Now(),
	}
	b.sessions[userID] = sess
	logger.Info().Uint("user_id", userID).Msg("session created")
	return sess, nil
}

// Send submits one chat turn and returns its fragment stream. A second
// turn arriving while one is generating either waits for it (serialize)
// or fails with ErrSessionBusy (reject), per configuration. Cancelling
// ctx abandons the turn but keeps the session registered so the user
// can reconnect; an engine failure removes the session instead.
func (b *SessionBroker) Send(ctx context.Context, userID uint, message string) (<-chan Fragment, error) {
	sess, err := b.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	if b.rejectBusy {
		select {
		case sess.turnSlot <- struct{}{}:
		default:
			return nil, ErrSessionBusy
		}
	} else {
		select {
		case sess.turnSlot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var turnCtx context.Context
	var cancel context.CancelFunc
	if b.turnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, b.turnTimeout)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}

	stream, err := sess.conversation.Send(turnCtx, message, b.policy)
	if err != nil {
		cancel()
		<-sess.turnSlot
		b.Remove(userID)
		return nil, fmt.Errorf("%w: %v", ErrEngineFailure, err)
	}

	out := make(chan Fragment)
	go func() {
		defer func() {
			cancel()
			<-sess.turnSlot
			sess.touch()
			close(out)
		}()

		for frag := range stream {
			if frag.Err != nil {
				logger.Warn().Err(frag.Err).Uint("user_id", userID).Msg("turn failed, dropping session")
				b.Remove(userID)
				emit(ctx, out, Fragment{Err: fmt.Errorf("%w: %v", ErrEngineFailure, frag.Err)})
				return
			}
			if !emit(ctx, out, frag) {
				return
			}
			if frag.Final {
				return
			}
		}
	}()
	return out, nil
}

// Complete ends the user's conversation and frees the session. A user
// with no active session gets ErrInvalidOperation.
func (b *SessionBroker) Complete(userID uint) error {
	b.mu.Lock()
	sess, ok := b.sessions[userID]
	if ok {
		delete(b.sessions, userID)
	}
	b.mu.Unlock()

	if !ok {
		return ErrInvalidOperation
	}

	if err := sess.conversation.Close(); err != nil {
		logger.Warn().Err(err).Uint("user_id", userID).Msg("conversation close failed")
	}
	logger.Info().Uint("user_id", userID).Msg("session completed")
	return nil
}

// Remove drops the user's session if present. Safe to call for users
// with no session.
func (b *SessionBroker) Remove(userID uint) {
	b.mu.Lock()
	sess, ok := b.sessions[userID]
	if ok {
		delete(b.sessions, userID)
	}
	b.mu.Unlock()

	if ok {
		sess.conversation.Close()
	}
}

// ActiveSessions reports the number of registered sessions.
func (b *SessionBroker) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// StartJanitor schedules periodic eviction of sessions idle longer than
// the orphan TTL. An orphan TTL <= 0 disables eviction.
func (b *SessionBroker) StartJanitor() {
	if b.orphanTTL <= 0 || b.sweepEvery <= 0 {
		return
	}

	b.janitor = cron.New()
	b.janitor.AddFunc(fmt.Sprintf("@every %s", b.sweepEvery), b.sweepOrphans)
	b.janitor.Start()
	logger.Info().
		Dur("orphan_ttl", b.orphanTTL).
		Dur("sweep_interval", b.sweepEvery).
		Msg("session janitor started")
}

// StopJanitor stops the eviction scheduler.
func (b *SessionBroker) StopJanitor() {
	if b.janitor == nil {
		return
	}
	b.janitor.Stop()
}

// sweepOrphans evicts idle sessions. A session mid-turn is never
// evicted regardless of its last-active timestamp.
func (b *SessionBroker) sweepOrphans() {
	cutoff := time.Now().Add(-b.orphanTTL)

	b.mu.Lock()
	var evicted []*Session
	for userID, sess := range b.sessions {
		select {
		case sess.turnSlot <- struct{}{}:
		default:
			continue
		}

		if sess.idleSince().Before(cutoff) {
			delete(b.sessions, userID)
			evicted = append(evicted, sess)
		}
		<-sess.turnSlot
	}
	b.mu.Unlock()

	for _, sess := range evicted {
		sess.conversation.Close()
		logger.Info().Uint("user_id", sess.userID).Msg("orphaned session evicted")
	}
}
