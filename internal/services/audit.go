package services

import (
	"context"
	"time"

	"github.com/chatrelay/backend/internal/models"
	"github.com/chatrelay/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// clientIPKey carries the originating client IP from the transport
// layer into audit records.
type clientIPKey struct{}

// WithClientIP annotates a context with the caller's IP address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// AuditService persists the security-event trail: registration, login
// outcomes, refresh denials and revocations. The detail column carries
// the internal cause that the API response deliberately omits.
type AuditService struct {
	db            *gorm.DB
	retentionDays int
	cron          *cron.Cron
}

func NewAuditService(db *gorm.DB, retentionDays int) *AuditService {
	return &AuditService{db: db, retentionDays: retentionDays}
}

// Record writes one audit row. A nil receiver or nil db is a no-op so
// services can run without an audit backend (tests, memory store).
func (s *AuditService) Record(ctx context.Context, event string, userID *uint, username, detail string) {
	if s == nil || s.db == nil {
		return
	}

	entry := &models.AuditLog{
		Event:    event,
		UserID:   userID,
		Username: username,
		ClientIP: clientIPFrom(ctx),
		Detail:   detail,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to write audit log")
	}
}

// StartRetentionSweep schedules a daily cleanup of audit rows older
// than the configured retention. Retention <= 0 disables the sweep.
func (s *AuditService) StartRetentionSweep() {
	if s == nil || s.db == nil || s.retentionDays <= 0 {
		return
	}

	s.cron = cron.New()
	s.cron.AddFunc("@daily", s.sweep)
	s.cron.Start()
	logger.Info().Int("retention_days", s.retentionDays).Msg("audit retention sweep started")
}

// StopRetentionSweep stops the scheduler.
func (s *AuditService) StopRetentionSweep() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Stop()
}

func (s *AuditService) sweep() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("audit log cleanup failed")
		return
	}
	if result.RowsAffected > 0 {
		logger.Info().Int64("deleted", result.RowsAffected).Msg("audit log cleanup done")
	}
}
