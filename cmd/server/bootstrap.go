package main

import (
	"github.com/chatrelay/backend/internal/config"
	"github.com/chatrelay/backend/internal/handlers"
	"github.com/chatrelay/backend/internal/models"
	"github.com/chatrelay/backend/internal/services"
	"github.com/chatrelay/backend/internal/store"
	"github.com/chatrelay/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	authority   *services.TokenAuthority
	broker      *services.SessionBroker
	audit       *services.AuditService
	authHandler *handlers.AuthHandler
	chatHandler *handlers.ChatHandler
}

// bootstrap initializes all application dependencies: database, token
// authority, generation engine, session broker and schedulers.
func bootstrap(cfg *config.Config) *appServices {
	authority, err := services.NewTokenAuthority(&cfg.JWT)
	if err != nil {
		logger.Fatalf("Failed to load signing key: %v", err)
	}

	var credStore store.CredentialStore
	var audit *services.AuditService
	if cfg.Database.Driver == "memory" {
		credStore = store.NewMemoryStore()
	} else {
		db, err := models.Open(&cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		credStore = store.NewGormStore(db)
		audit = services.NewAuditService(db, cfg.Auth.AuditRetentionDays)
		audit.StartRetentionSweep()
	}

	authService := services.NewAuthService(credStore, authority, audit)

	engine, err := services.NewEngine(&cfg.Engine)
	if err != nil {
		logger.Fatalf("Failed to initialize generation engine: %v", err)
	}

	broker := services.NewSessionBroker(engine, &cfg.Engine, &cfg.Session)
	broker.StartJanitor()

	return &appServices{
		authority:   authority,
		broker:      broker,
		audit:       audit,
		authHandler: handlers.NewAuthHandler(authService, cfg),
		chatHandler: handlers.NewChatHandler(authService, broker),
	}
}

// shutdown gracefully stops all background schedulers.
func (s *appServices) shutdown() {
	s.broker.StopJanitor()
	s.audit.StopRetentionSweep()
	logger.Info().Msg("All schedulers stopped")
}
