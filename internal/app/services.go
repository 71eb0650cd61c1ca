package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbaccus/hue-presence-control/internal/config"
	"github.com/tbaccus/hue-presence-control/internal/db"
	"github.com/tbaccus/hue-presence-control/internal/eventbus"
	"github.com/tbaccus/hue-presence-control/internal/huehttps"
	"github.com/tbaccus/hue-presence-control/internal/ledger"
	"github.com/tbaccus/hue-presence-control/internal/presence"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger

	// Request pipeline
	Session *huehttps.Session

	// Event plumbing
	Bus      *eventbus.Bus
	Presence *presence.Source
	Rules    *Rules
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize HTTPS session; this validates the bridge credentials and
	// starts the dispatch worker.
	sessionCfg := &huehttps.Config{
		BridgeIP:       cfg.Bridge.IP,
		BridgeID:       cfg.Bridge.ID,
		ApplicationKey: cfg.Bridge.ApplicationKey,
		RetryAttempts:  cfg.Bridge.RetryAttempts,
		RequestTimeout: cfg.Bridge.RequestTimeout.Duration(),
		Recorder:       s.Ledger,
	}
	if cfg.Bridge.CACertPath != "" {
		pem, err := os.ReadFile(cfg.Bridge.CACertPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("reading bridge CA certificate: %w", err)
		}
		sessionCfg.CACert = pem
	}

	s.Session, err = huehttps.NewSession(sessionCfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize event bus and the rule engine feeding the session
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Rules = NewRules(cfg.Rules, s.Session)
	s.Rules.Register(s.Bus)

	// Initialize presence source
	s.Presence = presence.NewSource(cfg.MQTT, s.Bus)

	return s, nil
}

// Start starts all background services.
func (s *Services) Start(ctx context.Context) error {
	// Connect to the MQTT broker. The connect handler opens the session's
	// network gate; paho owns reconnects after this point.
	if err := s.Presence.Connect(); err != nil {
		return err
	}

	go s.ledgerCleanupLoop(ctx)

	return nil
}

// ledgerCleanupLoop enforces the ledger retention policy.
func (s *Services) ledgerCleanupLoop(ctx context.Context) {
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Ledger cleanup failed")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("Ledger cleanup removed old entries")
			}
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources in reverse dependency order.
func (s *Services) Close() {
	if s.Presence != nil {
		s.Presence.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Session != nil {
		s.Session.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
