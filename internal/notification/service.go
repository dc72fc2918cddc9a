package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const sendTimeout = 30 * time.Second

// Service manages notification destinations and fans events out to them.
// Delivery is fire-and-forget; failures are logged, never propagated to
// the pipeline that produced the event.
type Service struct {
	db        *sql.DB
	logger    zerolog.Logger
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	s := &Service{
		db:        db,
		logger:    logger.With().Str("component", "notification").Logger(),
		factories: make(map[string]Factory),
	}
	s.RegisterType(TypeWebhook, func(cfg Config) (Notifier, error) {
		var settings WebhookSettings
		if err := json.Unmarshal(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
		if settings.URL == "" {
			return nil, fmt.Errorf("%w: url is required", ErrInvalidSettings)
		}
		return NewWebhookNotifier(cfg.Name, settings, nil, s.logger), nil
	})
	return s
}

// RegisterType adds a notifier factory for a config type.
func (s *Service) RegisterType(typ string, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[typ] = factory
}

// List returns all configured notifications.
func (s *Service) List(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, enabled, settings, on_grab, on_import, on_health, created_at, updated_at
		FROM notifications ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// Get returns a notification by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, enabled, settings, on_grab, on_import, on_health, created_at, updated_at
		FROM notifications WHERE id = ?`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	return cfg, err
}

// Create stores a new notification destination.
func (s *Service) Create(ctx context.Context, cfg Config) (*Config, error) {
	s.mu.RLock()
	_, ok := s.factories[cfg.Type]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownType
	}
	if cfg.Settings == nil {
		cfg.Settings = json.RawMessage("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (name, type, enabled, settings, on_grab, on_import, on_health)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, cfg.Type, cfg.Enabled, string(cfg.Settings), cfg.OnGrab, cfg.OnImport, cfg.OnHealth)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	id, _ := res.LastInsertId()
	return s.Get(ctx, id)
}

// Update replaces a notification's stored fields.
func (s *Service) Update(ctx context.Context, id int64, cfg Config) (*Config, error) {
	if cfg.Settings == nil {
		cfg.Settings = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET name = ?, type = ?, enabled = ?, settings = ?, on_grab = ?, on_import = ?, on_health = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		cfg.Name, cfg.Type, cfg.Enabled, string(cfg.Settings), cfg.OnGrab, cfg.OnImport, cfg.OnHealth, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotificationNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a notification destination.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Test sends a test payload to one destination.
func (s *Service) Test(ctx context.Context, id int64) error {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	notifier, err := s.build(*cfg)
	if err != nil {
		return err
	}
	return notifier.Test(ctx)
}

// NotifyGrab fans a grab event out to all matching destinations.
func (s *Service) NotifyGrab(event GrabEvent) {
	s.dispatch(func(cfg Config) bool { return cfg.OnGrab }, func(ctx context.Context, n Notifier) error {
		return n.OnGrab(ctx, event)
	})
}

// NotifyImport fans an import event out to all matching destinations.
func (s *Service) NotifyImport(event ImportEvent) {
	s.dispatch(func(cfg Config) bool { return cfg.OnImport }, func(ctx context.Context, n Notifier) error {
		return n.OnImport(ctx, event)
	})
}

// NotifyHealth fans a health event out to all matching destinations.
func (s *Service) NotifyHealth(event HealthEvent) {
	s.dispatch(func(cfg Config) bool { return cfg.OnHealth }, func(ctx context.Context, n Notifier) error {
		return n.OnHealth(ctx, event)
	})
}

// dispatch sends through every enabled destination that wants the event.
// Each send runs in its own goroutine with a delivery timeout detached
// from the caller.
func (s *Service) dispatch(wants func(Config) bool, send func(context.Context, Notifier) error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)

	configs, err := s.List(ctx)
	if err != nil {
		cancel()
		s.logger.Warn().Err(err).Msg("Failed to load notifications for dispatch")
		return
	}

	var wg sync.WaitGroup
	for _, cfg := range configs {
		if !cfg.Enabled || !wants(cfg) {
			continue
		}

		notifier, err := s.build(cfg)
		if err != nil {
			s.logger.Warn().Err(err).Str("name", cfg.Name).Msg("Failed to build notifier")
			continue
		}

		wg.Add(1)
		go func(cfg Config, notifier Notifier) {
			defer wg.Done()
			if err := send(ctx, notifier); err != nil {
				s.logger.Warn().Err(err).Str("name", cfg.Name).Msg("Notification delivery failed")
			}
		}(cfg, notifier)
	}

	go func() {
		wg.Wait()
		cancel()
	}()
}

func (s *Service) build(cfg Config) (Notifier, error) {
	s.mu.RLock()
	factory, ok := s.factories[cfg.Type]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownType
	}
	return factory(cfg)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*Config, error) {
	var cfg Config
	var settings string
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Type, &cfg.Enabled, &settings,
		&cfg.OnGrab, &cfg.OnImport, &cfg.OnHealth, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	cfg.Settings = json.RawMessage(settings)
	return &cfg, nil
}
