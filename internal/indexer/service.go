package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrIndexerNotFound = errors.New("indexer not found")
	ErrUnknownType     = errors.New("unknown indexer type")
)

// ClientFactory constructs a client for a definition. Custom factories let
// tests register mock indexers.
type ClientFactory func(def Definition) Client

// Service manages indexer definitions, their clients, and failure state.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger

	mu        sync.Mutex
	factories map[string]ClientFactory
	clients   map[int64]Client
	health    map[int64]*healthState
}

// healthState tracks consecutive failures for one indexer. Repeated failures
// disable the indexer for an escalating window.
type healthState struct {
	failures      int
	disabledUntil time.Time
}

// NewService creates an indexer service with the built-in client types
// registered.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	s := &Service{
		db:        db,
		logger:    logger.With().Str("component", "indexer").Logger(),
		factories: make(map[string]ClientFactory),
		clients:   make(map[int64]Client),
		health:    make(map[int64]*healthState),
	}
	s.RegisterType(TypeTorznab, func(def Definition) Client {
		return NewTorznabClient(def)
	})
	return s
}

// RegisterType adds a client factory for an indexer type.
func (s *Service) RegisterType(indexerType string, factory ClientFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[indexerType] = factory
}

// List returns all indexer definitions.
func (s *Service) List(ctx context.Context) ([]Definition, error) {
	return s.query(ctx, `
		SELECT id, name, type, base_url, api_key, protocol, priority, enabled, created_at
		FROM indexers ORDER BY priority, id`)
}

// ListEnabled returns enabled indexers that are not disabled by failures,
// ordered by priority.
func (s *Service) ListEnabled(ctx context.Context) ([]Definition, error) {
	defs, err := s.query(ctx, `
		SELECT id, name, type, base_url, api_key, protocol, priority, enabled, created_at
		FROM indexers WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	filtered := defs[:0]
	for _, def := range defs {
		if h, ok := s.health[def.ID]; ok && now.Before(h.disabledUntil) {
			s.logger.Debug().Int64("indexerId", def.ID).Str("name", def.Name).
				Time("disabledUntil", h.disabledUntil).Msg("Skipping disabled indexer")
			continue
		}
		filtered = append(filtered, def)
	}
	return filtered, nil
}

// Get retrieves an indexer definition.
func (s *Service) Get(ctx context.Context, id int64) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, base_url, api_key, protocol, priority, enabled, created_at
		FROM indexers WHERE id = ?`, id)
	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIndexerNotFound
		}
		return nil, fmt.Errorf("failed to get indexer: %w", err)
	}
	return &def, nil
}

// Create stores a new indexer definition.
func (s *Service) Create(ctx context.Context, def Definition) (*Definition, error) {
	s.mu.Lock()
	_, known := s.factories[def.Type]
	s.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, def.Type)
	}
	if def.Protocol == "" {
		def.Protocol = ProtocolTorrent
	}
	if def.Priority == 0 {
		def.Priority = 25
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO indexers (name, type, base_url, api_key, protocol, priority, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.Name, def.Type, def.BaseURL, def.APIKey, def.Protocol, def.Priority,
		boolToInt(def.Enabled))
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}
	def.ID, _ = res.LastInsertId()

	s.logger.Info().Int64("id", def.ID).Str("name", def.Name).Str("type", def.Type).Msg("Created indexer")
	return &def, nil
}

// Update replaces an indexer definition and drops its cached client.
func (s *Service) Update(ctx context.Context, id int64, def Definition) (*Definition, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE indexers SET name = ?, type = ?, base_url = ?, api_key = ?,
		       protocol = ?, priority = ?, enabled = ?
		WHERE id = ?`,
		def.Name, def.Type, def.BaseURL, def.APIKey, def.Protocol, def.Priority,
		boolToInt(def.Enabled), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update indexer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrIndexerNotFound
	}
	def.ID = id

	s.mu.Lock()
	delete(s.clients, id)
	delete(s.health, id)
	s.mu.Unlock()

	s.logger.Info().Int64("id", id).Str("name", def.Name).Msg("Updated indexer")
	return &def, nil
}

// Delete removes an indexer definition.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM indexers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete indexer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIndexerNotFound
	}

	s.mu.Lock()
	delete(s.clients, id)
	delete(s.health, id)
	s.mu.Unlock()

	s.logger.Info().Int64("id", id).Msg("Deleted indexer")
	return nil
}

// GetClient returns the cached client for an indexer, building it on first
// use.
func (s *Service) GetClient(ctx context.Context, id int64) (Client, error) {
	s.mu.Lock()
	if client, ok := s.clients[id]; ok {
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	def, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	factory, ok := s.factories[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, def.Type)
	}
	client := factory(*def)
	s.clients[id] = client
	return client, nil
}

// Test runs the client's connectivity check.
func (s *Service) Test(ctx context.Context, id int64) error {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}
	return client.Test(ctx)
}

// RecordSuccess clears failure state for an indexer.
func (s *Service) RecordSuccess(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.health, id)
}

// RecordFailure counts a failure. After three consecutive failures the
// indexer is skipped for an escalating window, capped at one hour.
func (s *Service) RecordFailure(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.health[id]
	if h == nil {
		h = &healthState{}
		s.health[id] = h
	}
	h.failures++
	if h.failures < 3 {
		return
	}

	window := time.Duration(h.failures-2) * 5 * time.Minute
	if window > time.Hour {
		window = time.Hour
	}
	h.disabledUntil = time.Now().Add(window)
	s.logger.Warn().Int64("indexerId", id).Int("failures", h.failures).
		Time("disabledUntil", h.disabledUntil).Msg("Indexer disabled after repeated failures")
}

func (s *Service) query(ctx context.Context, q string, args ...any) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexers: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indexer: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (Definition, error) {
	var def Definition
	var enabled int64
	err := row.Scan(&def.ID, &def.Name, &def.Type, &def.BaseURL, &def.APIKey,
		&def.Protocol, &def.Priority, &enabled, &def.AddedAt)
	if err != nil {
		return def, err
	}
	def.Enabled = enabled == 1
	return def, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
