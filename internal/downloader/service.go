package downloader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Service is the download client gateway. It owns client configuration and
// routes operations to backends, translating every transport failure into a
// typed result.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger

	mu        sync.Mutex
	factories map[string]BackendFactory
	backends  map[int64]Backend
}

// NewService creates the gateway with built-in backend types registered.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	s := &Service{
		db:        db,
		logger:    logger.With().Str("component", "downloader").Logger(),
		factories: make(map[string]BackendFactory),
		backends:  make(map[int64]Backend),
	}
	s.RegisterType(TypeQBittorrent, NewQBittorrentBackend)
	return s
}

// RegisterType adds a backend factory for a client type.
func (s *Service) RegisterType(clientType string, factory BackendFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[clientType] = factory
}

// List returns all client configs.
func (s *Service) List(ctx context.Context) ([]ClientConfig, error) {
	return s.query(ctx, `
		SELECT id, name, type, host, port, username, password, use_ssl, category, enabled, created_at
		FROM download_clients ORDER BY id`)
}

// ListEnabled returns enabled client configs.
func (s *Service) ListEnabled(ctx context.Context) ([]ClientConfig, error) {
	return s.query(ctx, `
		SELECT id, name, type, host, port, username, password, use_ssl, category, enabled, created_at
		FROM download_clients WHERE enabled = 1 ORDER BY id`)
}

// Get retrieves one client config.
func (s *Service) Get(ctx context.Context, id int64) (*ClientConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, host, port, username, password, use_ssl, category, enabled, created_at
		FROM download_clients WHERE id = ?`, id)
	cfg, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get download client: %w", err)
	}
	return &cfg, nil
}

// Create stores a new client config.
func (s *Service) Create(ctx context.Context, cfg ClientConfig) (*ClientConfig, error) {
	s.mu.Lock()
	_, known := s.factories[cfg.Type]
	s.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	if cfg.Category == "" {
		cfg.Category = "sportarr"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_clients (name, type, host, port, username, password, use_ssl, category, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, cfg.Type, cfg.Host, cfg.Port, cfg.Username, cfg.Password,
		boolToInt(cfg.UseSSL), cfg.Category, boolToInt(cfg.Enabled))
	if err != nil {
		return nil, fmt.Errorf("failed to create download client: %w", err)
	}
	cfg.ID, _ = res.LastInsertId()

	s.logger.Info().Int64("id", cfg.ID).Str("name", cfg.Name).Str("type", cfg.Type).Msg("Created download client")
	return &cfg, nil
}

// Update replaces a client config and drops its cached backend.
func (s *Service) Update(ctx context.Context, id int64, cfg ClientConfig) (*ClientConfig, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE download_clients SET name = ?, type = ?, host = ?, port = ?, username = ?,
		       password = ?, use_ssl = ?, category = ?, enabled = ?
		WHERE id = ?`,
		cfg.Name, cfg.Type, cfg.Host, cfg.Port, cfg.Username, cfg.Password,
		boolToInt(cfg.UseSSL), cfg.Category, boolToInt(cfg.Enabled), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update download client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrClientNotFound
	}
	cfg.ID = id

	s.mu.Lock()
	delete(s.backends, id)
	s.mu.Unlock()

	s.logger.Info().Int64("id", id).Str("name", cfg.Name).Msg("Updated download client")
	return &cfg, nil
}

// Delete removes a client config.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete download client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClientNotFound
	}

	s.mu.Lock()
	delete(s.backends, id)
	s.mu.Unlock()

	s.logger.Info().Int64("id", id).Msg("Deleted download client")
	return nil
}

// Grab sends a release to the first enabled client. The result is typed:
// transport failures come back as an unsuccessful AddResult, never an error.
func (s *Service) Grab(ctx context.Context, req AddRequest) AddResult {
	clients, err := s.ListEnabled(ctx)
	if err != nil {
		return AddResult{Error: fmt.Sprintf("failed to list clients: %v", err)}
	}
	if len(clients) == 0 {
		return AddResult{Error: ErrNoClients.Error()}
	}

	var last AddResult
	for _, cfg := range clients {
		backend, err := s.backend(cfg)
		if err != nil {
			last = AddResult{ClientID: cfg.ID, Error: err.Error()}
			continue
		}
		if req.Category == "" {
			req.Category = cfg.Category
		}

		downloadID, err := backend.Add(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Int64("clientId", cfg.ID).Str("release", req.Title).
				Msg("Download client rejected grab")
			last = AddResult{ClientID: cfg.ID, Error: err.Error()}
			continue
		}

		s.logger.Info().Int64("clientId", cfg.ID).Str("downloadId", downloadID).
			Str("release", req.Title).Msg("Sent release to download client")
		return AddResult{Success: true, ClientID: cfg.ID, DownloadID: downloadID}
	}
	return last
}

// StatusOf queries one download on one client.
func (s *Service) StatusOf(ctx context.Context, clientID int64, downloadID string) StatusResult {
	backend, err := s.backendByID(ctx, clientID)
	if err != nil {
		return StatusResult{Error: err.Error()}
	}
	status, err := backend.Status(ctx, downloadID)
	if err != nil {
		return StatusResult{Error: err.Error()}
	}
	return StatusResult{Success: true, Status: status}
}

// FindByTitle looks for a download by (normalized) name in a client's
// category.
func (s *Service) FindByTitle(ctx context.Context, clientID int64, title string) StatusResult {
	backend, err := s.backendByID(ctx, clientID)
	if err != nil {
		return StatusResult{Error: err.Error()}
	}
	cfg, err := s.Get(ctx, clientID)
	if err != nil {
		return StatusResult{Error: err.Error()}
	}

	downloads, err := backend.List(ctx, cfg.Category)
	if err != nil {
		return StatusResult{Error: err.Error()}
	}
	norm := normalizeName(title)
	for i := range downloads {
		if normalizeName(downloads[i].Name) == norm {
			return StatusResult{Success: true, Status: &downloads[i]}
		}
	}
	return StatusResult{Error: ErrDownloadMissing.Error()}
}

// Pause suspends a download.
func (s *Service) Pause(ctx context.Context, clientID int64, downloadID string) OpResult {
	return s.op(ctx, clientID, func(b Backend) error { return b.Pause(ctx, downloadID) })
}

// Resume restarts a download.
func (s *Service) Resume(ctx context.Context, clientID int64, downloadID string) OpResult {
	return s.op(ctx, clientID, func(b Backend) error { return b.Resume(ctx, downloadID) })
}

// Remove deletes a download, optionally with its files.
func (s *Service) Remove(ctx context.Context, clientID int64, downloadID string, deleteFiles bool) OpResult {
	return s.op(ctx, clientID, func(b Backend) error { return b.Remove(ctx, downloadID, deleteFiles) })
}

// ChangeCategory moves a download to another category.
func (s *Service) ChangeCategory(ctx context.Context, clientID int64, downloadID, category string) OpResult {
	return s.op(ctx, clientID, func(b Backend) error { return b.SetCategory(ctx, downloadID, category) })
}

// Test checks connectivity to a client.
func (s *Service) Test(ctx context.Context, clientID int64) OpResult {
	return s.op(ctx, clientID, func(b Backend) error { return b.Test(ctx) })
}

func (s *Service) op(ctx context.Context, clientID int64, fn func(Backend) error) OpResult {
	backend, err := s.backendByID(ctx, clientID)
	if err != nil {
		return OpResult{Error: err.Error()}
	}
	if err := fn(backend); err != nil {
		return OpResult{Error: err.Error()}
	}
	return OpResult{Success: true}
}

func (s *Service) backendByID(ctx context.Context, clientID int64) (Backend, error) {
	s.mu.Lock()
	if b, ok := s.backends[clientID]; ok {
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	cfg, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.backend(*cfg)
}

func (s *Service) backend(cfg ClientConfig) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.backends[cfg.ID]; ok {
		return b, nil
	}
	factory, ok := s.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	b := factory(cfg)
	s.backends[cfg.ID] = b
	return b, nil
}

func (s *Service) query(ctx context.Context, q string, args ...any) ([]ClientConfig, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list download clients: %w", err)
	}
	defer rows.Close()

	var cfgs []ClientConfig
	for rows.Next() {
		cfg, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download client: %w", err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (ClientConfig, error) {
	var cfg ClientConfig
	var useSSL, enabled int64
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Type, &cfg.Host, &cfg.Port,
		&cfg.Username, &cfg.Password, &useSSL, &cfg.Category, &enabled, &cfg.AddedAt)
	if err != nil {
		return cfg, err
	}
	cfg.UseSSL = useSSL == 1
	cfg.Enabled = enabled == 1
	return cfg, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
