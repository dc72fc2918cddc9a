// Package history persists grab records and import history. A grab record
// follows one release from dispatch through download completion to import.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Grab record states, in lifecycle order. Failed is terminal; a failed grab
// is retried by dispatching a fresh record.
const (
	StateQueued      = "queued"
	StateDownloading = "downloading"
	StateCompleted   = "completed"
	StateImported    = "imported"
	StateFailed      = "failed"
)

var ErrGrabNotFound = errors.New("grab record not found")

// GrabRecord tracks one dispatched release.
type GrabRecord struct {
	ID           string    `json:"id"`
	EventID      int64     `json:"eventId"`
	PartNumber   int       `json:"partNumber"`
	ReleaseTitle string    `json:"releaseTitle"`
	ReleaseGUID  string    `json:"releaseGuid"`
	IndexerID    int64     `json:"indexerId"`
	DownloadURL  string    `json:"downloadUrl"`
	Size         int64     `json:"size"`
	QualityRank  int       `json:"qualityRank"`
	FormatScore  int       `json:"formatScore"`
	ClientID     int64     `json:"clientId"`
	DownloadID   string    `json:"downloadId"`
	State        string    `json:"state"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ImportRecord is one completed file import.
type ImportRecord struct {
	ID         int64     `json:"id"`
	GrabID     string    `json:"grabId"`
	SourcePath string    `json:"sourcePath"`
	DestPath   string    `json:"destPath"`
	Method     string    `json:"method"`
	ImportedAt time.Time `json:"importedAt"`
}

// Service persists grab and import records.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// CreateGrab records a freshly dispatched release in the queued state and
// returns its generated id.
func (s *Service) CreateGrab(ctx context.Context, rec GrabRecord) (*GrabRecord, error) {
	rec.ID = uuid.New().String()
	rec.State = StateQueued

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grab_records (id, event_id, part_number, release_title, release_guid,
		       indexer_id, download_url, size, quality_rank, format_score, client_id,
		       download_id, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EventID, rec.PartNumber, rec.ReleaseTitle, rec.ReleaseGUID,
		rec.IndexerID, rec.DownloadURL, rec.Size, rec.QualityRank, rec.FormatScore,
		rec.ClientID, rec.DownloadID, rec.State)
	if err != nil {
		return nil, fmt.Errorf("failed to create grab record: %w", err)
	}

	s.logger.Info().Str("grabId", rec.ID).Int64("eventId", rec.EventID).
		Str("release", rec.ReleaseTitle).Msg("Recorded grab")
	return &rec, nil
}

// GetGrab retrieves a grab record by id.
func (s *Service) GetGrab(ctx context.Context, id string) (*GrabRecord, error) {
	row := s.db.QueryRowContext(ctx, grabSelect+` WHERE id = ?`, id)
	rec, err := scanGrab(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGrabNotFound
		}
		return nil, fmt.Errorf("failed to get grab record: %w", err)
	}
	return rec, nil
}

// GetActiveGrab returns the non-terminal grab for a target, if any. At most
// one such record exists per (event, part); the orchestrator refuses to
// dispatch while one is live.
func (s *Service) GetActiveGrab(ctx context.Context, eventID int64, partNumber int) (*GrabRecord, error) {
	row := s.db.QueryRowContext(ctx, grabSelect+`
		WHERE event_id = ? AND part_number = ? AND state IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		eventID, partNumber, StateQueued, StateDownloading, StateCompleted)
	rec, err := scanGrab(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGrabNotFound
		}
		return nil, fmt.Errorf("failed to get active grab: %w", err)
	}
	return rec, nil
}

// ListActiveGrabs returns grabs awaiting download completion.
func (s *Service) ListActiveGrabs(ctx context.Context) ([]*GrabRecord, error) {
	return s.queryGrabs(ctx, grabSelect+` WHERE state IN (?, ?) ORDER BY created_at`,
		StateQueued, StateDownloading)
}

// ListGrabsForEvent returns all grabs for an event, newest first.
func (s *Service) ListGrabsForEvent(ctx context.Context, eventID int64) ([]*GrabRecord, error) {
	return s.queryGrabs(ctx, grabSelect+` WHERE event_id = ? ORDER BY created_at DESC`, eventID)
}

// SetGrabState advances a grab record. The error message is cleared unless
// the new state is failed.
func (s *Service) SetGrabState(ctx context.Context, id, state, errMsg string) error {
	if state != StateFailed {
		errMsg = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE grab_records SET state = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, state, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update grab record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGrabNotFound
	}
	return nil
}

// SetGrabDownload stores the download client handle for a queued grab.
func (s *Service) SetGrabDownload(ctx context.Context, id string, clientID int64, downloadID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE grab_records SET client_id = ?, download_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, clientID, downloadID, id)
	if err != nil {
		return fmt.Errorf("failed to update grab record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGrabNotFound
	}
	return nil
}

// RecordImport appends an import history row and marks the grab imported.
func (s *Service) RecordImport(ctx context.Context, rec ImportRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_history (grab_id, source_path, dest_path, method)
		VALUES (?, ?, ?, ?)`,
		rec.GrabID, rec.SourcePath, rec.DestPath, rec.Method)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	if err := s.SetGrabState(ctx, rec.GrabID, StateImported, ""); err != nil {
		return err
	}
	s.logger.Info().Str("grabId", rec.GrabID).Str("dest", rec.DestPath).
		Str("method", rec.Method).Msg("Recorded import")
	return nil
}

// ListImports returns import history, newest first.
func (s *Service) ListImports(ctx context.Context, limit int) ([]*ImportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, grab_id, source_path, dest_path, method, imported_at
		FROM import_history ORDER BY imported_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import history: %w", err)
	}
	defer rows.Close()

	var recs []*ImportRecord
	for rows.Next() {
		var r ImportRecord
		if err := rows.Scan(&r.ID, &r.GrabID, &r.SourcePath, &r.DestPath, &r.Method, &r.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import record: %w", err)
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

const grabSelect = `
	SELECT id, event_id, part_number, release_title, release_guid, indexer_id,
	       download_url, size, quality_rank, format_score, client_id, download_id,
	       state, error, created_at, updated_at
	FROM grab_records`

func (s *Service) queryGrabs(ctx context.Context, q string, args ...any) ([]*GrabRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grab records: %w", err)
	}
	defer rows.Close()

	var recs []*GrabRecord
	for rows.Next() {
		rec, err := scanGrab(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grab record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrab(row scanner) (*GrabRecord, error) {
	var r GrabRecord
	err := row.Scan(&r.ID, &r.EventID, &r.PartNumber, &r.ReleaseTitle, &r.ReleaseGUID,
		&r.IndexerID, &r.DownloadURL, &r.Size, &r.QualityRank, &r.FormatScore,
		&r.ClientID, &r.DownloadID, &r.State, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
