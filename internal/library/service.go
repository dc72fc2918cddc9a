package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrPartNotFound  = errors.New("event part not found")
	ErrInvalidEvent  = errors.New("invalid event data")
)

// Service provides event catalog operations.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates an event catalog service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// Get retrieves an event with its parts.
func (s *Service) Get(ctx context.Context, id int64) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, sport, season, air_date, monitored, quality_profile_id,
		       root_folder, status, file_path, file_quality_rank, file_format_score,
		       file_size, created_at, updated_at
		FROM events WHERE id = ?`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	parts, err := s.listParts(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Parts = parts
	return event, nil
}

// List returns all events ordered by air date, newest first.
func (s *Service) List(ctx context.Context) ([]*Event, error) {
	return s.query(ctx, `
		SELECT id, title, sport, season, air_date, monitored, quality_profile_id,
		       root_folder, status, file_path, file_quality_rank, file_format_score,
		       file_size, created_at, updated_at
		FROM events ORDER BY air_date DESC, id DESC`)
}

// ListMonitoredMissing returns monitored events that are not yet available
// and not currently grabbed. These are the scheduled search candidates.
func (s *Service) ListMonitoredMissing(ctx context.Context) ([]*Event, error) {
	events, err := s.query(ctx, `
		SELECT id, title, sport, season, air_date, monitored, quality_profile_id,
		       root_folder, status, file_path, file_quality_rank, file_format_score,
		       file_size, created_at, updated_at
		FROM events
		WHERE monitored = 1 AND status = ?
		ORDER BY air_date DESC, id DESC`, StatusMissing)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		parts, err := s.listParts(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.Parts = parts
	}
	return events, nil
}

// Create adds an event, with one part row per provided part name.
func (s *Service) Create(ctx context.Context, input CreateEventInput) (*Event, error) {
	if input.Title == "" {
		return nil, ErrInvalidEvent
	}

	var airDate any
	if input.AirDate != "" {
		parsed, err := time.Parse("2006-01-02", input.AirDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad air date %q", ErrInvalidEvent, input.AirDate)
		}
		airDate = parsed
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (title, sport, season, air_date, monitored, quality_profile_id, root_folder, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		input.Title, input.Sport, input.Season, airDate,
		boolToInt(input.Monitored), input.QualityProfileID, input.RootFolder, StatusMissing)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	id, _ := res.LastInsertId()

	for i, name := range input.PartNames {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO event_parts (event_id, part_number, name, monitored, status)
			VALUES (?, ?, ?, 1, ?)`, id, i+1, name, StatusMissing)
		if err != nil {
			return nil, fmt.Errorf("failed to create event part: %w", err)
		}
	}

	s.logger.Info().Int64("id", id).Str("title", input.Title).Int("parts", len(input.PartNames)).Msg("Created event")
	return s.Get(ctx, id)
}

// Update applies partial changes to an event.
func (s *Service) Update(ctx context.Context, id int64, input UpdateEventInput) (*Event, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	title := current.Title
	if input.Title != nil {
		title = *input.Title
	}
	sport := current.Sport
	if input.Sport != nil {
		sport = *input.Sport
	}
	season := current.Season
	if input.Season != nil {
		season = *input.Season
	}
	monitored := current.Monitored
	if input.Monitored != nil {
		monitored = *input.Monitored
	}
	profileID := current.QualityProfileID
	if input.QualityProfileID != nil {
		profileID = *input.QualityProfileID
	}
	rootFolder := current.RootFolder
	if input.RootFolder != nil {
		rootFolder = *input.RootFolder
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE events SET title = ?, sport = ?, season = ?, monitored = ?,
		       quality_profile_id = ?, root_folder = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		title, sport, season, boolToInt(monitored), profileID, rootFolder, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	s.logger.Info().Int64("id", id).Str("title", title).Msg("Updated event")
	return s.Get(ctx, id)
}

// Delete removes an event; parts cascade.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	s.logger.Info().Int64("id", id).Msg("Deleted event")
	return nil
}

// SetStatus updates the status of an event or, when partNumber > 0, of one
// part. The event row tracks the aggregate: it only becomes available once
// every part is.
func (s *Service) SetStatus(ctx context.Context, eventID int64, partNumber int, status string) error {
	if partNumber > 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE event_parts SET status = ? WHERE event_id = ? AND part_number = ?`,
			status, eventID, partNumber)
		if err != nil {
			return fmt.Errorf("failed to set part status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPartNotFound
		}
		return s.rollUpStatus(ctx, eventID)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, eventID)
	if err != nil {
		return fmt.Errorf("failed to set event status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// SetFile records imported file metadata and marks the target available.
func (s *Service) SetFile(ctx context.Context, eventID int64, partNumber int, file FileMeta) error {
	if partNumber > 0 {
		res, err := s.db.ExecContext(ctx, `
			UPDATE event_parts SET status = ?, file_path = ?, file_quality_rank = ?,
			       file_format_score = ?, file_size = ?
			WHERE event_id = ? AND part_number = ?`,
			StatusAvailable, file.Path, file.QualityRank, file.FormatScore, file.Size,
			eventID, partNumber)
		if err != nil {
			return fmt.Errorf("failed to set part file: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPartNotFound
		}
		return s.rollUpStatus(ctx, eventID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET status = ?, file_path = ?, file_quality_rank = ?,
		       file_format_score = ?, file_size = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		StatusAvailable, file.Path, file.QualityRank, file.FormatScore, file.Size, eventID)
	if err != nil {
		return fmt.Errorf("failed to set event file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	s.logger.Info().Int64("eventId", eventID).Str("path", file.Path).Msg("Recorded event file")
	return nil
}

// rollUpStatus recomputes the event status from its parts.
func (s *Service) rollUpStatus(ctx context.Context, eventID int64) error {
	var total, available, grabbed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM event_parts WHERE event_id = ?`,
		StatusAvailable, StatusGrabbed, eventID).Scan(&total, &available, &grabbed)
	if err != nil {
		return fmt.Errorf("failed to roll up event status: %w", err)
	}

	status := StatusMissing
	switch {
	case total > 0 && available == total:
		status = StatusAvailable
	case grabbed > 0:
		status = StatusGrabbed
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, eventID)
	if err != nil {
		return fmt.Errorf("failed to roll up event status: %w", err)
	}
	return nil
}

func (s *Service) query(ctx context.Context, q string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Service) listParts(ctx context.Context, eventID int64) ([]Part, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, part_number, name, monitored, status,
		       file_path, file_quality_rank, file_format_score, file_size
		FROM event_parts WHERE event_id = ? ORDER BY part_number`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event parts: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		var monitored int64
		if err := rows.Scan(&p.ID, &p.EventID, &p.PartNumber, &p.Name, &monitored,
			&p.Status, &p.File.Path, &p.File.QualityRank, &p.File.FormatScore, &p.File.Size); err != nil {
			return nil, fmt.Errorf("failed to scan event part: %w", err)
		}
		p.Monitored = monitored == 1
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	var airDate sql.NullTime
	var monitored int64
	err := row.Scan(&e.ID, &e.Title, &e.Sport, &e.Season, &airDate, &monitored,
		&e.QualityProfileID, &e.RootFolder, &e.Status, &e.File.Path,
		&e.File.QualityRank, &e.File.FormatScore, &e.File.Size,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Monitored = monitored == 1
	if airDate.Valid {
		e.AirDate = airDate.Time
	}
	return &e, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
