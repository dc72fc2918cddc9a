package quality

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrProfileNotFound = errors.New("quality profile not found")
	ErrInvalidProfile  = errors.New("invalid quality profile")
)

// Service persists quality profiles.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a quality profile service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "quality").Logger(),
	}
}

// EnsureDefaults inserts the built-in profiles into an empty table.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quality_profiles`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count quality profiles: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, p := range []Profile{DefaultProfile(), HD1080pProfile()} {
		if _, err := s.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a profile by id.
func (s *Service) Get(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cutoff_rank, min_format_score, cutoff_format_score,
		       format_score_increment, items, format_scores, created_at, updated_at
		FROM quality_profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all profiles.
func (s *Service) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cutoff_rank, min_format_score, cutoff_format_score,
		       format_score_increment, items, format_scores, created_at, updated_at
		FROM quality_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Create stores a new profile.
func (s *Service) Create(ctx context.Context, p Profile) (*Profile, error) {
	if p.Name == "" || len(p.Items) == 0 {
		return nil, ErrInvalidProfile
	}
	if p.FormatScoreIncrement <= 0 {
		p.FormatScoreIncrement = 1
	}

	items, err := SerializeItems(p.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile items: %w", err)
	}
	scores, err := SerializeFormatScores(p.FormatScores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode format scores: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_profiles (name, cutoff_rank, min_format_score,
		       cutoff_format_score, format_score_increment, items, format_scores)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.CutoffRank, p.MinFormatScore, p.CutoffFormatScore,
		p.FormatScoreIncrement, items, scores)
	if err != nil {
		return nil, fmt.Errorf("failed to create quality profile: %w", err)
	}
	p.ID, _ = res.LastInsertId()

	s.logger.Info().Int64("id", p.ID).Str("name", p.Name).Msg("Created quality profile")
	return &p, nil
}

// Update replaces a profile.
func (s *Service) Update(ctx context.Context, id int64, p Profile) (*Profile, error) {
	if p.Name == "" || len(p.Items) == 0 {
		return nil, ErrInvalidProfile
	}

	items, err := SerializeItems(p.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile items: %w", err)
	}
	scores, err := SerializeFormatScores(p.FormatScores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode format scores: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE quality_profiles SET name = ?, cutoff_rank = ?, min_format_score = ?,
		       cutoff_format_score = ?, format_score_increment = ?, items = ?,
		       format_scores = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		p.Name, p.CutoffRank, p.MinFormatScore, p.CutoffFormatScore,
		p.FormatScoreIncrement, items, scores, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update quality profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrProfileNotFound
	}
	p.ID = id

	s.logger.Info().Int64("id", id).Str("name", p.Name).Msg("Updated quality profile")
	return &p, nil
}

// Delete removes a profile.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quality_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quality profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	s.logger.Info().Int64("id", id).Msg("Deleted quality profile")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	var p Profile
	var items, scores string
	err := row.Scan(&p.ID, &p.Name, &p.CutoffRank, &p.MinFormatScore,
		&p.CutoffFormatScore, &p.FormatScoreIncrement, &items, &scores,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan quality profile: %w", err)
	}

	if p.Items, err = DeserializeItems(items); err != nil {
		return nil, fmt.Errorf("failed to decode profile items: %w", err)
	}
	if p.FormatScores, err = DeserializeFormatScores(scores); err != nil {
		return nil, fmt.Errorf("failed to decode format scores: %w", err)
	}
	return &p, nil
}
