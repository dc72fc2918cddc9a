package customformat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrFormatNotFound = errors.New("custom format not found")
	ErrInvalidFormat  = errors.New("invalid custom format")
)

// ruleSpec is the persisted shape of a rule, stored as JSON in the spec
// column.
type ruleSpec struct {
	Predicates            []Predicate `json:"predicates"`
	PenalizesMissingGroup bool        `json:"penalizesMissingGroup,omitempty"`
}

// Service manages custom format definitions and the compiled ruleset.
// Mutations bump the match cache version so memoized results from the old
// ruleset are never served.
type Service struct {
	db     *sql.DB
	cache  *Cache
	logger zerolog.Logger

	mu      sync.RWMutex
	ruleset *Ruleset
}

// NewService creates a custom format service.
func NewService(db *sql.DB, cache *Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		logger: logger.With().Str("component", "customformat").Logger(),
	}
}

// Cache exposes the match cache backing this service.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Ruleset returns the current compiled ruleset, loading it from the
// database on first use.
func (s *Service) Ruleset(ctx context.Context) (*Ruleset, error) {
	s.mu.RLock()
	rs := s.ruleset
	s.mu.RUnlock()
	if rs != nil && rs.Version == s.cache.Version() {
		return rs, nil
	}
	return s.reload(ctx)
}

// MatchCached evaluates the ruleset for a release, consulting the cache
// first. Misses run the matcher and memoize the result under the current
// version.
func (s *Service) MatchCached(ctx context.Context, release ReleaseAttributes) ([]int64, error) {
	if formats, ok := s.cache.TryGet(release.Title); ok {
		return formats, nil
	}
	rs, err := s.Ruleset(ctx)
	if err != nil {
		return nil, err
	}
	formats := Match(release, rs)
	s.cache.Store(release.Title, formats)
	return formats, nil
}

// List returns all custom formats ordered by id.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, spec FROM custom_formats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom formats: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Get retrieves a custom format by id.
func (s *Service) Get(ctx context.Context, id int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, spec FROM custom_formats WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormatNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// Create stores a new custom format and invalidates the match cache.
func (s *Service) Create(ctx context.Context, rule Rule) (*Rule, error) {
	if rule.Name == "" || len(rule.Predicates) == 0 {
		return nil, ErrInvalidFormat
	}
	if err := rule.Compile(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	spec, err := json.Marshal(ruleSpec{
		Predicates:            rule.Predicates,
		PenalizesMissingGroup: rule.PenalizesMissingGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode custom format: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_formats (name, spec) VALUES (?, ?)`, rule.Name, string(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to create custom format: %w", err)
	}
	rule.ID, _ = res.LastInsertId()

	s.invalidate()
	s.logger.Info().Int64("id", rule.ID).Str("name", rule.Name).Msg("Created custom format")
	return &rule, nil
}

// Update replaces a custom format definition and invalidates the match cache.
func (s *Service) Update(ctx context.Context, id int64, rule Rule) (*Rule, error) {
	if rule.Name == "" || len(rule.Predicates) == 0 {
		return nil, ErrInvalidFormat
	}
	if err := rule.Compile(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	spec, err := json.Marshal(ruleSpec{
		Predicates:            rule.Predicates,
		PenalizesMissingGroup: rule.PenalizesMissingGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode custom format: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE custom_formats SET name = ?, spec = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		rule.Name, string(spec), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update custom format: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrFormatNotFound
	}
	rule.ID = id

	s.invalidate()
	s.logger.Info().Int64("id", id).Str("name", rule.Name).Msg("Updated custom format")
	return &rule, nil
}

// Delete removes a custom format and invalidates the match cache.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_formats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete custom format: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFormatNotFound
	}

	s.invalidate()
	s.logger.Info().Int64("id", id).Msg("Deleted custom format")
	return nil
}

// seedFile is the YAML shape of a format definition bundle.
type seedFile struct {
	Formats []Rule `yaml:"formats"`
}

// SeedFromFile loads format definitions from a YAML file into an empty
// database. A populated custom_formats table is left untouched.
func (s *Service) SeedFromFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM custom_formats`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count custom formats: %w", err)
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", path).Msg("No format seed file, skipping")
			return nil
		}
		return fmt.Errorf("failed to read format seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse format seed: %w", err)
	}

	for _, rule := range seed.Formats {
		if _, err := s.Create(ctx, rule); err != nil {
			return fmt.Errorf("failed to seed format %q: %w", rule.Name, err)
		}
	}
	s.logger.Info().Int("count", len(seed.Formats)).Str("path", path).Msg("Seeded custom formats")
	return nil
}

// invalidate bumps the cache version and drops the in-memory ruleset so the
// next lookup recompiles from the database.
func (s *Service) invalidate() {
	s.cache.Invalidate()
	s.mu.Lock()
	s.ruleset = nil
	s.mu.Unlock()
}

// reload compiles the ruleset from the database. The ruleset is stamped with
// the cache version read before the query so a concurrent invalidation forces
// another reload rather than pinning a stale compile.
func (s *Service) reload(ctx context.Context) (*Ruleset, error) {
	version := s.cache.Version()

	rules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if err := rules[i].Compile(); err != nil {
			return nil, err
		}
	}

	rs := &Ruleset{Rules: rules, Version: version}
	s.mu.Lock()
	s.ruleset = rs
	s.mu.Unlock()
	return rs, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (Rule, error) {
	var rule Rule
	var spec string
	if err := row.Scan(&rule.ID, &rule.Name, &spec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("failed to scan custom format: %w", err)
	}

	var stored ruleSpec
	if err := json.Unmarshal([]byte(spec), &stored); err != nil {
		return rule, fmt.Errorf("failed to decode custom format %d: %w", rule.ID, err)
	}
	rule.Predicates = stored.Predicates
	rule.PenalizesMissingGroup = stored.PenalizesMissingGroup
	return rule, nil
}
