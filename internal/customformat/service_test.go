package customformat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sportarr/sportarr/internal/testutil"
)

func newTestFormatService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	cache := NewCache(CacheOptions{MaxEntries: 100})
	return NewService(tdb.Conn, cache, tdb.Logger)
}

func TestFormatCRUD(t *testing.T) {
	svc := newTestFormatService(t)
	ctx := context.Background()

	rule, err := svc.Create(ctx, Rule{
		Name:       "x265",
		Predicates: []Predicate{{Field: FieldTitle, Pattern: `(?i)x265|hevc`}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("Expected assigned id")
	}

	got, err := svc.Get(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "x265" || len(got.Predicates) != 1 {
		t.Errorf("Unexpected rule: %+v", got)
	}

	got.Name = "HEVC"
	if _, err := svc.Update(ctx, rule.ID, *got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := svc.Delete(ctx, rule.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Get(ctx, rule.ID); !errors.Is(err, ErrFormatNotFound) {
		t.Errorf("Expected ErrFormatNotFound, got %v", err)
	}
}

func TestCreateValidatesRule(t *testing.T) {
	svc := newTestFormatService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Rule{Name: "empty"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for no predicates, got %v", err)
	}
	_, err := svc.Create(ctx, Rule{
		Name:       "bad regex",
		Predicates: []Predicate{{Field: FieldTitle, Pattern: `(`}},
	})
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for bad pattern, got %v", err)
	}
}

func TestMatchCachedMemoizes(t *testing.T) {
	svc := newTestFormatService(t)
	ctx := context.Background()

	rule, err := svc.Create(ctx, Rule{
		Name:       "x265",
		Predicates: []Predicate{{Field: FieldTitle, Pattern: `(?i)x265`}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	title := "Grand Prix 2026 Race 1080p WEB-DL x265-GRP"
	attrs := AttributesFromTitle(title, 0)

	matched, err := svc.MatchCached(ctx, attrs)
	if err != nil {
		t.Fatalf("MatchCached failed: %v", err)
	}
	if len(matched) != 1 || matched[0] != rule.ID {
		t.Fatalf("Expected match on rule %d, got %v", rule.ID, matched)
	}

	// Second lookup is served from the cache.
	if _, ok := svc.Cache().TryGet(title); !ok {
		t.Error("Expected cache hit after first evaluation")
	}
	again, err := svc.MatchCached(ctx, attrs)
	if err != nil {
		t.Fatalf("MatchCached failed: %v", err)
	}
	if len(again) != 1 || again[0] != rule.ID {
		t.Errorf("Cached result mismatch: %v", again)
	}
}

func TestMutationInvalidatesCachedMatches(t *testing.T) {
	svc := newTestFormatService(t)
	ctx := context.Background()

	rule, err := svc.Create(ctx, Rule{
		Name:       "x265",
		Predicates: []Predicate{{Field: FieldTitle, Pattern: `(?i)x265`}},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	title := "Grand Prix 2026 Race 1080p WEB-DL x265-GRP"
	attrs := AttributesFromTitle(title, 0)
	if _, err := svc.MatchCached(ctx, attrs); err != nil {
		t.Fatalf("MatchCached failed: %v", err)
	}

	// Updating the rule to no longer match must bump the cache version;
	// the stale memoized match is never served.
	rule.Predicates = []Predicate{{Field: FieldTitle, Pattern: `(?i)av1`}}
	if _, err := svc.Update(ctx, rule.ID, *rule); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, ok := svc.Cache().TryGet(title); ok {
		t.Error("Expected cache miss after format update")
	}

	matched, err := svc.MatchCached(ctx, attrs)
	if err != nil {
		t.Fatalf("MatchCached failed: %v", err)
	}
	if len(matched) != 0 {
		t.Errorf("Expected no match against the updated rule, got %v", matched)
	}
}

func TestSeedFromFile(t *testing.T) {
	svc := newTestFormatService(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "formats.yaml")
	seed := `formats:
  - name: x265
    predicates:
      - field: title
        pattern: "(?i)x265|hevc"
  - name: no-rartv
    penalizes_missing_group: true
    predicates:
      - field: group
        pattern: "^$"
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	if err := svc.SeedFromFile(ctx, path); err != nil {
		t.Fatalf("SeedFromFile failed: %v", err)
	}
	rules, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 seeded formats, got %d", len(rules))
	}
	if !rules[1].PenalizesMissingGroup {
		t.Error("Expected penalizes_missing_group carried through seeding")
	}

	// A populated table is left untouched on a second seed pass.
	if err := svc.SeedFromFile(ctx, path); err != nil {
		t.Fatalf("Second SeedFromFile failed: %v", err)
	}
	rules, _ = svc.List(ctx)
	if len(rules) != 2 {
		t.Errorf("Expected seeding to be idempotent, got %d formats", len(rules))
	}
}
