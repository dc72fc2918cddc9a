package decisioning

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/quality"
)

// fakeMatcher maps exact titles to matched format ids.
type fakeMatcher struct {
	formats map[string][]int64
	calls   int
}

func (f *fakeMatcher) MatchCached(_ context.Context, release customformat.ReleaseAttributes) ([]int64, error) {
	f.calls++
	return f.formats[release.Title], nil
}

func (f *fakeMatcher) Ruleset(context.Context) (*customformat.Ruleset, error) {
	return &customformat.Ruleset{Version: 1}, nil
}

func testProfile() *quality.Profile {
	p := quality.DefaultProfile()
	p.CutoffRank = 11
	p.FormatScoreIncrement = 5
	p.FormatScores = map[int64]int{}
	return &p
}

func newTestSelector(m *fakeMatcher) *Selector {
	return NewSelector(m, zerolog.Nop())
}

const mb = 1024 * 1024

func TestSelectQualityBeatsFormatScore(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{
		"Event 2026 1080p WEB-DL x264-GRP": {1},
	}}
	profile := testProfile()
	profile.FormatScores[1] = 1000

	sel := newTestSelector(matcher)
	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-GRP", Size: 6000 * mb},
		{Title: "Event 2026 2160p WEB-DL x265-GRP", Size: 16000 * mb},
	}, profile, CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if decision.Best == nil {
		t.Fatal("expected a selection")
	}
	if decision.Best.Quality.Rank != 15 {
		t.Errorf("selected rank %d (%s), want 2160p despite the other release's higher format score",
			decision.Best.Quality.Rank, decision.Best.Release.Title)
	}
}

func TestSelectFormatScoreBreaksRankTie(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{
		"Event 2026 1080p WEB-DL x265-AAA": {1},
	}}
	profile := testProfile()
	profile.FormatScores[1] = 50

	sel := newTestSelector(matcher)
	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-BBB", Size: 6000 * mb},
		{Title: "Event 2026 1080p WEB-DL x265-AAA", Size: 6000 * mb},
	}, profile, CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if decision.Best.FormatScore != 50 {
		t.Errorf("selected %q with score %d, want the scored release",
			decision.Best.Release.Title, decision.Best.FormatScore)
	}
}

func TestSelectSizeTieBreakIsChunked(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{}}
	profile := testProfile()
	sel := newTestSelector(matcher)

	// Preferred size for WEBDL-1080p is 6000 MB. The far release loses; the
	// two near releases land in the same chunk, so indexer priority decides.
	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-AAA", Size: 20000 * mb, IndexerPriority: 10},
		{Title: "Event 2026 1080p WEB-DL x264-BBB", Size: 6050 * mb, IndexerPriority: 20},
		{Title: "Event 2026 1080p WEB-DL x264-CCC", Size: 5950 * mb, IndexerPriority: 5},
	}, profile, CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if got := decision.Best.Release.Title; got != "Event 2026 1080p WEB-DL x264-CCC" {
		t.Errorf("selected %q, want the near-preferred-size release from the preferred indexer", got)
	}
}

func TestSelectUpgradeRequiresIncrement(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{
		"Event 2026 1080p WEB-DL x264-AAA": {1},
		"Event 2026 1080p WEB-DL x264-BBB": {2},
	}}
	profile := testProfile()
	profile.FormatScores[1] = 12 // delta 2, below increment 5
	profile.FormatScores[2] = 15 // delta 5, meets increment

	current := CurrentFile{HasFile: true, Rank: 10, FormatScore: 10}
	sel := newTestSelector(matcher)

	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-AAA", Size: 6000 * mb},
		{Title: "Event 2026 1080p WEB-DL x264-BBB", Size: 6000 * mb},
	}, profile, current)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if len(decision.Accepted) != 1 {
		t.Fatalf("accepted %d releases, want only the one meeting the increment", len(decision.Accepted))
	}
	if decision.Best.FormatScore != 15 {
		t.Errorf("selected score %d, want 15", decision.Best.FormatScore)
	}
	if len(decision.Rejections) != 1 {
		t.Errorf("expected the sub-increment release to be rejected, got %+v", decision.Rejections)
	}
}

func TestSelectStopsAtCutoff(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{}}
	profile := testProfile()
	current := CurrentFile{HasFile: true, Rank: 11, FormatScore: 0}

	sel := newTestSelector(matcher)
	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 2160p WEB-DL x265-GRP", Size: 16000 * mb},
	}, profile, current)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if decision.Best != nil {
		t.Errorf("expected no selection once the cutoff is met, got %q", decision.Best.Release.Title)
	}
}

func TestSelectFiltersMinFormatScore(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{
		"Event 2026 1080p WEB-DL x264-BAD": {1},
	}}
	profile := testProfile()
	profile.MinFormatScore = 0
	profile.FormatScores[1] = -100

	sel := newTestSelector(matcher)
	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-BAD", Size: 6000 * mb},
	}, profile, CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if decision.Best != nil {
		t.Errorf("expected release below minimum format score to be rejected")
	}
}

func TestSelectRejectsUndetectableQuality(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{}}
	sel := newTestSelector(matcher)

	decision, err := sel.Select(context.Background(), []indexer.Release{
		{Title: "Event highlights clip"},
	}, testProfile(), CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if decision.Best != nil || len(decision.Rejections) != 1 {
		t.Errorf("expected undetectable release to be rejected, got %+v", decision)
	}
	// Undetectable releases must never reach the matcher.
	if matcher.calls != 0 {
		t.Errorf("matcher called %d times for undetectable release", matcher.calls)
	}
}

func TestSelectDeterministic(t *testing.T) {
	matcher := &fakeMatcher{formats: map[string][]int64{}}
	profile := testProfile()
	sel := newTestSelector(matcher)

	releases := []indexer.Release{
		{Title: "Event 2026 1080p WEB-DL x264-AAA", Size: 6000 * mb, Seeders: 10},
		{Title: "Event 2026 1080p WEB-DL x264-BBB", Size: 6000 * mb, Seeders: 10},
	}

	first, err := sel.Select(context.Background(), releases, profile, CurrentFile{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := sel.Select(context.Background(), releases, profile, CurrentFile{})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if again.Best.Release.Title != first.Best.Release.Title {
			t.Fatalf("selection not deterministic: %q vs %q", again.Best.Release.Title, first.Best.Release.Title)
		}
	}
}
