package decisioning

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/quality"
)

// Selector evaluates search results against a profile.
type Selector struct {
	matcher FormatMatcher
	logger  zerolog.Logger
}

// NewSelector creates a release selector.
func NewSelector(matcher FormatMatcher, logger zerolog.Logger) *Selector {
	return &Selector{
		matcher: matcher,
		logger:  logger.With().Str("component", "decisioning").Logger(),
	}
}

// Select filters and ranks releases, returning the ranked accepted list and
// every rejection with its reason. Ranking is a deterministic total order:
// the same inputs always produce the same winner.
func (s *Selector) Select(ctx context.Context, releases []indexer.Release, profile *quality.Profile, current CurrentFile) (*Decision, error) {
	ruleset, err := s.matcher.Ruleset(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load format ruleset: %w", err)
	}

	decision := &Decision{}
	for _, rel := range releases {
		scored, reason, err := s.evaluate(ctx, rel, profile, ruleset, current)
		if err != nil {
			return nil, err
		}
		if scored == nil {
			decision.Rejections = append(decision.Rejections, Rejection{Release: rel, Reason: reason})
			continue
		}
		decision.Accepted = append(decision.Accepted, *scored)
	}

	s.rank(decision.Accepted, profile)
	if len(decision.Accepted) > 0 {
		decision.Best = &decision.Accepted[0]
		s.logger.Debug().Str("release", decision.Best.Release.Title).
			Str("quality", decision.Best.Quality.Name).
			Int("formatScore", decision.Best.FormatScore).
			Int("accepted", len(decision.Accepted)).
			Int("rejected", len(decision.Rejections)).
			Msg("Selected release")
	}
	return decision, nil
}

// evaluate runs one release through the filter pipeline. A nil ScoredRelease
// with a reason means rejection.
func (s *Selector) evaluate(ctx context.Context, rel indexer.Release, profile *quality.Profile, ruleset *customformat.Ruleset, current CurrentFile) (*ScoredRelease, string, error) {
	q, ok := quality.Detect(rel.Title)
	if !ok {
		return nil, "quality could not be detected", nil
	}
	if !profile.IsAllowed(q.Rank) {
		return nil, fmt.Sprintf("quality %s not allowed by profile", q.Name), nil
	}

	attrs := customformat.AttributesFromTitle(rel.Title, rel.Size)
	matched, err := s.matcher.MatchCached(ctx, attrs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to match formats: %w", err)
	}
	score := customformat.Score(profile, matched, ruleset, attrs.Attrs.Pack)

	if score < profile.MinFormatScore {
		return nil, fmt.Sprintf("format score %d below minimum %d", score, profile.MinFormatScore), nil
	}

	if current.HasFile {
		if profile.MeetsCutoff(current.Rank, current.FormatScore) {
			return nil, "existing file already meets cutoff", nil
		}
		rankUpgrade := profile.IsRankUpgrade(current.Rank, q.Rank)
		scoreUpgrade := q.Rank == current.Rank &&
			score-current.FormatScore >= profile.FormatScoreIncrement
		if !rankUpgrade && !scoreUpgrade {
			return nil, "not an upgrade over existing file", nil
		}
	}

	return &ScoredRelease{
		Release:        rel,
		Quality:        q,
		FormatScore:    score,
		MatchedFormats: matched,
		IsPack:         attrs.Attrs.Pack,
	}, "", nil
}

// rank sorts accepted releases best-first. Quality rank dominates the format
// score outright; the remaining fields only break ties.
func (s *Selector) rank(accepted []ScoredRelease, profile *quality.Profile) {
	sort.SliceStable(accepted, func(i, j int) bool {
		a, b := &accepted[i], &accepted[j]

		if a.Quality.Rank != b.Quality.Rank {
			return a.Quality.Rank > b.Quality.Rank
		}
		if a.FormatScore != b.FormatScore {
			return a.FormatScore > b.FormatScore
		}

		da := sizeDistanceChunks(a.Release.Size, a.Quality.Rank)
		db := sizeDistanceChunks(b.Release.Size, b.Quality.Rank)
		if da != db {
			return da < db
		}

		if a.Release.IndexerPriority != b.Release.IndexerPriority {
			return a.Release.IndexerPriority < b.Release.IndexerPriority
		}
		if a.Release.Seeders != b.Release.Seeders {
			return a.Release.Seeders > b.Release.Seeders
		}
		return a.Release.Title < b.Release.Title
	})
}

// sizeDistanceChunks returns the distance from the preferred size for the
// rank, in fixed chunks. Rounding keeps near-equal sizes from deciding the
// winner.
func sizeDistanceChunks(size int64, rank int) int64 {
	if size <= 0 {
		// Unknown size sorts behind every known size.
		return int64(^uint64(0) >> 1)
	}
	preferred := quality.PreferredSizeMB(rank)
	sizeMB := size / (1024 * 1024)
	dist := sizeMB - preferred
	if dist < 0 {
		dist = -dist
	}
	return dist / quality.SizeChunkMB
}
