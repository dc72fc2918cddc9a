// Package decisioning scores candidate releases against a quality profile
// and picks the one to grab.
package decisioning

import (
	"context"

	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/quality"
)

// FormatMatcher evaluates custom formats for a release, memoizing results.
type FormatMatcher interface {
	MatchCached(ctx context.Context, release customformat.ReleaseAttributes) ([]int64, error)
	Ruleset(ctx context.Context) (*customformat.Ruleset, error)
}

// CurrentFile describes what is already on disk for the search target.
type CurrentFile struct {
	HasFile     bool
	Rank        int
	FormatScore int
}

// ScoredRelease is a candidate that passed every filter, with its computed
// quality and format score.
type ScoredRelease struct {
	Release        indexer.Release `json:"release"`
	Quality        quality.Quality `json:"quality"`
	FormatScore    int             `json:"formatScore"`
	MatchedFormats []int64         `json:"matchedFormats,omitempty"`
	IsPack         bool            `json:"isPack"`
}

// Rejection records why one release was filtered out. Kept for interactive
// search display and debugging.
type Rejection struct {
	Release indexer.Release `json:"release"`
	Reason  string          `json:"reason"`
}

// Decision is the outcome of evaluating one set of search results.
type Decision struct {
	Best       *ScoredRelease  `json:"best,omitempty"`
	Accepted   []ScoredRelease `json:"accepted"`
	Rejections []Rejection     `json:"rejections,omitempty"`
}
