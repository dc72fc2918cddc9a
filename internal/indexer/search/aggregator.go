// Package search fans one query out across every enabled indexer and
// aggregates the results.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/indexer"
)

// ErrNoIndexers is returned when no enabled indexer is available. Individual
// indexer failures never surface as errors; they are reported in the result.
var ErrNoIndexers = errors.New("no enabled indexers")

// Options bound a search.
type Options struct {
	IndexerTimeout   time.Duration // per-indexer deadline
	AggregateTimeout time.Duration // overall deadline
	PerIndexerLimit  int
}

// DefaultOptions returns the standard search bounds.
func DefaultOptions() Options {
	return Options{
		IndexerTimeout:   30 * time.Second,
		AggregateTimeout: 60 * time.Second,
		PerIndexerLimit:  100,
	}
}

// IndexerError reports one indexer's failure within an otherwise successful
// search.
type IndexerError struct {
	IndexerID   int64  `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Error       string `json:"error"`
}

// Result is the aggregate of one fan-out search.
type Result struct {
	Releases      []indexer.Release `json:"releases"`
	TotalResults  int               `json:"totalResults"`
	IndexersUsed  int               `json:"indexersUsed"`
	IndexerErrors []IndexerError    `json:"indexerErrors,omitempty"`
}

// Aggregator runs searches across all enabled indexers in parallel.
type Aggregator struct {
	indexers *indexer.Service
	opts     Options
	logger   zerolog.Logger
}

// NewAggregator creates a search aggregator.
func NewAggregator(indexers *indexer.Service, opts Options, logger zerolog.Logger) *Aggregator {
	if opts.IndexerTimeout <= 0 {
		opts.IndexerTimeout = DefaultOptions().IndexerTimeout
	}
	if opts.AggregateTimeout <= 0 {
		opts.AggregateTimeout = DefaultOptions().AggregateTimeout
	}
	return &Aggregator{
		indexers: indexers,
		opts:     opts,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// taskResult is one indexer's contribution to the fan-out.
type taskResult struct {
	IndexerID   int64
	IndexerName string
	Releases    []indexer.Release
	Error       error
}

// SearchAll queries every enabled indexer in parallel and aggregates the
// results. A slow or failing indexer only costs its own results.
func (a *Aggregator) SearchAll(ctx context.Context, criteria indexer.SearchCriteria) (*Result, error) {
	defs, err := a.indexers.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexers: %w", err)
	}
	if len(defs) == 0 {
		return nil, ErrNoIndexers
	}
	if criteria.Limit <= 0 {
		criteria.Limit = a.opts.PerIndexerLimit
	}

	start := time.Now()
	a.logger.Info().Int("indexerCount", len(defs)).Str("query", criteria.Query).
		Msg("Starting search across indexers")

	searchCtx, cancel := context.WithTimeout(ctx, a.opts.AggregateTimeout)
	defer cancel()

	var wg sync.WaitGroup
	resultsChan := make(chan taskResult, len(defs))
	for _, def := range defs {
		wg.Add(1)
		go func(def indexer.Definition) {
			defer wg.Done()
			resultsChan <- a.searchOne(searchCtx, def, criteria)
		}(def)
	}
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	result := a.aggregate(resultsChan)

	a.logger.Info().Int("totalResults", result.TotalResults).
		Int("indexersUsed", result.IndexersUsed).
		Int("errors", len(result.IndexerErrors)).
		Dur("elapsed", time.Since(start)).
		Msg("Search completed")
	return result, nil
}

// searchOne queries a single indexer under its own deadline.
func (a *Aggregator) searchOne(ctx context.Context, def indexer.Definition, criteria indexer.SearchCriteria) taskResult {
	result := taskResult{IndexerID: def.ID, IndexerName: def.Name}

	client, err := a.indexers.GetClient(ctx, def.ID)
	if err != nil {
		result.Error = fmt.Errorf("failed to get client: %w", err)
		a.indexers.RecordFailure(def.ID)
		return result
	}

	indexerCtx, cancel := context.WithTimeout(ctx, a.opts.IndexerTimeout)
	defer cancel()

	start := time.Now()
	releases, err := client.Search(indexerCtx, criteria)
	elapsed := time.Since(start)

	if err != nil {
		result.Error = fmt.Errorf("search failed: %w", err)
		a.logger.Error().Err(err).Int64("indexerId", def.ID).Str("indexerName", def.Name).
			Dur("elapsed", elapsed).Msg("Indexer search failed")
		a.indexers.RecordFailure(def.ID)
		return result
	}

	a.indexers.RecordSuccess(def.ID)
	result.Releases = releases
	a.logger.Debug().Int64("indexerId", def.ID).Str("indexerName", def.Name).
		Int("results", len(releases)).Dur("elapsed", elapsed).Msg("Indexer search completed")
	return result
}

// aggregate drains the result channel, deduplicates and sorts.
func (a *Aggregator) aggregate(results <-chan taskResult) *Result {
	var all []indexer.Release
	var errs []IndexerError
	used := 0

	for res := range results {
		if res.Error != nil {
			errs = append(errs, IndexerError{
				IndexerID:   res.IndexerID,
				IndexerName: res.IndexerName,
				Error:       res.Error.Error(),
			})
			continue
		}
		used++
		all = append(all, res.Releases...)
	}

	deduplicated := deduplicate(all)
	sort.SliceStable(deduplicated, func(i, j int) bool {
		return deduplicated[i].Seeders > deduplicated[j].Seeders
	})

	return &Result{
		Releases:      deduplicated,
		TotalResults:  len(deduplicated),
		IndexersUsed:  used,
		IndexerErrors: errs,
	}
}

// deduplicate collapses releases sharing an info hash or GUID, keeping the
// copy from the preferred (lower priority number) indexer.
func deduplicate(releases []indexer.Release) []indexer.Release {
	if len(releases) == 0 {
		return []indexer.Release{}
	}

	best := make(map[string]indexer.Release, len(releases))
	order := make([]string, 0, len(releases))
	for _, rel := range releases {
		key := dedupKey(rel)
		existing, seen := best[key]
		if !seen {
			best[key] = rel
			order = append(order, key)
			continue
		}
		if rel.IndexerPriority < existing.IndexerPriority {
			best[key] = rel
		}
	}

	out := make([]indexer.Release, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func dedupKey(rel indexer.Release) string {
	if rel.InfoHash != "" {
		return "hash:" + strings.ToLower(rel.InfoHash)
	}
	return "guid:" + strings.ToLower(strings.TrimSpace(rel.GUID))
}
