package autosearch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/sportarr/sportarr/internal/decisioning"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/notification"
)

// Options tune the orchestrator.
type Options struct {
	Workers     int // concurrent searches in a monitored sweep
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultOptions returns the standard orchestrator bounds.
func DefaultOptions() Options {
	return Options{
		Workers:     3,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
	}
}

// Service runs search-and-download flights.
type Service struct {
	catalog  Catalog
	profiles Profiles
	searcher Searcher
	selector ReleaseSelector
	gateway  Gateway
	grabs    Grabs
	backoff  *backoffStore
	lock     *grabLock
	workers  int
	notifier GrabNotifier
	logger   zerolog.Logger
}

// GrabNotifier receives grab events for delivery to configured sinks.
type GrabNotifier interface {
	NotifyGrab(event notification.GrabEvent)
}

// SetNotifier wires grab event delivery.
func (s *Service) SetNotifier(notifier GrabNotifier) {
	s.notifier = notifier
}

// NewService creates the orchestrator.
func NewService(db *sql.DB, catalog Catalog, profiles Profiles, searcher Searcher,
	selector ReleaseSelector, gateway Gateway, grabs Grabs, opts Options, logger zerolog.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	return &Service{
		catalog:  catalog,
		profiles: profiles,
		searcher: searcher,
		selector: selector,
		gateway:  gateway,
		grabs:    grabs,
		backoff:  newBackoffStore(db, opts.BackoffBase, opts.BackoffMax),
		lock:     newGrabLock(),
		workers:  opts.Workers,
		logger:   logger.With().Str("component", "autosearch").Logger(),
	}
}

// SearchAndDownload runs one flight for an event (or one part of it).
// Manual flights bypass monitoring and backoff checks but still respect the
// single-flight lock.
func (s *Service) SearchAndDownload(ctx context.Context, eventID int64, part int, manual bool) (*Outcome, error) {
	outcome := &Outcome{EventID: eventID, Part: part}

	event, err := s.catalog.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if !manual {
		if !event.Monitored {
			outcome.Status = OutcomeNotMonitored
			return outcome, nil
		}
		if part > 0 {
			p := event.PartByNumber(part)
			if p == nil {
				return nil, library.ErrPartNotFound
			}
			if !p.Monitored {
				outcome.Status = OutcomeNotMonitored
				return outcome, nil
			}
		}
		eligible, until, err := s.backoff.Eligible(ctx, eventID, part)
		if err != nil {
			return nil, err
		}
		if !eligible {
			outcome.Status = OutcomeBackedOff
			outcome.Reason = fmt.Sprintf("backed off until %s", until.Format(time.RFC3339))
			return outcome, nil
		}
	}

	key := lockKey(eventID, part)
	if !s.lock.TryAcquire(key) {
		outcome.Status = OutcomeAlreadyInProgress
		return outcome, nil
	}
	defer s.lock.Release(key)

	// The lock only guards the flight itself. A grab dispatched earlier may
	// still be queued or downloading; dispatching again would double up.
	active, err := s.grabs.GetActiveGrab(ctx, eventID, part)
	if err != nil && !errors.Is(err, history.ErrGrabNotFound) {
		return nil, err
	}
	if active != nil {
		outcome.Status = OutcomeAlreadyInProgress
		outcome.GrabID = active.ID
		outcome.Reason = fmt.Sprintf("grab %s is %s", active.ID, active.State)
		return outcome, nil
	}

	return s.runFlight(ctx, event, part, outcome)
}

// recordFailure pushes the target's next automatic attempt out. Backoff
// bookkeeping never fails a flight; errors are only logged.
func (s *Service) recordFailure(ctx context.Context, eventID int64, part int, reason string) {
	if err := s.backoff.RecordFailure(ctx, eventID, part, reason); err != nil {
		s.logger.Warn().Err(err).Int64("eventId", eventID).Int("part", part).
			Msg("Failed to record search failure")
	}
}

// runFlight performs search, selection and dispatch under the flight lock.
func (s *Service) runFlight(ctx context.Context, event *library.Event, part int, outcome *Outcome) (*Outcome, error) {
	criteria := indexer.SearchCriteria{
		Query:  event.Title,
		Sport:  event.Sport,
		Season: event.Season,
		Part:   part,
	}

	result, err := s.searcher.SearchAll(ctx, criteria)
	if err != nil {
		// Zero enabled indexers is an operator configuration problem, not a
		// failure of this target; it must not push the target into backoff.
		if !errors.Is(err, search.ErrNoIndexers) {
			s.recordFailure(ctx, event.ID, part, err.Error())
		}
		return nil, err
	}
	if result.TotalResults == 0 {
		outcome.Status = OutcomeNoResults
		s.recordFailure(ctx, event.ID, part, "no results")
		return outcome, nil
	}

	profile, err := s.profiles.Get(ctx, event.QualityProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality profile: %w", err)
	}

	current := currentFile(event, part)
	decision, err := s.selector.Select(ctx, result.Releases, profile, current)
	if err != nil {
		return nil, err
	}
	if decision.Best == nil {
		outcome.Status = OutcomeNoCandidate
		outcome.Reason = fmt.Sprintf("%d releases evaluated, none acceptable", result.TotalResults)
		s.recordFailure(ctx, event.ID, part, outcome.Reason)
		return outcome, nil
	}

	best := decision.Best
	grab, err := s.grabs.CreateGrab(ctx, history.GrabRecord{
		EventID:      event.ID,
		PartNumber:   part,
		ReleaseTitle: best.Release.Title,
		ReleaseGUID:  best.Release.GUID,
		IndexerID:    best.Release.IndexerID,
		DownloadURL:  best.Release.DownloadURL,
		Size:         best.Release.Size,
		QualityRank:  best.Quality.Rank,
		FormatScore:  best.FormatScore,
	})
	if err != nil {
		return nil, err
	}
	outcome.GrabID = grab.ID
	outcome.Release = best

	res := s.gateway.Grab(ctx, downloader.AddRequest{
		Title:       best.Release.Title,
		DownloadURL: best.Release.DownloadURL,
		InfoHash:    best.Release.InfoHash,
	})
	if !res.Success {
		outcome.Status = OutcomeDispatchFailed
		outcome.Reason = res.Error
		if err := s.grabs.SetGrabState(ctx, grab.ID, history.StateFailed, res.Error); err != nil {
			s.logger.Warn().Err(err).Str("grabId", grab.ID).Msg("Failed to mark grab failed")
		}
		s.recordFailure(ctx, event.ID, part, res.Error)
		return outcome, nil
	}

	if err := s.grabs.SetGrabDownload(ctx, grab.ID, res.ClientID, res.DownloadID); err != nil {
		s.logger.Warn().Err(err).Str("grabId", grab.ID).Msg("Failed to store download handle")
	}
	if err := s.catalog.SetStatus(ctx, event.ID, part, library.StatusGrabbed); err != nil {
		s.logger.Warn().Err(err).Int64("eventId", event.ID).Msg("Failed to mark event grabbed")
	}
	if err := s.backoff.Reset(ctx, event.ID, part); err != nil {
		s.logger.Warn().Err(err).Int64("eventId", event.ID).Msg("Failed to reset backoff")
	}

	if s.notifier != nil {
		s.notifier.NotifyGrab(notification.GrabEvent{
			EventTitle:   event.Title,
			Part:         part,
			ReleaseTitle: best.Release.Title,
			Quality:      best.Quality.Name,
			Indexer:      best.Release.IndexerName,
			GrabbedAt:    time.Now().UTC(),
		})
	}

	outcome.Status = OutcomeGrabbed
	s.logger.Info().Int64("eventId", event.ID).Int("part", part).
		Str("release", best.Release.Title).Str("grabId", grab.ID).
		Msg("Grabbed release")
	return outcome, nil
}

// SearchAllMonitored sweeps every monitored missing target with a bounded
// worker pool. Per-target failures are captured in the outcomes; the sweep
// itself only fails when the catalog cannot be listed.
func (s *Service) SearchAllMonitored(ctx context.Context) ([]Outcome, error) {
	events, err := s.catalog.ListMonitoredMissing(ctx)
	if err != nil {
		return nil, err
	}

	type target struct {
		eventID int64
		part    int
	}
	var targets []target
	for _, event := range events {
		if len(event.Parts) == 0 {
			targets = append(targets, target{eventID: event.ID})
			continue
		}
		for _, p := range event.Parts {
			if p.Monitored && p.Status == library.StatusMissing {
				targets = append(targets, target{eventID: event.ID, part: p.PartNumber})
			}
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	s.logger.Info().Int("targets", len(targets)).Int("workers", s.workers).
		Msg("Starting monitored search sweep")

	sem := semaphore.NewWeighted(int64(s.workers))
	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup

	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var abortOnce sync.Once
	var abortErr error

	for i, tgt := range targets {
		if err := sem.Acquire(sweepCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()
			defer sem.Release(1)

			outcome, err := s.SearchAndDownload(sweepCtx, tgt.eventID, tgt.part, false)
			if err != nil {
				if errors.Is(err, search.ErrNoIndexers) {
					// Configuration problem; every remaining target would
					// fail the same way. Abort the sweep.
					abortOnce.Do(func() {
						abortErr = err
						cancel()
					})
					return
				}
				outcomes[i] = Outcome{
					EventID: tgt.eventID,
					Part:    tgt.part,
					Status:  OutcomeNoResults,
					Reason:  err.Error(),
				}
				return
			}
			outcomes[i] = *outcome
		}(i, tgt)
	}
	wg.Wait()

	if abortErr != nil {
		s.logger.Error().Err(abortErr).Msg("Monitored search sweep aborted")
		return nil, abortErr
	}

	grabbed := 0
	for _, o := range outcomes {
		if o.Status == OutcomeGrabbed {
			grabbed++
		}
	}
	s.logger.Info().Int("targets", len(targets)).Int("grabbed", grabbed).
		Msg("Monitored search sweep finished")
	return outcomes, nil
}

// currentFile extracts the on-disk state for the search target.
func currentFile(event *library.Event, part int) decisioning.CurrentFile {
	if part > 0 {
		if p := event.PartByNumber(part); p != nil {
			return decisioning.CurrentFile{
				HasFile:     p.File.HasFile(),
				Rank:        p.File.QualityRank,
				FormatScore: p.File.FormatScore,
			}
		}
		return decisioning.CurrentFile{}
	}
	return decisioning.CurrentFile{
		HasFile:     event.File.HasFile(),
		Rank:        event.File.QualityRank,
		FormatScore: event.File.FormatScore,
	}
}
