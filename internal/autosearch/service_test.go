package autosearch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sportarr/sportarr/internal/decisioning"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/quality"
	"github.com/sportarr/sportarr/internal/testutil"
)

type fakeCatalog struct {
	mu       sync.Mutex
	events   map[int64]*library.Event
	statuses map[string]string
}

func newFakeCatalog(events ...*library.Event) *fakeCatalog {
	c := &fakeCatalog{events: make(map[int64]*library.Event), statuses: make(map[string]string)}
	for _, e := range events {
		c.events[e.ID] = e
	}
	return c
}

func (c *fakeCatalog) Get(_ context.Context, id int64) (*library.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.events[id]
	if !ok {
		return nil, library.ErrEventNotFound
	}
	copied := *e
	return &copied, nil
}

func (c *fakeCatalog) ListMonitoredMissing(context.Context) ([]*library.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*library.Event
	for _, e := range c.events {
		if e.Monitored && e.Status == library.StatusMissing {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCatalog) SetStatus(_ context.Context, eventID int64, part int, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[lockKey(eventID, part)] = status
	return nil
}

type fakeProfiles struct{ profile quality.Profile }

func (f *fakeProfiles) Get(context.Context, int64) (*quality.Profile, error) {
	p := f.profile
	return &p, nil
}

// fakeSearcher counts concurrent SearchAll calls and can delay responses or
// fail outright.
type fakeSearcher struct {
	mu         sync.Mutex
	releases   []indexer.Release
	err        error
	delay      time.Duration
	inFlight   atomic.Int64
	maxFlight  atomic.Int64
	totalCalls atomic.Int64
}

func (f *fakeSearcher) SearchAll(ctx context.Context, _ indexer.SearchCriteria) (*search.Result, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxFlight.Load()
		if cur <= max || f.maxFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	f.totalCalls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &search.Result{Releases: f.releases, TotalResults: len(f.releases), IndexersUsed: 1}, nil
}

func (f *fakeSearcher) setResults(err error, releases ...indexer.Release) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.releases = releases
}

// fakeSelector accepts the first release as-is.
type fakeSelector struct{}

func (fakeSelector) Select(_ context.Context, releases []indexer.Release, _ *quality.Profile, _ decisioning.CurrentFile) (*decisioning.Decision, error) {
	if len(releases) == 0 {
		return &decisioning.Decision{}, nil
	}
	q, _ := quality.Detect(releases[0].Title)
	best := decisioning.ScoredRelease{Release: releases[0], Quality: q}
	return &decisioning.Decision{Best: &best, Accepted: []decisioning.ScoredRelease{best}}, nil
}

type fakeGateway struct {
	result downloader.AddResult
}

func (f *fakeGateway) Grab(context.Context, downloader.AddRequest) downloader.AddResult {
	return f.result
}

type fakeGrabs struct {
	mu      sync.Mutex
	created []history.GrabRecord
	states  map[string]string
}

func newFakeGrabs() *fakeGrabs {
	return &fakeGrabs{states: make(map[string]string)}
}

func (f *fakeGrabs) CreateGrab(_ context.Context, rec history.GrabRecord) (*history.GrabRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = lockKey(rec.EventID, rec.PartNumber)
	rec.State = history.StateQueued
	f.created = append(f.created, rec)
	f.states[rec.ID] = rec.State
	return &rec, nil
}

func (f *fakeGrabs) GetActiveGrab(_ context.Context, eventID int64, part int) (*history.GrabRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := lockKey(eventID, part)
	switch f.states[id] {
	case history.StateQueued, history.StateDownloading, history.StateCompleted:
		return &history.GrabRecord{ID: id, EventID: eventID, PartNumber: part, State: f.states[id]}, nil
	}
	return nil, history.ErrGrabNotFound
}

func (f *fakeGrabs) SetGrabDownload(_ context.Context, id string, _ int64, _ string) error {
	return nil
}

func (f *fakeGrabs) SetGrabState(_ context.Context, id, state, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = state
	return nil
}

func missingEvent(id int64) *library.Event {
	return &library.Event{
		ID:               id,
		Title:            "Grand Prix 2026",
		Monitored:        true,
		QualityProfileID: 1,
		Status:           library.StatusMissing,
	}
}

func webdlRelease() indexer.Release {
	return indexer.Release{
		Title:       "Grand Prix 2026 1080p WEB-DL x264-GRP",
		GUID:        "g1",
		DownloadURL: "http://indexer/dl/1",
		InfoHash:    "beef",
		Size:        6000 * 1024 * 1024,
	}
}

func newTestService(t *testing.T, catalog Catalog, searcher Searcher, gateway Gateway, grabs Grabs, opts Options) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	profile := quality.DefaultProfile()
	return NewService(tdb.Conn, catalog, &fakeProfiles{profile: profile}, searcher,
		fakeSelector{}, gateway, grabs, opts, tdb.Logger)
}

func TestSearchAndDownloadGrabs(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1))
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true, ClientID: 7, DownloadID: "beef"}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())
	outcome, err := svc.SearchAndDownload(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}

	if outcome.Status != OutcomeGrabbed {
		t.Fatalf("status = %q, want grabbed (reason %q)", outcome.Status, outcome.Reason)
	}
	if len(grabs.created) != 1 {
		t.Fatalf("created %d grab records, want 1", len(grabs.created))
	}
	if got := catalog.statuses[lockKey(1, 0)]; got != library.StatusGrabbed {
		t.Errorf("event status = %q, want grabbed", got)
	}
}

func TestSearchAndDownloadSingleFlight(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1))
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}, delay: 200 * time.Millisecond}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true, ClientID: 1, DownloadID: "beef"}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.SearchAndDownload(context.Background(), 1, 0, true)
			if err != nil {
				t.Errorf("SearchAndDownload: %v", err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	var grabbed, inProgress int
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeGrabbed:
			grabbed++
		case OutcomeAlreadyInProgress:
			inProgress++
		}
	}
	if grabbed != 1 || inProgress != 1 {
		t.Errorf("grabbed=%d inProgress=%d, want exactly one of each", grabbed, inProgress)
	}
	if len(grabs.created) != 1 {
		t.Errorf("created %d grab records, want 1 (no double dispatch)", len(grabs.created))
	}
}

func TestSearchAllMonitoredBoundsConcurrency(t *testing.T) {
	events := make([]*library.Event, 0, 8)
	for i := int64(1); i <= 8; i++ {
		e := missingEvent(i)
		e.ID = i
		events = append(events, e)
	}
	catalog := newFakeCatalog(events...)
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}, delay: 50 * time.Millisecond}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true, ClientID: 1, DownloadID: "beef"}}

	opts := DefaultOptions()
	opts.Workers = 2
	svc := newTestService(t, catalog, searcher, gateway, grabs, opts)

	outcomes, err := svc.SearchAllMonitored(context.Background())
	if err != nil {
		t.Fatalf("SearchAllMonitored: %v", err)
	}

	if len(outcomes) != 8 {
		t.Fatalf("got %d outcomes, want 8", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Status != OutcomeGrabbed {
			t.Errorf("event %d: status %q, want grabbed (reason %q)", o.EventID, o.Status, o.Reason)
		}
	}
	if max := searcher.maxFlight.Load(); max > 2 {
		t.Errorf("max concurrent searches = %d, want <= 2", max)
	}
}

func TestSearchNotMonitoredSkipped(t *testing.T) {
	e := missingEvent(1)
	e.Monitored = false
	catalog := newFakeCatalog(e)
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())

	outcome, err := svc.SearchAndDownload(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeNotMonitored {
		t.Errorf("automatic status = %q, want not_monitored", outcome.Status)
	}

	// Manual searches ignore monitoring.
	outcome, err = svc.SearchAndDownload(context.Background(), 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeGrabbed {
		t.Errorf("manual status = %q, want grabbed", outcome.Status)
	}
}

func TestBackoffBlocksAutomaticNotManual(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1))
	searcher := &fakeSearcher{} // no releases: every flight fails
	grabs := newFakeGrabs()
	gateway := &fakeGateway{}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())
	ctx := context.Background()

	outcome, err := svc.SearchAndDownload(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeNoResults {
		t.Fatalf("first flight = %q, want no_results", outcome.Status)
	}

	outcome, err = svc.SearchAndDownload(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeBackedOff {
		t.Errorf("second automatic flight = %q, want backed_off", outcome.Status)
	}

	outcome, err = svc.SearchAndDownload(ctx, 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeNoResults {
		t.Errorf("manual flight = %q, want no_results (backoff bypassed)", outcome.Status)
	}
}

func TestActiveGrabBlocksRedispatch(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1))
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true, ClientID: 1, DownloadID: "beef"}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())
	ctx := context.Background()

	outcome, err := svc.SearchAndDownload(ctx, 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeGrabbed {
		t.Fatalf("first flight = %q, want grabbed", outcome.Status)
	}

	// The first grab is still queued; a second flight for the same target
	// must not dispatch again even though the flight lock is free.
	outcome, err = svc.SearchAndDownload(ctx, 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeAlreadyInProgress {
		t.Errorf("second flight = %q, want already_in_progress", outcome.Status)
	}
	if len(grabs.created) != 1 {
		t.Errorf("created %d grab records, want 1", len(grabs.created))
	}

	// Once the grab reaches a terminal state the target is searchable again.
	if err := grabs.SetGrabState(ctx, outcome.GrabID, history.StateFailed, "lost"); err != nil {
		t.Fatalf("SetGrabState: %v", err)
	}
	outcome, err = svc.SearchAndDownload(ctx, 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeGrabbed {
		t.Errorf("flight after failure = %q, want grabbed", outcome.Status)
	}
}

func TestNoIndexersAbortsSweepWithoutBackoff(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1), missingEvent(2))
	searcher := &fakeSearcher{err: search.ErrNoIndexers}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Success: true, ClientID: 1, DownloadID: "beef"}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())
	ctx := context.Background()

	if _, err := svc.SearchAllMonitored(ctx); !errors.Is(err, search.ErrNoIndexers) {
		t.Fatalf("SearchAllMonitored error = %v, want ErrNoIndexers", err)
	}
	if len(grabs.created) != 0 {
		t.Fatalf("created %d grab records, want 0", len(grabs.created))
	}

	// A configuration error must not push targets into backoff: once an
	// indexer is enabled, the next automatic flight runs immediately.
	searcher.setResults(nil, webdlRelease())
	outcome, err := svc.SearchAndDownload(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}
	if outcome.Status != OutcomeGrabbed {
		t.Errorf("status after fixing configuration = %q, want grabbed", outcome.Status)
	}
}

func TestDispatchFailureMarksGrabFailed(t *testing.T) {
	catalog := newFakeCatalog(missingEvent(1))
	searcher := &fakeSearcher{releases: []indexer.Release{webdlRelease()}}
	grabs := newFakeGrabs()
	gateway := &fakeGateway{result: downloader.AddResult{Error: "no enabled download clients"}}

	svc := newTestService(t, catalog, searcher, gateway, grabs, DefaultOptions())
	outcome, err := svc.SearchAndDownload(context.Background(), 1, 0, true)
	if err != nil {
		t.Fatalf("SearchAndDownload: %v", err)
	}

	if outcome.Status != OutcomeDispatchFailed {
		t.Fatalf("status = %q, want dispatch_failed", outcome.Status)
	}
	if got := grabs.states[outcome.GrabID]; got != history.StateFailed {
		t.Errorf("grab state = %q, want failed", got)
	}
}
