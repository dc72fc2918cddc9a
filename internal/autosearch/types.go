// Package autosearch orchestrates the acquisition pipeline: search, select,
// dispatch. Every target is searched by at most one flight at a time.
package autosearch

import (
	"context"

	"github.com/sportarr/sportarr/internal/decisioning"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/quality"
)

// Outcome statuses.
const (
	OutcomeGrabbed           = "grabbed"
	OutcomeNoResults         = "no_results"
	OutcomeNoCandidate       = "no_candidate"
	OutcomeAlreadyInProgress = "already_in_progress"
	OutcomeBackedOff         = "backed_off"
	OutcomeNotMonitored      = "not_monitored"
	OutcomeDispatchFailed    = "dispatch_failed"
)

// Outcome is the typed result of one search-and-download attempt.
type Outcome struct {
	EventID int64                      `json:"eventId"`
	Part    int                        `json:"part,omitempty"`
	Status  string                     `json:"status"`
	Reason  string                     `json:"reason,omitempty"`
	Release *decisioning.ScoredRelease `json:"release,omitempty"`
	GrabID  string                     `json:"grabId,omitempty"`
}

// Catalog is the library surface the orchestrator needs.
type Catalog interface {
	Get(ctx context.Context, id int64) (*library.Event, error)
	ListMonitoredMissing(ctx context.Context) ([]*library.Event, error)
	SetStatus(ctx context.Context, eventID int64, partNumber int, status string) error
}

// Profiles resolves quality profiles.
type Profiles interface {
	Get(ctx context.Context, id int64) (*quality.Profile, error)
}

// Searcher fans a query out across indexers.
type Searcher interface {
	SearchAll(ctx context.Context, criteria indexer.SearchCriteria) (*search.Result, error)
}

// ReleaseSelector picks the best release for a profile.
type ReleaseSelector interface {
	Select(ctx context.Context, releases []indexer.Release, profile *quality.Profile, current decisioning.CurrentFile) (*decisioning.Decision, error)
}

// Gateway dispatches a release to a download client.
type Gateway interface {
	Grab(ctx context.Context, req downloader.AddRequest) downloader.AddResult
}

// Grabs records grab history.
type Grabs interface {
	CreateGrab(ctx context.Context, rec history.GrabRecord) (*history.GrabRecord, error)
	GetActiveGrab(ctx context.Context, eventID int64, partNumber int) (*history.GrabRecord, error)
	SetGrabDownload(ctx context.Context, id string, clientID int64, downloadID string) error
	SetGrabState(ctx context.Context, id, state, errMsg string) error
}
