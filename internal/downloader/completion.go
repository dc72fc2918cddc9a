package downloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/notification"
)

// Importer moves a completed download into the library.
type Importer interface {
	ImportCompleted(ctx context.Context, grab *history.GrabRecord, contentPath string) error
}

// HealthNotifier receives download and import failures.
type HealthNotifier interface {
	NotifyHealth(event notification.HealthEvent)
}

// CompletionPoller walks active grab records, advances their state from the
// download client's view and hands completed downloads to the importer. One
// record's failure never stops the sweep.
type CompletionPoller struct {
	gateway  *Service
	history  *history.Service
	importer Importer
	notifier HealthNotifier
	logger   zerolog.Logger
	limit    int
}

// SetNotifier attaches a failure notifier. Must be called before Poll.
func (p *CompletionPoller) SetNotifier(n HealthNotifier) {
	p.notifier = n
}

// NewCompletionPoller creates a poller. limit bounds how many records one
// sweep processes; zero means all.
func NewCompletionPoller(gateway *Service, hist *history.Service, importer Importer, limit int, logger zerolog.Logger) *CompletionPoller {
	return &CompletionPoller{
		gateway:  gateway,
		history:  hist,
		importer: importer,
		logger:   logger.With().Str("component", "completion").Logger(),
		limit:    limit,
	}
}

// Poll runs one sweep over active grabs.
func (p *CompletionPoller) Poll(ctx context.Context) error {
	grabs, err := p.history.ListActiveGrabs(ctx)
	if err != nil {
		return err
	}
	if p.limit > 0 && len(grabs) > p.limit {
		grabs = grabs[:p.limit]
	}

	for _, grab := range grabs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.advance(ctx, grab)
	}
	return nil
}

// advance moves one grab record forward.
func (p *CompletionPoller) advance(ctx context.Context, grab *history.GrabRecord) {
	if grab.DownloadID == "" || grab.ClientID == 0 {
		// Dispatched but never accepted by a client; nothing to poll.
		return
	}

	res := p.gateway.StatusOf(ctx, grab.ClientID, grab.DownloadID)
	if !res.Success {
		if strings.Contains(res.Error, ErrDownloadMissing.Error()) {
			p.logger.Warn().Str("grabId", grab.ID).Str("downloadId", grab.DownloadID).
				Msg("Download vanished from client, marking grab failed")
			p.setState(ctx, grab.ID, history.StateFailed, "download not found on client")
			p.notifyFailure("download", fmt.Sprintf("%s: download not found on client", grab.ReleaseTitle))
			return
		}
		// Client unreachable; leave the record for the next sweep.
		p.logger.Debug().Str("grabId", grab.ID).Str("error", res.Error).
			Msg("Download status unavailable")
		return
	}

	switch res.Status.Status {
	case StatusDownloading, StatusQueued, StatusPaused:
		if grab.State == history.StateQueued && res.Status.Status == StatusDownloading {
			p.setState(ctx, grab.ID, history.StateDownloading, "")
		}
	case StatusFailed:
		p.setState(ctx, grab.ID, history.StateFailed, "download failed on client")
		p.notifyFailure("download", fmt.Sprintf("%s: download failed on client", grab.ReleaseTitle))
	case StatusCompleted:
		if grab.State != history.StateCompleted {
			p.setState(ctx, grab.ID, history.StateCompleted, "")
		}
		if err := p.importer.ImportCompleted(ctx, grab, res.Status.ContentPath); err != nil {
			p.logger.Error().Err(err).Str("grabId", grab.ID).
				Str("contentPath", res.Status.ContentPath).Msg("Import failed")
			p.setState(ctx, grab.ID, history.StateFailed, err.Error())
			p.notifyFailure("import", fmt.Sprintf("%s: %v", grab.ReleaseTitle, err))
			return
		}
	}
}

func (p *CompletionPoller) notifyFailure(source, message string) {
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyHealth(notification.HealthEvent{
		Source:     source,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *CompletionPoller) setState(ctx context.Context, id, state, errMsg string) {
	if err := p.history.SetGrabState(ctx, id, state, errMsg); err != nil {
		p.logger.Warn().Err(err).Str("grabId", id).Msg("Failed to update grab state")
	}
}
