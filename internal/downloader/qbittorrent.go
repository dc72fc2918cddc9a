package downloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
)

// qbitBackend adapts the qBittorrent Web API.
type qbitBackend struct {
	client *qbt.Client
	cfg    ClientConfig
}

// NewQBittorrentBackend creates a backend for a qBittorrent instance.
func NewQBittorrentBackend(cfg ClientConfig) Backend {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	host := fmt.Sprintf("%s://%s", scheme, cfg.Host)
	if cfg.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, cfg.Port)
	}

	client := qbt.NewClient(qbt.Config{
		Host:     host,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  30,
	})
	return &qbitBackend{client: client, cfg: cfg}
}

func (b *qbitBackend) Test(ctx context.Context) error {
	if err := b.client.LoginCtx(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

func (b *qbitBackend) Add(ctx context.Context, req AddRequest) (string, error) {
	opts := map[string]string{}
	if req.Category != "" {
		opts["category"] = req.Category
	}
	if err := b.client.AddTorrentFromUrlCtx(ctx, req.DownloadURL, opts); err != nil {
		return "", fmt.Errorf("failed to add torrent: %w", err)
	}

	if req.InfoHash != "" {
		return strings.ToLower(req.InfoHash), nil
	}
	return b.findByName(ctx, req.Title, req.Category)
}

// findByName resolves the hash of a just-added torrent when the release
// carried no info hash. The client may need a moment to register it.
func (b *qbitBackend) findByName(ctx context.Context, title, category string) (string, error) {
	norm := normalizeName(title)
	for attempt := 0; attempt < 5; attempt++ {
		torrents, err := b.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: category})
		if err == nil {
			for _, t := range torrents {
				if normalizeName(t.Name) == norm {
					return strings.ToLower(t.Hash), nil
				}
			}
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("added torrent %q not found on client", title)
}

func (b *qbitBackend) Status(ctx context.Context, id string) (*DownloadStatus, error) {
	torrents, err := b.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("failed to get torrent: %w", err)
	}
	if len(torrents) == 0 {
		return nil, ErrDownloadMissing
	}
	status := torrentStatus(torrents[0])
	return &status, nil
}

func (b *qbitBackend) List(ctx context.Context, category string) ([]DownloadStatus, error) {
	torrents, err := b.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Category: category})
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}
	statuses := make([]DownloadStatus, len(torrents))
	for i, t := range torrents {
		statuses[i] = torrentStatus(t)
	}
	return statuses, nil
}

func (b *qbitBackend) Pause(ctx context.Context, id string) error {
	return b.client.PauseCtx(ctx, []string{id})
}

func (b *qbitBackend) Resume(ctx context.Context, id string) error {
	return b.client.ResumeCtx(ctx, []string{id})
}

func (b *qbitBackend) Remove(ctx context.Context, id string, deleteFiles bool) error {
	return b.client.DeleteTorrentsCtx(ctx, []string{id}, deleteFiles)
}

func (b *qbitBackend) SetCategory(ctx context.Context, id, category string) error {
	return b.client.SetCategoryCtx(ctx, []string{id}, category)
}

// torrentStatus maps a qBittorrent torrent to the gateway's view.
func torrentStatus(t qbt.Torrent) DownloadStatus {
	return DownloadStatus{
		ID:          strings.ToLower(t.Hash),
		Name:        t.Name,
		Status:      mapState(string(t.State), t.Progress),
		Progress:    t.Progress,
		Size:        t.Size,
		SavePath:    t.SavePath,
		ContentPath: t.ContentPath,
		Category:    t.Category,
	}
}

// mapState collapses qBittorrent's state strings. A fully downloaded torrent
// counts as completed regardless of its seeding state.
func mapState(state string, progress float64) string {
	if progress >= 1 {
		return StatusCompleted
	}
	lower := strings.ToLower(state)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "missingfiles"):
		return StatusFailed
	case strings.Contains(lower, "paused") || strings.Contains(lower, "stopped"):
		return StatusPaused
	case strings.Contains(lower, "queued") || strings.Contains(lower, "checking") || lower == "allocating":
		return StatusQueued
	case strings.Contains(lower, "dl") || lower == "downloading" || lower == "metadl" || lower == "stalleddl":
		return StatusDownloading
	default:
		return StatusUnknown
	}
}

func normalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
