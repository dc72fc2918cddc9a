// Package downloader is the gateway to external download clients. Gateway
// methods return typed results instead of errors: a client being down is an
// expected condition, not a pipeline failure.
package downloader

import (
	"context"
	"errors"
	"time"
)

// Client types with built-in backend support.
const (
	TypeQBittorrent = "qbittorrent"
	TypeMock        = "mock"
)

// Download statuses as reported by the gateway.
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusUnknown     = "unknown"
)

var (
	ErrClientNotFound  = errors.New("download client not found")
	ErrUnknownType     = errors.New("unknown download client type")
	ErrNoClients       = errors.New("no enabled download clients")
	ErrDownloadMissing = errors.New("download not found on client")
)

// ClientConfig is a configured download client.
type ClientConfig struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Username string    `json:"username"`
	Password string    `json:"-"`
	UseSSL   bool      `json:"useSsl"`
	Category string    `json:"category"`
	Enabled  bool      `json:"enabled"`
	AddedAt  time.Time `json:"addedAt"`
}

// AddRequest asks a client to start one download.
type AddRequest struct {
	Title       string
	DownloadURL string
	InfoHash    string
	Category    string
}

// DownloadStatus is one download as seen on a client.
type DownloadStatus struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"` // 0..1
	Size        int64   `json:"size"`
	SavePath    string  `json:"savePath"`
	ContentPath string  `json:"contentPath"`
	Category    string  `json:"category"`
}

// AddResult is the typed outcome of an add.
type AddResult struct {
	Success    bool   `json:"success"`
	ClientID   int64  `json:"clientId,omitempty"`
	DownloadID string `json:"downloadId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StatusResult is the typed outcome of a status query.
type StatusResult struct {
	Success bool            `json:"success"`
	Status  *DownloadStatus `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OpResult is the typed outcome of a control operation.
type OpResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Backend talks to one download client implementation.
type Backend interface {
	Test(ctx context.Context) error
	Add(ctx context.Context, req AddRequest) (string, error)
	Status(ctx context.Context, id string) (*DownloadStatus, error)
	List(ctx context.Context, category string) ([]DownloadStatus, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, deleteFiles bool) error
	SetCategory(ctx context.Context, id, category string) error
}

// BackendFactory constructs a backend for a client config.
type BackendFactory func(cfg ClientConfig) Backend
