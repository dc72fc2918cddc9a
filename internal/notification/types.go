package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnknownType          = errors.New("unknown notifier type")
	ErrInvalidSettings      = errors.New("invalid notification settings")
)

// Notifier types.
const (
	TypeWebhook = "webhook"
	TypeMock    = "mock"
)

// GrabEvent is emitted when a release is sent to a download client.
type GrabEvent struct {
	EventTitle     string    `json:"eventTitle"`
	Part           int       `json:"part,omitempty"`
	ReleaseTitle   string    `json:"releaseTitle"`
	Quality        string    `json:"quality"`
	Indexer        string    `json:"indexer,omitempty"`
	DownloadClient string    `json:"downloadClient,omitempty"`
	GrabbedAt      time.Time `json:"grabbedAt"`
}

// ImportEvent is emitted when a completed download lands in the library.
type ImportEvent struct {
	EventTitle string    `json:"eventTitle"`
	Part       int       `json:"part,omitempty"`
	DestPath   string    `json:"destPath"`
	Quality    string    `json:"quality"`
	IsUpgrade  bool      `json:"isUpgrade"`
	ImportedAt time.Time `json:"importedAt"`
}

// HealthEvent is emitted for operational problems worth surfacing.
type HealthEvent struct {
	Source     string    `json:"source"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers events to one destination.
type Notifier interface {
	Name() string
	Test(ctx context.Context) error
	OnGrab(ctx context.Context, event GrabEvent) error
	OnImport(ctx context.Context, event ImportEvent) error
	OnHealth(ctx context.Context, event HealthEvent) error
}

// Factory builds a Notifier from a stored config.
type Factory func(cfg Config) (Notifier, error)

// Config is a notification destination stored in the database.
type Config struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Enabled  bool            `json:"enabled"`
	Settings json.RawMessage `json:"settings"`

	OnGrab   bool `json:"onGrab"`
	OnImport bool `json:"onImport"`
	OnHealth bool `json:"onHealth"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
