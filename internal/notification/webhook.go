package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const instanceName = "Sportarr"

// WebhookSettings configures a webhook destination.
type WebhookSettings struct {
	URL      string            `json:"url"`
	Method   string            `json:"method,omitempty"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// webhookPayload is the JSON body sent to the endpoint.
type webhookPayload struct {
	EventType    string    `json:"eventType"`
	InstanceName string    `json:"instanceName"`
	Timestamp    time.Time `json:"timestamp"`

	EventTitle     string `json:"eventTitle,omitempty"`
	Part           int    `json:"part,omitempty"`
	ReleaseTitle   string `json:"releaseTitle,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Indexer        string `json:"indexer,omitempty"`
	DownloadClient string `json:"downloadClient,omitempty"`
	DestPath       string `json:"destPath,omitempty"`
	IsUpgrade      bool   `json:"isUpgrade,omitempty"`
	Message        string `json:"message,omitempty"`
}

// WebhookNotifier posts event payloads to a custom endpoint.
type WebhookNotifier struct {
	name       string
	settings   WebhookSettings
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewWebhookNotifier(name string, settings WebhookSettings, httpClient *http.Client, logger zerolog.Logger) *WebhookNotifier {
	if settings.Method == "" {
		settings.Method = http.MethodPost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookNotifier{
		name:       name,
		settings:   settings,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "webhook").Str("name", name).Logger(),
	}
}

func (n *WebhookNotifier) Name() string { return n.name }

func (n *WebhookNotifier) Test(ctx context.Context) error {
	return n.send(ctx, webhookPayload{
		EventType:    "test",
		InstanceName: instanceName,
		Message:      "Test notification from Sportarr",
		Timestamp:    time.Now().UTC(),
	})
}

func (n *WebhookNotifier) OnGrab(ctx context.Context, event GrabEvent) error {
	return n.send(ctx, webhookPayload{
		EventType:      "grab",
		InstanceName:   instanceName,
		Timestamp:      event.GrabbedAt,
		EventTitle:     event.EventTitle,
		Part:           event.Part,
		ReleaseTitle:   event.ReleaseTitle,
		Quality:        event.Quality,
		Indexer:        event.Indexer,
		DownloadClient: event.DownloadClient,
	})
}

func (n *WebhookNotifier) OnImport(ctx context.Context, event ImportEvent) error {
	return n.send(ctx, webhookPayload{
		EventType:    "import",
		InstanceName: instanceName,
		Timestamp:    event.ImportedAt,
		EventTitle:   event.EventTitle,
		Part:         event.Part,
		Quality:      event.Quality,
		DestPath:     event.DestPath,
		IsUpgrade:    event.IsUpgrade,
	})
}

func (n *WebhookNotifier) OnHealth(ctx context.Context, event HealthEvent) error {
	return n.send(ctx, webhookPayload{
		EventType:    "health",
		InstanceName: instanceName,
		Timestamp:    event.OccurredAt,
		Message:      fmt.Sprintf("%s: %s", event.Source, event.Message),
	})
}

func (n *WebhookNotifier) send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, n.settings.Method, n.settings.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.settings.Username != "" {
		req.SetBasicAuth(n.settings.Username, n.settings.Password)
	}
	for k, v := range n.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("eventType", payload.EventType).Msg("Webhook delivered")
	return nil
}
