package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWebhookOnGrabPayload(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("test", WebhookSettings{
		URL:      srv.URL,
		Username: "user",
		Password: "pass",
	}, srv.Client(), zerolog.Nop())

	event := GrabEvent{
		EventTitle:   "Grand Prix 2026",
		Part:         2,
		ReleaseTitle: "Grand.Prix.2026.Part.2.1080p.WEB-DL",
		Quality:      "WEBDL-1080p",
		Indexer:      "tracker",
		GrabbedAt:    time.Now().UTC(),
	}
	if err := n.OnGrab(context.Background(), event); err != nil {
		t.Fatalf("OnGrab: %v", err)
	}

	if got.EventType != "grab" {
		t.Errorf("eventType = %q, want grab", got.EventType)
	}
	if got.EventTitle != event.EventTitle || got.Part != 2 || got.Quality != "WEBDL-1080p" {
		t.Errorf("payload = %+v, missing event fields", got)
	}
	if auth == "" {
		t.Error("basic auth header not sent")
	}
}

func TestWebhookCustomHeadersAndMethod(t *testing.T) {
	var method, headerVal string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		headerVal = r.Header.Get("X-Token")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("test", WebhookSettings{
		URL:     srv.URL,
		Method:  http.MethodPut,
		Headers: map[string]string{"X-Token": "secret"},
	}, srv.Client(), zerolog.Nop())

	if err := n.Test(context.Background()); err != nil {
		t.Fatalf("Test: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %q, want PUT", method)
	}
	if headerVal != "secret" {
		t.Errorf("X-Token = %q, want secret", headerVal)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier("test", WebhookSettings{URL: srv.URL}, srv.Client(), zerolog.Nop())
	if err := n.Test(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
