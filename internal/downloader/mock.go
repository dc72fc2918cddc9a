package downloader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
)

// MockBackend is an in-memory download client for development and tests.
// Downloads complete after a configurable number of status polls.
type MockBackend struct {
	mu           sync.Mutex
	downloads    map[string]*mockDownload
	pollsPerDone int
	failWith     error
	savePath     string
}

type mockDownload struct {
	status DownloadStatus
	polls  int
}

// NewMockBackend creates a mock backend whose downloads finish after two
// status polls.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		downloads:    make(map[string]*mockDownload),
		pollsPerDone: 2,
		savePath:     "/downloads",
	}
}

// SetPollsPerDone sets how many status polls a download needs to complete.
func (m *MockBackend) SetPollsPerDone(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollsPerDone = n
}

// SetError makes every operation fail.
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockBackend) Test(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}

func (m *MockBackend) Add(ctx context.Context, req AddRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}

	id := strings.ToLower(req.InfoHash)
	if id == "" {
		sum := sha1.Sum([]byte(req.DownloadURL))
		id = hex.EncodeToString(sum[:])
	}
	m.downloads[id] = &mockDownload{status: DownloadStatus{
		ID:          id,
		Name:        req.Title,
		Status:      StatusDownloading,
		Size:        1 << 30,
		SavePath:    m.savePath,
		ContentPath: m.savePath + "/" + req.Title,
		Category:    req.Category,
	}}
	return id, nil
}

func (m *MockBackend) Status(ctx context.Context, id string) (*DownloadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	d, ok := m.downloads[id]
	if !ok {
		return nil, ErrDownloadMissing
	}

	if d.status.Status == StatusDownloading {
		d.polls++
		d.status.Progress = float64(d.polls) / float64(m.pollsPerDone)
		if d.polls >= m.pollsPerDone {
			d.status.Progress = 1
			d.status.Status = StatusCompleted
		}
	}
	status := d.status
	return &status, nil
}

func (m *MockBackend) List(ctx context.Context, category string) ([]DownloadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []DownloadStatus
	for _, d := range m.downloads {
		if category == "" || d.status.Category == category {
			out = append(out, d.status)
		}
	}
	return out, nil
}

func (m *MockBackend) Pause(ctx context.Context, id string) error {
	return m.setStatus(id, StatusPaused)
}

func (m *MockBackend) Resume(ctx context.Context, id string) error {
	return m.setStatus(id, StatusDownloading)
}

func (m *MockBackend) Remove(ctx context.Context, id string, deleteFiles bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.downloads, id)
	return nil
}

func (m *MockBackend) SetCategory(ctx context.Context, id, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[id]
	if !ok {
		return ErrDownloadMissing
	}
	d.status.Category = category
	return nil
}

func (m *MockBackend) setStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	d, ok := m.downloads[id]
	if !ok {
		return ErrDownloadMissing
	}
	if d.status.Status != StatusCompleted {
		d.status.Status = status
	}
	return nil
}
