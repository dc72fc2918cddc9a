package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is an in-memory indexer used for development and tests. It
// serves a fixed catalog of releases filtered by query terms.
type MockClient struct {
	def      Definition
	catalog  []Release
	delay    time.Duration
	failWith error
}

// NewMockClient creates a mock indexer with the given catalog.
func NewMockClient(def Definition, catalog []Release) *MockClient {
	return &MockClient{def: def, catalog: catalog}
}

// SetDelay makes every search wait before responding.
func (m *MockClient) SetDelay(d time.Duration) { m.delay = d }

// SetError makes every search fail.
func (m *MockClient) SetError(err error) { m.failWith = err }

func (m *MockClient) Test(ctx context.Context) error {
	return m.failWith
}

func (m *MockClient) Search(ctx context.Context, criteria SearchCriteria) ([]Release, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failWith != nil {
		return nil, m.failWith
	}

	terms := strings.Fields(strings.ToLower(buildQuery(criteria)))
	var results []Release
	for _, rel := range m.catalog {
		title := strings.ToLower(strings.NewReplacer(".", " ", "_", " ").Replace(rel.Title))
		matched := true
		for _, term := range terms {
			if !strings.Contains(title, term) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		rel.IndexerID = m.def.ID
		rel.IndexerName = m.def.Name
		rel.IndexerPriority = m.def.Priority
		if rel.Protocol == "" {
			rel.Protocol = ProtocolTorrent
		}
		if rel.GUID == "" {
			rel.GUID = fmt.Sprintf("mock-%d-%s", m.def.ID, title)
		}
		results = append(results, rel)
		if criteria.Limit > 0 && len(results) >= criteria.Limit {
			break
		}
	}
	return results, nil
}
