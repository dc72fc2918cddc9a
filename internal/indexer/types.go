// Package indexer manages indexer definitions and the clients that query
// them.
package indexer

import (
	"context"
	"time"
)

// Indexer types with built-in client support.
const (
	TypeTorznab = "torznab"
	TypeMock    = "mock"
)

// Protocols.
const (
	ProtocolTorrent = "torrent"
	ProtocolUsenet  = "usenet"
)

// Definition is a configured indexer.
type Definition struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	BaseURL  string    `json:"baseUrl"`
	APIKey   string    `json:"-"`
	Protocol string    `json:"protocol"`
	Priority int       `json:"priority"` // lower is preferred
	Enabled  bool      `json:"enabled"`
	AddedAt  time.Time `json:"addedAt"`
}

// SearchCriteria describes one event search.
type SearchCriteria struct {
	Query  string `json:"query"`
	Sport  string `json:"sport,omitempty"`
	Season int    `json:"season,omitempty"`
	Part   int    `json:"part,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Release is one candidate release returned by an indexer.
type Release struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	InfoHash    string    `json:"infoHash,omitempty"`
	DownloadURL string    `json:"downloadUrl"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"`
	Leechers    int       `json:"leechers"`
	PublishDate time.Time `json:"publishDate"`

	IndexerID       int64  `json:"indexerId"`
	IndexerName     string `json:"indexerName"`
	IndexerPriority int    `json:"-"`
	Protocol        string `json:"protocol"`
}

// Client queries one indexer.
type Client interface {
	Search(ctx context.Context, criteria SearchCriteria) ([]Release, error)
	Test(ctx context.Context) error
}
