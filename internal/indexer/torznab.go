package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TorznabClient queries a torznab-compatible API endpoint.
type TorznabClient struct {
	def    Definition
	client *http.Client
}

// NewTorznabClient creates a client for one torznab indexer.
func NewTorznabClient(def Definition) *TorznabClient {
	return &TorznabClient{
		def:    def,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Test verifies the endpoint responds to a capabilities request.
func (c *TorznabClient) Test(ctx context.Context) error {
	q := url.Values{}
	q.Set("t", "caps")
	if c.def.APIKey != "" {
		q.Set("apikey", c.def.APIKey)
	}
	_, err := c.fetch(ctx, q)
	if err != nil {
		return fmt.Errorf("capabilities check failed: %w", err)
	}
	return nil
}

// Search runs a text query against the indexer.
func (c *TorznabClient) Search(ctx context.Context, criteria SearchCriteria) ([]Release, error) {
	q := url.Values{}
	q.Set("t", "search")
	q.Set("q", buildQuery(criteria))
	if c.def.APIKey != "" {
		q.Set("apikey", c.def.APIKey)
	}
	if criteria.Limit > 0 {
		q.Set("limit", strconv.Itoa(criteria.Limit))
	}

	body, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return parseTorznabFeed(body, c.def)
}

// buildQuery flattens the criteria into a torznab text query. Part numbers
// are appended as "Part N", the form sports releases are tagged with.
func buildQuery(criteria SearchCriteria) string {
	parts := []string{criteria.Query}
	if criteria.Part > 0 {
		parts = append(parts, fmt.Sprintf("Part %d", criteria.Part))
	}
	return strings.Join(parts, " ")
}

func (c *TorznabClient) fetch(ctx context.Context, q url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(c.def.BaseURL, "/") + "/api?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Sportarr/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	const maxResponseSize = 10 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Torznab feed structures.

type torznabFeed struct {
	XMLName xml.Name       `xml:"rss"`
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title     string        `xml:"title"`
	GUID      string        `xml:"guid"`
	Link      string        `xml:"link"`
	PubDate   string        `xml:"pubDate"`
	Size      int64         `xml:"size"`
	Enclosure rssEnclosure  `xml:"enclosure"`
	Attrs     []torznabAttr `xml:"attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func parseTorznabFeed(data []byte, def Definition) ([]Release, error) {
	var feed torznabFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse torznab response: %w", err)
	}

	releases := make([]Release, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		downloadURL := item.Link
		if downloadURL == "" {
			downloadURL = item.Enclosure.URL
		}
		if downloadURL == "" {
			continue
		}

		size := item.Size
		if size == 0 && item.Enclosure.Length > 0 {
			size = item.Enclosure.Length
		}

		guid := item.GUID
		if guid == "" {
			guid = downloadURL
		}

		rel := Release{
			GUID:            guid,
			Title:           item.Title,
			DownloadURL:     downloadURL,
			Size:            size,
			PublishDate:     parseDate(item.PubDate),
			IndexerID:       def.ID,
			IndexerName:     def.Name,
			IndexerPriority: def.Priority,
			Protocol:        def.Protocol,
		}
		for _, attr := range item.Attrs {
			switch attr.Name {
			case "seeders":
				rel.Seeders, _ = strconv.Atoi(attr.Value)
			case "peers":
				rel.Leechers, _ = strconv.Atoi(attr.Value)
			case "infohash":
				rel.InfoHash = strings.ToLower(attr.Value)
			case "size":
				if rel.Size == 0 {
					rel.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
				}
			}
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

func parseDate(s string) time.Time {
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
