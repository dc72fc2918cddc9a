// Package quality defines quality tiers, detection and profiles.
package quality

import (
	"strings"

	"github.com/moistari/rls"
)

// Quality represents a quality tier.
type Quality struct {
	Rank       int    `json:"rank"` // higher = better
	Name       string `json:"name"`
	Source     string `json:"source"`     // "tv", "webrip", "webdl", "bluray", "remux"
	Resolution int    `json:"resolution"` // 480, 720, 1080, 2160
}

// Qualities is the ordered classification table, lowest rank first.
// Resolution dominates; source breaks ties within a resolution.
var Qualities = []Quality{
	{Rank: 1, Name: "SDTV", Source: "tv", Resolution: 480},
	{Rank: 2, Name: "DVD", Source: "dvd", Resolution: 480},
	{Rank: 3, Name: "WEBRip-480p", Source: "webrip", Resolution: 480},
	{Rank: 4, Name: "HDTV-720p", Source: "tv", Resolution: 720},
	{Rank: 5, Name: "WEBRip-720p", Source: "webrip", Resolution: 720},
	{Rank: 6, Name: "WEBDL-720p", Source: "webdl", Resolution: 720},
	{Rank: 7, Name: "Bluray-720p", Source: "bluray", Resolution: 720},
	{Rank: 8, Name: "HDTV-1080p", Source: "tv", Resolution: 1080},
	{Rank: 9, Name: "WEBRip-1080p", Source: "webrip", Resolution: 1080},
	{Rank: 10, Name: "WEBDL-1080p", Source: "webdl", Resolution: 1080},
	{Rank: 11, Name: "Bluray-1080p", Source: "bluray", Resolution: 1080},
	{Rank: 12, Name: "Remux-1080p", Source: "remux", Resolution: 1080},
	{Rank: 13, Name: "HDTV-2160p", Source: "tv", Resolution: 2160},
	{Rank: 14, Name: "WEBRip-2160p", Source: "webrip", Resolution: 2160},
	{Rank: 15, Name: "WEBDL-2160p", Source: "webdl", Resolution: 2160},
	{Rank: 16, Name: "Bluray-2160p", Source: "bluray", Resolution: 2160},
	{Rank: 17, Name: "Remux-2160p", Source: "remux", Resolution: 2160},
}

var qualityByRank map[int]Quality

func init() {
	qualityByRank = make(map[int]Quality, len(Qualities))
	for _, q := range Qualities {
		qualityByRank[q.Rank] = q
	}
}

// ByRank returns a quality by its rank.
func ByRank(rank int) (Quality, bool) {
	q, ok := qualityByRank[rank]
	return q, ok
}

// ByName finds a quality by name.
func ByName(name string) (Quality, bool) {
	for _, q := range Qualities {
		if strings.EqualFold(q.Name, name) {
			return q, true
		}
	}
	return Quality{}, false
}

// MaxRank is the highest defined quality rank.
const MaxRank = 17

// Attributes holds release attributes parsed from a title.
type Attributes struct {
	Resolution int
	Source     string // normalized: "tv", "webrip", "webdl", "bluray", "remux", "dvd", ""
	Codec      string
	HDR        []string
	Audio      []string
	Group      string
	Year       int
	Proper     bool
	Pack       bool // multi-part collection release
}

// Detect classifies a release title into a quality rank.
// It is a pure function: the same title always yields the same result.
// Returns the zero Quality and false when no tier can be determined.
func Detect(title string) (Quality, bool) {
	attrs := ParseAttributes(title)
	return classify(attrs)
}

// ParseAttributes extracts classification attributes from a release title.
func ParseAttributes(title string) Attributes {
	r := rls.ParseString(title)

	attrs := Attributes{
		Resolution: parseResolution(r.Resolution),
		Source:     normalizeSource(r.Source),
		Group:      r.Group,
		Year:       r.Year,
		HDR:        r.HDR,
		Audio:      r.Audio,
	}
	if len(r.Codec) > 0 {
		attrs.Codec = r.Codec[0]
	}

	upper := strings.ToUpper(title)
	if strings.Contains(upper, "REMUX") {
		attrs.Source = "remux"
	}
	if strings.Contains(upper, "PROPER") || strings.Contains(upper, "REPACK") {
		attrs.Proper = true
	}
	// A release spanning a whole season or carrying no episode marker in a
	// multi-part context is treated as a pack.
	if r.Series > 0 && r.Episode == 0 {
		attrs.Pack = true
	}
	if strings.Contains(upper, "COMPLETE") || strings.Contains(upper, ".PACK.") {
		attrs.Pack = true
	}

	return attrs
}

// classify maps attributes to the quality table.
func classify(attrs Attributes) (Quality, bool) {
	if attrs.Resolution == 0 {
		// No resolution token at all - only DVD/SDTV sources classify.
		switch attrs.Source {
		case "dvd":
			return mustByName("DVD"), true
		case "tv":
			return mustByName("SDTV"), true
		}
		return Quality{}, false
	}

	source := attrs.Source
	if source == "" {
		// Resolution without source: assume the most common origin per tier.
		source = "webdl"
	}

	for _, q := range Qualities {
		if q.Resolution == attrs.Resolution && q.Source == source {
			return q, true
		}
	}

	// Known resolution, unmatched source: fall back to the lowest tier at
	// that resolution so the release stays comparable.
	for _, q := range Qualities {
		if q.Resolution == attrs.Resolution {
			return q, true
		}
	}

	return Quality{}, false
}

func mustByName(name string) Quality {
	q, _ := ByName(name)
	return q
}

func parseResolution(resolution string) int {
	switch strings.ToLower(resolution) {
	case "2160p", "4k", "uhd":
		return 2160
	case "1080p", "1080i":
		return 1080
	case "720p":
		return 720
	case "576p", "480p", "sd":
		return 480
	default:
		return 0
	}
}

func normalizeSource(source string) string {
	switch strings.ToLower(strings.ReplaceAll(source, "-", "")) {
	case "bluray", "bdrip", "brrip", "bd":
		return "bluray"
	case "webdl", "web":
		return "webdl"
	case "webrip":
		return "webrip"
	case "hdtv", "sdtv", "pdtv", "tv":
		return "tv"
	case "dvd", "dvdrip":
		return "dvd"
	case "remux":
		return "remux"
	default:
		return ""
	}
}
