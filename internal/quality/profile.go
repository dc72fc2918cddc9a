package quality

import (
	"encoding/json"
	"time"
)

// ProfileItem represents a quality in a profile with its allowed status.
type ProfileItem struct {
	Quality Quality `json:"quality"`
	Allowed bool    `json:"allowed"`
}

// Profile represents a quality profile.
type Profile struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	CutoffRank int           `json:"cutoffRank"` // rank at which quality upgrades stop
	Items      []ProfileItem `json:"items"`      // ordered list of qualities

	// Format score thresholds.
	MinFormatScore       int `json:"minFormatScore"`
	CutoffFormatScore    int `json:"cutoffFormatScore"`
	FormatScoreIncrement int `json:"formatScoreIncrement"` // minimum delta to count as an upgrade

	// FormatScores maps custom format id to its score in this profile.
	FormatScores map[int64]int `json:"formatScores"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAllowed checks if a quality rank is acceptable for this profile.
func (p *Profile) IsAllowed(rank int) bool {
	for _, item := range p.Items {
		if item.Quality.Rank == rank && item.Allowed {
			return true
		}
	}
	return false
}

// IsRankUpgrade reports whether candidate rank improves on current rank.
// Once the cutoff is reached no quality upgrade is proposed.
func (p *Profile) IsRankUpgrade(currentRank, candidateRank int) bool {
	if currentRank >= p.CutoffRank {
		return false
	}
	if !p.IsAllowed(candidateRank) {
		return false
	}
	return candidateRank > currentRank
}

// MeetsCutoff reports whether both the quality cutoff and the format score
// cutoff are satisfied, meaning no further upgrade should be sought.
func (p *Profile) MeetsCutoff(rank, formatScore int) bool {
	return rank >= p.CutoffRank && formatScore >= p.CutoffFormatScore
}

// FormatScore returns the profile score for a format id, zero when unscored.
func (p *Profile) FormatScore(formatID int64) int {
	return p.FormatScores[formatID]
}

// PreferredSizeMB returns the preferred file size in megabytes for a rank.
// Distances to this value feed the selector's size tie-break, rounded to
// fixed chunks so near-equal candidates compare equal.
func PreferredSizeMB(rank int) int64 {
	q, ok := ByRank(rank)
	if !ok {
		return 0
	}
	switch q.Resolution {
	case 2160:
		if q.Source == "remux" {
			return 40000
		}
		return 16000
	case 1080:
		if q.Source == "remux" {
			return 20000
		}
		return 6000
	case 720:
		return 3000
	default:
		return 1200
	}
}

// SizeChunkMB is the granularity for size-distance comparisons.
const SizeChunkMB = 200

// DefaultProfile returns a profile that accepts all qualities.
func DefaultProfile() Profile {
	items := make([]ProfileItem, len(Qualities))
	for i, q := range Qualities {
		items[i] = ProfileItem{Quality: q, Allowed: true}
	}
	return Profile{
		Name:                 "Any",
		CutoffRank:           11, // Bluray-1080p
		Items:                items,
		FormatScoreIncrement: 1,
		FormatScores:         map[int64]int{},
	}
}

// HD1080pProfile returns a profile targeting 720p-1080p content.
func HD1080pProfile() Profile {
	items := make([]ProfileItem, len(Qualities))
	for i, q := range Qualities {
		items[i] = ProfileItem{
			Quality: q,
			Allowed: q.Resolution >= 720 && q.Resolution <= 1080,
		}
	}
	return Profile{
		Name:                 "HD-1080p",
		CutoffRank:           11, // Bluray-1080p
		Items:                items,
		FormatScoreIncrement: 1,
		FormatScores:         map[int64]int{},
	}
}

// SerializeItems converts profile items to JSON for database storage.
func SerializeItems(items []ProfileItem) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeserializeItems parses JSON profile items from the database.
func DeserializeItems(data string) ([]ProfileItem, error) {
	var items []ProfileItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SerializeFormatScores converts the score map to JSON.
func SerializeFormatScores(scores map[int64]int) (string, error) {
	data, err := json.Marshal(scores)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeserializeFormatScores parses a JSON score map.
func DeserializeFormatScores(data string) (map[int64]int, error) {
	scores := make(map[int64]int)
	if err := json.Unmarshal([]byte(data), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}
