// Package library manages the event catalog: sports events, their parts and
// the file metadata recorded after import.
package library

import "time"

// Event statuses. Grabbed means a release was sent to a download client and
// the pipeline is waiting on completion; available means a file is on disk.
// An upgrade in flight is a grabbed target whose FileMeta still holds the
// previous import (Status == StatusGrabbed && File.HasFile()); the old file
// stays in place until the better one lands.
const (
	StatusMissing   = "missing"
	StatusGrabbed   = "grabbed"
	StatusAvailable = "available"
)

// FileMeta describes the imported file backing an event or part.
type FileMeta struct {
	Path        string `json:"path"`
	QualityRank int    `json:"qualityRank"`
	FormatScore int    `json:"formatScore"`
	Size        int64  `json:"size"`
}

// HasFile reports whether a file has been imported.
func (f FileMeta) HasFile() bool {
	return f.Path != ""
}

// Part is one numbered segment of a multi-part event, such as a session or
// a stage. Part 0 never exists; single-part events carry no parts at all.
type Part struct {
	ID         int64    `json:"id"`
	EventID    int64    `json:"eventId"`
	PartNumber int      `json:"partNumber"`
	Name       string   `json:"name"`
	Monitored  bool     `json:"monitored"`
	Status     string   `json:"status"`
	File       FileMeta `json:"file"`
}

// Event is a single catalog entry: one sports event, optionally split into
// numbered parts.
type Event struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Sport            string    `json:"sport"`
	Season           int       `json:"season"`
	AirDate          time.Time `json:"airDate"`
	Monitored        bool      `json:"monitored"`
	QualityProfileID int64     `json:"qualityProfileId"`
	RootFolder       string    `json:"rootFolder"`
	Status           string    `json:"status"`
	File             FileMeta  `json:"file"`
	Parts            []Part    `json:"parts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PartByNumber returns the part with the given number, or nil.
func (e *Event) PartByNumber(n int) *Part {
	for i := range e.Parts {
		if e.Parts[i].PartNumber == n {
			return &e.Parts[i]
		}
	}
	return nil
}

// CreateEventInput carries the fields for a new catalog entry.
type CreateEventInput struct {
	Title            string   `json:"title"`
	Sport            string   `json:"sport"`
	Season           int      `json:"season"`
	AirDate          string   `json:"airDate"`
	Monitored        bool     `json:"monitored"`
	QualityProfileID int64    `json:"qualityProfileId"`
	RootFolder       string   `json:"rootFolder"`
	PartNames        []string `json:"partNames,omitempty"`
}

// UpdateEventInput carries partial updates; nil fields are left unchanged.
type UpdateEventInput struct {
	Title            *string `json:"title,omitempty"`
	Sport            *string `json:"sport,omitempty"`
	Season           *int    `json:"season,omitempty"`
	Monitored        *bool   `json:"monitored,omitempty"`
	QualityProfileID *int64  `json:"qualityProfileId,omitempty"`
	RootFolder       *string `json:"rootFolder,omitempty"`
}
