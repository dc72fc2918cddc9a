// Package customformat implements custom format rules, matching and the
// versioned match cache.
package customformat

import (
	"fmt"
	"regexp"

	"github.com/sportarr/sportarr/internal/quality"
)

// Field identifies the release attribute a predicate evaluates.
type Field string

const (
	FieldTitle      Field = "title"
	FieldSource     Field = "source"
	FieldResolution Field = "resolution"
	FieldCodec      Field = "codec"
	FieldHDR        Field = "hdr"
	FieldAudio      Field = "audio"
	FieldGroup      Field = "group"
)

// Predicate is a single regular-expression condition over one attribute.
type Predicate struct {
	Field    Field  `json:"field" yaml:"field"`
	Pattern  string `json:"pattern" yaml:"pattern"`
	Negate   bool   `json:"negate" yaml:"negate"`
	Required bool   `json:"required" yaml:"required"`

	re *regexp.Regexp
}

// Compile prepares the predicate's pattern. Patterns are case-insensitive.
func (p *Predicate) Compile() error {
	re, err := regexp.Compile("(?i)" + p.Pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", p.Pattern, err)
	}
	p.re = re
	return nil
}

// Rule is a named custom format: an ordered set of predicates.
type Rule struct {
	ID         int64       `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Predicates []Predicate `json:"predicates" yaml:"predicates"`

	// PenalizesMissingGroup marks formats whose purpose is to penalize
	// releases lacking a single release-group identity. Pack releases are
	// expected to lack one, so their negative score is skipped for packs.
	PenalizesMissingGroup bool `json:"penalizesMissingGroup" yaml:"penalizes_missing_group"`
}

// Compile prepares all predicates of the rule.
func (r *Rule) Compile() error {
	for i := range r.Predicates {
		if err := r.Predicates[i].Compile(); err != nil {
			return fmt.Errorf("format %q: %w", r.Name, err)
		}
	}
	return nil
}

// Ruleset is an ordered, compiled set of rules sharing a version stamp.
type Ruleset struct {
	Rules   []Rule
	Version int64
}

// ReleaseAttributes is the matcher's view of a release.
type ReleaseAttributes struct {
	Title string
	Size  int64
	Attrs quality.Attributes
}

// AttributesFromTitle builds matcher input from a raw release title.
func AttributesFromTitle(title string, size int64) ReleaseAttributes {
	return ReleaseAttributes{
		Title: title,
		Size:  size,
		Attrs: quality.ParseAttributes(title),
	}
}
