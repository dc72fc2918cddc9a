package customformat

import (
	"strconv"
	"strings"

	"github.com/sportarr/sportarr/internal/quality"
)

// Match evaluates the ruleset against a release and returns the ids of
// matching formats, in ruleset order. It is pure and deterministic: the same
// inputs always produce the same output.
func Match(release ReleaseAttributes, ruleset *Ruleset) []int64 {
	matched := make([]int64, 0, 4)
	for i := range ruleset.Rules {
		if ruleMatches(&ruleset.Rules[i], release) {
			matched = append(matched, ruleset.Rules[i].ID)
		}
	}
	return matched
}

// ruleMatches applies the rule's predicates in order. Every required
// predicate must hold; of the non-required predicates, at least one must hold
// when any are present.
func ruleMatches(rule *Rule, release ReleaseAttributes) bool {
	if len(rule.Predicates) == 0 {
		return false
	}

	optionalSeen := false
	optionalHit := false

	for i := range rule.Predicates {
		p := &rule.Predicates[i]
		ok := predicateMatches(p, release)
		if p.Negate {
			ok = !ok
		}

		if p.Required {
			if !ok {
				return false
			}
			continue
		}

		optionalSeen = true
		if ok {
			optionalHit = true
		}
	}

	return !optionalSeen || optionalHit
}

func predicateMatches(p *Predicate, release ReleaseAttributes) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(fieldValue(p.Field, release))
}

func fieldValue(field Field, release ReleaseAttributes) string {
	switch field {
	case FieldTitle:
		return release.Title
	case FieldSource:
		return release.Attrs.Source
	case FieldResolution:
		return strconv.Itoa(release.Attrs.Resolution)
	case FieldCodec:
		return release.Attrs.Codec
	case FieldHDR:
		return strings.Join(release.Attrs.HDR, " ")
	case FieldAudio:
		return strings.Join(release.Attrs.Audio, " ")
	case FieldGroup:
		return release.Attrs.Group
	default:
		return ""
	}
}

// Score sums the profile's per-format scores for the matched format ids.
// For pack releases, negative scores of formats that penalize a missing
// release-group identity are skipped: packs are expected to lack one.
func Score(profile *quality.Profile, matched []int64, ruleset *Ruleset, isPack bool) int {
	byID := make(map[int64]*Rule, len(ruleset.Rules))
	for i := range ruleset.Rules {
		byID[ruleset.Rules[i].ID] = &ruleset.Rules[i]
	}

	total := 0
	for _, id := range matched {
		score := profile.FormatScore(id)
		if isPack && score < 0 {
			if rule, ok := byID[id]; ok && rule.PenalizesMissingGroup {
				continue
			}
		}
		total += score
	}
	return total
}
