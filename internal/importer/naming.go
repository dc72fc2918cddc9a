package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NameTokens carries the values a naming template can reference.
type NameTokens struct {
	EventTitle string
	Sport      string
	Season     int
	AirDate    string
	Part       int
	PartName   string
	Quality    string
}

// DefaultTemplate is used when no naming template is configured.
const DefaultTemplate = "{Event Title} - {Part} - {Quality}"

// tokenPattern matches template tokens like {Token} or {Token:00}.
var tokenPattern = regexp.MustCompile(`\{([^}:]+)(?::([^}]+))?\}`)

var (
	multiSpace = regexp.MustCompile(`\s+`)
	// " - - " left behind by an empty token between separators
	danglingSep = regexp.MustCompile(`\s-(\s+-)+\s`)
)

// RenderName expands a naming template into a filename stem (no extension).
func RenderName(template string, tokens NameTokens) string {
	if template == "" {
		template = DefaultTemplate
	}

	result := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		sub := tokenPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		format := ""
		if len(sub) >= 3 {
			format = sub[2]
		}
		return resolveToken(sub[1], format, tokens)
	})

	return cleanFilename(result)
}

func resolveToken(token, format string, tokens NameTokens) string {
	switch strings.ToLower(token) {
	case "event title", "title":
		return tokens.EventTitle
	case "sport":
		return tokens.Sport
	case "season":
		if tokens.Season > 0 {
			return formatNumber(tokens.Season, format)
		}
		return ""
	case "air date", "airdate":
		return tokens.AirDate
	case "part":
		if tokens.Part > 0 {
			return "Part " + formatNumber(tokens.Part, format)
		}
		return ""
	case "part name":
		return tokens.PartName
	case "quality":
		return tokens.Quality
	}
	return ""
}

// formatNumber pads a number per formats like "00".
func formatNumber(n int, format string) string {
	if len(format) > 0 && format[0] == '0' {
		return fmt.Sprintf("%0*d", len(format), n)
	}
	return strconv.Itoa(n)
}

// cleanFilename strips characters invalid on common filesystems and
// collapses the separators left behind by empty tokens.
func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, ":", " -")

	for _, char := range []string{"<", ">", "\"", "/", "\\", "|", "?", "*"} {
		name = strings.ReplaceAll(name, char, "")
	}

	name = multiSpace.ReplaceAllString(name, " ")
	name = danglingSep.ReplaceAllString(name, " - ")
	name = strings.Trim(name, " -.")
	return name
}
