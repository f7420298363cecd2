// Package pattern derives the series identity of an event from its display name.
//
// Every component that needs to know whether two events are editions of the
// same recurring series must go through Key, so that curve building,
// historical matching and session grouping agree on identity.
package pattern

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	yearRe       = regexp.MustCompile(`(19|20)\d{2}`)
	nonLetterRe  = regexp.MustCompile(`[^a-z\s]`)
	underscoreRe = regexp.MustCompile(`_edition|_+`)
)

// aliases are applied in order; later entries see the output of earlier ones.
var aliases = []struct{ from, to string }{
	{"philadelphia", "philly"},
	{"washington dc", "dc"},
	{"district", "dc"},
	{"new york", "nyc"},
	{"los angeles", "la"},
	{"san francisco", "sf"},
	{"san diego", "sd"},
	{"festival", "fest"},
	{"experience", "exp"},
	{"celebration", "fest"},
	{"tasting event", "tasting"},
	{"pop-up", "popup"},
	{"pop up", "popup"},
}

var seasons = []string{"winter", "spring", "fall"}

// Normalize lowercases name, drops year tokens, collapses aliases and
// returns an underscore-joined key. When withSeason is set a season suffix
// is appended if the name mentions one.
func Normalize(name string, withSeason bool) string {
	s := strings.ToLower(name)
	s = yearRe.ReplaceAllString(s, "")
	for _, a := range aliases {
		s = strings.ReplaceAll(s, a.from, a.to)
	}

	season := ""
	if withSeason {
		for _, candidate := range seasons {
			if strings.Contains(s, candidate) {
				season = "_" + candidate
				break
			}
		}
	}

	s = nonLetterRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "_")
	s = underscoreRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return s + season
}

// Key is the season-qualified series identity
func Key(name string) string {
	return Normalize(name, true)
}

// Year extracts the first year token from an edition name
func Year(name string) (int, bool) {
	m := yearRe.FindString(name)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}
