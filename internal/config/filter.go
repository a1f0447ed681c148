package config

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// searchText is what the fuzzy filter matches a profile against.
func searchText(p ServerProfile) string {
	return strings.Join([]string{p.ID, p.Username + "@" + p.Host, p.Group}, " ")
}

// MatchFilter returns a Filter accepting profiles that fuzzy-match query.
// An empty query matches everything.
func MatchFilter(query string) Filter {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	return func(p ServerProfile) bool {
		return len(fuzzy.Find(query, []string{searchText(p)})) > 0
	}
}

type profileSource []ServerProfile

func (s profileSource) String(i int) string { return searchText(s[i]) }
func (s profileSource) Len() int            { return len(s) }

// Search ranks profiles by how well they match query, best first. An empty
// query returns profiles unchanged.
func Search(query string, profiles []ServerProfile) []ServerProfile {
	query = strings.TrimSpace(query)
	if query == "" {
		return profiles
	}
	matches := fuzzy.FindFrom(query, profileSource(profiles))
	out := make([]ServerProfile, 0, len(matches))
	for _, m := range matches {
		out = append(out, profiles[m.Index])
	}
	return out
}
