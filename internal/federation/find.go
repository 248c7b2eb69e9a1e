package federation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrz1836/fedwallet/internal/engine"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// MaxTypoDistance is the largest edit distance for which a suggestion is made.
const MaxTypoDistance = 3

// FindFederation resolves query to one federation. It accepts an exact id,
// a unique id prefix, or a unique case-insensitive name. On a miss the
// error suggests the closest id.
func FindFederation(list []engine.FederationIdentity, query string) (engine.FederationIdentity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return engine.FederationIdentity{}, fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{"federation": "empty"})
	}

	var byPrefix, byName []engine.FederationIdentity
	for _, f := range list {
		if f.ID == query {
			return f, nil
		}
		if strings.HasPrefix(f.ID, query) {
			byPrefix = append(byPrefix, f)
		}
		if f.Name != "" && strings.EqualFold(f.Name, query) {
			byName = append(byName, f)
		}
	}

	switch {
	case len(byPrefix) == 1:
		return byPrefix[0], nil
	case len(byPrefix) > 1:
		return engine.FederationIdentity{}, ambiguous(query, byPrefix)
	case len(byName) == 1:
		return byName[0], nil
	case len(byName) > 1:
		return engine.FederationIdentity{}, ambiguous(query, byName)
	}

	err := fwerr.WithDetails(fwerr.ErrFederationNotFound, map[string]string{"federation": query})
	if s := suggest(list, query); s != "" {
		err = fwerr.WithSuggestion(err, fmt.Sprintf("Did you mean %s?", s))
	}
	return engine.FederationIdentity{}, err
}

func ambiguous(query string, matches []engine.FederationIdentity) error {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{
		"federation": query,
		"matches":    strings.Join(ids, ", "),
	})
}

// suggest returns the id whose prefix of the query's length is closest to
// the query, or "" when nothing is within MaxTypoDistance.
func suggest(list []engine.FederationIdentity, query string) string {
	minDist := math.MaxInt
	var best string
	for _, f := range list {
		candidate := f.ID
		if len(candidate) > len(query) {
			candidate = candidate[:len(query)]
		}
		dist := levenshtein.ComputeDistance(query, candidate)
		if dist < minDist {
			minDist = dist
			best = f.ID
		}
	}
	if minDist <= MaxTypoDistance {
		return best
	}
	return ""
}
