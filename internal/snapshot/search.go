package snapshot

import (
	"strings"

	"bedwatch-backend/internal/bedreport"

	"github.com/antzucaro/matchr"
)

// searchThreshold is the Jaro-Winkler similarity above which two words are considered
// the same, it tolerates a typo or two in a hospital or city name.
const searchThreshold = 0.85

func searchWords(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func wordMatches(queryWord string, words []string) bool {
	for _, w := range words {
		if strings.Contains(w, queryWord) {
			return true
		}
		if matchr.JaroWinkler(w, queryWord, false) >= searchThreshold {
			return true
		}
	}
	return false
}

// Search returns the records where every word of the query matches a word of the
// hospital name or city, either as a substring or with a close spelling.
// An empty query matches everything.
func Search(snap Snapshot, query string) []bedreport.HospitalRecord {
	queryWords := searchWords(query)
	if len(queryWords) == 0 {
		return snap.Records()
	}

	var out []bedreport.HospitalRecord
	snap.Each(func(_ int, r bedreport.HospitalRecord) {
		words := searchWords(r.Name + " " + r.City)
		for _, q := range queryWords {
			if !wordMatches(q, words) {
				return
			}
		}
		out = append(out, r)
	})
	return out
}
