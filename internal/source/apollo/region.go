package apollo

import "strings"

var naCountries = []string{"united states", "usa", "canada", "mexico"}

var euCountries = []string{
	"united kingdom", "uk", "germany", "france", "spain", "italy",
	"netherlands", "sweden", "norway", "denmark", "finland",
	"switzerland", "austria", "belgium", "ireland",
}

// deriveRegion buckets a free-text location into the region categories the
// scorer knows. An empty location yields an empty region, which scoring
// rejects instead of guessing.
func deriveRegion(location string) string {
	loc := strings.ToLower(location)
	if strings.TrimSpace(loc) == "" {
		return ""
	}
	for _, c := range naCountries {
		if strings.Contains(loc, c) {
			return "North America"
		}
	}
	for _, c := range euCountries {
		if strings.Contains(loc, c) {
			return "Europe"
		}
	}
	return "Other"
}
