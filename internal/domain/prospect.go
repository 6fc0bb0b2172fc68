package domain

import "strings"

type Prospect struct {
	FirstName     string
	LastName      string
	Email         string
	Title         string
	Company       string
	CompanyDomain string
	CompanySize   int // employees, 0 = unknown
	Industry      string
	Region        string // north america/europe/other
	Location      string
	LinkedInURL   string
	CompanyBlurb  string // short homepage snapshot, filled by enrich

	Score        float64
	ScoreReasons []string
}

func (p Prospect) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// ScoreResult is the immutable output of scoring one prospect.
// Reasons name the sub-scores that beat the neutral default, e.g. "+industry:saas".
type ScoreResult struct {
	Score   float64
	Reasons []string
}
