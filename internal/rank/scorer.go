package rank

import (
	"fmt"
	"math"
	"strings"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
)

// neutral is the unmatched-category default. Sub-scores above it earn a
// "+" reason; sub-scores at or below it stay silent.
const neutral = 0.5

// Engine turns a prospect's industry, company size, and region into one
// weighted score in [0,1]. Pure: no I/O, no clock, no state.
type Engine struct {
	weights     config.Weights
	industries  []config.CategoryRule
	indDefault  float64
	bands       []config.SizeBand
	bandDefault float64
	regions     []config.CategoryRule
	regDefault  float64
}

func New(cfg config.Scoring) (*Engine, error) {
	w := cfg.Weights
	if w.Industry < 0 || w.Size < 0 || w.Region < 0 {
		return nil, fmt.Errorf("scoring weights must be >= 0 (industry=%v size=%v region=%v)", w.Industry, w.Size, w.Region)
	}
	if math.Abs(w.Sum()-1.0) > 1e-6 {
		return nil, fmt.Errorf("scoring weights must sum to 1.0, got %v", w.Sum())
	}
	return &Engine{
		weights:     w,
		industries:  cfg.Industries,
		indDefault:  cfg.IndustryDefault,
		bands:       cfg.SizeBands,
		bandDefault: cfg.SizeDefault,
		regions:     cfg.Regions,
		regDefault:  cfg.RegionDefault,
	}, nil
}

// Score rejects prospects missing a scoring attribute instead of quietly
// handing them a neutral value; callers skip those records.
func (e *Engine) Score(p domain.Prospect) (domain.ScoreResult, error) {
	if strings.TrimSpace(p.Industry) == "" {
		return domain.ScoreResult{}, domain.Invalid("industry", "is empty")
	}
	if strings.TrimSpace(p.Region) == "" {
		return domain.ScoreResult{}, domain.Invalid("region", "is empty")
	}
	if p.CompanySize <= 0 {
		return domain.ScoreResult{}, domain.Invalid("company_size", "is unknown")
	}

	var reasons []string
	ind, indLabel := matchCategory(p.Industry, e.industries, e.indDefault)
	if ind > neutral && indLabel != "" {
		reasons = append(reasons, "+industry:"+indLabel)
	}
	size, bandLabel := matchBand(p.CompanySize, e.bands, e.bandDefault)
	if size > neutral && bandLabel != "" {
		reasons = append(reasons, "+size:"+bandLabel)
	}
	reg, regLabel := matchCategory(p.Region, e.regions, e.regDefault)
	if reg > neutral && regLabel != "" {
		reasons = append(reasons, "+region:"+regLabel)
	}

	total := ind*e.weights.Industry + size*e.weights.Size + reg*e.weights.Region
	return domain.ScoreResult{Score: round3(total), Reasons: reasons}, nil
}

// matchCategory walks the ordered table and returns the first rule whose
// pattern appears in the input, case-insensitively. No match = default
// score with no label.
func matchCategory(input string, rules []config.CategoryRule, def float64) (float64, string) {
	in := strings.ToLower(input)
	for _, r := range rules {
		m := strings.ToLower(r.Match)
		if m != "" && strings.Contains(in, m) {
			return r.Score, m
		}
	}
	return def, ""
}

func matchBand(n int, bands []config.SizeBand, def float64) (float64, string) {
	for _, b := range bands {
		if n >= b.Min && n <= b.Max {
			return b.Score, fmt.Sprintf("%d-%d", b.Min, b.Max)
		}
	}
	return def, ""
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
