package rank

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"bdr-engine/internal/domain"
)

type Scored struct {
	Prospect domain.Prospect
	Result   domain.ScoreResult
}

type Skipped struct {
	Prospect domain.Prospect
	Reason   string
}

// ScoreAll scores a batch in parallel. Results are written into
// index-addressed slots so output order always matches input order, and
// invalid records are collected instead of aborting the batch.
func (e *Engine) ScoreAll(ctx context.Context, prospects []domain.Prospect) ([]Scored, []Skipped) {
	results := make([]domain.ScoreResult, len(prospects))
	errs := make([]error, len(prospects))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range prospects {
		g.Go(func() error {
			results[i], errs[i] = e.Score(p)
			return nil
		})
	}
	_ = g.Wait()

	scored := make([]Scored, 0, len(prospects))
	var skipped []Skipped
	for i, p := range prospects {
		if errs[i] != nil {
			skipped = append(skipped, Skipped{Prospect: p, Reason: errs[i].Error()})
			continue
		}
		q := p
		q.Score = results[i].Score
		q.ScoreReasons = results[i].Reasons
		scored = append(scored, Scored{Prospect: q, Result: results[i]})
	}
	return scored, skipped
}

// Rank sorts descending by score. The sort is stable so equal scores keep
// their input order, which keeps runs reproducible.
func Rank(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score > out[j].Result.Score
	})
	return out
}

// Filter keeps pairs with score >= min. The threshold is inclusive.
func Filter(scored []Scored, min float64) []Scored {
	out := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if s.Result.Score >= min {
			out = append(out, s)
		}
	}
	return out
}

// Stats summarizes a scored batch for the run report.
type Stats struct {
	Count      int
	Average    float64
	Top        float64
	Bottom     float64
	Regions    map[string]int
	Industries map[string]int // top 5 by count
	SizeBands  map[string]int // keyed by band label, "other" when unbanded
}

func (e *Engine) Summarize(scored []Scored) Stats {
	st := Stats{
		Regions:    map[string]int{},
		Industries: map[string]int{},
		SizeBands:  map[string]int{},
	}
	if len(scored) == 0 {
		return st
	}

	st.Count = len(scored)
	st.Bottom = scored[0].Result.Score
	sum := 0.0
	allIndustries := map[string]int{}
	for _, s := range scored {
		v := s.Result.Score
		sum += v
		if v > st.Top {
			st.Top = v
		}
		if v < st.Bottom {
			st.Bottom = v
		}
		st.Regions[s.Prospect.Region]++
		allIndustries[s.Prospect.Industry]++
		if _, label := matchBand(s.Prospect.CompanySize, e.bands, e.bandDefault); label != "" {
			st.SizeBands[label]++
		} else {
			st.SizeBands["other"]++
		}
	}
	st.Average = round3(sum / float64(len(scored)))
	st.Top = round3(st.Top)
	st.Bottom = round3(st.Bottom)

	type kv struct {
		k string
		n int
	}
	top := make([]kv, 0, len(allIndustries))
	for k, n := range allIndustries {
		top = append(top, kv{k, n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].n != top[j].n {
			return top[i].n > top[j].n
		}
		return top[i].k < top[j].k
	})
	if len(top) > 5 {
		top = top[:5]
	}
	for _, t := range top {
		st.Industries[t.k] = t.n
	}
	return st
}
