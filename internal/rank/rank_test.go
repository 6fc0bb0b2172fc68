package rank

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdr-engine/internal/domain"
)

func TestScoreAllKeepsInputOrderAndCollectsSkips(t *testing.T) {
	e := newEngine(t)
	batch := []domain.Prospect{
		{Email: "a@x.com", Industry: "SaaS", CompanySize: 150, Region: "North America"},
		{Email: "b@x.com", Industry: "", CompanySize: 10, Region: "Asia"}, // invalid
		{Email: "c@x.com", Industry: "Retail", CompanySize: 20, Region: "Asia"},
		{Email: "d@x.com", Industry: "Fintech", CompanySize: 120, Region: "Europe"},
	}

	scored, skipped := e.ScoreAll(context.Background(), batch)
	require.Len(t, scored, 3)
	require.Len(t, skipped, 1)
	assert.Equal(t, "b@x.com", skipped[0].Prospect.Email)
	assert.Contains(t, skipped[0].Reason, "industry")

	// input order survives the parallel scoring
	assert.Equal(t, "a@x.com", scored[0].Prospect.Email)
	assert.Equal(t, "c@x.com", scored[1].Prospect.Email)
	assert.Equal(t, "d@x.com", scored[2].Prospect.Email)

	// prospects carry their results
	assert.Equal(t, scored[0].Result.Score, scored[0].Prospect.Score)
	assert.Equal(t, scored[0].Result.Reasons, scored[0].Prospect.ScoreReasons)
}

func TestScoreAllLargeBatchDeterministic(t *testing.T) {
	e := newEngine(t)
	var batch []domain.Prospect
	industries := []string{"SaaS", "Retail", "Fintech", "Healthcare", "Mining"}
	for i := 0; i < 200; i++ {
		batch = append(batch, domain.Prospect{
			Email:       fmt.Sprintf("p%03d@x.com", i),
			Industry:    industries[i%len(industries)],
			CompanySize: 10 + i*3,
			Region:      "Europe",
		})
	}
	first, _ := e.ScoreAll(context.Background(), batch)
	second, _ := e.ScoreAll(context.Background(), batch)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestRankSortsDescendingStable(t *testing.T) {
	scored := []Scored{
		{Prospect: domain.Prospect{Email: "low@x.com"}, Result: domain.ScoreResult{Score: 0.4}},
		{Prospect: domain.Prospect{Email: "tie1@x.com"}, Result: domain.ScoreResult{Score: 0.8}},
		{Prospect: domain.Prospect{Email: "top@x.com"}, Result: domain.ScoreResult{Score: 0.95}},
		{Prospect: domain.Prospect{Email: "tie2@x.com"}, Result: domain.ScoreResult{Score: 0.8}},
	}
	ranked := Rank(scored)

	require.Len(t, ranked, 4)
	assert.Equal(t, "top@x.com", ranked[0].Prospect.Email)
	assert.Equal(t, "tie1@x.com", ranked[1].Prospect.Email) // ties keep input order
	assert.Equal(t, "tie2@x.com", ranked[2].Prospect.Email)
	assert.Equal(t, "low@x.com", ranked[3].Prospect.Email)

	// input slice untouched
	assert.Equal(t, "low@x.com", scored[0].Prospect.Email)
}

func TestFilterThresholdInclusive(t *testing.T) {
	scored := []Scored{
		{Result: domain.ScoreResult{Score: 1.0}},
		{Result: domain.ScoreResult{Score: 0.6}},
		{Result: domain.ScoreResult{Score: 0.599}},
		{Result: domain.ScoreResult{Score: 0.0}},
	}

	assert.Len(t, Filter(scored, 0.6), 2) // 0.6 itself stays in
	assert.Len(t, Filter(scored, 0), 4)
	assert.Empty(t, Filter(scored, 1.01))
}

func TestSummarize(t *testing.T) {
	e := newEngine(t)
	batch := []domain.Prospect{
		{Email: "a@x.com", Industry: "SaaS", CompanySize: 150, Region: "North America"},
		{Email: "b@x.com", Industry: "SaaS", CompanySize: 80, Region: "Europe"},
		{Email: "c@x.com", Industry: "Retail", CompanySize: 20, Region: "Asia"},
	}
	scored, _ := e.ScoreAll(context.Background(), batch)
	st := e.Summarize(scored)

	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 1.0, st.Top)
	assert.Equal(t, 0.4, st.Bottom)
	assert.Equal(t, 2, st.Industries["SaaS"])
	assert.Equal(t, 1, st.Regions["Asia"])
	assert.Equal(t, 1, st.SizeBands["100-300"])
	assert.Equal(t, 1, st.SizeBands["50-99"])
	assert.Equal(t, 1, st.SizeBands["other"])
}

func TestSummarizeEmpty(t *testing.T) {
	e := newEngine(t)
	st := e.Summarize(nil)
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, 0.0, st.Average)
}
