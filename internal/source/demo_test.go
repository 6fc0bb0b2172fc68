package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoRespectsMax(t *testing.T) {
	batch, err := Demo{}.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	all, err := Demo{}.Fetch(context.Background(), 100)
	require.NoError(t, err)
	assert.Greater(t, len(all), 2)
}

func TestDemoBatchShape(t *testing.T) {
	batch, err := Demo{}.Fetch(context.Background(), 100)
	require.NoError(t, err)

	seenMissingIndustry := false
	for _, p := range batch {
		assert.NotEmpty(t, p.Email)
		if p.Industry == "" {
			seenMissingIndustry = true
		}
	}
	// one record is deliberately unscorable so demo runs show the skip path
	assert.True(t, seenMissingIndustry)
}
