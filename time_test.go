package content_test

import (
	"testing"
	"time"

	content "github.com/goliatone/go-content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOutsideThresholdPeriod(t *testing.T) {
	t.Run("old timestamp is outside", func(t *testing.T) {
		old := time.Now().Add(-25 * time.Hour)
		outside, err := content.IsOutsideThresholdPeriod(old, "24h")
		require.NoError(t, err)
		assert.True(t, outside)
	})

	t.Run("recent timestamp is inside", func(t *testing.T) {
		recent := time.Now().Add(-time.Hour)
		outside, err := content.IsOutsideThresholdPeriod(recent, "24h")
		require.NoError(t, err)
		assert.False(t, outside)
	})

	t.Run("bad expression errors", func(t *testing.T) {
		_, err := content.IsOutsideThresholdPeriod(time.Now(), "one day")
		assert.Error(t, err)
	})
}
