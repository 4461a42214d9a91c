package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeRunWindow(t *testing.T) {
	t.Run("floors now before offsetting", func(t *testing.T) {
		now := time.Date(2025, 5, 27, 15, 37, 0, 0, time.UTC)
		w := ComputeRunWindow(now, 47, 12)

		assert.Equal(t, time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("exact hour is unchanged by flooring", func(t *testing.T) {
		now := time.Date(2025, 5, 27, 15, 0, 0, 0, time.UTC)
		w := ComputeRunWindow(now, 47, 12)

		assert.Equal(t, time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("non-UTC input is normalized", func(t *testing.T) {
		central := time.FixedZone("CST", -6*3600)
		now := time.Date(2025, 5, 27, 9, 37, 0, 0, central) // 15:37 UTC
		w := ComputeRunWindow(now, 47, 12)

		assert.Equal(t, time.Date(2025, 5, 25, 16, 0, 0, 0, time.UTC), w.Start)
	})

	t.Run("custom offsets", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 6, 59, 59, 0, time.UTC)
		w := ComputeRunWindow(now, 1, 1)

		assert.Equal(t, time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("end is always after start", func(t *testing.T) {
		w := ComputeRunWindow(time.Now(), 47, 12)
		assert.True(t, w.End.After(w.Start))
	})
}
