package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestFixedClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	clk := NewFixed(start)
	require.Equal(t, start.UTC(), clk.Now())

	clk.Advance(90 * time.Second)
	require.Equal(t, start.UTC().Add(90*time.Second), clk.Now())
}
