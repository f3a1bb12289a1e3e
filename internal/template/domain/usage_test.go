package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessRateZeroWhenUnused(t *testing.T) {
	var s UsageStatistics
	assert.Zero(t, s.SuccessRate())
}

func TestRecordMaintainsRollingAverage(t *testing.T) {
	var s UsageStatistics

	s.Record(true, 100*time.Millisecond)
	s.Record(true, 200*time.Millisecond)
	s.Record(false, 300*time.Millisecond)

	assert.Equal(t, int64(3), s.TotalUses)
	assert.Equal(t, int64(2), s.SuccessfulUses)
	assert.Equal(t, int64(1), s.FailedUses)
	assert.InDelta(t, 200.0, s.AvgExtractionTimeMs, 0.001)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 0.001)
	require.NotNil(t, s.LastUsedAt)
}
