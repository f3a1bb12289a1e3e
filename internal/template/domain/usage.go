package domain

import "time"

// UsageStatistics tracks how a template has performed in production.
// Persisted as a JSON column; concurrent updates go through atomic SQL
// increments in the repository, this type is the read-side view.
type UsageStatistics struct {
	TotalUses           int64      `json:"total_uses"`
	SuccessfulUses      int64      `json:"successful_uses"`
	FailedUses          int64      `json:"failed_uses"`
	AvgExtractionTimeMs float64    `json:"avg_extraction_time_ms"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty"`
}

// SuccessRate returns successes/total, 0 when the template was never used
func (s UsageStatistics) SuccessRate() float64 {
	if s.TotalUses == 0 {
		return 0
	}
	return float64(s.SuccessfulUses) / float64(s.TotalUses)
}

// Record applies one usage observation, maintaining the rolling average
func (s *UsageStatistics) Record(successful bool, elapsed time.Duration) {
	elapsedMs := float64(elapsed.Milliseconds())
	s.AvgExtractionTimeMs = (s.AvgExtractionTimeMs*float64(s.TotalUses) + elapsedMs) / float64(s.TotalUses+1)
	s.TotalUses++
	if successful {
		s.SuccessfulUses++
	} else {
		s.FailedUses++
	}
	now := time.Now().UTC()
	s.LastUsedAt = &now
}
