package models

import (
	"math"
	"time"
)

// StatsTimeLayout is the timestamp format used in persisted statistics.
const StatsTimeLayout = "2006-01-02 15:04:05"

// Statistics accumulates counters for one scrape run. The orchestrator
// owns the instance for the run's lifetime; storage receives a value
// snapshot after Finalize.
type Statistics struct {
	CategoryURL     string  `json:"categoryUrl"`
	TotalDetected   int     `json:"totalDetected"`
	TotalSaved      int     `json:"totalSaved"`
	TotalSkipped    int     `json:"totalSkipped"`
	MissingPrice    int     `json:"missingPrice"`
	StartedAt       string  `json:"startedAt"`
	FinishedAt      string  `json:"finishedAt"`
	DurationSeconds float64 `json:"durationSeconds"`

	started time.Time
}

// NewStatistics returns an accumulator anchored at start.
func NewStatistics(start time.Time) *Statistics {
	return &Statistics{
		StartedAt: start.Format(StatsTimeLayout),
		started:   start,
	}
}

// Finalize stamps the end of the run and derives the duration, rounded
// to two decimal places.
func (s *Statistics) Finalize(end time.Time) {
	s.FinishedAt = end.Format(StatsTimeLayout)
	s.DurationSeconds = math.Round(end.Sub(s.started).Seconds()*100) / 100
}
