package ingest

import "time"

// Stats summarises the current run. Durations cover successful items only.
type Stats struct {
	Processed       int           `json:"processed"`
	Failed          int           `json:"failed"`
	LeftoverInputs  int           `json:"leftover_inputs"`
	TotalDuration   time.Duration `json:"total_duration_ns"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	LastItem        string        `json:"last_item,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	LastProcessedAt time.Time     `json:"last_processed_at"`
	StartedAt       time.Time     `json:"started_at"`
}

func (s *Stats) recordSuccess(name string, duration time.Duration, at time.Time) {
	s.Processed++
	s.TotalDuration += duration
	s.AverageDuration = s.TotalDuration / time.Duration(s.Processed)
	s.LastItem = name
	s.LastProcessedAt = at
}

func (s *Stats) recordFailure(name string, err error) {
	s.Failed++
	s.LastItem = name
	if err != nil {
		s.LastError = err.Error()
	}
}
