package ingest

import (
	"github.com/sells-group/disclosure-cli/internal/model"
)

// DefaultMaxErrorReasons bounds the per-run error list when unset.
const DefaultMaxErrorReasons = 200

// stats accumulates run counters. The error list keeps the first max
// reasons; later ones are only counted.
type stats struct {
	model.RunStats
	max int
}

func newStats(max int) *stats {
	if max <= 0 {
		max = DefaultMaxErrorReasons
	}
	return &stats{max: max}
}

func (s *stats) recordError(reason model.ReasonCode, filingID, detail string) {
	s.Errors++
	if len(s.ErrorReasons) >= s.max {
		s.ErrorsDropped++
		return
	}
	s.ErrorReasons = append(s.ErrorReasons, model.RecordError{
		Reason:   reason,
		FilingID: filingID,
		Detail:   detail,
	})
}

func (s *stats) snapshot() model.RunStats {
	out := s.RunStats
	out.ErrorReasons = append([]model.RecordError(nil), s.ErrorReasons...)
	return out
}
