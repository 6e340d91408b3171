package domain

import "time"

// ImportStats holds statistics about one import run.
type ImportStats struct {
	SourceName       string
	Discovered       int
	Imported         int
	Skipped          int
	Failed           int
	AlreadyProcessed int
	Published        int
	PublishErrors    int
	PartialDiscovery bool // discovery stopped early on a source error
	Interrupted      bool
	Degraded         bool
	Duration         time.Duration
}

// SuccessRate is the share of newly decided items that were imported, in percent.
func (s *ImportStats) SuccessRate() float64 {
	decided := s.Imported + s.Skipped + s.Failed
	if decided == 0 {
		return 0
	}
	return float64(s.Imported) * 100 / float64(decided)
}

// BackfillStats holds statistics about one slug backfill run.
type BackfillStats struct {
	Candidates int
	Updated    int
	Renamed    int // slugs that needed a numeric suffix
	Failed     int
	Deferred   int // storage errors, left unrecorded so the next run tries again
	Duration   time.Duration
}
