package history

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/models"
)

// Stats aggregates a set of runs.
type Stats struct {
	TotalRuns  int
	ByOutcome  map[string]int
	FailedStep map[string]int

	AverageDuration time.Duration
	TotalDuration   time.Duration

	FirstRun     time.Time
	LastRun      time.Time
	LastNewState time.Time
	CorpusSize   int
}

// Aggregate computes Stats over runs in any order.
func Aggregate(runs []models.RunSummary) *Stats {
	s := &Stats{
		TotalRuns:  len(runs),
		ByOutcome:  make(map[string]int),
		FailedStep: make(map[string]int),
	}

	var latest time.Time
	for _, r := range runs {
		s.ByOutcome[r.Outcome]++
		s.TotalDuration += r.Duration()

		if r.Outcome == "failed" || r.Outcome == "authentication_blocked" {
			s.FailedStep[r.Step]++
		}
		if r.Outcome == "new_state" && r.StartedAt.After(s.LastNewState) {
			s.LastNewState = r.StartedAt
		}
		if s.FirstRun.IsZero() || r.StartedAt.Before(s.FirstRun) {
			s.FirstRun = r.StartedAt
		}
		if r.StartedAt.After(s.LastRun) {
			s.LastRun = r.StartedAt
		}
		if !r.StartedAt.Before(latest) {
			latest = r.StartedAt
			s.CorpusSize = r.CorpusSize
		}
	}

	if s.TotalRuns > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.TotalRuns)
	}
	return s
}

// SuccessRate is the share of runs that produced a capture.
func (s *Stats) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.ByOutcome["unchanged"]+s.ByOutcome["new_state"]) / float64(s.TotalRuns)
}

// Print writes a human-readable summary.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "RUN HISTORY SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	if s.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	fmt.Fprintf(w, "Runs: %d (%s to %s)\n", s.TotalRuns,
		s.FirstRun.Local().Format("2006-01-02 15:04"), s.LastRun.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Captured: %.1f%%\n", s.SuccessRate()*100)
	fmt.Fprintf(w, "Average Duration: %s\n", s.AverageDuration.Round(time.Second))
	fmt.Fprintf(w, "Known States: %d\n", s.CorpusSize)
	if !s.LastNewState.IsZero() {
		fmt.Fprintf(w, "Last New State: %s\n", s.LastNewState.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OUTCOMES")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, k := range sortedKeys(s.ByOutcome) {
		fmt.Fprintf(w, "  %-24s %d\n", k, s.ByOutcome[k])
	}

	if len(s.FailedStep) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "FAILED AT")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, k := range sortedKeys(s.FailedStep) {
			fmt.Fprintf(w, "  %-40s %d\n", k, s.FailedStep[k])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
