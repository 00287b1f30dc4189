package monitor

import (
	"fmt"
	"time"

	"github.com/arcticwatch/arcticwatch/internal/images"
	"github.com/arcticwatch/arcticwatch/internal/models"
	"github.com/arcticwatch/arcticwatch/internal/session"
)

// Kind classifies a finished run.
type Kind int

const (
	// Unchanged means the capture matched a known state.
	Unchanged Kind = iota
	// NewState means the capture matched nothing and was added to the corpus.
	NewState
	// AuthenticationBlocked means the security challenge could not be passed.
	AuthenticationBlocked
	// Failed covers navigation errors, corpus errors and unclassified faults.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case NewState:
		return "new_state"
	case AuthenticationBlocked:
		return "authentication_blocked"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of one run.
type Outcome struct {
	RunID string
	Kind  Kind

	// Image is the captured viewport (Unchanged and NewState).
	Image *images.Capture
	// Diagnostic is a screenshot taken when the run went wrong.
	Diagnostic *images.Capture
	// Diff highlights what changed against the closest known state (NewState).
	Diff        *images.Capture
	DiffCaption string

	Step       string
	State      session.State
	Err        error
	Entry      string
	CorpusSize int
	Caption    string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Message is the operator-facing text for AuthenticationBlocked and Failed runs.
func (o Outcome) Message() string {
	switch o.Kind {
	case AuthenticationBlocked:
		return fmt.Sprintf("Run %s blocked at the security challenge (%s): %v", o.RunID, o.State, o.Err)
	case Failed:
		return fmt.Sprintf("Run %s failed at step %q (%s): %v", o.RunID, o.Step, o.State, o.Err)
	case NewState:
		return fmt.Sprintf("Run %s found a new map state (%d known)", o.RunID, o.CorpusSize)
	default:
		return fmt.Sprintf("Run %s: map unchanged (%d known states)", o.RunID, o.CorpusSize)
	}
}

// Summary is the form stored by recorders.
func (o Outcome) Summary() models.RunSummary {
	s := models.RunSummary{
		ID:         o.RunID,
		Outcome:    o.Kind.String(),
		State:      o.State.String(),
		Step:       o.Step,
		Entry:      o.Entry,
		Caption:    o.Caption,
		CorpusSize: o.CorpusSize,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	return s
}
