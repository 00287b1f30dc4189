package session

import (
	"fmt"

	"github.com/arcticwatch/arcticwatch/internal/images"
)

// NavigationError is a document that failed to load or an element that never
// became interactable.
type NavigationError struct {
	Step string
	Err  error
}

func (e *NavigationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("navigation error during %q: %v", e.Step, e.Err)
}

// Unwrap exposes the underlying error.
func (e *NavigationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ChallengeReason classifies a failed security challenge.
type ChallengeReason int

const (
	// Unanswerable means the displayed question is not in the table.
	Unanswerable ChallengeReason = iota
	// Rejected means an answer was submitted but the portal did not accept it.
	Rejected
)

func (r ChallengeReason) String() string {
	if r == Rejected {
		return "answer rejected"
	}
	return "unanswerable"
}

// ChallengeError ends a run at the security challenge. Diagnostic is a
// screenshot of the challenge page when one could be taken.
type ChallengeError struct {
	Reason     ChallengeReason
	Question   string
	Diagnostic *images.Capture
}

func (e *ChallengeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("security challenge %s: %q", e.Reason, e.Question)
}
