package session

// State is a step of the portal workflow.
type State int

const (
	Start State = iota
	LoggingIn
	ChallengeCheck
	Authenticated
	NavigatingMap
	EnteringCoordinates
	ZoomingIn
	SelectingArea
	CaptureReady
	Captured

	ChallengeUnanswerable
	ChallengeAnswerRejected
	NavigationFailed
)

var stateNames = map[State]string{
	Start:                   "start",
	LoggingIn:               "logging_in",
	ChallengeCheck:          "challenge_check",
	Authenticated:           "authenticated",
	NavigatingMap:           "navigating_map",
	EnteringCoordinates:     "entering_coordinates",
	ZoomingIn:               "zooming_in",
	SelectingArea:           "selecting_area",
	CaptureReady:            "capture_ready",
	Captured:                "captured",
	ChallengeUnanswerable:   "challenge_unanswerable",
	ChallengeAnswerRejected: "challenge_answer_rejected",
	NavigationFailed:        "navigation_error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case Captured, ChallengeUnanswerable, ChallengeAnswerRejected, NavigationFailed:
		return true
	}
	return false
}
