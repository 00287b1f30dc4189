package session

// Challenge is one known security question and its answer.
type Challenge struct {
	Question string
	Answer   string
}

// ChallengeTable is an ordered list of known questions. Questions are matched
// verbatim; when a question is listed twice the first entry wins.
type ChallengeTable []Challenge

// Lookup returns the answer for question.
func (t ChallengeTable) Lookup(question string) (string, bool) {
	for _, c := range t {
		if c.Question == question {
			return c.Answer, true
		}
	}
	return "", false
}
