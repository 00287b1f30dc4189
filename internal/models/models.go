package models

import "time"

// RunSummary is the persisted and served view of one monitoring run
type RunSummary struct {
	ID         string    `json:"id" yaml:"id"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	State      string    `json:"state" yaml:"state"`
	Step       string    `json:"step,omitempty" yaml:"step,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	Entry      string    `json:"entry,omitempty" yaml:"entry,omitempty"`
	Caption    string    `json:"caption,omitempty" yaml:"caption,omitempty"`
	CorpusSize int       `json:"corpus_size" yaml:"corpus_size"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration is the wall time of the run
func (r RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CorpusEntry describes one reference screenshot
type CorpusEntry struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Size    int64     `json:"size"`
	AddedAt time.Time `json:"added_at"`
}
