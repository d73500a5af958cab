package models

import (
	"sync"
	"time"
)

// RunTrigger indicates what started a pipeline run.
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// ItemError records a per-document stage failure within a run.
type ItemError struct {
	IssuerCode string    `json:"issuer_code"`
	Title      string    `json:"title"`
	Stage      Stage     `json:"stage"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

// RunStats aggregates counters for one pipeline run. Counters are
// guarded by a mutex because documents are processed concurrently.
type RunStats struct {
	mu sync.Mutex

	Seen            int         `json:"seen"`
	Acquired        int         `json:"acquired"`
	AlreadyAcquired int         `json:"already_acquired"`
	Converted       int         `json:"converted"`
	Enriched        int         `json:"enriched"`
	EnrichFallbacks int         `json:"enrich_fallbacks"`
	MarketMatched   int         `json:"market_matched"`
	Failed          int         `json:"failed"`
	Errors          []ItemError `json:"errors,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Add applies fn under the stats lock.
func (s *RunStats) Add(fn func(*RunStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// RecordError appends an item error and bumps the failure counter.
func (s *RunStats) RecordError(issuerCode, title string, se *StageError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	msg := ""
	if se.Err != nil {
		msg = se.Err.Error()
	}
	s.Errors = append(s.Errors, ItemError{
		IssuerCode: issuerCode,
		Title:      title,
		Stage:      se.Stage,
		Kind:       se.Kind,
		Message:    msg,
	})
}

// Duration returns the wall-clock length of the run.
func (s *RunStats) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// RunRecord is the retained summary of one completed (or in-flight)
// pipeline run.
type RunRecord struct {
	ID        string     `json:"id"` // uuid
	Trigger   RunTrigger `json:"trigger"`
	Stats     *RunStats  `json:"stats,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}
