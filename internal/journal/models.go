package journal

import "time"

// Run is one engine session recorded in the journal.
type Run struct {
	ID              string
	Label           string
	Host            string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds *int
	Status          string
	ErrorMessage    *string
}

// EventRecord is one persisted engine event. Data holds the payload as
// JSON, empty when the event carried none.
type EventRecord struct {
	ID         int64
	RunID      string
	Type       string
	Source     string
	OccurredAt time.Time
	Data       string
}

// RunSummary aggregates a run with its event volume.
type RunSummary struct {
	ID          string
	Label       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	EventCount  int
	ErrorCount  int
}
