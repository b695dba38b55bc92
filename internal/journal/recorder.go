package journal

import (
	"github.com/karlmicha/rguils/internal/events"
)

// Recorder copies bus traffic into the journal under one run. Events
// arrive on the bus dispatcher goroutine in emission order, so the
// journal preserves the order the engine emitted them in.
type Recorder struct {
	journal *Journal
	bus     *events.Bus
	run     *Run
	subs    []events.SubscriptionID
}

// NewRecorder starts a run and subscribes to every event type on the
// bus.
func NewRecorder(j *Journal, bus *events.Bus, label string) (*Recorder, error) {
	run, err := j.StartRun(label)
	if err != nil {
		return nil, err
	}
	r := &Recorder{journal: j, bus: bus, run: run}
	r.subs = bus.SubscribeAll(r.record)
	return r, nil
}

// Run returns the run this recorder writes under.
func (r *Recorder) Run() *Run {
	return r.run
}

func (r *Recorder) record(event events.Event) {
	if _, err := r.journal.RecordEvent(r.run.ID, event); err != nil {
		r.journal.log.Warnw("journal write failed", "type", event.Type, "error", err)
	}
}

// Close unsubscribes from the bus and finishes the run: completed when
// err is nil, failed with its message otherwise. Stop the bus first so
// queued events are flushed before the run is closed out.
func (r *Recorder) Close(err error) error {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	if err != nil {
		return r.journal.FailRun(r.run.ID, err.Error())
	}
	return r.journal.CompleteRun(r.run.ID)
}
