package journal

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/karlmicha/rguils/internal/events"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenMigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	version, err := j.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 4 {
		t.Errorf("schema version = %d, want 4", version)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must not re-run applied migrations.
	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	version, err = j.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion after reopen: %v", err)
	}
	if version != 4 {
		t.Errorf("schema version after reopen = %d, want 4", version)
	}
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)

	first, err := j.StartRun("smoke")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(first.ID) != 36 {
		t.Errorf("run ID %q is not a UUID", first.ID)
	}

	got, err := j.GetRun(first.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != "running" || got.CompletedAt != nil {
		t.Errorf("fresh run: status=%q completedAt=%v, want running/nil", got.Status, got.CompletedAt)
	}
	if got.Label != "smoke" {
		t.Errorf("label = %q, want smoke", got.Label)
	}

	if err := j.CompleteRun(first.ID); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	got, err = j.GetRun(first.ID)
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got.DurationSeconds == nil || *got.DurationSeconds < 0 {
		t.Errorf("DurationSeconds = %v, want non-negative", got.DurationSeconds)
	}
	if got.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %q on a completed run", *got.ErrorMessage)
	}

	second, err := j.StartRun("broken")
	if err != nil {
		t.Fatalf("StartRun second: %v", err)
	}
	if err := j.FailRun(second.ID, "driver lost"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	got, err = j.GetRun(second.ID)
	if err != nil {
		t.Fatalf("GetRun failed run: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "driver lost" {
		t.Errorf("ErrorMessage = %v, want driver lost", got.ErrorMessage)
	}

	runs, err := j.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("newest run = %s, want %s", runs[0].ID, second.ID)
	}
}

func TestRecordAndQueryEvents(t *testing.T) {
	j := openTestJournal(t)
	run, err := j.StartRun("events")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	emitted := []events.Event{
		events.NewElementsDiscoveredEvent("options", 3, []int{1}),
		events.NewButtonClickedEvent("dialog", "ok", "(200,100 60x24)"),
		events.NewErrorEvent("engine", errors.New("boom")),
	}
	for _, e := range emitted {
		if _, err := j.RecordEvent(run.ID, e); err != nil {
			t.Fatalf("RecordEvent %s: %v", e.Type, err)
		}
	}

	recorded, err := j.EventsForRun(run.ID, 0)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(recorded) != 3 {
		t.Fatalf("got %d events, want 3", len(recorded))
	}
	for i, rec := range recorded {
		if rec.Type != string(emitted[i].Type) {
			t.Errorf("event %d type = %q, want %q", i, rec.Type, emitted[i].Type)
		}
		if rec.Source != emitted[i].Source {
			t.Errorf("event %d source = %q, want %q", i, rec.Source, emitted[i].Source)
		}
	}
	if !strings.Contains(recorded[0].Data, `"count":3`) {
		t.Errorf("discovery payload = %s, want count field", recorded[0].Data)
	}

	counts, err := j.EventTypeCounts(run.ID)
	if err != nil {
		t.Fatalf("EventTypeCounts: %v", err)
	}
	if len(counts) != 3 {
		t.Errorf("got %d event types, want 3: %v", len(counts), counts)
	}
	if counts[string(events.EventError)] != 1 {
		t.Errorf("error count = %d, want 1", counts[string(events.EventError)])
	}

	recent, err := j.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent events, want 2", len(recent))
	}
	if recent[0].Type != string(events.EventError) {
		t.Errorf("newest event = %q, want error", recent[0].Type)
	}
}

func TestRecordEventRequiresRun(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.RecordEvent("ghost", events.NewErrorEvent("engine", errors.New("nope"))); err == nil {
		t.Error("recording against an unknown run did not fail")
	}
}

func TestRecorderCapturesBusTraffic(t *testing.T) {
	j := openTestJournal(t)
	bus := events.NewBus()

	rec, err := NewRecorder(j, bus, "ui session")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	bus.Publish(events.NewElementClickedEvent("options", 0, "(100,100 20x20)"))
	bus.Publish(events.NewButtonStateChangedEvent("dialog", "save", true))
	// Stop drains the queue so both events reach the journal before the
	// run is closed out.
	bus.Stop()
	if err := rec.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recorded, err := j.EventsForRun(rec.Run().ID, 0)
	if err != nil {
		t.Fatalf("EventsForRun: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("got %d events, want 2", len(recorded))
	}
	if recorded[0].Type != string(events.EventElementClicked) ||
		recorded[1].Type != string(events.EventButtonStateChanged) {
		t.Errorf("events out of order: %q then %q", recorded[0].Type, recorded[1].Type)
	}

	run, err := j.GetRun(rec.Run().ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("status = %q, want completed", run.Status)
	}

	bus = events.NewBus()
	defer bus.Stop()
	rec, err = NewRecorder(j, bus, "broken session")
	if err != nil {
		t.Fatalf("NewRecorder second: %v", err)
	}
	if err := rec.Close(errors.New("screen lost")); err != nil {
		t.Fatalf("Close with error: %v", err)
	}
	run, err = j.GetRun(rec.Run().ID)
	if err != nil {
		t.Fatalf("GetRun failed run: %v", err)
	}
	if run.Status != "failed" || run.ErrorMessage == nil || *run.ErrorMessage != "screen lost" {
		t.Errorf("failed run: status=%q message=%v", run.Status, run.ErrorMessage)
	}
}

func TestPruneRunsCascades(t *testing.T) {
	j := openTestJournal(t)

	old, err := j.StartRun("old")
	if err != nil {
		t.Fatalf("StartRun old: %v", err)
	}
	if _, err := j.RecordEvent(old.ID, events.NewErrorEvent("engine", errors.New("boom"))); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	fresh, err := j.StartRun("fresh")
	if err != nil {
		t.Fatalf("StartRun fresh: %v", err)
	}
	if _, err := j.RecordEvent(fresh.ID, events.NewButtonClickedEvent("dialog", "ok", "")); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	// Age the first run past the cutoff.
	err = j.ExecTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE runs SET started_at = ? WHERE id = ?`,
			time.Now().Add(-48*time.Hour), old.ID)
		return err
	})
	if err != nil {
		t.Fatalf("age run: %v", err)
	}

	deleted, err := j.PruneRuns(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := j.GetRun(old.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("pruned run still present, err = %v", err)
	}
	orphaned, err := j.EventsForRun(old.ID, 0)
	if err != nil {
		t.Fatalf("EventsForRun pruned: %v", err)
	}
	if len(orphaned) != 0 {
		t.Errorf("pruned run still has %d events", len(orphaned))
	}

	stats, err := j.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["runs"] != 1 || stats["events"] != 1 {
		t.Errorf("stats = %v, want 1 run and 1 event", stats)
	}
}

func TestRunSummaries(t *testing.T) {
	j := openTestJournal(t)

	run, err := j.StartRun("summary")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	for _, e := range []events.Event{
		events.NewElementsDiscoveredEvent("options", 2, nil),
		events.NewElementClickedEvent("options", 1, ""),
		events.NewErrorEvent("engine", errors.New("boom")),
	} {
		if _, err := j.RecordEvent(run.ID, e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	if err := j.CompleteRun(run.ID); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	empty, err := j.StartRun("idle")
	if err != nil {
		t.Fatalf("StartRun idle: %v", err)
	}

	summaries, err := j.RunSummaries(5)
	if err != nil {
		t.Fatalf("RunSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	byID := make(map[string]*RunSummary)
	for _, s := range summaries {
		byID[s.ID] = s
	}
	if s := byID[run.ID]; s == nil || s.EventCount != 3 || s.ErrorCount != 1 || s.Status != "completed" {
		t.Errorf("summary for %s = %+v, want 3 events, 1 error, completed", run.ID, s)
	}
	if s := byID[empty.ID]; s == nil || s.EventCount != 0 || s.ErrorCount != 0 {
		t.Errorf("summary for idle run = %+v, want zero counts", s)
	}
}
