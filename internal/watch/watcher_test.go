package watch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/screen/screentest"
	"github.com/karlmicha/rguils/internal/uierr"
)

type recordingPub struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPub) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPub) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func TestPriorityCadence(t *testing.T) {
	tests := []struct {
		priority Priority
		round    int
		want     bool
	}{
		{PriorityCritical, 1, true},
		{PriorityCritical, 2, true},
		{PriorityHigh, 1, false},
		{PriorityHigh, 2, true},
		{PriorityHigh, 3, false},
		{PriorityHigh, 4, true},
		{PriorityLow, 2, false},
		{PriorityLow, 4, true},
		{PriorityLow, 7, false},
		{PriorityLow, 8, true},
	}
	for _, tt := range tests {
		if got := tt.priority.due(tt.round); got != tt.want {
			t.Errorf("priority %d due(%d) = %t, want %t", tt.priority, tt.round, got, tt.want)
		}
	}
}

func TestAddValidation(t *testing.T) {
	f := screentest.New()
	w := New(f)
	img := screentest.Img("banner")
	handle := func(context.Context, *screen.Match) error { return nil }

	tests := []struct {
		name string
		c    Condition
	}{
		{"no name", Condition{Images: []screen.Image{img}, Handle: handle}},
		{"no images", Condition{Name: "banner", Handle: handle}},
		{"no handler", Condition{Name: "banner", Images: []screen.Image{img}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Add(tt.c); !uierr.Is(err, uierr.InvalidState) {
				t.Fatalf("err = %v, want InvalidState", err)
			}
		})
	}

	if err := w.Add(Condition{Name: "banner", Images: []screen.Image{img}, Handle: handle}); err != nil {
		t.Fatal(err)
	}
	err := w.Add(Condition{Name: "banner", Images: []screen.Image{img}, Handle: handle})
	if !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("duplicate: err = %v, want InvalidState", err)
	}
}

func TestSweep(t *testing.T) {
	f := screentest.New()
	pub := &recordingPub{}
	w := New(f, WithPublisher(pub))

	banner := screentest.Img("error_banner")
	site := geom.Rect(700, 300, 200, 60)

	var got *screen.Match
	err := w.Add(Condition{
		Name:   "error banner",
		Images: []screen.Image{banner},
		Handle: func(ctx context.Context, m *screen.Match) error {
			got = m
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// nothing on screen yet
	handled, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if handled != 0 || got != nil {
		t.Fatalf("handled %d conditions on an empty screen", handled)
	}

	f.Show(banner, screentest.MatchAt(banner, site, 0.93))
	handled, err = w.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if handled != 1 {
		t.Fatalf("handled = %d, want 1", handled)
	}
	if got == nil || got.Region != site {
		t.Fatalf("handler got %v, want match at %s", got, site)
	}
	if want := []events.EventType{events.EventMatchFound}; !reflect.DeepEqual(pub.types(), want) {
		t.Fatalf("events = %v, want %v", pub.types(), want)
	}
}

func TestSweepOnce(t *testing.T) {
	f := screentest.New()
	w := New(f)
	popup := screentest.Img("levelup_popup")
	f.Show(popup, screentest.MatchAt(popup, geom.Rect(800, 400, 300, 200), 0.9))

	fired := 0
	err := w.Add(Condition{
		Name:   "levelup",
		Images: []screen.Image{popup},
		Once:   true,
		Handle: func(context.Context, *screen.Match) error {
			fired++
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := w.Sweep(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if fired != 1 {
		t.Fatalf("once condition fired %d times", fired)
	}
	if names := w.Conditions(); len(names) != 0 {
		t.Fatalf("conditions = %v, want none left", names)
	}
}

func TestSweepHandlerError(t *testing.T) {
	f := screentest.New()
	pub := &recordingPub{}
	w := New(f, WithPublisher(pub))
	popup := screentest.Img("privacy_popup")
	f.Show(popup, screentest.MatchAt(popup, geom.Rect(800, 400, 300, 200), 0.9))

	err := w.Add(Condition{
		Name:   "privacy",
		Images: []screen.Image{popup},
		Once:   true,
		Handle: func(context.Context, *screen.Match) error {
			return errors.New("dismiss click failed")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	handled, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if handled != 0 {
		t.Fatalf("handled = %d, want 0 after handler failure", handled)
	}
	// a failed handler keeps the condition registered for a retry
	if names := w.Conditions(); !reflect.DeepEqual(names, []string{"privacy"}) {
		t.Fatalf("conditions = %v, want [privacy]", names)
	}
	want := []events.EventType{events.EventMatchFound, events.EventError}
	if !reflect.DeepEqual(pub.types(), want) {
		t.Fatalf("events = %v, want %v", pub.types(), want)
	}
}

func TestBackgroundDetection(t *testing.T) {
	f := screentest.New()
	w := New(f, WithInterval(5*time.Millisecond))
	banner := screentest.Img("maintenance")
	site := geom.Rect(600, 200, 400, 100)
	f.Show(banner, screentest.MatchAt(banner, site, 0.95))

	fired := make(chan *screen.Match, 1)
	err := w.Add(Condition{
		Name:   "maintenance",
		Images: []screen.Image{banner},
		Once:   true,
		Handle: func(ctx context.Context, m *screen.Match) error {
			select {
			case fired <- m:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	select {
	case m := <-fired:
		if m.Region != site {
			t.Fatalf("handler got match at %s, want %s", m.Region, site)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("condition never handled in the background")
	}
}

func TestStopCondition(t *testing.T) {
	f := screentest.New()
	w := New(f, WithInterval(5*time.Millisecond))
	banner := screentest.Img("banned")
	f.Show(banner, screentest.MatchAt(banner, geom.Rect(500, 300, 400, 100), 0.95))

	fired := make(chan struct{}, 1)
	err := w.Add(Condition{
		Name:   "banned",
		Images: []screen.Image{banner},
		Stop:   true,
		Handle: func(context.Context, *screen.Match) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("stop condition never handled")
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Running() {
		t.Fatal("watcher still running after stop condition")
	}
}

func TestTrigger(t *testing.T) {
	f := screentest.New()
	// an interval this long means only Trigger can cause a probe
	w := New(f, WithInterval(time.Hour))
	popup := screentest.Img("reward_popup")
	f.Show(popup, screentest.MatchAt(popup, geom.Rect(800, 400, 300, 200), 0.9))

	fired := make(chan struct{}, 1)
	err := w.Add(Condition{
		Name:     "reward",
		Images:   []screen.Image{popup},
		Priority: PriorityLow,
		Handle: func(context.Context, *screen.Match) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.Trigger("reward")
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered condition never handled")
	}
}

func TestStartStop(t *testing.T) {
	f := screentest.New()
	w := New(f, WithInterval(time.Hour))

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("second start: err = %v, want InvalidState", err)
	}
	if _, err := w.Sweep(context.Background()); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("sweep while running: err = %v, want InvalidState", err)
	}

	w.Stop()
	if w.Running() {
		t.Fatal("running after Stop")
	}
	w.Stop() // idempotent

	// a stopped watcher can be started again
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
}
