// Package watch runs background detection of interrupting screens.
// While a flow drives the screen forward, a watcher polls for trouble
// templates, error banners, surprise popups, maintenance notices, and
// runs their handlers when one appears.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// DefaultInterval is the pause between probe rounds.
const DefaultInterval = time.Second

// triggerQueue bounds pending out-of-cadence probe requests.
const triggerQueue = 16

// Priority sets how often a condition is probed.
type Priority int

const (
	// PriorityCritical conditions are probed every round.
	PriorityCritical Priority = iota
	// PriorityHigh conditions are probed every second round.
	PriorityHigh
	// PriorityLow conditions are probed every fourth round.
	PriorityLow
)

// due reports whether the priority is probed in the given round.
func (p Priority) due(round int) bool {
	switch p {
	case PriorityHigh:
		return round%2 == 0
	case PriorityLow:
		return round%4 == 0
	default:
		return true
	}
}

// Condition is one screen state worth interrupting for.
type Condition struct {
	// Name identifies the condition in logs, events and Trigger calls.
	Name string
	// Images are the templates whose appearance signals the condition.
	Images []screen.Image
	// Region scopes the probe. Empty means the whole screen.
	Region geom.Region
	// Priority sets the probe cadence.
	Priority Priority
	// Handle runs with the triggering match when one of the images
	// appears. Handlers run on the watcher goroutine, one at a time.
	Handle func(ctx context.Context, m *screen.Match) error
	// Once drops the condition after its first successful handling.
	Once bool
	// Stop shuts the watcher down after handling, for conditions that
	// mean the run is over.
	Stop bool
}

// Watcher probes registered conditions against the screen, either in
// the background on a ticker or synchronously through Sweep. A running
// watcher probes from its own goroutine; drivers are not required to
// be concurrency safe, so either give the watcher its own driver or
// keep it stopped while a flow drives the same one.
type Watcher struct {
	d        screen.Driver
	log      *zap.SugaredLogger
	pub      events.Publisher
	interval time.Duration

	mu         sync.Mutex
	conditions []*Condition
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}

	trigger  chan string
	handling atomic.Bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithPublisher makes the watcher emit detection and error events.
func WithPublisher(pub events.Publisher) Option {
	return func(w *Watcher) { w.pub = pub }
}

// WithInterval sets the pause between background probe rounds.
func WithInterval(interval time.Duration) Option {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// New creates a watcher with no conditions.
func New(d screen.Driver, opts ...Option) *Watcher {
	w := &Watcher{
		d:        d,
		log:      zap.NewNop().Sugar(),
		interval: DefaultInterval,
		trigger:  make(chan string, triggerQueue),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add registers a condition. An empty region is widened to the whole
// screen.
func (w *Watcher) Add(c Condition) error {
	if c.Name == "" {
		return uierr.New(uierr.InvalidState, "condition needs a name")
	}
	if len(c.Images) == 0 {
		return uierr.Newf(uierr.InvalidState, "condition %q has no images", c.Name)
	}
	if c.Handle == nil {
		return uierr.Newf(uierr.InvalidState, "condition %q has no handler", c.Name)
	}
	if c.Region.Empty() {
		c.Region = w.d.Bounds()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, have := range w.conditions {
		if have.Name == c.Name {
			return uierr.Newf(uierr.InvalidState, "condition %q already registered", c.Name)
		}
	}
	w.conditions = append(w.conditions, &c)
	return nil
}

// Remove drops a condition, reporting whether it was registered.
func (w *Watcher) Remove(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, c := range w.conditions {
		if c.Name == name {
			w.conditions = append(w.conditions[:i], w.conditions[i+1:]...)
			return true
		}
	}
	return false
}

// Conditions returns the registered condition names in registration
// order.
func (w *Watcher) Conditions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.conditions))
	for i, c := range w.conditions {
		names[i] = c.Name
	}
	return names
}

// Handling reports whether a condition handler is running right now.
func (w *Watcher) Handling() bool {
	return w.handling.Load()
}

// Running reports whether the background loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Trigger asks the background loop to probe one condition out of
// cadence. The request is dropped when the queue is full.
func (w *Watcher) Trigger(name string) {
	select {
	case w.trigger <- name:
	default:
	}
}

// Start launches the background loop. Starting a running watcher is an
// InvalidState failure.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return uierr.New(uierr.InvalidState, "watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(runCtx, cancel, w.done)
	return nil
}

// Stop cancels the background loop and waits for it to finish. It is
// safe to call on a stopped watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run owns the done channel and cancel func it was launched with, so a
// loop that outlives a restart cannot touch its successor's.
func (w *Watcher) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		cancel()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	round := 0
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-w.trigger:
			if w.probeByName(ctx, name) {
				return
			}
		case <-ticker.C:
			round++
			if w.sweepDue(ctx, round) {
				return
			}
		}
	}
}

// Sweep probes every condition once, regardless of cadence, and
// handles those that appear. It returns the number of conditions
// handled. Flows call it between steps to pick up interruptions
// without running the watcher in the background; it must not race a
// running loop for the driver.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	w.mu.Lock()
	running := w.running
	snapshot := append([]*Condition(nil), w.conditions...)
	w.mu.Unlock()
	if running {
		return 0, uierr.New(uierr.InvalidState, "watcher is running in the background")
	}

	handled := 0
	for _, c := range snapshot {
		if err := ctx.Err(); err != nil {
			return handled, uierr.Wrap(uierr.Canceled, err, "sweeping conditions")
		}
		ok, _, err := w.probe(ctx, c)
		if err != nil {
			return handled, err
		}
		if ok {
			handled++
		}
	}
	return handled, nil
}

// sweepDue runs one background round over the conditions due at it,
// reporting whether a Stop condition fired.
func (w *Watcher) sweepDue(ctx context.Context, round int) bool {
	w.mu.Lock()
	due := make([]*Condition, 0, len(w.conditions))
	for _, c := range w.conditions {
		if c.Priority.due(round) {
			due = append(due, c)
		}
	}
	w.mu.Unlock()

	for _, c := range due {
		if ctx.Err() != nil {
			return false
		}
		_, stop, err := w.probe(ctx, c)
		if err != nil {
			w.log.Warnw("condition probe failed", "condition", c.Name, "error", err)
			events.Emit(w.pub, events.NewErrorEvent("watch."+c.Name, err))
			continue
		}
		if stop {
			return true
		}
	}
	return false
}

func (w *Watcher) probeByName(ctx context.Context, name string) bool {
	var found *Condition
	w.mu.Lock()
	for _, c := range w.conditions {
		if c.Name == name {
			found = c
			break
		}
	}
	w.mu.Unlock()
	if found == nil {
		return false
	}

	_, stop, err := w.probe(ctx, found)
	if err != nil {
		w.log.Warnw("condition probe failed", "condition", found.Name, "error", err)
		events.Emit(w.pub, events.NewErrorEvent("watch."+found.Name, err))
		return false
	}
	return stop
}

// probe checks one condition's images and handles the first hit.
func (w *Watcher) probe(ctx context.Context, c *Condition) (handled, stop bool, err error) {
	for _, img := range c.Images {
		m, perr := screen.Probe(w.d, img, c.Region)
		if perr != nil {
			return false, false, perr
		}
		if m != nil {
			handled, stop = w.handleCondition(ctx, c, m)
			return handled, stop, nil
		}
	}
	return false, false, nil
}

// handleCondition runs one handler behind the recovery gate. A failed
// handler leaves the condition registered so the next round retries.
func (w *Watcher) handleCondition(ctx context.Context, c *Condition, m *screen.Match) (handled, stop bool) {
	if !w.handling.CompareAndSwap(false, true) {
		return false, false
	}
	defer w.handling.Store(false)

	w.log.Infow("condition detected",
		"condition", c.Name, "image", m.Image.Name(), "region", m.Region.String(), "score", m.Score)
	events.Emit(w.pub, events.NewMatchFoundEvent("watch."+c.Name, m.Image.Name(), m.Region.String(), m.Score))

	if err := c.Handle(ctx, m); err != nil {
		w.log.Errorw("condition handler failed", "condition", c.Name, "error", err)
		events.Emit(w.pub, events.NewErrorEvent("watch."+c.Name, err))
		return false, false
	}

	if c.Once {
		w.Remove(c.Name)
	}
	if c.Stop {
		w.log.Infow("stopping after condition", "condition", c.Name)
		return true, true
	}
	return true, false
}
