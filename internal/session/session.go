// Package session assembles the engine for callers: driver, config,
// logging, the event bus, an optional journal recorder and the
// declaration registry behind one handle. The engine packages demand
// explicit search regions; the whole-screen defaults live here.
package session

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/config"
	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/journal"
	"github.com/karlmicha/rguils/internal/logging"
	"github.com/karlmicha/rguils/internal/match"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/pkg/templates"
)

// Session owns the wiring for one engine run. Create with New, release
// with Close. Like the driver it wraps, a Session serves one goroutine.
type Session struct {
	cfg      *config.Config
	d        screen.Driver
	log      *zap.SugaredLogger
	bus      *events.Bus
	resolver *match.Resolver
	registry *templates.Registry

	journal  *journal.Journal
	recorder *journal.Recorder
	watcher  *templates.Watcher
	closed   bool
}

type settings struct {
	log      *zap.SugaredLogger
	registry *templates.Registry
	label    string
}

// Option configures a Session.
type Option func(*settings)

// WithLogger replaces the logger built from the config's log level.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *settings) { s.log = log }
}

// WithRegistry shares a caller-owned declaration registry instead of
// creating a fresh one.
func WithRegistry(reg *templates.Registry) Option {
	return func(s *settings) { s.registry = reg }
}

// WithRunLabel names the journal run; the default is "session".
func WithRunLabel(label string) Option {
	return func(s *settings) { s.label = label }
}

// New wires a session around a driver. The config's journal settings
// decide whether a run is recorded; a nil config means defaults.
func New(d screen.Driver, cfg *config.Config, opts ...Option) (*Session, error) {
	if d == nil {
		return nil, uierr.New(uierr.InvalidState, "session needs a driver")
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := settings{label: "session"}
	for _, opt := range opts {
		opt(&st)
	}
	log := st.log
	if log == nil {
		log = logging.New("session", cfg.LogLevel)
	}

	s := &Session{
		cfg:      cfg,
		d:        d,
		log:      log,
		bus:      events.NewBus(events.WithLogger(log)),
		registry: st.registry,
	}
	s.resolver = match.NewResolver(d, match.WithInterval(cfg.PollInterval), match.WithLogger(log))
	if s.registry == nil {
		s.registry = templates.New(cfg.TemplateDir, templates.WithLogger(log))
	}

	if cfg.JournalEnabled && cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.WithLogger(log))
		if err != nil {
			s.bus.Stop()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rec, err := journal.NewRecorder(j, s.bus, st.label)
		if err != nil {
			j.Close()
			s.bus.Stop()
			return nil, fmt.Errorf("start journal run: %w", err)
		}
		s.journal, s.recorder = j, rec
		log.Infow("journal run started", "run", rec.Run().ID, "path", j.Path())
	}
	return s, nil
}

// LoadDeclarations loads the configured registry path, which may be a
// single YAML file or a directory of them, and starts the hot-reload
// watcher when the config asks for one.
func (s *Session) LoadDeclarations() error {
	path := s.cfg.RegistryPath
	if path == "" {
		return uierr.New(uierr.InvalidState, "no registry path configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("declaration path: %w", err)
	}
	if info.IsDir() {
		err = s.registry.LoadFromDirectory(path)
	} else {
		err = s.registry.LoadFromFile(path)
	}
	if err != nil {
		return err
	}
	s.log.Infow("declarations loaded", "path", path, "templates", s.registry.Count())

	if s.cfg.WatchTemplates && info.IsDir() && s.watcher == nil {
		w, err := s.registry.Watch(path, nil)
		if err != nil {
			return err
		}
		s.watcher = w
	}
	return nil
}

// Close stops the watcher, drains the event bus into the journal and
// closes out the run. A nil runErr completes the run, anything else
// fails it with the error message. Close is a no-op the second time.
func (s *Session) Close(runErr error) error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.watcher != nil {
		s.watcher.Close()
	}
	s.bus.Stop()

	var firstErr error
	if s.recorder != nil {
		if err := s.recorder.Close(runErr); err != nil {
			firstErr = err
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Driver returns the wrapped driver.
func (s *Session) Driver() screen.Driver { return s.d }

// Config returns the session config.
func (s *Session) Config() *config.Config { return s.cfg }

// Logger returns the session logger.
func (s *Session) Logger() *zap.SugaredLogger { return s.log }

// Bus returns the event bus for extra subscribers.
func (s *Session) Bus() *events.Bus { return s.bus }

// Registry returns the declaration registry.
func (s *Session) Registry() *templates.Registry { return s.registry }

// Resolver returns the session's match resolver.
func (s *Session) Resolver() *match.Resolver { return s.resolver }

// Journal returns the journal, nil when recording is disabled.
func (s *Session) Journal() *journal.Journal { return s.journal }

// RunID returns the journal run ID, empty when recording is disabled.
func (s *Session) RunID() string {
	if s.recorder == nil {
		return ""
	}
	return s.recorder.Run().ID
}
