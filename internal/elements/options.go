// Package elements tracks the state of stateful screen elements:
// checkbox and radio groups whose elements are checked or unchecked,
// and button sets whose buttons are enabled or disabled. State is
// decided by competing match scores, cached across polls, and mutated
// either optimistically after a click or by re-probing the screen.
package elements

import (
	"time"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/match"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/wait"
)

type settings struct {
	log            *zap.SugaredLogger
	pub            events.Publisher
	interval       time.Duration
	sleeper        wait.Sleeper
	clusterOverlap float64
	verifyMargin   float64
	verifyTimeout  time.Duration
	buttonMargin   int
}

func defaultSettings() settings {
	return settings{
		log:            zap.NewNop().Sugar(),
		interval:       wait.DefaultInterval,
		clusterOverlap: geom.ClusterMinOverlap,
		verifyMargin:   0.2,
		verifyTimeout:  3 * time.Second,
		buttonMargin:   15,
	}
}

// Option configures a tracker.
type Option func(*settings)

// WithLogger sets the tracker's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *settings) { s.log = log }
}

// WithPublisher makes the tracker emit discovery, click and state
// change events.
func WithPublisher(pub events.Publisher) Option {
	return func(s *settings) { s.pub = pub }
}

// WithInterval sets the delay between polling rounds.
func WithInterval(interval time.Duration) Option {
	return func(s *settings) { s.interval = interval }
}

// WithSleeper replaces the real sleep between polls, for tests.
func WithSleeper(sl wait.Sleeper) Option {
	return func(s *settings) { s.sleeper = sl }
}

// WithClusterOverlap sets the mutual overlap at which two matches are
// taken as the same physical element.
func WithClusterOverlap(v float64) Option {
	return func(s *settings) { s.clusterOverlap = v }
}

// WithVerifyMargin sets the fraction of an element's size added on
// each side when re-probing it.
func WithVerifyMargin(v float64) Option {
	return func(s *settings) { s.verifyMargin = v }
}

// WithVerifyTimeout bounds the verified-mode poll after a click.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *settings) { s.verifyTimeout = d }
}

// WithButtonMargin sets the pixel margin added around a button's last
// match when re-probing its state.
func WithButtonMargin(px int) Option {
	return func(s *settings) { s.buttonMargin = px }
}

func (s *settings) newWait(timeout time.Duration, message string) *wait.Wait {
	opts := []wait.Option{wait.WithInterval(s.interval), wait.WithMessage(message)}
	if s.sleeper != nil {
		opts = append(opts, wait.WithSleeper(s.sleeper))
	}
	return wait.New(timeout, opts...)
}

func (s *settings) newResolver(d screen.Driver) *match.Resolver {
	opts := []match.Option{match.WithInterval(s.interval), match.WithLogger(s.log)}
	if s.sleeper != nil {
		opts = append(opts, match.WithSleeper(s.sleeper))
	}
	return match.NewResolver(d, opts...)
}
