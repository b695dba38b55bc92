package window

import (
	"context"
	"sort"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/match"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/internal/wait"
)

// DefaultAnswerTimeout bounds the search for a confirm button on
// screen.
const DefaultAnswerTimeout = 3 * time.Second

// DefaultSettle is the pause after answering a dialog, giving the
// window time to disappear.
const DefaultSettle = time.Second

// Confirm is a dialog whose only controls are buttons that each close
// it: OK and Cancel, Yes and No. A button is answered either by
// clicking its template on screen or by pressing a bound key. With
// neither buttons nor keys configured, the dialog answers "ok" with
// enter and "cancel" with esc.
type Confirm struct {
	*Dialog
	d       screen.Driver
	r       *match.Resolver
	region  geom.Region
	buttons map[string][]screen.Image
	keys    map[string]string
	ids     []string
	timeout time.Duration
	settle  time.Duration
	sleep   wait.Sleeper
}

// ConfirmOption configures a Confirm.
type ConfirmOption func(*Confirm)

// WithButtons binds button ids to the template images that answer
// them.
func WithButtons(buttons map[string][]screen.Image) ConfirmOption {
	return func(c *Confirm) { c.buttons = buttons }
}

// WithKeys binds button ids to the keys that answer them. A key
// binding takes precedence over a button template with the same id.
func WithKeys(keys map[string]string) ConfirmOption {
	return func(c *Confirm) { c.keys = keys }
}

// WithButtonIDs restricts the dialog to a subset of the defined
// buttons.
func WithButtonIDs(ids ...string) ConfirmOption {
	return func(c *Confirm) { c.ids = ids }
}

// WithRegion scopes the button search. The default is the whole
// screen.
func WithRegion(region geom.Region) ConfirmOption {
	return func(c *Confirm) { c.region = region }
}

// WithAnswerTimeout bounds the wait for a button template to appear.
func WithAnswerTimeout(d time.Duration) ConfirmOption {
	return func(c *Confirm) { c.timeout = d }
}

// WithSettle sets the pause after answering.
func WithSettle(d time.Duration) ConfirmOption {
	return func(c *Confirm) { c.settle = d }
}

// WithResolver replaces the resolver used to click buttons.
func WithResolver(r *match.Resolver) ConfirmOption {
	return func(c *Confirm) { c.r = r }
}

// WithSleeper replaces the real settle pause, for tests.
func WithSleeper(sl wait.Sleeper) ConfirmOption {
	return func(c *Confirm) { c.sleep = sl }
}

// NewConfirm wraps a dialog as a confirmation dialog. Button ids given
// with WithButtonIDs must be defined by a button or key binding.
func NewConfirm(dlg *Dialog, d screen.Driver, opts ...ConfirmOption) (*Confirm, error) {
	if dlg == nil {
		return nil, uierr.New(uierr.InvalidState, "confirm: nil dialog")
	}
	c := &Confirm{
		Dialog:  dlg,
		d:       d,
		timeout: DefaultAnswerTimeout,
		settle:  DefaultSettle,
		sleep:   wait.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.buttons) == 0 && len(c.keys) == 0 {
		c.keys = map[string]string{"ok": "enter", "cancel": "esc"}
	}
	if c.region.Empty() {
		c.region = d.Bounds()
	}
	if c.r == nil {
		c.r = match.NewResolver(d, match.WithLogger(dlg.log))
	}

	defined := make(map[string]bool, len(c.buttons)+len(c.keys))
	for id := range c.buttons {
		defined[id] = true
	}
	for id := range c.keys {
		defined[id] = true
	}
	if len(c.ids) == 0 {
		for id := range defined {
			c.ids = append(c.ids, id)
		}
		sort.Strings(c.ids)
	} else {
		for _, id := range c.ids {
			if !defined[id] {
				return nil, uierr.Newf(uierr.InvalidState,
					"undefined button id %q in dialog %q", id, dlg.name)
			}
		}
	}
	return c, nil
}

// ButtonIDs returns the dialog's usable button ids.
func (c *Confirm) ButtonIDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// CloseWith closes the dialog by answering with the named button,
// running the same children-first cascade as Close. An id outside the
// dialog's buttons is a NotFound failure.
func (c *Confirm) CloseWith(ctx context.Context, id string) error {
	step, err := c.answer(id)
	if err != nil {
		return err
	}
	return c.closeVia(ctx, step)
}

// answer resolves a button id to the step that physically answers it.
func (c *Confirm) answer(id string) (CloseFunc, error) {
	usable := false
	for _, known := range c.ids {
		if known == id {
			usable = true
			break
		}
	}
	if !usable {
		return nil, uierr.Newf(uierr.NotFound, "dialog %q has no button %q", c.name, id)
	}

	if key, ok := c.keys[id]; ok {
		return func(ctx context.Context) error {
			return c.pressKey(ctx, key)
		}, nil
	}
	images := c.buttons[id]
	return func(ctx context.Context) error {
		if _, err := c.r.ClickAny(ctx, images, c.region, c.timeout, screen.ModNone); err != nil {
			return err
		}
		return c.settleDown(ctx)
	}, nil
}

func (c *Confirm) pressKey(ctx context.Context, key string) error {
	typer, ok := c.d.(screen.KeyTyper)
	if !ok {
		return uierr.Newf(uierr.InvalidState, "dialog %q: driver cannot type keys", c.name)
	}
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, "answer dialog "+c.name)
	}
	if err := typer.TapKey(key); err != nil {
		return err
	}
	return c.settleDown(ctx)
}

func (c *Confirm) settleDown(ctx context.Context) error {
	if c.settle <= 0 {
		return nil
	}
	return c.sleep(ctx, c.settle)
}
