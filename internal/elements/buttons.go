package elements

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/match"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// ButtonDeclaration lists the renderings of one named button. Enabled
// is required; a button declared without Disabled images can never be
// observed disabled.
type ButtonDeclaration struct {
	Enabled  []screen.Image
	Disabled []screen.Image
}

// Button is the discovered state of one declared button.
type Button struct {
	Name    string
	Match   *screen.Match
	Enabled bool
}

type flatButton struct {
	name     string
	img      screen.Image
	disabled bool
}

// Buttons tracks a set of named buttons, each enabled or disabled.
// Buttons are declared name by name; declaration order for probing is
// the sorted name order, so discovery is deterministic regardless of
// map iteration.
//
// Not safe for concurrent use.
type Buttons struct {
	d            screen.Driver
	r            *match.Resolver
	name         string
	decls        map[string]ButtonDeclaration
	names        []string
	flat         []flatButton
	searchRegion geom.Region
	set          settings

	buttons    map[string]*Button
	discovered bool
}

// NewButtons creates a tracker for one button set.
func NewButtons(d screen.Driver, name string, decls map[string]ButtonDeclaration, searchRegion geom.Region, opts ...Option) (*Buttons, error) {
	if name == "" {
		name = "buttons"
	}
	if len(decls) == 0 {
		return nil, uierr.Newf(uierr.InvalidState, "button set %q: no buttons declared", name)
	}
	if searchRegion.Empty() {
		return nil, uierr.Newf(uierr.InvalidState, "button set %q: empty search region", name)
	}

	names := make([]string, 0, len(decls))
	for buttonName, decl := range decls {
		if len(decl.Enabled) == 0 {
			return nil, uierr.Newf(uierr.InvalidState,
				"button %q: at least one enabled image is required", buttonName)
		}
		names = append(names, buttonName)
	}
	sort.Strings(names)

	var flat []flatButton
	for _, buttonName := range names {
		decl := decls[buttonName]
		for _, img := range decl.Enabled {
			flat = append(flat, flatButton{name: buttonName, img: img})
		}
		for _, img := range decl.Disabled {
			flat = append(flat, flatButton{name: buttonName, img: img, disabled: true})
		}
	}

	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}
	return &Buttons{
		d:            d,
		r:            set.newResolver(d),
		name:         name,
		decls:        decls,
		names:        names,
		flat:         flat,
		searchRegion: searchRegion,
		set:          set,
	}, nil
}

// Name returns the set name.
func (b *Buttons) Name() string { return b.name }

// FindButtons discovers the declared buttons, polling until the
// timeout. Each image's best match is collected and the matches are
// clustered into physical elements; a cluster shared by two names, or
// one name matching at two separate elements, is a Duplicate failure,
// never a silent merge. Buttons whose images never matched are simply
// absent afterwards; zero matches overall is NotFound.
func (b *Buttons) FindButtons(ctx context.Context, timeout time.Duration) error {
	images := make([]screen.Image, len(b.flat))
	for i, fb := range b.flat {
		images[i] = fb.img
	}
	matches, err := b.r.FindAll(ctx, images, b.searchRegion, timeout)
	if err != nil {
		return err
	}

	var entries []match.Scored
	for i, m := range matches {
		if m != nil {
			entries = append(entries, match.Scored{Index: i, Match: m})
		}
	}
	if len(entries) == 0 {
		return uierr.Newf(uierr.NotFound,
			"none of the %d declared buttons of %q found in %s", len(b.names), b.name, b.searchRegion)
	}

	clusters := match.ClusterMatches(entries, b.set.clusterOverlap)
	found := make(map[string]*Button, len(clusters))
	siteOf := make(map[string]geom.Region, len(clusters))
	for _, cl := range clusters {
		name := b.flat[cl.Members[0].Index].name
		for _, member := range cl.Members[1:] {
			if other := b.flat[member.Index].name; other != name {
				return uierr.Newf(uierr.Duplicate,
					"buttons %q and %q of %q resolve to the same element at %s", name, other, b.name, cl.Region)
			}
		}
		if prev, ok := siteOf[name]; ok {
			return uierr.Newf(uierr.Duplicate,
				"button %q of %q found at two elements, %s and %s", name, b.name, prev, cl.Region)
		}
		siteOf[name] = cl.Region

		best := cl.Members[0]
		for _, member := range cl.Members[1:] {
			if member.Match.Score > best.Match.Score {
				best = member
			}
		}
		found[name] = &Button{
			Name:    name,
			Match:   best.Match,
			Enabled: !b.flat[best.Index].disabled,
		}
	}

	b.buttons = found
	b.discovered = true
	foundNames := b.FoundButtons()
	b.set.log.Infow("buttons discovered", "set", b.name, "buttons", foundNames)
	events.Emit(b.set.pub, events.NewButtonsDiscoveredEvent(b.name, foundNames))
	return nil
}

// IsButtonEnabled reports the cached state of a button. An undeclared
// or undiscovered button is NotFound.
func (b *Buttons) IsButtonEnabled(name string) (bool, error) {
	state, err := b.button(name)
	if err != nil {
		return false, err
	}
	return state.Enabled, nil
}

// UpdateButton re-reads one button's ground truth: the best of its
// enabled and disabled renderings within the last match's region plus
// a pixel margin. The button is disabled exactly when a disabled
// rendering wins.
func (b *Buttons) UpdateButton(ctx context.Context, name string) error {
	state, err := b.button(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, "update button "+name)
	}

	decl := b.decls[name]
	images := make([]screen.Image, 0, len(decl.Enabled)+len(decl.Disabled))
	images = append(images, decl.Enabled...)
	images = append(images, decl.Disabled...)

	probeRegion := state.Match.Region.Inflate(b.set.buttonMargin)
	var idx int
	var m *screen.Match
	err = screen.Scoped(b.d, probeRegion, 0, false, func() error {
		var err error
		idx, m, err = b.r.BestMatch(images, probeRegion, b.set.clusterOverlap)
		return err
	})
	if err != nil {
		return err
	}
	if m == nil {
		return uierr.Newf(uierr.NotFound, "button %q of %q not found near %s", name, b.name, probeRegion)
	}

	enabled := idx < len(decl.Enabled)
	if enabled != state.Enabled {
		state.Enabled = enabled
		b.set.log.Debugw("button state changed", "set", b.name, "button", name, "enabled", enabled)
		events.Emit(b.set.pub, events.NewButtonStateChangedEvent(b.name, name, enabled))
	}
	state.Match = m
	return nil
}

// UpdateButtons re-reads every discovered button, in name order.
func (b *Buttons) UpdateButtons(ctx context.Context) error {
	if err := b.requireDiscovered(); err != nil {
		return err
	}
	for _, name := range b.names {
		if _, ok := b.buttons[name]; !ok {
			continue
		}
		if err := b.UpdateButton(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// WaitUntilButtonEnabled polls a button's ground truth until it is
// enabled, failing Timeout otherwise.
func (b *Buttons) WaitUntilButtonEnabled(ctx context.Context, name string, timeout time.Duration) error {
	if _, err := b.button(name); err != nil {
		return err
	}
	w := b.set.newWait(timeout, fmt.Sprintf("waiting for button %q to be enabled", name))
	for {
		err := b.UpdateButton(ctx, name)
		switch {
		case err == nil:
			if b.buttons[name].Enabled {
				return nil
			}
		case uierr.Is(err, uierr.NotFound), uierr.Is(err, uierr.Ambiguous):
		default:
			return err
		}
		if err := w.Sleep(ctx); err != nil {
			return err
		}
	}
}

// WaitUntilAllButtonsEnabled polls until every discovered button is
// enabled, failing Timeout otherwise.
func (b *Buttons) WaitUntilAllButtonsEnabled(ctx context.Context, timeout time.Duration) error {
	if err := b.requireDiscovered(); err != nil {
		return err
	}
	w := b.set.newWait(timeout, "waiting for all buttons of "+b.name)
	for {
		err := b.UpdateButtons(ctx)
		switch {
		case err == nil:
			if all, _ := b.AllButtonsEnabled(); all {
				return nil
			}
		case uierr.Is(err, uierr.NotFound), uierr.Is(err, uierr.Ambiguous):
		default:
			return err
		}
		if err := w.Sleep(ctx); err != nil {
			return err
		}
	}
}

// AllButtonsEnabled reports whether every discovered button is
// currently cached as enabled.
func (b *Buttons) AllButtonsEnabled() (bool, error) {
	if err := b.requireDiscovered(); err != nil {
		return false, err
	}
	for _, state := range b.buttons {
		if !state.Enabled {
			return false, nil
		}
	}
	return true, nil
}

// ClickButton clicks a button's matched region.
func (b *Buttons) ClickButton(ctx context.Context, name string, mod screen.Modifier) error {
	state, err := b.button(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, "click button "+name)
	}
	if _, err := b.d.Click(state.Match.Region, mod); err != nil {
		return err
	}
	b.set.log.Debugw("clicked button", "set", b.name, "button", name, "region", state.Match.Region.String())
	events.Emit(b.set.pub, events.NewButtonClickedEvent(b.name, name, state.Match.Region.String()))
	return nil
}

// ButtonNames returns the declared names in sorted order.
func (b *Buttons) ButtonNames() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// FoundButtons returns the discovered names in sorted order.
func (b *Buttons) FoundButtons() []string {
	var out []string
	for _, name := range b.names {
		if _, ok := b.buttons[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// ButtonCount returns the number of declared buttons.
func (b *Buttons) ButtonCount() int { return len(b.names) }

// HasButton reports whether name is declared.
func (b *Buttons) HasButton(name string) bool {
	_, ok := b.decls[name]
	return ok
}

// ButtonMatch returns the match backing a discovered button.
func (b *Buttons) ButtonMatch(name string) (*screen.Match, error) {
	state, err := b.button(name)
	if err != nil {
		return nil, err
	}
	return state.Match, nil
}

func (b *Buttons) requireDiscovered() error {
	if !b.discovered {
		return uierr.Newf(uierr.InvalidState, "button set %q: buttons not discovered yet", b.name)
	}
	return nil
}

func (b *Buttons) button(name string) (*Button, error) {
	if err := b.requireDiscovered(); err != nil {
		return nil, err
	}
	if !b.HasButton(name) {
		return nil, uierr.Newf(uierr.NotFound, "button %q not declared in %q", name, b.name)
	}
	state, ok := b.buttons[name]
	if !ok {
		return nil, uierr.Newf(uierr.NotFound, "button %q of %q was not found on screen", name, b.name)
	}
	return state, nil
}
