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

// State is the observed state of one checkable element.
type State int

const (
	Unchecked State = iota
	Checked
)

func (s State) String() string {
	if s == Checked {
		return "checked"
	}
	return "unchecked"
}

// Element is one discovered checkable element. Its state derives from
// the two competing scores: checked only when the checked evidence
// strictly outweighs the unchecked evidence.
type Element struct {
	Region         geom.Region
	CheckedScore   float64
	UncheckedScore float64
}

// State returns Checked iff CheckedScore > UncheckedScore.
func (e *Element) State() State {
	if e.CheckedScore > e.UncheckedScore {
		return Checked
	}
	return Unchecked
}

// toggle is the single mutation point for optimistic state flips.
func (e *Element) toggle() {
	e.CheckedScore, e.UncheckedScore = e.UncheckedScore, e.CheckedScore
}

// Declaration describes a checkable group before discovery.
type Declaration struct {
	// Name identifies the group in logs and events.
	Name string
	// Checked and Unchecked are the template renderings of the two
	// states. Both lists must be non-empty.
	Checked   []screen.Image
	Unchecked []screen.Image
	// SearchRegion scopes discovery. It is required; defaulting to the
	// whole screen is the caller's business.
	SearchRegion geom.Region
	// Orientation orders the discovered elements.
	Orientation geom.SortOrder
	// Radio enforces the at-most-one-checked invariant and restricts
	// mutations to Check.
	Radio bool
	// Verified makes every mutation re-probe the screen until the
	// intended state is observed, instead of flipping cached scores.
	Verified bool
}

// Checkable tracks a group of checkboxes or radio buttons. Discover
// with FindElements before anything else; elements are then addressed
// by their index in orientation order.
//
// Not safe for concurrent use.
type Checkable struct {
	d    screen.Driver
	r    *match.Resolver
	decl Declaration
	set  settings

	elements   []*Element
	discovered bool
}

// NewCheckable creates a tracker for one checkable group.
func NewCheckable(d screen.Driver, decl Declaration, opts ...Option) (*Checkable, error) {
	if decl.Name == "" {
		decl.Name = "elements"
	}
	if len(decl.Checked) == 0 || len(decl.Unchecked) == 0 {
		return nil, uierr.Newf(uierr.InvalidState,
			"group %q: both checked and unchecked images are required", decl.Name)
	}
	if decl.SearchRegion.Empty() {
		return nil, uierr.Newf(uierr.InvalidState, "group %q: empty search region", decl.Name)
	}

	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}
	return &Checkable{
		d:    d,
		r:    set.newResolver(d),
		decl: decl,
		set:  set,
	}, nil
}

// Name returns the group name.
func (c *Checkable) Name() string { return c.decl.Name }

// FindElements discovers the group's elements, polling until at least
// one is visible or the timeout elapses (NotFound). Matches of all
// declared images are clustered into physical elements; each element
// keeps the best score seen per state and the result is ordered by the
// declared orientation. A radio group discovered with more than one
// checked element is InvalidState.
func (c *Checkable) FindElements(ctx context.Context, timeout time.Duration) error {
	w := c.set.newWait(timeout, "discovering "+c.decl.Name)
	for {
		if err := ctx.Err(); err != nil {
			return uierr.Wrap(uierr.Canceled, err, "discovering "+c.decl.Name)
		}
		elements, err := c.discover()
		if err != nil {
			return err
		}
		if len(elements) > 0 {
			if c.decl.Radio {
				if n := countChecked(elements); n > 1 {
					return uierr.Newf(uierr.InvalidState,
						"radio group %q discovered with %d checked elements", c.decl.Name, n)
				}
			}
			c.elements = elements
			c.discovered = true
			c.set.log.Infow("elements discovered",
				"group", c.decl.Name, "count", len(elements), "checked", c.checkedIndexes())
			events.Emit(c.set.pub,
				events.NewElementsDiscoveredEvent(c.decl.Name, len(elements), c.checkedIndexes()))
			return nil
		}
		if err := w.Sleep(ctx); err != nil {
			if uierr.Is(err, uierr.Timeout) {
				return uierr.Wrap(uierr.NotFound, err,
					fmt.Sprintf("no %q elements found in %s", c.decl.Name, c.decl.SearchRegion))
			}
			return err
		}
	}
}

// discover runs one probe pass over every declared image and builds
// the clustered element list.
func (c *Checkable) discover() ([]*Element, error) {
	checked, err := c.collect(c.decl.Checked)
	if err != nil {
		return nil, err
	}
	unchecked, err := c.collect(c.decl.Unchecked)
	if err != nil {
		return nil, err
	}

	// Index tags the evidence kind: 0 checked, 1 unchecked.
	entries := make([]match.Scored, 0, len(checked)+len(unchecked))
	for _, m := range checked {
		entries = append(entries, match.Scored{Index: 0, Match: m})
	}
	for _, m := range unchecked {
		entries = append(entries, match.Scored{Index: 1, Match: m})
	}

	clusters := match.ClusterMatches(entries, c.set.clusterOverlap)
	elements := make([]*Element, 0, len(clusters))
	for _, cl := range clusters {
		e := &Element{Region: cl.Region}
		for _, member := range cl.Members {
			if member.Index == 0 {
				e.CheckedScore = max(e.CheckedScore, member.Match.Score)
			} else {
				e.UncheckedScore = max(e.UncheckedScore, member.Match.Score)
			}
		}
		elements = append(elements, e)
	}

	less := geom.Less(c.decl.Orientation)
	sort.SliceStable(elements, func(a, b int) bool {
		return less(elements[a].Region, elements[b].Region)
	})
	return elements, nil
}

// collect finds every occurrence of every image in the list and
// deduplicates exact repeats.
func (c *Checkable) collect(images []screen.Image) ([]*screen.Match, error) {
	var all []*screen.Match
	for _, img := range images {
		ms, err := screen.ProbeAll(c.d, img, c.decl.SearchRegion)
		if err != nil {
			return nil, err
		}
		all = append(all, ms...)
	}
	return match.UniqueMatches(all), nil
}

// Check checks element i. Already checked is a no-op returning false.
// For radio groups the previously checked element is flipped off.
func (c *Checkable) Check(ctx context.Context, i int) (bool, error) {
	if err := c.ready(i); err != nil {
		return false, err
	}
	if c.elements[i].State() == Checked {
		return false, nil
	}
	if err := c.apply(ctx, i, Checked); err != nil {
		return false, err
	}
	return true, nil
}

// Uncheck unchecks element i. Already unchecked is a no-op returning
// false. Forbidden for radio groups: a radio button cannot be turned
// off by clicking it.
func (c *Checkable) Uncheck(ctx context.Context, i int) (bool, error) {
	if c.decl.Radio {
		return false, uierr.Newf(uierr.InvalidState, "radio group %q: uncheck not allowed", c.decl.Name)
	}
	if err := c.ready(i); err != nil {
		return false, err
	}
	if c.elements[i].State() == Unchecked {
		return false, nil
	}
	if err := c.apply(ctx, i, Unchecked); err != nil {
		return false, err
	}
	return true, nil
}

// Toggle flips element i to its opposite state. Forbidden for radio
// groups.
func (c *Checkable) Toggle(ctx context.Context, i int) error {
	if c.decl.Radio {
		return uierr.Newf(uierr.InvalidState, "radio group %q: toggle not allowed", c.decl.Name)
	}
	if err := c.ready(i); err != nil {
		return err
	}
	want := Checked
	if c.elements[i].State() == Checked {
		want = Unchecked
	}
	return c.apply(ctx, i, want)
}

// apply clicks element i and settles its cached state on want, either
// optimistically or by verified re-probing.
func (c *Checkable) apply(ctx context.Context, i int, want State) error {
	if err := c.clickElement(ctx, i); err != nil {
		return err
	}
	if c.decl.Radio && want == Checked {
		if prev := c.checkedIndex(); prev >= 0 && prev != i {
			c.elements[prev].toggle()
			c.emitState(prev)
		}
	}
	if c.decl.Verified {
		if err := c.WaitElementState(ctx, i, want, c.set.verifyTimeout); err != nil {
			return err
		}
	} else {
		c.elements[i].toggle()
	}
	c.emitState(i)
	return nil
}

// CheckAll checks every element. Forbidden for radio groups.
func (c *Checkable) CheckAll(ctx context.Context) error {
	return c.batch(ctx, "check all", func(i int) State { return Checked })
}

// UncheckAll unchecks every element. Forbidden for radio groups.
func (c *Checkable) UncheckAll(ctx context.Context) error {
	return c.batch(ctx, "uncheck all", func(i int) State { return Unchecked })
}

// Set drives the group to exactly the target set of checked indexes,
// toggling only the elements whose state differs. Forbidden for radio
// groups.
func (c *Checkable) Set(ctx context.Context, targets []int) error {
	wantChecked := make(map[int]bool, len(targets))
	for _, i := range targets {
		if err := c.ready(i); err != nil {
			return err
		}
		wantChecked[i] = true
	}
	return c.batch(ctx, "set", func(i int) State {
		if wantChecked[i] {
			return Checked
		}
		return Unchecked
	})
}

func (c *Checkable) batch(ctx context.Context, op string, want func(i int) State) error {
	if c.decl.Radio {
		return uierr.Newf(uierr.InvalidState, "radio group %q: %s not allowed", c.decl.Name, op)
	}
	if err := c.requireDiscovered(); err != nil {
		return err
	}
	for i := range c.elements {
		target := want(i)
		if c.elements[i].State() == target {
			continue
		}
		if err := c.apply(ctx, i, target); err != nil {
			return err
		}
	}
	return nil
}

// UpdateElement re-reads element i's ground truth from the screen: the
// best checked and unchecked matches within the element's region plus
// margins. Both absent is NotFound; an exact score tie is Ambiguous
// and leaves the cached state untouched. A successful update may also
// shift the cached region to the winning match.
func (c *Checkable) UpdateElement(ctx context.Context, i int) error {
	if err := c.ready(i); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, "update element")
	}

	e := c.elements[i]
	probeRegion := e.Region.MarginPct(c.set.verifyMargin)
	var cm, um *screen.Match
	err := screen.Scoped(c.d, probeRegion, 0, false, func() error {
		var err error
		_, cm, err = c.r.BestMatch(c.decl.Checked, probeRegion, c.set.clusterOverlap)
		if err != nil {
			return err
		}
		_, um, err = c.r.BestMatch(c.decl.Unchecked, probeRegion, c.set.clusterOverlap)
		return err
	})
	if err != nil {
		return err
	}

	var checkedScore, uncheckedScore float64
	if cm != nil {
		checkedScore = cm.Score
	}
	if um != nil {
		uncheckedScore = um.Score
	}
	if checkedScore == 0 && uncheckedScore == 0 {
		return uierr.Newf(uierr.NotFound,
			"element %d of %q not found near %s", i, c.decl.Name, probeRegion)
	}
	if checkedScore == uncheckedScore {
		return uierr.Newf(uierr.Ambiguous,
			"element %d of %q: checked and unchecked both score %.3f", i, c.decl.Name, checkedScore)
	}

	winner := cm
	if uncheckedScore > checkedScore {
		winner = um
	}
	e.CheckedScore = checkedScore
	e.UncheckedScore = uncheckedScore
	e.Region = winner.Region

	if c.decl.Radio {
		if n := countChecked(c.elements); n > 1 {
			return uierr.Newf(uierr.InvalidState,
				"radio group %q: %d elements checked", c.decl.Name, n)
		}
	}
	return nil
}

// WaitElementState polls ground truth until element i is observed in
// the wanted state, failing Timeout otherwise. Transient NotFound and
// Ambiguous observations, normal mid-transition, keep the poll going.
func (c *Checkable) WaitElementState(ctx context.Context, i int, want State, timeout time.Duration) error {
	if err := c.ready(i); err != nil {
		return err
	}
	message := fmt.Sprintf("waiting for element %d of %q to be %s", i, c.decl.Name, want)
	w := c.set.newWait(timeout, message)
	for {
		err := c.UpdateElement(ctx, i)
		switch {
		case err == nil:
			if c.elements[i].State() == want {
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

// SetElementState overrides element i's cached state without touching
// the screen, for callers that changed the UI through other means. The
// radio invariant still holds: setting a radio element checked flips
// the previously checked one off.
func (c *Checkable) SetElementState(i int, want State) error {
	if err := c.ready(i); err != nil {
		return err
	}
	if c.elements[i].State() == want {
		return nil
	}
	if c.decl.Radio && want == Checked {
		if prev := c.checkedIndex(); prev >= 0 && prev != i {
			c.elements[prev].toggle()
			c.emitState(prev)
		}
	}
	c.elements[i].toggle()
	c.emitState(i)
	return nil
}

// Len returns the number of discovered elements, zero before
// discovery.
func (c *Checkable) Len() int { return len(c.elements) }

// IsChecked reports element i's cached state.
func (c *Checkable) IsChecked(i int) (bool, error) {
	if err := c.ready(i); err != nil {
		return false, err
	}
	return c.elements[i].State() == Checked, nil
}

// CheckedElements returns the indexes of all checked elements in
// orientation order.
func (c *Checkable) CheckedElements() ([]int, error) {
	if err := c.requireDiscovered(); err != nil {
		return nil, err
	}
	return c.checkedIndexes(), nil
}

// CheckedElement returns the single checked element of a radio group,
// -1 when none is checked. InvalidState for non-radio groups.
func (c *Checkable) CheckedElement() (int, error) {
	if !c.decl.Radio {
		return -1, uierr.Newf(uierr.InvalidState, "group %q is not a radio group", c.decl.Name)
	}
	if err := c.requireDiscovered(); err != nil {
		return -1, err
	}
	return c.checkedIndex(), nil
}

// Regions returns the elements' regions in orientation order.
func (c *Checkable) Regions() ([]geom.Region, error) {
	if err := c.requireDiscovered(); err != nil {
		return nil, err
	}
	regions := make([]geom.Region, len(c.elements))
	for i, e := range c.elements {
		regions[i] = e.Region
	}
	return regions, nil
}

// Element returns a copy of element i.
func (c *Checkable) Element(i int) (Element, error) {
	if err := c.ready(i); err != nil {
		return Element{}, err
	}
	return *c.elements[i], nil
}

func (c *Checkable) requireDiscovered() error {
	if !c.discovered {
		return uierr.Newf(uierr.InvalidState, "group %q: elements not discovered yet", c.decl.Name)
	}
	return nil
}

func (c *Checkable) ready(i int) error {
	if err := c.requireDiscovered(); err != nil {
		return err
	}
	if i < 0 || i >= len(c.elements) {
		return uierr.Newf(uierr.InvalidState,
			"group %q: element index %d out of range [0,%d)", c.decl.Name, i, len(c.elements))
	}
	return nil
}

func (c *Checkable) clickElement(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, "click element")
	}
	e := c.elements[i]
	if _, err := c.d.Click(e.Region, screen.ModNone); err != nil {
		return err
	}
	c.set.log.Debugw("clicked element", "group", c.decl.Name, "index", i, "region", e.Region.String())
	events.Emit(c.set.pub, events.NewElementClickedEvent(c.decl.Name, i, e.Region.String()))
	return nil
}

func (c *Checkable) emitState(i int) {
	checked := c.elements[i].State() == Checked
	events.Emit(c.set.pub,
		events.NewElementStateChangedEvent(c.decl.Name, i, checked, c.decl.Verified))
}

func (c *Checkable) checkedIndex() int {
	for i, e := range c.elements {
		if e.State() == Checked {
			return i
		}
	}
	return -1
}

func (c *Checkable) checkedIndexes() []int {
	var out []int
	for i, e := range c.elements {
		if e.State() == Checked {
			out = append(out, i)
		}
	}
	return out
}

func countChecked(elements []*Element) int {
	n := 0
	for _, e := range elements {
		if e.State() == Checked {
			n++
		}
	}
	return n
}
