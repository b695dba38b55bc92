package window

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/karlmicha/rguils/internal/anchor"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/screen/screentest"
	"github.com/karlmicha/rguils/internal/uierr"
)

type recordingSleeper struct {
	n     int
	total time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.n++
	s.total += d
	return nil
}

// clickOnlyDriver hides the fake's TapKey, modeling a driver without
// key input.
type clickOnlyDriver struct{ screen.Driver }

func openDialog(t *testing.T, name string) *Dialog {
	t.Helper()
	d := NewDialog(name, nil, WithOpenStep(func(context.Context, *Dialog) error { return nil }))
	if err := d.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestChromeButtonTarget(t *testing.T) {
	c := DefaultChrome()
	titlebar := geom.Rect(10, 20, 200, 30)
	tests := []struct {
		name   string
		offset int
		wantX  int
	}{
		{"from left", 25, 35},
		{"from right", -16, 194},
		{"right edge", 0, 210},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.buttonTarget(titlebar, tt.offset)
			want := geom.Rect(tt.wantX, 35, 1, 1)
			if got != want {
				t.Errorf("buttonTarget(%d) = %s, want %s", tt.offset, got, want)
			}
		})
	}
}

func TestTaskbarRegion(t *testing.T) {
	got := DefaultChrome().TaskbarRegion(geom.Rect(0, 0, 1920, 1080))
	want := geom.Rect(0, 1049, 1920, 31)
	if got != want {
		t.Fatalf("TaskbarRegion = %s, want %s", got, want)
	}
}

func TestWindowChromeClicks(t *testing.T) {
	f := screentest.New()
	w, err := NewWindow(f, "installer", geom.Rect(100, 50, 400, 300))
	if err != nil {
		t.Fatal(err)
	}

	if w.TitlebarRegion() != geom.Rect(100, 50, 400, 30) {
		t.Fatalf("titlebar = %s", w.TitlebarRegion())
	}
	if w.ContentRegion() != geom.Rect(100, 80, 400, 270) {
		t.Fatalf("content = %s", w.ContentRegion())
	}

	if err := w.Focus(); err != nil {
		t.Fatal(err)
	}
	if err := w.Minimize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Maximize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	want := []geom.Region{
		geom.Rect(100, 50, 400, 30),
		geom.Rect(438, 65, 1, 1),
		geom.Rect(461, 65, 1, 1),
		geom.Rect(484, 65, 1, 1),
	}
	if len(f.Clicks) != len(want) {
		t.Fatalf("recorded %d clicks, want %d", len(f.Clicks), len(want))
	}
	for i, click := range f.Clicks {
		if click.Target != want[i] {
			t.Errorf("click %d at %s, want %s", i, click.Target, want[i])
		}
		if click.Mod != screen.ModNone {
			t.Errorf("click %d with modifier %d", i, click.Mod)
		}
	}
}

func TestNewWindowValidation(t *testing.T) {
	f := screentest.New()
	if _, err := NewWindow(f, "empty", geom.Region{}); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("empty region: err = %v, want InvalidState", err)
	}
	// titlebar does not fit a 20px tall region
	if _, err := NewWindow(f, "short", geom.Rect(0, 0, 100, 20)); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("short region: err = %v, want InvalidState", err)
	}
}

func TestAnchoredWindow(t *testing.T) {
	f := screentest.New()
	logo := screentest.Img("installer_logo")
	f.Show(logo, screentest.MatchAt(logo, geom.Rect(120, 80, 40, 20), 0.95))

	node, err := anchor.NewBaseNode(f, "installer", logo, 20, 30, 400, 300, f.Bounds())
	if err != nil {
		t.Fatal(err)
	}
	aw, err := NewAnchoredWindow(f, "Setup", node)
	if err != nil {
		t.Fatal(err)
	}

	if aw.Anchored() {
		t.Fatal("anchored before Anchor")
	}
	if _, err := aw.Window(); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("window before anchor: err = %v, want InvalidState", err)
	}

	if err := aw.Anchor(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if got, want := aw.Region(), geom.Rect(100, 50, 400, 300); got != want {
		t.Fatalf("region = %s, want %s", got, want)
	}

	win, err := aw.Window()
	if err != nil {
		t.Fatal(err)
	}
	if err := win.Close(); err != nil {
		t.Fatal(err)
	}
	if want := geom.Rect(484, 65, 1, 1); len(f.Clicks) != 1 || f.Clicks[0].Target != want {
		t.Fatalf("clicks = %v, want one at %s", f.Clicks, want)
	}
}

func TestNewAnchoredWindowValidation(t *testing.T) {
	f := screentest.New()
	if _, err := NewAnchoredWindow(f, "Setup", nil); !uierr.Is(err, uierr.InvalidState) {
		t.Fatalf("nil node: err = %v, want InvalidState", err)
	}
}

func TestDialogOpenCascade(t *testing.T) {
	var ops []string
	root := NewDialog("root", nil, WithOpenStep(func(ctx context.Context, parent *Dialog) error {
		ops = append(ops, "open root")
		return nil
	}))
	child := NewDialog("child", root, WithOpenStep(func(ctx context.Context, parent *Dialog) error {
		if parent != root {
			t.Error("child open step got wrong parent")
		}
		ops = append(ops, "open child")
		return nil
	}))

	if err := child.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"open root", "open child"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	if !root.IsOpen() || !child.IsOpen() {
		t.Fatal("dialogs not tracked open")
	}

	// reopening is a no-op
	if err := child.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("reopen ran steps: %v", ops)
	}
}

func TestDialogCloseCascade(t *testing.T) {
	var ops []string
	opens := func(name string) DialogOption {
		return WithOpenStep(func(ctx context.Context, parent *Dialog) error {
			ops = append(ops, "open "+name)
			return nil
		})
	}
	closes := func(name string) DialogOption {
		return WithCloseStep(func(ctx context.Context) error {
			ops = append(ops, "close "+name)
			return nil
		})
	}
	root := NewDialog("root", nil, opens("root"), closes("root"))
	first := NewDialog("first", root, opens("first"), closes("first"))
	second := NewDialog("second", root, opens("second"), closes("second"))

	if err := first.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := second.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	ops = nil

	if err := root.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"close first", "close second", "close root"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	if root.IsOpen() || first.IsOpen() || second.IsOpen() {
		t.Fatal("dialogs still tracked open")
	}

	// closing a closed hierarchy is a no-op
	if err := root.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("reclose ran steps: %v", ops)
	}
}

func TestDialogHooks(t *testing.T) {
	var ops []string
	note := func(s string) func(context.Context) error {
		return func(context.Context) error {
			ops = append(ops, s)
			return nil
		}
	}
	d := NewDialog("prefs", nil,
		WithOpenStep(func(ctx context.Context, parent *Dialog) error {
			ops = append(ops, "open")
			return nil
		}),
		WithCloseStep(func(ctx context.Context) error {
			ops = append(ops, "close")
			return nil
		}),
		WithHooks(Hooks{
			Opening: note("opening"),
			Opened:  note("opened"),
			Closing: note("closing"),
			Closed:  note("closed"),
		}))

	if err := d.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"opening", "open", "opened", "closing", "close", "closed"}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
}

func TestDialogMissingSteps(t *testing.T) {
	bare := NewDialog("bare", nil)
	err := bare.Open(context.Background())
	if !uierr.Is(err, uierr.InvalidState) || !strings.Contains(err.Error(), "no open step") {
		t.Fatalf("open: err = %v, want missing open step", err)
	}

	opened := openDialog(t, "opened")
	err = opened.Close(context.Background())
	if !uierr.Is(err, uierr.InvalidState) || !strings.Contains(err.Error(), "no close step") {
		t.Fatalf("close: err = %v, want missing close step", err)
	}
	if !opened.IsOpen() {
		t.Fatal("failed close flipped the open flag")
	}
}

func TestWindowCloseStep(t *testing.T) {
	f := screentest.New()
	win, err := NewWindow(f, "installer", geom.Rect(100, 50, 400, 300))
	if err != nil {
		t.Fatal(err)
	}
	d := NewDialog("installer", nil,
		WithOpenStep(func(context.Context, *Dialog) error { return nil }),
		WithCloseStep(WindowCloseStep(win)))

	if err := d.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := geom.Rect(484, 65, 1, 1); len(f.Clicks) != 1 || f.Clicks[0].Target != want {
		t.Fatalf("clicks = %v, want one at %s", f.Clicks, want)
	}
}

func TestConfirmDefaults(t *testing.T) {
	f := screentest.New()
	c, err := NewConfirm(openDialog(t, "save"), f, WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"cancel", "ok"}; !reflect.DeepEqual(c.ButtonIDs(), want) {
		t.Fatalf("button ids = %v, want %v", c.ButtonIDs(), want)
	}

	if err := c.CloseWith(context.Background(), "ok"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Keys, []string{"enter"}) {
		t.Fatalf("keys = %v, want [enter]", f.Keys)
	}
	if c.IsOpen() {
		t.Fatal("dialog still tracked open")
	}
}

func TestConfirmButtonClick(t *testing.T) {
	f := screentest.New()
	okImg := screentest.Img("btn_ok")
	site := geom.Rect(500, 400, 80, 30)
	f.Show(okImg, screentest.MatchAt(okImg, site, 0.97))

	c, err := NewConfirm(openDialog(t, "replace"), f,
		WithButtons(map[string][]screen.Image{"ok": {okImg}}),
		WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.CloseWith(context.Background(), "ok"); err != nil {
		t.Fatal(err)
	}
	if len(f.Clicks) != 1 || f.Clicks[0].Target != site {
		t.Fatalf("clicks = %v, want one at %s", f.Clicks, site)
	}
	if c.IsOpen() {
		t.Fatal("dialog still tracked open")
	}
}

func TestConfirmKeyBeatsButton(t *testing.T) {
	f := screentest.New()
	okImg := screentest.Img("btn_ok")
	f.Show(okImg, screentest.MatchAt(okImg, geom.Rect(500, 400, 80, 30), 0.97))

	c, err := NewConfirm(openDialog(t, "quit"), f,
		WithButtons(map[string][]screen.Image{"ok": {okImg}}),
		WithKeys(map[string]string{"ok": "enter"}),
		WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.CloseWith(context.Background(), "ok"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Keys, []string{"enter"}) {
		t.Fatalf("keys = %v, want [enter]", f.Keys)
	}
	if len(f.Clicks) != 0 {
		t.Fatalf("clicked %v despite key binding", f.Clicks)
	}
}

func TestConfirmButtonIDs(t *testing.T) {
	f := screentest.New()
	_, err := NewConfirm(openDialog(t, "save"), f, WithButtonIDs("maybe"))
	if !uierr.Is(err, uierr.InvalidState) || !strings.Contains(err.Error(), "undefined button id") {
		t.Fatalf("err = %v, want undefined button id", err)
	}

	c, err := NewConfirm(openDialog(t, "save"), f, WithButtonIDs("ok"), WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CloseWith(context.Background(), "cancel"); !uierr.Is(err, uierr.NotFound) {
		t.Fatalf("excluded id: err = %v, want NotFound", err)
	}
	if !c.IsOpen() {
		t.Fatal("failed answer closed the dialog")
	}
}

func TestConfirmSettle(t *testing.T) {
	f := screentest.New()
	sl := &recordingSleeper{}
	c, err := NewConfirm(openDialog(t, "save"), f, WithSleeper(sl.sleep))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.CloseWith(context.Background(), "ok"); err != nil {
		t.Fatal(err)
	}
	if sl.n != 1 || sl.total != DefaultSettle {
		t.Fatalf("settled %d times for %s, want once for %s", sl.n, sl.total, DefaultSettle)
	}
}

func TestConfirmKeyNeedsTyper(t *testing.T) {
	f := screentest.New()
	c, err := NewConfirm(openDialog(t, "save"), &clickOnlyDriver{f}, WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}

	err = c.CloseWith(context.Background(), "ok")
	if !uierr.Is(err, uierr.InvalidState) || !strings.Contains(err.Error(), "cannot type keys") {
		t.Fatalf("err = %v, want driver cannot type keys", err)
	}
	if !c.IsOpen() {
		t.Fatal("dialog closed without typing")
	}
}

func TestConfirmCloseWithCascade(t *testing.T) {
	f := screentest.New()
	var ops []string
	dlg := NewDialog("wizard", nil, WithOpenStep(func(context.Context, *Dialog) error {
		ops = append(ops, "open wizard")
		return nil
	}))
	child := NewDialog("warning", dlg,
		WithOpenStep(func(context.Context, *Dialog) error {
			ops = append(ops, "open warning")
			return nil
		}),
		WithCloseStep(func(context.Context) error {
			ops = append(ops, "close warning")
			return nil
		}))

	c, err := NewConfirm(dlg, f, WithSettle(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := child.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.CloseWith(context.Background(), "cancel"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"open wizard", "open warning", "close warning"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	if !reflect.DeepEqual(f.Keys, []string{"esc"}) {
		t.Fatalf("keys = %v, want [esc]", f.Keys)
	}
	if dlg.IsOpen() || child.IsOpen() {
		t.Fatal("dialogs still tracked open")
	}
}
