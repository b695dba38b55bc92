package window

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/uierr"
)

// OpenFunc physically opens a dialog on the screen, by clicking a menu
// entry, a button, or whatever else summons it. The parent dialog is
// passed so the step can depend on where it is opened from; it is nil
// for root dialogs.
type OpenFunc func(ctx context.Context, parent *Dialog) error

// CloseFunc physically closes a dialog on the screen.
type CloseFunc func(ctx context.Context) error

// Hooks observe a dialog's transitions. A nil hook is skipped; a hook
// error propagates to the caller. Opened and Closed run after the
// dialog's open flag has already flipped.
type Hooks struct {
	Opening func(ctx context.Context) error
	Opened  func(ctx context.Context) error
	Closing func(ctx context.Context) error
	Closed  func(ctx context.Context) error
}

// Dialog tracks the open state of one dialog window inside a
// hierarchy. Opening a dialog opens its parent first; closing one
// closes its children first, so the hierarchy never ends up with an
// orphaned open child.
//
// Dialogs are not safe for concurrent use.
type Dialog struct {
	name     string
	parent   *Dialog
	children []*Dialog
	openFn   OpenFunc
	closeFn  CloseFunc
	hooks    Hooks
	open     bool
	log      *zap.SugaredLogger
}

// DialogOption configures a Dialog.
type DialogOption func(*Dialog)

// WithOpenStep sets the step that physically opens the dialog.
func WithOpenStep(fn OpenFunc) DialogOption {
	return func(d *Dialog) { d.openFn = fn }
}

// WithCloseStep sets the step that physically closes the dialog.
func WithCloseStep(fn CloseFunc) DialogOption {
	return func(d *Dialog) { d.closeFn = fn }
}

// WithHooks sets the transition hooks.
func WithHooks(h Hooks) DialogOption {
	return func(d *Dialog) { d.hooks = h }
}

// WithDialogLogger sets the dialog's logger.
func WithDialogLogger(log *zap.SugaredLogger) DialogOption {
	return func(d *Dialog) { d.log = log }
}

// NewDialog creates a dialog and registers it as a child of its
// parent. A nil parent makes a root dialog.
func NewDialog(name string, parent *Dialog, opts ...DialogOption) *Dialog {
	d := &Dialog{
		name:   name,
		parent: parent,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if parent != nil {
		parent.children = append(parent.children, d)
	}
	return d
}

// WindowCloseStep closes a dialog through a window's chrome close
// button.
func WindowCloseStep(win *Window) CloseFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return uierr.Wrap(uierr.Canceled, err, "close window "+win.Title())
		}
		return win.Close()
	}
}

// Name returns the dialog name.
func (d *Dialog) Name() string { return d.name }

// IsOpen reports whether the dialog is tracked as open.
func (d *Dialog) IsOpen() bool { return d.open }

// Parent returns the parent dialog, nil for roots.
func (d *Dialog) Parent() *Dialog { return d.parent }

// Children returns the dialog's children in registration order.
func (d *Dialog) Children() []*Dialog {
	out := make([]*Dialog, len(d.children))
	copy(out, d.children)
	return out
}

// Open opens the dialog. An already open dialog is left alone; a
// parent that is not open yet is opened first. The open step runs
// between the Opening and Opened hooks. A dialog without an open step
// is an InvalidState failure.
func (d *Dialog) Open(ctx context.Context) error {
	if d.open {
		return nil
	}
	if d.parent != nil {
		if err := d.parent.Open(ctx); err != nil {
			return fmt.Errorf("open parent of %q: %w", d.name, err)
		}
	}
	if err := runHook(ctx, d.hooks.Opening); err != nil {
		return err
	}
	if d.openFn == nil {
		return uierr.Newf(uierr.InvalidState, "dialog %q has no open step", d.name)
	}
	d.log.Debugw("open dialog", "name", d.name)
	if err := d.openFn(ctx, d.parent); err != nil {
		return err
	}
	d.open = true
	return runHook(ctx, d.hooks.Opened)
}

// Close closes the dialog with its close step. Children close first,
// whether or not this dialog is open itself; a dialog that is not open
// is then left alone.
func (d *Dialog) Close(ctx context.Context) error {
	return d.closeVia(ctx, d.closeFn)
}

// closeVia runs the children-first close cascade, using fn as this
// dialog's own close step.
func (d *Dialog) closeVia(ctx context.Context, fn CloseFunc) error {
	for _, child := range d.children {
		if err := child.Close(ctx); err != nil {
			return fmt.Errorf("close child of %q: %w", d.name, err)
		}
	}
	if !d.open {
		return nil
	}
	if err := runHook(ctx, d.hooks.Closing); err != nil {
		return err
	}
	if fn == nil {
		return uierr.Newf(uierr.InvalidState, "dialog %q has no close step", d.name)
	}
	d.log.Debugw("close dialog", "name", d.name)
	if err := fn(ctx); err != nil {
		return err
	}
	d.open = false
	return runHook(ctx, d.hooks.Closed)
}

func runHook(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
