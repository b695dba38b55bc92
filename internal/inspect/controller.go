// Package inspect is the visual debugging companion for the engine. It
// shows live captures with match rectangles drawn over them, the engine
// event feed and the loaded declarations, all on top of one session.
package inspect

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/session"
)

// Controller owns the inspector tabs and their shared session.
type Controller struct {
	session *session.Session

	captureTab *CaptureTab
	feedTab    *FeedTab
	declTab    *DeclTab

	// Engine bus subscriptions feeding the event tab
	subs []events.SubscriptionID
}

// NewController creates an inspector controller over a running session.
func NewController(s *session.Session) *Controller {
	ctrl := &Controller{session: s}

	ctrl.captureTab = NewCaptureTab(ctrl)
	ctrl.feedTab = NewFeedTab(ctrl)
	ctrl.declTab = NewDeclTab(ctrl)

	// Mirror every engine event into the feed tab
	ctrl.subs = s.Bus().SubscribeAll(func(e events.Event) {
		ctrl.feedTab.Add(e)
	})

	return ctrl
}

// BuildUI assembles the tabbed inspector layout.
func (c *Controller) BuildUI() fyne.CanvasObject {
	return container.NewAppTabs(
		container.NewTabItem("Capture", c.captureTab.Build()),
		container.NewTabItem("Events", c.feedTab.Build()),
		container.NewTabItem("Declarations", c.declTab.Build()),
	)
}

// Session returns the engine session the inspector runs on
func (c *Controller) Session() *session.Session {
	return c.session
}

// declarationsChanged refreshes every view that lists registry content
func (c *Controller) declarationsChanged() {
	if c.captureTab != nil {
		c.captureTab.refreshTemplates()
	}
	if c.declTab != nil {
		c.declTab.refresh()
	}
}

// Shutdown drops bus subscriptions and closes the session.
func (c *Controller) Shutdown() {
	for _, id := range c.subs {
		c.session.Bus().Unsubscribe(id)
	}
	if err := c.session.Close(nil); err != nil {
		c.session.Logger().Warnw("session close", "error", err)
	}
}
