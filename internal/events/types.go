package events

import "time"

// EventType identifies a kind of engine event
type EventType string

const (
	// Discovery events
	EventElementsDiscovered EventType = "elements.discovered"
	EventButtonsDiscovered  EventType = "buttons.discovered"

	// State events
	EventElementStateChanged EventType = "element.state_changed"
	EventButtonStateChanged  EventType = "button.state_changed"

	// Interaction events
	EventElementClicked EventType = "element.clicked"
	EventButtonClicked  EventType = "button.clicked"

	// Matching events
	EventMatchFound EventType = "match.found"

	// Anchoring events
	EventAnchorMoved EventType = "anchor.moved"

	// Error events
	EventError EventType = "error"
)

// Event is one observation emitted by the engine. Events are an
// observability tap only; no engine control flow depends on them.
type Event struct {
	Type      EventType              // Kind of event
	Source    string                 // Component that emitted it (e.g. "checkboxes.options")
	Timestamp time.Time              // When it occurred
	Data      map[string]interface{} // Event-specific payload
}

// Handler processes one event
type Handler func(Event)

// SubscriptionID identifies a subscription
type SubscriptionID int64

// Publisher is the sink engine components emit into. The Bus implements
// it; components accept a nil Publisher and emit through Emit.
type Publisher interface {
	Publish(event Event)
}

// Emit publishes through p if p is non-nil
func Emit(p Publisher, event Event) {
	if p != nil {
		p.Publish(event)
	}
}

// Helper constructors for common events

// NewElementsDiscoveredEvent records an element set discovery
func NewElementsDiscoveredEvent(source string, count int, checked []int) Event {
	return Event{
		Type:      EventElementsDiscovered,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"count":   count,
			"checked": checked,
		},
	}
}

// NewButtonsDiscoveredEvent records a button set discovery
func NewButtonsDiscoveredEvent(source string, names []string) Event {
	return Event{
		Type:      EventButtonsDiscovered,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"names": names,
		},
	}
}

// NewElementStateChangedEvent records one element's state transition
func NewElementStateChangedEvent(source string, index int, checked, verified bool) Event {
	return Event{
		Type:      EventElementStateChanged,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"index":    index,
			"checked":  checked,
			"verified": verified,
		},
	}
}

// NewButtonStateChangedEvent records a button's enabled/disabled transition
func NewButtonStateChangedEvent(source, name string, enabled bool) Event {
	return Event{
		Type:      EventButtonStateChanged,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"name":    name,
			"enabled": enabled,
		},
	}
}

// NewElementClickedEvent records a click on an element of a checkable set
func NewElementClickedEvent(source string, index int, region string) Event {
	return Event{
		Type:      EventElementClicked,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"index":  index,
			"region": region,
		},
	}
}

// NewButtonClickedEvent records a click on a named button
func NewButtonClickedEvent(source, name, region string) Event {
	return Event{
		Type:      EventButtonClicked,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"name":   name,
			"region": region,
		},
	}
}

// NewMatchFoundEvent records a template located on screen
func NewMatchFoundEvent(source, image, region string, score float64) Event {
	return Event{
		Type:      EventMatchFound,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"image":  image,
			"region": region,
			"score":  score,
		},
	}
}

// NewAnchorMovedEvent records an anchored region taking a new position
func NewAnchorMovedEvent(source, name, region string, findCount int) Event {
	return Event{
		Type:      EventAnchorMoved,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"name":       name,
			"region":     region,
			"find_count": findCount,
		},
	}
}

// NewErrorEvent records an engine failure surfaced to a caller
func NewErrorEvent(source string, err error) Event {
	return Event{
		Type:      EventError,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	}
}
