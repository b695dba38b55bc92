package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// subscription pairs a handler with its ID
type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is a buffered publish/subscribe channel for engine events. Publishing
// never blocks engine control flow beyond queueing; handlers run in order
// on a single dispatcher goroutine so subscribers such as the journal see
// events in emission order.
type Bus struct {
	subscribers map[EventType][]subscription
	mu          sync.RWMutex

	queue  chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup

	nextSubID SubscriptionID
	subMu     sync.Mutex

	log *zap.SugaredLogger
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithLogger sets the bus logger
func WithLogger(log *zap.SugaredLogger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// WithBuffer overrides the queue buffer size
func WithBuffer(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.queue = make(chan Event, size)
		}
	}
}

// NewBus creates and starts an event bus
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[EventType][]subscription),
		queue:       make(chan Event, 128),
		stopCh:      make(chan struct{}),
		nextSubID:   1,
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.process()

	return b
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	b.subMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subMu.Unlock()

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return id
}

// SubscribeAll registers a handler for every currently defined event type
func (b *Bus) SubscribeAll(handler Handler) []SubscriptionID {
	types := []EventType{
		EventElementsDiscovered,
		EventButtonsDiscovered,
		EventElementStateChanged,
		EventButtonStateChanged,
		EventElementClicked,
		EventButtonClicked,
		EventMatchFound,
		EventAnchorMoved,
		EventError,
	}
	ids := make([]SubscriptionID, 0, len(types))
	for _, t := range types {
		ids = append(ids, b.Subscribe(t, handler))
	}
	return ids
}

// Unsubscribe removes a subscription by ID
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish queues an event for dispatch
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.stopCh:
		b.log.Debugw("dropped event, bus stopped", "type", event.Type)
	}
}

// Stop shuts the bus down after draining queued events
func (b *Bus) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

// SubscriberCount returns the number of handlers for an event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

func (b *Bus) process() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.queue:
			b.dispatch(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.queue:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.Type]
	handlers := make([]Handler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.call(handler, event)
	}
}

// call invokes a handler with panic recovery so one bad subscriber cannot
// take down the dispatcher
func (b *Bus) call(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("event handler panic", "type", event.Type, "panic", r)
		}
	}()
	handler(event)
}
