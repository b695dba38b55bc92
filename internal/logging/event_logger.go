package logging

import (
	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/events"
)

// EventLogger subscribes to the event bus and logs every event it sees.
// It is the debugging counterpart to the journal: same feed, human output.
type EventLogger struct {
	log  *zap.SugaredLogger
	bus  *events.Bus
	subs []events.SubscriptionID
}

// NewEventLogger attaches a logging subscriber to the bus.
func NewEventLogger(bus *events.Bus, log *zap.SugaredLogger) *EventLogger {
	el := &EventLogger{
		log: log.With("component", "events"),
		bus: bus,
	}
	el.subs = bus.SubscribeAll(el.handleEvent)
	return el
}

func (el *EventLogger) handleEvent(event events.Event) {
	fields := make([]interface{}, 0, 2*(len(event.Data)+1))
	fields = append(fields, "source", event.Source)
	for k, v := range event.Data {
		fields = append(fields, k, v)
	}
	el.log.Infow(string(event.Type), fields...)
}

// Close detaches the subscriber from the bus.
func (el *EventLogger) Close() {
	for _, id := range el.subs {
		el.bus.Unsubscribe(id)
	}
	el.subs = nil
}
