package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/uierr"
)

// FailureReport captures one engine failure with enough context to
// reconstruct what the automation was doing when it happened.
type FailureReport struct {
	Timestamp time.Time              `json:"timestamp"`
	Kind      uierr.Kind             `json:"kind"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Err       error                  `json:"error"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// FailureCallback is invoked for every recorded failure.
type FailureCallback func(report *FailureReport)

// ErrorReporter keeps a bounded history of engine failures grouped by
// kind. Timeouts and misses are routine during polling, so callers
// record here instead of aborting, and session teardown can dump the
// history for diagnosis.
type ErrorReporter struct {
	log        *zap.SugaredLogger
	mu         sync.RWMutex
	history    []*FailureReport
	maxHistory int

	callbacks   map[uierr.Kind][]FailureCallback
	callbacksMu sync.RWMutex
}

// NewErrorReporter creates a reporter keeping the last 1000 failures.
func NewErrorReporter(log *zap.SugaredLogger) *ErrorReporter {
	return &ErrorReporter{
		log:        log,
		maxHistory: 1000,
		callbacks:  make(map[uierr.Kind][]FailureCallback),
	}
}

// Report records a failure, logs it, and invokes any callbacks
// registered for its kind.
func (er *ErrorReporter) Report(component, message string, err error) {
	report := &FailureReport{
		Timestamp: time.Now(),
		Kind:      uierr.KindOf(err),
		Component: component,
		Message:   message,
		Err:       err,
	}
	er.record(report)
}

// ReportWithContext records a failure with extra key/value context.
func (er *ErrorReporter) ReportWithContext(component, message string, err error, context map[string]interface{}) {
	report := &FailureReport{
		Timestamp: time.Now(),
		Kind:      uierr.KindOf(err),
		Component: component,
		Message:   message,
		Err:       err,
		Context:   context,
	}
	er.record(report)
}

func (er *ErrorReporter) record(report *FailureReport) {
	er.logFailure(report)

	er.mu.Lock()
	er.history = append(er.history, report)
	if len(er.history) > er.maxHistory {
		er.history = er.history[len(er.history)-er.maxHistory:]
	}
	er.mu.Unlock()

	er.callbacksMu.RLock()
	callbacks := er.callbacks[report.Kind]
	er.callbacksMu.RUnlock()
	for _, callback := range callbacks {
		callback(report)
	}
}

func (er *ErrorReporter) logFailure(report *FailureReport) {
	fields := []interface{}{
		"kind", report.Kind.String(),
		"component", report.Component,
		"error", report.Err,
	}
	for k, v := range report.Context {
		fields = append(fields, k, v)
	}

	// Misses and timeouts are the rhythm of polling, not alarms.
	switch report.Kind {
	case uierr.NotFound, uierr.Timeout:
		er.log.Debugw(report.Message, fields...)
	case uierr.Canceled:
		er.log.Infow(report.Message, fields...)
	default:
		er.log.Warnw(report.Message, fields...)
	}
}

// OnFailure registers a callback for a specific failure kind.
func (er *ErrorReporter) OnFailure(kind uierr.Kind, callback FailureCallback) {
	er.callbacksMu.Lock()
	defer er.callbacksMu.Unlock()
	er.callbacks[kind] = append(er.callbacks[kind], callback)
}

// Recent returns the n most recent failures, newest last.
func (er *ErrorReporter) Recent(n int) []*FailureReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	if n > len(er.history) {
		n = len(er.history)
	}
	result := make([]*FailureReport, n)
	copy(result, er.history[len(er.history)-n:])
	return result
}

// RecentByKind returns up to limit recent failures of one kind, newest first.
func (er *ErrorReporter) RecentByKind(kind uierr.Kind, limit int) []*FailureReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	result := make([]*FailureReport, 0, limit)
	for i := len(er.history) - 1; i >= 0 && len(result) < limit; i-- {
		if er.history[i].Kind == kind {
			result = append(result, er.history[i])
		}
	}
	return result
}

// Stats returns failure counts keyed by kind name, plus a total.
func (er *ErrorReporter) Stats() map[string]int {
	er.mu.RLock()
	defer er.mu.RUnlock()

	stats := map[string]int{"total": len(er.history)}
	for _, report := range er.history {
		stats[report.Kind.String()]++
	}
	return stats
}

// Clear drops the failure history.
func (er *ErrorReporter) Clear() {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.history = nil
}
