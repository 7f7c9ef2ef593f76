package increco

import (
	"github.com/sirupsen/logrus"
)

// Event is the closed set of diagnostic notifications a Database emits
// while executing queries. None of them carry information the engine needs
// back from the host; they exist purely for observability, matching the
// teacher's convention of a structured event sink separate from the
// return-value path (common/logger.go's ContextLogger).
type Event interface {
	isEvent()
	String() string
}

type WillCheckCancellation struct{ RuntimeID string }
type WillExecute struct{ Key DatabaseKeyIndex }
type WillChangeInputValue struct {
	Key        DatabaseKeyIndex
	Durability Durability
	ChangedAt  Revision
}
type DidValidateMemoizedValue struct{ Key DatabaseKeyIndex }
type WillBlockOn struct {
	RuntimeID string
	Other     DatabaseKeyIndex
}
type DidDiscard struct{ Key DatabaseKeyIndex }

func (WillCheckCancellation) isEvent()    {}
func (WillExecute) isEvent()              {}
func (WillChangeInputValue) isEvent()     {}
func (DidValidateMemoizedValue) isEvent() {}
func (WillBlockOn) isEvent()              {}
func (DidDiscard) isEvent()               {}

func (e WillCheckCancellation) String() string { return "will-check-cancellation" }
func (e WillExecute) String() string           { return "will-execute " + e.Key.String() }
func (e WillChangeInputValue) String() string  { return "will-change-input " + e.Key.String() }
func (e DidValidateMemoizedValue) String() string {
	return "did-validate-memoized-value " + e.Key.String()
}
func (e WillBlockOn) String() string { return "will-block-on " + e.Other.String() }
func (e DidDiscard) String() string  { return "did-discard " + e.Key.String() }

// EventSink receives every Event a Database raises. NewDatabase given a nil
// sink installs NewDefaultLogSink(nil), built on logrus, mirroring
// common/logger.go's NewLogger default configuration: JSON-unaware text
// formatter, info level, caller reporting off.
type EventSink func(Event)

// NewDefaultLogSink builds the logrus-backed EventSink a fresh Database uses
// when the host does not install its own.
func NewDefaultLogSink(logger *logrus.Logger) EventSink {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return func(e Event) {
		entry := logger.WithField("event", e.String())
		switch ev := e.(type) {
		case WillExecute:
			entry.WithField("key", ev.Key.String()).Debug("executing query")
		case WillBlockOn:
			entry.WithField("runtime", ev.RuntimeID).WithField("other", ev.Other.String()).Debug("blocking on in-flight query")
		case DidDiscard:
			entry.WithField("key", ev.Key.String()).Debug("discarding stale output")
		default:
			entry.Debug("engine event")
		}
	}
}
