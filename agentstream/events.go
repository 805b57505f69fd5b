// Package agentstream defines the canonical event algebra shared by all
// vendor CLI drivers. Each vendor's stream-JSON output is translated into
// these events, so downstream consumers (conversation engine, persistence)
// never see vendor-specific shapes.
package agentstream

// EventType discriminates between event kinds.
type EventType int

const (
	// EventTypeThreadStarted fires when the vendor assigns a thread/session id.
	EventTypeThreadStarted EventType = iota

	// EventTypeTurnStarted fires when a turn begins.
	EventTypeTurnStarted

	// EventTypeTurnCompleted fires when a turn finishes successfully.
	EventTypeTurnCompleted

	// EventTypeTurnDuration reports the wall-clock duration of a turn.
	EventTypeTurnDuration

	// EventTypeTurnFailed fires when the vendor reports turn failure.
	EventTypeTurnFailed

	// EventTypeItemStarted fires when an item (message, tool) starts.
	EventTypeItemStarted

	// EventTypeItemUpdated fires when an in-progress item changes.
	EventTypeItemUpdated

	// EventTypeItemCompleted fires when an item completes.
	EventTypeItemCompleted

	// EventTypeError fires on vendor-reported errors.
	EventTypeError
)

// ThreadEvent is the interface for all canonical events.
type ThreadEvent interface {
	Type() EventType
}

// TurnUsage contains token usage for a turn. All counts are zero when the
// vendor does not report them.
type TurnUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

// ThreadStartedEvent fires when the vendor assigns a thread id.
type ThreadStartedEvent struct {
	ThreadID string
}

// Type returns the event type.
func (e ThreadStartedEvent) Type() EventType { return EventTypeThreadStarted }

// TurnStartedEvent fires when a turn begins.
type TurnStartedEvent struct{}

// Type returns the event type.
func (e TurnStartedEvent) Type() EventType { return EventTypeTurnStarted }

// TurnCompletedEvent fires when a turn finishes successfully.
type TurnCompletedEvent struct {
	Usage TurnUsage
}

// Type returns the event type.
func (e TurnCompletedEvent) Type() EventType { return EventTypeTurnCompleted }

// TurnDurationEvent reports the wall-clock duration of a turn.
type TurnDurationEvent struct {
	DurationMs int64
}

// Type returns the event type.
func (e TurnDurationEvent) Type() EventType { return EventTypeTurnDuration }

// TurnFailedEvent fires when the vendor explicitly reports failure.
type TurnFailedEvent struct {
	Error string
}

// Type returns the event type.
func (e TurnFailedEvent) Type() EventType { return EventTypeTurnFailed }

// ItemStartedEvent fires when an item starts.
type ItemStartedEvent struct {
	Item ThreadItem
}

// Type returns the event type.
func (e ItemStartedEvent) Type() EventType { return EventTypeItemStarted }

// ItemUpdatedEvent fires when an in-progress item changes.
type ItemUpdatedEvent struct {
	Item ThreadItem
}

// Type returns the event type.
func (e ItemUpdatedEvent) Type() EventType { return EventTypeItemUpdated }

// ItemCompletedEvent fires when an item reaches its terminal state.
type ItemCompletedEvent struct {
	Item ThreadItem
}

// Type returns the event type.
func (e ItemCompletedEvent) Type() EventType { return EventTypeItemCompleted }

// ErrorEvent carries a vendor-reported error that is not tied to an item.
type ErrorEvent struct {
	Message string
}

// Type returns the event type.
func (e ErrorEvent) Type() EventType { return EventTypeError }
