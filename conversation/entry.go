package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// EntryKind discriminates durable conversation entries.
type EntryKind string

const (
	EntryKindUserMessage  EntryKind = "user_message"
	EntryKindItem         EntryKind = "codex_item"
	EntryKindTurnUsage    EntryKind = "turn_usage"
	EntryKindTurnDuration EntryKind = "turn_duration"
	EntryKindTurnCanceled EntryKind = "turn_canceled"
	EntryKindTurnError    EntryKind = "turn_error"
)

// Entry is one durable, ordered unit of conversation history.
type Entry interface {
	Kind() EntryKind

	// DedupID returns the item id participating in the store's uniqueness
	// key. Empty for kinds that are never deduplicated against each other.
	DedupID() string
}

// Attachment is a file referenced from a user message, anchored at a byte
// offset in the composer text.
type Attachment struct {
	Path   string `json:"path"`
	Anchor int    `json:"anchor"`
}

// UserMessageEntry records a prompt sent by the user.
type UserMessageEntry struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

func (e UserMessageEntry) Kind() EntryKind { return EntryKindUserMessage }
func (e UserMessageEntry) DedupID() string { return "" }

// ItemEntry records one completed agent output item.
type ItemEntry struct {
	Item agentstream.ThreadItem
}

func (e ItemEntry) Kind() EntryKind { return EntryKindItem }
func (e ItemEntry) DedupID() string { return e.Item.ItemID() }

// TurnUsageEntry records the token usage reported at turn completion.
type TurnUsageEntry struct {
	Usage *agentstream.TurnUsage `json:"usage,omitempty"`
}

func (e TurnUsageEntry) Kind() EntryKind { return EntryKindTurnUsage }
func (e TurnUsageEntry) DedupID() string { return "" }

// TurnDurationEntry records a turn's wall-clock duration.
type TurnDurationEntry struct {
	DurationMs int64 `json:"duration_ms"`
}

func (e TurnDurationEntry) Kind() EntryKind { return EntryKindTurnDuration }
func (e TurnDurationEntry) DedupID() string { return "" }

// TurnCanceledEntry marks a user-canceled turn.
type TurnCanceledEntry struct{}

func (e TurnCanceledEntry) Kind() EntryKind { return EntryKindTurnCanceled }
func (e TurnCanceledEntry) DedupID() string { return "" }

// TurnErrorEntry records a turn that ended in an error.
type TurnErrorEntry struct {
	Message string `json:"message"`
}

func (e TurnErrorEntry) Kind() EntryKind { return EntryKindTurnError }
func (e TurnErrorEntry) DedupID() string { return "" }

// MarshalEntry serializes an entry payload for the durable store. The kind
// is stored in its own column, so the payload carries only the fields.
func MarshalEntry(entry Entry) ([]byte, error) {
	if item, ok := entry.(ItemEntry); ok {
		return agentstream.MarshalItem(item.Item)
	}
	return json.Marshal(entry)
}

// UnmarshalEntry deserializes an entry payload written by MarshalEntry.
func UnmarshalEntry(kind EntryKind, payload []byte) (Entry, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	switch kind {
	case EntryKindUserMessage:
		var e UserMessageEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parsing user message entry: %w", err)
		}
		return e, nil
	case EntryKindItem:
		item, err := agentstream.UnmarshalItem(payload)
		if err != nil {
			return nil, fmt.Errorf("parsing item entry: %w", err)
		}
		return ItemEntry{Item: item}, nil
	case EntryKindTurnUsage:
		var e TurnUsageEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parsing turn usage entry: %w", err)
		}
		return e, nil
	case EntryKindTurnDuration:
		var e TurnDurationEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parsing turn duration entry: %w", err)
		}
		return e, nil
	case EntryKindTurnCanceled:
		return TurnCanceledEntry{}, nil
	case EntryKindTurnError:
		var e TurnErrorEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("parsing turn error entry: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown entry kind %q", kind)
	}
}
