// Package conversation maintains the in-memory aggregate for one workspace
// conversation thread. The aggregate is mutated exclusively by applying
// canonical events for its thread; callers persist the entries Apply returns
// through the store, which is the source of truth on reload.
package conversation

import (
	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// DefaultEntryCap bounds the in-memory entry buffer. Trimming is an
// in-memory-only eviction; durable history survives in the store.
const DefaultEntryCap = 500

// RunStatus reports whether a turn is currently executing for the thread.
type RunStatus string

const (
	RunStatusIdle    RunStatus = "idle"
	RunStatusRunning RunStatus = "running"
)

// RunConfig carries the per-turn vendor configuration.
type RunConfig struct {
	Vendor          string   `json:"vendor" yaml:"vendor"`
	Mode            string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Model           string   `json:"model,omitempty" yaml:"model,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	AutoLevel       string   `json:"auto_level,omitempty" yaml:"auto_level,omitempty"`
	ContextDirs     []string `json:"context_dirs,omitempty" yaml:"context_dirs,omitempty"`
}

// Conversation is the in-memory aggregate for one (project, workspace,
// thread). It is not safe for concurrent use; exactly one goroutine applies
// events for a given thread.
type Conversation struct {
	ProjectSlug   string
	WorkspaceName string
	ThreadID      string

	entries      []Entry
	entriesStart int
	entriesTotal int
	entryCap     int

	itemIDs         map[string]struct{}
	inProgress      map[string]agentstream.ThreadItem
	inProgressOrder []string

	runStatus RunStatus
	runConfig RunConfig
	lastError string

	pending     []PendingPrompt
	queuePaused bool
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithEntryCap overrides the in-memory entry buffer cap.
func WithEntryCap(cap int) Option {
	return func(c *Conversation) {
		if cap > 0 {
			c.entryCap = cap
		}
	}
}

// New creates an empty conversation aggregate.
func New(projectSlug, workspaceName, threadID string, opts ...Option) *Conversation {
	c := &Conversation{
		ProjectSlug:   projectSlug,
		WorkspaceName: workspaceName,
		ThreadID:      threadID,
		entryCap:      DefaultEntryCap,
		itemIDs:       make(map[string]struct{}),
		inProgress:    make(map[string]agentstream.ThreadItem),
		runStatus:     RunStatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore seeds the aggregate from durable entries loaded out of the store.
// Only the newest entryCap entries are kept in memory; offsets account for
// the full durable history.
func (c *Conversation) Restore(entries []Entry) {
	start := 0
	if len(entries) > c.entryCap {
		start = len(entries) - c.entryCap
	}
	c.entries = append([]Entry(nil), entries[start:]...)
	c.entriesStart = start
	c.entriesTotal = len(entries)
	c.itemIDs = make(map[string]struct{})
	for _, entry := range c.entries {
		if id := entry.DedupID(); id != "" {
			c.itemIDs[id] = struct{}{}
		}
	}
}

// Apply folds one canonical event into the aggregate and returns the durable
// entries it produced, in order, for the caller to persist.
func (c *Conversation) Apply(ev agentstream.ThreadEvent) []Entry {
	switch e := ev.(type) {
	case agentstream.ThreadStartedEvent:
		c.ThreadID = e.ThreadID
		return nil

	case agentstream.TurnStartedEvent:
		// Run status is already Running, set by the caller that initiated
		// the turn.
		return nil

	case agentstream.ItemStartedEvent:
		c.upsertInProgress(e.Item)
		return nil

	case agentstream.ItemUpdatedEvent:
		c.upsertInProgress(e.Item)
		return nil

	case agentstream.ItemCompletedEvent:
		return c.completeItem(e.Item)

	case agentstream.TurnCompletedEvent:
		c.runStatus = RunStatusIdle
		var produced []Entry
		// Defensive flush: a dropped completion event must not strand items
		// in the in-progress queue forever.
		for _, id := range append([]string(nil), c.inProgressOrder...) {
			if item, ok := c.inProgress[id]; ok {
				produced = append(produced, c.completeItem(item)...)
			}
		}
		usage := e.Usage
		produced = append(produced, c.appendEntry(TurnUsageEntry{Usage: &usage})...)
		return produced

	case agentstream.TurnFailedEvent:
		return c.failTurn(e.Error)

	case agentstream.ErrorEvent:
		return c.failTurn(e.Message)

	case agentstream.TurnDurationEvent:
		return c.appendEntry(TurnDurationEntry{DurationMs: e.DurationMs})

	default:
		return nil
	}
}

// RecordUserMessage appends a user prompt entry, returning it for
// persistence.
func (c *Conversation) RecordUserMessage(text string, attachments []Attachment) []Entry {
	return c.appendEntry(UserMessageEntry{Text: text, Attachments: attachments})
}

// RecordCanceled appends a cancellation marker entry.
func (c *Conversation) RecordCanceled() []Entry {
	c.runStatus = RunStatusIdle
	c.clearInProgress()
	return c.appendEntry(TurnCanceledEntry{})
}

// BeginTurn marks the conversation Running with the given configuration.
func (c *Conversation) BeginTurn(cfg RunConfig) {
	c.runStatus = RunStatusRunning
	c.runConfig = cfg
	c.lastError = ""
}

// Entries returns the in-memory entry window.
func (c *Conversation) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// EntriesStart returns the durable index of the first in-memory entry, so
// pagination stays stable across trimming.
func (c *Conversation) EntriesStart() int { return c.entriesStart }

// EntriesTotal returns the total number of entries ever appended.
func (c *Conversation) EntriesTotal() int { return c.entriesTotal }

// InProgressItems returns the in-flight items in arrival order.
func (c *Conversation) InProgressItems() []agentstream.ThreadItem {
	items := make([]agentstream.ThreadItem, 0, len(c.inProgressOrder))
	for _, id := range c.inProgressOrder {
		if item, ok := c.inProgress[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// RunStatus returns Idle or Running.
func (c *Conversation) RunStatus() RunStatus { return c.runStatus }

// RunConfig returns the configuration of the current or last run.
func (c *Conversation) RunConfig() RunConfig { return c.runConfig }

// LastError returns the most recent turn error message, if any.
func (c *Conversation) LastError() string { return c.lastError }

// HasItem reports whether an item id is present in the dedup set.
func (c *Conversation) HasItem(id string) bool {
	_, ok := c.itemIDs[id]
	return ok
}

func (c *Conversation) upsertInProgress(item agentstream.ThreadItem) {
	id := item.ItemID()
	if _, seen := c.inProgress[id]; !seen {
		c.inProgressOrder = append(c.inProgressOrder, id)
	}
	c.inProgress[id] = item
}

// completeItem moves an item from in-progress to durable entries. Completion
// is idempotent by item id: re-delivery never produces a second entry.
func (c *Conversation) completeItem(item agentstream.ThreadItem) []Entry {
	id := item.ItemID()
	c.removeInProgress(id)

	if _, dup := c.itemIDs[id]; dup {
		return nil
	}
	c.itemIDs[id] = struct{}{}
	return c.appendEntry(ItemEntry{Item: item})
}

func (c *Conversation) failTurn(message string) []Entry {
	if message == "" {
		message = "turn failed"
	}
	c.runStatus = RunStatusIdle
	c.lastError = message
	c.clearInProgress()
	return c.appendEntry(TurnErrorEntry{Message: message})
}

func (c *Conversation) removeInProgress(id string) {
	if _, ok := c.inProgress[id]; !ok {
		return
	}
	delete(c.inProgress, id)
	for i, queued := range c.inProgressOrder {
		if queued == id {
			c.inProgressOrder = append(c.inProgressOrder[:i], c.inProgressOrder[i+1:]...)
			break
		}
	}
}

func (c *Conversation) clearInProgress() {
	c.inProgress = make(map[string]agentstream.ThreadItem)
	c.inProgressOrder = nil
}

// appendEntry adds one entry to the buffer, trims overflow, and returns the
// entry as a single-element slice for persistence.
func (c *Conversation) appendEntry(entry Entry) []Entry {
	c.entries = append(c.entries, entry)
	c.entriesTotal++
	c.trim()
	return []Entry{entry}
}

// trim drops the oldest contiguous overflow beyond the cap, advancing
// entriesStart by exactly the dropped count and releasing the dropped ids
// from the dedup set. The durable store still has the dropped entries, so a
// genuine re-delivery of a released id is treated as a fresh completion.
func (c *Conversation) trim() {
	overflow := len(c.entries) - c.entryCap
	if overflow <= 0 {
		return
	}
	for _, entry := range c.entries[:overflow] {
		if id := entry.DedupID(); id != "" {
			delete(c.itemIDs, id)
		}
	}
	c.entries = append([]Entry(nil), c.entries[overflow:]...)
	c.entriesStart += overflow
}
