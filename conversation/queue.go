package conversation

import "github.com/google/uuid"

// PendingPrompt is a queued user prompt waiting for the current turn to
// finish.
type PendingPrompt struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	RunConfig   RunConfig    `json:"run_config"`
}

// EnqueuePrompt appends a prompt to the pending queue and returns its stable
// id. Callers enqueue when a send is requested while a turn is running.
func (c *Conversation) EnqueuePrompt(text string, attachments []Attachment, cfg RunConfig) string {
	prompt := PendingPrompt{
		ID:          uuid.NewString(),
		Text:        text,
		Attachments: attachments,
		RunConfig:   cfg,
	}
	c.pending = append(c.pending, prompt)
	return prompt.ID
}

// PendingPrompts returns the queue in FIFO order.
func (c *Conversation) PendingPrompts() []PendingPrompt {
	return append([]PendingPrompt(nil), c.pending...)
}

// RemovePending deletes a queued prompt by id. Unknown ids are ignored.
func (c *Conversation) RemovePending(id string) bool {
	for i, prompt := range c.pending {
		if prompt.ID == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

// ReorderPending rearranges the queue to match the given id order. Ids not
// present in the queue are ignored; queued prompts missing from the order
// keep their relative position at the tail.
func (c *Conversation) ReorderPending(ids []string) {
	byID := make(map[string]PendingPrompt, len(c.pending))
	for _, prompt := range c.pending {
		byID[prompt.ID] = prompt
	}

	reordered := make([]PendingPrompt, 0, len(c.pending))
	taken := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if prompt, ok := byID[id]; ok {
			reordered = append(reordered, prompt)
			taken[id] = struct{}{}
		}
	}
	for _, prompt := range c.pending {
		if _, ok := taken[prompt.ID]; !ok {
			reordered = append(reordered, prompt)
		}
	}
	c.pending = reordered
}

// PauseQueue suppresses automatic dequeue without discarding queued prompts.
func (c *Conversation) PauseQueue() { c.queuePaused = true }

// ResumeQueue re-enables automatic dequeue.
func (c *Conversation) ResumeQueue() { c.queuePaused = false }

// QueuePaused reports whether automatic dequeue is suppressed.
func (c *Conversation) QueuePaused() bool { return c.queuePaused }

// DequeueNext pops the head of the queue if the conversation is idle and the
// queue is not paused. The caller starts the next turn with the returned
// prompt.
func (c *Conversation) DequeueNext() (PendingPrompt, bool) {
	if c.queuePaused || c.runStatus != RunStatusIdle || len(c.pending) == 0 {
		return PendingPrompt{}, false
	}
	head := c.pending[0]
	c.pending = c.pending[1:]
	return head, true
}
