// Package streamjson converts vendor CLI stream-JSON output lines into the
// canonical agentstream event algebra. One parser implementation serves all
// vendors; a per-vendor dialect supplies the field mapping so the state
// machine cannot drift between vendors.
//
// Parsing never fails: unparseable or unrecognized lines produce zero events,
// which keeps the parser forward compatible with future vendor protocol
// versions.
package streamjson

import (
	"strings"

	"github.com/google/uuid"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// Dialect selects the vendor field mapping.
type Dialect int

const (
	DialectClaude Dialect = iota
	DialectCodex
	DialectGemini
	DialectOpencode
)

// dialectMapping translates one decoded line into canonical events using the
// shared parser state.
type dialectMapping interface {
	parseLine(p *Parser, line string) []agentstream.ThreadEvent
}

// Parser holds the per-turn state carried across stdout lines: the message
// and reasoning accumulators (one synthetic id each, since only one of each
// is live per turn), the in-flight tool registry, and the terminal-event flag
// the driver consults when synthesizing completion.
type Parser struct {
	mapping dialectMapping

	messageID        string
	message          strings.Builder
	messageStarted   bool
	reasoningID      string
	reasoning        strings.Builder
	reasoningStarted bool

	tools map[string]*toolCall

	sawTurnCompleted bool
}

// New creates a parser for one turn of the given dialect.
func New(d Dialect) *Parser {
	p := &Parser{tools: make(map[string]*toolCall)}
	switch d {
	case DialectCodex:
		p.mapping = codexMapping{}
	case DialectGemini:
		p.mapping = claudeMapping{sessionIDFields: []string{"session_id", "sessionId"}}
	case DialectOpencode:
		p.mapping = claudeMapping{sessionIDFields: []string{"sessionID", "session_id"}}
	default:
		p.mapping = claudeMapping{sessionIDFields: []string{"session_id"}}
	}
	return p
}

// ParseLine converts one raw stdout line into zero or more canonical events.
func (p *Parser) ParseLine(line string) []agentstream.ThreadEvent {
	line = strings.TrimSpace(stripANSI(line))
	if line == "" {
		return nil
	}
	return p.mapping.parseLine(p, line)
}

// SawTurnCompleted reports whether an explicit terminal event was observed.
// Some vendors omit the terminal line on success; the driver synthesizes one
// when this returns false after a clean exit.
func (p *Parser) SawTurnCompleted() bool { return p.sawTurnCompleted }

// MessageText returns the trimmed accumulated agent-message text.
func (p *Parser) MessageText() string { return strings.TrimSpace(p.message.String()) }

// MessageItemID returns the synthetic id for the turn's agent message,
// assigning it on first use.
func (p *Parser) MessageItemID() string {
	if p.messageID == "" {
		p.messageID = "msg_" + uuid.NewString()
	}
	return p.messageID
}

func (p *Parser) reasoningItemID() string {
	if p.reasoningID == "" {
		p.reasoningID = "reasoning_" + uuid.NewString()
	}
	return p.reasoningID
}

// appendMessageText folds a text chunk into the message accumulator and
// returns the started/updated event for it. Empty chunks produce nothing.
func (p *Parser) appendMessageText(text string) []agentstream.ThreadEvent {
	if text == "" {
		return nil
	}
	p.message.WriteString(text)
	item := agentstream.AgentMessageItem{ID: p.MessageItemID(), Text: p.message.String()}
	if !p.messageStarted {
		p.messageStarted = true
		return []agentstream.ThreadEvent{agentstream.ItemStartedEvent{Item: item}}
	}
	return []agentstream.ThreadEvent{agentstream.ItemUpdatedEvent{Item: item}}
}

// appendReasoningText mirrors appendMessageText for thinking/reasoning text.
func (p *Parser) appendReasoningText(text string) []agentstream.ThreadEvent {
	if text == "" {
		return nil
	}
	p.reasoning.WriteString(text)
	item := agentstream.ReasoningItem{ID: p.reasoningItemID(), Text: p.reasoning.String()}
	if !p.reasoningStarted {
		p.reasoningStarted = true
		return []agentstream.ThreadEvent{agentstream.ItemStartedEvent{Item: item}}
	}
	return []agentstream.ThreadEvent{agentstream.ItemUpdatedEvent{Item: item}}
}

// startTool registers an in-flight tool invocation and returns its
// ItemStarted event.
func (p *Parser) startTool(id, name string, input map[string]interface{}) []agentstream.ThreadEvent {
	call := classifyTool(name, input)
	p.tools[id] = call
	return []agentstream.ThreadEvent{agentstream.ItemStartedEvent{Item: call.startedItem(id)}}
}

// completeTool finishes a registered tool invocation. Results for unknown
// ids are dropped; the vendor either never announced the tool or announced
// it in a form the mapping skipped.
func (p *Parser) completeTool(id string, result interface{}, isError bool) []agentstream.ThreadEvent {
	call, ok := p.tools[id]
	if !ok {
		return nil
	}
	delete(p.tools, id)
	return []agentstream.ThreadEvent{agentstream.ItemCompletedEvent{Item: call.completedItem(id, result, isError)}}
}

// completeTurn flushes the final agent message (explicit result text when
// present, accumulated text otherwise) and emits TurnCompleted.
func (p *Parser) completeTurn(resultText string, usage agentstream.TurnUsage) []agentstream.ThreadEvent {
	text := strings.TrimSpace(resultText)
	if text == "" {
		text = p.MessageText()
	}

	var events []agentstream.ThreadEvent
	if text != "" {
		events = append(events, agentstream.ItemCompletedEvent{
			Item: agentstream.AgentMessageItem{ID: p.MessageItemID(), Text: text},
		})
	}
	events = append(events, agentstream.TurnCompletedEvent{Usage: usage})
	p.sawTurnCompleted = true
	return events
}

// failTurn emits TurnFailed with the best available message.
func (p *Parser) failTurn(candidates ...string) []agentstream.ThreadEvent {
	message := "turn failed"
	for _, c := range candidates {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			message = trimmed
			break
		}
	}
	return []agentstream.ThreadEvent{agentstream.TurnFailedEvent{Error: message}}
}
