package streamjson

import (
	"encoding/json"
	"strings"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// codexMapping handles the Codex `exec --json` schema. Codex already speaks
// in thread/turn/item terms, so items decode straight into the canonical
// structs instead of going through the tool registry.
type codexMapping struct{}

type codexEnvelope struct {
	Type     string          `json:"type"`
	ThreadID string          `json:"thread_id"`
	Item     json.RawMessage `json:"item"`
	Usage    json.RawMessage `json:"usage"`
	Error    json.RawMessage `json:"error"`
	Message  string          `json:"message"`
}

func (codexMapping) parseLine(p *Parser, line string) []agentstream.ThreadEvent {
	var env codexEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil
	}

	switch strings.ToLower(env.Type) {
	case "thread.started":
		if env.ThreadID == "" {
			return nil
		}
		return []agentstream.ThreadEvent{agentstream.ThreadStartedEvent{ThreadID: env.ThreadID}}

	case "turn.started":
		return []agentstream.ThreadEvent{agentstream.TurnStartedEvent{}}

	case "item.started", "item.updated", "item.completed":
		item, err := agentstream.UnmarshalItem(env.Item)
		if err != nil {
			return nil
		}
		// Track message text so the driver can synthesize a terminal
		// message if the stream is cut before turn.completed.
		if msg, ok := item.(agentstream.AgentMessageItem); ok {
			p.message.Reset()
			p.message.WriteString(msg.Text)
			p.messageID = msg.ID
		}
		switch strings.ToLower(env.Type) {
		case "item.started":
			return []agentstream.ThreadEvent{agentstream.ItemStartedEvent{Item: item}}
		case "item.updated":
			return []agentstream.ThreadEvent{agentstream.ItemUpdatedEvent{Item: item}}
		default:
			return []agentstream.ThreadEvent{agentstream.ItemCompletedEvent{Item: item}}
		}

	case "turn.completed":
		p.sawTurnCompleted = true
		return []agentstream.ThreadEvent{agentstream.TurnCompletedEvent{Usage: codexUsage(env.Usage)}}

	case "turn.failed":
		return p.failTurn(codexErrorMessage(env.Error), env.Message)

	case "error":
		message := env.Message
		if message == "" {
			message = codexErrorMessage(env.Error)
		}
		if message == "" {
			message = "agent error"
		}
		return []agentstream.ThreadEvent{agentstream.ErrorEvent{Message: message}}

	default:
		return nil
	}
}

func codexUsage(raw json.RawMessage) agentstream.TurnUsage {
	if len(raw) == 0 {
		return agentstream.TurnUsage{}
	}
	var usage agentstream.TurnUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		return agentstream.TurnUsage{}
	}
	return usage
}

func codexErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
