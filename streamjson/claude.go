package streamjson

import (
	"encoding/json"
	"strings"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// claudeMapping handles the Claude-shaped stream-json schema. Gemini and
// Opencode emit the same envelope with differing session-id field names, so
// all three share this mapping parameterized by sessionIDFields.
type claudeMapping struct {
	sessionIDFields []string
}

func (m claudeMapping) parseLine(p *Parser, line string) []agentstream.ThreadEvent {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil
	}

	switch strings.ToLower(stringField(raw, "type")) {
	case "system":
		if !strings.EqualFold(stringField(raw, "subtype"), "init") {
			return nil
		}
		if id := stringField(raw, m.sessionIDFields...); id != "" {
			return []agentstream.ThreadEvent{agentstream.ThreadStartedEvent{ThreadID: id}}
		}
		return nil

	case "assistant":
		return m.parseAssistant(p, raw)

	case "user":
		return m.parseUser(p, raw)

	case "result":
		return m.parseResult(p, raw)

	case "error":
		message := stringField(raw, "message", "error")
		if message == "" {
			message = "agent error"
		}
		return []agentstream.ThreadEvent{agentstream.ErrorEvent{Message: message}}

	default:
		return nil
	}
}

// parseAssistant walks the assistant message content blocks: text chunks feed
// the message accumulator, thinking chunks feed the reasoning accumulator,
// tool_use blocks open in-flight tool invocations.
func (m claudeMapping) parseAssistant(p *Parser, raw map[string]interface{}) []agentstream.ThreadEvent {
	var events []agentstream.ThreadEvent
	for _, block := range contentBlocks(raw) {
		switch strings.ToLower(stringField(block, "type")) {
		case "text":
			events = append(events, p.appendMessageText(stringField(block, "text"))...)
		case "thinking":
			events = append(events, p.appendReasoningText(stringField(block, "thinking", "text"))...)
		case "tool_use":
			id := stringField(block, "id")
			name := stringField(block, "name")
			if id == "" || name == "" {
				continue
			}
			input, _ := block["input"].(map[string]interface{})
			events = append(events, p.startTool(id, name, input)...)
		}
	}
	return events
}

// parseUser handles tool_result blocks, completing previously registered
// tool invocations.
func (m claudeMapping) parseUser(p *Parser, raw map[string]interface{}) []agentstream.ThreadEvent {
	var events []agentstream.ThreadEvent
	for _, block := range contentBlocks(raw) {
		if !strings.EqualFold(stringField(block, "type"), "tool_result") {
			continue
		}
		id := stringField(block, "tool_use_id")
		if id == "" {
			continue
		}
		isError, _ := block["is_error"].(bool)
		events = append(events, p.completeTool(id, toolResultContent(block["content"]), isError)...)
	}
	return events
}

func (m claudeMapping) parseResult(p *Parser, raw map[string]interface{}) []agentstream.ThreadEvent {
	isError, _ := raw["is_error"].(bool)
	subtype := strings.ToLower(stringField(raw, "subtype"))
	if isError || (subtype != "" && subtype != "success") {
		return p.failTurn(stringField(raw, "error"), stringField(raw, "result"))
	}
	return p.completeTurn(stringField(raw, "result"), parseUsage(raw["usage"]))
}

// contentBlocks extracts the content array from either the nested message
// object or the top level.
func contentBlocks(raw map[string]interface{}) []map[string]interface{} {
	content, ok := raw["content"].([]interface{})
	if !ok {
		if msg, ok := raw["message"].(map[string]interface{}); ok {
			content, _ = msg["content"].([]interface{})
		}
	}

	blocks := make([]map[string]interface{}, 0, len(content))
	for _, entry := range content {
		if block, ok := entry.(map[string]interface{}); ok {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// toolResultContent normalizes the tool_result content field. The CLI sends
// either a plain string or a list of content items whose text parts are
// joined.
func toolResultContent(content interface{}) interface{} {
	list, ok := content.([]interface{})
	if !ok {
		return content
	}

	var parts []string
	for _, entry := range list {
		if block, ok := entry.(map[string]interface{}); ok {
			if text := stringField(block, "text"); text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return content
	}
	return strings.Join(parts, "\n")
}

// parseUsage reads token counts from a usage object, zeroing anything the
// vendor does not report.
func parseUsage(raw interface{}) agentstream.TurnUsage {
	usage, ok := raw.(map[string]interface{})
	if !ok {
		return agentstream.TurnUsage{}
	}
	return agentstream.TurnUsage{
		InputTokens:       intField(usage, "input_tokens"),
		CachedInputTokens: intField(usage, "cache_read_input_tokens", "cached_input_tokens"),
		OutputTokens:      intField(usage, "output_tokens"),
	}
}

func intField(raw map[string]interface{}, keys ...string) int64 {
	for _, key := range keys {
		if f, ok := raw[key].(float64); ok {
			return int64(f)
		}
	}
	return 0
}
