package streamjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

// toolKind is the classified shape of an in-flight tool invocation.
type toolKind int

const (
	toolKindMcp toolKind = iota
	toolKindCommand
	toolKindFileChange
	toolKindWebSearch
)

// toolCall tracks one in-flight tool invocation between its tool_use line
// and the matching tool_result line.
type toolCall struct {
	name    string
	kind    toolKind
	input   map[string]interface{}
	summary string // command text, search query, or file path depending on kind
	changes []agentstream.FileUpdateChange
}

// classifyTool buckets a vendor tool invocation into one of the canonical
// item shapes using name-key heuristics. Anything unrecognized becomes a
// generic MCP tool call.
func classifyTool(name string, input map[string]interface{}) *toolCall {
	call := &toolCall{name: name, input: input}
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "bash"), strings.Contains(lower, "shell"), strings.Contains(lower, "exec"):
		call.kind = toolKindCommand
		call.summary = stringField(input, "command", "cmd", "script")

	case strings.Contains(lower, "web_search"), strings.Contains(lower, "websearch"):
		call.kind = toolKindWebSearch
		call.summary = stringField(input, "query", "q")

	case strings.Contains(lower, "edit_file"), strings.Contains(lower, "write_file"),
		strings.Contains(lower, "create_file"), strings.Contains(lower, "patch"),
		lower == "edit", lower == "write":
		call.kind = toolKindFileChange
		path := stringField(input, "file_path", "path", "filename")
		kind := agentstream.PatchChangeKindUpdate
		if strings.Contains(lower, "write") || strings.Contains(lower, "create") {
			kind = agentstream.PatchChangeKindAdd
		}
		call.summary = path
		if path != "" {
			call.changes = []agentstream.FileUpdateChange{{Path: path, Kind: kind}}
		}

	default:
		call.kind = toolKindMcp
	}

	return call
}

// startedItem builds the in-progress item emitted when the tool invocation
// first appears in the stream.
func (c *toolCall) startedItem(id string) agentstream.ThreadItem {
	switch c.kind {
	case toolKindCommand:
		return agentstream.CommandExecutionItem{
			ID:      id,
			Command: c.summary,
			Status:  agentstream.CommandExecutionStatusInProgress,
		}
	case toolKindFileChange:
		return agentstream.FileChangeItem{
			ID:      id,
			Changes: c.changes,
			Status:  agentstream.PatchApplyStatusInProgress,
		}
	case toolKindWebSearch:
		return agentstream.WebSearchItem{ID: id, Query: c.summary}
	default:
		server, tool := splitMcpName(c.name)
		return agentstream.McpToolCallItem{
			ID:        id,
			Server:    server,
			Tool:      tool,
			Arguments: marshalArguments(c.input),
			Status:    agentstream.McpToolCallStatusInProgress,
		}
	}
}

// completedItem builds the terminal item for a tool invocation given its
// result payload and error flag.
func (c *toolCall) completedItem(id string, result interface{}, isError bool) agentstream.ThreadItem {
	switch c.kind {
	case toolKindCommand:
		output, exitCode := commandResult(result)
		status := agentstream.CommandExecutionStatusCompleted
		if isError {
			status = agentstream.CommandExecutionStatusFailed
		}
		return agentstream.CommandExecutionItem{
			ID:               id,
			Command:          c.summary,
			AggregatedOutput: output,
			ExitCode:         exitCode,
			Status:           status,
		}

	case toolKindFileChange:
		status := agentstream.PatchApplyStatusCompleted
		if isError {
			status = agentstream.PatchApplyStatusFailed
		}
		return agentstream.FileChangeItem{ID: id, Changes: c.changes, Status: status}

	case toolKindWebSearch:
		return agentstream.WebSearchItem{ID: id, Query: c.summary}

	default:
		server, tool := splitMcpName(c.name)
		item := agentstream.McpToolCallItem{
			ID:        id,
			Server:    server,
			Tool:      tool,
			Arguments: marshalArguments(c.input),
			Status:    agentstream.McpToolCallStatusCompleted,
		}
		if isError {
			item.Status = agentstream.McpToolCallStatusFailed
			item.Error = resultText(result)
		} else if result != nil {
			if raw, err := json.Marshal(result); err == nil {
				item.Result = raw
			}
		}
		return item
	}
}

// commandResult extracts aggregated output and an optional exit code from a
// tool result payload. Vendors report either a plain string or a structure
// with stdout/stderr/output fields.
func commandResult(result interface{}) (string, *int) {
	switch r := result.(type) {
	case string:
		return r, nil
	case map[string]interface{}:
		var parts []string
		for _, key := range []string{"stdout", "stderr", "output"} {
			if s, ok := r[key].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		var exitCode *int
		for _, key := range []string{"exit_code", "exitCode", "code"} {
			if f, ok := r[key].(float64); ok {
				n := int(f)
				exitCode = &n
				break
			}
		}
		return strings.Join(parts, "\n"), exitCode
	default:
		return resultText(result), nil
	}
}

// resultText renders any result payload as display text.
func resultText(result interface{}) string {
	switch r := result.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		if raw, err := json.Marshal(r); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", r)
	}
}

// splitMcpName splits the conventional "mcp__server__tool" naming into its
// server and tool parts. Names without that shape keep the whole string as
// the tool with an empty server.
func splitMcpName(name string) (server, tool string) {
	trimmed := strings.TrimPrefix(name, "mcp__")
	if idx := strings.Index(trimmed, "__"); idx >= 0 {
		return trimmed[:idx], trimmed[idx+2:]
	}
	return "", name
}

// stringField returns the first non-empty string value among the given keys.
func stringField(input map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func marshalArguments(input map[string]interface{}) json.RawMessage {
	if len(input) == 0 {
		return nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	return raw
}
