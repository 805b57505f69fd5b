package agentstream

import (
	"encoding/json"
	"fmt"
)

// Item type tags used as the JSON discriminator.
const (
	ItemTypeAgentMessage     = "agent_message"
	ItemTypeReasoning        = "reasoning"
	ItemTypeCommandExecution = "command_execution"
	ItemTypeFileChange       = "file_change"
	ItemTypeMcpToolCall      = "mcp_tool_call"
	ItemTypeWebSearch        = "web_search"
	ItemTypeTodoList         = "todo_list"
	ItemTypeError            = "error"
)

// ThreadItem is one unit of agent output with a stable id used to correlate
// start/update/completion and to deduplicate durable entries.
type ThreadItem interface {
	ItemID() string
	ItemType() string
}

// CommandExecutionStatus represents the lifecycle stage of a command started
// by the agent.
type CommandExecutionStatus string

const (
	CommandExecutionStatusInProgress CommandExecutionStatus = "in_progress"
	CommandExecutionStatusCompleted  CommandExecutionStatus = "completed"
	CommandExecutionStatusFailed     CommandExecutionStatus = "failed"
)

// PatchChangeKind indicates how a file changed.
type PatchChangeKind string

const (
	PatchChangeKindAdd    PatchChangeKind = "add"
	PatchChangeKindDelete PatchChangeKind = "delete"
	PatchChangeKindUpdate PatchChangeKind = "update"
)

// PatchApplyStatus indicates whether a patch was applied successfully.
type PatchApplyStatus string

const (
	PatchApplyStatusInProgress PatchApplyStatus = "in_progress"
	PatchApplyStatusCompleted  PatchApplyStatus = "completed"
	PatchApplyStatusFailed     PatchApplyStatus = "failed"
)

// McpToolCallStatus describes the status of an MCP tool invocation.
type McpToolCallStatus string

const (
	McpToolCallStatusInProgress McpToolCallStatus = "in_progress"
	McpToolCallStatusCompleted  McpToolCallStatus = "completed"
	McpToolCallStatusFailed     McpToolCallStatus = "failed"
)

// AgentMessageItem contains the model's response text.
type AgentMessageItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

func (i AgentMessageItem) ItemID() string   { return i.ID }
func (i AgentMessageItem) ItemType() string { return ItemTypeAgentMessage }

// ReasoningItem carries the agent's intermediate reasoning text.
type ReasoningItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

func (i ReasoningItem) ItemID() string   { return i.ID }
func (i ReasoningItem) ItemType() string { return ItemTypeReasoning }

// CommandExecutionItem captures a command execution requested by the agent.
type CommandExecutionItem struct {
	ID               string                 `json:"id"`
	Type             string                 `json:"type"`
	Command          string                 `json:"command"`
	AggregatedOutput string                 `json:"aggregated_output"`
	ExitCode         *int                   `json:"exit_code,omitempty"`
	Status           CommandExecutionStatus `json:"status"`
}

func (i CommandExecutionItem) ItemID() string   { return i.ID }
func (i CommandExecutionItem) ItemType() string { return ItemTypeCommandExecution }

// FileUpdateChange represents a single file edit made by the agent.
type FileUpdateChange struct {
	Path string          `json:"path"`
	Kind PatchChangeKind `json:"kind"`
}

// FileChangeItem aggregates the set of file updates that comprise a patch.
type FileChangeItem struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Changes []FileUpdateChange `json:"changes"`
	Status  PatchApplyStatus   `json:"status"`
}

func (i FileChangeItem) ItemID() string   { return i.ID }
func (i FileChangeItem) ItemType() string { return ItemTypeFileChange }

// McpToolCallItem represents activity relating to a single MCP tool call.
type McpToolCallItem struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Server    string            `json:"server"`
	Tool      string            `json:"tool"`
	Arguments json.RawMessage   `json:"arguments,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Status    McpToolCallStatus `json:"status"`
}

func (i McpToolCallItem) ItemID() string   { return i.ID }
func (i McpToolCallItem) ItemType() string { return ItemTypeMcpToolCall }

// WebSearchItem denotes a web search performed by the agent.
type WebSearchItem struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Query string `json:"query"`
}

func (i WebSearchItem) ItemID() string   { return i.ID }
func (i WebSearchItem) ItemType() string { return ItemTypeWebSearch }

// TodoItem represents a single task within the agent's to-do list.
type TodoItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// TodoListItem carries the agent's current to-do list.
type TodoListItem struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	Items []TodoItem `json:"items"`
}

func (i TodoListItem) ItemID() string   { return i.ID }
func (i TodoListItem) ItemType() string { return ItemTypeTodoList }

// ErrorItem captures non-fatal errors emitted by the agent.
type ErrorItem struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (i ErrorItem) ItemID() string   { return i.ID }
func (i ErrorItem) ItemType() string { return ItemTypeError }

// MarshalItem serializes an item with its type discriminator, suitable for
// the durable entry payload column.
func MarshalItem(item ThreadItem) ([]byte, error) {
	tagged, err := withTypeTag(item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged)
}

// UnmarshalItem deserializes an item previously written by MarshalItem.
// The "type" field selects the concrete item struct.
func UnmarshalItem(data []byte) (ThreadItem, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("parsing item type tag: %w", err)
	}

	var item ThreadItem
	var err error
	switch tag.Type {
	case ItemTypeAgentMessage:
		var i AgentMessageItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeReasoning:
		var i ReasoningItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeCommandExecution:
		var i CommandExecutionItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeFileChange:
		var i FileChangeItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeMcpToolCall:
		var i McpToolCallItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeWebSearch:
		var i WebSearchItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeTodoList:
		var i TodoListItem
		err = json.Unmarshal(data, &i)
		item = i
	case ItemTypeError:
		var i ErrorItem
		err = json.Unmarshal(data, &i)
		item = i
	default:
		return nil, fmt.Errorf("unknown item type %q", tag.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s item: %w", tag.Type, err)
	}
	return item, nil
}

// withTypeTag returns a copy of the item with its Type field populated, so
// callers never need to set the discriminator by hand.
func withTypeTag(item ThreadItem) (ThreadItem, error) {
	switch i := item.(type) {
	case AgentMessageItem:
		i.Type = i.ItemType()
		return i, nil
	case ReasoningItem:
		i.Type = i.ItemType()
		return i, nil
	case CommandExecutionItem:
		i.Type = i.ItemType()
		return i, nil
	case FileChangeItem:
		i.Type = i.ItemType()
		return i, nil
	case McpToolCallItem:
		i.Type = i.ItemType()
		return i, nil
	case WebSearchItem:
		i.Type = i.ItemType()
		return i, nil
	case TodoListItem:
		i.Type = i.ItemType()
		return i, nil
	case ErrorItem:
		i.Type = i.ItemType()
		return i, nil
	default:
		return nil, fmt.Errorf("unsupported item type %T", item)
	}
}
