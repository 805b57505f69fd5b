package streamjson

import (
	"testing"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
)

func TestParseSystemInit(t *testing.T) {
	p := New(DialectClaude)
	events := p.ParseLine(`{"type":"system","subtype":"init","session_id":"thread_123"}`)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	started, ok := events[0].(agentstream.ThreadStartedEvent)
	if !ok {
		t.Fatalf("got %T, want ThreadStartedEvent", events[0])
	}
	if started.ThreadID != "thread_123" {
		t.Errorf("ThreadID = %q, want %q", started.ThreadID, "thread_123")
	}
}

func TestParseSessionIDFieldPerDialect(t *testing.T) {
	cases := []struct {
		name    string
		dialect Dialect
		line    string
	}{
		{"gemini camelCase", DialectGemini, `{"type":"system","subtype":"init","sessionId":"s1"}`},
		{"gemini snake_case", DialectGemini, `{"type":"system","subtype":"init","session_id":"s1"}`},
		{"opencode sessionID", DialectOpencode, `{"type":"system","subtype":"init","sessionID":"s1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := New(tc.dialect).ParseLine(tc.line)
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			started, ok := events[0].(agentstream.ThreadStartedEvent)
			if !ok || started.ThreadID != "s1" {
				t.Errorf("got %#v, want ThreadStarted{s1}", events[0])
			}
		})
	}
}

func TestParseToolLifecycle(t *testing.T) {
	t.Run("command completes", func(t *testing.T) {
		p := New(DialectClaude)

		events := p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"bash","input":{"command":"ls -la"}}]}}`)
		if len(events) != 1 {
			t.Fatalf("tool_use: got %d events, want 1", len(events))
		}
		startEv, ok := events[0].(agentstream.ItemStartedEvent)
		if !ok {
			t.Fatalf("got %T, want ItemStartedEvent", events[0])
		}
		cmd, ok := startEv.Item.(agentstream.CommandExecutionItem)
		if !ok {
			t.Fatalf("got %T, want CommandExecutionItem", startEv.Item)
		}
		if cmd.ID != "t1" || cmd.Command != "ls -la" || cmd.Status != agentstream.CommandExecutionStatusInProgress {
			t.Errorf("unexpected started item: %#v", cmd)
		}

		events = p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"total 0"}]}}`)
		if len(events) != 1 {
			t.Fatalf("tool_result: got %d events, want 1", len(events))
		}
		doneEv, ok := events[0].(agentstream.ItemCompletedEvent)
		if !ok {
			t.Fatalf("got %T, want ItemCompletedEvent", events[0])
		}
		done := doneEv.Item.(agentstream.CommandExecutionItem)
		if done.ID != "t1" || done.AggregatedOutput != "total 0" || done.Status != agentstream.CommandExecutionStatusCompleted {
			t.Errorf("unexpected completed item: %#v", done)
		}
	})

	t.Run("command fails", func(t *testing.T) {
		p := New(DialectClaude)
		p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t1","name":"bash","input":{"command":"false"}}]}}`)
		events := p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"boom","is_error":true}]}}`)
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		done := events[0].(agentstream.ItemCompletedEvent).Item.(agentstream.CommandExecutionItem)
		if done.Status != agentstream.CommandExecutionStatusFailed {
			t.Errorf("Status = %q, want failed", done.Status)
		}
	})

	t.Run("result for unknown id is dropped", func(t *testing.T) {
		p := New(DialectClaude)
		events := p.ParseLine(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"never_seen","content":"x"}]}}`)
		if len(events) != 0 {
			t.Errorf("got %d events, want 0", len(events))
		}
	})

	t.Run("file tool classification", func(t *testing.T) {
		p := New(DialectClaude)
		events := p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t2","name":"write_file","input":{"file_path":"main.go"}}]}}`)
		item := events[0].(agentstream.ItemStartedEvent).Item.(agentstream.FileChangeItem)
		if len(item.Changes) != 1 || item.Changes[0].Path != "main.go" || item.Changes[0].Kind != agentstream.PatchChangeKindAdd {
			t.Errorf("unexpected changes: %#v", item.Changes)
		}
	})

	t.Run("mcp tool classification", func(t *testing.T) {
		p := New(DialectClaude)
		events := p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t3","name":"mcp__github__create_issue","input":{"title":"x"}}]}}`)
		item := events[0].(agentstream.ItemStartedEvent).Item.(agentstream.McpToolCallItem)
		if item.Server != "github" || item.Tool != "create_issue" {
			t.Errorf("got server=%q tool=%q", item.Server, item.Tool)
		}
	})
}

func TestParseResultFlushesAccumulatedMessage(t *testing.T) {
	p := New(DialectClaude)

	events := p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"Hello "}]}}`)
	if len(events) != 1 {
		t.Fatalf("first chunk: got %d events, want 1", len(events))
	}
	if _, ok := events[0].(agentstream.ItemStartedEvent); !ok {
		t.Fatalf("first chunk: got %T, want ItemStartedEvent", events[0])
	}

	events = p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"world"}]}}`)
	if _, ok := events[0].(agentstream.ItemUpdatedEvent); !ok {
		t.Fatalf("second chunk: got %T, want ItemUpdatedEvent", events[0])
	}

	// Success result with no explicit text flushes the accumulator before
	// the terminal event.
	events = p.ParseLine(`{"type":"result","subtype":"success","usage":{"input_tokens":10,"output_tokens":5}}`)
	if len(events) != 2 {
		t.Fatalf("result: got %d events, want 2", len(events))
	}
	flushed, ok := events[0].(agentstream.ItemCompletedEvent)
	if !ok {
		t.Fatalf("result[0]: got %T, want ItemCompletedEvent", events[0])
	}
	msg := flushed.Item.(agentstream.AgentMessageItem)
	if msg.Text != "Hello world" {
		t.Errorf("flushed text = %q, want %q", msg.Text, "Hello world")
	}
	completed, ok := events[1].(agentstream.TurnCompletedEvent)
	if !ok {
		t.Fatalf("result[1]: got %T, want TurnCompletedEvent", events[1])
	}
	if completed.Usage.InputTokens != 10 || completed.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", completed.Usage)
	}
	if !p.SawTurnCompleted() {
		t.Error("SawTurnCompleted() = false after result line")
	}
}

func TestParseResultPrefersExplicitText(t *testing.T) {
	p := New(DialectClaude)
	p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}`)
	events := p.ParseLine(`{"type":"result","subtype":"success","result":"final answer"}`)
	msg := events[0].(agentstream.ItemCompletedEvent).Item.(agentstream.AgentMessageItem)
	if msg.Text != "final answer" {
		t.Errorf("text = %q, want %q", msg.Text, "final answer")
	}
}

func TestParseResultFailure(t *testing.T) {
	p := New(DialectClaude)
	events := p.ParseLine(`{"type":"result","subtype":"error_during_execution","is_error":true,"error":"rate limited"}`)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	failed, ok := events[0].(agentstream.TurnFailedEvent)
	if !ok {
		t.Fatalf("got %T, want TurnFailedEvent", events[0])
	}
	if failed.Error != "rate limited" {
		t.Errorf("Error = %q, want %q", failed.Error, "rate limited")
	}
	if p.SawTurnCompleted() {
		t.Error("SawTurnCompleted() = true after failure")
	}
}

func TestParseMalformedLines(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"not json at all",
		`{"type":"unknown_future_event"}`,
		`{"type":"system","subtype":"compact"}`,
		`{"no_type":true}`,
	}
	for _, dialect := range []Dialect{DialectClaude, DialectCodex} {
		p := New(dialect)
		for _, line := range lines {
			if events := p.ParseLine(line); len(events) != 0 {
				t.Errorf("dialect %d line %q: got %d events, want 0", dialect, line, len(events))
			}
		}
	}
}

func TestParseStripsANSI(t *testing.T) {
	p := New(DialectClaude)
	events := p.ParseLine("\x1b[32m{\"type\":\"system\",\"subtype\":\"init\",\"session_id\":\"s9\"}\x1b[0m")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].(agentstream.ThreadStartedEvent).ThreadID != "s9" {
		t.Errorf("unexpected event: %#v", events[0])
	}
}

func TestParseReasoningBlocks(t *testing.T) {
	p := New(DialectClaude)
	events := p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"step one"}]}}`)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	item := events[0].(agentstream.ItemStartedEvent).Item.(agentstream.ReasoningItem)
	if item.Text != "step one" {
		t.Errorf("Text = %q, want %q", item.Text, "step one")
	}

	events = p.ParseLine(`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":", step two"}]}}`)
	updated := events[0].(agentstream.ItemUpdatedEvent).Item.(agentstream.ReasoningItem)
	if updated.Text != "step one, step two" {
		t.Errorf("Text = %q, want accumulated text", updated.Text)
	}
	if updated.ItemID() != item.ItemID() {
		t.Errorf("reasoning id changed between chunks: %q vs %q", item.ItemID(), updated.ItemID())
	}
}

func TestCodexDialect(t *testing.T) {
	p := New(DialectCodex)

	events := p.ParseLine(`{"type":"thread.started","thread_id":"th_42"}`)
	if events[0].(agentstream.ThreadStartedEvent).ThreadID != "th_42" {
		t.Errorf("unexpected thread.started: %#v", events[0])
	}

	events = p.ParseLine(`{"type":"turn.started"}`)
	if _, ok := events[0].(agentstream.TurnStartedEvent); !ok {
		t.Errorf("got %T, want TurnStartedEvent", events[0])
	}

	events = p.ParseLine(`{"type":"item.completed","item":{"type":"agent_message","id":"item_0","text":"hi"}}`)
	msg := events[0].(agentstream.ItemCompletedEvent).Item.(agentstream.AgentMessageItem)
	if msg.ID != "item_0" || msg.Text != "hi" {
		t.Errorf("unexpected item: %#v", msg)
	}
	if p.MessageText() != "hi" {
		t.Errorf("MessageText() = %q, want %q", p.MessageText(), "hi")
	}

	events = p.ParseLine(`{"type":"turn.completed","usage":{"input_tokens":7,"cached_input_tokens":2,"output_tokens":3}}`)
	completed := events[0].(agentstream.TurnCompletedEvent)
	if completed.Usage.InputTokens != 7 || completed.Usage.CachedInputTokens != 2 || completed.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", completed.Usage)
	}
	if !p.SawTurnCompleted() {
		t.Error("SawTurnCompleted() = false after turn.completed")
	}
}

func TestCodexTurnFailed(t *testing.T) {
	p := New(DialectCodex)
	events := p.ParseLine(`{"type":"turn.failed","error":{"message":"model overloaded"}}`)
	failed := events[0].(agentstream.TurnFailedEvent)
	if failed.Error != "model overloaded" {
		t.Errorf("Error = %q, want %q", failed.Error, "model overloaded")
	}
}
