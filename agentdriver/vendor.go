package agentdriver

import (
	"fmt"
	"os"

	"github.com/yyhhyyyyyy/luban-sub002/streamjson"
)

// Vendor identifies one supported agent CLI.
type Vendor string

const (
	VendorClaude   Vendor = "claude"
	VendorCodex    Vendor = "codex"
	VendorGemini   Vendor = "gemini"
	VendorOpencode Vendor = "opencode"
)

// ParseVendor validates a vendor name.
func ParseVendor(name string) (Vendor, error) {
	switch Vendor(name) {
	case VendorClaude, VendorCodex, VendorGemini, VendorOpencode:
		return Vendor(name), nil
	default:
		return "", fmt.Errorf("unknown vendor %q (expected claude, codex, gemini, or opencode)", name)
	}
}

// EnvVar returns the environment variable overriding the vendor's executable
// path.
func (v Vendor) EnvVar() string {
	switch v {
	case VendorClaude:
		return "AGENTDECK_CLAUDE_BIN"
	case VendorCodex:
		return "AGENTDECK_CODEX_BIN"
	case VendorGemini:
		return "AGENTDECK_GEMINI_BIN"
	case VendorOpencode:
		return "AGENTDECK_OPENCODE_BIN"
	default:
		return ""
	}
}

// command resolves the vendor executable: the env override if set, else the
// bare command name resolved via PATH at spawn time.
func (v Vendor) command() string {
	if path := os.Getenv(v.EnvVar()); path != "" {
		return path
	}
	return string(v)
}

func (v Vendor) dialect() streamjson.Dialect {
	switch v {
	case VendorCodex:
		return streamjson.DialectCodex
	case VendorGemini:
		return streamjson.DialectGemini
	case VendorOpencode:
		return streamjson.DialectOpencode
	default:
		return streamjson.DialectClaude
	}
}

// promptViaStdin reports whether the vendor takes the prompt on stdin rather
// than as an argv token.
func (v Vendor) promptViaStdin() bool {
	return v == VendorClaude
}

// argv builds the vendor's fixed non-interactive, streaming-JSON,
// permission-bypass command line. These flag sets are each CLI's accepted
// interface and must not drift.
func (v Vendor) argv(p TurnParams) []string {
	switch v {
	case VendorClaude:
		args := []string{
			"-p",
			"--output-format", "stream-json",
			"--verbose",
			"--dangerously-skip-permissions",
		}
		if p.ThreadID != "" {
			args = append(args, "--resume", p.ThreadID)
		}
		if p.Model != "" {
			args = append(args, "--model", p.Model)
		}
		for _, dir := range p.ContextDirs {
			args = append(args, "--add-dir", dir)
		}
		return args

	case VendorCodex:
		args := []string{"exec"}
		if p.ThreadID != "" {
			args = append(args, "resume", p.ThreadID)
		}
		args = append(args,
			"--json",
			"--skip-git-repo-check",
			"--dangerously-bypass-approvals-and-sandbox",
		)
		if p.Model != "" {
			args = append(args, "-m", p.Model)
		}
		if p.ReasoningEffort != "" {
			args = append(args, "-c", "model_reasoning_effort="+p.ReasoningEffort)
		}
		args = append(args, p.Prompt)
		return args

	case VendorGemini:
		args := []string{
			"--output-format", "stream-json",
			"--yolo",
		}
		if p.Model != "" {
			args = append(args, "-m", p.Model)
		}
		if p.ThreadID != "" {
			args = append(args, "--resume", p.ThreadID)
		}
		for _, dir := range p.ContextDirs {
			args = append(args, "--include-directories", dir)
		}
		args = append(args, "-p", p.Prompt)
		return args

	case VendorOpencode:
		args := []string{
			"run", p.Prompt,
			"--print-logs",
			"--format", "json",
		}
		if p.ThreadID != "" {
			args = append(args, "--session", p.ThreadID)
		}
		return args

	default:
		return nil
	}
}

// needsBootstrap reports whether the vendor requires an explicit
// thread-creation call before the first streaming turn.
func (v Vendor) needsBootstrap() bool {
	return v == VendorOpencode
}

// bootstrapArgv is the synchronous thread-creation command line. Its trimmed
// stdout is the new thread id.
func (v Vendor) bootstrapArgv() []string {
	if v == VendorOpencode {
		return []string{"session", "create"}
	}
	return nil
}
