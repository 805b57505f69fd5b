// Package agentdriver spawns vendor agent CLIs in their non-interactive
// streaming-JSON modes, feeds their stdout through the stream parser, and
// delivers canonical events to the caller in subprocess output order. One
// RunTurn call is one turn; cancellation is cooperative with a hard-kill
// fallback.
package agentdriver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
	"github.com/yyhhyyyyyy/luban-sub002/streamjson"
)

// cancelPollInterval is how often the canceller checks the shared flag.
const cancelPollInterval = 50 * time.Millisecond

// maxLineSize bounds a single stdout line. Agent CLIs emit large tool
// payloads on one line.
const maxLineSize = 16 * 1024 * 1024

// TurnParams carries everything needed to run one turn.
type TurnParams struct {
	Vendor Vendor

	// ThreadID resumes an existing vendor thread when non-empty.
	ThreadID string

	WorkDir string
	Prompt  string

	Mode            string
	Model           string
	ReasoningEffort string
	AutoLevel       string
	ContextDirs     []string

	// ExtraEnv entries ("KEY=VALUE") are appended to the inherited
	// environment.
	ExtraEnv []string
}

// RunTurn executes one turn against the vendor CLI, forwarding every parsed
// event to onEvent in output order. The call blocks until the subprocess and
// all auxiliary goroutines have finished.
//
// When cancel is set mid-turn the subprocess is killed and RunTurn returns
// nil: events already delivered stand, and downstream consumers dedup by item
// id. A successful exit with no terminal event observed synthesizes the
// missing ItemCompleted/TurnCompleted pair.
func RunTurn(params TurnParams, cancel *CancelFlag, onEvent func(agentstream.ThreadEvent)) error {
	vendor := params.Vendor
	if _, err := ParseVendor(string(vendor)); err != nil {
		return err
	}
	if onEvent == nil {
		onEvent = func(agentstream.ThreadEvent) {}
	}

	if vendor.needsBootstrap() && params.ThreadID == "" {
		threadID, err := bootstrapThread(vendor, params)
		if err != nil {
			return err
		}
		params.ThreadID = threadID
		onEvent(agentstream.ThreadStartedEvent{ThreadID: threadID})
	}

	cmd := exec.Command(vendor.command(), vendor.argv(params)...)
	cmd.Dir = params.WorkDir
	if len(params.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), params.ExtraEnv...)
	}
	setProcAttr(cmd)

	var stdin io.WriteCloser
	if vendor.promptViaStdin() {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return &ProcessError{Message: "opening stdin pipe", Cause: err}
		}
		stdin = pipe
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Message: "opening stdout pipe", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Message: "opening stderr pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return classifySpawnError(vendor, err)
	}

	if stdin != nil {
		// Write failures here surface as a short read below; the turn
		// outcome is decided by the exit status.
		io.WriteString(stdin, params.Prompt)
		stdin.Close()
	}

	var finished atomic.Bool
	var wg sync.WaitGroup

	// Canceller: hard-kills the process group once the flag is set, stops
	// polling as soon as the turn naturally finishes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !finished.Load() {
			if cancel.Canceled() {
				killGroup(cmd.Process)
				return
			}
			time.Sleep(cancelPollInterval)
		}
	}()

	// Stderr drain: a full stderr pipe must never starve stdout.
	var stderrBuf bytes.Buffer
	wg.Add(1)
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderr)
	}()

	// Stdout reader runs on the calling goroutine so event order matches
	// subprocess output order.
	parser := streamjson.New(vendor.dialect())
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		for _, ev := range parser.ParseLine(scanner.Text()) {
			onEvent(ev)
		}
		if cancel.Canceled() {
			break
		}
	}
	readErr := scanner.Err()
	if cancel.Canceled() {
		// The kill tears the pipe down abnormally; that is expected.
		readErr = nil
	}

	waitErr := cmd.Wait()
	finished.Store(true)
	wg.Wait()

	if cancel.Canceled() {
		return nil
	}
	if readErr != nil {
		return &ProcessError{Message: "reading agent output", Cause: readErr}
	}
	if waitErr != nil {
		return exitError(waitErr, stderrBuf.String())
	}

	if !parser.SawTurnCompleted() {
		// Some vendors omit the terminal event on success.
		if text := parser.MessageText(); text != "" {
			onEvent(agentstream.ItemCompletedEvent{Item: agentstream.AgentMessageItem{
				ID:   parser.MessageItemID(),
				Text: text,
			}})
		}
		onEvent(agentstream.TurnCompletedEvent{})
	}
	return nil
}

// bootstrapThread runs the vendor's synchronous thread-creation command and
// returns the new thread id from its trimmed stdout.
func bootstrapThread(vendor Vendor, params TurnParams) (string, error) {
	cmd := exec.Command(vendor.command(), vendor.bootstrapArgv()...)
	cmd.Dir = params.WorkDir
	if len(params.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), params.ExtraEnv...)
	}
	setProcAttr(cmd)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	out, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", classifySpawnError(vendor, err)
		}
		return "", exitError(err, stderrBuf.String())
	}

	threadID := strings.TrimSpace(string(out))
	if threadID == "" {
		return "", &ProcessError{Message: fmt.Sprintf("%s session create returned no thread id", vendor)}
	}
	return threadID, nil
}

// classifySpawnError distinguishes a missing binary from other start
// failures.
func classifySpawnError(vendor Vendor, err error) error {
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return &CLINotFoundError{
			Vendor:  vendor,
			Command: vendor.command(),
			EnvVar:  vendor.EnvVar(),
			Cause:   err,
		}
	}
	return &ProcessError{Message: "starting agent process", Cause: err}
}

// exitError builds the turn's terminal error from a nonzero exit: trimmed
// stderr when present, else the exit status.
func exitError(waitErr error, stderrText string) error {
	stderrText = strings.TrimSpace(stderrText)
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
		if stderrText == "" && len(exitErr.Stderr) > 0 {
			stderrText = strings.TrimSpace(string(exitErr.Stderr))
		}
	}

	if stderrText != "" {
		return &ProcessError{Message: "agent process failed", Stderr: stderrText, ExitCode: exitCode, Cause: waitErr}
	}
	return &ProcessError{
		Message:  fmt.Sprintf("agent process exited with status %d", exitCode),
		ExitCode: exitCode,
		Cause:    waitErr,
	}
}
