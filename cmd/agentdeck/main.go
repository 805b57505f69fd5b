// agentdeck - drive coding-agent CLIs against project workspaces and keep a
// durable conversation log.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yyhhyyyyyy/luban-sub002/agentdriver"
	"github.com/yyhhyyyyyy/luban-sub002/agentstream"
	"github.com/yyhhyyyyyy/luban-sub002/conversation"
	"github.com/yyhhyyyyyy/luban-sub002/store"
)

var (
	configFlag    string
	dbFlag        string
	projectFlag   string
	workspaceFlag string
	threadFlag    string
	vendorFlag    string
	modelFlag     string
	effortFlag    string
	dirFlags      []string
	verboseFlag   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "Drive coding-agent CLIs with a durable conversation log",
	Long: `agentdeck - drive coding-agent CLIs against project workspaces.

Each turn spawns the vendor CLI in its streaming-JSON mode, translates its
output into canonical events, and appends the resulting entries to a durable
per-thread conversation log.

Environment:
  AGENTDECK_CLAUDE_BIN    Override the claude executable
  AGENTDECK_CODEX_BIN     Override the codex executable
  AGENTDECK_GEMINI_BIN    Override the gemini executable
  AGENTDECK_OPENCODE_BIN  Override the opencode executable`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ~/.agentdeck.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (default from config)")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "P", "", "Project slug")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "W", "", "Workspace name")
	rootCmd.PersistentFlags().StringVarP(&threadFlag, "thread", "T", "default", "Thread id within the workspace")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")

	runCmd.Flags().StringVar(&vendorFlag, "vendor", "", "Agent vendor: claude, codex, gemini, opencode")
	runCmd.Flags().StringVar(&modelFlag, "model", "", "Model id passed to the vendor CLI")
	runCmd.Flags().StringVar(&effortFlag, "reasoning-effort", "", "Reasoning effort (codex only)")
	runCmd.Flags().StringArrayVar(&dirFlags, "dir", nil, "Extra context directory (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(importLegacyCmd)
}

// Config is the optional ~/.agentdeck.yaml file.
type Config struct {
	DBPath        string `yaml:"db_path"`
	DefaultVendor string `yaml:"default_vendor"`
	DefaultModel  string `yaml:"default_model"`
}

func loadConfig() (*Config, error) {
	path := configFlag
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &Config{}, nil
		}
		path = filepath.Join(home, ".agentdeck.yaml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(cfg *Config, logger *slog.Logger) (*store.Store, error) {
	path := dbFlag
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".agentdeck", "agentdeck.db")
	}
	return store.Open(path, logger)
}

func conversationKey() (store.Key, error) {
	if projectFlag == "" || workspaceFlag == "" {
		return store.Key{}, fmt.Errorf("--project and --workspace are required")
	}
	return store.Key{
		ProjectSlug:   projectFlag,
		WorkspaceName: workspaceFlag,
		ThreadID:      threadFlag,
	}, nil
}

// runCmd: agentdeck run --project X --workspace Y --vendor codex "prompt"
var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run one agent turn and append it to the conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger()

		vendorName := vendorFlag
		if vendorName == "" {
			vendorName = cfg.DefaultVendor
		}
		vendor, err := agentdriver.ParseVendor(vendorName)
		if err != nil {
			return err
		}
		model := modelFlag
		if model == "" {
			model = cfg.DefaultModel
		}

		key, err := conversationKey()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.EnsureConversation(key); err != nil {
			return err
		}
		record, err := st.LoadConversation(key)
		if err != nil {
			return err
		}

		conv := conversation.New(key.ProjectSlug, key.WorkspaceName, key.ThreadID)
		conv.Restore(record.Entries)

		prompt := args[0]
		if err := st.AppendEntries(key, conv.RecordUserMessage(prompt, nil)); err != nil {
			return err
		}

		runCfg := conversation.RunConfig{
			Vendor:          string(vendor),
			Model:           model,
			ReasoningEffort: effortFlag,
			ContextDirs:     dirFlags,
		}
		conv.BeginTurn(runCfg)

		registry := agentdriver.NewRegistry()
		turnKey := agentdriver.TurnKey(key)
		flag, ok := registry.Begin(turnKey)
		if !ok {
			return fmt.Errorf("a turn is already running for this thread")
		}
		defer registry.End(turnKey)

		var persistErr error
		onEvent := func(ev agentstream.ThreadEvent) {
			if started, ok := ev.(agentstream.ThreadStartedEvent); ok {
				if err := st.SetRemoteThreadID(key, started.ThreadID); err != nil {
					logger.Warn("recording thread id failed", "error", err)
				}
			}
			printEvent(ev)
			entries := conv.Apply(ev)
			if err := st.AppendEntries(key, entries); err != nil && persistErr == nil {
				persistErr = err
			}
		}

		started := time.Now()
		err = agentdriver.RunTurn(agentdriver.TurnParams{
			Vendor:          vendor,
			ThreadID:        record.RemoteThreadID,
			WorkDir:         ".",
			Prompt:          prompt,
			Model:           model,
			ReasoningEffort: effortFlag,
			ContextDirs:     dirFlags,
		}, flag, onEvent)
		if err != nil {
			// Turn errors become conversation entries, then surface to
			// the user.
			onEvent(agentstream.TurnFailedEvent{Error: err.Error()})
			if persistErr != nil {
				logger.Warn("persisting entries failed", "error", persistErr)
			}
			return err
		}
		onEvent(agentstream.TurnDurationEvent{DurationMs: time.Since(started).Milliseconds()})
		return persistErr
	},
}

// historyCmd: agentdeck history --project X --workspace Y
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key, err := conversationKey()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, newLogger())
		if err != nil {
			return err
		}
		defer st.Close()

		record, err := st.LoadConversation(key)
		if err != nil {
			return err
		}
		if record.RemoteThreadID != "" {
			fmt.Printf("thread: %s\n", record.RemoteThreadID)
		}
		for _, entry := range record.Entries {
			printEntry(entry)
		}
		return nil
	},
}

// importLegacyCmd: agentdeck import-legacy <log.jsonl>
var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy <log.jsonl>",
	Short: "Import an old JSON-lines event log into an empty conversation",
	Long: `Import an old JSON-lines event log into an empty conversation.

Bare item ids are rewritten into turn-scoped ids. With --repair, an earlier
unscoped import is detected and replaced by a fresh scoped one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key, err := conversationKey()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, newLogger())
		if err != nil {
			return err
		}
		defer st.Close()

		repair, _ := cmd.Flags().GetBool("repair")
		var imported int
		if repair {
			imported, err = st.RepairLegacyImport(key, args[0])
		} else {
			imported, err = st.ImportLegacyIfEmpty(key, args[0])
		}
		if err != nil {
			return err
		}
		if imported == 0 {
			fmt.Println("nothing imported")
		} else {
			fmt.Printf("imported %d entries\n", imported)
		}
		return nil
	},
}

func init() {
	importLegacyCmd.Flags().Bool("repair", false, "Replace an earlier unscoped import")
}

func printEvent(ev agentstream.ThreadEvent) {
	switch e := ev.(type) {
	case agentstream.ThreadStartedEvent:
		fmt.Printf("[thread %s]\n", e.ThreadID)
	case agentstream.ItemCompletedEvent:
		printItem(e.Item)
	case agentstream.TurnCompletedEvent:
		fmt.Printf("[done] in=%d cached=%d out=%d\n",
			e.Usage.InputTokens, e.Usage.CachedInputTokens, e.Usage.OutputTokens)
	case agentstream.TurnFailedEvent:
		fmt.Printf("[failed] %s\n", e.Error)
	case agentstream.ErrorEvent:
		fmt.Printf("[error] %s\n", e.Message)
	}
}

func printItem(item agentstream.ThreadItem) {
	switch it := item.(type) {
	case agentstream.AgentMessageItem:
		fmt.Println(it.Text)
	case agentstream.ReasoningItem:
		fmt.Printf("[reasoning] %s\n", summarize(it.Text))
	case agentstream.CommandExecutionItem:
		fmt.Printf("[cmd %s] %s\n", it.Status, it.Command)
	case agentstream.FileChangeItem:
		paths := make([]string, 0, len(it.Changes))
		for _, ch := range it.Changes {
			paths = append(paths, ch.Path)
		}
		fmt.Printf("[files %s] %s\n", it.Status, strings.Join(paths, ", "))
	case agentstream.McpToolCallItem:
		fmt.Printf("[tool %s] %s.%s\n", it.Status, it.Server, it.Tool)
	case agentstream.WebSearchItem:
		fmt.Printf("[search] %s\n", it.Query)
	case agentstream.ErrorItem:
		fmt.Printf("[error] %s\n", it.Message)
	}
}

func printEntry(entry conversation.Entry) {
	switch e := entry.(type) {
	case conversation.UserMessageEntry:
		fmt.Printf("> %s\n", e.Text)
	case conversation.ItemEntry:
		printItem(e.Item)
	case conversation.TurnUsageEntry:
		if e.Usage != nil {
			fmt.Printf("[usage] in=%d cached=%d out=%d\n",
				e.Usage.InputTokens, e.Usage.CachedInputTokens, e.Usage.OutputTokens)
		}
	case conversation.TurnDurationEntry:
		fmt.Printf("[took %dms]\n", e.DurationMs)
	case conversation.TurnCanceledEntry:
		fmt.Println("[canceled]")
	case conversation.TurnErrorEntry:
		fmt.Printf("[failed] %s\n", e.Message)
	}
}

func summarize(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	const max = 120
	if len(text) > max {
		return text[:max] + "…"
	}
	return text
}
