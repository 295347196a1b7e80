// Mindvizad is the MindViza conversation daemon.
//
// It serves the WebSocket chat endpoint and a small REST surface, backed
// by a Groq-hosted completion model, SQLite long-term memory, and
// per-thread conversation checkpoints. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	mindvizad serve              Start the API server
//	mindvizad ask <message>      Run a single exchange (for testing)
//	mindvizad version            Print version and build information
//	mindvizad -o json version    Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mindviza/mindviza/internal/api"
	"github.com/mindviza/mindviza/internal/buildinfo"
	"github.com/mindviza/mindviza/internal/checkpoint"
	"github.com/mindviza/mindviza/internal/config"
	"github.com/mindviza/mindviza/internal/events"
	"github.com/mindviza/mindviza/internal/identity"
	"github.com/mindviza/mindviza/internal/llm"
	"github.com/mindviza/mindviza/internal/memory"
	"github.com/mindviza/mindviza/internal/quota"
	"github.com/mindviza/mindviza/internal/registry"
	"github.com/mindviza/mindviza/internal/session"
	"github.com/mindviza/mindviza/internal/summarizer"
	"github.com/mindviza/mindviza/internal/ws"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the mindvizad command. OS-level
// dependencies are injected so the lifecycle can be driven from tests.
// Arguments are parsed by hand: the flag package relies on package-level
// globals, which makes concurrent test runs awkward, and the argument
// surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: mindvizad ask <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "MindViza - Mental Health Companion Daemon")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mindvizad [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Run a single exchange (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/mindviza/config.yaml, /etc/mindviza/config.yaml")
	return nil
}

// runAsk handles "mindvizad ask <message>". It runs one exchange with no
// persistence and no quota, printing the reply to stdout. Useful for
// smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	message := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client := llm.NewGroqClient(cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Model, logger)

	// No memory store: a one-shot question has nothing to retrieve.
	processor := session.NewTurnProcessor(client, nil, cfg.Memory.Limit(), cfg.Groq.Timeout(), logger)

	sess := session.NewSession("cli-test", session.GenerateThreadID("cli-test", time.Now()))
	reply, err := processor.Process(ctx, sess, message)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, reply)
	return nil
}

// runServe handles "mindvizad serve": loads config, opens the database,
// wires the conversation engine, starts the HTTP server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting MindViza", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure now that the desired level is known. The initial
	// Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level, "text")
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Groq.Model,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// Memory and checkpoint stores share one database.
	db, err := sql.Open("sqlite3", cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath(), err)
	}
	defer db.Close()

	memStore, err := memory.NewStoreWithDB(db)
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}
	checkpoints, err := checkpoint.NewStoreWithDB(db)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	logger.Info("database opened", "path", cfg.DatabasePath())

	client := llm.NewGroqClient(cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Model, logger)

	resolver := identity.NewResolver(cfg.Auth.SecretKey, cfg.Auth.Algorithm, logger)
	tracker := quota.NewTracker(cfg.Quota.Limit(), logger)
	curator := memory.NewCurator(memStore, client, logger)
	reg := registry.NewRegistry(logger)
	bus := events.New()

	processor := session.NewTurnProcessor(client, memStore, cfg.Memory.Limit(), cfg.Groq.Timeout(), logger)

	var compactor session.Compactor
	if cfg.Memory.SummarizeAfter > 0 {
		compactor = summarizer.New(client, cfg.Memory.SummarizeAfter, logger)
	}

	manager := session.NewManager(processor, tracker, curator, compactor, checkpoints, reg, bus, logger)
	wsHandler := ws.NewHandler(resolver, manager, logger)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, processor, curator, checkpoints, cfg.Defaults, wsHandler, logger)

	// Drain operational events to the debug log until a richer consumer
	// (metrics, admin stream) subscribes.
	sub := bus.Subscribe(64)
	go func() {
		for e := range sub {
			logger.Debug("event", "source", e.Source, "kind", e.Kind, "data", e.Data)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
		bus.Unsubscribe(sub)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("MindViza stopped")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
