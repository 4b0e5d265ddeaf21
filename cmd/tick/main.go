// Tick is a conversational task assistant.
//
// It serves a chat API backed by a tool-calling model that can add,
// list, update, complete, and delete the caller's tasks. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	tick serve                                  Start the API server
//	tick init [dir]                             Write an example config
//	tick useradd <email> <name> <password>      Create an account
//	tick ask <email> <message...>               Run one chat turn as a user
//	tick version                                Print version and build information
//	tick -o json version                        Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/tick/internal/agent"
	"github.com/nugget/tick/internal/api"
	"github.com/nugget/tick/internal/buildinfo"
	"github.com/nugget/tick/internal/config"
	"github.com/nugget/tick/internal/database"
	"github.com/nugget/tick/internal/health"
	"github.com/nugget/tick/internal/llm"
	"github.com/nugget/tick/internal/metrics"
	"github.com/nugget/tick/internal/tasks"
	"github.com/nugget/tick/internal/tools"
	"github.com/nugget/tick/internal/transcript"
	"github.com/nugget/tick/internal/users"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver
	_ "modernc.org/sqlite"          // "sqlite" driver
)

// main builds the OS-level environment and hands off to [run] so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are os.Args[1:]. They are
// parsed by hand because the flag package's globals get in the way of
// calling run from parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			// Everything after the command belongs to it, including
			// message text that happens to start with a dash.
			cmdArgs = append(cmdArgs, args[i])
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
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
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
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "useradd":
		if len(cmdArgs) != 3 {
			return errors.New("usage: tick useradd <email> <name> <password>")
		}
		return runUserAdd(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0], cmdArgs[1], cmdArgs[2])
	case "ask":
		if len(cmdArgs) < 2 {
			return errors.New("usage: tick ask <email> <message...>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, cmdArgs[0], strings.Join(cmdArgs[1:], " "))
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

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Tick - Conversational Task Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tick [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                              Start the API server")
	fmt.Fprintln(w, "  init [dir]                         Write an example config (default: .)")
	fmt.Fprintln(w, "  useradd <email> <name> <password>  Create an account")
	fmt.Fprintln(w, "  ask <email> <message...>           Run one chat turn as a user")
	fmt.Fprintln(w, "  version                            Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/tick/config.yaml, /etc/tick/config.yaml")
	return nil
}

// app holds the components shared by serve and ask.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sql.DB
	users       *users.Store
	tasks       *tasks.Store
	transcripts *transcript.Store
	metrics     *metrics.Metrics
	model       llm.Client
	loop        *agent.Loop
}

// loadConfig locates, parses, and validates the configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// openApp loads configuration and wires every component. Logs go to
// logOut. The caller must call close.
func openApp(ctx context.Context, logOut io.Writer, configPath string) (*app, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(logOut)
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded",
		"path", cfgPath,
		"database", cfg.Database.Path,
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
	)

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewRegistry(logger.With("component", "tools"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("tool registry: %w", err)
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		users:       users.NewStore(db),
		tasks:       tasks.NewStore(db),
		transcripts: transcript.NewStore(db),
		metrics:     metrics.New(),
		model:       createLLMClient(cfg, logger),
	}
	a.loop = agent.NewLoop(
		logger.With("component", "agent"),
		a.model,
		a.transcripts,
		a.tasks,
		registry,
		agent.Options{
			Model:           cfg.Model.Name,
			HistoryLimit:    cfg.Agent.HistoryLimit,
			Apology:         cfg.Agent.Apology,
			SecondPassTools: cfg.Agent.SecondPassTools,
			Metrics:         a.metrics,
		},
	)
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

// createLLMClient builds the model client for the configured provider.
// The configured model routes to it explicitly; it is also the fallback.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	var client llm.Client
	switch cfg.Model.Provider {
	case "openai":
		client = llm.NewOpenAIClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Timeout, logger)
	default:
		client = llm.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.Timeout, logger)
	}

	multi := llm.NewMultiClient(client)
	multi.AddProvider(cfg.Model.Provider, client)
	multi.AddModel(cfg.Model.Name, cfg.Model.Provider)
	logger.Info("LLM client initialized", "model", cfg.Model.Name, "provider", cfg.Model.Provider)
	return multi
}

// runServe starts the API server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests before closing the database.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	a, err := openApp(ctx, stdout, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	logger.Info("starting Tick", "version", buildinfo.Version, "commit", buildinfo.Commit(), "built", buildinfo.Built())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	modelHealth := health.Watch(ctx, "model", a.model.Ping,
		health.WithLogger(logger.With("component", "health")),
		health.OnChange(a.metrics.SetModelUp),
	)

	server := api.NewServer(a.cfg.Listen.Address, a.cfg.Listen.Port, api.Deps{
		Chat:          a.loop,
		Users:         a.users,
		Tokens:        users.NewTokens(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL),
		Conversations: a.transcripts,
		Tasks:         a.tasks,
		Metrics:       a.metrics,
		Model:         modelHealth,
	}, logger.With("component", "api"))

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	<-modelHealth.Done()
	logger.Info("Tick stopped")
	return nil
}

// runAsk runs one chat turn as the named user and prints the reply. It
// starts a new conversation every time. Logs go to stderr so the reply
// is the only thing on stdout.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, email, message string) error {
	a, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	u, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("no user with email %s (create one with tick useradd)", email)
	}
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	resp := a.loop.Run(ctx, &agent.Request{
		User:    agent.User{ID: u.ID, Name: u.Name},
		Message: message,
	})

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(stdout, resp.Message)
	return nil
}
