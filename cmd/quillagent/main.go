// Quillagent drives a generative-model chat session that populates a
// Quillpad blog with simulated user activity: registrations, logins,
// posts, comments and likes, executed through tool calls against the
// blog's REST API.
//
// Usage:
//
//	quillagent init              Write an example config to edit
//	quillagent run               Start the activity scheduler daemon
//	quillagent trigger           Run a single trigger (for testing)
//	quillagent users             List the locally known identities
//	quillagent version           Print version and build information
//	quillagent -o json version   Output version information as JSON
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]) or given with
// -config.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quillpad/quillpad-agent/internal/actionlog"
	"github.com/quillpad/quillpad-agent/internal/agent"
	"github.com/quillpad/quillpad-agent/internal/blog"
	"github.com/quillpad/quillpad-agent/internal/blogapi"
	"github.com/quillpad/quillpad-agent/internal/buildinfo"
	"github.com/quillpad/quillpad-agent/internal/config"
	"github.com/quillpad/quillpad-agent/internal/identity"
	"github.com/quillpad/quillpad-agent/internal/llm"
	"github.com/quillpad/quillpad-agent/internal/scheduler"
	"github.com/quillpad/quillpad-agent/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// adminID is the backend id of the seeded administrator account.
const adminID = 1

// stopTimeout bounds how long shutdown waits for the scheduler loop.
const stopTimeout = 30 * time.Second

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle is drivable from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package's package-level globals interfere with parallel tests, and
// the surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

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
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown argument %q (try -help)", args[i])
		}
	}

	switch command {
	case "version":
		return printVersion(stdout, outputFmt)
	case "init":
		return runInit(stdout, ".")
	case "":
		return printUsage(stdout)
	case "run", "trigger", "users":
		// Handled below after construction.
	default:
		return fmt.Errorf("unknown command %q (try -help)", command)
	}

	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	logger.Info("starting", "build", buildinfo.String(), "config", path)

	store, err := identity.NewStore(filepath.Join(cfg.DataDir, "identities.db"))
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	defer store.Close()

	reg, err := identity.NewRegistry(store, logger)
	if err != nil {
		return err
	}

	api := blogapi.New(cfg.API.BaseURL, cfg.APITimeout(), logger,
		blogapi.WithAuthRejectHook(reg.InvalidateToken))
	reg.Bind(api)

	// The backend already knows the administrator; the local address
	// book just needs the credentials so the model can log it in.
	admin := identity.Identity{
		ID:       adminID,
		Username: cfg.Admin.Username,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	}
	if _, ok := reg.Get(adminID); !ok {
		if err := reg.Add(admin); err != nil {
			return fmt.Errorf("seed admin identity: %w", err)
		}
	}

	if command == "users" {
		return printUsers(stdout, outputFmt, reg)
	}

	svc := blog.NewService(api, reg, logger)
	registry := tools.NewBlogRegistry(svc, logger)
	model := llm.NewGeminiClient(cfg.Model.APIKey, cfg.Model.Name, cfg.Model.Temperature, logger)

	actions := actionlog.New(cfg.ActionLog, logger)
	defer actions.Close()

	engine := agent.NewEngine(model, registry, reg, actions, agent.Options{
		MaxToolCycles: cfg.Model.MaxToolCycles,
		RetryAttempts: cfg.Model.RetryAttempts,
		RetryDelay:    cfg.Model.RetryDelay(),
	}, logger)

	switch command {
	case "trigger":
		return engine.Trigger(ctx)

	case "run":
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		launch := fmt.Sprintf(
			"Blog agent system launched.\nAdmin account: username=%s email=%s id=%d\nWhat action to take?",
			admin.Username, admin.Email, admin.ID)
		if err := engine.TriggerWith(ctx, launch); err != nil {
			logger.Error("launch trigger failed", "error", err)
		}

		activity := cfg.Activity
		sched := scheduler.New(engine, scheduler.Config{
			MinActive: time.Duration(activity.MinActiveSec) * time.Second,
			MaxActive: time.Duration(activity.MaxActiveSec) * time.Second,
			MinIdle:   time.Duration(activity.MinIdleSec) * time.Second,
			MaxIdle:   time.Duration(activity.MaxIdleSec) * time.Second,
			MinBurst:  activity.MinBurst,
			MaxBurst:  activity.MaxBurst,
			MeanDelay: time.Duration(activity.MeanDelaySec) * time.Second,
		}, logger)

		if err := sched.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		logger.Info("shutdown requested")
		return sched.Stop(stopTimeout)
	}

	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `quillagent — blog activity simulation agent

Usage:
  quillagent [flags] <command>

Commands:
  init       Write an example config into the current directory
  run        Start the activity scheduler daemon
  trigger    Run a single trigger (for testing)
  users      List the locally known identities
  version    Print version and build information

Flags:
  -config <path>    Config file (default: search standard locations)
  -o <text|json>    Output format for version and users`)
	return nil
}

func printVersion(w io.Writer, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(buildinfo.Info())
	}
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

func printUsers(w io.Writer, format string, reg *identity.Registry) error {
	idents := reg.All()
	if format == "json" {
		public := make([]identity.Public, 0, len(idents))
		for _, ident := range idents {
			public = append(public, ident.Public())
		}
		return json.NewEncoder(w).Encode(public)
	}
	for _, ident := range idents {
		fmt.Fprintf(w, "%6d  %-24s %s\n", ident.ID, ident.Username, ident.Email)
	}
	fmt.Fprintf(w, "%d identities\n", len(idents))
	return nil
}
