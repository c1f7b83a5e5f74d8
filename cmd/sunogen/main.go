package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wachiwi/suno-sounds/pkg/config"
	"github.com/wachiwi/suno-sounds/pkg/credentials"
	"github.com/wachiwi/suno-sounds/pkg/generator"
	"github.com/wachiwi/suno-sounds/pkg/logger"
	"github.com/wachiwi/suno-sounds/pkg/player"
	"github.com/wachiwi/suno-sounds/pkg/server"
	"github.com/wachiwi/suno-sounds/pkg/sounds"
	"github.com/wachiwi/suno-sounds/pkg/status"
	"github.com/wachiwi/suno-sounds/pkg/telemetry"
)

type options struct {
	apiKey     string
	configPath string
	logLevel   string
	outputDir  string
	statusFile string

	prompt      string
	definitions string
	checkStatus bool
	serveAddr   string
	playFile    string

	style  string
	title  string
	vocals bool
	force  bool

	priority    int
	prioritySet bool
	sound       string
	category    string
	dryRun      bool
	list        bool

	watch string
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.apiKey, "api-key", "", "Suno API key (or use SUNO_API_KEY env / .env file)")
	flag.StringVar(&o.configPath, "config", "", "TOML config file (default "+config.DefaultPath+" if present)")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&o.outputDir, "output-dir", "", "Directory for downloaded audio")
	flag.StringVar(&o.statusFile, "status-file", "", "Task status file")

	flag.StringVar(&o.prompt, "prompt", "", "Generate a single sound from a text prompt")
	flag.StringVar(&o.definitions, "definitions", "", "Batch generate from a JSON definitions file")
	flag.BoolVar(&o.checkStatus, "check-status", false, "Poll pending tasks and download results")
	flag.StringVar(&o.serveAddr, "serve", "", "Serve the status dashboard on this address, e.g. :8080")
	flag.StringVar(&o.playFile, "play", "", "Play a downloaded audio file")

	flag.StringVar(&o.style, "style", "", "Style tag for custom mode")
	flag.StringVar(&o.title, "title", "", "Title for custom mode, also the status label")
	flag.BoolVar(&o.vocals, "vocals", false, "Include vocals (default: instrumental only)")
	flag.BoolVar(&o.force, "force", false, "Regenerate a label that was already downloaded")

	flag.IntVar(&o.priority, "priority", 0, "Generate sounds with priority <= N")
	flag.StringVar(&o.sound, "sound", "", "Generate a specific sound by ID")
	flag.StringVar(&o.category, "category", "", "Generate sounds in a specific category")
	flag.BoolVar(&o.dryRun, "dry-run", false, "Preview without API calls")
	flag.BoolVar(&o.list, "list", false, "List sounds and their status")

	flag.StringVar(&o.watch, "watch", "", "With -check-status: re-check on this cron schedule, e.g. \"@every 2m\"")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "priority" {
			o.prioritySet = true
		}
	})
	return o
}

func (o *options) modeCount() int {
	n := 0
	for _, set := range []bool{o.prompt != "", o.definitions != "", o.checkStatus, o.serveAddr != "", o.playFile != ""} {
		if set {
			n++
		}
	}
	return n
}

func loadConfig(o *options) (config.Config, error) {
	var cfg config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath, false)
	} else {
		cfg, err = config.Load(config.DefaultPath, true)
	}
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.statusFile != "" {
		cfg.StatusFile = o.statusFile
	}
	return cfg, cfg.Validate()
}

func main() {
	o := parseFlags()
	logger.Setup(os.Stderr, slog.LevelInfo)

	if o.modeCount() > 1 {
		logger.Fatal("Choose only one of -prompt, -definitions, -check-status, -serve, -play")
	}
	if o.modeCount() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if o.watch != "" && !o.checkStatus {
		logger.Fatal("-watch requires -check-status")
	}

	cfg, err := loadConfig(o)
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level", "error", err)
	}
	logger.Setup(os.Stderr, level)

	if credentials.EnvFileExposed(".env", ".gitignore") {
		slog.Warn(".env exists but may not be in .gitignore, risk of committing secrets")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "sunogen", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("Failed to set up telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	if err := run(ctx, o, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("Interrupted, progress is saved in the status file")
			return
		}
		stop()
		logger.Fatal("Command failed", "error", err)
	}
}

func run(ctx context.Context, o *options, cfg config.Config) error {
	store := status.NewStore(cfg.StatusFile)

	switch {
	case o.serveAddr != "":
		return serve(ctx, o.serveAddr, store, cfg)

	case o.playFile != "":
		p, err := player.New()
		if err != nil {
			return err
		}
		return p.PlayFile(ctx, o.playFile)

	case o.definitions != "":
		defs, err := sounds.Load(o.definitions)
		if err != nil {
			return err
		}
		opts := generator.BatchOptions{
			Filter: sounds.Filter{ID: o.sound, Category: o.category},
			DryRun: o.dryRun,
			List:   o.list,
		}
		if o.prioritySet {
			opts.Filter.MaxPriority = &o.priority
		}

		// Previews never touch the API, so they need no key.
		var api generator.API
		if !o.dryRun && !o.list {
			client, err := newClient(o, cfg)
			if err != nil {
				return err
			}
			api = client
		}
		_, err = newGenerator(api, store, cfg).SubmitBatch(ctx, defs, opts)
		return err

	case o.prompt != "":
		client, err := newClient(o, cfg)
		if err != nil {
			return err
		}
		_, err = newGenerator(client, store, cfg).SubmitSingle(ctx, generator.SingleRequest{
			Prompt: o.prompt,
			Vocals: o.vocals,
			Style:  o.style,
			Title:  o.title,
			Force:  o.force,
		})
		return err

	case o.checkStatus:
		client, err := newClient(o, cfg)
		if err != nil {
			return err
		}
		g := newGenerator(client, store, cfg)
		if o.watch != "" {
			return g.Watch(ctx, o.watch)
		}
		_, err = g.CheckStatus(ctx)
		return err
	}
	return nil
}

func newClient(o *options, cfg config.Config) (generator.API, error) {
	key, err := credentials.NewResolver().Resolve(o.apiKey)
	if err != nil {
		return nil, err
	}
	return cfg.NewClient(key), nil
}

func newGenerator(api generator.API, store *status.Store, cfg config.Config) *generator.Generator {
	g := generator.New(api, store, cfg.OutputDir, os.Stdout)
	g.SubmitDelay = cfg.SubmitDelay
	g.PollDelay = cfg.PollDelay
	return g
}

func serve(ctx context.Context, addr string, store *status.Store, cfg config.Config) error {
	gin.SetMode(gin.ReleaseMode)
	s := &server.Server{Store: store, OutputDir: cfg.OutputDir}
	if cfg.DashboardUser != "" && cfg.DashboardPassword != "" {
		s.Accounts = gin.Accounts{cfg.DashboardUser: cfg.DashboardPassword}
	}

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Dashboard is running", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
