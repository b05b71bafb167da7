package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/warmline/warmline/internal/api"
	"github.com/warmline/warmline/internal/genai"
	"github.com/warmline/warmline/internal/lockfile"
	"github.com/warmline/warmline/internal/media"
	"github.com/warmline/warmline/internal/messaging"
	"github.com/warmline/warmline/internal/responder"
	"github.com/warmline/warmline/internal/scheduler"
	"github.com/warmline/warmline/internal/store"
	"github.com/warmline/warmline/internal/util"
	"github.com/warmline/warmline/internal/warming"
	"github.com/warmline/warmline/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Warmline state data
	DefaultStateDir = "/var/lib/warmline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "warmline.db"
	// DefaultMediaDir is the default media catalogue location
	DefaultMediaDir = "media"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping Warmline with configured modules")
	if err := run(flags); err != nil {
		slog.Error("Warmline failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Warmline exited successfully")
}

// Config holds environment configuration
type Config struct {
	Backend        string
	NumericCode    bool
	WhatsAppDSN    string
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	MediaDir       string
	ReloadSchedule string
}

// Flags holds command line flag values
type Flags struct {
	backend        *string
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	dbDSN          *string
	openaiKey      *string
	apiAddr        *string
	mediaDir       *string
	reloadSchedule *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Backend:        os.Getenv("MESSAGING_BACKEND"),
		NumericCode:    util.ParseBoolEnv("NUMERIC_CODE", false),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("WARMLINE_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		MediaDir:       os.Getenv("MEDIA_DIR"),
		ReloadSchedule: os.Getenv("RELOAD_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No WARMLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Backend == "" {
		config.Backend = "whatsapp"
	}
	if config.MediaDir == "" {
		config.MediaDir = DefaultMediaDir
	}

	// Default to WhatsApp DSN if specific not set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	// If no database URL is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_BACKEND", config.Backend,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WARMLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MEDIA_DIR", config.MediaDir,
		"RELOAD_SCHEDULE", config.ReloadSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backend:        flag.String("backend", config.Backend, "messaging backend, whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $NUMERIC_CODE)"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for Warmline data (overrides $WARMLINE_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.WhatsAppDSN, "database DSN for WhatsApp session and stats store (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		mediaDir:       flag.String("media-dir", config.MediaDir, "media catalogue directory (overrides $MEDIA_DIR)"),
		reloadSchedule: flag.String("reload-schedule", config.ReloadSchedule, "cron schedule for media catalogue reloads (overrides $RELOAD_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"backend", *flags.backend,
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"mediaDir", *flags.mediaDir,
		"reloadSchedule", *flags.reloadSchedule)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildTransport constructs the messaging backend selected by configuration.
func buildTransport(flags Flags) (messaging.Transport, error) {
	if *flags.backend == "twilio" {
		slog.Info("Using Twilio messaging backend")
		return messaging.NewTwilioTransport()
	}

	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, err
	}
	return messaging.NewWhatsAppTransport(client), nil
}

// buildStats picks the stats backend from the DSN, falling back to memory.
func buildStats(flags Flags) store.StatsRepo {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory stats")
		return store.NewInMemoryStats()
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		repo, err := store.NewPostgresStats(store.WithPostgresDSN(*flags.dbDSN))
		if err != nil {
			slog.Warn("Postgres stats unavailable, using in-memory stats", "error", err)
			return store.NewInMemoryStats()
		}
		return repo
	}
	repo, err := store.NewSQLiteStats(store.WithSQLiteDSN(*flags.dbDSN))
	if err != nil {
		slog.Warn("SQLite stats unavailable, using in-memory stats", "error", err)
		return store.NewInMemoryStats()
	}
	return repo
}

func run(flags Flags) error {
	transport, err := buildTransport(flags)
	if err != nil {
		return err
	}

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	model, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	stats := buildStats(flags)
	selector := media.NewSelector(*flags.mediaDir)
	generator := responder.NewGenerator(model, nil)
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	session := warming.NewSession(
		transport,
		generator,
		selector,
		scheduler.NewSimpleTimer(),
		store.NewConversationStore(),
		store.NewDedupLedger(store.DefaultDedupCapacity),
		stats,
		rng,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		return err
	}
	go session.Run(ctx)

	// Drain notifications so the buffered channel never fills.
	go func() {
		for evt := range session.Events() {
			slog.Debug("warming event", "kind", evt.Kind, "address", evt.Address)
		}
	}()

	cron := scheduler.NewCronScheduler()
	if *flags.reloadSchedule != "" {
		if err := cron.AddJob(*flags.reloadSchedule, func() {
			if err := selector.Reload(); err != nil {
				slog.Warn("scheduled media reload failed", "error", err)
			}
		}); err != nil {
			slog.Warn("invalid reload schedule", "schedule", *flags.reloadSchedule, "error", err)
		}
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(session, selector, stats, apiOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	session.Stop()
	cron.Stop()
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Warn("API server shutdown failed", "error", err)
	}
	if err := transport.Stop(); err != nil {
		slog.Warn("transport shutdown failed", "error", err)
	}
	return nil
}
