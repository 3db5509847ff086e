package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/api"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/conversation"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/coordinator"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/genai"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/ratelimit"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/store"
	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for plan bot state data
	DefaultStateDir = "/var/lib/planbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "planbot.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	backendOpts := buildBackendOptions(flags, config)
	coordOpts := buildCoordinatorOptions(config)
	apiOpts := buildAPIOptions(flags, config)

	// Start the service
	slog.Info("Bootstrapping plan bot with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "",
		"backend_set", *flags.backendURL != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, backendOpts, coordOpts, apiOpts); err != nil {
		slog.Error("Plan bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Plan bot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	OpenAIModel    string
	BackendURL     string
	APIAddr        string
	SessionTTL     time.Duration
	IdleTimeout    time.Duration
	MaxRetries     int
	RateLimit      int
	RateWindow     time.Duration
	CoordRetries   int
	CoordBaseDelay time.Duration
	Tolerance      float64
	RequestTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	openaiKey  *string
	model      *string
	backendURL *string
	apiAddr    *string
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

	defaults := conversation.DefaultConfig()
	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("PLANBOT_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		BackendURL:     os.Getenv("PLAN_BACKEND_URL"),
		APIAddr:        os.Getenv("API_ADDR"),
		SessionTTL:     util.ParseDurationEnv("SESSION_TTL", defaults.SessionTTL),
		IdleTimeout:    util.ParseDurationEnv("IDLE_TIMEOUT", defaults.IdleTimeout),
		MaxRetries:     util.ParseIntEnv("MAX_INPUT_RETRIES", defaults.MaxRetries),
		RateLimit:      util.ParseIntEnv("RATE_LIMIT", ratelimit.DefaultLimit),
		RateWindow:     util.ParseDurationEnv("RATE_WINDOW", ratelimit.DefaultWindow),
		CoordRetries:   util.ParseIntEnv("BACKEND_MAX_RETRIES", coordinator.DefaultMaxRetries),
		CoordBaseDelay: util.ParseDurationEnv("BACKEND_BASE_DELAY", coordinator.DefaultBaseDelay),
		Tolerance:      util.ParseFloatEnv("MACRO_TOLERANCE", coordinator.DefaultTolerance),
		RequestTimeout: util.ParseDurationEnv("BACKEND_REQUEST_TIMEOUT", coordinator.DefaultRequestTimeout),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PLANBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("PLANBOT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	return config
}

// parseCommandLineFlags parses command line flags with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "Directory for state data (overrides PLANBOT_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "Database DSN: PostgreSQL URL or SQLite file path (overrides DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides OPENAI_API_KEY)"),
		model:      flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides OPENAI_MODEL)"),
		backendURL: flag.String("backend-url", config.BackendURL, "Plan backend base URL; GenAI is used when unset (overrides PLAN_BACKEND_URL)"),
		apiAddr:    flag.String("addr", config.APIAddr, "API listen address (overrides API_ADDR)"),
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates required directories
func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0o755)
}

// buildStoreOptions builds store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No DSN configured, defaulting to SQLite in state dir", "path", dsn)
	}
	if store.DetectDSNType(dsn) == "postgres" {
		storeOpts = append(storeOpts, store.WithPostgresDSN(dsn))
	} else {
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	return storeOpts
}

// buildGenAIOptions builds GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildBackendOptions builds HTTP plan backend options; empty means GenAI
func buildBackendOptions(flags Flags, config Config) []coordinator.HTTPOption {
	var backendOpts []coordinator.HTTPOption
	if *flags.backendURL != "" {
		backendOpts = append(backendOpts,
			coordinator.WithBaseURL(*flags.backendURL),
			coordinator.WithTimeout(config.RequestTimeout))
	}
	return backendOpts
}

// buildCoordinatorOptions builds retry and tolerance options
func buildCoordinatorOptions(config Config) []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithMaxRetries(config.CoordRetries),
		coordinator.WithBaseDelay(config.CoordBaseDelay),
		coordinator.WithTolerance(config.Tolerance),
	}
}

// buildAPIOptions builds API server options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	apiOpts := []api.Option{
		api.WithRateLimit(int64(config.RateLimit), config.RateWindow),
		api.WithConversationConfig(conversation.Config{
			SessionTTL:  config.SessionTTL,
			ArchiveTTL:  conversation.DefaultConfig().ArchiveTTL,
			IdleTimeout: config.IdleTimeout,
			MaxRetries:  config.MaxRetries,
		}),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
