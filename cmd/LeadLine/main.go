package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/leadline/leadline/internal/api"
	"github.com/leadline/leadline/internal/engage"
	"github.com/leadline/leadline/internal/genai"
	"github.com/leadline/leadline/internal/lockfile"
	"github.com/leadline/leadline/internal/scoring"
	"github.com/leadline/leadline/internal/sms"
	"github.com/leadline/leadline/internal/store"
	"github.com/leadline/leadline/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadLine state data
	DefaultStateDir = "/var/lib/leadline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadline.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	policy, err := loadScoringPolicy(*flags.scoringPolicy)
	if err != nil {
		slog.Error("Failed to load scoring policy", "error", err)
		os.Exit(1)
	}

	// SQLite deployments share a state directory; hold an exclusive lock on
	// it so two instances cannot corrupt the same database file.
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" && *flags.dbDSN != "" {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	smsOpts := buildSMSOptions(flags)
	engageOpts := buildEngageOptions(flags, policy)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping LeadLine with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "from_number_set", *flags.fromNumber != "")
	if err := api.Run(storeOpts, genaiOpts, smsOpts, engageOpts, apiOpts); err != nil {
		slog.Error("LeadLine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadLine exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIModel   string
	TwilioSID     string
	TwilioToken   string
	FromNumber    string
	APIAddr       string
	ScoringPolicy string
}

// Flags holds command line flag values
type Flags struct {
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	twilioSID     *string
	twilioToken   *string
	fromNumber    *string
	apiAddr       *string
	scoringPolicy *string
}

// initializeLogger sets up structured logging; debug level when LEADLINE_DEBUG is set
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LEADLINE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      util.GetEnvOrDefault("LEADLINE_STATE_DIR", DefaultStateDir),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		FromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
		APIAddr:       os.Getenv("API_ADDR"),
		ScoringPolicy: os.Getenv("LEADLINE_SCORING_POLICY"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"TWILIO_FROM_NUMBER_SET", config.FromNumber != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN: PostgreSQL URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		twilioSID:     flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:   flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		fromNumber:    flag.String("from-number", config.FromNumber, "default originating number for manual sends (overrides $TWILIO_FROM_NUMBER)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		scoringPolicy: flag.String("scoring-policy", config.ScoringPolicy, "path to a JSON scoring policy file (overrides $LEADLINE_SCORING_POLICY)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"twilioSIDSet", *flags.twilioSID != "",
		"fromNumber_set", *flags.fromNumber != "",
		"apiAddr", *flags.apiAddr,
		"scoringPolicy", *flags.scoringPolicy)

	return flags
}

// loadScoringPolicy loads the configured policy file, or the built-in default.
func loadScoringPolicy(path string) (scoring.Policy, error) {
	if path == "" {
		return scoring.DefaultPolicy(), nil
	}
	policy, err := scoring.LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded scoring policy", "path", path, "categories", len(policy))
	return policy, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildSMSOptions constructs Twilio configuration options
func buildSMSOptions(flags Flags) []sms.Option {
	var smsOpts []sms.Option
	if *flags.twilioSID != "" {
		smsOpts = append(smsOpts, sms.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		smsOpts = append(smsOpts, sms.WithAuthToken(*flags.twilioToken))
	}
	return smsOpts
}

// buildEngageOptions constructs orchestrator configuration options
func buildEngageOptions(flags Flags, policy scoring.Policy) []engage.Option {
	engageOpts := []engage.Option{engage.WithPolicy(policy)}
	if *flags.fromNumber != "" {
		engageOpts = append(engageOpts, engage.WithDefaultFrom(*flags.fromNumber))
	}
	return engageOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
