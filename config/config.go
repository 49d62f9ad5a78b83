package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/datalink-labs/datalink-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Config holds application configuration values
type Config struct {
	ServerPort    string
	JWTSecret     string
	JWTExpiration time.Duration

	MetadataDbDir  string
	MetadataDbFile string

	// Key used to encrypt stored connection credentials (AES-256, >= 32 chars).
	EncryptionKey string

	// External compute service (session issuance, SQL generation/execution).
	ComputeServiceURL     string
	ComputeRequestTimeout time.Duration

	// Session tokens obtained from the compute service.
	SessionDuration time.Duration
	SweepInterval   time.Duration

	// Connectivity probes against registered databases.
	ProbeTimeout time.Duration

	// Default row cap appended to utterances that carry no explicit limit.
	DefaultRowCap int

	// MongoDB registrations are rejected unless explicitly enabled. State
	// transitions stay rejected for MongoDB either way.
	EnableMongoDB bool
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	// Attempt to load .env file if in development environment (skip in production)
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	port := getEnv("SERVER_PORT", ":8080")
	jwtSecret := getEnv("JWT_SECRET", "") // No sensible default for secret!
	jwtExpHoursStr := getEnv("JWT_EXPIRATION_HOURS", "24")
	dbDir := getEnv("DATABASE_DIRECTORY", "data")
	dbFile := getEnv("DATABASE_DIRECTORY_FILE", "metadata.db")
	encryptionKey := getEnv("CREDENTIALS_ENCRYPTION_KEY", "")
	computeURL := getEnv("COMPUTE_SERVICE_URL", "")
	computeTimeoutStr := getEnv("COMPUTE_REQUEST_TIMEOUT_SECONDS", "60")
	sessionMinutesStr := getEnv("SESSION_DURATION_MINUTES", "30")
	sweepSecondsStr := getEnv("TOKEN_SWEEP_INTERVAL_SECONDS", "30")
	probeTimeoutStr := getEnv("PROBE_TIMEOUT_SECONDS", "10")
	rowCapStr := getEnv("DEFAULT_ROW_CAP", "100")
	enableMongoStr := getEnv("ENABLE_MONGODB", "false")

	// --- Validation and Parsing ---
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable must be set")
	}
	if jwtSecret == "!!replace_this_with_a_real_secret_key!!" {
		customLog.Warnln("WARNING: JWT_SECRET is set to the default placeholder!")
	}
	if encryptionKey == "" {
		return nil, errors.New("CREDENTIALS_ENCRYPTION_KEY environment variable must be set")
	}
	if len(encryptionKey) < 32 {
		return nil, errors.New("CREDENTIALS_ENCRYPTION_KEY must be at least 32 characters")
	}
	if computeURL == "" {
		return nil, errors.New("COMPUTE_SERVICE_URL environment variable must be set")
	}

	jwtExpHours, err := strconv.Atoi(jwtExpHoursStr)
	if err != nil || jwtExpHours <= 0 {
		customLog.Warnf("Invalid JWT_EXPIRATION_HOURS '%s'. Using default 24h. Error: %v", jwtExpHoursStr, err)
		jwtExpHours = 24
	}

	computeTimeoutSec, err := strconv.Atoi(computeTimeoutStr)
	if err != nil || computeTimeoutSec <= 0 {
		customLog.Warnf("Invalid COMPUTE_REQUEST_TIMEOUT_SECONDS '%s'. Using default 60s.", computeTimeoutStr)
		computeTimeoutSec = 60
	}

	sessionMinutes, err := strconv.Atoi(sessionMinutesStr)
	if err != nil || sessionMinutes <= 0 {
		customLog.Warnf("Invalid SESSION_DURATION_MINUTES '%s'. Using default 30m.", sessionMinutesStr)
		sessionMinutes = 30
	}

	// Token lifetimes are measured in minutes, so sweeping faster than once a
	// second buys nothing. Enforce a 1s floor on whatever was configured.
	sweepSeconds, err := strconv.Atoi(sweepSecondsStr)
	if err != nil || sweepSeconds < 1 {
		customLog.Warnf("Invalid TOKEN_SWEEP_INTERVAL_SECONDS '%s'. Using default 30s.", sweepSecondsStr)
		sweepSeconds = 30
	}

	probeTimeoutSec, err := strconv.Atoi(probeTimeoutStr)
	if err != nil || probeTimeoutSec <= 0 {
		customLog.Warnf("Invalid PROBE_TIMEOUT_SECONDS '%s'. Using default 10s.", probeTimeoutStr)
		probeTimeoutSec = 10
	}

	rowCap, err := strconv.Atoi(rowCapStr)
	if err != nil || rowCap <= 0 {
		customLog.Warnf("Invalid DEFAULT_ROW_CAP '%s'. Using default 100.", rowCapStr)
		rowCap = 100
	}

	enableMongo, err := strconv.ParseBool(enableMongoStr)
	if err != nil {
		customLog.Warnf("Invalid ENABLE_MONGODB '%s'. Defaulting to false.", enableMongoStr)
		enableMongo = false
	}

	cfg := &Config{
		ServerPort:            port,
		JWTSecret:             jwtSecret,
		JWTExpiration:         time.Hour * time.Duration(jwtExpHours),
		MetadataDbDir:         dbDir,
		MetadataDbFile:        dbFile,
		EncryptionKey:         encryptionKey,
		ComputeServiceURL:     computeURL,
		ComputeRequestTimeout: time.Second * time.Duration(computeTimeoutSec),
		SessionDuration:       time.Minute * time.Duration(sessionMinutes),
		SweepInterval:         time.Second * time.Duration(sweepSeconds),
		ProbeTimeout:          time.Second * time.Duration(probeTimeoutSec),
		DefaultRowCap:         rowCap,
		EnableMongoDB:         enableMongo,
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, Compute: %s, Sweep: %v",
		cfg.ServerPort, cfg.ComputeServiceURL, cfg.SweepInterval)
	return cfg, nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
