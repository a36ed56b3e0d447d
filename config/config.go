package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Weights are the scoring weights for the recommendation ranker.
// All three must be non-negative.
type Weights struct {
	Alpha float64 `json:"alpha"` // similarity
	Beta  float64 `json:"beta"`  // novelty
	Gamma float64 `json:"gamma"` // fatigue
}

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	LogLevel  string
	LogOutput string

	// Room engine tunables.
	EmbeddingDim      int
	ScorerWeights     Weights
	WeightsFile       string // optional JSON file watched for live weight changes
	NoveltyHalfLife   time.Duration
	FatigueScale      float64
	HistoryMaxEntries int
	HistoryMaxAge     time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as time.Duration or returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "roomfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "roomfm-dev-secret"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", ""),

		EmbeddingDim: getEnvInt("EMBEDDING_DIM", 32),
		ScorerWeights: Weights{
			Alpha: getEnvFloat("SCORER_ALPHA", 0.6),
			Beta:  getEnvFloat("SCORER_BETA", 0.25),
			Gamma: getEnvFloat("SCORER_GAMMA", 0.15),
		},
		WeightsFile:       getEnv("SCORER_WEIGHTS_FILE", ""),
		NoveltyHalfLife:   getEnvDuration("NOVELTY_HALF_LIFE", 2*time.Hour),
		FatigueScale:      getEnvFloat("FATIGUE_SCALE", 2.0),
		HistoryMaxEntries: getEnvInt("HISTORY_MAX_ENTRIES", 25),
		HistoryMaxAge:     getEnvDuration("HISTORY_MAX_AGE", 6*time.Hour),
	}
}

// Validate checks the engine tunables once at startup.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDim)
	}
	if c.ScorerWeights.Alpha < 0 || c.ScorerWeights.Beta < 0 || c.ScorerWeights.Gamma < 0 {
		return fmt.Errorf("scorer weights must be non-negative, got alpha=%v beta=%v gamma=%v",
			c.ScorerWeights.Alpha, c.ScorerWeights.Beta, c.ScorerWeights.Gamma)
	}
	if c.NoveltyHalfLife <= 0 {
		return fmt.Errorf("novelty half-life must be positive, got %v", c.NoveltyHalfLife)
	}
	if c.FatigueScale <= 0 {
		return fmt.Errorf("fatigue scale must be positive, got %v", c.FatigueScale)
	}
	if c.HistoryMaxEntries <= 0 || c.HistoryMaxAge <= 0 {
		return fmt.Errorf("history window must be positive, got entries=%d age=%v",
			c.HistoryMaxEntries, c.HistoryMaxAge)
	}
	return nil
}
