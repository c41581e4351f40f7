// Package config loads process configuration from an optional .env file and
// the environment. Every binary calls Load once at startup and hands the
// relevant sections to the packages it wires together.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Database DatabaseConfig
	Deck     DeckConfig
	Chat     ChatConfig
	Auth     AuthConfig
	Matcher  MatcherConfig
}

type AppConfig struct {
	Environment string
	LogFilePath string
	ServerName  string
}

type ServerConfig struct {
	ListenAddr     string
	WorkerPoolSize int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	FrameRate      float64 // inbound frames per second per connection
	FrameBurst     int
}

type RedisConfig struct {
	Addr string
}

type NATSConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL string // empty: candidates come from CandidatesFile
}

type DeckConfig struct {
	CandidatesFile   string
	CacheTTL         time.Duration
	ClearLatency     time.Duration
	ChallengeLatency time.Duration // simulated grading of a challenge submission
}

type ChatConfig struct {
	HistorySize int // messages kept per conversation
}

type AuthConfig struct {
	Secret    string
	Latency   time.Duration
	TokenTTL  time.Duration
	UsersFile string
}

type MatcherConfig struct {
	AchievementLatency time.Duration // simulated delay before a progress update resolves
}

// Production reports whether the app runs with production logging.
func (c AppConfig) Production() bool {
	return c.Environment == "production"
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: .env file not found, using system environment")
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "ws-1"
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", ""),
			ServerName:  getEnv("SERVER_NAME", hostname),
		},
		Server: ServerConfig{
			ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
			WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 256),
			MaxConnections: getEnvAsInt("MAX_CONNECTIONS", 100000),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 10*time.Second),
			FrameRate:      getEnvAsFloat("FRAME_RATE", 20),
			FrameBurst:     getEnvAsInt("FRAME_BURST", 40),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Deck: DeckConfig{
			CandidatesFile:   getEnv("CANDIDATES_FILE", "candidates.yaml"),
			CacheTTL:         getEnvAsDuration("CANDIDATE_CACHE_TTL", 5*time.Minute),
			ClearLatency:     getEnvAsDuration("CLEAR_LATENCY", 500*time.Millisecond),
			ChallengeLatency: getEnvAsDuration("CHALLENGE_LATENCY", time.Second),
		},
		Auth: AuthConfig{
			Secret:    getEnv("AUTH_SECRET", "dev-secret"),
			Latency:   getEnvAsDuration("AUTH_LATENCY", time.Second),
			TokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			UsersFile: getEnv("USERS_FILE", ""),
		},
		Chat: ChatConfig{
			HistorySize: getEnvAsInt("CHAT_HISTORY_SIZE", 50),
		},
		Matcher: MatcherConfig{
			AchievementLatency: getEnvAsDuration("ACHIEVEMENT_LATENCY", 0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil && value > 0 {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil && value > 0 {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
