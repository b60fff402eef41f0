package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names an optional YAML file of KEY: value pairs. Real
// environment variables override anything it sets.
const ConfigFileEnv = "STOCKGAME_CONFIG"

type APIConfig struct {
	Addr               string
	DatabaseURL        string
	RedisURL           string
	PriceTTL           time.Duration
	AlpacaKey          string
	AlpacaSecret       string
	AlpacaBaseURL      string
	AlpacaDataURL      string
	SupabaseURL        string
	SupabaseAnonKey    string
	DefaultBuyingPower float64
	TelegramToken      string
	TelegramChatID     int64
	DiscordToken       string
	DiscordChannelID   string
	SeedStocks         bool
	LogLevel           slog.Level
}

type WorkerConfig struct {
	DatabaseURL   string
	RedisURL      string
	PriceTTL      time.Duration
	AlpacaKey     string
	AlpacaSecret  string
	AlpacaDataURL string
	TickEvery     time.Duration
	RunOnce       bool
	LogLevel      slog.Level
}

type ExportConfig struct {
	DatabaseURL string
	OutDir      string
	LogLevel    slog.Level
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	e, err := loadEnv()
	if err != nil {
		return APIConfig{}, err
	}
	addr := e.get("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = e.envDefault("STOCKGAME_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:               addr,
		DatabaseURL:        e.get("DATABASE_URL"),
		RedisURL:           e.get("REDIS_URL"),
		PriceTTL:           e.envDurationDefault("STOCKGAME_PRICE_TTL", time.Minute),
		AlpacaKey:          e.get("APCA_API_KEY_ID"),
		AlpacaSecret:       e.get("APCA_API_SECRET_KEY"),
		AlpacaBaseURL:      e.get("ALPACA_BASE_URL"),
		AlpacaDataURL:      e.get("ALPACA_DATA_URL"),
		SupabaseURL:        strings.TrimRight(e.get("SUPABASE_URL"), "/"),
		SupabaseAnonKey:    e.get("SUPABASE_ANON_KEY"),
		DefaultBuyingPower: e.envFloatDefault("STOCKGAME_DEFAULT_BUYING_POWER", 100000),
		TelegramToken:      e.get("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:     e.envIntDefault("TELEGRAM_CHAT_ID", 0),
		DiscordToken:       e.get("DISCORD_BOT_TOKEN"),
		DiscordChannelID:   e.get("DISCORD_CHANNEL_ID"),
		SeedStocks:         e.envBoolDefault("STOCKGAME_SEED_STOCKS", true),
		LogLevel:           e.envLogLevel("STOCKGAME_LOG_LEVEL"),
	}
	if cfg.SupabaseURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if cfg.DefaultBuyingPower <= 0 {
		return cfg, fmt.Errorf("STOCKGAME_DEFAULT_BUYING_POWER must be positive")
	}
	if (cfg.AlpacaKey == "") != (cfg.AlpacaSecret == "") {
		return cfg, fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY must be set together")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return cfg, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.DiscordToken != "" && cfg.DiscordChannelID == "" {
		return cfg, fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	e, err := loadEnv()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		DatabaseURL:   e.get("DATABASE_URL"),
		RedisURL:      e.get("REDIS_URL"),
		PriceTTL:      e.envDurationDefault("STOCKGAME_PRICE_TTL", time.Minute),
		AlpacaKey:     e.get("APCA_API_KEY_ID"),
		AlpacaSecret:  e.get("APCA_API_SECRET_KEY"),
		AlpacaDataURL: e.get("ALPACA_DATA_URL"),
		TickEvery:     e.envDurationDefault("STOCKGAME_WORKER_TICK_EVERY", 30*time.Second),
		RunOnce:       e.envBoolDefault("STOCKGAME_WORKER_RUN_ONCE", false),
		LogLevel:      e.envLogLevel("STOCKGAME_LOG_LEVEL"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return cfg, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.AlpacaKey == "" || cfg.AlpacaSecret == "" {
		return cfg, fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required")
	}
	if cfg.TickEvery <= 0 {
		return cfg, fmt.Errorf("STOCKGAME_WORKER_TICK_EVERY must be positive")
	}
	return cfg, nil
}

func LoadExportFromEnv() (ExportConfig, error) {
	e, err := loadEnv()
	if err != nil {
		return ExportConfig{}, err
	}
	cfg := ExportConfig{
		DatabaseURL: e.get("DATABASE_URL"),
		OutDir:      e.envDefault("STOCKGAME_EXPORT_DIR", "export"),
		LogLevel:    e.envLogLevel("STOCKGAME_LOG_LEVEL"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	e, err := loadEnv()
	if err != nil {
		e = env{}
	}
	return CLIConfig{
		APIBaseURL: strings.TrimRight(e.envDefault("STK_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// env resolves keys from the process environment first, then the optional
// config file.
type env map[string]string

func loadEnv() (env, error) {
	path := strings.TrimSpace(os.Getenv(ConfigFileEnv))
	if path == "" {
		return env{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseEnvFile(data)
}

func parseEnvFile(data []byte) (env, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	out := make(env, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

func (e env) get(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return e[key]
}

func (e env) envDefault(key, fallback string) string {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	return v
}

func (e env) envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func (e env) envFloatDefault(key string, fallback float64) float64 {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (e env) envIntDefault(key string, fallback int64) int64 {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (e env) envBoolDefault(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (e env) envLogLevel(key string) slog.Level {
	switch strings.ToLower(e.get(key)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
