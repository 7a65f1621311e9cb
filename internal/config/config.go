// Package config loads process configuration from yaml with environment
// overrides and builds the process logger.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string       `yaml:"discord_token"`
	DatabasePath string       `yaml:"database_path"`
	RulesPath    string       `yaml:"rules_path"`
	LogLevel     string       `yaml:"log_level"`
	LogFile      string       `yaml:"log_file"`
	AuditChannel string       `yaml:"audit_channel"`
	Health       HealthConfig `yaml:"health"`
	Engine       EngineConfig `yaml:"engine"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type EngineConfig struct {
	TaskTimeoutSeconds int `yaml:"task_timeout_seconds"`
	GCIntervalSeconds  int `yaml:"gc_interval_seconds"`
	RetentionDays      int `yaml:"retention_days"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/automod.db",
		RulesPath:    "rules.yaml",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Engine: EngineConfig{
			TaskTimeoutSeconds: 10,
			GCIntervalSeconds:  60,
			RetentionDays:      30,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.RulesPath = envString("RULES_PATH", cfg.RulesPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envString("LOG_FILE", cfg.LogFile)
	cfg.AuditChannel = envString("AUDIT_CHANNEL", cfg.AuditChannel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Engine.TaskTimeoutSeconds = envInt("TASK_TIMEOUT_SECONDS", cfg.Engine.TaskTimeoutSeconds)
	cfg.Engine.GCIntervalSeconds = envInt("GC_INTERVAL_SECONDS", cfg.Engine.GCIntervalSeconds)
	cfg.Engine.RetentionDays = envInt("RETENTION_DAYS", cfg.Engine.RetentionDays)
}

// BuildLogger constructs the JSON logger. With a log file configured the
// output rotates through lumberjack; otherwise it goes to stderr.
func BuildLogger(level, file string) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.MessageKey = "message"
	encoderCfg.LevelKey = "level"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if file != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		})
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, parseLevel(level))
		return zap.New(core), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig = encoderCfg
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
