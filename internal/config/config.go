package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "upscaled.db"
	defaultMaxBodyBytes   = 2 << 20 // 2 MB
	defaultBudgetMB       = 512
	defaultHostMemoryMB   = 2048
	defaultAttemptTimeout = 120 * time.Second
	defaultNCNNBinary     = "bin/realesrgan-ncnn-vulkan"
	defaultNCNNModelsDir  = "models"
	defaultESRGANURL      = "http://127.0.0.1:5000"

	envListenAddr     = "UPSCALED_LISTEN_ADDR"
	envDBPath         = "UPSCALED_DB_PATH"
	envLogLevel       = "UPSCALED_LOG_LEVEL"
	envLogFormat      = "UPSCALED_LOG_FORMAT"
	envMaxBodyBytes   = "UPSCALED_MAX_BODY_BYTES"
	envBudgetMB       = "UPSCALED_MEMORY_BUDGET_MB"
	envHostMemoryMB   = "UPSCALED_HOST_MEMORY_MB"
	envAttemptTimeout = "UPSCALED_ATTEMPT_TIMEOUT_S"
	envNCNNBinary     = "UPSCALED_NCNN_BINARY"
	envNCNNModelsDir  = "UPSCALED_NCNN_MODELS_DIR"
	envESRGANURL      = "UPSCALED_ESRGAN_URL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	LogFormat  string // "json" or "text"

	// MaxBodyBytes is the request payload ceiling. Requests above it are
	// rejected before any backend is touched.
	MaxBodyBytes int64

	// MemoryBudgetMB is the per-attempt memory budget driving tile sizing.
	MemoryBudgetMB float64

	// HostMemoryMB is the absolute ceiling for aggregate estimated memory
	// across concurrent requests.
	HostMemoryMB int64

	// AttemptTimeout bounds a single backend attempt. Exceeding it advances
	// the fallback chain.
	AttemptTimeout time.Duration

	NCNNBinary    string
	NCNNModelsDir string
	ESRGANURL     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		LogFormat:      "json",
		MaxBodyBytes:   defaultMaxBodyBytes,
		MemoryBudgetMB: defaultBudgetMB,
		HostMemoryMB:   defaultHostMemoryMB,
		AttemptTimeout: defaultAttemptTimeout,
		NCNNBinary:     defaultNCNNBinary,
		NCNNModelsDir:  defaultNCNNModelsDir,
		ESRGANURL:      defaultESRGANURL,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v, ok := parseInt64(os.Getenv(envMaxBodyBytes)); ok && v > 0 {
		cfg.MaxBodyBytes = v
	}
	if v, ok := parseInt64(os.Getenv(envBudgetMB)); ok && v > 0 {
		cfg.MemoryBudgetMB = float64(v)
	}
	if v, ok := parseInt64(os.Getenv(envHostMemoryMB)); ok && v > 0 {
		cfg.HostMemoryMB = v
	}
	if v, ok := parseInt64(os.Getenv(envAttemptTimeout)); ok && v > 0 {
		cfg.AttemptTimeout = time.Duration(v) * time.Second
	}
	if v := os.Getenv(envNCNNBinary); v != "" {
		cfg.NCNNBinary = v
	}
	if v := os.Getenv(envNCNNModelsDir); v != "" {
		cfg.NCNNModelsDir = v
	}
	if v := os.Getenv(envESRGANURL); v != "" {
		cfg.ESRGANURL = v
	}

	return cfg
}

func parseInt64(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w at the configured level.
// The "text" format uses tint for human-readable development output; anything
// else gets JSON.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}
