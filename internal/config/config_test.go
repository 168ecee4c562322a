package config_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/marchcraft/upscaled/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DBPath != "upscaled.db" {
		t.Errorf("DBPath = %q, want upscaled.db", cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.MaxBodyBytes != 2<<20 {
		t.Errorf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, 2<<20)
	}
	if cfg.MemoryBudgetMB != 512 {
		t.Errorf("MemoryBudgetMB = %v, want 512", cfg.MemoryBudgetMB)
	}
	if cfg.HostMemoryMB != 2048 {
		t.Errorf("HostMemoryMB = %d, want 2048", cfg.HostMemoryMB)
	}
	if cfg.AttemptTimeout != 120*time.Second {
		t.Errorf("AttemptTimeout = %v, want 120s", cfg.AttemptTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UPSCALED_LISTEN_ADDR", ":9090")
	t.Setenv("UPSCALED_LOG_LEVEL", "debug")
	t.Setenv("UPSCALED_LOG_FORMAT", "text")
	t.Setenv("UPSCALED_MAX_BODY_BYTES", "1048576")
	t.Setenv("UPSCALED_MEMORY_BUDGET_MB", "256")
	t.Setenv("UPSCALED_HOST_MEMORY_MB", "1024")
	t.Setenv("UPSCALED_ATTEMPT_TIMEOUT_S", "30")
	t.Setenv("UPSCALED_NCNN_BINARY", "/opt/ncnn/realesrgan")
	t.Setenv("UPSCALED_ESRGAN_URL", "http://sidecar:5000")

	cfg := config.Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.MaxBodyBytes != 1048576 {
		t.Errorf("MaxBodyBytes = %d, want 1048576", cfg.MaxBodyBytes)
	}
	if cfg.MemoryBudgetMB != 256 {
		t.Errorf("MemoryBudgetMB = %v, want 256", cfg.MemoryBudgetMB)
	}
	if cfg.HostMemoryMB != 1024 {
		t.Errorf("HostMemoryMB = %d, want 1024", cfg.HostMemoryMB)
	}
	if cfg.AttemptTimeout != 30*time.Second {
		t.Errorf("AttemptTimeout = %v, want 30s", cfg.AttemptTimeout)
	}
	if cfg.NCNNBinary != "/opt/ncnn/realesrgan" {
		t.Errorf("NCNNBinary = %q", cfg.NCNNBinary)
	}
	if cfg.ESRGANURL != "http://sidecar:5000" {
		t.Errorf("ESRGANURL = %q", cfg.ESRGANURL)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("UPSCALED_MAX_BODY_BYTES", "not-a-number")
	t.Setenv("UPSCALED_HOST_MEMORY_MB", "-5")

	cfg := config.Load()

	if cfg.MaxBodyBytes != 2<<20 {
		t.Errorf("MaxBodyBytes = %d, want default on invalid input", cfg.MaxBodyBytes)
	}
	if cfg.HostMemoryMB != 2048 {
		t.Errorf("HostMemoryMB = %d, want default on negative input", cfg.HostMemoryMB)
	}
}

func TestParseLogLevels(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Setenv("UPSCALED_LOG_LEVEL", tc.in)
		if got := config.Load().LogLevel; got != tc.want {
			t.Errorf("log level %q parsed to %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer

	jsonLogger := config.NewLogger(&buf, config.Config{LogFormat: "json"})
	jsonLogger.Info("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"hello"`)) {
		t.Errorf("json logger output = %q, want JSON", buf.String())
	}

	buf.Reset()
	textLogger := config.NewLogger(&buf, config.Config{LogFormat: "text"})
	textLogger.Info("hello")
	if buf.Len() == 0 {
		t.Error("text logger produced no output")
	}
}
