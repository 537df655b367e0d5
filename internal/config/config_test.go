package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SORTBOX_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.SweepInterval != time.Minute || cfg.SweepPageSize != 3 || cfg.SweepWindow != 24*time.Hour {
		t.Fatalf("unexpected sweep defaults %+v", cfg)
	}
	if cfg.LLMModel != "gpt-4o-mini" || cfg.LLMTemperature != 0.3 {
		t.Fatalf("unexpected model defaults %+v", cfg)
	}
	if cfg.BrowserNavTimeout != 30*time.Second || cfg.BrowserActionTimeout != 5*time.Second || cfg.BrowserGrace != 2*time.Second {
		t.Fatalf("unexpected browser defaults %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Fatalf("unexpected log defaults %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SWEEP_INTERVAL", "5m")
	t.Setenv("SWEEP_PAGE_SIZE", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("S3_FORCE_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.SweepInterval != 5*time.Minute || cfg.SweepPageSize != 10 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" || !cfg.S3ForcePathStyle {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"PORT":            "70000",
		"LOG_LEVEL":       "loud",
		"LOG_FORMAT":      "xml",
		"SWEEP_PAGE_SIZE": "0",
		"LLM_TEMPERATURE": "3",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
