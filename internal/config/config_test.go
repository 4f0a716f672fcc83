package config

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  time.Duration
	}{
		{"unset uses fallback", "", false, 15 * time.Second},
		{"valid value", "30s", true, 30 * time.Second},
		{"malformed uses fallback", "fifteen", true, 15 * time.Second},
		{"zero uses fallback", "0s", true, 15 * time.Second},
		{"negative uses fallback", "-5s", true, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("SHUTDOWN_TIMEOUT", tt.value)
			}
			got := getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadRequiresCoreVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WEBHOOK_TOKEN", "tok")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/app")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("default shutdown timeout = %v", cfg.ShutdownTimeout)
	}
}
