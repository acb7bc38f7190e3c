package config

import (
	"strings"
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pulseid")
	t.Setenv("ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool sizing = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.DefaultTenant != "default" {
		t.Errorf("DefaultTenant = %q", cfg.DefaultTenant)
	}
	if cfg.TokenTTL().Hours() != 12 {
		t.Errorf("TokenTTL = %v, want 12h", cfg.TokenTTL())
	}
	if cfg.OTPThrottle().Seconds() != 30 {
		t.Errorf("OTPThrottle = %v, want 30s", cfg.OTPThrottle())
	}
}

func TestLoadSplitsCORSOrigins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pulseid")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v, want 2 entries", cfg.CORSOrigins)
	}
}

func TestValidateRejectsMissingSecretOutsideDev(t *testing.T) {
	cfg := &Config{Env: "production"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing JWT_SECRET in production")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.JWTSecret = "too-short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}

	cfg.JWTSecret = strings.Repeat("s", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateAllowsDevWithoutSecret(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
