package config

import (
	"testing"
	"time"
)

func TestValidate_DevNeedsNoAuth(t *testing.T) {
	cfg := &Config{
		Env:             "development",
		DashboardWindow: 200,
		AdminWindow:     1000,
		RefreshInterval: 5 * time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresAuth(t *testing.T) {
	cfg := &Config{
		Env:             "production",
		DashboardWindow: 200,
		AdminWindow:     1000,
		RefreshInterval: 5 * time.Minute,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing auth configuration")
	}

	// An issuer alone cannot verify signatures; a verification source is
	// still required.
	cfg.AuthIssuer = "https://auth.example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error with only an issuer configured")
	}

	cfg.AuthJWKSURL = "https://auth.example.com/.well-known/jwks.json"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with JWKS URL set: %v", err)
	}

	cfg.AuthJWKSURL = ""
	cfg.AuthSigningKey = "dev-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with signing key set: %v", err)
	}
}

func TestValidate_WindowOrdering(t *testing.T) {
	cfg := &Config{
		Env:             "development",
		DashboardWindow: 1000,
		AdminWindow:     200,
		RefreshInterval: 5 * time.Minute,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when admin window is smaller than dashboard window")
	}
}

func TestValidate_RefreshInterval(t *testing.T) {
	cfg := &Config{
		Env:             "development",
		DashboardWindow: 200,
		AdminWindow:     1000,
		RefreshInterval: 100 * time.Millisecond,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sub-second refresh interval")
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinsight")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.DashboardWindow != 200 || cfg.AdminWindow != 1000 {
		t.Errorf("expected default windows 200/1000, got %d/%d", cfg.DashboardWindow, cfg.AdminWindow)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("expected default refresh interval 5m, got %s", cfg.RefreshInterval)
	}
}
