package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PARENT_DOMAIN", "")
	t.Setenv("NAMING_MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.Naming.ParentDomain != "colancer.eth" {
		t.Errorf("unexpected parent domain %q", cfg.Naming.ParentDomain)
	}
	if cfg.Naming.MaxAttempts != 10 {
		t.Errorf("unexpected max attempts %d", cfg.Naming.MaxAttempts)
	}
	if cfg.JWT.Expiry != 24*time.Hour {
		t.Errorf("unexpected jwt expiry %v", cfg.JWT.Expiry)
	}
	if cfg.JWT.RefreshExpiry != 30*24*time.Hour {
		t.Errorf("unexpected refresh expiry %v", cfg.JWT.RefreshExpiry)
	}
	if !cfg.Storage.OrphanSweepEnabled || cfg.Storage.OrphanSweepInterval != 24*time.Hour {
		t.Errorf("unexpected sweep defaults %+v", cfg.Storage)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NAMING_MAX_ATTEMPTS", "25")
	t.Setenv("JWT_EXPIRY", "90s")
	t.Setenv("WORLD_ID_TIMEOUT", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("JWT_REFRESH_EXPIRY", "168h")
	t.Setenv("AVATAR_SWEEP_ENABLED", "false")

	cfg := Load()
	if cfg.Naming.MaxAttempts != 25 {
		t.Errorf("expected 25, got %d", cfg.Naming.MaxAttempts)
	}
	if cfg.JWT.Expiry != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.JWT.Expiry)
	}
	if cfg.WorldID.Timeout != 2*time.Minute {
		t.Errorf("bare numbers are minutes, got %v", cfg.WorldID.Timeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Storage.UseSSL {
		t.Error("expected UseSSL")
	}
	if cfg.JWT.RefreshExpiry != 7*24*time.Hour {
		t.Errorf("expected 168h, got %v", cfg.JWT.RefreshExpiry)
	}
	if cfg.Storage.OrphanSweepEnabled {
		t.Error("expected sweeping disabled")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
