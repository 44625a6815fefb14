package config

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DEMO_HTTP_ADDR", "DEMO_GRPC_ADDR", "DEMO_ALLOWED_ORIGINS", "DEMO_MAX_KB", "DEMO_HOME", "DEMO_EXT", "DEMO_TICRATE", "DEMO_TLS_CERT", "DEMO_TLS_KEY", "DEMO_GRPC_CLIENT_CA"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxDemoKB != DefaultMaxDemoKB || cfg.RecordCapacity() != 1<<20 {
		t.Fatalf("expected a 1 MiB recording buffer, got %d KB", cfg.MaxDemoKB)
	}
	if cfg.Extension != ".lmp" {
		t.Fatalf("expected default extension .lmp, got %q", cfg.Extension)
	}
	if cfg.TicRate != 35 {
		t.Fatalf("expected default tic rate 35, got %d", cfg.TicRate)
	}
	if cfg.RetainAge != DefaultRetainAge {
		t.Fatalf("expected default retention %v, got %v", DefaultRetainAge, cfg.RetainAge)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEMO_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DEMO_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("DEMO_MAX_KB", "2048")
	t.Setenv("DEMO_HOME", "/srv/srb2")
	t.Setenv("DEMO_EXT", ".dem")
	t.Setenv("DEMO_ARCHIVES", "a.pk3,b.pk3")
	t.Setenv("DEMO_WATCH_WINDOW", "30s")
	t.Setenv("DEMO_WATCH_BURST", "2")
	t.Setenv("DEMO_RETAIN_AGE", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.HTTPAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.RecordCapacity() != 2048*1024 {
		t.Fatalf("expected 2 MiB buffer, got %d", cfg.RecordCapacity())
	}
	if cfg.Home != "/srv/srb2" || cfg.Extension != ".dem" {
		t.Fatalf("unexpected home/ext %q %q", cfg.Home, cfg.Extension)
	}
	if len(cfg.Archives) != 2 {
		t.Fatalf("expected two archives, got %#v", cfg.Archives)
	}
	if cfg.WatchWindow != 30*time.Second || cfg.WatchBurst != 2 {
		t.Fatalf("unexpected watch limits %v/%d", cfg.WatchWindow, cfg.WatchBurst)
	}
	if cfg.RetainAge != 0 {
		t.Fatalf("expected retention age disabled, got %v", cfg.RetainAge)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("DEMO_MAX_KB", "-5")
	t.Setenv("DEMO_TICRATE", "fast")
	t.Setenv("DEMO_EXT", "lmp")
	t.Setenv("DEMO_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("DEMO_TLS_KEY", "")
	t.Setenv("DEMO_GRPC_CLIENT_CA", "/tmp/ca.pem")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{"DEMO_MAX_KB", "DEMO_TICRATE", "DEMO_EXT", "DEMO_TLS_CERT", "DEMO_GRPC_CLIENT_CA"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestBindFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("DEMO_MAX_KB", "64")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"-maxdemo", "4096", "-home", "/tmp/demos"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MaxDemoKB != 4096 || cfg.Home != "/tmp/demos" {
		t.Fatalf("flags not applied: %d %q", cfg.MaxDemoKB, cfg.Home)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.MaxDemoKB = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero buffer to be rejected")
	}
}
