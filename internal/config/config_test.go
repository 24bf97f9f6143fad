package config

import (
	"testing"
	"time"
)

func TestSchedulerConfigWithDefaults(t *testing.T) {
	cfg := SchedulerConfig{}.WithDefaults()
	if cfg.FetchInterval != time.Minute {
		t.Fatalf("expected default fetch interval, got %v", cfg.FetchInterval)
	}
	if cfg.ApplyInterval != time.Minute {
		t.Fatalf("expected default apply interval, got %v", cfg.ApplyInterval)
	}
	if cfg.MaxDocuments != 25 {
		t.Fatalf("expected default max documents, got %d", cfg.MaxDocuments)
	}

	custom := SchedulerConfig{
		FetchInterval: 10 * time.Second,
		ApplyInterval: 15 * time.Second,
		MaxDocuments:  5,
	}.WithDefaults()
	if custom.FetchInterval != 10*time.Second || custom.ApplyInterval != 15*time.Second || custom.MaxDocuments != 5 {
		t.Fatalf("expected explicit values to survive, got %+v", custom)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9191")
	t.Setenv("SCHEDULER_FETCH_INTERVAL", "30s")
	t.Setenv("SCHEDULER_MAX_DOCUMENTS", "7")
	t.Setenv("TRACING_ENABLED", "yes")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "not-a-number")

	cfg := Load()
	if cfg.HTTPAddr != ":9191" {
		t.Fatalf("expected overridden addr, got %s", cfg.HTTPAddr)
	}
	if cfg.Scheduler.FetchInterval != 30*time.Second {
		t.Fatalf("expected overridden interval, got %v", cfg.Scheduler.FetchInterval)
	}
	if cfg.Scheduler.MaxDocuments != 7 {
		t.Fatalf("expected overridden max documents, got %d", cfg.Scheduler.MaxDocuments)
	}
	if !cfg.TracingEnabled {
		t.Fatal("expected tracing enabled")
	}
	if cfg.DBMaxOpenConn != 20 {
		t.Fatalf("expected bad int to fall back to default, got %d", cfg.DBMaxOpenConn)
	}
}
