package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadWithNoFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPAddr != "localhost:9000" {
		t.Fatalf("UDPAddr = %q, want default", cfg.UDPAddr)
	}
	if cfg.Server.TaskLifetimeMS != 10_000 {
		t.Fatalf("TaskLifetimeMS = %d, want 10000", cfg.Server.TaskLifetimeMS)
	}
}

func TestLoadFromExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "udp_addr: \"0.0.0.0:5000\"\nserver:\n  max_sessions: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPAddr != "0.0.0.0:5000" {
		t.Fatalf("UDPAddr = %q, want 0.0.0.0:5000", cfg.UDPAddr)
	}
	if cfg.Server.MaxSessions != 10 {
		t.Fatalf("MaxSessions = %d, want 10", cfg.Server.MaxSessions)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	os.Setenv("CALC_LOG_LEVEL", "debug")
	defer os.Unsetenv("CALC_LOG_LEVEL")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestTargetCompleteEnvOverride(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	os.Setenv("TARGET_COMPLETE", "42")
	defer os.Unsetenv("TARGET_COMPLETE")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.TargetComplete != 42 || !cfg.Server.ExitOnComplete {
		t.Fatalf("TargetComplete = %d ExitOnComplete = %v, want 42/true", cfg.Server.TargetComplete, cfg.Server.ExitOnComplete)
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected validation error for bad log level")
	}
}

func TestValidateRejectsEmptyRetransmitSchedule(t *testing.T) {
	cfg := Default()
	cfg.Server.RetransmitScheduleMS = nil
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected validation error for empty retransmit schedule")
	}
}
