package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default("slave")
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("slave", filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Network.SyncPort != 12345 {
		t.Errorf("got port %d, want default 12345", cfg.Network.SyncPort)
	}
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slave.toml")
	contents := "[network]\nmaster_ip = \"10.0.0.5\"\nsync_port = 9999\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load("slave", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Network.MasterAddr != "10.0.0.5" || cfg.Network.SyncPort != 9999 {
		t.Errorf("got %+v, want overridden network config", cfg.Network)
	}
}

func TestValidateRejectsNegativeInterval(t *testing.T) {
	cfg := Default("slave")
	cfg.Sync.SyncIntervalSeconds = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for a negative sync_interval")
	}
	if _, ok := err.(*InvalidConfiguration); !ok {
		t.Errorf("got error type %T, want *InvalidConfiguration", err)
	}
}

func TestValidateRejectsLargeOffsetBelowThreshold(t *testing.T) {
	cfg := Default("slave")
	cfg.Sync.LargeOffsetSeconds = cfg.Sync.SyncThresholdSeconds

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when large_offset_threshold does not exceed sync_threshold")
	}
}
