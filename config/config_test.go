package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nomade_config.json")
	prev := configFilePath
	configFilePath = path
	t.Cleanup(func() { configFilePath = prev })
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	useTempConfig(t)
	t.Setenv("NOMADE_DB", "")
	t.Setenv("NOMADE_INVENTORY_MANAGER", "")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.DatabasePath != "./nomade.db" || c.ListenAddr != "127.0.0.1:8080" || c.CSVEncoding != "utf-8" {
		t.Errorf("defaults = %+v", c)
	}
	if c.InventoryManager {
		t.Error("InventoryManager should default to false")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := useTempConfig(t)
	t.Setenv("NOMADE_DB", "")
	t.Setenv("NOMADE_INVENTORY_MANAGER", "")

	if err := SaveConfig(Config{DatabasePath: "/data/x.db", InventoryManager: true}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.DatabasePath != "/data/x.db" || !c.InventoryManager {
		t.Errorf("loaded = %+v", c)
	}
	if c.SnapshotPath != "./snapshot.json" {
		t.Errorf("SnapshotPath = %q, want default", c.SnapshotPath)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	useTempConfig(t)
	t.Setenv("NOMADE_DB", ":memory:")
	t.Setenv("NOMADE_INVENTORY_MANAGER", "true")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.DatabasePath != ":memory:" || !c.InventoryManager {
		t.Errorf("env overrides not applied: %+v", c)
	}

	ok, err := Rights{}.InventoryManagerRight(context.Background())
	if err != nil || !ok {
		t.Errorf("InventoryManagerRight = %v, %v, want true", ok, err)
	}
}

func TestRights_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Rights{}).InventoryManagerRight(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
