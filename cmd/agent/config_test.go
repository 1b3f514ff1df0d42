package main

import "testing"

func TestLoadConfigOverlaysBaseDirFlag(t *testing.T) {
	orig := baseDir
	defer func() { baseDir = orig }()

	baseDir = "/tmp/example-override"
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BaseDir != "/tmp/example-override" {
		t.Fatalf("BaseDir = %q, want override applied", cfg.BaseDir)
	}
}

func TestLoadConfigDefaultsWithoutFlagOverride(t *testing.T) {
	origBase, origPath := baseDir, configPath
	defer func() { baseDir, configPath = origBase, origPath }()

	baseDir, configPath = "", ""
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BaseDir != ".agentctl" {
		t.Fatalf("BaseDir = %q, want default", cfg.BaseDir)
	}
}
