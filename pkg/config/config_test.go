package config

import (
	"os"
	"path/filepath"
	"testing"

	"fpgranules/pkg/pipeline"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Run.Date = "230603"
	cfg.Run.SourceDir = "in"
	cfg.Run.DestDir = "out"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Preprocess.BoundaryBallRadius != 25 || cfg.Preprocess.SignalBallRadius != 10 {
		t.Errorf("Unexpected default ball radii %v/%v", cfg.Preprocess.BoundaryBallRadius, cfg.Preprocess.SignalBallRadius)
	}
	if cfg.Segmentation.MinArea != 400 || cfg.Segmentation.MaxArea != 3000 {
		t.Errorf("Unexpected default area window")
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected defaults plus run paths to validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Run.Extension != "tif" {
		t.Errorf("Expected default extension, got %q", cfg.Run.Extension)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()
	cfg.Run.Prominences = []int{20, 0, 80}
	cfg.Output.SQLitePath = "runs.db"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(loaded.Run.Prominences) != 3 || loaded.Run.Prominences[2] != 80 {
		t.Errorf("Prominences not preserved: %v", loaded.Run.Prominences)
	}
	if loaded.Output.SQLitePath != "runs.db" || loaded.Run.Date != "230603" {
		t.Errorf("Output settings not preserved")
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("run:\n  date: \"240101\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Run.Date != "240101" || cfg.Preprocess.Sigma != 1 {
		t.Errorf("Expected date override with default sigma, got %q / %v", cfg.Run.Date, cfg.Preprocess.Sigma)
	}

	if err := os.WriteFile(path, []byte("run: [broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing date":        func(c *Config) { c.Run.Date = " " },
		"too many":            func(c *Config) { c.Run.Prominences = []int{1, 2, 3, 4} },
		"negative prominence": func(c *Config) { c.Run.Prominences = []int{-5} },
		"bad area":            func(c *Config) { c.Segmentation.MaxArea = 10 },
		"bad accuracy":        func(c *Config) { c.Preprocess.Accuracy = 1 },
		"missing source":      func(c *Config) { c.Run.SourceDir = "" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestParseProminences(t *testing.T) {
	got, err := ParseProminences("50, 0,120")
	if err != nil {
		t.Fatalf("ParseProminences failed: %v", err)
	}
	if len(got) != 3 || got[0] != 50 || got[1] != 0 || got[2] != 120 {
		t.Errorf("Unexpected prominences %v", got)
	}
	if _, err := ParseProminences("50,abc"); err == nil {
		t.Errorf("Expected error for non-numeric prominence")
	}
}

func TestValidateUsesPipelineSlotLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Run.Prominences = make([]int, pipeline.MaxProminences)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected %d prominence slots to be accepted: %v", pipeline.MaxProminences, err)
	}
	cfg.Run.Prominences = append(cfg.Run.Prominences, 10)
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected more than %d prominence slots to be rejected", pipeline.MaxProminences)
	}
}
