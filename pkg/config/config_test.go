package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type TestConfig struct {
	Relay struct {
		URL     string `yaml:"url" json:"url"`
		Subject string `yaml:"subject" json:"subject"`
	} `yaml:"relay" json:"relay"`
	Workload struct {
		Tasks     int           `yaml:"tasks" json:"tasks"`
		TaskDelay time.Duration `yaml:"task_delay" json:"task_delay"`
		Assets    []string      `yaml:"assets" json:"assets"`
		Verbose   bool          `yaml:"verbose" json:"verbose"`
	} `yaml:"workload" json:"workload"`
}

const testYAML = `
relay:
  url: "nats://localhost:4222"
  subject: "assets.loaded"
workload:
  tasks: 25
  task_delay: 15ms
  assets: [mesh, texture]
`

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := createTempFile(t, "test.yaml", testYAML)

	var cfg TestConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Relay.URL != "nats://localhost:4222" {
		t.Errorf("Relay.URL = %v, want nats://localhost:4222", cfg.Relay.URL)
	}
	if cfg.Workload.Tasks != 25 {
		t.Errorf("Workload.Tasks = %v, want 25", cfg.Workload.Tasks)
	}
	if cfg.Workload.TaskDelay != 15*time.Millisecond {
		t.Errorf("Workload.TaskDelay = %v, want 15ms", cfg.Workload.TaskDelay)
	}
	if len(cfg.Workload.Assets) != 2 {
		t.Errorf("Workload.Assets = %v, want [mesh texture]", cfg.Workload.Assets)
	}
}

func TestLoad_JSON(t *testing.T) {
	jsonContent := `{
  "relay": {"url": "nats://localhost:4222", "subject": "assets.loaded"},
  "workload": {"tasks": 25}
}`
	path := createTempFile(t, "test.json", jsonContent)

	var cfg TestConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Relay.Subject != "assets.loaded" {
		t.Errorf("Relay.Subject = %v, want assets.loaded", cfg.Relay.Subject)
	}
	if cfg.Workload.Tasks != 25 {
		t.Errorf("Workload.Tasks = %v, want 25", cfg.Workload.Tasks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg TestConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	files := map[string]string{
		"typo.yaml": "workload:\n  taskz: 3\n",
		"typo.json": `{"workload": {"taskz": 3}}`,
	}
	for name, content := range files {
		path := createTempFile(t, name, content)

		var cfg TestConfig
		err := Load(path, &cfg)
		if !errors.Is(err, ErrUnknownField) {
			t.Errorf("Load(%s) error = %v, want ErrUnknownField", name, err)
		}
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := createTempFile(t, "bad.yaml", "workload: [unclosed\n")

	var cfg TestConfig
	err := Load(path, &cfg)
	if err == nil || errors.Is(err, ErrUnknownField) {
		t.Errorf("Load() error = %v, want a decode error", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := createTempFile(t, "empty.yaml", "")

	var cfg TestConfig
	cfg.Workload.Tasks = 4
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workload.Tasks != 4 {
		t.Errorf("Workload.Tasks = %v, want 4 (untouched)", cfg.Workload.Tasks)
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := createTempFile(t, "test.yaml", testYAML)

	t.Setenv("APP_RELAY_URL", "nats://env:4222")
	t.Setenv("APP_WORKLOAD_TASKS", "90")
	t.Setenv("APP_WORKLOAD_TASK_DELAY", "2s")
	t.Setenv("APP_WORKLOAD_ASSETS", "shader, sound ,level")
	t.Setenv("APP_WORKLOAD_VERBOSE", "true")

	var cfg TestConfig
	if err := LoadWithEnv(path, "APP", &cfg); err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}

	// Environment variables should override file values
	if cfg.Relay.URL != "nats://env:4222" {
		t.Errorf("Relay.URL = %v, want nats://env:4222", cfg.Relay.URL)
	}
	if cfg.Workload.Tasks != 90 {
		t.Errorf("Workload.Tasks = %v, want 90", cfg.Workload.Tasks)
	}
	if cfg.Workload.TaskDelay != 2*time.Second {
		t.Errorf("Workload.TaskDelay = %v, want 2s", cfg.Workload.TaskDelay)
	}
	if len(cfg.Workload.Assets) != 3 || cfg.Workload.Assets[1] != "sound" {
		t.Errorf("Workload.Assets = %v, want [shader sound level]", cfg.Workload.Assets)
	}
	if !cfg.Workload.Verbose {
		t.Error("Workload.Verbose = false, want true")
	}
	// Subject should remain from file (no env override)
	if cfg.Relay.Subject != "assets.loaded" {
		t.Errorf("Relay.Subject = %v, want assets.loaded", cfg.Relay.Subject)
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	var cfg TestConfig
	if err := ApplyEnvOverrides("APP", cfg); err == nil {
		t.Error("ApplyEnvOverrides should reject a non-pointer target")
	}

	t.Setenv("APP_WORKLOAD_TASK_DELAY", "soon")
	if err := ApplyEnvOverrides("APP", &cfg); err == nil {
		t.Error("ApplyEnvOverrides should reject an invalid duration")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(t.TempDir(), name)

		var in TestConfig
		in.Relay.Subject = "assets.loaded"
		in.Workload.Tasks = 7
		if err := Save(path, &in); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}

		var out TestConfig
		if err := Load(path, &out); err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if out.Relay.Subject != in.Relay.Subject || out.Workload.Tasks != 7 {
			t.Errorf("%s: loaded %+v, want %+v", name, out, in)
		}
	}
}

func TestRequiredFields(t *testing.T) {
	var cfg TestConfig

	validator := RequiredFields("Relay.URL")
	if err := validator.Validate(&cfg); err == nil {
		t.Error("RequiredFields should fail for empty URL")
	}

	cfg.Relay.URL = "nats://localhost:4222"
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("RequiredFields should pass for valid config: %v", err)
	}
}

func TestRangeValidator(t *testing.T) {
	var cfg TestConfig
	cfg.Workload.Tasks = 5

	validator := RangeValidator("Workload.Tasks", 10, 100)
	if err := validator.Validate(&cfg); err == nil {
		t.Error("RangeValidator should fail for value below minimum")
	}

	cfg.Workload.Tasks = 50
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("RangeValidator should pass for value in range: %v", err)
	}
}

func TestRangeValidator_RejectsDuration(t *testing.T) {
	var cfg TestConfig
	if err := RangeValidator("Workload.TaskDelay", 0, 1).Validate(&cfg); err == nil {
		t.Error("RangeValidator should refuse a duration field")
	}
	if err := RangeValidator("Relay.URL", 0, 1).Validate(&cfg); err == nil {
		t.Error("RangeValidator should refuse a string field")
	}
}

func TestDurationRange(t *testing.T) {
	var cfg TestConfig
	cfg.Workload.TaskDelay = 2 * time.Second

	validator := DurationRange("Workload.TaskDelay", time.Millisecond, time.Second)
	if err := validator.Validate(&cfg); err == nil {
		t.Error("DurationRange should fail above the maximum")
	}

	cfg.Workload.TaskDelay = 500 * time.Millisecond
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("DurationRange should pass: %v", err)
	}

	cfg.Workload.TaskDelay = -time.Second
	if err := DurationRange("Workload.TaskDelay", 0, 0).Validate(&cfg); err == nil {
		t.Error("DurationRange with open max should still enforce the minimum")
	}

	if err := DurationRange("Workload.Tasks", 0, 0).Validate(&cfg); err == nil {
		t.Error("DurationRange should refuse a non-duration field")
	}
	if err := DurationRange("Workload.Missing", 0, 0).Validate(&cfg); err == nil {
		t.Error("DurationRange should fail for a missing field")
	}
}

func TestOneOfValidator(t *testing.T) {
	var cfg TestConfig
	cfg.Relay.Subject = "assets.unknown"

	validator := OneOfValidator("Relay.Subject", "assets.loaded", "assets.failed")
	if err := validator.Validate(&cfg); err == nil {
		t.Error("OneOfValidator should fail for a value outside the set")
	}

	cfg.Relay.Subject = "assets.failed"
	if err := validator.Validate(&cfg); err != nil {
		t.Errorf("OneOfValidator should pass: %v", err)
	}
}

func TestManager(t *testing.T) {
	var cfg TestConfig
	m := NewManager(&cfg, RequiredFields("Relay.Subject"))
	if err := m.Validate(); err == nil {
		t.Error("Manager.Validate should fail for empty subject")
	}

	cfg.Relay.Subject = "assets.loaded"
	m.AddValidator(RangeValidator("Workload.Tasks", 1, 10))
	if err := m.Validate(); err == nil {
		t.Error("Manager.Validate should run added validators")
	}

	cfg.Workload.Tasks = 3
	if err := m.Validate(); err != nil {
		t.Errorf("Manager.Validate failed: %v", err)
	}
	if m.Get() != &cfg {
		t.Error("Manager.Get should return the managed config")
	}
}
