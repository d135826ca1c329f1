package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"imgdash/internal/cli"
	"imgdash/internal/logging"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imgdash.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil, envFrom(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Root != "files" || cfg.Host != "127.0.0.1" || cfg.Port != 5000 {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.Debounce != 300*time.Millisecond {
		t.Fatalf("expected 300ms debounce, got %s", cfg.Debounce)
	}
	if cfg.MaxWatches != 4096 || cfg.SelectRate != 10 {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
	for _, key := range layeredKeys {
		if cfg.Sources[key] != cli.SourceDefault {
			t.Fatalf("expected %s from default, got %s", key, cfg.Sources[key])
		}
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
root = "gallery"
port = 6000
host = "0.0.0.0"
debounce = 450
allowed_origins = ["http://a.test", "http://b.test"]
select-rate = 2.5
`)
	env := envFrom(map[string]string{
		"IMGDASH_CONFIG": path,
		"IMGDASH_PORT":   "7000",
		"IMGDASH_QUIET":  "true",
	})

	cfg, err := loadConfig([]string{"--host", "localhost"}, env)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.ConfigPath != path {
		t.Fatalf("expected config path from env, got %q", cfg.ConfigPath)
	}
	checks := []struct {
		key    string
		got    any
		want   any
		source cli.Source
	}{
		{"root", cfg.Root, "gallery", cli.SourceFile},
		{"port", cfg.Port, 7000, cli.SourceEnv},
		{"host", cfg.Host, "localhost", cli.SourceFlag},
		{"debounce", cfg.Debounce, 450 * time.Millisecond, cli.SourceFile},
		{"allowed-origins", cfg.AllowedOrigins, []string{"http://a.test", "http://b.test"}, cli.SourceFile},
		{"select-rate", cfg.SelectRate, 2.5, cli.SourceFile},
		{"quiet", cfg.Quiet, true, cli.SourceEnv},
		{"max-watches", cfg.MaxWatches, 4096, cli.SourceDefault},
	}
	for _, check := range checks {
		if !reflect.DeepEqual(check.got, check.want) {
			t.Fatalf("%s: expected %v, got %v", check.key, check.want, check.got)
		}
		if cfg.Sources[check.key] != check.source {
			t.Fatalf("%s: expected source %s, got %s", check.key, check.source, cfg.Sources[check.key])
		}
	}
	if cfg.LogLevel != logging.LevelWarning {
		t.Fatalf("expected quiet to select warning level, got %s", cfg.LogLevel)
	}
}

func TestLoadConfigFlagPathOverridesEnvPath(t *testing.T) {
	flagPath := writeConfigFile(t, "port = 6001\n")
	env := envFrom(map[string]string{"IMGDASH_CONFIG": filepath.Join(t.TempDir(), "missing.toml")})

	cfg, err := loadConfig([]string{"--config", flagPath}, env)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 6001 {
		t.Fatalf("expected port from flag config, got %d", cfg.Port)
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	_, err := loadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}, envFrom(nil))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadConfigReportsUnknownFileKeys(t *testing.T) {
	path := writeConfigFile(t, "port = 5001\ncolour = \"blue\"\n")
	cfg, err := loadConfig([]string{"--config", path}, envFrom(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(cfg.UnknownConfigKeys, []string{"colour"}) {
		t.Fatalf("unexpected unknown keys %v", cfg.UnknownConfigKeys)
	}
}

func TestLoadConfigLogLevel(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want logging.Level
	}{
		{name: "verbose", args: []string{"--verbose"}, want: logging.LevelDebug},
		{name: "quiet", args: []string{"--quiet"}, want: logging.LevelWarning},
		{name: "verbose wins", args: []string{"--verbose", "--quiet"}, want: logging.LevelDebug},
		{name: "explicit", args: []string{"--verbose", "--log-level", "error"}, want: logging.LevelError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig(tc.args, envFrom(nil))
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if cfg.LogLevel != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, cfg.LogLevel)
			}
		})
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{name: "port range", args: []string{"--port", "70000"}, want: "invalid port"},
		{name: "env port", env: map[string]string{"IMGDASH_PORT": "abc"}, want: "invalid env value for port"},
		{name: "debounce", args: []string{"--debounce", "0"}, want: "invalid debounce"},
		{name: "debounce syntax", args: []string{"--debounce", "soon"}, want: "debounce"},
		{name: "max watches", args: []string{"--max-watches", "0"}, want: "invalid max-watches"},
		{name: "select rate", args: []string{"--select-rate", "-1"}, want: "invalid select-rate"},
		{name: "log level", args: []string{"--log-level", "loud"}, want: "invalid log-level"},
		{name: "empty root", args: []string{"--root", " "}, want: "invalid root"},
		{name: "unknown flag", args: []string{"--shell", "bash"}, want: "flag provided but not defined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig(tc.args, envFrom(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfigHelpAndVersion(t *testing.T) {
	if _, err := loadConfig([]string{"--help"}, envFrom(nil)); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	cfg, err := loadConfig([]string{"-v"}, envFrom(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.ShowVersion {
		t.Fatalf("expected ShowVersion")
	}
}

func TestMillisDuration(t *testing.T) {
	var value millisDuration
	if err := value.Set("250"); err != nil || time.Duration(value) != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s (%v)", value.String(), err)
	}
	if err := value.Set("1.5s"); err != nil || time.Duration(value) != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s (%v)", value.String(), err)
	}
}

func TestPrintHelpMentionsEnvironment(t *testing.T) {
	var out bytes.Buffer
	printHelp(&out, defaultConfigValues())
	text := out.String()
	for _, want := range []string{"Usage: imgdash", "IMGDASH_ROOT", "IMGDASH_DEBOUNCE", "--config PATH", "default: 5000"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected help to contain %q:\n%s", want, text)
		}
	}
}

func TestLogStartupConfigRecordsSources(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, nil)
	cfg, err := loadConfig([]string{"--port", "5050"}, envFrom(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logStartupConfig(logger, cfg)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Context["port"] != "5050 (flag)" {
		t.Fatalf("unexpected port field %q", entries[0].Context["port"])
	}
	if entries[0].Context["root"] != "files (default)" {
		t.Fatalf("unexpected root field %q", entries[0].Context["root"])
	}
}
