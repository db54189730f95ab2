package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected built-in defaults to be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Discovery.Backends = []string{"usb"} },
			wantErr: "unknown backend 'usb'",
		},
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Discovery.Backends = nil },
			wantErr: "at least one backend",
		},
		{
			name:    "static backend without sources",
			mutate:  func(c *Config) { c.Discovery.Backends = []string{BackendStatic} },
			wantErr: "requires static_sources",
		},
		{
			name:    "unknown capability",
			mutate:  func(c *Config) { c.Discovery.Capability = "subtitles" },
			wantErr: "unknown capability 'subtitles'",
		},
		{
			name:    "no tokens",
			mutate:  func(c *Config) { c.Discovery.Tokens = []string{} },
			wantErr: "at least one token",
		},
		{
			name:    "blank token",
			mutate:  func(c *Config) { c.Discovery.Tokens = []string{"DV", "  "} },
			wantErr: "token[1] is empty",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Discovery.PollInterval = 0 },
			wantErr: "poll_interval must be positive",
		},
		{
			name:    "prefix with separator",
			mutate:  func(c *Config) { c.Output.Prefix = "tapes/MiniDV" },
			wantErr: "must not contain path separators",
		},
		{
			name:    "extension with dot",
			mutate:  func(c *Config) { c.Output.Extension = "tar.gz" },
			wantErr: "invalid extension",
		},
		{
			name:    "missing directory",
			mutate:  func(c *Config) { c.Output.Directory = "" },
			wantErr: "directory is required",
		},
		{
			name:    "negative stop timeout",
			mutate:  func(c *Config) { c.Capture.StopTimeout = -time.Second },
			wantErr: "stop_timeout must be positive",
		},
		{
			name:    "empty ffmpeg",
			mutate:  func(c *Config) { c.Capture.FFmpeg = "" },
			wantErr: "ffmpeg is required",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = "70000" },
			wantErr: "invalid port '70000'",
		},
		{
			name:    "port not numeric",
			mutate:  func(c *Config) { c.Server.Port = "http" },
			wantErr: "invalid port 'http'",
		},
		{
			name: "static source without path",
			mutate: func(c *Config) {
				c.Discovery.Backends = []string{BackendStatic}
				c.Discovery.StaticSources = []StaticSource{{ID: "demo"}}
			},
			wantErr: "static_sources[0]: 'path' is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	configFile := createTempConfig(t, `
configs:
  default:
    discovery:
      backends: [bluetooth]
`)

	_, err := Load(configFile, "")
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Expected wrapped validation error, got: %v", err)
	}
}

func TestReadRoot_MissingConfigsSection(t *testing.T) {
	configFile := createTempConfig(t, "active_config: default\n")

	if _, err := ReadRoot(configFile); err == nil {
		t.Errorf("Expected error for file without configs section")
	}
}

func TestReadRoot_MalformedYAML(t *testing.T) {
	configFile := createTempConfig(t, "configs: [unterminated\n")

	if _, err := ReadRoot(configFile); err == nil {
		t.Errorf("Expected parse error")
	}
}

// Helper function to create temporary config files
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "dvcapture-test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpfile.Name()
}
