package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/dvcapture/internal/device"
	"github.com/audiolibrelab/dvcapture/internal/naming"
)

const (
	DefaultProfile = "default"
	envPrefix      = "DVCAPTURE"
)

// Backend names accepted in discovery.backends
const (
	BackendFireWire     = "firewire"
	BackendMediaDevices = "mediadevices"
	BackendStatic       = "static"
)

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Output        OutputConfig        `mapstructure:"output" yaml:"output"`
	Discovery     DiscoveryConfig     `mapstructure:"discovery" yaml:"discovery"`
	Capture       CaptureConfig       `mapstructure:"capture" yaml:"capture"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`

	// Internal fields reported by the info command
	Profile     string           `mapstructure:"-" yaml:"-"`
	File        string           `mapstructure:"-" yaml:"-"`
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// InheritanceInfo records, per setting, whether the value came from the
// selected profile or was inherited from the default profile.
type InheritanceInfo struct {
	Settings map[string]string
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Extension string `mapstructure:"extension" yaml:"extension"`
}

type DiscoveryConfig struct {
	Backends      []string       `mapstructure:"backends" yaml:"backends"`
	PollInterval  time.Duration  `mapstructure:"poll_interval" yaml:"poll_interval"`
	WatchPaths    []string       `mapstructure:"watch_paths" yaml:"watch_paths"`
	Capability    string         `mapstructure:"capability" yaml:"capability"`
	Tokens        []string       `mapstructure:"tokens" yaml:"tokens"`
	FireWireRoot  string         `mapstructure:"firewire_root" yaml:"firewire_root"`
	StaticSources []StaticSource `mapstructure:"static_sources" yaml:"static_sources,omitempty"`
}

// StaticSource declares a fixed device, typically a DV file replayed as if
// it came from tape
type StaticSource struct {
	ID           string `mapstructure:"id" yaml:"id"`
	Name         string `mapstructure:"name" yaml:"name"`
	Manufacturer string `mapstructure:"manufacturer" yaml:"manufacturer,omitempty"`
	Path         string `mapstructure:"path" yaml:"path"`
}

type CaptureConfig struct {
	FFmpeg      string        `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	MinFileSize int64         `mapstructure:"min_file_size" yaml:"min_file_size"`
}

type NotificationsConfig struct {
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`
}

// IsEnabled defaults to true when unset
func (n NotificationsConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultPath returns $HOME/.config/dvcapture.yaml
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "dvcapture.yaml")
}

// Default returns the built-in configuration
func Default() *Config {
	enabled := true
	return &Config{
		Output: OutputConfig{
			Directory: "~/Movies/MiniDV",
			Prefix:    naming.DefaultPrefix,
			Extension: naming.DefaultExtension,
		},
		Discovery: DiscoveryConfig{
			Backends:     []string{BackendFireWire},
			PollInterval: 2 * time.Second,
			WatchPaths:   []string{"/dev"},
			Capability:   string(device.MediaMuxed),
			Tokens:       append([]string(nil), device.DefaultTokens...),
			FireWireRoot: device.DefaultFireWireRoot,
		},
		Capture: CaptureConfig{
			FFmpeg:      "ffmpeg",
			StopTimeout: 10 * time.Second,
			MinFileSize: 1024,
		},
		Notifications: NotificationsConfig{Enabled: &enabled},
		Server:        ServerConfig{Port: "8080"},
		Profile:       DefaultProfile,
	}
}

// Load reads configFile and resolves profile (or the file's active_config)
// merged over the default profile and the built-in defaults. A missing file
// yields the built-in defaults.
func Load(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}

	var cfg *Config
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if profile != "" && profile != DefaultProfile {
			return nil, fmt.Errorf("configuration profile '%s' not found: %s does not exist", profile, configFile)
		}
		cfg = Default()
	} else {
		root, err := ReadRoot(configFile)
		if err != nil {
			return nil, err
		}
		cfg, err = resolveProfile(root, profile)
		if err != nil {
			return nil, err
		}
		cfg.File = configFile
	}

	applyEnv(cfg)
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Output.Extension = strings.TrimPrefix(cfg.Output.Extension, ".")
	for i, p := range cfg.Discovery.WatchPaths {
		cfg.Discovery.WatchPaths[i] = expandPath(p)
	}
	for i, s := range cfg.Discovery.StaticSources {
		cfg.Discovery.StaticSources[i].Path = expandPath(s.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ReadRoot parses the whole configuration file without resolving a profile
func ReadRoot(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(root.Configs) == 0 {
		return nil, fmt.Errorf("config file %s has no 'configs' section", configFile)
	}
	return &root, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	configs := v.GetStringMap("configs")
	if _, ok := configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

func resolveProfile(root *RootConfig, profile string) (*Config, error) {
	configName := profile
	if configName == "" {
		configName = root.ActiveConfig
	}
	if configName == "" {
		configName = DefaultProfile
	}

	selected, exists := root.Configs[configName]
	if !exists || selected == nil {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// built-in defaults, then the file's default profile, then the selected one
	base := Default()
	if configName != DefaultProfile {
		if defaults, ok := root.Configs[DefaultProfile]; ok && defaults != nil {
			base = mergeConfigs(base, defaults)
		}
	}
	result := mergeConfigs(base, selected)
	result.Profile = configName
	return result, nil
}

// mergeConfigs implements the "Selection & Fallback" model: every setting
// the profile leaves empty falls back to base.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{Settings: make(map[string]string)}}
	if base != nil {
		result.Output = base.Output
		result.Discovery = base.Discovery
		result.Capture = base.Capture
		result.Notifications = base.Notifications
		result.Server = base.Server
		result.Profile = base.Profile
	}
	if profile == nil {
		return result
	}

	track := func(key string, set bool) {
		if set {
			result.Inheritance.Settings[key] = "profile-specific"
		} else {
			result.Inheritance.Settings[key] = "inherited"
		}
	}
	pickString := func(key string, dst *string, v string) {
		track(key, v != "")
		if v != "" {
			*dst = v
		}
	}
	pickStrings := func(key string, dst *[]string, v []string) {
		track(key, len(v) > 0)
		if len(v) > 0 {
			*dst = append([]string(nil), v...)
		}
	}
	pickDuration := func(key string, dst *time.Duration, v time.Duration) {
		track(key, v != 0)
		if v != 0 {
			*dst = v
		}
	}

	pickString("output.directory", &result.Output.Directory, profile.Output.Directory)
	pickString("output.prefix", &result.Output.Prefix, profile.Output.Prefix)
	pickString("output.extension", &result.Output.Extension, profile.Output.Extension)

	pickStrings("discovery.backends", &result.Discovery.Backends, profile.Discovery.Backends)
	pickDuration("discovery.poll_interval", &result.Discovery.PollInterval, profile.Discovery.PollInterval)
	pickStrings("discovery.watch_paths", &result.Discovery.WatchPaths, profile.Discovery.WatchPaths)
	pickString("discovery.capability", &result.Discovery.Capability, profile.Discovery.Capability)
	pickStrings("discovery.tokens", &result.Discovery.Tokens, profile.Discovery.Tokens)
	pickString("discovery.firewire_root", &result.Discovery.FireWireRoot, profile.Discovery.FireWireRoot)
	track("discovery.static_sources", len(profile.Discovery.StaticSources) > 0)
	if len(profile.Discovery.StaticSources) > 0 {
		result.Discovery.StaticSources = append([]StaticSource(nil), profile.Discovery.StaticSources...)
	}

	pickString("capture.ffmpeg", &result.Capture.FFmpeg, profile.Capture.FFmpeg)
	pickDuration("capture.stop_timeout", &result.Capture.StopTimeout, profile.Capture.StopTimeout)
	track("capture.min_file_size", profile.Capture.MinFileSize != 0)
	if profile.Capture.MinFileSize != 0 {
		result.Capture.MinFileSize = profile.Capture.MinFileSize
	}

	// an explicit false must win over an inherited true
	track("notifications.enabled", profile.Notifications.Enabled != nil)
	if profile.Notifications.Enabled != nil {
		enabled := *profile.Notifications.Enabled
		result.Notifications.Enabled = &enabled
	}

	pickString("server.port", &result.Server.Port, profile.Server.Port)

	return result
}

// applyEnv lets DVCAPTURE_OUTPUT_DIRECTORY, DVCAPTURE_SERVER_PORT and
// DVCAPTURE_CAPTURE_FFMPEG override the resolved profile
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if dir := v.GetString("output_directory"); dir != "" {
		cfg.Output.Directory = dir
	}
	if port := v.GetString("server_port"); port != "" {
		cfg.Server.Port = port
	}
	if bin := v.GetString("capture_ffmpeg"); bin != "" {
		cfg.Capture.FFmpeg = bin
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks the resolved configuration
func (c *Config) Validate() error {
	if err := validateOutput(c.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := validateDiscovery(c.Discovery); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := validateCapture(c.Capture); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := validatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	if o.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if o.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if strings.ContainsAny(o.Prefix, `/\`) {
		return fmt.Errorf("prefix '%s' must not contain path separators", o.Prefix)
	}
	if o.Extension == "" {
		return fmt.Errorf("extension is required")
	}
	if strings.ContainsAny(o.Extension, `./\`) {
		return fmt.Errorf("invalid extension '%s'", o.Extension)
	}
	return nil
}

func validateDiscovery(d DiscoveryConfig) error {
	if len(d.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	for _, b := range d.Backends {
		switch b {
		case BackendFireWire, BackendMediaDevices:
		case BackendStatic:
			if len(d.StaticSources) == 0 {
				return fmt.Errorf("backend 'static' requires static_sources")
			}
		default:
			return fmt.Errorf("unknown backend '%s' (must be 'firewire', 'mediadevices' or 'static')", b)
		}
	}

	switch device.MediaKind(d.Capability) {
	case device.MediaVideo, device.MediaAudio, device.MediaMuxed:
	default:
		return fmt.Errorf("unknown capability '%s' (must be 'video', 'audio' or 'muxed')", d.Capability)
	}

	if len(d.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}
	for i, tok := range d.Tokens {
		if strings.TrimSpace(tok) == "" {
			return fmt.Errorf("token[%d] is empty", i)
		}
	}

	if d.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", d.PollInterval)
	}

	for i, s := range d.StaticSources {
		if s.ID == "" {
			return fmt.Errorf("static_sources[%d]: 'id' is required", i)
		}
		if s.Path == "" {
			return fmt.Errorf("static_sources[%d]: 'path' is required", i)
		}
	}
	return nil
}

func validateCapture(c CaptureConfig) error {
	if c.FFmpeg == "" {
		return fmt.Errorf("ffmpeg is required")
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout)
	}
	if c.MinFileSize < 0 {
		return fmt.Errorf("min_file_size must not be negative")
	}
	return nil
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port '%s'", port)
	}
	return nil
}
