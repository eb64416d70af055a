package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	Inherited       = "inherited"
	ProfileSpecific = "profile-specific"
	BuiltIn         = "built-in"
)

type DefinitionsConfig struct {
	Microphones []MicrophoneDefinition `mapstructure:"microphones" yaml:"microphones"`
}

// MicrophoneDefinition is a named audio source profiles can reference
type MicrophoneDefinition struct {
	ID               string `mapstructure:"id" yaml:"id"`
	Name             string `mapstructure:"name" yaml:"name"`
	Source           string `mapstructure:"source" yaml:"source"`
	Channels         int    `mapstructure:"channels" yaml:"channels"`
	EchoCancellation bool   `mapstructure:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression" yaml:"noise_suppression"`
}

// MicrophoneReference selects a microphone definition with optional overrides
type MicrophoneReference struct {
	Ref              string `mapstructure:"ref" yaml:"ref"`
	Disabled         bool   `mapstructure:"disabled" yaml:"disabled"`
	Channels         *int   `mapstructure:"channels,omitempty" yaml:"channels,omitempty"`
	EchoCancellation *bool  `mapstructure:"echo_cancellation,omitempty" yaml:"echo_cancellation,omitempty"`
	NoiseSuppression *bool  `mapstructure:"noise_suppression,omitempty" yaml:"noise_suppression,omitempty"`
}

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
}

type RootConfig struct {
	ActiveConfig             string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals                  *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Definitions              *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs                  map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
	SupportedVideoExtensions []string                  `mapstructure:"supported_video_extensions" yaml:"supported_video_extensions"`
}

// Config is a resolved profile
type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Encoding EncodingConfig `mapstructure:"encoding" yaml:"encoding"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type CaptureConfig struct {
	Backend    string           `mapstructure:"backend" yaml:"backend"` // "ffmpeg", "browser", "auto"
	Display    string           `mapstructure:"display" yaml:"display"`
	FrameRate  int              `mapstructure:"frame_rate" yaml:"frame_rate"`
	Microphone MicrophoneConfig `mapstructure:"microphone" yaml:"microphone"`
}

type MicrophoneConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	Name             string `mapstructure:"name" yaml:"name,omitempty"`
	Source           string `mapstructure:"source" yaml:"source"`
	Channels         int    `mapstructure:"channels" yaml:"channels"`
	EchoCancellation bool   `mapstructure:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression" yaml:"noise_suppression"`
}

type EncodingConfig struct {
	Container  string `mapstructure:"container" yaml:"container"`
	VideoCodec string `mapstructure:"video_codec" yaml:"video_codec"`
	AudioCodec string `mapstructure:"audio_codec" yaml:"audio_codec"`
}

type SessionConfig struct {
	Countdown    int    `mapstructure:"countdown" yaml:"countdown"`
	DeletePrompt string `mapstructure:"delete_prompt" yaml:"delete_prompt"`
	ReplayPrompt string `mapstructure:"replay_prompt" yaml:"replay_prompt"`
}

type BrowserConfig struct {
	Bin           string `mapstructure:"bin" yaml:"bin"`
	Headless      bool   `mapstructure:"headless" yaml:"headless"`
	CaptureSource string `mapstructure:"capture_source" yaml:"capture_source"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	TempDir   string `mapstructure:"temp_directory" yaml:"temp_directory"`
}

// ConfigProfile is a profile as written in the file. Pointers distinguish unset from zero.
type ConfigProfile struct {
	Capture struct {
		Backend    string               `mapstructure:"backend" yaml:"backend"`
		Display    string               `mapstructure:"display" yaml:"display"`
		FrameRate  int                  `mapstructure:"frame_rate" yaml:"frame_rate"`
		Microphone *MicrophoneReference `mapstructure:"microphone,omitempty" yaml:"microphone,omitempty"`
	} `mapstructure:"capture" yaml:"capture"`
	Encoding EncodingConfig `mapstructure:"encoding" yaml:"encoding"`
	Session  struct {
		Countdown    *int   `mapstructure:"countdown,omitempty" yaml:"countdown,omitempty"`
		DeletePrompt string `mapstructure:"delete_prompt" yaml:"delete_prompt"`
		ReplayPrompt string `mapstructure:"replay_prompt" yaml:"replay_prompt"`
	} `mapstructure:"session" yaml:"session"`
	Browser struct {
		Bin           string `mapstructure:"bin" yaml:"bin"`
		Headless      *bool  `mapstructure:"headless,omitempty" yaml:"headless,omitempty"`
		CaptureSource string `mapstructure:"capture_source" yaml:"capture_source"`
	} `mapstructure:"browser" yaml:"browser"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

// InheritanceInfo records where each resolved value came from
type InheritanceInfo struct {
	Capture struct {
		Backend    string
		Display    string
		FrameRate  string
		Microphone string
	}
	Encoding struct {
		Container  string
		VideoCodec string
		AudioCodec string
	}
	Session struct {
		Countdown string
		Prompts   string
	}
	Browser struct {
		Bin           string
		Headless      string
		CaptureSource string
	}
	Output struct {
		Directory string
	}
}

var defaultConfig = Config{
	Capture: CaptureConfig{
		Backend:   "auto",
		FrameRate: 30,
		Microphone: MicrophoneConfig{
			Enabled:  true,
			Source:   "default",
			Channels: 2,
		},
	},
	Encoding: EncodingConfig{
		Container:  "webm",
		VideoCodec: "vp8",
		AudioCodec: "opus",
	},
	Session: SessionConfig{
		Countdown:    3,
		DeletePrompt: "Are you sure you want to Delete recording?",
		ReplayPrompt: "Are you sure you want to Restart Recording?",
	},
	Browser: BrowserConfig{
		CaptureSource: "Entire screen",
	},
	Output: OutputConfig{
		Directory: filepath.Join("~", "Videos", "ScreenCapture"),
	},
}

// Default returns the built-in configuration, used when no config file exists
func Default() *Config {
	c := defaultConfig
	c.Inheritance = builtInInheritance()
	c.Output.Directory = expandPath(c.Output.Directory)
	return &c
}

func builtInInheritance() *InheritanceInfo {
	info := &InheritanceInfo{}
	info.Capture.Backend = BuiltIn
	info.Capture.Display = BuiltIn
	info.Capture.FrameRate = BuiltIn
	info.Capture.Microphone = BuiltIn
	info.Encoding.Container = BuiltIn
	info.Encoding.VideoCodec = BuiltIn
	info.Encoding.AudioCodec = BuiltIn
	info.Session.Countdown = BuiltIn
	info.Session.Prompts = BuiltIn
	info.Browser.Bin = BuiltIn
	info.Browser.Headless = BuiltIn
	info.Browser.CaptureSource = BuiltIn
	info.Output.Directory = BuiltIn
	return info
}

// DefaultPath returns $HOME/.config/screencapture.yaml
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/screencapture.yaml")
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Built-in values sit below the default profile, which sits below the selected one
	selectedConfig := Default()
	if defaultProfile, exists := rootConfig.Configs["default"]; exists && configName != "default" {
		selectedConfig, err = applyProfile(selectedConfig, defaultProfile, rootConfig.Definitions)
		if err != nil {
			return nil, fmt.Errorf("error resolving default configuration: %w", err)
		}
		markInherited(selectedConfig.Inheritance)
	}
	selectedConfig, err = applyProfile(selectedConfig, selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Global recordings directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	if selectedConfig.Output.TempDir != "" {
		selectedConfig.Output.TempDir = expandPath(selectedConfig.Output.TempDir)
	}

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// LoadOrDefault loads configFile, falling back to built-in values when the
// default config file does not exist
func LoadOrDefault(configFile, profile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) && configFile == DefaultPath() && profile == "" {
		return Default(), nil
	}
	return LoadWithProfile(configFile, profile)
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return err
	}
	if _, exists := rootConfig.Configs[newActiveConfig]; !exists {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// markInherited flags every profile-specific value as inherited
func markInherited(info *InheritanceInfo) {
	for _, field := range []*string{
		&info.Capture.Backend, &info.Capture.Display, &info.Capture.FrameRate, &info.Capture.Microphone,
		&info.Encoding.Container, &info.Encoding.VideoCodec, &info.Encoding.AudioCodec,
		&info.Session.Countdown, &info.Session.Prompts,
		&info.Browser.Bin, &info.Browser.Headless, &info.Browser.CaptureSource,
		&info.Output.Directory,
	} {
		if *field == ProfileSpecific {
			*field = Inherited
		}
	}
}

// applyProfile overlays the values set in profile onto base
func applyProfile(base *Config, profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	result := *base
	info := *base.Inheritance
	result.Inheritance = &info

	if profile.Capture.Backend != "" {
		result.Capture.Backend = profile.Capture.Backend
		info.Capture.Backend = ProfileSpecific
	}
	if profile.Capture.Display != "" {
		result.Capture.Display = profile.Capture.Display
		info.Capture.Display = ProfileSpecific
	}
	if profile.Capture.FrameRate != 0 {
		result.Capture.FrameRate = profile.Capture.FrameRate
		info.Capture.FrameRate = ProfileSpecific
	}
	if ref := profile.Capture.Microphone; ref != nil {
		mic, err := resolveMicrophone(ref, definitions, result.Capture.Microphone)
		if err != nil {
			return nil, err
		}
		result.Capture.Microphone = mic
		info.Capture.Microphone = ProfileSpecific
	}

	if profile.Encoding.Container != "" {
		result.Encoding.Container = profile.Encoding.Container
		info.Encoding.Container = ProfileSpecific
	}
	if profile.Encoding.VideoCodec != "" {
		result.Encoding.VideoCodec = profile.Encoding.VideoCodec
		info.Encoding.VideoCodec = ProfileSpecific
	}
	if profile.Encoding.AudioCodec != "" {
		result.Encoding.AudioCodec = profile.Encoding.AudioCodec
		info.Encoding.AudioCodec = ProfileSpecific
	}

	if profile.Session.Countdown != nil {
		result.Session.Countdown = *profile.Session.Countdown
		info.Session.Countdown = ProfileSpecific
	}
	if profile.Session.DeletePrompt != "" {
		result.Session.DeletePrompt = profile.Session.DeletePrompt
		info.Session.Prompts = ProfileSpecific
	}
	if profile.Session.ReplayPrompt != "" {
		result.Session.ReplayPrompt = profile.Session.ReplayPrompt
		info.Session.Prompts = ProfileSpecific
	}

	if profile.Browser.Bin != "" {
		result.Browser.Bin = profile.Browser.Bin
		info.Browser.Bin = ProfileSpecific
	}
	if profile.Browser.Headless != nil {
		result.Browser.Headless = *profile.Browser.Headless
		info.Browser.Headless = ProfileSpecific
	}
	if profile.Browser.CaptureSource != "" {
		result.Browser.CaptureSource = profile.Browser.CaptureSource
		info.Browser.CaptureSource = ProfileSpecific
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		info.Output.Directory = ProfileSpecific
	}
	if profile.Output.TempDir != "" {
		result.Output.TempDir = profile.Output.TempDir
	}

	return &result, nil
}

// resolveMicrophone turns a reference into a microphone config. Without a ref
// only the overrides apply on top of the inherited microphone.
func resolveMicrophone(ref *MicrophoneReference, definitions *DefinitionsConfig, inherited MicrophoneConfig) (MicrophoneConfig, error) {
	if ref.Disabled {
		return MicrophoneConfig{Enabled: false}, nil
	}

	mic := inherited
	mic.Enabled = true
	if ref.Ref != "" {
		definition := findMicrophone(definitions, ref.Ref)
		if definition == nil {
			return mic, fmt.Errorf("microphone reference '%s' not found in definitions", ref.Ref)
		}
		mic = MicrophoneConfig{
			Enabled:          true,
			Name:             definition.Name,
			Source:           definition.Source,
			Channels:         definition.Channels,
			EchoCancellation: definition.EchoCancellation,
			NoiseSuppression: definition.NoiseSuppression,
		}
	}

	// Apply overrides
	if ref.Channels != nil {
		mic.Channels = *ref.Channels
	}
	if ref.EchoCancellation != nil {
		mic.EchoCancellation = *ref.EchoCancellation
	}
	if ref.NoiseSuppression != nil {
		mic.NoiseSuppression = *ref.NoiseSuppression
	}
	if mic.Channels == 0 {
		mic.Channels = 2
	}
	if mic.Source == "" {
		mic.Source = "default"
	}
	return mic, nil
}

func findMicrophone(definitions *DefinitionsConfig, id string) *MicrophoneDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Microphones {
		if definitions.Microphones[i].ID == id {
			return &definitions.Microphones[i]
		}
	}
	return nil
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// GetSupportedVideoExtensions returns the supported recording extensions from config or defaults
func GetSupportedVideoExtensions(configFile string) []string {
	defaultExtensions := []string{"webm", "mkv", "mp4"}

	if configFile == "" {
		return defaultExtensions
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return defaultExtensions
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return defaultExtensions
	}

	if len(rootConfig.SupportedVideoExtensions) == 0 {
		return defaultExtensions
	}

	return rootConfig.SupportedVideoExtensions
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("SCREENCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal drops empty maps, so a profile that inherits everything
	// (`test: {}` or `test:`) is restored from the raw section
	for name := range v.GetStringMap("configs") {
		if rootConfig.Configs == nil {
			rootConfig.Configs = make(map[string]*ConfigProfile)
		}
		if rootConfig.Configs[name] == nil {
			rootConfig.Configs[name] = &ConfigProfile{}
		}
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	// Validate that all microphone references in configs are valid
	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateMicrophoneReference(configProfile.Capture.Microphone, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section; it is optional
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Microphones {
		prefix := fmt.Sprintf("definitions.microphones[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if def.Source == "" {
			return fmt.Errorf("%s: 'source' is required", prefix)
		}
		if def.Channels < 0 || def.Channels > 8 {
			return fmt.Errorf("%s: 'channels' must be between 1 and 8, got: %d", prefix, def.Channels)
		}
	}

	return nil
}

func validateMicrophoneReference(ref *MicrophoneReference, definitions *DefinitionsConfig) error {
	if ref == nil {
		return nil
	}
	if ref.Disabled && ref.Ref != "" {
		return fmt.Errorf("capture.microphone: 'ref' cannot be combined with 'disabled'")
	}
	if ref.Ref != "" && findMicrophone(definitions, ref.Ref) == nil {
		return fmt.Errorf("capture.microphone: references undefined microphone definition '%s'", ref.Ref)
	}
	if ref.Channels != nil && (*ref.Channels < 1 || *ref.Channels > 8) {
		return fmt.Errorf("capture.microphone: channels override must be between 1 and 8, got %d", *ref.Channels)
	}
	return nil
}

// validateConfig checks a resolved configuration
func validateConfig(c *Config) error {
	switch strings.ToLower(c.Capture.Backend) {
	case "ffmpeg", "browser", "auto":
	default:
		return fmt.Errorf("capture.backend must be 'ffmpeg', 'browser' or 'auto', got: %s", c.Capture.Backend)
	}

	if c.Capture.FrameRate < 1 || c.Capture.FrameRate > 120 {
		return fmt.Errorf("capture.frame_rate must be between 1 and 120, got: %d", c.Capture.FrameRate)
	}

	if c.Capture.Microphone.Enabled && c.Capture.Microphone.Channels < 1 {
		return fmt.Errorf("capture.microphone.channels must be > 0, got: %d", c.Capture.Microphone.Channels)
	}

	if c.Session.Countdown < 0 || c.Session.Countdown > 60 {
		return fmt.Errorf("session.countdown must be between 0 and 60, got: %d", c.Session.Countdown)
	}

	switch strings.ToLower(c.Encoding.Container) {
	case "webm", "mkv", "mp4":
	default:
		return fmt.Errorf("encoding.container must be 'webm', 'mkv' or 'mp4', got: %s", c.Encoding.Container)
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}

	return nil
}
