package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/offlinefirst/tinymacro/pkg/hotkey"
	"github.com/offlinefirst/tinymacro/pkg/player"
)

// DefaultFileName is read from the working directory when no path is given.
const DefaultFileName = "tinymacro.yaml"

// Config captures the user-adjustable knobs for recording and playback.
type Config struct {
	Recorder RecorderConfig `yaml:"recorder" toml:"recorder"`
	Player   PlayerConfig   `yaml:"player" toml:"player"`
	Hotkeys  HotkeysConfig  `yaml:"hotkeys" toml:"hotkeys"`
	Paths    PathsConfig    `yaml:"paths" toml:"paths"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Server   ServerConfig   `yaml:"server" toml:"server"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-" toml:"-"`
}

// RecorderConfig tunes capture.
type RecorderConfig struct {
	// MoveMinIntervalMS throttles pointer moves; 0 keeps only the
	// same-position check.
	MoveMinIntervalMS int  `yaml:"move_min_interval_ms" toml:"move_min_interval_ms"`
	SquelchMS         int  `yaml:"squelch_ms" toml:"squelch_ms"`
	TrackMouse        bool `yaml:"track_mouse" toml:"track_mouse"`
	TrackKeys         bool `yaml:"track_keys" toml:"track_keys"`
}

// PlayerConfig holds the default playback settings.
type PlayerConfig struct {
	Speed        float64 `yaml:"speed" toml:"speed"`
	Loops        int     `yaml:"loops" toml:"loops"`
	JitterPixels int     `yaml:"jitter_pixels" toml:"jitter_pixels"`
}

// HotkeysConfig names the key bound to each control action. An empty value
// leaves the action unbound.
type HotkeysConfig struct {
	Record string `yaml:"record" toml:"record"`
	Play   string `yaml:"play" toml:"play"`
	Save   string `yaml:"save" toml:"save"`
	Open   string `yaml:"open" toml:"open"`
	Stop   string `yaml:"stop" toml:"stop"`
}

// PathsConfig controls filesystem locations used by the CLI.
type PathsConfig struct {
	Library   string `yaml:"library" toml:"library"`
	MacrosDir string `yaml:"macros_dir" toml:"macros_dir"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Recorder: RecorderConfig{
			MoveMinIntervalMS: 10,
			SquelchMS:         180,
			TrackMouse:        true,
			TrackKeys:         true,
		},
		Player: PlayerConfig{
			Speed: 1.0,
			Loops: 1,
		},
		Hotkeys: HotkeysConfig{
			Record: "F3",
			Play:   "F7",
			Save:   "F4",
			Open:   "F6",
			Stop:   "Esc",
		},
		Paths: PathsConfig{
			Library:   "favorites.json",
			MacrosDir: "macros",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./tinymacro.yaml but
// tolerates a missing file. Files ending in .toml are parsed as TOML.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	data, err := os.ReadFile(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return cfg, fmt.Errorf("config file %q not found", candidate)
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}

	if err := decode(candidate, data, &cfg); err != nil {
		return cfg, err
	}
	cfg.Source = candidate
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if c.Recorder.MoveMinIntervalMS < 0 {
		return errors.New("recorder.move_min_interval_ms must not be negative")
	}
	if c.Recorder.SquelchMS < 0 {
		return errors.New("recorder.squelch_ms must not be negative")
	}

	if c.Player.Speed <= 0 {
		return errors.New("player.speed must be positive")
	}
	if c.Player.Loops < 1 {
		return errors.New("player.loops must be at least 1")
	}
	if c.Player.JitterPixels < 0 {
		return errors.New("player.jitter_pixels must not be negative")
	}
	if c.Player.JitterPixels > player.MaxJitterPixels {
		return fmt.Errorf("player.jitter_pixels must not exceed %d", player.MaxJitterPixels)
	}

	if _, err := c.Bindings(); err != nil {
		return fmt.Errorf("hotkeys: %w", err)
	}

	if strings.TrimSpace(c.Paths.Library) == "" {
		return errors.New("paths.library must not be empty")
	}
	if strings.TrimSpace(c.Paths.MacrosDir) == "" {
		return errors.New("paths.macros_dir must not be empty")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}

	return nil
}

// Bindings parses the configured hotkey labels.
func (c Config) Bindings() (hotkey.Bindings, error) {
	return hotkey.ParseBindings(hotkey.Labels{
		Record: c.Hotkeys.Record,
		Play:   c.Hotkeys.Play,
		Save:   c.Hotkeys.Save,
		Open:   c.Hotkeys.Open,
		Stop:   c.Hotkeys.Stop,
	})
}

// MoveMinInterval returns the recorder throttle. A negative duration
// disables the interval check.
func (c Config) MoveMinInterval() time.Duration {
	if c.Recorder.MoveMinIntervalMS == 0 {
		return -1
	}
	return time.Duration(c.Recorder.MoveMinIntervalMS) * time.Millisecond
}

// Squelch returns how long key capture pauses after a control key. A
// negative duration disables the pause.
func (c Config) Squelch() time.Duration {
	if c.Recorder.SquelchMS == 0 {
		return -1
	}
	return time.Duration(c.Recorder.SquelchMS) * time.Millisecond
}

// MacroPath resolves a macro file name against paths.macros_dir. Absolute
// and explicitly relative paths are returned unchanged.
func (c Config) MacroPath(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "macro.json"
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(c.Paths.MacrosDir, name)
}

func (c *Config) normalize() {
	defaults := Default()

	c.Paths.Library = filepath.Clean(strings.TrimSpace(c.Paths.Library))
	c.Paths.MacrosDir = filepath.Clean(strings.TrimSpace(c.Paths.MacrosDir))
	if c.Paths.Library == "." || c.Paths.Library == "" {
		c.Paths.Library = defaults.Paths.Library
	}
	if c.Paths.MacrosDir == "." || c.Paths.MacrosDir == "" {
		c.Paths.MacrosDir = defaults.Paths.MacrosDir
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if level, err := NormalizeLogLevel(c.Logging.Level); err == nil {
		c.Logging.Level = level
	}
	if format, err := NormalizeFormat(c.Logging.Format); err == nil {
		c.Logging.Format = format
	}

	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}

	c.Hotkeys.Record = strings.TrimSpace(c.Hotkeys.Record)
	c.Hotkeys.Play = strings.TrimSpace(c.Hotkeys.Play)
	c.Hotkeys.Save = strings.TrimSpace(c.Hotkeys.Save)
	c.Hotkeys.Open = strings.TrimSpace(c.Hotkeys.Open)
	c.Hotkeys.Stop = strings.TrimSpace(c.Hotkeys.Stop)
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
