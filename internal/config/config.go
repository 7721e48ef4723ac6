// Package config loads the moyu configuration.
//
// Configuration is layered: built-in defaults, a bundled config.yml next to
// the executable, an optional user override file and finally MOYU_*
// environment variables. The resulting Config is a plain value; nothing in the
// core mutates it after Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. MOYU_CAMERA_CONTRAST=1.3.
const EnvPrefix = "MOYU"

// ErrInvalid is wrapped by every validation error returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Camera       Camera   `mapstructure:"camera"`
	CameraIndex  int      `mapstructure:"camera_index"`
	MinFaces     int      `mapstructure:"min_faces_for_alert"`
	CooldownSecs float64  `mapstructure:"alert_cooldown_seconds"`
	Detector     Detector `mapstructure:"detector"`
	Snapshot     Snapshot `mapstructure:"snapshot"`
	WorkApp      WorkApp  `mapstructure:"work_app"`
	UI           UI       `mapstructure:"ui"`
	Log          Log      `mapstructure:"log"`
	Store        Store    `mapstructure:"store"`
	Server       Server   `mapstructure:"server"`
	MQTT         MQTT     `mapstructure:"mqtt"`
	Plugins      Plugins  `mapstructure:"plugins"`

	// SourceFiles lists the config files that were merged, in order.
	SourceFiles []string `mapstructure:"-"`
}

// Camera holds acquisition, preprocessing and filtering settings.
type Camera struct {
	MinConfidence    float64 `mapstructure:"mp_min_confidence"`
	DebounceOn       int     `mapstructure:"debounce_on_frames"`
	DebounceOff      int     `mapstructure:"debounce_off_frames"`
	MinAreaRatio     float64 `mapstructure:"min_area_ratio"`
	MaxAreaRatio     float64 `mapstructure:"max_area_ratio"`
	LowLight         float64 `mapstructure:"low_light_threshold"`
	Contrast         float64 `mapstructure:"contrast"`
	Brightness       float64 `mapstructure:"brightness"`
	HistEqualization bool    `mapstructure:"hist_equalization"`
	FrameWidth       int     `mapstructure:"frame_width"`
	FrameHeight      int     `mapstructure:"frame_height"`
	DebugDraw        bool    `mapstructure:"debug_draw"`
	LoopIntervalMs   int     `mapstructure:"loop_interval_ms"`
}

// Detector selects and configures the face detector backend.
type Detector struct {
	Backend    string `mapstructure:"backend"` // "mediapipe" or "dnn"
	ScriptPath string `mapstructure:"script_path"`
	Python     string `mapstructure:"python"`
	ModelPath  string `mapstructure:"model_path"`
	ConfigPath string `mapstructure:"config_path"`
}

// Snapshot controls where alert snapshots are written.
type Snapshot struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// WorkApp describes the applications that can be brought to the front on alert.
type WorkApp struct {
	Active  string                `mapstructure:"active"`
	Targets map[string]WorkTarget `mapstructure:"targets"`
}

// WorkTarget is one launchable work application.
type WorkTarget struct {
	WindowsCommand string   `mapstructure:"windows_command"`
	MacOSCommand   string   `mapstructure:"macos_command"`
	LinuxCommand   string   `mapstructure:"linux_command"`
	WindowKeywords []string `mapstructure:"window_keywords"`
}

// UI holds tray and notification settings.
type UI struct {
	Message             string `mapstructure:"message"`
	DisplayMilliseconds int    `mapstructure:"display_milliseconds"`
	NotificationSeconds int    `mapstructure:"tray_notification_seconds"`
	EnableSystemTray    bool   `mapstructure:"enable_system_tray"`
}

// Log holds logging settings.
type Log struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Store holds alert history settings.
type Store struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Server holds the local preview server settings.
type Server struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MQTT holds the optional presence publisher settings.
type MQTT struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// Plugins configures the external alert hooks.
type Plugins struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// Timeout returns the per-hook time bound.
func (p Plugins) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Cooldown returns the alert cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs * float64(time.Second))
}

// LoopInterval returns the worker yield between cycles.
func (c Camera) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalMs) * time.Millisecond
}

// NotificationDuration returns the tray notification duration clamped to 5-10s.
func (u UI) NotificationDuration() time.Duration {
	secs := u.NotificationSeconds
	if secs < 5 {
		secs = 5
	}
	if secs > 10 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

// MessageDuration returns how long the on-screen alert message stays visible.
func (u UI) MessageDuration() time.Duration {
	return time.Duration(u.DisplayMilliseconds) * time.Millisecond
}

// Load builds the configuration. Bundled configs next to the executable are
// read first; overridePath (or, when empty, the user config in the data
// directory) is merged on top. A broken override is logged and skipped.
func Load(overridePath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	var sources []string
	for _, p := range bundledPaths() {
		if !fileExists(p) {
			continue
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			log.WithError(err).Warnf("Skipping unreadable bundled config %s", p)
			continue
		}
		sources = append(sources, p)
		break
	}

	overrides := []string{overridePath}
	if overridePath == "" {
		overrides = userPaths()
	}
	for _, p := range overrides {
		if p == "" || !fileExists(p) {
			continue
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			log.WithError(err).Warnf("Ignoring broken config override %s", p)
			continue
		}
		sources = append(sources, p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.SourceFiles = sources

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration made of built-in defaults only.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not unmarshal: %v", err))
	}
	return cfg
}

// Validate reports settings that would make the detector misbehave.
func (c Config) Validate() error {
	cam := c.Camera
	switch {
	case cam.MinConfidence < 0 || cam.MinConfidence > 1:
		return fmt.Errorf("%w: camera.mp_min_confidence must be within [0,1], got %v", ErrInvalid, cam.MinConfidence)
	case cam.DebounceOn < 1:
		return fmt.Errorf("%w: camera.debounce_on_frames must be >= 1, got %d", ErrInvalid, cam.DebounceOn)
	case cam.DebounceOff < 1:
		return fmt.Errorf("%w: camera.debounce_off_frames must be >= 1, got %d", ErrInvalid, cam.DebounceOff)
	case cam.MinAreaRatio < 0 || cam.MaxAreaRatio > 1 || cam.MinAreaRatio > cam.MaxAreaRatio:
		return fmt.Errorf("%w: area ratio range [%v,%v] is not within [0,1]", ErrInvalid, cam.MinAreaRatio, cam.MaxAreaRatio)
	case cam.Contrast <= 0:
		return fmt.Errorf("%w: camera.contrast must be > 0, got %v", ErrInvalid, cam.Contrast)
	case cam.FrameWidth < 0 || cam.FrameHeight < 0:
		return fmt.Errorf("%w: camera frame size must not be negative", ErrInvalid)
	case cam.LoopIntervalMs < 0:
		return fmt.Errorf("%w: camera.loop_interval_ms must not be negative", ErrInvalid)
	case c.MinFaces < 1:
		return fmt.Errorf("%w: min_faces_for_alert must be >= 1, got %d", ErrInvalid, c.MinFaces)
	case c.CooldownSecs < 0:
		return fmt.Errorf("%w: alert_cooldown_seconds must not be negative", ErrInvalid)
	case c.Plugins.TimeoutMs < 0:
		return fmt.Errorf("%w: plugins.timeout_ms must not be negative", ErrInvalid)
	}

	if c.WorkApp.Active != "" {
		if _, ok := c.WorkApp.Targets[strings.ToLower(c.WorkApp.Active)]; !ok {
			log.Warnf("work_app.active %q has no matching entry in work_app.targets", c.WorkApp.Active)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("camera.mp_min_confidence", 0.7)
	v.SetDefault("camera.debounce_on_frames", 5)
	v.SetDefault("camera.debounce_off_frames", 15)
	v.SetDefault("camera.min_area_ratio", 0.01)
	v.SetDefault("camera.max_area_ratio", 0.6)
	v.SetDefault("camera.low_light_threshold", 40.0)
	v.SetDefault("camera.contrast", 1.1)
	v.SetDefault("camera.brightness", -20.0)
	v.SetDefault("camera.hist_equalization", true)
	v.SetDefault("camera.frame_width", 0)
	v.SetDefault("camera.frame_height", 0)
	v.SetDefault("camera.debug_draw", false)
	v.SetDefault("camera.loop_interval_ms", 10)

	v.SetDefault("camera_index", 0)
	v.SetDefault("min_faces_for_alert", 2)
	v.SetDefault("alert_cooldown_seconds", 15.0)

	v.SetDefault("detector.backend", "mediapipe")
	v.SetDefault("detector.python", "")
	v.SetDefault("detector.script_path", "")
	v.SetDefault("detector.model_path", "")
	v.SetDefault("detector.config_path", "")

	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.directory", filepath.Join(DataDir(), "snapshots"))

	v.SetDefault("work_app.active", "")

	v.SetDefault("ui.message", "Someone else is looking at the screen.")
	v.SetDefault("ui.display_milliseconds", 3000)
	v.SetDefault("ui.tray_notification_seconds", 8)
	v.SetDefault("ui.enable_system_tray", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("store.path", filepath.Join(DataDir(), "moyu.db"))
	v.SetDefault("store.retention_days", 30)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", "127.0.0.1:8765")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "moyu")
	v.SetDefault("mqtt.topic_prefix", "moyu")

	v.SetDefault("plugins.enabled", true)
	v.SetDefault("plugins.directory", filepath.Join(DataDir(), "plugins"))
	v.SetDefault("plugins.timeout_ms", 5000)
}

// DataDir returns ~/.moyu, falling back to ./.moyu when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".moyu"
	}
	return filepath.Join(home, ".moyu")
}

func candidateNames() []string {
	return []string{"config.yml", "config.yaml"}
}

// bundledPaths lists config files shipped next to the executable.
func bundledPaths() []string {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	dir := filepath.Dir(exe)
	var paths []string
	for _, name := range candidateNames() {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// userPaths lists user override files in the data directory.
func userPaths() []string {
	var paths []string
	for _, name := range candidateNames() {
		paths = append(paths, filepath.Join(DataDir(), name))
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
