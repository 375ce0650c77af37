package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Conversion holds batch scheduling options
type Conversion struct {
	Workers            int    `toml:"workers"` // 0 means min(4, NumCPU)
	TaskTimeoutSeconds int    `toml:"task_timeout_seconds"`
	GCEvery            int    `toml:"gc_every"`
	EncodeRetries      int    `toml:"encode_retries"`
	SuccessPolicy      string `toml:"success_policy"`
	HideWindow         bool   `toml:"hide_window"`
}

// FFmpeg locates the external encoder and holds the mp3 policy
type FFmpeg struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	MP3Bitrate  string `toml:"mp3_bitrate"`
	MP3Quality  string `toml:"mp3_quality"`
}

// Monitor configures the resource monitor thresholds
type Monitor struct {
	IntervalSeconds float64 `toml:"interval_seconds"`
	CPUCritical     float64 `toml:"cpu_critical"`
	MemoryCritical  float64 `toml:"memory_critical"`
	DiskCritical    float64 `toml:"disk_critical"`
	WarningMargin   float64 `toml:"warning_margin"`
	DiskPath        string  `toml:"disk_path"`
	HistoryWindow   int     `toml:"history_window"`
}

// Security configures the optional ClamAV input scan
type Security struct {
	ScanInputs   bool   `toml:"scan_inputs"`
	ClamdAddress string `toml:"clamd_address"`
}

// Paths holds state and log locations
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Server configures the HTTP/websocket front end
type Server struct {
	Bind string `toml:"bind"`
}

// Config holds application configuration
type Config struct {
	Conversion Conversion `toml:"conversion"`
	FFmpeg     FFmpeg     `toml:"ffmpeg"`
	Monitor    Monitor    `toml:"monitor"`
	Security   Security   `toml:"security"`
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Server     Server     `toml:"server"`

	Verbose bool `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// yields defaults. The returned path is the resolved file location and the
// bool reports whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("audioconv.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.FFmpeg.FFmpegPath = strings.TrimSpace(c.FFmpeg.FFmpegPath)
	c.FFmpeg.FFprobePath = strings.TrimSpace(c.FFmpeg.FFprobePath)
	c.Conversion.SuccessPolicy = strings.ToLower(strings.TrimSpace(c.Conversion.SuccessPolicy))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Monitor.DiskPath == "" {
		c.Monitor.DiskPath = defaultDiskPath
	}
	return nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TaskTimeout returns the per-task timeout.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Conversion.TaskTimeoutSeconds) * time.Second
}

// MonitorInterval returns the resource sampling interval.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds * float64(time.Second))
}

// HistoryPath is the SQLite run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath is the file lock that keeps one batch per state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "audioconv.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
