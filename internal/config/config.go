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

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store selects the persistence backend.
type Store struct {
	Driver        string `toml:"driver"` // sqlite or postgres
	DSN           string `toml:"dsn"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Worker contains configuration for the worker pool and its timing.
type Worker struct {
	ID                 string `toml:"id"`
	PoolSize           int    `toml:"pool_size"`
	PollInterval       int    `toml:"poll_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	HeartbeatInterval  int    `toml:"heartbeat_interval"`
	HeartbeatTimeout   int    `toml:"heartbeat_timeout"`
	DiscoveryInterval  int    `toml:"discovery_interval"` // minutes, 0 disables
	DiscoveryBatch     int    `toml:"discovery_batch"`
	APIBind            string `toml:"api_bind"` // empty disables the status endpoint
	APIToken           string `toml:"api_token"`
}

// Pipeline contains stage gate configuration.
type Pipeline struct {
	RequireHumanReview bool    `toml:"require_human_review"`
	ScoreGoThreshold   float64 `toml:"score_go_threshold"`
}

// Retry contains the per-stage retry budget.
type Retry struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

// Breaker contains circuit breaker settings shared by every dependency.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold"`
	CooldownSeconds  int `toml:"cooldown_seconds"`
}

// Coordination contains topic reservation and duplicate detection settings.
type Coordination struct {
	ReservationTTLHours    int     `toml:"reservation_ttl_hours"`
	HeartbeatIntervalHours int     `toml:"heartbeat_interval_hours"`
	FingerprintThreshold   float64 `toml:"fingerprint_threshold"`
	SemanticThreshold      float64 `toml:"semantic_threshold"`
	Semantic               string  `toml:"semantic"` // none or cosine
	MaxDedupAttempts       int     `toml:"max_dedup_attempts"`
}

// Monitor contains the thresholds used by the final validation gate.
type Monitor struct {
	EmailSignupGo   float64 `toml:"email_signup_go"`
	EmailSignupNoGo float64 `toml:"email_signup_nogo"`
	BounceRateMax   float64 `toml:"bounce_rate_max"`
	MinVisitors     int     `toml:"min_visitors"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Archive contains configuration for experiment snapshot archiving.
type Archive struct {
	Enabled   bool   `toml:"enabled"`
	Backend   string `toml:"backend"` // filesystem or minio
	Dir       string `toml:"dir"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"` // per-run worker logs; 0 keeps everything
}

// Config encapsulates all configuration values for Verdandi.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Store: sqlite file or postgres DSN
//   - Worker: pool size, polling, heartbeats, periodic discovery
//   - Pipeline: review gate and scoring threshold
//   - Retry / Breaker: fault handling budgets
//   - Coordination: reservation TTLs and duplicate thresholds
//   - Monitor: validation gate thresholds
//   - Notifications: ntfy push notification settings
//   - Archive: experiment snapshot target
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Worker        Worker        `toml:"worker"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Retry         Retry         `toml:"retry"`
	Breaker       Breaker       `toml:"breaker"`
	Coordination  Coordination  `toml:"coordination"`
	Monitor       Monitor       `toml:"monitor"`
	Notifications Notifications `toml:"notifications"`
	Archive       Archive       `toml:"archive"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/verdandi/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
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
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("verdandi.toml")
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

// EnsureDirectories creates required directories for worker operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Archive.Enabled && c.Archive.Backend == ArchiveFilesystem {
		dirs = append(dirs, c.Archive.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database file location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "verdandi.db")
}

// LockPath returns the worker lock file for the configured worker id.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "worker-"+sanitizeFileComponent(c.Worker.ID)+".lock")
}

// BaseDelay returns the retry base delay.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the retry delay cap, zero when uncapped.
func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Cooldown returns how long an open breaker rejects calls.
func (b Breaker) Cooldown() time.Duration {
	return time.Duration(b.CooldownSeconds) * time.Second
}

// ReservationTTL returns the lifetime of a topic reservation between heartbeats.
func (c Coordination) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLHours) * time.Hour
}

// HeartbeatInterval returns how often held reservations are renewed.
func (c Coordination) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalHours) * time.Hour
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func sanitizeFileComponent(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Redacted returns a copy with credentials masked, suitable for printing.
func (c Config) Redacted() Config {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "********"
	}
	c.Store.DSN = mask(c.Store.DSN)
	c.Worker.APIToken = mask(c.Worker.APIToken)
	c.Archive.SecretKey = mask(c.Archive.SecretKey)
	return c
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
