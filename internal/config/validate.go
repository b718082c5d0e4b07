package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateResilience(); err != nil {
		return err
	}
	if err := c.validateCoordination(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreSQLite:
		return nil
	case StorePostgres:
		if c.Store.DSN == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/verdandi/config.toml"
			}
			return fmt.Errorf("store.dsn is required for the postgres driver. Set VERDANDI_DATABASE_URL or edit %s", defaultPath)
		}
		return nil
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or postgres)", c.Store.Driver)
	}
}

func (c *Config) validateWorker() error {
	if err := ensurePositiveMap(map[string]int{
		"worker.pool_size":            c.Worker.PoolSize,
		"worker.poll_interval":        c.Worker.PollInterval,
		"worker.error_retry_interval": c.Worker.ErrorRetryInterval,
		"worker.heartbeat_interval":   c.Worker.HeartbeatInterval,
		"worker.heartbeat_timeout":    c.Worker.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.Worker.HeartbeatTimeout <= c.Worker.HeartbeatInterval {
		return errors.New("worker.heartbeat_timeout must be greater than worker.heartbeat_interval")
	}
	if c.Worker.DiscoveryInterval < 0 {
		return errors.New("worker.discovery_interval must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ScoreGoThreshold < 0 || c.Pipeline.ScoreGoThreshold > 100 {
		return errors.New("pipeline.score_go_threshold must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateResilience() error {
	if err := ensurePositiveMap(map[string]int{
		"retry.max_attempts":        c.Retry.MaxAttempts,
		"retry.base_delay_ms":       c.Retry.BaseDelayMS,
		"breaker.failure_threshold": c.Breaker.FailureThreshold,
		"breaker.cooldown_seconds":  c.Breaker.CooldownSeconds,
	}); err != nil {
		return err
	}
	if c.Retry.MaxDelayMS < 0 {
		return errors.New("retry.max_delay_ms must not be negative")
	}
	if c.Retry.MaxDelayMS > 0 && c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be at least retry.base_delay_ms")
	}
	return nil
}

func (c *Config) validateCoordination() error {
	if err := ensurePositiveMap(map[string]int{
		"coordination.reservation_ttl_hours":    c.Coordination.ReservationTTLHours,
		"coordination.heartbeat_interval_hours": c.Coordination.HeartbeatIntervalHours,
		"coordination.max_dedup_attempts":       c.Coordination.MaxDedupAttempts,
	}); err != nil {
		return err
	}
	if c.Coordination.HeartbeatIntervalHours >= c.Coordination.ReservationTTLHours {
		return errors.New("coordination.heartbeat_interval_hours must be shorter than coordination.reservation_ttl_hours")
	}
	for key, value := range map[string]float64{
		"coordination.fingerprint_threshold": c.Coordination.FingerprintThreshold,
		"coordination.semantic_threshold":    c.Coordination.SemanticThreshold,
	} {
		if value <= 0 || value > 1 {
			return fmt.Errorf("%s must be in (0, 1]", key)
		}
	}
	switch c.Coordination.Semantic {
	case SemanticNone, SemanticCosine:
	default:
		return fmt.Errorf("coordination.semantic: unsupported value %q (want none or cosine)", c.Coordination.Semantic)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.EmailSignupNoGo < 0 || c.Monitor.EmailSignupGo <= c.Monitor.EmailSignupNoGo {
		return errors.New("monitor.email_signup_go must be greater than monitor.email_signup_nogo")
	}
	if c.Monitor.BounceRateMax <= 0 || c.Monitor.BounceRateMax > 100 {
		return errors.New("monitor.bounce_rate_max must be between 0 and 100")
	}
	if c.Monitor.MinVisitors < 0 {
		return errors.New("monitor.min_visitors must not be negative")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	switch c.Archive.Backend {
	case ArchiveFilesystem:
		if c.Archive.Dir == "" {
			return errors.New("archive.dir must be set when archive.backend is filesystem")
		}
	case ArchiveMinio:
		if c.Archive.Endpoint == "" {
			return errors.New("archive.endpoint must be set when archive.backend is minio")
		}
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set when archive.backend is minio")
		}
	default:
		return fmt.Errorf("archive.backend: unsupported value %q (want filesystem or minio)", c.Archive.Backend)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
