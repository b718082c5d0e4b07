package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeWorker()
	c.normalizeCoordination()
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite3":
		c.Store.Driver = StoreSQLite
	case "pg", "postgresql", "pgx":
		c.Store.Driver = StorePostgres
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("VERDANDI_DATABASE_URL"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
}

func (c *Config) normalizeWorker() {
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if value, ok := os.LookupEnv("VERDANDI_WORKER_ID"); ok && strings.TrimSpace(value) != "" {
		c.Worker.ID = strings.TrimSpace(value)
	}
	if c.Worker.ID == "" {
		c.Worker.ID = defaultWorkerID()
	}
	if c.Worker.DiscoveryBatch <= 0 {
		c.Worker.DiscoveryBatch = defaultDiscoveryBatch
	}
	c.Worker.APIBind = strings.TrimSpace(c.Worker.APIBind)
	if value, ok := os.LookupEnv("VERDANDI_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Worker.APIToken = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeCoordination() {
	c.Coordination.Semantic = strings.ToLower(strings.TrimSpace(c.Coordination.Semantic))
	if c.Coordination.Semantic == "" {
		c.Coordination.Semantic = SemanticNone
	}
}

func (c *Config) normalizeArchive() error {
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	if c.Archive.Backend == "" {
		c.Archive.Backend = ArchiveFilesystem
	}
	if c.Archive.Backend == "s3" {
		c.Archive.Backend = ArchiveMinio
	}
	if strings.TrimSpace(c.Archive.Dir) == "" {
		c.Archive.Dir = defaultArchiveDir
	}
	var err error
	if c.Archive.Dir, err = expandPath(c.Archive.Dir); err != nil {
		return fmt.Errorf("archive.dir: %w", err)
	}
	c.Archive.Endpoint = strings.TrimSpace(c.Archive.Endpoint)
	c.Archive.Bucket = strings.TrimSpace(c.Archive.Bucket)
	c.Archive.AccessKey = strings.TrimSpace(c.Archive.AccessKey)
	if c.Archive.SecretKey == "" {
		if value, ok := os.LookupEnv("VERDANDI_ARCHIVE_SECRET_KEY"); ok {
			c.Archive.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Archive.Prefix = strings.Trim(strings.TrimSpace(c.Archive.Prefix), "/")
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = defaultArchivePrefix
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		format = "console"
	case "json":
	default:
		format = "console"
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	if level == "warning" {
		level = "warn"
	}
	c.Logging.Level = level

	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
