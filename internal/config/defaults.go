package config

import (
	"fmt"
	"os"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	ArchiveFilesystem = "filesystem"
	ArchiveMinio      = "minio"

	SemanticNone   = "none"
	SemanticCosine = "cosine"
)

const (
	defaultDataDir                = "~/.local/share/verdandi"
	defaultLogDir                 = "~/.local/share/verdandi/logs"
	defaultArchiveDir             = "~/.local/share/verdandi/archive"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 14
	defaultPoolSize               = 3
	defaultPollInterval           = 5
	defaultErrorRetryInterval     = 10
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultDiscoveryBatch         = 3
	defaultScoreGoThreshold       = 70
	defaultMaxAttempts            = 4
	defaultBaseDelayMS            = 1000
	defaultMaxDelayMS             = 60000
	defaultFailureThreshold       = 5
	defaultCooldownSeconds        = 60
	defaultReservationTTLHours    = 24
	defaultHeartbeatIntervalHours = 6
	defaultFingerprintThreshold   = 0.6
	defaultSemanticThreshold      = 0.82
	defaultMaxDedupAttempts       = 3
	defaultMonitorSignupGo        = 10.0
	defaultMonitorSignupNoGo      = 3.0
	defaultMonitorBounceMax       = 80.0
	defaultMonitorMinVisitors     = 200
	defaultBusyTimeoutMS          = 5000
	defaultArchivePrefix          = "experiments"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Store: Store{
			Driver:        StoreSQLite,
			BusyTimeoutMS: defaultBusyTimeoutMS,
		},
		Worker: Worker{
			ID:                 defaultWorkerID(),
			PoolSize:           defaultPoolSize,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			DiscoveryBatch:     defaultDiscoveryBatch,
		},
		Pipeline: Pipeline{
			RequireHumanReview: true,
			ScoreGoThreshold:   defaultScoreGoThreshold,
		},
		Retry: Retry{
			MaxAttempts: defaultMaxAttempts,
			BaseDelayMS: defaultBaseDelayMS,
			MaxDelayMS:  defaultMaxDelayMS,
		},
		Breaker: Breaker{
			FailureThreshold: defaultFailureThreshold,
			CooldownSeconds:  defaultCooldownSeconds,
		},
		Coordination: Coordination{
			ReservationTTLHours:    defaultReservationTTLHours,
			HeartbeatIntervalHours: defaultHeartbeatIntervalHours,
			FingerprintThreshold:   defaultFingerprintThreshold,
			SemanticThreshold:      defaultSemanticThreshold,
			Semantic:               SemanticNone,
			MaxDedupAttempts:       defaultMaxDedupAttempts,
		},
		Monitor: Monitor{
			EmailSignupGo:   defaultMonitorSignupGo,
			EmailSignupNoGo: defaultMonitorSignupNoGo,
			BounceRateMax:   defaultMonitorBounceMax,
			MinVisitors:     defaultMonitorMinVisitors,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Review:         true,
			Completion:     true,
			Errors:         true,
		},
		Archive: Archive{
			Backend: ArchiveFilesystem,
			Dir:     defaultArchiveDir,
			Prefix:  defaultArchivePrefix,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
