/*
Package jobqueue configuration - tunable parameters for the River job
queue.

## Quick Configuration Reference:

### Performance Tuning:
- Increase MaxWorkers for more concurrent host passes. Passes for the
  same host never overlap regardless of worker count; the orchestrator
  holds a per-host in-flight guard.
- Lower SyncInterval for fresher conversations at the cost of more
  platform traffic. The platform client rate-limits itself, but each
  pass still costs one request per thread.

### Reliability Tuning:
- MaxRetries only governs whole-pass failures (credentials missing,
  database down). Per-thread fetch errors are recorded in the pass
  report and never retried by River.

## Database Requirements:
- PostgreSQL with River schema migrations applied
- Connection pool sized for MaxWorkers concurrent passes
*/
package jobqueue

import (
	"os"
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs

	// Retry Configuration
	MaxRetries int           // Maximum retry attempts per job
	JobTimeout time.Duration // Maximum time a single pass can run

	// Scheduling Configuration
	SyncInterval time.Duration // Interval between periodic passes per host
	RunOnStart   bool          // Run each host's pass immediately on startup
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		// A handful of hosts syncing concurrently is plenty; each pass
		// may hold a browser, which is the expensive resource here.
		MaxWorkers: 4,

		MaxRetries: 5,
		JobTimeout: 10 * time.Minute,

		SyncInterval: 15 * time.Minute,
		RunOnStart:   true,
	}
}

// ProductionQueueConfig returns a configuration optimized for production use
func ProductionQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 8
	config.JobTimeout = 20 * time.Minute
	return config
}

// DevelopmentQueueConfig returns a configuration optimized for development
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 2
	config.SyncInterval = 2 * time.Minute
	config.RunOnStart = false
	return config
}

// ApplySyncInterval lets operator configuration win over the environment
// profile's scheduling default. Zero or negative leaves the profile value.
func (c *QueueConfig) ApplySyncInterval(interval time.Duration) {
	if interval > 0 {
		c.SyncInterval = interval
	}
}

// GetQueueConfig picks a configuration from the GUESTSYNC_ENV
// environment variable, defaulting to the standard configuration.
func GetQueueConfig() *QueueConfig {
	switch os.Getenv("GUESTSYNC_ENV") {
	case "production":
		return ProductionQueueConfig()
	case "development":
		return DevelopmentQueueConfig()
	default:
		return DefaultQueueConfig()
	}
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
