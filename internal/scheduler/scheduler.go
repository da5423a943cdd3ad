// Package scheduler implements the Polling Loop (spec §4.3, C3) and the
// Execution Pipeline (spec §4.4, C4): the per-worker-process loop that
// claims due tasks and the per-task pipeline that republishes a payload
// and finalizes the row. Grounded on the teacher's scheduler package
// (dispatcher.go's ticker+select loop, worker.go's runJob/heartbeat
// split, reaper.go's stale-lease sweep), generalized from one-shot HTTP
// jobs to the Task model's claim/heartbeat/finalize cycle.
package scheduler

import "time"

// Config holds the Polling Loop and Execution Pipeline parameters (spec
// §4.3). Zero or negative fields are filled in by NewPipeline and
// NewPoller (see withDefaults).
type Config struct {
	PollingInterval        time.Duration
	BatchSize              int
	MaxThreads             int
	LeaseTimeout           time.Duration
	LeaseHeartbeatInterval time.Duration

	BackoffBase    time.Duration
	BackoffCeiling time.Duration

	// PoisonCeiling is the number of consecutive PermanentDecodeError
	// failures a task may accumulate before it is marked poisoned
	// instead of retried (spec §7). A decode failure below the ceiling
	// is rescheduled with the same backoff a publish failure gets; once
	// ConsecutiveFailures would reach the ceiling, the row is poisoned.
	PoisonCeiling int
}

// DefaultConfig returns the spec's default parameters: polling_interval
// 10s, max_threads 10, batch_size max_threads*3, lease_timeout 4min,
// lease_heartbeat_interval 1/4 of lease_timeout, backoff base 30s /
// ceiling 1h, poison ceiling 5 consecutive decode failures.
func DefaultConfig() Config {
	const maxThreads = 10
	const leaseTimeout = 4 * time.Minute
	return Config{
		PollingInterval:        10 * time.Second,
		BatchSize:              maxThreads * 3,
		MaxThreads:             maxThreads,
		LeaseTimeout:           leaseTimeout,
		LeaseHeartbeatInterval: leaseTimeout / 4,
		BackoffBase:            30 * time.Second,
		BackoffCeiling:         time.Hour,
		PoisonCeiling:          5,
	}
}

// withDefaults fills each zero or negative field of c. BatchSize becomes
// MaxThreads*3 and LeaseHeartbeatInterval becomes LeaseTimeout/4, using
// c's own (already defaulted) MaxThreads and LeaseTimeout; every other
// field takes its DefaultConfig value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollingInterval <= 0 {
		c.PollingInterval = d.PollingInterval
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = d.MaxThreads
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.MaxThreads * 3
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = d.LeaseTimeout
	}
	if c.LeaseHeartbeatInterval <= 0 {
		c.LeaseHeartbeatInterval = c.LeaseTimeout / 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = d.BackoffCeiling
	}
	if c.PoisonCeiling <= 0 {
		c.PoisonCeiling = d.PoisonCeiling
	}
	return c
}

// backoff computes the exponential reschedule delay for a task that has
// just failed its failures-th consecutive attempt (spec §4.3):
// min(base * 2^(failures-1), ceiling).
func backoff(cfg Config, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := cfg.BackoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= cfg.BackoffCeiling {
			return cfg.BackoffCeiling
		}
	}
	if d > cfg.BackoffCeiling {
		d = cfg.BackoffCeiling
	}
	return d
}
