package scheduler_test

import (
	"testing"
	"time"

	"github.com/relaypub/scheduler/internal/scheduler"
)

func TestDefaultConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	if cfg.PollingInterval != 10*time.Second {
		t.Errorf("PollingInterval = %v, want 10s", cfg.PollingInterval)
	}
	if cfg.MaxThreads != 10 {
		t.Errorf("MaxThreads = %d, want 10", cfg.MaxThreads)
	}
	if cfg.BatchSize != 30 {
		t.Errorf("BatchSize = %d, want max_threads*3 = 30", cfg.BatchSize)
	}
	if cfg.LeaseTimeout != 4*time.Minute {
		t.Errorf("LeaseTimeout = %v, want 4m", cfg.LeaseTimeout)
	}
	if cfg.LeaseHeartbeatInterval != time.Minute {
		t.Errorf("LeaseHeartbeatInterval = %v, want 1m (1/4 of lease_timeout)", cfg.LeaseHeartbeatInterval)
	}
	if cfg.PoisonCeiling != 5 {
		t.Errorf("PoisonCeiling = %d, want 5", cfg.PoisonCeiling)
	}
}

// Backoff values are exercised indirectly through Pipeline in
// pipeline_test.go (3rd-consecutive-failure -> 120s case from the
// end-to-end scenario); this test checks that a zero-value Config gets
// the backoff base and ceiling defaults.
func TestNewPipeline_AppliesDefaultsWhenConfigIsZeroValue(t *testing.T) {
	p := scheduler.NewPipeline(nil, nil, nil, scheduler.Config{})
	if p.Config.BackoffBase != 30*time.Second || p.Config.BackoffCeiling != time.Hour {
		t.Errorf("Config = %+v, want base=30s ceiling=1h", p.Config)
	}
}
