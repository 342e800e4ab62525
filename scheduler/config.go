package scheduler

import (
	"fmt"
	"time"
)

// Config is the scheduler's externally-configurable policy surface. Every
// threshold the admission and downgrade logic consults lives here; nothing
// is hardcoded in the dispatch path.
type Config struct {
	// RateLimitCount admissions per RateLimitWindow per client
	RateLimitCount  int           `yaml:"rate_limit_count"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// QueueDepthDowngrade: queue depth at dispatch beyond which a job's tier
	// is downgraded one step
	QueueDepthDowngrade int `yaml:"queue_depth_downgrade"`

	// StarvationCeiling: how long a free-tier job waits before promotion to
	// the premium lane
	StarvationCeiling time.Duration `yaml:"starvation_ceiling"`

	// DeadlineFactor multiplies a tier's expected latency into the job
	// deadline (e.g., 5x)
	DeadlineFactor float64 `yaml:"deadline_factor"`

	// Tiers is the resolution tier table
	Tiers TierTable `yaml:"tiers"`

	// Workers is the number of dispatch workers. They all funnel into the
	// single accelerator permit; extra workers only overlap queue management
	// and uploads with rendering.
	Workers int `yaml:"workers"`

	// TerminalTTL is how long terminal jobs stay pollable before eviction
	TerminalTTL time.Duration `yaml:"terminal_ttl"`

	// EvictInterval is how often the eviction sweep runs
	EvictInterval time.Duration `yaml:"evict_interval"`

	// DefaultSteps and GuidanceScale pass through to the renderer
	DefaultSteps  int     `yaml:"default_steps"`
	GuidanceScale float64 `yaml:"guidance_scale"`
	// Strength is the default denoising strength (clamped to [0.30, 0.40])
	Strength float64 `yaml:"strength"`
}

// DefaultConfig returns the shipped scheduler policy.
func DefaultConfig() Config {
	return Config{
		RateLimitCount:      10,
		RateLimitWindow:     60 * time.Second,
		QueueDepthDowngrade: 8,
		StarvationCeiling:   30 * time.Second,
		DeadlineFactor:      5.0,
		Tiers:               DefaultTierTable(),
		Workers:             2,
		TerminalTTL:         10 * time.Minute,
		EvictInterval:       time.Minute,
		DefaultSteps:        4,
		GuidanceScale:       1.0,
		Strength:            0.35,
	}
}

// Validate checks the policy for values that would wedge the scheduler.
func (c Config) Validate() error {
	if c.RateLimitCount <= 0 {
		return fmt.Errorf("scheduler: rate limit count must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("scheduler: rate limit window must be positive")
	}
	if c.DeadlineFactor < 1 {
		return fmt.Errorf("scheduler: deadline factor %.1f must be >= 1", c.DeadlineFactor)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("scheduler: workers must be positive")
	}
	if c.TerminalTTL <= 0 {
		return fmt.Errorf("scheduler: terminal TTL must be positive")
	}
	return c.Tiers.Validate()
}

// deadlineFor computes a job's admission-time deadline.
func (c Config) deadlineFor(tier ResolutionTier, submitted time.Time) time.Time {
	spec := c.Tiers[tier]
	budget := time.Duration(float64(spec.ExpectedLatency) * c.DeadlineFactor)
	return submitted.Add(budget)
}
