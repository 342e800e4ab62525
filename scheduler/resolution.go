package scheduler

import (
	"fmt"
	"time"
)

// ResolutionTier is one of the fixed output sizes. Order matters: tiers
// compare by cost, and downgrades walk one step toward TierPreview.
type ResolutionTier int

const (
	// TierPreview is the smallest, fastest tier; downgrades stop here
	TierPreview ResolutionTier = iota
	// TierStandard is the balanced default
	TierStandard
	// TierHigh is the most expensive tier and the first downgraded under load
	TierHigh
)

// String returns the wire name of the tier.
func (t ResolutionTier) String() string {
	switch t {
	case TierPreview:
		return "preview"
	case TierStandard:
		return "standard"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("resolution(%d)", int(t))
	}
}

// ParseResolutionTier parses a wire name.
func ParseResolutionTier(s string) (ResolutionTier, error) {
	switch s {
	case "preview":
		return TierPreview, nil
	case "standard":
		return TierStandard, nil
	case "high":
		return TierHigh, nil
	default:
		return TierPreview, fmt.Errorf("scheduler: unknown resolution tier %q", s)
	}
}

// Downgrade returns the next-lower tier and whether a downgrade happened.
// TierPreview never downgrades further.
func (t ResolutionTier) Downgrade() (ResolutionTier, bool) {
	if t <= TierPreview {
		return TierPreview, false
	}
	return t - 1, true
}

// TierSpec is the configured shape of one tier: output pixels and the
// expected accelerator latency the deadline is computed from.
type TierSpec struct {
	// Width and Height are the output pixel dimensions
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// ExpectedLatency is the typical accelerator-resident time at this tier
	ExpectedLatency time.Duration `yaml:"expected_latency" json:"expected_latency"`
}

// TierTable maps every tier to its rendering parameters. Sizes are square
// (256/512/1024); latencies are starting points for operators to tune
// against their hardware.
type TierTable map[ResolutionTier]TierSpec

// DefaultTierTable returns the shipped tier table.
func DefaultTierTable() TierTable {
	return TierTable{
		TierPreview:  {Width: 256, Height: 256, ExpectedLatency: 2 * time.Second},
		TierStandard: {Width: 512, Height: 512, ExpectedLatency: 5 * time.Second},
		TierHigh:     {Width: 1024, Height: 1024, ExpectedLatency: 15 * time.Second},
	}
}

// Validate checks that every tier is present with sane values.
func (tt TierTable) Validate() error {
	for _, tier := range []ResolutionTier{TierPreview, TierStandard, TierHigh} {
		spec, ok := tt[tier]
		if !ok {
			return fmt.Errorf("scheduler: tier table missing %s", tier)
		}
		if spec.Width <= 0 || spec.Height <= 0 {
			return fmt.Errorf("scheduler: tier %s has invalid dimensions %dx%d",
				tier, spec.Width, spec.Height)
		}
		if spec.ExpectedLatency <= 0 {
			return fmt.Errorf("scheduler: tier %s has non-positive expected latency", tier)
		}
	}
	return nil
}
