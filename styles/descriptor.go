// Package styles provides the camera-style registry and the layered prompt
// resolver. Both are read-mostly snapshots: request-time lookups never take a
// write lock, and reloads swap the whole snapshot atomically.
package styles

import "fmt"

// Tier is a client account tier. It gates access to premium styles.
type Tier string

const (
	// TierFree is the default tier for unauthenticated or free accounts
	TierFree Tier = "free"
	// TierPremium unlocks premium styles and the premium scheduling lane
	TierPremium Tier = "premium"
)

// ParseTier parses a tier string, defaulting unknown values to free.
// Ingress identity headers are untrusted input; an unrecognized tier must
// never grant premium access.
func ParseTier(s string) Tier {
	if s == string(TierPremium) {
		return TierPremium
	}
	return TierFree
}

// Blend weight bounds for style adapters. Weights outside this range indicate
// a corrupt registry row, not a tuning choice.
const (
	MinBlendWeight = 0.0
	MaxBlendWeight = 2.0
)

// Descriptor describes one camera style: the adapter artifact that produces
// its look and the policy attached to it. Descriptors are immutable once a
// snapshot is built.
type Descriptor struct {
	// ID is the style identifier clients submit (e.g., "hasselblad")
	ID string `json:"id"`
	// Name is the human-readable style name
	Name string `json:"name"`
	// ArtifactPath is the adapter artifact file, relative to the adapter dir
	ArtifactPath string `json:"artifact_path"`
	// ArtifactSHA256 is the expected checksum of the adapter artifact.
	// Empty disables verification for that style.
	ArtifactSHA256 string `json:"artifact_sha256,omitempty"`
	// BlendWeight is how strongly the adapter is fused (0.0-2.0, nominal 0.9-1.0)
	BlendWeight float64 `json:"blend_weight"`
	// Tier is the minimum account tier allowed to use this style
	Tier Tier `json:"tier"`
	// Active marks whether the style is currently offered
	Active bool `json:"active"`
}

// Validate checks a descriptor for values that would break rendering.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty style id", ErrInvalidDescriptor)
	}
	if d.ArtifactPath == "" {
		return fmt.Errorf("%w: style %s has no artifact path", ErrInvalidDescriptor, d.ID)
	}
	if d.BlendWeight < MinBlendWeight || d.BlendWeight > MaxBlendWeight {
		return fmt.Errorf("%w: style %s blend weight %.2f outside [%.1f, %.1f]",
			ErrInvalidDescriptor, d.ID, d.BlendWeight, MinBlendWeight, MaxBlendWeight)
	}
	if d.Tier != TierFree && d.Tier != TierPremium {
		return fmt.Errorf("%w: style %s has unknown tier %q", ErrInvalidDescriptor, d.ID, d.Tier)
	}
	return nil
}

// Allowed reports whether a caller at the given tier may use this style.
// Premium callers may use everything; free callers only free styles.
func (d Descriptor) Allowed(callerTier Tier) bool {
	if d.Tier == TierFree {
		return true
	}
	return callerTier == TierPremium
}
