// Package billing provides the pricing calculator, alumni tier registry,
// and subscription lifecycle domain logic.
package billing

import "teamnetwork/internal/types"

// TierLimits describes what an alumni tier allows. MaxAlumni of nil
// means unlimited. Tiers are informational quota only; they carry no
// marginal price (the bucket model in pricing.go is the billed variant).
type TierLimits struct {
	MaxAlumni *int
}

// TierRegistry defines the authoritative limits for each alumni tier.
type TierRegistry interface {
	// GetLimits returns the limits for the given tier. For unknown
	// tiers, returns the most restrictive (tier_1) limits to fail safely.
	GetLimits(tier types.AlumniTier) TierLimits
}

// staticTierRegistry is a compile-time tier registry backed by an
// in-memory map. It is the standard implementation for production use.
type staticTierRegistry struct {
	limits map[types.AlumniTier]TierLimits
}

func intPtr(n int) *int { return &n }

// tierDefaults defines the hardcoded alumni ceilings per tier.
// tier_3 uses nil to represent "unlimited".
var tierDefaults = map[types.AlumniTier]TierLimits{
	types.AlumniTier1: {MaxAlumni: intPtr(2500)},
	types.AlumniTier2: {MaxAlumni: intPtr(10000)},
	types.AlumniTier3: {MaxAlumni: nil},
}

// tier1Limits is cached to avoid map lookups on the fallback path.
var tier1Limits = tierDefaults[types.AlumniTier1]

// NewStaticTierRegistry returns a TierRegistry backed by the hardcoded
// tier limits. No database or external service is required.
func NewStaticTierRegistry() TierRegistry {
	// Copy the defaults so callers cannot mutate the package-level map.
	m := make(map[types.AlumniTier]TierLimits, len(tierDefaults))
	for k, v := range tierDefaults {
		m[k] = v
	}
	return &staticTierRegistry{limits: m}
}

// GetLimits returns the limits for the given tier, falling back to the
// tier_1 limits for unknown values.
func (r *staticTierRegistry) GetLimits(tier types.AlumniTier) TierLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return tier1Limits
}
