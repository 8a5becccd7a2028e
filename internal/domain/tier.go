package domain

// Tier is the entitlement class of a caller. It is derived at decision time
// from (authenticated?, has active paid entitlement?) and is never stored.
type Tier string

const (
	TierUnregistered Tier = "unregistered"
	TierRegistered   Tier = "registered"
	TierPremium      Tier = "premium"
)

// UnlimitedActions marks a tier ceiling as unbounded.
const UnlimitedActions = -1

// TierLimits maps each tier to its metered-action ceiling per window.
type TierLimits struct {
	UnregisteredMax int
	RegisteredMax   int
	// DeviceCeiling is the cross-account abuse guard: a device-scoped hard
	// ceiling that is stricter than any per-tier ceiling. It prevents
	// circumventing account limits by creating multiple accounts on one device.
	DeviceCeiling int
}

// DefaultTierLimits mirror the product defaults: 3 free identifications for
// anonymous devices, 5 for registered accounts, device guard at 5.
func DefaultTierLimits() TierLimits {
	return TierLimits{
		UnregisteredMax: 3,
		RegisteredMax:   5,
		DeviceCeiling:   5,
	}
}

// MaxActions returns the ceiling for a tier, UnlimitedActions for premium.
func (l TierLimits) MaxActions(tier Tier) int {
	switch tier {
	case TierPremium:
		return UnlimitedActions
	case TierRegistered:
		return l.RegisteredMax
	default:
		return l.UnregisteredMax
	}
}

// DeriveTier computes the caller's tier from its authentication and payment
// state. Premium requires authentication; an anonymous caller can never hold
// a paid entitlement.
func DeriveTier(authenticated, hasActivePremium bool) Tier {
	switch {
	case authenticated && hasActivePremium:
		return TierPremium
	case authenticated:
		return TierRegistered
	default:
		return TierUnregistered
	}
}
