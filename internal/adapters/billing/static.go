package billing

import "context"

// StaticEntitlementProvider answers every premium lookup with a fixed value.
// Used in local runs without Stripe credentials and as a test double.
type StaticEntitlementProvider struct {
	Active bool
}

func (p StaticEntitlementProvider) HasActivePremium(_ context.Context, _ string) (bool, error) {
	return p.Active, nil
}
