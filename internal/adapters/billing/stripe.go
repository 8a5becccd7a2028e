package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v84"

	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// StripeEntitlementProvider reads premium state from Stripe. Premium is
// written exclusively by Stripe's own webhook flow; this adapter only ever
// asks "is there an active subscription for this account right now".
type StripeEntitlementProvider struct {
	client *stripe.Client
	logger *slog.Logger
}

func NewStripeEntitlementProvider(apiKey string, logger *slog.Logger) (*StripeEntitlementProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeEntitlementProvider{
		client: stripe.NewClient(apiKey),
		logger: logger.With("module", "billing", "layer", "adapter"),
	}, nil
}

var _ ports.EntitlementProvider = (*StripeEntitlementProvider)(nil)

// HasActivePremium resolves the account's Stripe customer by metadata and
// reports whether any subscription is active or trialing.
func (p *StripeEntitlementProvider) HasActivePremium(ctx context.Context, accountID string) (bool, error) {
	customerID, err := p.customerForAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if customerID == "" {
		// No Stripe customer means the account never started a checkout.
		return false, nil
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		// stripe-go v84 dropped the SubscriptionStatusAll constant; "all" is
		// the wire value it carried.
		Status: stripe.String("all"),
	}
	params.Limit = stripe.Int64(10)
	for sub, err := range p.client.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return false, fmt.Errorf("list subscriptions: %w", err)
		}
		switch sub.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
			return true, nil
		}
	}
	return false, nil
}

func (p *StripeEntitlementProvider) customerForAccount(ctx context.Context, accountID string) (string, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['account_id']:'%s'", accountID),
		},
	}
	for customer, err := range p.client.V1Customers.Search(ctx, params) {
		if err != nil {
			return "", fmt.Errorf("search customer: %w", err)
		}
		return customer.ID, nil
	}
	return "", nil
}
