package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/google/uuid"
)

const (
	monthlyPeriod = 30 * 24 * time.Hour
	annualPeriod  = 365 * 24 * time.Hour
)

// Activator turns a completed transaction into an entitlement: one
// subscription plus its vehicle-facing feature activation, written atomically
// and superseding any prior active subscription for the same vehicle/feature.
type Activator struct {
	features repository.FeatureRepository
	subs     repository.SubscriptionRepository
}

// NewActivator creates an entitlement activator.
func NewActivator(features repository.FeatureRepository, subs repository.SubscriptionRepository) *Activator {
	return &Activator{features: features, subs: subs}
}

// Activate persists the subscription + activation pair for a completed
// transaction. Callers must only invoke it from a winning pending ->
// completed transition.
func (a *Activator) Activate(ctx context.Context, tx *models.Transaction, source string) error {
	_ = ctx
	feature, err := a.features.GetByID(tx.FeatureID)
	if err != nil {
		return fmt.Errorf("load feature %d: %w", tx.FeatureID, err)
	}

	startsAt := time.Now()
	if tx.CompletedAt != nil {
		startsAt = *tx.CompletedAt
	}
	plan, endsAt, autoRenew := deriveEntitlement(feature, tx.BillingPeriod, startsAt)

	sub := &models.Subscription{
		ID:            uuid.NewString(),
		UserID:        tx.UserID,
		VehicleID:     tx.VehicleID,
		FeatureID:     feature.ID,
		Plan:          plan,
		Status:        models.SubscriptionStatusActive,
		AutoRenew:     autoRenew,
		TransactionID: tx.ID,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
	}
	act := &models.FeatureActivation{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		VehicleID:      tx.VehicleID,
		FeatureID:      feature.ID,
		Status:         models.ActivationStatusActive,
		TransactionID:  tx.ID,
		RequestedBy:    tx.UserID,
		Source:         source,
	}

	return a.subs.ActivateEntitlement(sub, act)
}

// EnsureActivated activates the entitlement for a completed transaction if no
// activation exists for it yet. It reports whether an activation was written.
// The store write itself is idempotent per transaction, so racing a concurrent
// activation cannot produce a second entitlement.
func (a *Activator) EnsureActivated(ctx context.Context, tx *models.Transaction, source string) (bool, error) {
	count, err := a.subs.CountActivationsByTransactionID(tx.ID)
	if err != nil {
		return false, fmt.Errorf("count activations for transaction %s: %w", tx.ID, err)
	}
	if count > 0 {
		return false, nil
	}
	if err := a.Activate(ctx, tx, source); err != nil {
		return false, err
	}
	return true, nil
}

// deriveEntitlement maps the feature's pricing model and the purchase's
// billing period selection to the subscription shape. One-time purchases are
// non-expiring; subscription purchases run exactly 30 or 365 days from the
// payment's completion time.
func deriveEntitlement(feature *models.Feature, billingPeriod string, startsAt time.Time) (plan string, endsAt *time.Time, autoRenew bool) {
	if !feature.IsRecurring() {
		return models.SubscriptionPlanLifetime, nil, false
	}

	period := monthlyPeriod
	plan = models.SubscriptionPlanMonthly
	if billingPeriod == models.BillingPeriodAnnual {
		period = annualPeriod
		plan = models.SubscriptionPlanAnnual
	}
	end := startsAt.Add(period)
	return plan, &end, true
}
