package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"teamnetwork/internal/types"
)

// SubscriptionRepo manages the local mirror of organization billing
// subscriptions.
//
// Key invariants:
//   - Lifecycle transitions (active<->canceling) go through
//     TransitionStatus, a single conditional UPDATE keyed on the
//     expected current status, so concurrent cancel/resume calls cannot
//     interleave.
//   - Webhook-driven syncs go through SyncFromProvider, which uses
//     optimistic locking on last_provider_event_at to drop out-of-order
//     Stripe events, and rejects updates for soft-deleted organizations.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

const subscriptionColumns = `id, organization_id, stripe_subscription_id, status,
	seat_quantity, alumni_bucket_quantity, billing_interval, current_period_end,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.StripeSubscriptionID, &s.Status,
		&s.SeatQuantity, &s.AlumniBucketQuantity, &s.Interval, &s.CurrentPeriodEnd,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription", err)
	}
	return &s, nil
}

// GetByOrganization returns the subscription row for an organization.
func (r *SubscriptionRepo) GetByOrganization(ctx context.Context, orgID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE organization_id = $1`,
		orgID,
	)
	return scanSubscription(row)
}

// GetByStripeID returns the subscription row matching a provider
// subscription ID. Used by the webhook handler, which only knows the
// Stripe identifier.
func (r *SubscriptionRepo) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID,
	)
	return scanSubscription(row)
}

// Create inserts a subscription row for an organization that has
// started checkout. The provider reference arrives later via webhook.
func (r *SubscriptionRepo) Create(ctx context.Context, sub *types.Subscription) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		   (id, organization_id, stripe_subscription_id, status,
		    seat_quantity, alumni_bucket_quantity, billing_interval, current_period_end,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		sub.ID, sub.OrganizationID, sub.StripeSubscriptionID, sub.Status,
		sub.SeatQuantity, sub.AlumniBucketQuantity, sub.Interval, sub.CurrentPeriodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscription", err)
	}
	return nil
}

// TransitionStatus applies a lifecycle transition as a single
// conditional UPDATE: the row only changes if its current status still
// matches what the caller computed the transition from. A zero
// rows-affected result means another request got there first.
func (r *SubscriptionRepo) TransitionStatus(
	ctx context.Context,
	subscriptionID string,
	from types.SubscriptionStatus,
	to types.SubscriptionStatus,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		to, subscriptionID, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("subscription status transition lost race",
			slog.String("subscription_id", subscriptionID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"subscription was modified by a concurrent request", nil)
	}
	return nil
}

// AttachProviderReference records the Stripe subscription ID once
// checkout completes. Only fills an empty reference; a repeated webhook
// delivery is a no-op.
func (r *SubscriptionRepo) AttachProviderReference(ctx context.Context, subscriptionID, stripeSubscriptionID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET stripe_subscription_id = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stripe_subscription_id IS NULL`,
		stripeSubscriptionID, subscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to attach provider reference", err)
	}
	return nil
}

// SyncFromProvider applies a webhook-driven state change. Two WHERE
// conditions guard the write:
//  1. The owning organization must not be soft-deleted. A webhook for a
//     deleted org is logged loudly so Ops can cancel it in Stripe.
//  2. Optimistic locking on last_provider_event_at drops events older
//     than the last one applied; stale deliveries are idempotent no-ops.
func (r *SubscriptionRepo) SyncFromProvider(
	ctx context.Context,
	stripeSubscriptionID string,
	status types.SubscriptionStatus,
	currentPeriodEnd *time.Time,
	eventTimestamp time.Time,
) error {
	var orgID string
	var deletedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT o.id, o.deleted_at
		 FROM subscriptions s
		 JOIN organizations o ON o.id = s.organization_id
		 WHERE s.stripe_subscription_id = $1`,
		stripeSubscriptionID,
	).Scan(&orgID, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundSubscription,
				"no subscription for provider reference", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check organization status", err)
	}

	if deletedAt != nil {
		r.logger.Error("billing webhook received for deleted organization",
			slog.String("org_id", orgID),
			slog.String("stripe_subscription_id", stripeSubscriptionID),
			slog.String("status", string(status)),
			slog.Time("event_timestamp", eventTimestamp),
		)
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"organization is deleted; billing update rejected", nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $1,
		     current_period_end = $2,
		     last_provider_event_at = $3,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $4
		   AND (last_provider_event_at IS NULL OR last_provider_event_at < $3)`,
		status, currentPeriodEnd, eventTimestamp, stripeSubscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to sync subscription from provider", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("stale provider event ignored (optimistic lock)",
			slog.String("stripe_subscription_id", stripeSubscriptionID),
			slog.Time("event_timestamp", eventTimestamp),
		)
	}
	return nil
}
