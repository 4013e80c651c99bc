package billing

import (
	"time"

	"teamnetwork/internal/types"
)

// ProviderAction tells the caller which payments-provider call must
// accompany a lifecycle transition. The lifecycle functions themselves
// perform no I/O; they only decide.
type ProviderAction string

const (
	// ProviderActionNone means no provider call is needed (cancel on a
	// subscription that never completed checkout).
	ProviderActionNone ProviderAction = "none"

	// ProviderActionScheduleCancel means the caller must set
	// cancel-at-period-end on the provider subscription.
	ProviderActionScheduleCancel ProviderAction = "schedule_cancel"

	// ProviderActionRevertCancel means the caller must clear
	// cancel-at-period-end on the provider subscription.
	ProviderActionRevertCancel ProviderAction = "revert_cancel"
)

// LifecycleResult describes a successful transition: the status to
// persist, the period boundary it takes effect at, and the provider
// call the caller owes. The caller persists Status with a conditional
// update (status = expected current status) so concurrent cancel and
// resume calls cannot interleave.
type LifecycleResult struct {
	Status           types.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end,omitempty"`
	ProviderAction   ProviderAction           `json:"-"`
}

// authorizeLifecycle runs the shared precondition chain for lifecycle
// operations. Check order is fixed: authentication before role before
// existence, so a missing session never leaks whether a subscription
// exists.
func authorizeLifecycle(actor types.Actor, sub *types.Subscription) *types.AppError {
	if !actor.Authenticated() {
		return types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	if actor.Role != types.RoleAdmin {
		return types.NewAppError(types.ErrCodePermissionRole, "Only organization admins can manage billing", nil)
	}
	if sub == nil {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "No subscription found for this organization", nil)
	}
	return nil
}

// Cancel schedules cancellation at period end. The transition to
// canceling is unconditional once authorized: it succeeds even when the
// subscription has no provider reference (checkout never completed), in
// which case the local status is advisory and no provider call is owed.
// Immediate revocation is never performed; access runs to period end.
func Cancel(actor types.Actor, sub *types.Subscription) (LifecycleResult, error) {
	if err := authorizeLifecycle(actor, sub); err != nil {
		return LifecycleResult{}, err
	}
	action := ProviderActionScheduleCancel
	if sub.StripeSubscriptionID == nil {
		action = ProviderActionNone
	}
	return LifecycleResult{
		Status:           types.SubStatusCanceling,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		ProviderAction:   action,
	}, nil
}

// Resume reverts a scheduled cancellation. Unlike Cancel it requires a
// provider-side subscription to un-schedule, and is only legal from the
// canceling state.
func Resume(actor types.Actor, sub *types.Subscription) (LifecycleResult, error) {
	if err := authorizeLifecycle(actor, sub); err != nil {
		return LifecycleResult{}, err
	}
	if sub.Status != types.SubStatusCanceling {
		return LifecycleResult{}, types.NewAppError(types.ErrCodeConflictSubscriptionState,
			"Subscription is not scheduled for cancellation", nil)
	}
	if sub.StripeSubscriptionID == nil {
		return LifecycleResult{}, types.NewAppError(types.ErrCodeConflictNoProviderRef,
			"No Stripe subscription to resume", nil)
	}
	return LifecycleResult{
		Status:           types.SubStatusActive,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		ProviderAction:   ProviderActionRevertCancel,
	}, nil
}
