package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamnetwork/internal/types"
)

func adminActor() types.Actor {
	return types.Actor{
		ID:               "user_admin",
		OrganizationID:   "org_1",
		Role:             types.RoleAdmin,
		MembershipStatus: types.MembershipActive,
	}
}

func activeSub() *types.Subscription {
	stripeID := "sub_stripe_123"
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &types.Subscription{
		ID:                   "sub_local_1",
		OrganizationID:       "org_1",
		StripeSubscriptionID: &stripeID,
		Status:               types.SubStatusActive,
		CurrentPeriodEnd:     &periodEnd,
	}
}

func assertAppErrCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, code, appErr.Code)
}

// --- precondition ordering ---

func TestCancel_Unauthenticated_401BeforeEverything(t *testing.T) {
	// Even with no subscription, an anonymous caller sees only the auth
	// error; existence is never leaked ahead of authentication.
	_, err := Cancel(types.Actor{}, nil)
	assertAppErrCode(t, err, types.ErrCodeAuthRequired)
}

func TestCancel_NonAdmin_403BeforeNotFound(t *testing.T) {
	actor := adminActor()
	actor.Role = types.RoleActiveMember

	_, err := Cancel(actor, nil)
	assertAppErrCode(t, err, types.ErrCodePermissionRole)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Only organization admins can manage billing", appErr.Message)
}

func TestCancel_NoSubscription_404Last(t *testing.T) {
	_, err := Cancel(adminActor(), nil)
	assertAppErrCode(t, err, types.ErrCodeNotFoundSubscription)
}

// --- cancel ---

func TestCancel_ActiveSubscription_SchedulesAtPeriodEnd(t *testing.T) {
	sub := activeSub()

	result, err := Cancel(adminActor(), sub)
	require.NoError(t, err)

	assert.Equal(t, types.SubStatusCanceling, result.Status)
	assert.Equal(t, sub.CurrentPeriodEnd, result.CurrentPeriodEnd)
	assert.Equal(t, ProviderActionScheduleCancel, result.ProviderAction)
}

func TestCancel_NoProviderReference_StillSucceeds(t *testing.T) {
	// Checkout never completed: the transition proceeds unconditionally
	// but no provider call is owed.
	sub := activeSub()
	sub.StripeSubscriptionID = nil

	result, err := Cancel(adminActor(), sub)
	require.NoError(t, err)

	assert.Equal(t, types.SubStatusCanceling, result.Status)
	assert.Equal(t, ProviderActionNone, result.ProviderAction)
}

func TestCancel_AlreadyCanceling_StillSucceeds(t *testing.T) {
	// Cancel is idempotent at this layer; the conditional persistence
	// update is what arbitrates concurrent requests.
	sub := activeSub()
	sub.Status = types.SubStatusCanceling

	result, err := Cancel(adminActor(), sub)
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusCanceling, result.Status)
}

// --- resume ---

func TestResume_Canceling_RevertsToActive(t *testing.T) {
	sub := activeSub()
	sub.Status = types.SubStatusCanceling

	result, err := Resume(adminActor(), sub)
	require.NoError(t, err)

	assert.Equal(t, types.SubStatusActive, result.Status)
	assert.Equal(t, ProviderActionRevertCancel, result.ProviderAction)
}

func TestResume_NotCanceling_Conflict(t *testing.T) {
	for _, status := range []types.SubscriptionStatus{
		types.SubStatusActive,
		types.SubStatusCanceled,
		types.SubStatusPastDue,
	} {
		sub := activeSub()
		sub.Status = status

		_, err := Resume(adminActor(), sub)
		assertAppErrCode(t, err, types.ErrCodeConflictSubscriptionState)

		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "Subscription is not scheduled for cancellation", appErr.Message, "status %s", status)
	}
}

func TestResume_NoProviderReference_Conflict(t *testing.T) {
	sub := activeSub()
	sub.Status = types.SubStatusCanceling
	sub.StripeSubscriptionID = nil

	_, err := Resume(adminActor(), sub)
	assertAppErrCode(t, err, types.ErrCodeConflictNoProviderRef)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "No Stripe subscription to resume", appErr.Message)
}

func TestResume_StateCheckedBeforeProviderReference(t *testing.T) {
	// An active sub with no provider ref fails on state, not on the
	// missing reference.
	sub := activeSub()
	sub.Status = types.SubStatusActive
	sub.StripeSubscriptionID = nil

	_, err := Resume(adminActor(), sub)
	assertAppErrCode(t, err, types.ErrCodeConflictSubscriptionState)
}

func TestCancelResumeRoundTrip(t *testing.T) {
	// Full round trip, feeding each transition's status back into the
	// subscription: cancel lands in canceling, resume returns to active,
	// and a second resume has nothing to revert.
	sub := activeSub()

	canceled, err := Cancel(adminActor(), sub)
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusCanceling, canceled.Status)
	sub.Status = canceled.Status

	resumed, err := Resume(adminActor(), sub)
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusActive, resumed.Status)
	sub.Status = resumed.Status

	_, err = Resume(adminActor(), sub)
	assertAppErrCode(t, err, types.ErrCodeConflictSubscriptionState)
}

func TestResume_SharesPreconditionChainWithCancel(t *testing.T) {
	_, err := Resume(types.Actor{}, activeSub())
	assertAppErrCode(t, err, types.ErrCodeAuthRequired)

	actor := adminActor()
	actor.Role = types.RoleAlumni
	_, err = Resume(actor, activeSub())
	assertAppErrCode(t, err, types.ErrCodePermissionRole)

	_, err = Resume(adminActor(), nil)
	assertAppErrCode(t, err, types.ErrCodeNotFoundSubscription)
}
