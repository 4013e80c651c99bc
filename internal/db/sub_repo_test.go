package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teamnetwork/internal/types"
)

// --- shared mocks (reused by the other repo tests in this package) ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func requireAppErrCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected *types.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

// --- GetByOrganization ---

func TestSubscriptionRepo_GetByOrganization_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	stripeID := "sub_stripe_1"
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sub_1"
			*dest[1].(*string) = "org_1"
			*dest[2].(**string) = &stripeID
			*dest[3].(*types.SubscriptionStatus) = types.SubStatusActive
			*dest[4].(*int) = 5
			*dest[5].(*int) = 2
			*dest[6].(*types.BillingInterval) = types.IntervalMonth
			*dest[7].(**time.Time) = &periodEnd
			*dest[8].(*time.Time) = now
			*dest[9].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	sub, err := repo.GetByOrganization(context.Background(), "org_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, types.SubStatusActive, sub.Status)
	require.NotNil(t, sub.StripeSubscriptionID)
	assert.Equal(t, "sub_stripe_1", *sub.StripeSubscriptionID)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_GetByOrganization_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByOrganization(context.Background(), "org_missing")
	requireAppErrCode(t, err, types.ErrCodeNotFoundSubscription)
}

// --- TransitionStatus ---

func TestSubscriptionRepo_TransitionStatus_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{types.SubStatusCanceling, "sub_1", types.SubStatusActive}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.TransitionStatus(context.Background(), "sub_1",
		types.SubStatusActive, types.SubStatusCanceling)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_TransitionStatus_LostRace(t *testing.T) {
	// Zero rows affected means the status no longer matched; a
	// concurrent request transitioned first.
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.TransitionStatus(context.Background(), "sub_1",
		types.SubStatusActive, types.SubStatusCanceling)
	requireAppErrCode(t, err, types.ErrCodeConflictConcurrent)
}

func TestSubscriptionRepo_TransitionStatus_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.TransitionStatus(context.Background(), "sub_1",
		types.SubStatusCanceling, types.SubStatusActive)
	requireAppErrCode(t, err, types.ErrCodeInternalDB)
}

// --- SyncFromProvider ---

func syncOrgCheckRow(orgID string, deletedAt *time.Time) *mockRow {
	return &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = orgID
			*dest[1].(**time.Time) = deletedAt
			return nil
		},
	}
}

func TestSubscriptionRepo_SyncFromProvider_Applies(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(syncOrgCheckRow("org_1", nil))
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	err := repo.SyncFromProvider(context.Background(), "sub_stripe_1",
		types.SubStatusCanceled, &periodEnd, time.Now().UTC())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_SyncFromProvider_StaleEventIsNoOp(t *testing.T) {
	// The optimistic lock on last_provider_event_at drops reordered
	// deliveries; an ignored stale event is a success, not an error.
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(syncOrgCheckRow("org_1", nil))
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SyncFromProvider(context.Background(), "sub_stripe_1",
		types.SubStatusActive, nil, time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
}

func TestSubscriptionRepo_SyncFromProvider_DeletedOrgRejected(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	deletedAt := time.Now().Add(-24 * time.Hour).UTC()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(syncOrgCheckRow("org_zombie", &deletedAt))

	err := repo.SyncFromProvider(context.Background(), "sub_stripe_1",
		types.SubStatusActive, nil, time.Now().UTC())
	requireAppErrCode(t, err, types.ErrCodeConflictConcurrent)

	// The UPDATE never runs for a deleted org.
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionRepo_SyncFromProvider_UnknownReference(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	err := repo.SyncFromProvider(context.Background(), "sub_unknown",
		types.SubStatusActive, nil, time.Now().UTC())
	requireAppErrCode(t, err, types.ErrCodeNotFoundSubscription)
}

// --- AttachProviderReference ---

func TestSubscriptionRepo_AttachProviderReference_Idempotent(t *testing.T) {
	// A repeated checkout webhook matches zero rows (reference already
	// set) and still succeeds.
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"sub_stripe_1", "sub_1"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.AttachProviderReference(context.Background(), "sub_1", "sub_stripe_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}
