package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"teamnetwork/internal/types"
)

type mockOrgLookup struct {
	mock.Mock
}

func (m *mockOrgLookup) GetBillingInfo(ctx context.Context, orgID string) (string, string, error) {
	args := m.Called(ctx, orgID)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockOrgLookup) UpdateStripeCustomerID(ctx context.Context, orgID string, customerID string) error {
	args := m.Called(ctx, orgID, customerID)
	return args.Error(0)
}

func newTestStripeClient(serverURL string, lookup OrgBillingLookup) *StripeClient {
	base := NewBaseClient(
		http.DefaultClient,
		"stripe",
		DefaultRetryPolicy(),
		"TeamNetwork-Test/1.0",
		WithSleepFunc(func(d time.Duration) {}),
	)
	return NewStripeClientWithBase(base, lookup, StripeClientConfig{
		SecretKey: "sk_test_123",
		Prices: StripePriceConfig{
			SeatMonth:   "price_seat_month",
			SeatYear:    "price_seat_year",
			BucketMonth: "price_bucket_month",
			BucketYear:  "price_bucket_year",
		},
		BaseURL: serverURL,
	})
}

func TestStripeClient_EnsureCustomer_ReusesExisting(t *testing.T) {
	var searchQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/customers/search", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		searchQuery = r.URL.Query().Get("query")
		w.Write([]byte(`{"data":[{"id":"cus_existing","email":"t@example.com"}]}`))
	}))
	defer server.Close()

	lookup := new(mockOrgLookup)
	lookup.On("UpdateStripeCustomerID", mock.Anything, "org_1", "cus_existing").Return(nil)

	client := newTestStripeClient(server.URL, lookup)
	customerID, err := client.EnsureCustomer(context.Background(), "org_1", "t@example.com")
	require.NoError(t, err)

	assert.Equal(t, "cus_existing", customerID)
	assert.Equal(t, "metadata['org_id']:'org_1'", searchQuery)
	lookup.AssertExpectations(t)
}

func TestStripeClient_EnsureCustomer_CreatesWhenSearchEmpty(t *testing.T) {
	var createForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/customers/search":
			w.Write([]byte(`{"data":[]}`))
		case "/v1/customers":
			require.NoError(t, r.ParseForm())
			createForm = r.PostForm
			w.Write([]byte(`{"id":"cus_new","email":"t@example.com"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	lookup := new(mockOrgLookup)
	lookup.On("UpdateStripeCustomerID", mock.Anything, "org_1", "cus_new").Return(nil)

	client := newTestStripeClient(server.URL, lookup)
	customerID, err := client.EnsureCustomer(context.Background(), "org_1", "t@example.com")
	require.NoError(t, err)

	assert.Equal(t, "cus_new", customerID)
	assert.Equal(t, "t@example.com", createForm.Get("email"))
	assert.Equal(t, "org_1", createForm.Get("metadata[org_id]"))
}

func TestStripeClient_CreateCheckoutSession_BillableUnitsOnly(t *testing.T) {
	var form url.Values
	var idempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		idempotencyKey = r.Header.Get("Idempotency-Key")
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1"}`))
	}))
	defer server.Close()

	lookup := new(mockOrgLookup)
	lookup.On("GetBillingInfo", mock.Anything, "org_1").Return("cus_1", "t@example.com", nil)

	client := newTestStripeClient(server.URL, lookup)
	checkoutURL, sessionID, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		OrganizationID: "org_1",
		SeatUnits:      2,
		BucketUnits:    3,
		Interval:       types.IntervalMonth,
		SuccessURL:     "https://www.myteamnetwork.com/app/acme/billing?checkout=success",
		CancelURL:      "https://www.myteamnetwork.com/app/acme/billing?checkout=canceled",
		IdempotencyKey: "idem-key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.test/cs_1", checkoutURL)
	assert.Equal(t, "cs_1", sessionID)
	assert.Equal(t, "idem-key-1", idempotencyKey)
	assert.Equal(t, "cus_1", form.Get("customer"))
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "org_1", form.Get("client_reference_id"))
	assert.Equal(t, "price_seat_month", form.Get("line_items[0][price]"))
	assert.Equal(t, "2", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "price_bucket_month", form.Get("line_items[1][price]"))
	assert.Equal(t, "3", form.Get("line_items[1][quantity]"))
}

func TestStripeClient_CreateCheckoutSession_SkipsZeroSeatLine(t *testing.T) {
	// A fully covered seat selection has no seat line item; the bucket
	// line shifts into the first slot.
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.test/cs_1"}`))
	}))
	defer server.Close()

	lookup := new(mockOrgLookup)
	lookup.On("GetBillingInfo", mock.Anything, "org_1").Return("cus_1", "t@example.com", nil)

	client := newTestStripeClient(server.URL, lookup)
	_, _, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		OrganizationID: "org_1",
		SeatUnits:      0,
		BucketUnits:    1,
		Interval:       types.IntervalYear,
	})
	require.NoError(t, err)

	assert.Equal(t, "price_bucket_year", form.Get("line_items[0][price]"))
	assert.Empty(t, form.Get("line_items[1][price]"))
}

func TestStripeClient_CreateCheckoutSession_MissingCustomer(t *testing.T) {
	lookup := new(mockOrgLookup)
	lookup.On("GetBillingInfo", mock.Anything, "org_1").Return("", "t@example.com", nil)

	client := newTestStripeClient("http://unused.invalid", lookup)
	_, _, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{OrganizationID: "org_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundOrg, appErr.Code)
}

func TestStripeClient_ScheduleCancelAtPeriodEnd(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/subscriptions/sub_stripe_1", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"id":"sub_stripe_1"}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL, new(mockOrgLookup))
	require.NoError(t, client.ScheduleCancelAtPeriodEnd(context.Background(), "sub_stripe_1"))
	assert.Equal(t, "true", form.Get("cancel_at_period_end"))
}

func TestStripeClient_RevertCancelAtPeriodEnd(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"id":"sub_stripe_1"}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL, new(mockOrgLookup))
	require.NoError(t, client.RevertCancelAtPeriodEnd(context.Background(), "sub_stripe_1"))
	assert.Equal(t, "false", form.Get("cancel_at_period_end"))
}

func TestStripeClient_ErrorResponseMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL, new(mockOrgLookup))
	err := client.ScheduleCancelAtPeriodEnd(context.Background(), "sub_stripe_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
	assert.Contains(t, appErr.Message, "Your card was declined.")
}

func TestStripeClient_GetSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/subscriptions/sub_stripe_1", r.URL.Path)
		w.Write([]byte(`{"id":"sub_stripe_1","status":"active","cancel_at_period_end":true,"current_period_end":1767225600}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL, new(mockOrgLookup))
	status, cancelAtPeriodEnd, periodEnd, err := client.GetSubscription(context.Background(), "sub_stripe_1")
	require.NoError(t, err)

	assert.Equal(t, "active", status)
	assert.True(t, cancelAtPeriodEnd)
	assert.Equal(t, int64(1767225600), periodEnd.Unix())
}
