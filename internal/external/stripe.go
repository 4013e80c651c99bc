package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"teamnetwork/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// OrgBillingLookup provides the minimal data access StripeClient needs
// to resolve an organization into its Stripe customer ID and billing
// email, without pulling in the full repository surface.
type OrgBillingLookup interface {
	// GetBillingInfo returns the stripe_customer_id and billing_email
	// for the given org. Returns ("", email, nil) if the org exists but
	// has no customer yet; an error if the org does not exist.
	GetBillingInfo(ctx context.Context, orgID string) (stripeCustomerID string, billingEmail string, err error)

	// UpdateStripeCustomerID sets the stripe_customer_id for the org.
	UpdateStripeCustomerID(ctx context.Context, orgID string, customerID string) error
}

// StripePriceConfig maps the two pricing axes to the Stripe Price IDs
// configured in the Stripe dashboard, one per billing interval.
type StripePriceConfig struct {
	SeatMonth   string
	SeatYear    string
	BucketMonth string
	BucketYear  string
}

// SeatPrice returns the seat Price ID for an interval.
func (p StripePriceConfig) SeatPrice(interval types.BillingInterval) string {
	if interval == types.IntervalYear {
		return p.SeatYear
	}
	return p.SeatMonth
}

// BucketPrice returns the alumni-bucket Price ID for an interval.
func (p StripePriceConfig) BucketPrice(interval types.BillingInterval) string {
	if interval == types.IntervalYear {
		return p.BucketYear
	}
	return p.BucketMonth
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	Prices    StripePriceConfig
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API directly through BaseClient.
// This routes all requests through the platform's resilience
// infrastructure (circuit breaker, retries, error mapping) and makes
// testing with httptest straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	prices    StripePriceConfig
	baseURL   string
	orgLookup OrgBillingLookup
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(
	httpClient *http.Client,
	orgLookup OrgBillingLookup,
	cfg StripeClientConfig,
) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"TeamNetwork/1.0",
	)
	return newStripeClient(base, orgLookup, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient, for tests that control the resilience behavior.
func NewStripeClientWithBase(
	base *BaseClient,
	orgLookup OrgBillingLookup,
	cfg StripeClientConfig,
) *StripeClient {
	return newStripeClient(base, orgLookup, cfg)
}

func newStripeClient(base *BaseClient, orgLookup OrgBillingLookup, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		prices:    cfg.Prices,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		orgLookup: orgLookup,
		logger:    logger,
	}
}

type stripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type stripeCustomerSearchResult struct {
	Data []stripeCustomer `json:"data"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CustomerID        string `json:"customer"`
}

// EnsureCustomer retrieves or creates a Stripe customer for the org.
// Search-first to prevent duplicate customers:
//  1. Query the Stripe Search API for a metadata['org_id'] match.
//  2. If found, record and return the existing customer ID.
//  3. Otherwise create a new customer tagged with org_id metadata.
func (s *StripeClient) EnsureCustomer(ctx context.Context, orgID string, email string) (string, error) {
	searchQuery := fmt.Sprintf("metadata['org_id']:'%s'", orgID)
	params := url.Values{}
	params.Set("query", searchQuery)

	searchResp, err := s.doGet(ctx, "/v1/customers/search", params)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.search", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(searchResp, "EnsureCustomer.search")
	}

	var searchResult stripeCustomerSearchResult
	if err := json.NewDecoder(searchResp.Body).Decode(&searchResult); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer search response",
			err,
		)
	}

	if len(searchResult.Data) > 0 {
		customerID := searchResult.Data[0].ID
		if dbErr := s.orgLookup.UpdateStripeCustomerID(ctx, orgID, customerID); dbErr != nil {
			s.logger.WarnContext(ctx, "failed to record stripe_customer_id",
				"org_id", orgID,
				"customer_id", customerID,
				"error", dbErr,
			)
		}
		return customerID, nil
	}

	createParams := url.Values{}
	createParams.Set("email", email)
	createParams.Set("metadata[org_id]", orgID)

	createResp, err := s.doPost(ctx, "/v1/customers", createParams, "")
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.create", err)
	}
	defer createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(createResp, "EnsureCustomer.create")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(createResp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer creation response",
			err,
		)
	}

	if dbErr := s.orgLookup.UpdateStripeCustomerID(ctx, orgID, customer.ID); dbErr != nil {
		s.logger.WarnContext(ctx, "failed to record stripe_customer_id after creation",
			"org_id", orgID,
			"customer_id", customer.ID,
			"error", dbErr,
		)
	}

	return customer.ID, nil
}

// CheckoutParams carries everything needed to start a checkout session.
// Quantities are the resolved billable units from the pricing
// calculator, never raw form input. IdempotencyKey is generated and
// stored by the caller so a retried request cannot double-create.
type CheckoutParams struct {
	OrganizationID string
	SeatUnits      int
	BucketUnits    int
	Interval       types.BillingInterval
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CreateCheckoutSession generates a Stripe Checkout Session URL for a
// subscription covering the seat axis and, when selected, the
// alumni-bucket axis. client_reference_id carries the org ID for
// webhook correlation.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (checkoutURL string, sessionID string, err error) {
	customerID, _, err := s.resolveCustomerID(ctx, p.OrganizationID)
	if err != nil {
		return "", "", err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", p.OrganizationID)
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	params.Set("metadata[org_id]", p.OrganizationID)

	item := 0
	if p.SeatUnits > 0 {
		params.Set(fmt.Sprintf("line_items[%d][price]", item), s.prices.SeatPrice(p.Interval))
		params.Set(fmt.Sprintf("line_items[%d][quantity]", item), strconv.Itoa(p.SeatUnits))
		item++
	}
	if p.BucketUnits > 0 {
		params.Set(fmt.Sprintf("line_items[%d][price]", item), s.prices.BucketPrice(p.Interval))
		params.Set(fmt.Sprintf("line_items[%d][quantity]", item), strconv.Itoa(p.BucketUnits))
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params, p.IdempotencyKey)
	if err != nil {
		return "", "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return session.URL, session.ID, nil
}

// ScheduleCancelAtPeriodEnd flags the provider subscription for
// cancellation when the current period ends. Access is never revoked
// immediately.
func (s *StripeClient) ScheduleCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error {
	return s.setCancelAtPeriodEnd(ctx, stripeSubscriptionID, true)
}

// RevertCancelAtPeriodEnd clears a scheduled cancellation so the
// subscription renews normally.
func (s *StripeClient) RevertCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error {
	return s.setCancelAtPeriodEnd(ctx, stripeSubscriptionID, false)
}

func (s *StripeClient) setCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancel bool) error {
	params := url.Values{}
	params.Set("cancel_at_period_end", strconv.FormatBool(cancel))

	resp, err := s.doPost(ctx, "/v1/subscriptions/"+stripeSubscriptionID, params, "")
	if err != nil {
		return s.wrapStripeError("setCancelAtPeriodEnd", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, "setCancelAtPeriodEnd")
	}
	return nil
}

// GetSubscription fetches the provider-side subscription state. Used to
// reconcile the local mirror when a webhook delivery is suspect.
func (s *StripeClient) GetSubscription(ctx context.Context, stripeSubscriptionID string) (status string, cancelAtPeriodEnd bool, currentPeriodEnd time.Time, err error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+stripeSubscriptionID, nil)
	if err != nil {
		return "", false, time.Time{}, s.wrapStripeError("GetSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, time.Time{}, s.handleErrorResponse(resp, "GetSubscription")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", false, time.Time{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}
	return sub.Status, sub.CancelAtPeriodEnd, time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request with a form-encoded
// body. A non-empty idempotencyKey is forwarded so Stripe deduplicates
// retried mutations.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values, idempotencyKey string) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// resolveCustomerID fetches the Stripe customer ID for the org.
func (s *StripeClient) resolveCustomerID(ctx context.Context, orgID string) (string, string, error) {
	customerID, email, err := s.orgLookup.GetBillingInfo(ctx, orgID)
	if err != nil {
		return "", "", err
	}
	if customerID == "" {
		return "", "", types.NewAppError(
			types.ErrCodeNotFoundOrg,
			fmt.Sprintf("organization %s has no Stripe customer ID; call EnsureCustomer first", orgID),
			nil,
		)
	}
	return customerID, email, nil
}

// stripeErrorResponse represents the JSON error body returned by Stripe.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to an
// AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned %d (body unreadable)", operation, resp.StatusCode),
			readErr,
		)
	}

	var errResp stripeErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned %d", operation, resp.StatusCode),
			nil,
		)
	}

	s.logger.Warn("stripe api error",
		slog.String("operation", operation),
		slog.Int("status", resp.StatusCode),
		slog.String("type", errResp.Error.Type),
		slog.String("code", errResp.Error.Code),
		slog.String("param", errResp.Error.Param),
	)

	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: %s", operation, errResp.Error.Message),
		nil,
	)
}

// wrapStripeError annotates a BaseClient failure with the operation name.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if appErr, ok := err.(*types.AppError); ok {
		return appErr.WithDetails(map[string]any{"operation": operation})
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: request failed", operation),
		err,
	)
}

// StripeVerifier verifies webhook signatures using stripe-go's
// ValidatePayload, which checks both the HMAC signature and the
// timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature
// header and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
