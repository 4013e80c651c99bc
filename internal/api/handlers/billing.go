// Package handlers contains the HTTP handler implementations for the
// TeamNetwork API. Handlers define their service contracts as local
// interfaces and receive implementations via constructor injection,
// which keeps them decoupled from concrete repositories and clients and
// makes test mocking straightforward.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"teamnetwork/internal/billing"
	"teamnetwork/internal/core"
	"teamnetwork/internal/external"
	"teamnetwork/internal/types"
)

// --- Service Interfaces ---

// PaymentProvider abstracts the Stripe client surface the billing
// handler needs. Satisfied by *external.StripeClient.
type PaymentProvider interface {
	EnsureCustomer(ctx context.Context, orgID string, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, p external.CheckoutParams) (checkoutURL string, sessionID string, err error)
	ScheduleCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error
	RevertCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string) error
}

// SubscriptionStore is the subscription repository surface used here.
type SubscriptionStore interface {
	GetByOrganization(ctx context.Context, orgID string) (*types.Subscription, error)
	Create(ctx context.Context, sub *types.Subscription) error
	TransitionStatus(ctx context.Context, subscriptionID string, from, to types.SubscriptionStatus) error
}

// OrgReader resolves organizations from URL slugs.
type OrgReader interface {
	GetBySlug(ctx context.Context, slug string) (*types.Organization, error)
}

// ActorResolver builds the fully-scoped Actor (role and membership
// status within one organization) for an authenticated user. Satisfied
// by *auth.Service.
type ActorResolver interface {
	ActorForOrg(ctx context.Context, userID, orgID string) (types.Actor, error)
}

// AuditRecorder records business events. Audit writes are best-effort:
// failures are logged by the recorder and never fail the request.
type AuditRecorder interface {
	Record(ctx context.Context, event types.AuditEvent) error
}

// BillingNotifier queues billing lifecycle emails to the org's billing
// contact. Satisfied by *notifications.Fanout.
type BillingNotifier interface {
	BillingEvent(ctx context.Context, org *types.Organization, event types.EventType, body string) error
}

// --- Request/Response Models ---

// QuoteRequest is the request body for POST /v1/billing/quote. The
// endpoint is a pure price preview; it touches no organization state
// and is usable before an org exists.
type QuoteRequest struct {
	SeatQuantity   int                   `json:"seat_quantity" validate:"required,min=1,max=100"`
	BucketQuantity int                   `json:"bucket_quantity" validate:"min=0"`
	Interval       types.BillingInterval `json:"interval" validate:"required,oneof=month year"`
}

// QuoteResponse renders a computed quote plus the display strings the
// UI shows verbatim.
type QuoteResponse struct {
	Quote         billing.Quote `json:"quote"`
	Display       string        `json:"display"`
	SeatsDisplay  string        `json:"seats_display,omitempty"`
	AlumniDisplay string        `json:"alumni_display,omitempty"`
}

// CheckoutRequest is the request body for POST /v1/orgs/{slug}/billing/checkout.
//
// Success and cancel URLs are constructed server-side from the
// configured app base URL; accepting them from the client would be an
// open redirect.
type CheckoutRequest struct {
	SeatQuantity   int                   `json:"seat_quantity" validate:"required,min=1,max=100"`
	BucketQuantity int                   `json:"bucket_quantity" validate:"min=0"`
	Interval       types.BillingInterval `json:"interval" validate:"required,oneof=month year"`
}

// CheckoutResponse is the response for POST /v1/orgs/{slug}/billing/checkout.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// SubscriptionResponse is the response for subscription reads and
// lifecycle transitions.
type SubscriptionResponse struct {
	Status           types.SubscriptionStatus `json:"status"`
	SeatQuantity     int                      `json:"seat_quantity,omitempty"`
	BucketQuantity   int                      `json:"bucket_quantity,omitempty"`
	Interval         types.BillingInterval    `json:"interval,omitempty"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end,omitempty"`
}

// BillingHandler serves pricing quotes, checkout session creation, and
// the subscription cancel/resume lifecycle.
type BillingHandler struct {
	calculator *billing.Calculator
	provider   PaymentProvider
	subs       SubscriptionStore
	orgs       OrgReader
	actors     ActorResolver
	audit      AuditRecorder
	notifier   BillingNotifier
	validator  *core.Validator
	appBaseURL string
	logger     *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(
	calculator *billing.Calculator,
	provider PaymentProvider,
	subs SubscriptionStore,
	orgs OrgReader,
	actors ActorResolver,
	audit AuditRecorder,
	notifier BillingNotifier,
	validator *core.Validator,
	appBaseURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		calculator: calculator,
		provider:   provider,
		subs:       subs,
		orgs:       orgs,
		actors:     actors,
		audit:      audit,
		notifier:   notifier,
		validator:  validator,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
}

// RegisterRoutes mounts billing endpoints on the v1 router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/quote", h.Quote)

	r.Route("/orgs/{slug}/billing", func(r chi.Router) {
		r.Post("/checkout", h.CreateCheckout)
		r.Get("/subscription", h.GetSubscription)
		r.Post("/subscription/cancel", h.CancelSubscription)
		r.Post("/subscription/resume", h.ResumeSubscription)
	})
}

// Quote handles POST /v1/billing/quote. Sales-led selections return a
// successful response with SalesLed set; they are a distinct outcome,
// not an error.
func (h *BillingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	quote, err := h.calculator.ComputeQuote(billing.PricingSelection{
		SeatQuantity:   req.SeatQuantity,
		BucketQuantity: req.BucketQuantity,
		Interval:       req.Interval,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := QuoteResponse{
		Quote:   quote,
		Display: quote.Display(),
	}
	if !quote.SalesLed {
		resp.SeatsDisplay = quote.Seats.Display()
		resp.AlumniDisplay = quote.Alumni.Display()
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// CreateCheckout handles POST /v1/orgs/{slug}/billing/checkout. It
// reprices the selection server-side (client totals are never trusted),
// rejects sales-led selections, ensures a Stripe customer exists, and
// returns the checkout session URL. Stripe receives only the billable
// units; free allocations never become line items.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	org, actor, err := h.resolveOrgAdmin(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	quote, err := h.calculator.ComputeQuote(billing.PricingSelection{
		SeatQuantity:   req.SeatQuantity,
		BucketQuantity: req.BucketQuantity,
		Interval:       req.Interval,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if quote.SalesLed {
		core.Error(w, r, types.NewAppError(types.ErrCodeBillingSalesLed,
			"This alumni capacity requires a custom quote. Contact sales to proceed.", nil))
		return
	}
	// A selection inside the free allocation has no line items to send
	// to Stripe; a zero-item subscription session would be rejected
	// upstream.
	if quote.Seats.BillableUnits == 0 && quote.Alumni.BillableUnits == 0 {
		core.Error(w, r, types.NewAppError(types.ErrCodeBillingNothingToBill,
			"The selected quantities are fully covered by the free allocation. There is nothing to bill.", nil))
		return
	}

	if _, err := h.provider.EnsureCustomer(r.Context(), org.ID, org.BillingEmail); err != nil {
		core.Error(w, r, err)
		return
	}

	// The local subscription row is created before checkout so the
	// completion webhook has something to attach the provider reference
	// to. Its status is advisory until that attachment happens.
	sub, err := h.subs.GetByOrganization(r.Context(), org.ID)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSubscription {
			core.Error(w, r, err)
			return
		}
		sub = &types.Subscription{
			ID:                   uuid.NewString(),
			OrganizationID:       org.ID,
			Status:               types.SubStatusActive,
			SeatQuantity:         req.SeatQuantity,
			AlumniBucketQuantity: req.BucketQuantity,
			Interval:             req.Interval,
		}
		if err := h.subs.Create(r.Context(), sub); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	billingPath := h.appBaseURL + "/app/" + org.Slug + "/billing"
	checkoutURL, sessionID, err := h.provider.CreateCheckoutSession(r.Context(), external.CheckoutParams{
		OrganizationID: org.ID,
		SeatUnits:      quote.Seats.BillableUnits,
		BucketUnits:    quote.Alumni.BillableUnits,
		Interval:       req.Interval,
		SuccessURL:     billingPath + "?checkout=success",
		CancelURL:      billingPath + "?checkout=canceled",
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r.Context(), actor, types.AuditActionCheckoutCreated, sub.ID, "subscription")

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CheckoutResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}

// GetSubscription handles GET /v1/orgs/{slug}/billing/subscription.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	org, _, err := h.resolveOrgAdmin(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.subs.GetByOrganization(r.Context(), org.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscriptionResponse{
		Status:           sub.Status,
		SeatQuantity:     sub.SeatQuantity,
		BucketQuantity:   sub.AlumniBucketQuantity,
		Interval:         sub.Interval,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}})
}

// CancelSubscription handles POST /v1/orgs/{slug}/billing/subscription/cancel.
// Cancellation is always scheduled for period end; access is never
// revoked immediately. The lifecycle core decides, the handler performs
// the owed provider call and persists the transition with a conditional
// update so concurrent cancel and resume requests cannot interleave.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.lifecycleTransition(w, r, billing.Cancel,
		types.AuditActionCancelScheduled,
		types.EventBillingCancelScheduled,
		"Your subscription is scheduled to cancel at the end of the current billing period.")
}

// ResumeSubscription handles POST /v1/orgs/{slug}/billing/subscription/resume.
func (h *BillingHandler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	h.lifecycleTransition(w, r, billing.Resume,
		types.AuditActionCancelReverted,
		types.EventBillingResumed,
		"Your subscription has been resumed and will renew normally.")
}

// lifecycleTransition runs the shared cancel/resume flow: resolve the
// org and actor, load the subscription, let the pure lifecycle function
// decide, then execute the provider action and persist the status.
func (h *BillingHandler) lifecycleTransition(
	w http.ResponseWriter,
	r *http.Request,
	transition func(types.Actor, *types.Subscription) (billing.LifecycleResult, error),
	auditAction string,
	event types.EventType,
	notificationBody string,
) {
	org, err := h.orgs.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The lifecycle core owns the precondition ordering (auth before
	// role before existence), so an unauthenticated request and a
	// missing subscription are both passed through to it rather than
	// short-circuited here.
	var actor types.Actor
	if ctxActor, ok := types.GetActor(r.Context()); ok && ctxActor.Authenticated() {
		actor, err = h.actors.ActorForOrg(r.Context(), ctxActor.ID, org.ID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
	}

	sub, err := h.subs.GetByOrganization(r.Context(), org.ID)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundSubscription {
			core.Error(w, r, err)
			return
		}
		sub = nil
	}

	result, err := transition(actor, sub)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	switch result.ProviderAction {
	case billing.ProviderActionScheduleCancel:
		err = h.provider.ScheduleCancelAtPeriodEnd(r.Context(), *sub.StripeSubscriptionID)
	case billing.ProviderActionRevertCancel:
		err = h.provider.RevertCancelAtPeriodEnd(r.Context(), *sub.StripeSubscriptionID)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.subs.TransitionStatus(r.Context(), sub.ID, sub.Status, result.Status); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r.Context(), actor, auditAction, sub.ID, "subscription")
	if h.notifier != nil {
		if notifyErr := h.notifier.BillingEvent(r.Context(), org, event, notificationBody); notifyErr != nil {
			h.logger.Warn("failed to queue billing notification",
				slog.String("organization_id", org.ID),
				slog.String("event", string(event)),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscriptionResponse{
		Status:           result.Status,
		CurrentPeriodEnd: result.CurrentPeriodEnd,
	}})
}

// resolveOrgAdmin resolves the org from the URL slug and requires the
// caller to be an authenticated admin of it.
func (h *BillingHandler) resolveOrgAdmin(r *http.Request) (*types.Organization, types.Actor, error) {
	org, err := h.orgs.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		return nil, types.Actor{}, err
	}

	ctxActor, err := core.RequireActor(r.Context())
	if err != nil {
		return nil, types.Actor{}, err
	}

	actor, err := h.actors.ActorForOrg(r.Context(), ctxActor.ID, org.ID)
	if err != nil {
		return nil, types.Actor{}, err
	}
	if actor.Role != types.RoleAdmin {
		return nil, types.Actor{}, types.NewAppError(types.ErrCodePermissionRole,
			"Only organization admins can manage billing", nil)
	}
	return org, actor, nil
}

// recordAudit writes an audit event, logging rather than failing on
// error.
func (h *BillingHandler) recordAudit(ctx context.Context, actor types.Actor, action, resourceID, resourceType string) {
	if h.audit == nil {
		return
	}
	event := types.AuditEvent{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       action,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
	}
	if err := h.audit.Record(ctx, event); err != nil {
		h.logger.Warn("failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
	}
}
