package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"teamnetwork/internal/core"
	"teamnetwork/internal/types"
)

// stripeWebhookPath must match the URL configured in the Stripe
// dashboard exactly; it also has a dedicated bypass in the edge router
// so the canonical-host redirect cannot eat webhook deliveries.
const stripeWebhookPath = "/api/stripe/webhook"

// maxWebhookBodySize bounds the webhook payload read. Stripe events are
// small; anything larger is not a legitimate delivery.
const maxWebhookBodySize = 64 * 1024

// SignatureVerifier validates a webhook payload against its signature
// header. Satisfied by *external.StripeVerifier.
type SignatureVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// WebhookSubscriptionStore is the subscription repository surface the
// webhook handler needs.
type WebhookSubscriptionStore interface {
	GetByOrganization(ctx context.Context, orgID string) (*types.Subscription, error)
	AttachProviderReference(ctx context.Context, subscriptionID, stripeSubscriptionID string) error
	SyncFromProvider(ctx context.Context, stripeSubscriptionID string, status types.SubscriptionStatus, currentPeriodEnd *time.Time, eventTimestamp time.Time) error
}

// StripeWebhookHandler processes billing events pushed by Stripe. The
// local subscriptions table is a mirror; these events are how it tracks
// the provider's state. Handlers must be idempotent: Stripe retries
// deliveries and may reorder them.
type StripeWebhookHandler struct {
	verifier      SignatureVerifier
	subs          WebhookSubscriptionStore
	signingSecret string
	logger        *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier SignatureVerifier,
	subs WebhookSubscriptionStore,
	signingSecret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:      verifier,
		subs:          subs,
		signingSecret: signingSecret,
		logger:        logger,
	}
}

// RegisterRoutes mounts the webhook endpoint on the root router. The
// path is outside /api/v1 because Stripe signs the exact URL it was
// configured with.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post(stripeWebhookPath, h.HandleWebhook)
}

// stripeEvent is the envelope of a Stripe webhook delivery. Only the
// fields this handler consumes are decoded.
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeEventSubscription is the subscription object embedded in
// customer.subscription.* events.
type stripeEventSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

// stripeEventCheckoutSession is the session object embedded in
// checkout.session.completed events.
type stripeEventCheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	Subscription      string `json:"subscription"`
}

// HandleWebhook verifies the delivery signature and dispatches on event
// type. Unhandled event types are acknowledged so Stripe stops
// retrying them.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"), h.signingSecret); err != nil {
		h.logger.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed,
			"invalid webhook signature", err))
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to decode webhook event", err))
		return
	}

	var handleErr error
	switch event.Type {
	case "checkout.session.completed":
		handleErr = h.handleCheckoutCompleted(r.Context(), event)
	case "customer.subscription.updated":
		handleErr = h.handleSubscriptionUpdated(r.Context(), event)
	case "customer.subscription.deleted":
		handleErr = h.handleSubscriptionDeleted(r.Context(), event)
	default:
		h.logger.Debug("ignoring unhandled webhook event",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
	}
	if handleErr != nil {
		h.logger.Error("webhook processing failed",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
			slog.String("error", handleErr.Error()),
		)
		core.Error(w, r, handleErr)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

// handleCheckoutCompleted links the provider subscription created by a
// completed checkout to the local row. client_reference_id carries the
// organization ID set at session creation.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripeEvent) error {
	var session stripeEventCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to decode checkout session object", err)
	}
	if session.ClientReferenceID == "" || session.Subscription == "" {
		h.logger.Warn("checkout completion missing references",
			slog.String("event_id", event.ID),
			slog.String("session_id", session.ID),
		)
		return nil
	}

	sub, err := h.subs.GetByOrganization(ctx, session.ClientReferenceID)
	if err != nil {
		return err
	}
	return h.subs.AttachProviderReference(ctx, sub.ID, session.Subscription)
}

// handleSubscriptionUpdated mirrors the provider state change. The
// event's created timestamp drives the optimistic lock so reordered
// deliveries cannot regress the mirror.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event stripeEvent) error {
	sub, err := decodeEventSubscription(event)
	if err != nil {
		return err
	}

	return h.subs.SyncFromProvider(ctx,
		sub.ID,
		mapProviderStatus(sub.Status, sub.CancelAtPeriodEnd),
		periodEnd(sub.CurrentPeriodEnd),
		time.Unix(event.Created, 0).UTC(),
	)
}

// handleSubscriptionDeleted marks the mirror canceled. The period has
// ended; the canceling state scheduled earlier resolves here.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripeEvent) error {
	sub, err := decodeEventSubscription(event)
	if err != nil {
		return err
	}

	return h.subs.SyncFromProvider(ctx,
		sub.ID,
		types.SubStatusCanceled,
		periodEnd(sub.CurrentPeriodEnd),
		time.Unix(event.Created, 0).UTC(),
	)
}

func decodeEventSubscription(event stripeEvent) (stripeEventSubscription, error) {
	var sub stripeEventSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return sub, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to decode subscription object", err)
	}
	if sub.ID == "" {
		return sub, types.NewAppError(types.ErrCodeValidationFailed,
			"subscription event missing id", nil)
	}
	return sub, nil
}

// mapProviderStatus translates Stripe's subscription status into the
// local lifecycle state. cancel_at_period_end takes precedence: Stripe
// reports such subscriptions as active, locally they are canceling.
func mapProviderStatus(stripeStatus string, cancelAtPeriodEnd bool) types.SubscriptionStatus {
	if cancelAtPeriodEnd {
		return types.SubStatusCanceling
	}
	switch stripeStatus {
	case "past_due", "unpaid":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	default:
		return types.SubStatusActive
	}
}

func periodEnd(unix int64) *time.Time {
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
