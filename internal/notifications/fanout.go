package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"teamnetwork/internal/types"
)

// fanoutConcurrency caps parallel SQS publishes during a fan-out so a
// large organization cannot exhaust the connection pool.
const fanoutConcurrency = 8

// RecipientLister returns the email addresses a fan-out should reach.
type RecipientLister interface {
	ListActiveEmails(ctx context.Context, orgID string) ([]string, error)
}

// MessagePublisher is the publishing side of the queue, satisfied by
// *Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, msg types.NotificationMessage, delay time.Duration) error
}

// Fanout expands a single domain event into one queued notification per
// recipient.
type Fanout struct {
	members   RecipientLister
	publisher MessagePublisher
	logger    *slog.Logger
}

// NewFanout creates a Fanout.
func NewFanout(members RecipientLister, publisher MessagePublisher, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		members:   members,
		publisher: publisher,
		logger:    logger,
	}
}

// AnnouncementPublished queues one notification per active member of
// the organization. Publishes run concurrently; the first failure
// cancels the remainder and is returned, so the caller can surface a
// partial fan-out.
func (f *Fanout) AnnouncementPublished(ctx context.Context, org *types.Organization, a *types.Announcement) error {
	emails, err := f.members.ListActiveEmails(ctx, org.ID)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] %s", org.Name, a.Title)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for _, email := range emails {
		msg := types.NotificationMessage{
			ID:             uuid.NewString(),
			Event:          types.EventAnnouncementPublished,
			OrganizationID: org.ID,
			RecipientEmail: email,
			Subject:        subject,
			Body:           a.Body,
			EnqueuedAt:     time.Now().UTC(),
		}
		g.Go(func() error {
			return f.publisher.Publish(gctx, msg, 0)
		})
	}
	if err := g.Wait(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "announcement fan-out failed", err)
	}

	f.logger.Info("announcement fan-out complete",
		slog.String("announcement_id", a.ID),
		slog.String("organization_id", org.ID),
		slog.Int("recipients", len(emails)),
	)
	return nil
}

// InviteCreated queues the invitation email. The raw token is embedded
// in the accept link and exists nowhere else.
func (f *Fanout) InviteCreated(ctx context.Context, org *types.Organization, invite *types.Invite, acceptURL string) error {
	msg := types.NotificationMessage{
		ID:             uuid.NewString(),
		Event:          types.EventInviteCreated,
		OrganizationID: org.ID,
		RecipientEmail: invite.Email,
		Subject:        fmt.Sprintf("You've been invited to join %s", org.Name),
		Body:           fmt.Sprintf("Accept your invitation: %s", acceptURL),
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := f.publisher.Publish(ctx, msg, 0); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to queue invite notification", err)
	}
	return nil
}

// MembershipChanged queues a status notification to the affected
// member.
func (f *Fanout) MembershipChanged(ctx context.Context, org *types.Organization, member *types.Member, event types.EventType) error {
	var subject, body string
	switch event {
	case types.EventMembershipApproved:
		subject = fmt.Sprintf("Welcome to %s", org.Name)
		body = fmt.Sprintf("Your membership in %s has been approved.", org.Name)
	case types.EventMembershipRevoked:
		subject = fmt.Sprintf("Your access to %s has changed", org.Name)
		body = fmt.Sprintf("Your membership in %s has been revoked. Contact an organization admin if you believe this is a mistake.", org.Name)
	default:
		return fmt.Errorf("unsupported membership event %q", event)
	}

	msg := types.NotificationMessage{
		ID:             uuid.NewString(),
		Event:          event,
		OrganizationID: org.ID,
		RecipientEmail: member.Email,
		Subject:        subject,
		Body:           body,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := f.publisher.Publish(ctx, msg, 0); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to queue membership notification", err)
	}
	return nil
}

// BillingEvent queues a billing lifecycle notification to the
// organization's billing email.
func (f *Fanout) BillingEvent(ctx context.Context, org *types.Organization, event types.EventType, body string) error {
	var subject string
	switch event {
	case types.EventBillingCancelScheduled:
		subject = fmt.Sprintf("Subscription cancellation scheduled for %s", org.Name)
	case types.EventBillingResumed:
		subject = fmt.Sprintf("Subscription resumed for %s", org.Name)
	default:
		return fmt.Errorf("unsupported billing event %q", event)
	}

	msg := types.NotificationMessage{
		ID:             uuid.NewString(),
		Event:          event,
		OrganizationID: org.ID,
		RecipientEmail: org.BillingEmail,
		Subject:        subject,
		Body:           body,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := f.publisher.Publish(ctx, msg, 0); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to queue billing notification", err)
	}
	return nil
}
