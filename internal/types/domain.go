package types

import "time"

// Organization represents a billable entity that owns members, events,
// and announcements. The slug is the first path segment of org routes
// (e.g. /acme-rowing/events).
type Organization struct {
	ID               string     `json:"id" db:"id"`
	Slug             string     `json:"slug" db:"slug"`
	Name             string     `json:"name" db:"name"`
	BillingEmail     string     `json:"billing_email" db:"billing_email"`
	StripeCustomerID string     `json:"-" db:"stripe_customer_id"`
	AlumniTier       AlumniTier `json:"alumni_tier" db:"alumni_tier"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time `json:"-" db:"deleted_at"`
}

// Member represents a user's membership in an organization.
type Member struct {
	ID             string           `json:"id" db:"id"`
	OrganizationID string           `json:"organization_id" db:"organization_id"`
	UserID         string           `json:"user_id" db:"user_id"`
	Email          string           `json:"email" db:"email"`
	Name           string           `json:"name,omitempty" db:"name"`
	Role           OrgRole          `json:"role" db:"role"`
	Status         MembershipStatus `json:"status" db:"status"`
	GraduationYear *int             `json:"graduation_year,omitempty" db:"graduation_year"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// User represents an authenticated account. Membership records link
// users to organizations; a user may belong to several.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name,omitempty" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Session is a server-side login session resolved from the session cookie.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subscription is the local mirror of an organization's billing
// subscription. The status column is advisory when no provider
// subscription exists (checkout never completed); Stripe remains the
// source of truth for money movement.
type Subscription struct {
	ID                   string             `json:"id" db:"id"`
	OrganizationID       string             `json:"organization_id" db:"organization_id"`
	StripeSubscriptionID *string            `json:"-" db:"stripe_subscription_id"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	SeatQuantity         int                `json:"seat_quantity" db:"seat_quantity"`
	AlumniBucketQuantity int                `json:"alumni_bucket_quantity" db:"alumni_bucket_quantity"`
	Interval             BillingInterval    `json:"interval" db:"billing_interval"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// Invite is a pending membership invitation. The raw token is only ever
// sent to the invitee; the database stores its hash.
type Invite struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	Email          string       `json:"email" db:"email"`
	Role           OrgRole      `json:"role" db:"role"`
	TokenHash      string       `json:"-" db:"token_hash"`
	Status         InviteStatus `json:"status" db:"status"`
	InvitedBy      string       `json:"invited_by" db:"invited_by"`
	ExpiresAt      time.Time    `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Announcement is an org-wide message fanned out to active members
// through the notification queue.
type Announcement struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	AuthorID       string    `json:"author_id" db:"author_id"`
	Title          string    `json:"title" db:"title"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AuditEvent records an action taken on a resource for auditing purposes.
type AuditEvent struct {
	ID           string    `json:"id"`
	Actor        Actor     `json:"actor"`
	Action       string    `json:"action"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	Timestamp    time.Time `json:"timestamp"`
}

// Standard audit action strings. Handlers MUST use these for consistency.
const (
	AuditActionCheckoutCreated   = "billing.checkout.created"
	AuditActionCancelScheduled   = "billing.cancel.scheduled"
	AuditActionCancelReverted    = "billing.cancel.reverted"
	AuditActionMemberApproved    = "member.approved"
	AuditActionMemberRevoked     = "member.revoked"
	AuditActionInviteCreated     = "invite.created"
	AuditActionAnnouncementSent  = "announcement.published"
	AuditActionMembersExported   = "members.exported"
)

// NotificationMessage is the payload published to the notification SQS
// queue and consumed by the notify worker.
type NotificationMessage struct {
	ID             string    `json:"id"`
	Event          EventType `json:"event"`
	OrganizationID string    `json:"organization_id"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	RetryCount     int       `json:"retry_count"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}
