package types

// MembershipStatus represents a user's standing within an organization.
// It is resolved once per request by the calling layer and passed into
// the routing/billing cores; the cores never re-derive it.
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipPending MembershipStatus = "pending"
	MembershipRevoked MembershipStatus = "revoked"
)

// OrgRole defines authorization levels within an organization.
type OrgRole string

const (
	RoleAdmin        OrgRole = "admin"
	RoleActiveMember OrgRole = "active_member"
	RoleAlumni       OrgRole = "alumni"
	RoleNone         OrgRole = "none"
)

// SubscriptionStatus represents the lifecycle state of an organization's
// billing subscription. "canceling" means cancellation is scheduled for
// period end; the subscription is still functionally active until then.
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusCanceling SubscriptionStatus = "canceling"
	SubStatusCanceled  SubscriptionStatus = "canceled"
	SubStatusPastDue   SubscriptionStatus = "past_due"
)

// BillingInterval identifies the billing cycle length.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// AlumniTier identifies a named alumni-capacity tier. Tiers carry an
// alumni-count ceiling but no marginal price; the bucket model in
// internal/billing is the billed variant.
type AlumniTier string

const (
	AlumniTier1 AlumniTier = "tier_1"
	AlumniTier2 AlumniTier = "tier_2"
	AlumniTier3 AlumniTier = "tier_3"
)

// InviteStatus represents the lifecycle state of a member invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusExpired  InviteStatus = "expired"
	InviteStatusRevoked  InviteStatus = "revoked"
)

// EventType identifies the kind of notification event published to the
// notification queue.
type EventType string

const (
	EventInviteCreated          EventType = "invite_created"
	EventAnnouncementPublished  EventType = "announcement_published"
	EventMembershipApproved     EventType = "membership_approved"
	EventMembershipRevoked      EventType = "membership_revoked"
	EventBillingCancelScheduled EventType = "billing_cancel_scheduled"
	EventBillingResumed         EventType = "billing_resumed"
)

// DeliveryStatus enumerates the states of a notification delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
)

// HasAtLeast reports whether the role meets or exceeds min in the
// hierarchy Admin > ActiveMember > Alumni > None.
func (r OrgRole) HasAtLeast(min OrgRole) bool {
	return roleRank(r) >= roleRank(min)
}

func roleRank(r OrgRole) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleActiveMember:
		return 2
	case RoleAlumni:
		return 1
	default:
		return 0
	}
}
