package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"teamnetwork/internal/auth"
	"teamnetwork/internal/core"
	"teamnetwork/internal/types"
)

// inviteTTL is how long an invitation token stays redeemable.
const inviteTTL = 14 * 24 * time.Hour

// --- Service Interfaces ---

// OrgStore is the organization repository surface used here.
type OrgStore interface {
	GetBySlug(ctx context.Context, slug string) (*types.Organization, error)
	Create(ctx context.Context, org *types.Organization) error
}

// MemberStore is the member repository surface used here.
type MemberStore interface {
	GetByID(ctx context.Context, memberID string) (*types.Member, error)
	GetMembership(ctx context.Context, userID, orgID string) (*types.Member, error)
	ListByOrganization(ctx context.Context, orgID string, statuses []types.MembershipStatus) ([]types.Member, error)
	Create(ctx context.Context, m *types.Member) error
	SetStatus(ctx context.Context, memberID string, from, to types.MembershipStatus) error
}

// InviteStore is the invite repository surface used here.
type InviteStore interface {
	Create(ctx context.Context, inv *types.Invite) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*types.Invite, error)
	ListPending(ctx context.Context, orgID string) ([]types.Invite, error)
	SetStatus(ctx context.Context, inviteID string, from, to types.InviteStatus) error
}

// AnnouncementStore is the announcement repository surface used here.
type AnnouncementStore interface {
	Create(ctx context.Context, a *types.Announcement) error
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]types.Announcement, error)
}

// AuditReader lists recorded audit events for an organization.
type AuditReader interface {
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]types.AuditEvent, error)
}

// UserReader resolves user records for membership creation.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// MembershipNotifier queues member-facing notifications. Satisfied by
// *notifications.Fanout.
type MembershipNotifier interface {
	AnnouncementPublished(ctx context.Context, org *types.Organization, a *types.Announcement) error
	InviteCreated(ctx context.Context, org *types.Organization, invite *types.Invite, acceptURL string) error
	MembershipChanged(ctx context.Context, org *types.Organization, member *types.Member, event types.EventType) error
}

// --- Request/Response Models ---

// CreateOrgRequest is the request body for POST /v1/orgs.
type CreateOrgRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=120"`
	Slug         string `json:"slug" validate:"required,min=2,max=63"`
	BillingEmail string `json:"billing_email" validate:"required,email"`
}

// CreateInviteRequest is the request body for POST /v1/orgs/{slug}/invites.
type CreateInviteRequest struct {
	Email string        `json:"email" validate:"required,email"`
	Role  types.OrgRole `json:"role" validate:"required,oneof=admin active_member alumni"`
}

// AcceptInviteRequest is the request body for POST /v1/invites/accept.
type AcceptInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

// CreateAnnouncementRequest is the request body for
// POST /v1/orgs/{slug}/announcements.
type CreateAnnouncementRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=10000"`
}

// MemberListResponse wraps a member listing.
type MemberListResponse struct {
	Members []types.Member `json:"members"`
	Total   int            `json:"total"`
}

// OrgHandler serves organization, membership, invite, announcement, and
// audit endpoints.
type OrgHandler struct {
	orgs          OrgStore
	members       MemberStore
	invites       InviteStore
	announcements AnnouncementStore
	auditLog      AuditReader
	users         UserReader
	actors        ActorResolver
	audit         AuditRecorder
	notifier      MembershipNotifier
	validator     *core.Validator
	appBaseURL    string
	logger        *slog.Logger
}

// NewOrgHandler creates an OrgHandler.
func NewOrgHandler(
	orgs OrgStore,
	members MemberStore,
	invites InviteStore,
	announcements AnnouncementStore,
	auditLog AuditReader,
	users UserReader,
	actors ActorResolver,
	audit AuditRecorder,
	notifier MembershipNotifier,
	validator *core.Validator,
	appBaseURL string,
	logger *slog.Logger,
) *OrgHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrgHandler{
		orgs:          orgs,
		members:       members,
		invites:       invites,
		announcements: announcements,
		auditLog:      auditLog,
		users:         users,
		actors:        actors,
		audit:         audit,
		notifier:      notifier,
		validator:     validator,
		appBaseURL:    appBaseURL,
		logger:        logger,
	}
}

// RegisterRoutes mounts organization endpoints on the v1 router.
func (h *OrgHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orgs", h.CreateOrg)
	r.Post("/invites/accept", h.AcceptInvite)

	r.Route("/orgs/{slug}", func(r chi.Router) {
		r.Get("/", h.GetOrg)
		r.Get("/members", h.ListMembers)
		r.Post("/members/{memberID}/approve", h.ApproveMember)
		r.Post("/members/{memberID}/revoke", h.RevokeMember)
		r.Get("/invites", h.ListInvites)
		r.Post("/invites", h.CreateInvite)
		r.Get("/announcements", h.ListAnnouncements)
		r.Post("/announcements", h.CreateAnnouncement)
		r.Get("/audit", h.ListAuditEvents)
	})
}

// CreateOrg handles POST /v1/orgs. The creating user becomes the
// organization's first admin with an active membership.
func (h *OrgHandler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	actor, err := core.RequireActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateOrgRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	org := &types.Organization{
		ID:           uuid.NewString(),
		Slug:         req.Slug,
		Name:         req.Name,
		BillingEmail: req.BillingEmail,
		AlumniTier:   types.AlumniTier1,
	}
	if err := h.orgs.Create(r.Context(), org); err != nil {
		core.Error(w, r, err)
		return
	}

	founder := &types.Member{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Role:           types.RoleAdmin,
		Status:         types.MembershipActive,
	}
	if err := h.members.Create(r.Context(), founder); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: org})
}

// GetOrg handles GET /v1/orgs/{slug}. Any member of the organization
// may read it.
func (h *OrgHandler) GetOrg(w http.ResponseWriter, r *http.Request) {
	org, _, err := h.resolveOrgActor(r, types.RoleAlumni)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: org})
}

// ListMembers handles GET /v1/orgs/{slug}/members. An optional ?status=
// query filters by membership status; admins see all, active members
// see only active peers.
func (h *OrgHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	org, actor, err := h.resolveOrgActor(r, types.RoleActiveMember)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var statuses []types.MembershipStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = []types.MembershipStatus{types.MembershipStatus(raw)}
	}
	if actor.Role != types.RoleAdmin {
		statuses = []types.MembershipStatus{types.MembershipActive}
	}

	members, err := h.members.ListByOrganization(r.Context(), org.ID, statuses)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: MemberListResponse{Members: members, Total: len(members)},
	})
}

// ApproveMember handles POST /v1/orgs/{slug}/members/{memberID}/approve.
// Moves a pending membership to active with a conditional update, so
// two admins approving concurrently produce exactly one transition.
func (h *OrgHandler) ApproveMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r,
		types.MembershipPending, types.MembershipActive,
		types.AuditActionMemberApproved, types.EventMembershipApproved)
}

// RevokeMember handles POST /v1/orgs/{slug}/members/{memberID}/revoke.
// The revoked state takes effect on the member's next request through
// the edge router.
func (h *OrgHandler) RevokeMember(w http.ResponseWriter, r *http.Request) {
	h.memberTransition(w, r,
		types.MembershipActive, types.MembershipRevoked,
		types.AuditActionMemberRevoked, types.EventMembershipRevoked)
}

func (h *OrgHandler) memberTransition(
	w http.ResponseWriter,
	r *http.Request,
	from, to types.MembershipStatus,
	auditAction string,
	event types.EventType,
) {
	org, actor, err := h.resolveOrgActor(r, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	member, err := h.members.GetByID(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if member.OrganizationID != org.ID {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundMember, "member not found", nil))
		return
	}

	if err := h.members.SetStatus(r.Context(), member.ID, from, to); err != nil {
		core.Error(w, r, err)
		return
	}
	member.Status = to

	h.recordAudit(r.Context(), actor, auditAction, member.ID, "member")
	if h.notifier != nil {
		if notifyErr := h.notifier.MembershipChanged(r.Context(), org, member, event); notifyErr != nil {
			h.logger.Warn("failed to queue membership notification",
				slog.String("member_id", member.ID),
				slog.String("event", string(event)),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: member})
}

// CreateInvite handles POST /v1/orgs/{slug}/invites. The raw token is
// embedded in the emailed accept link and never stored; the database
// holds only its hash.
func (h *OrgHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	org, actor, err := h.resolveOrgActor(r, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateInviteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := auth.NewToken()
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to generate invite token", err))
		return
	}

	invite := &types.Invite{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		Email:          req.Email,
		Role:           req.Role,
		TokenHash:      auth.HashToken(token),
		Status:         types.InviteStatusPending,
		InvitedBy:      actor.ID,
		ExpiresAt:      time.Now().UTC().Add(inviteTTL),
	}
	if err := h.invites.Create(r.Context(), invite); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r.Context(), actor, types.AuditActionInviteCreated, invite.ID, "invite")
	if h.notifier != nil {
		acceptURL := h.appBaseURL + "/auth/signup?invite=" + token
		if notifyErr := h.notifier.InviteCreated(r.Context(), org, invite, acceptURL); notifyErr != nil {
			h.logger.Warn("failed to queue invite notification",
				slog.String("invite_id", invite.ID),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: invite})
}

// ListInvites handles GET /v1/orgs/{slug}/invites, returning pending
// invites only.
func (h *OrgHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	org, _, err := h.resolveOrgActor(r, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	invites, err := h.invites.ListPending(r.Context(), org.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: invites})
}

// AcceptInvite handles POST /v1/invites/accept. The conditional status
// update guarantees a token redeems at most once, even under concurrent
// submissions of the same token.
func (h *OrgHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	actor, err := core.RequireActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req AcceptInviteRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	invite, err := h.invites.GetByTokenHash(r.Context(), auth.HashToken(req.Token))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if invite.Status != types.InviteStatusPending || time.Now().After(invite.ExpiresAt) {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundInvite,
			"invite is no longer valid", nil))
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if existing, err := h.members.GetMembership(r.Context(), user.ID, invite.OrganizationID); err == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictConcurrent,
			"you are already a member of this organization", nil).
			WithDetails(map[string]any{"status": existing.Status}))
		return
	} else {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundMember {
			core.Error(w, r, err)
			return
		}
	}

	if err := h.invites.SetStatus(r.Context(), invite.ID,
		types.InviteStatusPending, types.InviteStatusAccepted); err != nil {
		core.Error(w, r, err)
		return
	}

	member := &types.Member{
		ID:             uuid.NewString(),
		OrganizationID: invite.OrganizationID,
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Role:           invite.Role,
		Status:         types.MembershipActive,
	}
	if err := h.members.Create(r.Context(), member); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: member})
}

// CreateAnnouncement handles POST /v1/orgs/{slug}/announcements. The
// announcement is persisted first; fan-out failure is reported but does
// not roll it back.
func (h *OrgHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	org, actor, err := h.resolveOrgActor(r, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req CreateAnnouncementRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	announcement := &types.Announcement{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		AuthorID:       actor.ID,
		Title:          req.Title,
		Body:           req.Body,
	}
	if err := h.announcements.Create(r.Context(), announcement); err != nil {
		core.Error(w, r, err)
		return
	}

	h.recordAudit(r.Context(), actor, types.AuditActionAnnouncementSent, announcement.ID, "announcement")

	if h.notifier != nil {
		if notifyErr := h.notifier.AnnouncementPublished(r.Context(), org, announcement); notifyErr != nil {
			h.logger.Error("announcement fan-out failed",
				slog.String("announcement_id", announcement.ID),
				slog.String("error", notifyErr.Error()),
			)
			core.JSON(w, r, http.StatusCreated, core.APIResponse{
				Data: announcement,
				Meta: &types.ResponseMeta{
					Warnings: []string{"announcement saved, but some notifications could not be queued"},
				},
			})
			return
		}
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: announcement})
}

// ListAnnouncements handles GET /v1/orgs/{slug}/announcements.
func (h *OrgHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	org, _, err := h.resolveOrgActor(r, types.RoleAlumni)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	announcements, err := h.announcements.ListByOrganization(r.Context(), org.ID, 0)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: announcements})
}

// ListAuditEvents handles GET /v1/orgs/{slug}/audit.
func (h *OrgHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	org, _, err := h.resolveOrgActor(r, types.RoleAdmin)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	events, err := h.auditLog.ListByOrganization(r.Context(), org.ID, 0)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: events})
}

// resolveOrgActor resolves the org from the URL slug and requires the
// caller to hold at least minRole with an active membership.
func (h *OrgHandler) resolveOrgActor(r *http.Request, minRole types.OrgRole) (*types.Organization, types.Actor, error) {
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
	if actor.MembershipStatus == types.MembershipRevoked {
		return nil, types.Actor{}, types.NewAppError(types.ErrCodePermissionRevoked,
			"your membership in this organization has been revoked", nil)
	}
	if !actor.Role.HasAtLeast(minRole) {
		return nil, types.Actor{}, types.NewAppError(types.ErrCodePermissionRole,
			"insufficient role for this operation", nil)
	}
	return org, actor, nil
}

// recordAudit writes an audit event, logging rather than failing on
// error.
func (h *OrgHandler) recordAudit(ctx context.Context, actor types.Actor, action, resourceID, resourceType string) {
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
