package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"teamnetwork/internal/types"
)

// InviteRepo provides access to membership invitations. Only token
// hashes are stored; the raw token exists solely in the email sent to
// the invitee.
type InviteRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewInviteRepo creates an InviteRepo backed by the given database
// connection (pool or transaction).
func NewInviteRepo(db DBTX, logger *slog.Logger) *InviteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteRepo{db: db, logger: logger}
}

const inviteColumns = `id, organization_id, email, role, token_hash, status,
	invited_by, expires_at, created_at`

func scanInvite(row pgx.Row) (*types.Invite, error) {
	var inv types.Invite
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.TokenHash,
		&inv.Status, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInvite, "invite not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load invite", err)
	}
	return &inv, nil
}

// Create inserts a new invite.
func (r *InviteRepo) Create(ctx context.Context, inv *types.Invite) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO invites
		   (id, organization_id, email, role, token_hash, status, invited_by,
		    expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.TokenHash,
		inv.Status, inv.InvitedBy, inv.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create invite", err)
	}
	return nil
}

// GetByTokenHash looks an invite up by the hash of the raw token the
// invitee presented.
func (r *InviteRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Invite, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+inviteColumns+`
		 FROM invites
		 WHERE token_hash = $1`,
		tokenHash,
	)
	return scanInvite(row)
}

// ListPending returns the pending invites for an organization.
func (r *InviteRepo) ListPending(ctx context.Context, orgID string) ([]types.Invite, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+inviteColumns+`
		 FROM invites
		 WHERE organization_id = $1 AND status = $2
		 ORDER BY created_at DESC`,
		orgID, types.InviteStatusPending,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list invites", err)
	}
	defer rows.Close()

	var invites []types.Invite
	for rows.Next() {
		var inv types.Invite
		if err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.TokenHash,
			&inv.Status, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan invite", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate invites", err)
	}
	return invites, nil
}

// SetStatus moves an invite between states with a conditional UPDATE on
// the expected current status, so a token cannot be accepted twice.
func (r *InviteRepo) SetStatus(
	ctx context.Context,
	inviteID string,
	from types.InviteStatus,
	to types.InviteStatus,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invites
		 SET status = $1
		 WHERE id = $2
		   AND status = $3`,
		to, inviteID, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update invite status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"invite was modified by a concurrent request", nil)
	}
	return nil
}
