package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"teamnetwork/internal/types"
)

// MemberRepo provides access to organization membership rows.
type MemberRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewMemberRepo creates a MemberRepo backed by the given database
// connection (pool or transaction).
func NewMemberRepo(db DBTX, logger *slog.Logger) *MemberRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberRepo{db: db, logger: logger}
}

const memberColumns = `id, organization_id, user_id, email, name, role, status,
	graduation_year, created_at, updated_at`

func scanMember(row pgx.Row) (*types.Member, error) {
	var m types.Member
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.Status,
		&m.GraduationYear, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMember, "member not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load member", err)
	}
	return &m, nil
}

// GetByID returns a single member row.
func (r *MemberRepo) GetByID(ctx context.Context, memberID string) (*types.Member, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+memberColumns+`
		 FROM members
		 WHERE id = $1`,
		memberID,
	)
	return scanMember(row)
}

// GetMembership returns the member row linking a user to an
// organization. Used once per request to resolve the actor's role and
// membership status.
func (r *MemberRepo) GetMembership(ctx context.Context, userID, orgID string) (*types.Member, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+memberColumns+`
		 FROM members
		 WHERE user_id = $1 AND organization_id = $2`,
		userID, orgID,
	)
	return scanMember(row)
}

// ListByOrganization returns members of an organization ordered by
// creation time, newest first. Statuses filters the result when
// non-empty.
func (r *MemberRepo) ListByOrganization(ctx context.Context, orgID string, statuses []types.MembershipStatus) ([]types.Member, error) {
	query := `SELECT ` + memberColumns + `
		 FROM members
		 WHERE organization_id = $1`
	args := []any{orgID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		args = append(args, ss)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list members", err)
	}
	defer rows.Close()

	var members []types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(
			&m.ID, &m.OrganizationID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.Status,
			&m.GraduationYear, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate members", err)
	}
	return members, nil
}

// CountActive returns the number of active members in an organization.
// Seat-quantity checks at checkout use this.
func (r *MemberRepo) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM members
		 WHERE organization_id = $1 AND status = $2`,
		orgID, types.MembershipActive,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count members", err)
	}
	return count, nil
}

// Create inserts a membership row.
func (r *MemberRepo) Create(ctx context.Context, m *types.Member) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO members
		   (id, organization_id, user_id, email, name, role, status, graduation_year,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		m.ID, m.OrganizationID, m.UserID, m.Email, m.Name, m.Role, m.Status, m.GraduationYear,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create member", err)
	}
	return nil
}

// SetStatus moves a member between membership states with a conditional
// UPDATE on the expected current status. Zero rows affected means the
// member was missing or already transitioned.
func (r *MemberRepo) SetStatus(
	ctx context.Context,
	memberID string,
	from types.MembershipStatus,
	to types.MembershipStatus,
) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE members
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		to, memberID, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update member status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"member was modified by a concurrent request", nil)
	}
	return nil
}

// ListActiveEmails returns the email addresses of active members, used
// by the announcement fan-out.
func (r *MemberRepo) ListActiveEmails(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT email FROM members
		 WHERE organization_id = $1 AND status = $2
		 ORDER BY email`,
		orgID, types.MembershipActive,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list member emails", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan member email", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate member emails", err)
	}
	return emails, nil
}
