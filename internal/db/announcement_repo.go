package db

import (
	"context"
	"log/slog"

	"teamnetwork/internal/types"
)

// AnnouncementRepo provides access to organization announcements.
type AnnouncementRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewAnnouncementRepo creates an AnnouncementRepo backed by the given
// database connection (pool or transaction).
func NewAnnouncementRepo(db DBTX, logger *slog.Logger) *AnnouncementRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnouncementRepo{db: db, logger: logger}
}

// Create inserts an announcement.
func (r *AnnouncementRepo) Create(ctx context.Context, a *types.Announcement) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO announcements
		   (id, organization_id, author_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		a.ID, a.OrganizationID, a.AuthorID, a.Title, a.Body,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create announcement", err)
	}
	return nil
}

// ListByOrganization returns the most recent announcements for an
// organization, newest first, capped at limit.
func (r *AnnouncementRepo) ListByOrganization(ctx context.Context, orgID string, limit int) ([]types.Announcement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, author_id, title, body, created_at
		 FROM announcements
		 WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list announcements", err)
	}
	defer rows.Close()

	var announcements []types.Announcement
	for rows.Next() {
		var a types.Announcement
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.AuthorID, &a.Title, &a.Body, &a.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan announcement", err)
		}
		announcements = append(announcements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate announcements", err)
	}
	return announcements, nil
}
