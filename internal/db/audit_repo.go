package db

import (
	"context"
	"log/slog"

	"teamnetwork/internal/types"
)

// AuditRepo records actions taken on resources. Audit writes are
// best-effort: callers log failures but do not fail the request over
// them.
type AuditRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewAuditRepo creates an AuditRepo backed by the given database
// connection (pool or transaction).
func NewAuditRepo(db DBTX, logger *slog.Logger) *AuditRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRepo{db: db, logger: logger}
}

// Record inserts an audit event.
func (r *AuditRepo) Record(ctx context.Context, event types.AuditEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events
		   (id, actor_user_id, organization_id, action, resource_id, resource_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Actor.ID, event.Actor.OrganizationID,
		event.Action, event.ResourceID, event.ResourceType, event.Timestamp,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record audit event", err)
	}
	return nil
}

// ListByOrganization returns recent audit events for an organization,
// newest first.
func (r *AuditRepo) ListByOrganization(ctx context.Context, orgID string, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, actor_user_id, organization_id, action, resource_id, resource_type, created_at
		 FROM audit_events
		 WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list audit events", err)
	}
	defer rows.Close()

	var events []types.AuditEvent
	for rows.Next() {
		var e types.AuditEvent
		if err := rows.Scan(
			&e.ID, &e.Actor.ID, &e.Actor.OrganizationID,
			&e.Action, &e.ResourceID, &e.ResourceType, &e.Timestamp,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audit event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate audit events", err)
	}
	return events, nil
}
