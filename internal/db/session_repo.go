package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"teamnetwork/internal/types"
)

// SessionRepo provides access to server-side login sessions. Sessions
// are looked up by the hash of the cookie token, never the raw token.
type SessionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSessionRepo creates a SessionRepo backed by the given database
// connection (pool or transaction).
func NewSessionRepo(db DBTX, logger *slog.Logger) *SessionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepo{db: db, logger: logger}
}

// Create inserts a session row.
func (r *SessionRepo) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByTokenHash returns the unexpired session matching the token hash.
// An expired or missing session maps to a session-expired error so the
// caller can treat both the same way.
func (r *SessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM sessions
		 WHERE token_hash = $1 AND expires_at > NOW()`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session expired or not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}
	return &s, nil
}

// Delete removes a session (sign-out).
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired prunes expired sessions. Run periodically by the
// operator; not on the request path.
func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune sessions", err)
	}
	return tag.RowsAffected(), nil
}
