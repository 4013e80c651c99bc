package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"teamnetwork/internal/types"
)

// UserRepo provides access to user accounts.
type UserRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserRepo creates a UserRepo backed by the given database
// connection (pool or transaction).
func NewUserRepo(db DBTX, logger *slog.Logger) *UserRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{db: db, logger: logger}
}

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return &u, nil
}

// GetByID returns the user with the given ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

// GetByEmail returns the user with the given email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM users
		 WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

// Create inserts a new user account.
func (r *UserRepo) Create(ctx context.Context, u *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		u.ID, u.Email, u.Name, u.PasswordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return types.NewAppError(types.ErrCodeConflictEmailExists,
				"an account with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}
