// Package auth implements password login, server-side sessions, and
// per-request actor resolution. Session cookies carry a random token;
// the database only ever sees its SHA-256 hash.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"teamnetwork/internal/types"
)

// UserStore is the subset of the user repository the auth service needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	Create(ctx context.Context, u *types.User) error
}

// SessionStore is the subset of the session repository the auth service needs.
type SessionStore interface {
	Create(ctx context.Context, s *types.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// MembershipStore resolves a user's membership in an organization.
type MembershipStore interface {
	GetMembership(ctx context.Context, userID, orgID string) (*types.Member, error)
}

// OrgStore resolves organizations by slug.
type OrgStore interface {
	GetBySlug(ctx context.Context, slug string) (*types.Organization, error)
}

// Service provides login, signup, and session resolution. It satisfies
// core.SessionResolver and core.MembershipResolver.
type Service struct {
	users      UserStore
	sessions   SessionStore
	members    MembershipStore
	orgs       OrgStore
	bcryptCost int
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewService creates an auth Service.
func NewService(
	users UserStore,
	sessions SessionStore,
	members MembershipStore,
	orgs OrgStore,
	bcryptCost int,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if sessionTTL == 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		members:    members,
		orgs:       orgs,
		bcryptCost: bcryptCost,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// HashToken derives the storable hash of a raw session or invite token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewToken generates a cryptographically random token for sessions and
// invites.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Signup creates a user account with a bcrypt password hash.
func (s *Service) Signup(ctx context.Context, email, name, password string) (*types.User, error) {
	if len(password) < 8 {
		return nil, types.NewAppError(types.ErrCodeValidationFailed,
			"password must be at least 8 characters", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a new session. The returned raw
// token goes into the session cookie; only its hash is stored. Unknown
// emails and wrong passwords produce the same error so login cannot be
// used to probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*types.Session, string, error) {
	invalidCreds := types.NewAppError(types.ErrCodeAuthInvalidCreds, "Invalid email or password", nil)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() == 404 {
			return nil, "", invalidCreds
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", invalidCreds
	}

	token, err := NewToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	session := &types.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	return session, token, nil
}

// Logout deletes the session matching the raw token. Unknown tokens are
// a no-op: sign-out is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAuthSessionExpired {
			return nil
		}
		return err
	}
	return s.sessions.Delete(ctx, session.ID)
}

// ResolveSession maps a raw session token to an Actor. Expired or
// unknown tokens yield an empty Actor and no error: at this layer the
// absence of identity is not a failure, the edge router decides what an
// anonymous request may reach.
func (s *Service) ResolveSession(ctx context.Context, token string) (types.Actor, error) {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAuthSessionExpired {
			return types.Actor{}, nil
		}
		return types.Actor{}, err
	}
	return types.Actor{ID: session.UserID}, nil
}

// MembershipForSlug resolves the user's membership status in the
// organization named by slug. Returns (nil, nil) when the slug does not
// name an organization or the user holds no membership record there.
func (s *Service) MembershipForSlug(ctx context.Context, userID, slug string) (*types.MembershipStatus, error) {
	org, err := s.orgs.GetBySlug(ctx, slug)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundOrg {
			return nil, nil
		}
		return nil, err
	}

	member, err := s.members.GetMembership(ctx, userID, org.ID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundMember {
			return nil, nil
		}
		return nil, err
	}

	status := member.Status
	return &status, nil
}

// ActorForOrg builds the fully-resolved Actor for an API request scoped
// to an organization: user identity plus role and membership status in
// that org. Users without a membership record get RoleNone.
func (s *Service) ActorForOrg(ctx context.Context, userID, orgID string) (types.Actor, error) {
	member, err := s.members.GetMembership(ctx, userID, orgID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundMember {
			return types.Actor{ID: userID, OrganizationID: orgID, Role: types.RoleNone}, nil
		}
		return types.Actor{}, err
	}
	return types.Actor{
		ID:               userID,
		OrganizationID:   orgID,
		Role:             member.Role,
		MembershipStatus: member.Status,
	}, nil
}
