package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"teamnetwork/internal/types"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, u *types.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Create(ctx context.Context, s *types.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error) {
	args := m.Called(ctx, tokenHash)
	if s := args.Get(0); s != nil {
		return s.(*types.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionStore) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type mockMembershipStore struct {
	mock.Mock
}

func (m *mockMembershipStore) GetMembership(ctx context.Context, userID, orgID string) (*types.Member, error) {
	args := m.Called(ctx, userID, orgID)
	if mem := args.Get(0); mem != nil {
		return mem.(*types.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOrgStore struct {
	mock.Mock
}

func (m *mockOrgStore) GetBySlug(ctx context.Context, slug string) (*types.Organization, error) {
	args := m.Called(ctx, slug)
	if o := args.Get(0); o != nil {
		return o.(*types.Organization), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestService(users *mockUserStore, sessions *mockSessionStore, members *mockMembershipStore, orgs *mockOrgStore) *Service {
	return NewService(users, sessions, members, orgs, bcrypt.MinCost, time.Hour, nil)
}

func requireAuthErrCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

// --- Signup ---

func TestService_Signup_HashesPassword(t *testing.T) {
	users := new(mockUserStore)
	svc := newTestService(users, nil, nil, nil)

	var created *types.User
	users.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*types.User)
		}).
		Return(nil)

	user, err := svc.Signup(context.Background(), "new@example.com", "New User", "correct horse battery")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "new@example.com", user.Email)

	require.NotNil(t, created)
	assert.NotEqual(t, "correct horse battery", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(created.PasswordHash), []byte("correct horse battery")))
}

func TestService_Signup_RejectsShortPassword(t *testing.T) {
	users := new(mockUserStore)
	svc := newTestService(users, nil, nil, nil)

	_, err := svc.Signup(context.Background(), "new@example.com", "New User", "short")
	requireAuthErrCode(t, err, types.ErrCodeValidationFailed)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Signup_DuplicateEmailPropagates(t *testing.T) {
	users := new(mockUserStore)
	svc := newTestService(users, nil, nil, nil)

	users.On("Create", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeConflictEmailExists, "email already registered", nil))

	_, err := svc.Signup(context.Background(), "dupe@example.com", "Dupe", "long enough password")
	requireAuthErrCode(t, err, types.ErrCodeConflictEmailExists)
}

// --- Login ---

func TestService_Login_Success(t *testing.T) {
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	svc := newTestService(users, sessions, nil, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame!"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByEmail", mock.Anything, "user@example.com").
		Return(&types.User{ID: "user_1", Email: "user@example.com", PasswordHash: string(hash)}, nil)

	var stored *types.Session
	sessions.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*types.Session)
		}).
		Return(nil)

	session, token, err := svc.Login(context.Background(), "user@example.com", "open sesame!")
	require.NoError(t, err)
	assert.Equal(t, "user_1", session.UserID)
	assert.NotEmpty(t, token)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	// Only the hash hits the store, never the raw token.
	require.NotNil(t, stored)
	assert.NotEqual(t, token, stored.TokenHash)
	assert.Equal(t, HashToken(token), stored.TokenHash)
}

func TestService_Login_UnknownEmailAndBadPasswordLookAlike(t *testing.T) {
	users := new(mockUserStore)
	svc := newTestService(users, new(mockSessionStore), nil, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("right password"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetByEmail", mock.Anything, "known@example.com").
		Return(&types.User{ID: "user_1", PasswordHash: string(hash)}, nil)
	users.On("GetByEmail", mock.Anything, "nobody@example.com").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil))

	_, _, unknownErr := svc.Login(context.Background(), "nobody@example.com", "whatever")
	_, _, wrongErr := svc.Login(context.Background(), "known@example.com", "wrong password")

	requireAuthErrCode(t, unknownErr, types.ErrCodeAuthInvalidCreds)
	requireAuthErrCode(t, wrongErr, types.ErrCodeAuthInvalidCreds)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

// --- Logout ---

func TestService_Logout_DeletesSession(t *testing.T) {
	sessions := new(mockSessionStore)
	svc := newTestService(new(mockUserStore), sessions, nil, nil)

	sessions.On("GetByTokenHash", mock.Anything, HashToken("tok")).
		Return(&types.Session{ID: "sess_1", UserID: "user_1"}, nil)
	sessions.On("Delete", mock.Anything, "sess_1").Return(nil)

	require.NoError(t, svc.Logout(context.Background(), "tok"))
	sessions.AssertExpectations(t)
}

func TestService_Logout_UnknownTokenIsNoOp(t *testing.T) {
	sessions := new(mockSessionStore)
	svc := newTestService(new(mockUserStore), sessions, nil, nil)

	sessions.On("GetByTokenHash", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session not found", nil))

	require.NoError(t, svc.Logout(context.Background(), "already-gone"))
	sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- ResolveSession ---

func TestService_ResolveSession_KnownToken(t *testing.T) {
	sessions := new(mockSessionStore)
	svc := newTestService(new(mockUserStore), sessions, nil, nil)

	sessions.On("GetByTokenHash", mock.Anything, HashToken("tok")).
		Return(&types.Session{ID: "sess_1", UserID: "user_1"}, nil)

	actor, err := svc.ResolveSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "user_1", actor.ID)
	assert.True(t, actor.Authenticated())
}

func TestService_ResolveSession_ExpiredTokenYieldsAnonymous(t *testing.T) {
	sessions := new(mockSessionStore)
	svc := newTestService(new(mockUserStore), sessions, nil, nil)

	sessions.On("GetByTokenHash", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session expired", nil))

	actor, err := svc.ResolveSession(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, actor.Authenticated())
}

// --- MembershipForSlug ---

func TestService_MembershipForSlug_Active(t *testing.T) {
	members := new(mockMembershipStore)
	orgs := new(mockOrgStore)
	svc := newTestService(new(mockUserStore), new(mockSessionStore), members, orgs)

	orgs.On("GetBySlug", mock.Anything, "acme-rowing").
		Return(&types.Organization{ID: "org_1", Slug: "acme-rowing"}, nil)
	members.On("GetMembership", mock.Anything, "user_1", "org_1").
		Return(&types.Member{Status: types.MembershipActive}, nil)

	status, err := svc.MembershipForSlug(context.Background(), "user_1", "acme-rowing")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.MembershipActive, *status)
}

func TestService_MembershipForSlug_UnknownSlug(t *testing.T) {
	orgs := new(mockOrgStore)
	svc := newTestService(new(mockUserStore), new(mockSessionStore), new(mockMembershipStore), orgs)

	orgs.On("GetBySlug", mock.Anything, "no-such-org").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil))

	status, err := svc.MembershipForSlug(context.Background(), "user_1", "no-such-org")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestService_MembershipForSlug_NoMembership(t *testing.T) {
	members := new(mockMembershipStore)
	orgs := new(mockOrgStore)
	svc := newTestService(new(mockUserStore), new(mockSessionStore), members, orgs)

	orgs.On("GetBySlug", mock.Anything, "acme-rowing").
		Return(&types.Organization{ID: "org_1"}, nil)
	members.On("GetMembership", mock.Anything, "user_1", "org_1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundMember, "no membership", nil))

	status, err := svc.MembershipForSlug(context.Background(), "user_1", "acme-rowing")
	require.NoError(t, err)
	assert.Nil(t, status)
}

// --- ActorForOrg ---

func TestService_ActorForOrg_ResolvesRoleAndStatus(t *testing.T) {
	members := new(mockMembershipStore)
	svc := newTestService(new(mockUserStore), new(mockSessionStore), members, new(mockOrgStore))

	members.On("GetMembership", mock.Anything, "user_1", "org_1").
		Return(&types.Member{Role: types.RoleAdmin, Status: types.MembershipActive}, nil)

	actor, err := svc.ActorForOrg(context.Background(), "user_1", "org_1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, actor.Role)
	assert.Equal(t, types.MembershipActive, actor.MembershipStatus)
}

func TestService_ActorForOrg_NonMemberGetsRoleNone(t *testing.T) {
	members := new(mockMembershipStore)
	svc := newTestService(new(mockUserStore), new(mockSessionStore), members, new(mockOrgStore))

	members.On("GetMembership", mock.Anything, "user_1", "org_1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundMember, "no membership", nil))

	actor, err := svc.ActorForOrg(context.Background(), "user_1", "org_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", actor.ID)
	assert.Equal(t, types.RoleNone, actor.Role)
}

// --- tokens ---

func TestHashToken_DeterministicAndOpaque(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}

func TestNewToken_Unique(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}
