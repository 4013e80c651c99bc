package types

import "context"

// Actor represents the authenticated entity performing an operation.
// The calling layer resolves the role and membership status once per
// request (session lookup + membership join) and injects the Actor into
// context; domain code never re-derives them.
type Actor struct {
	ID               string
	OrganizationID   string
	Role             OrgRole
	MembershipStatus MembershipStatus
}

// Authenticated reports whether the actor carries a user identity.
func (a Actor) Authenticated() bool {
	return a.ID != ""
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
