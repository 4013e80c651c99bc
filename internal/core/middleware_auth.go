package core

import (
	"context"
	"net/http"

	"teamnetwork/internal/routing"
	"teamnetwork/internal/types"
)

// SessionCookieName is the cookie carrying the raw session token. The
// auth handlers set and clear it; the middleware reads it.
const SessionCookieName = "tn-session"

// SessionResolver turns a raw session token into an Actor. The
// implementation (internal/auth) hashes the token, loads the session
// and user, and returns an unauthenticated Actor for unknown or expired
// tokens rather than an error: absence of identity is not a failure at
// this layer.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (types.Actor, error)
}

// MembershipResolver resolves an authenticated user's standing in the
// organization named by a URL slug. Returns (nil, nil) when the slug
// does not name an organization or the user has no membership record.
type MembershipResolver interface {
	MembershipForSlug(ctx context.Context, userID, slug string) (*types.MembershipStatus, error)
}

// AuthMiddleware resolves the session cookie into an Actor and stores
// it in the request context. It never rejects: unauthenticated requests
// flow through with an empty Actor, and the edge router decides what
// they may reach.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.SessionResolver == nil {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := s.SessionResolver.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			// A broken session store should not take down read paths;
			// the request continues unauthenticated and protected
			// routes will bounce it to login.
			s.Logger.Warn("session resolution failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !actor.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}

		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EdgeRouterMiddleware evaluates the access-control decision table for
// every request and applies the outcome: pass through, redirect, or
// answer with a JSON error. It must run after AuthMiddleware so the
// decision sees the resolved Actor.
func (s *Server) EdgeRouterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := s.buildRequestContext(r)
		decision := routing.Decide(rc)

		switch decision.Kind {
		case routing.DecisionRedirect:
			http.Redirect(w, r, decision.Location, decision.StatusCode)
		case routing.DecisionJSONError:
			JSON(w, r, decision.StatusCode, decision.ErrorBody)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// buildRequestContext reduces the inbound request to the immutable
// snapshot the routing core decides from.
func (s *Server) buildRequestContext(r *http.Request) routing.RequestContext {
	actor, hasActor := types.GetActor(r.Context())

	cookies := r.Cookies()
	rcCookies := make([]routing.Cookie, 0, len(cookies))
	for _, c := range cookies {
		rcCookies = append(rcCookies, routing.Cookie{Name: c.Name, Value: c.Value})
	}

	rc := routing.RequestContext{
		Pathname:             r.URL.Path,
		Host:                 r.Host,
		Method:               r.Method,
		Cookies:              rcCookies,
		HasAuthenticatedUser: hasActor && actor.Authenticated(),
	}

	if rc.HasAuthenticatedUser && s.MembershipResolver != nil {
		if slug := routing.OrgSlug(r.URL.Path); slug != "" {
			status, err := s.MembershipResolver.MembershipForSlug(r.Context(), actor.ID, slug)
			if err != nil {
				s.Logger.Warn("membership resolution failed",
					"user_id", actor.ID,
					"slug", slug,
					"error", err,
				)
			} else {
				rc.MembershipStatus = status
			}
		}
	}

	return rc
}

// RequireActor extracts the authenticated Actor from the context,
// returning an auth error when none is present. Handlers call this for
// endpoints behind the API auth rule as a second line of defense.
func RequireActor(ctx context.Context) (types.Actor, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || !actor.Authenticated() {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	return actor, nil
}
