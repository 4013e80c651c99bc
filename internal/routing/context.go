// Package routing implements the edge access-control decision core.
// Given an immutable snapshot of an inbound request, Decide returns
// exactly one RouteDecision: pass the request through, redirect it, or
// answer with a JSON error. The package performs no I/O and holds no
// state; every decision is a pure function of the RequestContext, so it
// can be called concurrently without coordination.
package routing

import "teamnetwork/internal/types"

// Cookie is a name/value pair from the inbound request's cookie jar.
// Only the name participates in routing decisions (session-refresh
// detection); the value is carried for completeness.
type Cookie struct {
	Name  string
	Value string
}

// RequestContext is the reduced view of an inbound HTTP request that
// routing decisions are made from. It is constructed fresh per request
// by the HTTP layer; the router never reads ambient request state.
type RequestContext struct {
	Pathname string
	Host     string
	Method   string
	Cookies  []Cookie

	// HasAuthenticatedUser is resolved by the caller from the session.
	HasAuthenticatedUser bool

	// MembershipStatus is the caller-resolved standing of the
	// authenticated user in the organization implied by the path.
	// Nil when no org is implied or no user is authenticated.
	MembershipStatus *types.MembershipStatus
}

// DecisionKind discriminates the RouteDecision union.
type DecisionKind string

const (
	DecisionPass      DecisionKind = "pass"
	DecisionRedirect  DecisionKind = "redirect"
	DecisionJSONError DecisionKind = "json_error"
)

// RouteDecision is the single outcome of a routing evaluation. Exactly
// one of the Redirect/JSONError payloads is populated, matching Kind.
type RouteDecision struct {
	Kind DecisionKind

	// Redirect fields (Kind == DecisionRedirect)
	StatusCode int
	Location   string

	// JSON error fields (Kind == DecisionJSONError)
	ErrorBody ErrorBody
}

// ErrorBody is the JSON error payload returned for rejected API requests.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Pass returns a pass-through decision.
func Pass() RouteDecision {
	return RouteDecision{Kind: DecisionPass}
}

// Redirect returns a redirect decision with the given status and location.
func Redirect(status int, location string) RouteDecision {
	return RouteDecision{Kind: DecisionRedirect, StatusCode: status, Location: location}
}

// JSONError returns a JSON-error decision with the given status and body.
func JSONError(status int, body ErrorBody) RouteDecision {
	return RouteDecision{Kind: DecisionJSONError, StatusCode: status, ErrorBody: body}
}
