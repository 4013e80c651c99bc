package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"teamnetwork/internal/core"
	"teamnetwork/internal/types"
)

// Authenticator is the login/session surface the auth handler needs.
// Satisfied by *auth.Service.
type Authenticator interface {
	Signup(ctx context.Context, email, name, password string) (*types.User, error)
	Login(ctx context.Context, email, password string) (*types.Session, string, error)
	Logout(ctx context.Context, token string) error
}

// SignupRequest is the request body for POST /v1/auth/signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=120"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthHandler serves signup, login, logout, and identity lookup. On
// login the raw session token goes into an HttpOnly cookie; the API
// never returns it in a response body.
type AuthHandler struct {
	service      Authenticator
	validator    *core.Validator
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie should be false
// only for local development over plain HTTP.
func NewAuthHandler(service Authenticator, validator *core.Validator, secureCookie bool, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:      service,
		validator:    validator,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// RegisterRoutes mounts auth endpoints on the v1 router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

// Signup handles POST /v1/auth/signup. Signup does not log the user in;
// the client follows with a login call.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.service.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	session, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(token, session.ExpiresAt))
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id":    session.UserID,
		"expires_at": session.ExpiresAt,
	}})
}

// Logout handles POST /v1/auth/logout. Idempotent: requests without a
// valid session still clear the cookie and succeed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(core.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("session deletion failed during logout",
				slog.String("error", err.Error()),
			)
		}
	}

	expired := h.sessionCookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"logged_out": true}})
}

// Me handles GET /v1/auth/me, returning the caller's identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := core.RequireActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"user_id": actor.ID}})
}

func (h *AuthHandler) sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     core.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
