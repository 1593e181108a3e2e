package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
	"github.com/Will-Jameson/portfolio-website/internal/middleware"
)

type AuthHandler struct {
	gate *auth.Gate
	// background outlives single requests; the auto-extender runs on it.
	background   context.Context
	cookieSecure bool
}

type LoginRequest struct {
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	auth.LoginResult
	Redirect string `json:"redirect,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type SessionResponse struct {
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expiresAt,omitempty"`
}

func NewAuthHandler(background context.Context, gate *auth.Gate, cookieSecure bool) *AuthHandler {
	return &AuthHandler{gate: gate, background: background, cookieSecure: cookieSecure}
}

func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login logs the admin in, or sets the password on first use.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "password required")
		return
	}

	res := h.gate.Login(r.Context(), req.Password, req.RememberMe)
	if !res.Success {
		status := http.StatusUnauthorized
		if res.FirstTime {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, LoginResponse{LoginResult: res})
		return
	}

	h.setSessionCookie(w, res.Token, req.RememberMe)
	h.gate.SetupAutoExtend(h.background)
	respondJSON(w, http.StatusOK, LoginResponse{
		LoginResult: res,
		Redirect:    h.gate.TakeRedirect(r.Context()),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(r.Context())
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Session reports whether the caller holds the live session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Authenticate(r.Context(), middleware.SessionToken(r)) {
		respondJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	session, _ := h.gate.Session(r.Context())
	respondJSON(w, http.StatusOK, SessionResponse{Authenticated: true, ExpiresAt: session.ExpiresAt})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := h.gate.ChangeCredential(r.Context(), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
	case errors.Is(err, auth.ErrInvalidCredential):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrPasswordTooShort):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "failed to change password")
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, remember bool) {
	c := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure,
	}
	if remember {
		c.Expires = time.Now().Add(auth.RememberDuration)
	}
	http.SetCookie(w, c)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure,
		MaxAge:   -1,
	})
}
