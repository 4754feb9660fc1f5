package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/lunchbox/internal/apperror"
	"github.com/sakif/lunchbox/internal/auth"
	"github.com/sakif/lunchbox/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves sign-up, sign-in, sign-out and the GitHub OAuth flow.
//
// The session JWT goes into an HttpOnly cookie; the JSON response also
// carries it so API clients can use a Bearer header instead.
type AuthHandler struct {
	auth          *service.AuthService
	github        *auth.GitHubProvider // nil when GitHub sign-in is not configured
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, github: github, secureCookies: secureCookies, logger: logger}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

// HandleSignUp creates an account.
//
// HTTP: POST /auth/signup
// BODY: {"email":"...","password":"...","name":"...","username":"..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var in service.SignUpInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, authResponse{User: res.User, Token: res.Token})
}

// HandleSignIn checks email + password.
//
// HTTP: POST /auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, authResponse{User: res.User, Token: res.Token})
}

// HandleSignOut clears the session cookie and any cached state for the user.
// It succeeds for anonymous callers too.
//
// HTTP: POST /auth/signout
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.auth.SignOut(r.Context(), viewerID(r))
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// HandleGitHubLogin redirects to GitHub's authorization page. A random
// state value goes into a short-lived cookie and is checked on callback.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Configuration("GitHub sign-in is not configured"))
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow:
//  1. check the state cookie (CSRF)
//  2. exchange the code for the GitHub profile
//  3. upsert the user and profile, issue the session cookie
//  4. redirect home
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Configuration("GitHub sign-in is not configured"))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: invalid state")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthenticated("GitHub authentication failed"))
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   h.auth.TokenTTL(),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
