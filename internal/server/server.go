package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"memoireai/internal/app"
	"memoireai/internal/usertoken"
	"memoireai/internal/util"
)

const authCookieName = "auth_token"

// Limiter gates a request stream by key. A nil Limiter means unlimited.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Tokens         *usertoken.Manager
	AllowedOrigins []string
	SecureCookies  bool

	RegisterLimiter Limiter
	LoginLimiter    Limiter
	ChatLimiter     Limiter
	DraftLimiter    Limiter
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	tokens         *usertoken.Manager
	allowedOrigins []string
	secureCookies  bool

	registerLimiter Limiter
	loginLimiter    Limiter
	chatLimiter     Limiter
	draftLimiter    Limiter

	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		tokens:          cfg.Tokens,
		allowedOrigins:  cfg.AllowedOrigins,
		secureCookies:   cfg.SecureCookies,
		registerLimiter: cfg.RegisterLimiter,
		loginLimiter:    cfg.LoginLimiter,
		chatLimiter:     cfg.ChatLimiter,
		draftLimiter:    cfg.DraftLimiter,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the standard middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, util.WithRequestID(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	s.mux.Handle("/api/users/me", s.withUser(s.handleMe))
	s.mux.Handle("/api/users/me/theme", s.withUser(s.handleTheme))
	s.mux.Handle("/api/history", s.withUser(s.handleHistory))

	s.mux.Handle("/api/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/api/documents/", s.withUser(s.handleDocumentSubroute))

	s.mux.Handle("/api/projects", s.withUser(s.handleProjects))
	s.mux.Handle("/api/projects/", s.withUser(s.handleProjectSubroute))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, usertoken.Claims)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := requestToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, claims)
	})
}

// requestToken reads the session token, preferring the auth cookie and
// falling back to a bearer header for non-browser clients.
func requestToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(authCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secureCookies,
	})
}

func allow(l Limiter, key string) bool {
	if l == nil {
		return true
	}
	return l.Allow(key)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func tooManyRequests(w http.ResponseWriter) {
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// writeAppError maps application sentinels onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrInvalidTheme),
		errors.Is(err, app.ErrEmptyDraft),
		errors.Is(err, app.ErrEmptyDocument),
		errors.Is(err, app.ErrUnsupportedFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, app.ErrNoDiscussion):
		writeError(w, http.StatusBadRequest, "Aucune discussion préalable pour générer un brouillon")
	case errors.Is(err, app.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrProjectNotFound),
		errors.Is(err, app.ErrSectionNotFound),
		errors.Is(err, app.ErrDocumentNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrNoDownload):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrGeneration):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
