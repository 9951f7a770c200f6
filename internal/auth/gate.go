package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/siapp-dev/siapp/pkg/logger"
)

// Cookie names.
const (
	SessionCookie  = "siapp_session"
	RememberCookie = "siapp_remember"
)

// Default session policy.
const (
	DefaultIdleTimeout      = time.Hour
	DefaultRememberDuration = 30 * 24 * time.Hour
)

// LoginPath is where unauthenticated admin requests are sent.
const LoginPath = "/admin/login"

// Config holds the gate configuration.
type Config struct {
	// Username is the single admin account name.
	Username string
	// PasswordHash is the bcrypt hash of the admin password.
	PasswordHash []byte
	// Secret signs remember tokens.
	Secret []byte
	// IdleTimeout ends a session after this long without activity.
	IdleTimeout time.Duration
	// RememberDuration is the lifetime of a remember token.
	RememberDuration time.Duration
	// SecureCookies marks cookies Secure (HTTPS only).
	SecureCookies bool
	// Now overrides the clock.
	Now func() time.Time
}

type session struct {
	username     string
	loginAt      time.Time
	lastActivity time.Time
	tokenID      string
}

// Gate guards the admin area with server-side sessions.
type Gate struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	// revoked maps remember token ids to their expiry.
	revoked map[string]time.Time
}

// NewGate creates a Gate from cfg.
func NewGate(cfg *Config, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Username == "" {
		return nil, errors.New("auth: username is required")
	}
	if len(cfg.PasswordHash) == 0 {
		return nil, errors.New("auth: password hash is required")
	}
	if _, err := bcrypt.Cost(cfg.PasswordHash); err != nil {
		return nil, fmt.Errorf("auth: password hash: %w", err)
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: secret is required")
	}

	c := *cfg
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.RememberDuration <= 0 {
		c.RememberDuration = DefaultRememberDuration
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Gate{
		cfg:      c,
		logger:   logger,
		sessions: make(map[string]*session),
		revoked:  make(map[string]time.Time),
	}, nil
}

// Username returns the configured admin account name.
func (g *Gate) Username() string {
	return g.cfg.Username
}

// Login checks the credentials and on success starts a session. With
// remember set, a remember token cookie is issued as well.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request, username, password string, remember bool) error {
	userOK := SecureCompare(username, g.cfg.Username)
	passErr := bcrypt.CompareHashAndPassword(g.cfg.PasswordHash, []byte(password))
	if !userOK || passErr != nil {
		g.logger.WarnContext(r.Context(), "admin login failed", "username", username, "remote_addr", r.RemoteAddr)
		return ErrInvalidCredentials
	}

	now := g.cfg.Now()
	s := &session{username: username, loginAt: now, lastActivity: now}

	if remember {
		token, claims, err := issueToken(g.cfg.Secret, username, now, g.cfg.RememberDuration)
		if err != nil {
			g.logger.ErrorContext(r.Context(), "failed to issue remember token", "error", err)
			return err
		}
		s.tokenID = claims.ID
		g.setCookie(w, RememberCookie, token, int(g.cfg.RememberDuration.Seconds()))
	}

	id, err := g.startSession(r.Context(), s)
	if err != nil {
		return err
	}
	g.setCookie(w, SessionCookie, id, 0)

	g.logger.InfoContext(r.Context(), "admin logged in", "username", username, "remember", remember)
	return nil
}

// IsAuthenticated reports whether r carries a live session, sliding its idle
// window. A request without a session but with a valid remember token
// starts a new session.
func (g *Gate) IsAuthenticated(w http.ResponseWriter, r *http.Request) bool {
	_, ok := g.authenticate(w, r)
	return ok
}

func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	now := g.cfg.Now()

	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		g.mu.Lock()
		s, ok := g.sessions[c.Value]
		if ok && now.Sub(s.lastActivity) > g.cfg.IdleTimeout {
			delete(g.sessions, c.Value)
			g.revokeLocked(s.tokenID, now.Add(g.cfg.RememberDuration))
			g.mu.Unlock()

			g.logger.InfoContext(r.Context(), "admin session timed out", "username", s.username, "idle", now.Sub(s.lastActivity).String())
			g.clearCookies(w)
			return "", false
		}
		if ok {
			s.lastActivity = now
			username := s.username
			g.mu.Unlock()
			return username, true
		}
		g.pruneLocked(now)
		g.mu.Unlock()
	}

	c, err := r.Cookie(RememberCookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	claims, err := g.verifyRemember(c.Value, now)
	if err != nil {
		g.logger.DebugContext(r.Context(), "remember token rejected", "error", err)
		g.clearCookie(w, RememberCookie)
		return "", false
	}

	id, err := g.startSession(r.Context(), &session{
		username:     claims.Username,
		loginAt:      now,
		lastActivity: now,
		tokenID:      claims.ID,
	})
	if err != nil {
		return "", false
	}
	g.setCookie(w, SessionCookie, id, 0)

	g.logger.InfoContext(r.Context(), "admin logged in from remember token", "username", claims.Username)
	return claims.Username, true
}

// Logout ends the session of r, revokes its remember token and clears both cookies.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	now := g.cfg.Now()

	g.mu.Lock()
	if c, err := r.Cookie(SessionCookie); err == nil {
		if s, ok := g.sessions[c.Value]; ok {
			g.revokeLocked(s.tokenID, now.Add(g.cfg.RememberDuration))
			delete(g.sessions, c.Value)
			g.logger.InfoContext(r.Context(), "admin logged out", "username", s.username, "session_duration", now.Sub(s.loginAt).String())
		}
	}
	g.mu.Unlock()

	if c, err := r.Cookie(RememberCookie); err == nil {
		if claims, err := parseToken(g.cfg.Secret, c.Value, now); err == nil {
			g.mu.Lock()
			g.revokeLocked(claims.ID, claims.Exp)
			g.mu.Unlock()
		}
	}

	g.clearCookies(w)
}

// RequireAuth redirects unauthenticated requests to the login page, carrying
// the original request URI in the redirect parameter.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := g.authenticate(w, r)
		if !ok {
			http.Redirect(w, r, LoginPath+"?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), username)))
	})
}

// IssueRememberToken signs a remember token for the admin account, for
// scripted access without an interactive login.
func (g *Gate) IssueRememberToken(ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = g.cfg.RememberDuration
	}
	return issueToken(g.cfg.Secret, g.cfg.Username, g.cfg.Now(), ttl)
}

// SessionCount returns the number of live sessions.
func (g *Gate) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.cfg.Now())
	return len(g.sessions)
}

func (g *Gate) verifyRemember(token string, now time.Time) (*Claims, error) {
	claims, err := parseToken(g.cfg.Secret, token, now)
	if err != nil {
		return nil, err
	}
	if !SecureCompare(claims.Username, g.cfg.Username) {
		return nil, ErrInvalidToken
	}

	g.mu.Lock()
	_, revoked := g.revoked[claims.ID]
	g.mu.Unlock()
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

func (g *Gate) startSession(ctx context.Context, s *session) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to generate session id", "error", err)
		return "", fmt.Errorf("generating session id: %w", err)
	}

	g.mu.Lock()
	g.pruneLocked(s.lastActivity)
	g.sessions[id.String()] = s
	g.mu.Unlock()
	return id.String(), nil
}

// Prune drops idle sessions and expired revocations and returns how many
// entries were removed.
func (g *Gate) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pruneLocked(g.cfg.Now())
}

// pruneLocked drops idle sessions and revocations past their token expiry.
// Sessions dropped here were abandoned, so their remember tokens stay valid.
// Callers must hold g.mu.
func (g *Gate) pruneLocked(now time.Time) int {
	removed := 0
	for id, s := range g.sessions {
		if now.Sub(s.lastActivity) > g.cfg.IdleTimeout {
			delete(g.sessions, id)
			removed++
		}
	}
	for id, exp := range g.revoked {
		if now.After(exp) {
			delete(g.revoked, id)
			removed++
		}
	}
	return removed
}

func (g *Gate) revokeLocked(tokenID string, exp time.Time) {
	if tokenID == "" {
		return
	}
	g.revoked[tokenID] = exp
}

func (g *Gate) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (g *Gate) clearCookie(w http.ResponseWriter, name string) {
	g.setCookie(w, name, "", -1)
}

func (g *Gate) clearCookies(w http.ResponseWriter) {
	g.clearCookie(w, SessionCookie)
	g.clearCookie(w, RememberCookie)
}

// WithUser returns a context carrying the authenticated username. The value
// shares the logger's user key so context-aware loggers pick it up.
func WithUser(ctx context.Context, username string) context.Context {
	return logger.ContextWithUserID(ctx, username)
}

// UserFromContext returns the authenticated username, or "".
func UserFromContext(ctx context.Context) string {
	return logger.UserIDFromContext(ctx)
}
