package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/siapp-dev/siapp/internal/auth"
	"github.com/siapp-dev/siapp/ui"
)

// Admin panel paths.
const (
	AdminHome   = "/admin/"
	AdminLogout = "/admin/logout"
)

// LoginHandler handles admin sign-in and sign-out.
type LoginHandler struct {
	gate   *auth.Gate
	logger *slog.Logger
}

// NewLoginHandler creates a new login handler.
func NewLoginHandler(gate *auth.Gate, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		gate:   gate,
		logger: logger,
	}
}

// Show renders the login page, or redirects when already signed in.
func (h *LoginHandler) Show(w http.ResponseWriter, r *http.Request) {
	redirect := safeRedirect(r.URL.Query().Get("redirect"))
	if h.gate.IsAuthenticated(w, r) {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	view := ui.LoginView{Redirect: redirect}
	if r.URL.Query().Get("message") == "logged_out" {
		view.Flash = &ui.Flash{Kind: ui.FlashInfo, Message: "You have been signed out."}
	}
	renderComponent(w, r, http.StatusOK, ui.Login(view), h.logger)
}

// Submit checks the posted credentials.
func (h *LoginHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	remember := r.PostForm.Get("remember") != ""
	redirect := safeRedirect(r.PostForm.Get("redirect"))

	if err := h.gate.Login(w, r, username, password, remember); err != nil {
		renderComponent(w, r, http.StatusOK, ui.Login(ui.LoginView{
			Username: username,
			Redirect: redirect,
			Flash:    &ui.Flash{Kind: ui.FlashError, Message: "Invalid username or password."},
		}), h.logger)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// Logout ends the session and returns to the login page.
func (h *LoginHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.gate.Logout(w, r)
	http.Redirect(w, r, auth.LoginPath+"?message=logged_out", http.StatusFound)
}

// safeRedirect accepts only local admin paths. Anything else, including
// protocol-relative URLs and the logout path, falls back to the dashboard.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return AdminHome
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return AdminHome
	}
	if !strings.HasPrefix(u.Path, AdminHome) || u.Path == AdminLogout || u.Path == auth.LoginPath {
		return AdminHome
	}
	return target
}
