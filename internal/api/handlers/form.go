package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/siapp-dev/siapp/internal/api/errors"
	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/store"
	"github.com/siapp-dev/siapp/internal/validation"
	"github.com/siapp-dev/siapp/ui"
)

// FormHandler serves the public self-service registration form.
type FormHandler struct {
	store  store.Store
	slugs  *store.SlugGenerator
	logger *slog.Logger
}

// NewFormHandler creates a new registration form handler.
func NewFormHandler(st store.Store, slugs *store.SlugGenerator, logger *slog.Logger) *FormHandler {
	return &FormHandler{
		store:  st,
		slugs:  slugs,
		logger: logger,
	}
}

// Show renders the empty registration form.
func (h *FormHandler) Show(w http.ResponseWriter, r *http.Request) {
	renderComponent(w, r, http.StatusOK, ui.Form(ui.FormView{}), h.logger)
}

// Submit registers an Apps Script deployment under a generated slug.
func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, ui.FormView{}, apierrors.NewValidationError("malformed form data"))
		return
	}

	name := strings.TrimSpace(r.PostForm.Get("app_name"))
	appURL := strings.TrimSpace(r.PostForm.Get("app_url"))
	view := ui.FormView{Name: name, URL: appURL}

	var fields apierrors.ValidationErrors
	for _, err := range []error{validation.ValidatePublicName(name), validation.ValidateAppsScriptURL(appURL)} {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			fields.Add(ve.Field, ve.Message)
		}
	}
	if fields.HasErrors() {
		h.fail(w, r, view, fields.ToAPIError())
		return
	}

	ctx := r.Context()
	apps := h.store.Apps()
	app, err := apps.Create(ctx, &models.App{
		Name:      name,
		Slug:      h.slugs.Generate(ctx, apps),
		ShortName: models.DeriveShortName(name),
		URL:       appURL,
	})
	if err != nil {
		apiErr := apierrors.FromStoreError(err)
		if apiErr.Code == apierrors.CodeInternalError {
			h.logger.ErrorContext(ctx, "failed to register application", "error", err)
		}
		h.fail(w, r, view, apiErr)
		return
	}

	h.logger.InfoContext(ctx, "application registered", "slug", app.Slug, "remote_addr", r.RemoteAddr)

	if wantsJSON(r) {
		WritePrettyJSON(w, http.StatusOK, app)
		return
	}
	renderComponent(w, r, http.StatusOK, ui.Success(ui.SuccessView{
		App:      app,
		ShortURL: baseURL(r) + app.Path(),
	}), h.logger)
}

// fail reports a rejected registration with status 200. JSON clients get the
// error envelope; browsers get the form back with a flash.
func (h *FormHandler) fail(w http.ResponseWriter, r *http.Request, view ui.FormView, apiErr *apierrors.APIError) {
	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, apiErr.WithRequestID(chimiddleware.GetReqID(r.Context())))
		return
	}

	message := apiErr.Message
	if apiErr.Code == apierrors.CodeInternalError {
		message = "Your application could not be registered. Please try again later."
	}
	view.Flash = &ui.Flash{Kind: ui.FlashError, Message: message}
	renderComponent(w, r, http.StatusOK, ui.Form(view), h.logger)
}
