// Package validation checks application records before they are persisted.
package validation

import (
	"errors"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/siapp-dev/siapp/internal/models"
)

// slugRegex matches the public routing key alphabet.
var slugRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Apps Script deployments look like https://script.google.com/macros/s/<id>/exec.
const (
	appsScriptMarker = "script.google.com/macros/s/"
	appsScriptSuffix = "/exec"
)

// Public form name bounds.
const (
	MinPublicNameLength = 3
	MaxPublicNameLength = models.MaxNameLength
)

// Struct-level rules for a complete record.
type appRules struct {
	Name      string `json:"APP_NAME" validate:"notblank,max=100"`
	Slug      string `json:"APP_SLUG" validate:"notblank,slug"`
	ShortName string `json:"APP_SHORT_NAME" validate:"notblank,max=20"`
	URL       string `json:"APP_URL" validate:"notblank,absurl"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails on empty tags or nil funcs.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
		return isAbsoluteURL(fl.Field().String())
	})

	return v
}

// ValidateSlug accepts any non-empty string made only of letters, digits,
// underscores and hyphens.
func ValidateSlug(slug string) error {
	if slug == "" {
		return &models.ValidationError{Field: models.KeySlug, Message: "slug is required"}
	}
	if !slugRegex.MatchString(slug) {
		return &models.ValidationError{
			Field:   models.KeySlug,
			Message: "slug may only contain letters, numbers, underscores and hyphens",
		}
	}
	return nil
}

// ValidateURL checks general URL syntax: a scheme and a host are required.
func ValidateURL(raw string) error {
	if !isAbsoluteURL(raw) {
		return &models.ValidationError{Field: models.KeyURL, Message: "url is not a valid absolute URL"}
	}
	return nil
}

// ValidateApp validates a complete record as required on create.
func ValidateApp(app *models.App) error {
	if app == nil {
		return &models.ValidationError{Field: "app", Message: "application is required"}
	}
	return toValidationError(validate.Struct(appRules{
		Name:      app.Name,
		Slug:      app.Slug,
		ShortName: app.ShortName,
		URL:       app.URL,
	}))
}

// ValidatePatch validates only the fields present in the patch.
func ValidatePatch(patch models.AppPatch) error {
	checks := []struct {
		field string
		value *string
		tag   string
	}{
		{models.KeyName, patch.Name, "notblank,max=100"},
		{models.KeySlug, patch.Slug, "notblank,slug"},
		{models.KeyShortName, patch.ShortName, "notblank,max=20"},
		{models.KeyURL, patch.URL, "notblank,absurl"},
	}

	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := validate.Var(*c.value, c.tag); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return &models.ValidationError{Field: c.field, Message: describe(verrs[0].Tag(), verrs[0].Param())}
			}
			return &models.ValidationError{Field: c.field, Message: err.Error()}
		}
	}
	return nil
}

// ValidatePublicName applies the self-service length rules to a display name.
func ValidatePublicName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return &models.ValidationError{Field: models.KeyName, Message: "application name is required"}
	case n < MinPublicNameLength:
		return &models.ValidationError{Field: models.KeyName, Message: "application name must be at least 3 characters"}
	case n > MaxPublicNameLength:
		return &models.ValidationError{Field: models.KeyName, Message: "application name must be 100 characters or less"}
	}
	return nil
}

// ValidateAppsScriptURL accepts only Apps Script web app deployment URLs.
func ValidateAppsScriptURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &models.ValidationError{Field: models.KeyURL, Message: "Apps Script URL is required"}
	}
	if err := ValidateURL(raw); err != nil {
		return err
	}
	if !strings.Contains(raw, appsScriptMarker) || !strings.Contains(raw, appsScriptSuffix) {
		return &models.ValidationError{
			Field:   models.KeyURL,
			Message: "url must be a Google Apps Script deployment ending in /exec",
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &models.ValidationError{Field: "app", Message: err.Error()}
	}
	first := verrs[0]
	return &models.ValidationError{Field: first.Field(), Message: describe(first.Tag(), first.Param())}
}

func describe(tag, param string) string {
	switch tag {
	case "notblank":
		return "field is required"
	case "max":
		return "must be " + param + " characters or less"
	case "slug":
		return "may only contain letters, numbers, underscores and hyphens"
	case "absurl":
		return "is not a valid absolute URL"
	default:
		return "failed " + tag + " validation"
	}
}
