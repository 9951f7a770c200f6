package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siapp-dev/siapp/internal/models"
	"github.com/siapp-dev/siapp/internal/store"
)

var genErrorCode = gen.OneConstOf(
	CodeValidationError,
	CodeNotFound,
	CodeConflict,
	CodeInternalError,
)

// Every error response carries code, message and request_id, and its status
// follows the code.
func TestPropertyStructuredErrorResponse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("envelope round-trips", prop.ForAll(
		func(code, message, requestID string) bool {
			rr := httptest.NewRecorder()
			WriteError(rr, New(code, message).WithRequestID(requestID))

			var body map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Logf("decode: %v", err)
				return false
			}
			return body["code"] == code &&
				body["message"] == message &&
				body["request_id"] == requestID &&
				rr.Code == New(code, message).HTTPStatusCode() &&
				rr.Header().Get("Content-Type") == "application/json; charset=utf-8"
		},
		genErrorCode,
		gen.AlphaString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestPropertyValidationErrorFieldDetails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	genField := gen.Identifier()
	genMessage := gen.AlphaString().SuchThat(func(s string) bool { return s != "" })

	properties.Property("every field error is listed in details", prop.ForAll(
		func(fields []string, message string) bool {
			var errs ValidationErrors
			for _, f := range fields {
				errs.Add(f, message)
			}
			if len(fields) > 0 && !errs.HasErrors() {
				return false
			}

			apiErr := errs.ToAPIError()
			if apiErr.Code != CodeValidationError {
				return false
			}
			if len(fields) == 0 {
				return apiErr.Details == nil
			}
			listed, ok := apiErr.Details["fields"].(ValidationErrors)
			return ok && len(listed) == len(fields)
		},
		gen.SliceOfN(4, genField),
		genMessage,
	))

	properties.TestingRun(t)
}

func TestToAPIErrorMessage(t *testing.T) {
	single := AddFieldError("APP_SLUG", "slug is required").ToAPIError()
	assert.Equal(t, "slug is required", single.Message)

	var errs ValidationErrors
	errs.Add("APP_NAME", "name is required")
	errs.Add("APP_URL", "url is required")
	assert.Equal(t, "name is required (and 1 more errors)", errs.ToAPIError().Message)
}

func TestFromStoreError(t *testing.T) {
	fieldErr := fmt.Errorf("%w: %w", store.ErrValidation, &models.ValidationError{Field: models.KeySlug, Message: "bad slug"})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"field validation", fieldErr, http.StatusBadRequest, CodeValidationError},
		{"bare validation", store.ErrValidation, http.StatusBadRequest, CodeValidationError},
		{"not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict, CodeConflict},
		{"storage", fmt.Errorf("%w: disk full", store.ErrStorage), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromStoreError(tt.err)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.HTTPStatusCode())
		})
	}

	apiErr := FromStoreError(fieldErr)
	fields, ok := apiErr.Details["fields"].(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, models.KeySlug, fields[0].Field)

	assert.NotContains(t, FromStoreError(fmt.Errorf("%w: disk full", store.ErrStorage)).Message, "disk")
}

func TestWithDetailsCopies(t *testing.T) {
	base := NewNotFoundError("missing").WithRequestID("r1")
	withDetails := base.WithDetails(map[string]any{"slug": "x"})
	assert.Nil(t, base.Details)
	assert.Equal(t, "r1", withDetails.RequestID)
	assert.Equal(t, "NOT_FOUND: missing", withDetails.Error())
}
