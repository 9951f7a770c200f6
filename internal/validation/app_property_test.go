package validation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/siapp-dev/siapp/internal/models"
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"

// genValidSlug generates a non-empty string drawn only from the slug alphabet.
func genValidSlug() gopter.Gen {
	return gen.IntRange(1, 40).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), gen.IntRange(0, len(slugAlphabet)-1)).Map(func(idx []int) string {
			b := make([]byte, len(idx))
			for i, c := range idx {
				b[i] = slugAlphabet[c]
			}
			return string(b)
		})
	}, reflect.TypeOf(""))
}

// genInvalidSlug generates a slug with at least one character outside the alphabet.
func genInvalidSlug() gopter.Gen {
	return gopter.CombineGens(
		genValidSlug(),
		gen.OneConstOf(" ", "/", ".", "?", "#", "%", "é", "!", "+", "="),
		gen.IntRange(0, 40),
	).Map(func(vals []interface{}) string {
		base := vals[0].(string)
		bad := vals[1].(string)
		pos := vals[2].(int) % (len(base) + 1)
		return base[:pos] + bad + base[pos:]
	})
}

// For any string drawn solely from [A-Za-z0-9_-] the slug check passes, and
// for any string containing another character it fails.
func TestPropertySlugFormat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid slugs are accepted", prop.ForAll(
		func(slug string) bool {
			return ValidateSlug(slug) == nil
		},
		genValidSlug(),
	))

	properties.Property("slugs with foreign characters are rejected", prop.ForAll(
		func(slug string) bool {
			err := ValidateSlug(slug)
			var verr *models.ValidationError
			return errors.As(err, &verr) && verr.Field == models.KeySlug
		},
		genInvalidSlug(),
	))

	properties.TestingRun(t)
}

func TestValidateSlugEmpty(t *testing.T) {
	if err := ValidateSlug(""); err == nil {
		t.Fatal("expected empty slug to be rejected")
	}
}

func TestValidateApp(t *testing.T) {
	valid := models.App{
		Name:      "Test App",
		Slug:      "test-app",
		ShortName: "Test",
		URL:       "https://script.google.com/macros/s/ABC/exec",
	}

	tests := []struct {
		name      string
		mutate    func(a *models.App)
		wantField string
	}{
		{"valid", func(a *models.App) {}, ""},
		{"blank name", func(a *models.App) { a.Name = "   " }, models.KeyName},
		{"long name", func(a *models.App) { a.Name = strings.Repeat("x", 101) }, models.KeyName},
		{"missing slug", func(a *models.App) { a.Slug = "" }, models.KeySlug},
		{"bad slug", func(a *models.App) { a.Slug = "has space" }, models.KeySlug},
		{"long short name", func(a *models.App) { a.ShortName = strings.Repeat("s", 21) }, models.KeyShortName},
		{"missing url", func(a *models.App) { a.URL = "" }, models.KeyURL},
		{"relative url", func(a *models.App) { a.URL = "/macros/s/ABC/exec" }, models.KeyURL},
		{"no scheme", func(a *models.App) { a.URL = "script.google.com/macros" }, models.KeyURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := valid
			tt.mutate(&app)
			err := ValidateApp(&app)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidatePatchChecksOnlyPresentFields(t *testing.T) {
	bad := "not a url"
	good := "Renamed"
	empty := ""

	if err := ValidatePatch(models.AppPatch{}); err != nil {
		t.Errorf("empty patch should pass, got %v", err)
	}
	if err := ValidatePatch(models.AppPatch{Name: &good}); err != nil {
		t.Errorf("name-only patch should pass, got %v", err)
	}
	if err := ValidatePatch(models.AppPatch{URL: &bad}); err == nil {
		t.Error("invalid url in patch should fail")
	}
	if err := ValidatePatch(models.AppPatch{Slug: &empty}); err == nil {
		t.Error("blank slug in patch should fail")
	}
}

func TestValidateAppsScriptURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://script.google.com/macros/s/ABC/exec", true},
		{"https://script.google.com/macros/s/AKfycbx-123_abc/exec?foo=bar", true},
		{"", false},
		{"https://example.com/exec", false},
		{"https://script.google.com/macros/s/ABC/dev", false},
		{"script.google.com/macros/s/ABC/exec", false},
	}

	for _, tt := range tests {
		err := ValidateAppsScriptURL(tt.url)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateAppsScriptURL(%q) error = %v, want valid=%v", tt.url, err, tt.valid)
		}
	}
}

func TestValidatePublicName(t *testing.T) {
	if err := ValidatePublicName("ab"); err == nil {
		t.Error("two-character name should be rejected")
	}
	if err := ValidatePublicName("abc"); err != nil {
		t.Errorf("three-character name should pass, got %v", err)
	}
	if err := ValidatePublicName(strings.Repeat("n", 101)); err == nil {
		t.Error("101-character name should be rejected")
	}
}
