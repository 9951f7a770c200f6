package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/siapp-dev/siapp/internal/models"
)

// slugSet is an AppStore stub that only answers GetBySlug.
type slugSet struct {
	AppStore
	taken   map[string]bool
	lookups int
}

func (s *slugSet) GetBySlug(_ context.Context, slug string) (*models.App, error) {
	s.lookups++
	if s.taken[slug] {
		return &models.App{Slug: slug}, nil
	}
	return nil, ErrNotFound
}

var generatedSlugRegex = regexp.MustCompile(`^[a-z0-9]{6,}$`)

// Generated slugs are lowercase alphanumeric, at least six characters, and
// never collide with an existing slug.
func TestPropertyGeneratedSlugIsFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("generated slug is well-formed and unused", prop.ForAll(
		func(existing []string) bool {
			set := &slugSet{taken: map[string]bool{}}
			for _, s := range existing {
				set.taken[s] = true
			}
			slug := NewSlugGenerator().Generate(context.Background(), set)
			return generatedSlugRegex.MatchString(slug) && !set.taken[slug]
		},
		gen.SliceOf(gen.RegexMatch(`^[a-z0-9]{6}$`)),
	))

	properties.TestingRun(t)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	// Yields "aaaaaa" first, then "bbbbbb".
	calls := 0
	intN := func(n int) int {
		calls++
		if calls <= 6 {
			return 0
		}
		return 1
	}

	set := &slugSet{taken: map[string]bool{"aaaaaa": true}}
	slug := NewSlugGeneratorWithRand(intN).Generate(context.Background(), set)

	assert.Equal(t, "bbbbbb", slug)
	assert.Equal(t, 2, set.lookups)
}

func TestGenerateGrowsAfterRepeatedCollisions(t *testing.T) {
	g := NewSlugGeneratorWithRand(func(int) int { return 0 })
	set := &slugSet{taken: map[string]bool{}}
	for n := 6; n <= 10; n++ {
		set.taken[repeatA(n)] = true
	}
	// Length stays at six through attempt 51, then grows by one per attempt.
	slug := g.Generate(context.Background(), set)
	assert.Equal(t, repeatA(11), slug)
}

func TestGenerateFallsBackToTimestamp(t *testing.T) {
	g := NewSlugGeneratorWithRand(func(int) int { return 0 })
	g.now = func() time.Time { return time.Unix(1700000000, 0) }
	g.MaxAttempts = 5

	// Length never grows within five attempts, so "aaaaaa" is offered each time.
	set := &slugSet{taken: map[string]bool{"aaaaaa": true}}
	slug := g.Generate(context.Background(), set)

	assert.Equal(t, "app1700000000100", slug)
	assert.Regexp(t, generatedSlugRegex, slug)
}

func repeatA(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
