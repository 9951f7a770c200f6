package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const slugCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// SlugGenerator produces random lowercase alphanumeric slugs that are not in
// use at the moment of generation.
type SlugGenerator struct {
	// Length is the initial slug length.
	Length int
	// MaxAttempts bounds the number of random candidates tried.
	MaxAttempts int
	// GrowAfter is the attempt after which each further attempt adds one character.
	GrowAfter int

	intN func(n int) int
	now  func() time.Time
}

// NewSlugGenerator returns a generator with the default policy: six
// characters, 100 attempts, growing after 50.
func NewSlugGenerator() *SlugGenerator {
	return &SlugGenerator{
		Length:      6,
		MaxAttempts: 100,
		GrowAfter:   50,
		intN:        rand.IntN,
		now:         time.Now,
	}
}

// NewSlugGeneratorWithRand returns a default generator drawing from intN.
func NewSlugGeneratorWithRand(intN func(n int) int) *SlugGenerator {
	g := NewSlugGenerator()
	g.intN = intN
	return g
}

// Generate returns a slug for which apps has no record. When every random
// candidate collides it falls back to app<unix seconds><3 digits>.
func (g *SlugGenerator) Generate(ctx context.Context, apps AppStore) string {
	length := g.Length
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		candidate := g.random(length)
		if !taken(ctx, apps, candidate) {
			return candidate
		}
		if attempt > g.GrowAfter {
			length++
		}
	}

	var candidate string
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		candidate = fmt.Sprintf("app%d%d", g.now().Unix(), 100+g.intN(900))
		if !taken(ctx, apps, candidate) || ctx.Err() != nil {
			break
		}
	}
	return candidate
}

func (g *SlugGenerator) random(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = slugCharset[g.intN(len(slugCharset))]
	}
	return string(b)
}

func taken(ctx context.Context, apps AppStore, slug string) bool {
	_, err := apps.GetBySlug(ctx, slug)
	return err == nil
}
