package docstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCollection(t *testing.T) (*DB, *Collection) {
	t.Helper()
	db, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := db.Collection("items")
	require.NoError(t, err)
	return db, c
}

func TestInsertAssignsIDAndPersists(t *testing.T) {
	ctx := context.Background()
	db, c := openTestCollection(t)

	doc, err := c.Insert(ctx, Document{"name": "alpha"})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID())

	_, err = os.Stat(filepath.Join(db.Dir(), "items", doc.ID()+".json"))
	require.NoError(t, err, "document file should exist")

	got, err := c.Query().Where(IDField, doc.ID()).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.String("name"))
}

func TestInsertDoesNotMutateInput(t *testing.T) {
	_, c := openTestCollection(t)
	in := Document{"name": "alpha"}
	_, err := c.Insert(context.Background(), in)
	require.NoError(t, err)
	_, has := in[IDField]
	assert.False(t, has)
}

func TestQueryWhereFetchPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	for _, name := range []string{"a", "b", "c", "d"} {
		kind := "even"
		if name == "a" || name == "c" {
			kind = "odd"
		}
		_, err := c.Insert(ctx, Document{"name": name, "kind": kind})
		require.NoError(t, err)
	}

	all, err := c.Query().Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, all[i].String("name"))
	}

	odd, err := c.Query().Where("kind", "odd").Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, odd, 2)
	assert.Equal(t, "a", odd[0].String("name"))
	assert.Equal(t, "c", odd[1].String("name"))

	none, err := c.Query().Where("kind", "odd").Where("name", "b").Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryFirstNoMatch(t *testing.T) {
	_, c := openTestCollection(t)
	_, err := c.Query().Where("name", "missing").First(context.Background())
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestQueryUpdateMergesAndKeepsID(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	doc, err := c.Insert(ctx, Document{"name": "alpha", "n": 1})
	require.NoError(t, err)

	n, err := c.Query().Where("name", "alpha").Update(ctx, Document{"name": "beta", IDField: "forged"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := c.Query().Where(IDField, doc.ID()).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "beta", got.String("name"))
	assert.Equal(t, doc.ID(), got.ID())
	assert.Equal(t, float64(1), got["n"])

	n, err = c.Query().Where("name", "alpha").Update(ctx, Document{"name": "gamma"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryDelete(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	_, err := c.Insert(ctx, Document{"name": "alpha"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, Document{"name": "beta"})
	require.NoError(t, err)

	n, err := c.Query().Where("name", "alpha").Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Query().Where("name", "alpha").Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNumericEquality(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)
	_, err := c.Insert(ctx, Document{"n": 3})
	require.NoError(t, err)

	docs, err := c.Query().Where("n", 3).Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCorruptDocumentSurfacesError(t *testing.T) {
	ctx := context.Background()
	db, c := openTestCollection(t)

	path := filepath.Join(db.Dir(), "items", "0190a0b0-0000-7000-8000-000000000000.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := c.Query().Fetch(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestTempFilesAreIgnored(t *testing.T) {
	ctx := context.Background()
	db, c := openTestCollection(t)

	require.NoError(t, os.WriteFile(filepath.Join(db.Dir(), "items", ".tmp-123"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(db.Dir(), "items", "notes.txt"), []byte("x"), 0o644))

	docs, err := c.Query().Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCollectionNameValidation(t *testing.T) {
	db, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	for _, name := range []string{"", "../escape", "a/b", "with space"} {
		_, err := db.Collection(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestCollectionHandleIsCached(t *testing.T) {
	db, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	a, err := db.Collection("apps")
	require.NoError(t, err)
	b, err := db.Collection("apps")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestInsertUniqueRejectsTakenValue(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	_, err := c.InsertUnique(ctx, "slug", Document{"slug": "alpha"})
	require.NoError(t, err)
	_, err = c.InsertUnique(ctx, "slug", Document{"slug": "alpha", "name": "second"})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = c.InsertUnique(ctx, "slug", Document{"name": "no slug"})
	assert.NoError(t, err, "documents without the field are not compared")

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConcurrentInsertUniqueAdmitsOne(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.InsertUnique(ctx, "slug", Document{"slug": "race"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, ErrDuplicate) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 15, dupes)
	docs, err := c.Query().Where("slug", "race").Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestUpdateUniqueIgnoresMatchedDocuments(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	_, err := c.Insert(ctx, Document{"slug": "alpha"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, Document{"slug": "beta"})
	require.NoError(t, err)

	n, err := c.Query().Where("slug", "alpha").UpdateUnique(ctx, "slug", Document{"slug": "alpha", "name": "kept"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Query().Where("slug", "alpha").UpdateUnique(ctx, "slug", Document{"slug": "beta"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, n)

	doc, err := c.Query().Where("name", "kept").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", doc.String("slug"))
}

func TestPingAndClose(t *testing.T) {
	ctx := context.Background()
	db, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, db.Ping(ctx))
	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Ping(ctx), ErrClosed)

	_, err = db.Collection("apps")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	_, c := openTestCollection(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Insert(ctx, Document{"i": i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestCanceledContext(t *testing.T) {
	_, c := openTestCollection(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Insert(ctx, Document{"name": "x"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Query().Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
