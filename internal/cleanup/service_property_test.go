package cleanup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siapp-dev/siapp/internal/docstore"
)

type countingPruner struct {
	calls   atomic.Int32
	removed int
	active  int
}

func (p *countingPruner) Prune() int {
	p.calls.Add(1)
	return p.removed
}

func (p *countingPruner) SessionCount() int {
	return p.active
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

// For any combination of temp file ages, exactly the files older than the
// retention are removed and regular documents are never touched.
func TestCleanupTempFilesRespectsRetention(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("only stale temp files are removed", prop.ForAll(
		func(ages []int) bool {
			dir := t.TempDir()
			retention := 10 * time.Minute

			stale := 0
			var temps []string
			for i, minutes := range ages {
				path := filepath.Join(dir, "apps", fmt.Sprintf("%s%d.json", docstore.TempPrefix, i))
				writeAged(t, path, time.Duration(minutes)*time.Minute)
				temps = append(temps, path)
				if time.Duration(minutes)*time.Minute > retention {
					stale++
				}
			}
			doc := filepath.Join(dir, "apps", "keep.json")
			writeAged(t, doc, 24*time.Hour)

			svc, err := NewService(dir, nil, &Settings{Interval: time.Hour, TempFileRetention: retention}, testLogger())
			if err != nil {
				return false
			}
			result, err := svc.CleanupTempFiles(context.Background())
			if err != nil || result.ItemsRemoved != stale || len(result.Errors) != 0 {
				return false
			}

			if _, err := os.Stat(doc); err != nil {
				return false
			}
			remaining := 0
			for _, path := range temps {
				if _, err := os.Stat(path); err == nil {
					remaining++
				}
			}
			return remaining == len(temps)-stale
		},
		gen.SliceOfN(8, gen.OneConstOf(1, 5, 20, 60, 600)),
	))

	properties.TestingRun(t)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
	assert.Error(t, (&Settings{Interval: 0, TempFileRetention: time.Minute}).Validate())
	assert.Error(t, (&Settings{Interval: time.Minute, TempFileRetention: -time.Second}).Validate())

	_, err := NewService(t.TempDir(), nil, &Settings{}, nil)
	assert.Error(t, err)
}

func TestCleanupTempFilesMissingDir(t *testing.T) {
	svc, err := NewService(filepath.Join(t.TempDir(), "absent"), nil, nil, testLogger())
	require.NoError(t, err)

	result, err := svc.CleanupTempFiles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.ItemsRemoved)
}

func TestPruneSessions(t *testing.T) {
	pruner := &countingPruner{removed: 3}
	svc, err := NewService(t.TempDir(), pruner, nil, testLogger())
	require.NoError(t, err)

	result := svc.PruneSessions()
	assert.Equal(t, 3, result.ItemsRemoved)
	assert.EqualValues(t, 1, pruner.calls.Load())

	withoutSessions, err := NewService(t.TempDir(), nil, nil, testLogger())
	require.NoError(t, err)
	assert.Zero(t, withoutSessions.PruneSessions().ItemsRemoved)
}

func TestRunOnceReportsActiveSessions(t *testing.T) {
	var buf bytes.Buffer
	pruner := &countingPruner{removed: 1, active: 2}
	svc, err := NewService(t.TempDir(), pruner, nil, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	svc.RunOnce(context.Background())
	assert.Contains(t, buf.String(), "sessions_pruned=1")
	assert.Contains(t, buf.String(), "active_sessions=2")
}

func TestStartRunsImmediatelyAndShutdownStops(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, docstore.TempPrefix+"orphan")
	writeAged(t, stale, time.Hour)

	pruner := &countingPruner{}
	svc, err := NewService(dir, pruner, &Settings{Interval: 10 * time.Millisecond, TempFileRetention: time.Minute}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "cleanup", svc.Name())

	svc.Start(context.Background())
	svc.Start(context.Background())

	require.Eventually(t, func() bool { return pruner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	calls := pruner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, pruner.calls.Load())
}

func TestShutdownWithoutStart(t *testing.T) {
	svc, err := NewService(t.TempDir(), nil, nil, testLogger())
	require.NoError(t, err)
	assert.NoError(t, svc.Shutdown(context.Background()))
}
