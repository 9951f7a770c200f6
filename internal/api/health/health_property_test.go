package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPinger is a mock implementation of the Pinger interface.
type MockPinger struct {
	err error
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.err
}

func pingerFor(healthy bool) *MockPinger {
	if healthy {
		return &MockPinger{}
	}
	return &MockPinger{err: errors.New("data directory not writable")}
}

func templatesFor(present bool) fstest.MapFS {
	if present {
		return fstest.MapFS{"index.html": {Data: []byte("<html></html>")}}
	}
	return fstest.MapFS{"sw.js": {Data: []byte("")}}
}

func TestPropertyHealthStatusAggregation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("overall status is the worst component status", prop.ForAll(
		func(storageOK, templatesOK bool, version string) bool {
			checker := NewChecker(pingerFor(storageOK), templatesFor(templatesOK), version)
			resp := checker.Check(context.Background())

			want := StatusHealthy
			switch {
			case !storageOK:
				want = StatusUnhealthy
			case !templatesOK:
				want = StatusDegraded
			}
			if resp.Status != want {
				t.Logf("status: got %s, want %s", resp.Status, want)
				return false
			}
			return resp.Version == version && len(resp.Components) == 2
		},
		gen.Bool(),
		gen.Bool(),
		gen.Identifier(),
	))

	properties.Property("handler returns 503 only when unhealthy", prop.ForAll(
		func(storageOK, templatesOK bool) bool {
			checker := NewChecker(pingerFor(storageOK), templatesFor(templatesOK), "test")
			rr := httptest.NewRecorder()
			checker.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			var body Response
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				return false
			}
			if storageOK {
				return rr.Code == http.StatusOK
			}
			return rr.Code == http.StatusServiceUnavailable && body.Status == StatusUnhealthy
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestNilPingerIsUnhealthy(t *testing.T) {
	resp := NewChecker(nil, nil, "v").Check(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusUnhealthy, resp.Components["storage"].Status)
	_, hasTemplates := resp.Components["templates"]
	assert.False(t, hasTemplates)
}

func TestComponentMessages(t *testing.T) {
	resp := NewChecker(pingerFor(false), templatesFor(false), "v").Check(context.Background())
	assert.Contains(t, resp.Components["storage"].Message, "data directory not writable")
	assert.Equal(t, "index.html not found", resp.Components["templates"].Message)
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheckTimeout(t *testing.T) {
	checker := NewChecker(slowPinger{}, nil, "v")
	checker.SetTimeout(10 * time.Millisecond)

	start := time.Now()
	resp := checker.Check(context.Background())
	require.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}
