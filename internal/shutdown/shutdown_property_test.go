package shutdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// MockComponent is a mock implementation of the Component interface for testing.
type MockComponent struct {
	name          string
	shutdownDelay time.Duration
	shouldFail    bool
	shutdownCount int32
	order         *[]string
	mu            *sync.Mutex
}

func NewMockComponent(name string, delay time.Duration, shouldFail bool) *MockComponent {
	return &MockComponent{
		name:          name,
		shutdownDelay: delay,
		shouldFail:    shouldFail,
	}
}

func (m *MockComponent) Name() string {
	return m.name
}

func (m *MockComponent) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&m.shutdownCount, 1)
	if m.order != nil {
		m.mu.Lock()
		*m.order = append(*m.order, m.name)
		m.mu.Unlock()
	}

	select {
	case <-time.After(m.shutdownDelay):
		if m.shouldFail {
			return errors.New("mock shutdown failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockComponent) ShutdownCount() int {
	return int(atomic.LoadInt32(&m.shutdownCount))
}

var genMillis = func(lo, hi int64) gopter.Gen {
	return gen.Int64Range(lo, hi).Map(func(ms int64) time.Duration {
		return time.Duration(ms) * time.Millisecond
	})
}

func TestPropertyGracefulShutdownBehavior(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("every component is shut down once, last registered first", prop.ForAll(
		func(numComponents int, failing int) bool {
			var (
				mu    sync.Mutex
				order []string
			)
			coordinator := NewCoordinator(WithTimeout(time.Second))

			components := make([]*MockComponent, numComponents)
			for i := range components {
				comp := NewMockComponent(string(rune('A'+i)), time.Millisecond, i == failing)
				comp.order, comp.mu = &order, &mu
				components[i] = comp
				coordinator.Register(comp)
			}

			coordinator.Shutdown()
			coordinator.Shutdown()
			coordinator.Wait()

			for _, comp := range components {
				if comp.ShutdownCount() != 1 {
					return false
				}
			}
			for i, name := range order {
				if name != components[numComponents-1-i].name {
					return false
				}
			}
			// A failing component is logged, not fatal.
			return coordinator.ExitCode() == 0
		},
		gen.IntRange(1, 5),
		gen.IntRange(-1, 4),
	))

	properties.Property("slow components force exit code 1 within the timeout", prop.ForAll(
		func(timeout time.Duration) bool {
			coordinator := NewCoordinator(WithTimeout(timeout))
			coordinator.Register(NewMockComponent("slow", timeout*3, false))

			start := time.Now()
			coordinator.Shutdown()
			coordinator.Wait()

			return time.Since(start) < timeout+200*time.Millisecond && coordinator.ExitCode() == 1
		},
		genMillis(20, 100),
	))

	properties.TestingRun(t)
}

func TestWaitForSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	coordinator := NewCoordinator(WithTimeout(time.Second), WithSignalChannel(sigCh))
	comp := NewMockComponent("http", time.Millisecond, false)
	coordinator.Register(comp)

	go coordinator.WaitForSignal()
	sigCh <- os.Interrupt

	select {
	case <-coordinator.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	assert.Equal(t, 1, comp.ShutdownCount())
	assert.Equal(t, 0, coordinator.ExitCode())
}

func TestWaitForSignalReturnsAfterDirectShutdown(t *testing.T) {
	coordinator := NewCoordinator(WithSignalChannel(make(chan os.Signal)))

	returned := make(chan struct{})
	go func() {
		coordinator.WaitForSignal()
		close(returned)
	}()

	coordinator.Shutdown()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForSignal did not return")
	}
}

func TestHTTPServerDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	coordinator := NewCoordinator(WithTimeout(2 * time.Second))
	coordinator.Register(NewHTTPServerComponent("http", server.Config))

	var status atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get(server.URL)
		if err == nil {
			status.Store(int32(resp.StatusCode))
			resp.Body.Close()
		}
	}()

	<-started
	coordinator.Shutdown()
	coordinator.Wait()
	<-done

	assert.EqualValues(t, http.StatusOK, status.Load())
	assert.Equal(t, 0, coordinator.ExitCode())

	client := &http.Client{Timeout: 100 * time.Millisecond}
	_, err := client.Get(server.URL)
	assert.Error(t, err, "no new connections after shutdown")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloserComponentClosesAfterLaterRegistrations(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	coordinator := NewCoordinator()
	coordinator.Register(NewCloserComponent("store", closerFunc(func() error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "store")
		return nil
	})))
	server := NewMockComponent("http", 0, false)
	server.order, server.mu = &order, &mu
	coordinator.Register(server)

	coordinator.Shutdown()
	coordinator.Wait()
	assert.Equal(t, []string{"http", "store"}, order)
}
