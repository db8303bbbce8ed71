package degradation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/diascribe/diascribe/cmd/server/internal/health"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
)

// switchableTranscriber is a thread-safe transcriber stub whose health can
// be flipped mid-test.
type switchableTranscriber struct {
	name    string
	healthy bool
	mu      sync.RWMutex
}

func (m *switchableTranscriber) Transcribe(ctx context.Context, clipPath string, options *transcribe.Options) (*transcribe.Result, error) {
	return &transcribe.Result{
		Text:     "transcribed by " + m.name,
		Segments: []transcribe.Segment{},
		Language: "en",
		Duration: 1.0,
	}, nil
}

func (m *switchableTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy, nil
}

func (m *switchableTranscriber) Name() string { return m.name }

func (m *switchableTranscriber) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDegradationController tests automatic degradation logic.
func TestDegradationController(t *testing.T) {
	t.Run("initial state uses primary transcriber", func(t *testing.T) {
		primary := &switchableTranscriber{name: "primary", healthy: true}
		fallback := &switchableTranscriber{name: "fallback", healthy: true}

		hc := health.NewHealthChecker(primary, testLogger(), time.Hour, 3)
		controller := NewDegradationController(primary, fallback, hc, testLogger())

		if got := controller.GetTranscriber().Name(); got != "primary" {
			t.Errorf("Initial transcriber = %q, want %q", got, "primary")
		}
		if controller.IsDegraded() {
			t.Error("Initial state should not be degraded")
		}
	})

	t.Run("degrades to fallback when primary is unhealthy", func(t *testing.T) {
		primary := &switchableTranscriber{name: "primary", healthy: false}
		fallback := &switchableTranscriber{name: "fallback", healthy: true}

		hc := health.NewHealthChecker(primary, testLogger(), 10*time.Millisecond, 1)
		controller := NewDegradationController(primary, fallback, hc, testLogger())

		go hc.Start(context.Background())
		defer hc.Stop()

		// wait for the checker to observe the failing primary
		time.Sleep(100 * time.Millisecond)

		if got := controller.GetTranscriber().Name(); got != "fallback" {
			t.Errorf("After degradation: transcriber = %q, want %q", got, "fallback")
		}
		if !controller.IsDegraded() {
			t.Error("Should be in degraded state")
		}
	})

	t.Run("recovers to primary when health is restored", func(t *testing.T) {
		primary := &switchableTranscriber{name: "primary", healthy: false}
		fallback := &switchableTranscriber{name: "fallback", healthy: true}

		hc := health.NewHealthChecker(primary, testLogger(), 10*time.Millisecond, 1)
		controller := NewDegradationController(primary, fallback, hc, testLogger())

		go hc.Start(context.Background())
		defer hc.Stop()

		time.Sleep(100 * time.Millisecond)
		if controller.GetTranscriber().Name() != "fallback" {
			t.Fatal("Should be degraded to fallback")
		}

		primary.SetHealthy(true)
		time.Sleep(100 * time.Millisecond)

		if got := controller.GetTranscriber().Name(); got != "primary" {
			t.Errorf("After recovery: transcriber = %q, want %q", got, "primary")
		}
		if controller.IsDegraded() {
			t.Error("Should not be degraded after recovery")
		}
	})

	t.Run("transcribe uses active implementation", func(t *testing.T) {
		primary := &switchableTranscriber{name: "primary-impl", healthy: true}
		fallback := &switchableTranscriber{name: "fallback-impl", healthy: true}

		hc := health.NewHealthChecker(primary, testLogger(), time.Hour, 3)
		controller := NewDegradationController(primary, fallback, hc, testLogger())

		result, err := controller.GetTranscriber().Transcribe(context.Background(), "/test/clip.wav", nil)
		if err != nil {
			t.Fatalf("Transcribe error: %v", err)
		}
		if result.Text != "transcribed by primary-impl" {
			t.Errorf("Primary transcription text = %q", result.Text)
		}
	})

	t.Run("multiple degradations and recoveries", func(t *testing.T) {
		primary := &switchableTranscriber{name: "primary", healthy: true}
		fallback := &switchableTranscriber{name: "fallback", healthy: true}

		hc := health.NewHealthChecker(primary, testLogger(), 10*time.Millisecond, 1)
		controller := NewDegradationController(primary, fallback, hc, testLogger())

		go hc.Start(context.Background())
		defer hc.Stop()

		for cycle := 0; cycle < 2; cycle++ {
			primary.SetHealthy(false)
			time.Sleep(50 * time.Millisecond)
			if controller.GetTranscriber().Name() != "fallback" {
				t.Errorf("Cycle %d: Should be degraded", cycle)
			}

			primary.SetHealthy(true)
			time.Sleep(50 * time.Millisecond)
			if controller.GetTranscriber().Name() != "primary" {
				t.Errorf("Cycle %d: Should be recovered", cycle)
			}
		}
	})
}

// TestDegradationControllerConstructor tests controller creation.
func TestDegradationControllerConstructor(t *testing.T) {
	primary := &switchableTranscriber{name: "primary", healthy: true}
	fallback := &switchableTranscriber{name: "fallback", healthy: true}
	hc := health.NewHealthChecker(primary, testLogger(), time.Hour, 3)

	controller := NewDegradationController(primary, fallback, hc, testLogger())
	if controller == nil {
		t.Fatal("NewDegradationController returned nil")
	}

	transcriber := controller.GetTranscriber()
	if transcriber == nil {
		t.Fatal("GetTranscriber returned nil")
	}
	if transcriber.Name() != "primary" {
		t.Errorf("Initial transcriber = %q, want %q", transcriber.Name(), "primary")
	}
}
