// Package degradation provides automatic fallback and recovery for the
// transcription adapter. It watches the primary adapter's health status and
// swaps in the mock transcriber while the primary is down, so a broken
// speech service degrades runs to empty text instead of failing them.
package degradation

import (
	"log/slog"
	"sync"

	"github.com/diascribe/diascribe/cmd/server/internal/health"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
	"github.com/diascribe/diascribe/pkg/metrics"
)

// DegradationController manages which transcriber implementation the
// pipeline uses based on health status. It switches from the primary
// (HTTP or CLI) to the fallback (mock) when the health checker reports
// the primary unhealthy, and switches back on recovery.
//
// Thread-safety: all public methods are safe for concurrent use.
type DegradationController struct {
	primary       transcribe.Transcriber // preferred implementation
	fallback      transcribe.Transcriber // fallback, typically the mock
	healthChecker *health.HealthChecker  // monitors the primary
	logger        *slog.Logger
	current       transcribe.Transcriber // active implementation (protected by mu)
	mu            sync.RWMutex
	isDegraded    bool // true while using the fallback (protected by mu)
}

// NewDegradationController wires a controller over the given primary and
// fallback transcribers. Initial state uses the primary (optimistic
// assumption of health).
func NewDegradationController(
	primary transcribe.Transcriber,
	fallback transcribe.Transcriber,
	hc *health.HealthChecker,
	logger *slog.Logger,
) *DegradationController {
	return &DegradationController{
		primary:       primary,
		fallback:      fallback,
		healthChecker: hc,
		logger:        logger,
		current:       primary,
		isDegraded:    false,
	}
}

// GetTranscriber returns the active transcriber, switching between primary
// and fallback according to the latest health status. Transitions are
// logged and counted; an unchanged status returns the current adapter
// without side effects.
func (dc *DegradationController) GetTranscriber() transcribe.Transcriber {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		dc.logger.Warn("degrading to fallback transcriber",
			"from", dc.primary.Name(),
			"to", dc.fallback.Name(),
			"reason", status.ErrorMessage)
		metrics.RecordDegradationEvent(dc.primary.Name(), dc.fallback.Name())
		dc.current = dc.fallback
		dc.isDegraded = true
	}

	if status.IsHealthy && dc.isDegraded {
		dc.logger.Info("recovering to primary transcriber",
			"from", dc.fallback.Name(),
			"to", dc.primary.Name())
		metrics.RecordDegradationEvent(dc.fallback.Name(), dc.primary.Name())
		dc.current = dc.primary
		dc.isDegraded = false
	}

	return dc.current
}

// IsDegraded reports whether the controller is currently serving the
// fallback transcriber.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.isDegraded
}
