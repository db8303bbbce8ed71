// Package health provides periodic health probing for the external model
// adapters. A checker drives one adapter's probe on a ticker and maintains a
// thread-safe status with a consecutive-failure threshold; the degradation
// controller reads that status to decide when to switch implementations.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// probeTimeout bounds a single health probe.
const probeTimeout = 10 * time.Second

// Probeable is the slice of the adapter surface the checker needs. Both the
// diarizer and the transcriber interfaces satisfy it.
type Probeable interface {
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}

// ServiceStatus represents the current health state of a monitored adapter.
// All fields are safe for JSON serialization and are exposed on /healthz.
type ServiceStatus struct {
	// IsHealthy indicates whether the adapter passed recent health checks
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent health check ran
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts how many checks have failed in a row.
	// Reset to 0 when a check succeeds.
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage contains the last failure; empty while healthy
	ErrorMessage string `json:"error_message"`
}

// HealthChecker performs periodic health checks on one adapter implementation.
// It tracks consecutive failures so a single flaky probe does not flip the
// service into degraded mode.
//
// Thread-safety: all public methods are safe for concurrent use.
type HealthChecker struct {
	service       Probeable      // the adapter being monitored
	logger        *slog.Logger   // structured log sink
	status        *ServiceStatus // current health status (protected by mu)
	mu            sync.RWMutex   // protects status reads/writes
	checkInterval time.Duration  // interval between checks
	failThreshold int            // consecutive failures before marking unhealthy
	stopChan      chan struct{}  // signal channel to stop the check loop
}

// NewHealthChecker creates a checker for the given adapter. The checker
// starts in a healthy state (optimistic assumption); call Start to begin
// periodic probing.
func NewHealthChecker(service Probeable, logger *slog.Logger, checkInterval time.Duration, failThreshold int) *HealthChecker {
	return &HealthChecker{
		service:       service,
		logger:        logger,
		checkInterval: checkInterval,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		status: &ServiceStatus{
			IsHealthy:        true,
			LastCheckTime:    time.Now(),
			ConsecutiveFails: 0,
			ErrorMessage:     "",
		},
	}
}

// Start begins periodic health checking. It performs an immediate check,
// then checks at the configured interval until Stop is called or the
// context is cancelled. This method blocks; run it in a goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	// 启动时立即执行一次检查
	hc.performCheck(ctx)

	for {
		select {
		case <-ticker.C:
			hc.performCheck(ctx)
		case <-hc.stopChan:
			hc.logger.Info("health checker stopped", "service", hc.service.Name())
			return
		case <-ctx.Done():
			hc.logger.Info("health checker context cancelled", "service", hc.service.Name())
			return
		}
	}
}

// performCheck executes a single probe and updates the status, managing the
// consecutive failure counter.
func (hc *HealthChecker) performCheck(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	isHealthy, err := hc.service.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()

	if isHealthy {
		// 检查通过，重置失败计数
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
		hc.logger.Info("health check passed", "service", hc.service.Name())
		return
	}

	hc.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	hc.status.ErrorMessage = fmt.Sprintf("Health check failed: %s", errMsg)

	if hc.status.ConsecutiveFails >= hc.failThreshold {
		hc.status.IsHealthy = false
		hc.logger.Error("health check threshold reached, marking unhealthy",
			"service", hc.service.Name(),
			"consecutive_fails", hc.status.ConsecutiveFails)
	} else {
		hc.logger.Warn("health check failed",
			"service", hc.service.Name(),
			"fails", hc.status.ConsecutiveFails,
			"threshold", hc.failThreshold,
			"error", errMsg)
	}
}

// GetStatus returns a copy of the current health status, safe for
// concurrent access.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return *hc.status
}

// Stop gracefully terminates the checking loop. Safe to call multiple
// times; subsequent calls are no-ops.
func (hc *HealthChecker) Stop() {
	select {
	case <-hc.stopChan:
		// already closed
	default:
		close(hc.stopChan)
	}
}
