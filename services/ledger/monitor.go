package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"go.uber.org/zap"
)

// Checker verifies the whole chain
type Checker interface {
	CheckAll(ctx context.Context) (*VerificationResult, error)
}

// MonitorConfig holds configuration for the Monitor
type MonitorConfig struct {
	Interval time.Duration // Time between full verifications
	Timeout  time.Duration // Upper bound for a single verification
}

// DefaultMonitorConfig returns the default configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: 15 * time.Minute,
		Timeout:  5 * time.Minute,
	}
}

// Monitor re-verifies the ledger in the background. A broken chain is
// logged at error level with the offending event and both hashes; the
// checker records the integrity gauge.
type Monitor struct {
	checker Checker
	logger  *zap.Logger
	config  MonitorConfig

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
	stats   Stats
}

// Stats represents monitor statistics
type Stats struct {
	Runs       int
	Violations int
	Failures   int
	LastRun    time.Time
	LastOK     bool

	// LastViolation is set when the most recent run found a broken chain
	LastViolation bool
	Started       bool
}

// NewMonitor creates a new Monitor instance
func NewMonitor(checker Checker, logger *zap.Logger, config MonitorConfig) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultMonitorConfig().Timeout
	}
	return &Monitor{
		checker: checker,
		logger:  logger,
		config:  config,
	}
}

// Start runs the monitor in a background goroutine until Stop
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("ledger monitor already started")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.started = true
	m.stats.Started = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Run(m.ctx)
	}()

	m.logger.Info("started ledger monitor", zap.Duration("interval", m.config.Interval))
	return nil
}

// Stop cancels the monitor and waits for an in-flight verification
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("ledger monitor not started")
	}
	m.started = false
	m.stats.Started = false
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("ledger monitor stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ledger monitor stop timeout after %v", timeout)
	}
}

// Run verifies immediately and then on every interval until ctx is done.
// It returns nil on cancellation; violations never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single verification and reports whether the chain is intact
func (m *Monitor) RunOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	result, err := m.checker.CheckAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Runs++
	m.stats.LastRun = time.Now().UTC()
	m.stats.LastOK = err == nil
	m.stats.LastViolation = services.IsLedgerIntegrityViolation(err)

	switch {
	case err == nil:
		m.logger.Debug("ledger verified", zap.Int("checked", result.Checked), zap.Int64("head_id", result.ToID))
		return true
	case services.IsLedgerIntegrityViolation(err):
		m.stats.Violations++
		details := services.GetErrorDetails(err)
		m.logger.Error("ledger integrity violation",
			zap.Any("event_id", details["event_id"]),
			zap.Any("expected_hash", details["expected"]),
			zap.Any("actual_hash", details["actual"]),
			zap.Error(err))
	default:
		m.stats.Failures++
		if ctx.Err() == nil {
			m.logger.Warn("ledger verification failed", zap.Error(err))
		}
	}
	return false
}

// GetStats returns statistics about the monitor
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
