// Copyright 2025 Certen Protocol
//
// Retention cleanup: a background task that deletes checkpoint index rows
// older than the configured retention window, per spec.md section 4.6's
// "optional retention-based cleanup" and SPEC_FULL.md section 14's decision
// to default CHECKPOINT_RETENTION to 30 days. Timer/stop-channel shape
// follows pkg/batch/scheduler.go's Start/Stop/Pause/Resume pattern.

package checkpoint

import (
	"context"
	"log"
	"sync"
	"time"
)

// CleanupState mirrors pkg/batch/scheduler.go's SchedulerState.
type CleanupState string

const (
	CleanupStateStopped CleanupState = "stopped"
	CleanupStateRunning CleanupState = "running"
	CleanupStatePaused  CleanupState = "paused"
)

// CleanupScheduler periodically purges checkpoints outside the retention
// window.
type CleanupScheduler struct {
	mu sync.RWMutex

	repo retentionRepository

	checkInterval time.Duration
	retention     time.Duration

	state  CleanupState
	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// retentionRepository is the subset of storexec.CheckpointRepository the
// cleanup scheduler needs.
type retentionRepository interface {
	DeleteBefore(ctx context.Context, retentionSeconds int64) (int64, error)
}

// CleanupConfig configures a CleanupScheduler.
type CleanupConfig struct {
	CheckInterval time.Duration // how often to sweep, default 1 hour
	Retention     time.Duration // how long checkpoints are kept, default 30 days
	Logger        *log.Logger
}

// NewCleanupScheduler constructs a CleanupScheduler over repo.
func NewCleanupScheduler(repo retentionRepository, cfg CleanupConfig) *CleanupScheduler {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[CheckpointCleanup] ", log.LstdFlags)
	}
	return &CleanupScheduler{
		repo:          repo,
		checkInterval: cfg.CheckInterval,
		retention:     cfg.Retention,
		state:         CleanupStateStopped,
		logger:        cfg.Logger,
	}
}

// Start begins the background sweep loop.
func (c *CleanupScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CleanupStateRunning {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.state = CleanupStateRunning
	go c.run(ctx)
	c.logger.Printf("cleanup scheduler started (check=%s, retention=%s)", c.checkInterval, c.retention)
}

// Stop halts the sweep loop and waits for it to exit.
func (c *CleanupScheduler) Stop() {
	c.mu.Lock()
	if c.state != CleanupStateRunning && c.state != CleanupStatePaused {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.state = CleanupStateStopped
	c.mu.Unlock()

	<-c.doneCh
	c.logger.Println("cleanup scheduler stopped")
}

// Pause suspends sweeps without stopping the goroutine.
func (c *CleanupScheduler) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CleanupStateRunning {
		c.state = CleanupStatePaused
	}
}

// Resume un-suspends a paused scheduler.
func (c *CleanupScheduler) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CleanupStatePaused {
		c.state = CleanupStateRunning
	}
}

// State returns the scheduler's current state.
func (c *CleanupScheduler) State() CleanupState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *CleanupScheduler) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			state := c.state
			c.mu.RUnlock()
			if state != CleanupStateRunning {
				continue
			}
			c.sweep(ctx)
		}
	}
}

func (c *CleanupScheduler) sweep(ctx context.Context) {
	retentionSeconds := int64(c.retention / time.Second)
	deleted, err := c.repo.DeleteBefore(ctx, retentionSeconds)
	if err != nil {
		c.logger.Printf("retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		c.logger.Printf("retention sweep deleted %d checkpoint(s) older than %s", deleted, c.retention)
	}
}
