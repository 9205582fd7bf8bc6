package autosave

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gencodedoc/internal/config"
	"gencodedoc/internal/gcd"
)

// Autosave modes.
const (
	ModeTimer  = "timer"
	ModeDiff   = "diff"
	ModeHybrid = "hybrid"
)

// hybridTick is how often the hybrid worker wakes to evaluate its
// interval and threshold conditions.
const hybridTick = 60 * time.Second

// Controller drives automatic snapshot creation for one project under a
// timer, diff-threshold, or hybrid policy, and applies retention after
// every successful trigger.
type Controller struct {
	manager   *gcd.VersionManager
	cfg       config.AutosaveConfig
	observer  Observer
	logger    gcd.Logger
	clock     gcd.Clock
	mode      string
	dirty     atomic.Bool
	lastSave  atomic.Int64 // unix seconds of the last successful trigger
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	running   atomic.Bool
}

// NewController creates a Controller. mode overrides cfg.Mode when
// non-empty. The observer may be nil for timer mode, which never watches
// the filesystem.
func NewController(manager *gcd.VersionManager, cfg config.AutosaveConfig, mode string, observer Observer, logger gcd.Logger, clock gcd.Clock) (*Controller, error) {
	if mode == "" {
		mode = cfg.Mode
	}
	switch mode {
	case ModeTimer, ModeDiff, ModeHybrid:
	default:
		return nil, fmt.Errorf("%w: unknown autosave mode %q", gcd.ErrInvalid, mode)
	}

	return &Controller{
		manager:  manager,
		cfg:      cfg,
		observer: observer,
		logger:   logger,
		clock:    clock,
		mode:     mode,
		done:     make(chan struct{}),
	}, nil
}

// Mode returns the active autosave mode.
func (c *Controller) Mode() string { return c.mode }

// Running reports whether the controller has been started and not yet
// stopped.
func (c *Controller) Running() bool { return c.running.Load() }

// Start launches the worker (and the filesystem observer for the modes
// that use one). projectRoot is the directory watched for changes.
func (c *Controller) Start(projectRoot string) error {
	var err error
	c.startOnce.Do(func() {
		c.lastSave.Store(c.clock.Now().Unix())

		if c.mode != ModeTimer {
			if c.observer == nil {
				err = fmt.Errorf("%w: mode %q requires a filesystem observer", gcd.ErrInvalid, c.mode)
				return
			}
			if err = c.observer.Start(projectRoot, func() { c.dirty.Store(true) }); err != nil {
				err = fmt.Errorf("starting observer: %w", err)
				return
			}
		}

		c.running.Store(true)
		c.wg.Add(1)
		switch c.mode {
		case ModeTimer:
			go c.runTimer()
		case ModeDiff:
			go c.runDiffThreshold()
		case ModeHybrid:
			go c.runHybrid()
		}
		c.logger.Info("autosave started", "mode", c.mode)
	})
	return err
}

// Stop terminates the worker and the observer and waits for both. An
// in-flight snapshot finishes; the create transaction is never
// interrupted mid-write.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		// Timer mode never starts the observer, and a failed Start leaves it
		// unstarted; only a started observer is stopped.
		if c.observer != nil && c.mode != ModeTimer && c.running.Load() {
			if err := c.observer.Stop(); err != nil {
				c.logger.Warn("stopping observer", "error", err)
			}
		}
		c.wg.Wait()
		c.running.Store(false)
		c.logger.Info("autosave stopped", "mode", c.mode)
	})
}

func (c *Controller) runTimer() {
	defer c.wg.Done()

	interval := time.Duration(c.cfg.Timer.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.trigger("timer")
		}
	}
}

func (c *Controller) runDiffThreshold() {
	defer c.wg.Done()

	interval := time.Duration(c.cfg.Diff.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.dirty.Load() {
				continue
			}
			significance, err := c.currentSignificance()
			if err != nil {
				c.logger.Error("autosave check failed", "error", err)
				continue
			}
			if significance >= c.cfg.Diff.Threshold {
				if c.trigger("diff_threshold") {
					c.dirty.Store(false)
				}
			}
		}
	}
}

func (c *Controller) runHybrid() {
	defer c.wg.Done()

	ticker := time.NewTicker(hybridTick)
	defer ticker.Stop()

	minInterval := time.Duration(c.cfg.Hybrid.MinIntervalSeconds) * time.Second
	maxInterval := time.Duration(c.cfg.Hybrid.MaxIntervalSeconds) * time.Second

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			elapsed := c.clock.Now().Sub(time.Unix(c.lastSave.Load(), 0))

			if maxInterval > 0 && elapsed >= maxInterval {
				c.trigger("hybrid_max_interval")
				continue
			}
			if elapsed < minInterval || !c.dirty.Load() {
				continue
			}
			significance, err := c.currentSignificance()
			if err != nil {
				c.logger.Error("autosave check failed", "error", err)
				continue
			}
			if significance >= c.cfg.Hybrid.Threshold {
				if c.trigger("hybrid_threshold") {
					c.dirty.Store(false)
				}
			}
		}
	}
}

// currentSignificance diffs the latest snapshot against the working
// tree. With no snapshot yet, any change is fully significant.
func (c *Controller) currentSignificance() (float64, error) {
	if err := c.manager.RecordAutosaveCheck(); err != nil {
		c.logger.Warn("recording autosave check", "error", err)
	}

	latest, err := c.manager.ListSnapshots(1, true)
	if err != nil {
		return 0, err
	}
	if len(latest) == 0 {
		return 1, nil
	}

	diff, err := c.manager.Diff(fmt.Sprintf("%d", latest[0].ID), gcd.CurrentRef, nil)
	if err != nil {
		return 0, err
	}
	return diff.Significance, nil
}

// trigger creates one autosave snapshot and applies retention. Errors
// are logged and swallowed so the loop keeps running. Returns whether a
// snapshot was created.
func (c *Controller) trigger(triggerType string) bool {
	snap, err := c.manager.CreateSnapshot(gcd.CreateOptions{
		IsAutosave:  true,
		TriggerType: triggerType,
	})
	if err != nil {
		// An unchanged tree is routine for a timer firing; anything
		// else is worth a log line. Either way the loop continues.
		if errors.Is(err, gcd.ErrNoChanges) {
			c.logger.Debug("autosave skipped, no changes", "trigger", triggerType)
		} else {
			c.logger.Error("autosave failed", "trigger", triggerType, "error", err)
		}
		return false
	}

	c.lastSave.Store(c.clock.Now().Unix())
	c.logger.Info("autosave snapshot created", "id", snap.Metadata.ID, "trigger", triggerType)

	if err := c.manager.RecordAutosaveSave(snap.Metadata.ID, snap.Metadata.FilesCount); err != nil {
		c.logger.Warn("recording autosave state", "error", err)
	}

	c.applyRetention()
	return true
}

// applyRetention bounds autosave count and age. Manual snapshots are
// never touched.
func (c *Controller) applyRetention() {
	if keep := c.cfg.Retention.MaxAutosaves; keep > 0 {
		if n, err := c.manager.CleanupOldAutosaves(keep); err != nil {
			c.logger.Error("autosave retention failed", "error", err)
		} else if n > 0 {
			c.logger.Debug("pruned old autosaves", "deleted", n)
		}
	}
	if days := c.cfg.Retention.DeleteAfterDays; days > 0 {
		if n, err := c.manager.CleanupExpiredAutosaves(days); err != nil {
			c.logger.Error("autosave expiry failed", "error", err)
		} else if n > 0 {
			c.logger.Debug("pruned expired autosaves", "deleted", n)
		}
	}
}
