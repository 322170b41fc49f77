package app

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes expired records and reports how many went.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeTask is one named Purger.
type PurgeTask struct {
	Name   string
	Purger Purger
}

// Housekeeping periodically removes expired records so that abandoned
// password resets do not pile up.
type Housekeeping struct {
	Logger   *slog.Logger
	Interval time.Duration
	Tasks    []PurgeTask

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping creates the worker. An interval of 0 or less means one
// hour.
func NewHousekeeping(logger *slog.Logger, interval time.Duration, tasks ...PurgeTask) *Housekeeping {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Housekeeping{
		Logger:   logger,
		Interval: interval,
		Tasks:    tasks,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a cleanup right away and then every Interval until Stop.
func (h *Housekeeping) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval, "tasks", len(h.Tasks))
}

// Stop blocks until an in-progress cleanup has finished.
func (h *Housekeeping) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.cleanup()

	for {
		select {
		case <-ticker.C:
			h.cleanup()
		case <-h.stopCh:
			return
		}
	}
}

// cleanup runs every task; one failing task does not stop the others.
func (h *Housekeeping) cleanup() {
	ctx := context.Background()

	var successful int
	for _, task := range h.Tasks {
		n, err := task.Purger.PurgeExpired(ctx)
		if err != nil {
			h.Logger.Error("housekeeping task failed", "task", task.Name, "error", err)
			continue
		}
		h.Logger.Debug("housekeeping task done", "task", task.Name, "deleted", n)
		successful++
	}

	h.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
