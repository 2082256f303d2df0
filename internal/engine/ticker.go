package engine

import (
	"context"
	"time"

	"github.com/MRamiBalles/zpvip/internal/events"
	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

// Ticker is the engine's own clock for hosts that do not forward frames.
// It does NOT know about players, only that a scheduling interval passed.
type Ticker struct {
	rate       time.Duration
	post       func(events.GameEvent) error
	logger     *logger.Logger
	tickNumber int64
	stopChan   chan struct{}
}

// NewTicker creates a ticker posting TICK events through post.
func NewTicker(rate time.Duration, post func(events.GameEvent) error, log *logger.Logger) *Ticker {
	return &Ticker{
		rate:     rate,
		post:     post,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the clock. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Infof("Engine ticker started at %s per tick.", t.rate)

	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Engine ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Engine ticker stopped manually.")
			return
		case <-ticker.C:
			if err := t.tick(); err != nil {
				t.logger.Info("Engine ticker stopped: " + err.Error())
				return
			}
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}

func (t *Ticker) tick() error {
	t.tickNumber++
	return t.post(events.New(events.EventTypeTick, events.TickPayload{Number: t.tickNumber}))
}
