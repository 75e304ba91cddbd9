// Package updater implements the periodic polling fallback (component G)
// that covers dropped multicasts and cold-start catch-up.
package updater

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scanner abstracts the durable store's Update so the updater can be
// tested without a real SQLite file.
type Scanner interface {
	Update(ctx context.Context, lookup func(nameID string) (uint32, bool)) ([]uint32, error)
}

// Handler is invoked once per id returned by a scan tick.
type Handler func(id uint32)

// Updater runs one background goroutine per engine on a cooperative
// sleep(interval) loop: one background thread per engine, single loop
// using time.NewTicker in place of sleep(interval).
type Updater struct {
	scanner  Scanner
	lookup   func(nameID string) (uint32, bool)
	handler  Handler
	interval time.Duration
	logger   *slog.Logger

	stop   atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Updater. It does not start the background loop; call
// Start.
func New(scanner Scanner, lookup func(nameID string) (uint32, bool), handler Handler, interval time.Duration, logger *slog.Logger) *Updater {
	return &Updater{
		scanner:  scanner,
		lookup:   lookup,
		handler:  handler,
		interval: interval,
		logger:   logger.With("component", "periodic_updater"),
	}
}

// Start launches the polling loop. Safe to call once.
func (u *Updater) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.wg.Add(1)
	go u.loop(ctx)
}

func (u *Updater) loop(ctx context.Context) {
	defer u.wg.Done()
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if u.stop.Load() {
				return
			}
			u.tick(ctx)
		}
	}
}

func (u *Updater) tick(ctx context.Context) {
	ids, err := u.scanner.Update(ctx, u.lookup)
	if err != nil {
		u.logger.Warn("updater: scan failed", "error", err)
		return
	}
	for _, id := range ids {
		u.handler(id)
	}
}

// Stop sets the cooperative stop flag and joins the background goroutine:
// an atomic stop flag, checked between ticks; Stop sets the flag and joins
// the thread.
func (u *Updater) Stop() {
	u.stop.Store(true)
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
}
