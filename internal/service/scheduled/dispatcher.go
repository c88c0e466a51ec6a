package scheduled

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Promoter turns a due scheduled entry into a live message.
// core.Engine implements it.
type Promoter interface {
	Promote(ctx context.Context, sm *store.ScheduledMessage) (*store.Message, error)
}

// Dispatcher periodically promotes due scheduled messages.
type Dispatcher struct {
	store    store.ScheduledStore
	promoter Promoter
	interval time.Duration
	batch    int
	log      *zerolog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Non-positive interval or batch fall back to defaults.
func NewDispatcher(st store.ScheduledStore, promoter Promoter, interval time.Duration, batch int, logger *zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		store:    st,
		promoter: promoter,
		interval: interval,
		batch:    batch,
		log:      logger,
		now:      time.Now,
	}
}

// Run scans for due messages on every tick until ctx is cancelled.
// The first scan happens right away so entries that fell due while the
// process was down are not delayed by a full interval.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Dur("interval", d.interval).Int("batch", d.batch).Msg("scheduled dispatcher started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.tick(ctx)

		select {
		case <-ctx.Done():
			d.log.Info().Msg("scheduled dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	// Drain full batches so a backlog does not wait for later ticks.
	for ctx.Err() == nil {
		promoted, err := d.RunOnce(ctx, d.now())
		if err != nil {
			d.log.Error().Err(err).Msg("scheduled dispatch failed")
			return
		}
		if promoted < d.batch {
			return
		}
	}
}

// RunOnce promotes up to one batch of entries due at now and returns how many
// were promoted. Entries finalized concurrently are skipped. Entries that fail
// with a storage error stay pending for the next run.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := d.store.DueScheduled(ctx, now, d.batch)
	if err != nil {
		return 0, fmt.Errorf("load due scheduled messages: %w", err)
	}

	promoted := 0
	var errs []error
	for _, sm := range due {
		msg, err := d.promoter.Promote(ctx, sm)
		switch {
		case err == nil:
			promoted++
			d.log.Debug().
				Int64("scheduled_id", sm.ID).
				Int64("message_id", msg.ID).
				Int64("user_id", sm.SenderID).
				Msg("scheduled message promoted")
		case errors.Is(err, core.ErrAlreadyFinalized):
			d.log.Debug().Int64("scheduled_id", sm.ID).Msg("scheduled message finalized concurrently, skipping")
		default:
			d.log.Error().Err(err).Int64("scheduled_id", sm.ID).Msg("failed to promote scheduled message")
			errs = append(errs, err)
		}
	}

	return promoted, errors.Join(errs...)
}
