package scheduler

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/metrics"
	"github.com/servemate/service-booking/internal/store"
	"go.uber.org/zap"
)

// Drift is one counter whose stored value disagreed with a recount.
type Drift struct {
	Key      quota.Key `json:"key"`
	Stored   int64     `json:"stored"`
	Expected int64     `json:"expected"`
}

// Reconciler recomputes quota counters from booking and listing rows and
// repairs any that drifted.
type Reconciler struct {
	uow      store.UnitOfWork
	clock    clock.Clock
	metrics  *metrics.Recorder
	logger   *zap.Logger
	interval time.Duration
}

// NewReconciler creates a Reconciler.
func NewReconciler(uow store.UnitOfWork, clk clock.Clock, recorder *metrics.Recorder, logger *zap.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		uow:      uow,
		clock:    clk,
		metrics:  recorder,
		logger:   logger,
		interval: interval,
	}
}

// Run reconciles every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.interval):
		}
		if _, err := r.ReconcileOnce(ctx); err != nil {
			r.logger.Error("counter reconciliation failed", zap.Error(err))
		}
	}
}

// ReconcileOnce compares stored counters against a recount in one
// transaction and overwrites the ones that differ. Counter writers are
// locked out first so both reads see the same committed state.
func (r *Reconciler) ReconcileOnce(ctx context.Context) ([]Drift, error) {
	var drift []Drift
	err := r.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drift = nil
		if err := tx.Counters().Lock(ctx); err != nil {
			return err
		}
		now := r.clock.Now().UTC()
		expected, err := store.Recount(ctx, tx, now)
		if err != nil {
			return err
		}
		stored, err := tx.Counters().All(ctx)
		if err != nil {
			return err
		}

		for k, v := range stored {
			if k.Stale(now) {
				continue
			}
			if expected[k] != v {
				drift = append(drift, Drift{Key: k, Stored: v, Expected: expected[k]})
			}
		}
		for k, v := range expected {
			if _, ok := stored[k]; !ok {
				drift = append(drift, Drift{Key: k, Expected: v})
			}
		}
		for _, d := range drift {
			if err := tx.Counters().Set(ctx, d.Key, d.Expected); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range drift {
		r.logger.Warn("quota counter drift repaired",
			zap.String("counter", d.Key.String()),
			zap.Int64("stored", d.Stored),
			zap.Int64("expected", d.Expected),
		)
	}
	r.metrics.CounterDrift(len(drift))
	return drift, nil
}
