// Package scheduler runs the time-driven jobs of the booking engine: the
// timeout sweep and the quota counter reconciliation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/servemate/service-booking/internal/application"
	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/lease"
	"github.com/servemate/service-booking/internal/metrics"
	"github.com/servemate/service-booking/internal/store"
	"go.uber.org/zap"
)

const (
	sweepLeaseName = "timeout-sweep"

	kindInaction = "inaction"
	kindProposal = "proposal"

	outcomeFired   = "fired"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Transitioner is the part of the booking service the sweep fires into.
type Transitioner interface {
	TimeoutNoResponse(ctx context.Context, bookingID uuid.UUID) (*application.BookingDTO, error)
	ExpireProposal(ctx context.Context, proposalID uuid.UUID) (*application.BookingDTO, error)
}

// SweepConfig holds the sweep cadence and thresholds.
type SweepConfig struct {
	Interval          time.Duration
	InactionThreshold time.Duration
	ProposalTTL       time.Duration
	BatchSize         int
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	TimedOut int `json:"timed_out"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// TimeoutScheduler periodically auto-cancels unanswered requests and expires
// stale reschedule proposals.
type TimeoutScheduler struct {
	uow     store.UnitOfWork
	target  Transitioner
	lease   lease.Lease
	clock   clock.Clock
	metrics *metrics.Recorder
	logger  *zap.Logger
	cfg     SweepConfig
}

// NewTimeoutScheduler creates a TimeoutScheduler. A nil lease always grants.
func NewTimeoutScheduler(
	uow store.UnitOfWork,
	target Transitioner,
	l lease.Lease,
	clk clock.Clock,
	recorder *metrics.Recorder,
	logger *zap.Logger,
	cfg SweepConfig,
) *TimeoutScheduler {
	if l == nil {
		l = lease.Always{}
	}
	return &TimeoutScheduler{
		uow:     uow,
		target:  target,
		lease:   l,
		clock:   clk,
		metrics: recorder,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *TimeoutScheduler) Run(ctx context.Context) {
	s.logger.Info("timeout scheduler started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timeout scheduler stopped")
			return
		case <-s.clock.After(s.cfg.Interval):
		}

		ok, err := s.lease.Acquire(ctx, sweepLeaseName, s.cfg.Interval)
		if err != nil {
			s.logger.Warn("failed to acquire sweep lease", zap.Error(err))
			continue
		}
		if !ok {
			s.logger.Debug("sweep lease held elsewhere")
			continue
		}
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("timeout sweep failed", zap.Error(err))
		}
	}
}

// SweepOnce scans for expired waiting periods and fires the matching
// transitions. Each candidate is handled independently: a stale candidate is
// skipped and a failing one does not stop the rest.
func (s *TimeoutScheduler) SweepOnce(ctx context.Context) (SweepReport, error) {
	now := s.clock.Now().UTC()
	var bookingIDs, proposalIDs []uuid.UUID
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		bookingIDs, err = tx.Bookings().FindPendingSince(ctx, now.Add(-s.cfg.InactionThreshold), s.cfg.BatchSize)
		if err != nil {
			return err
		}
		proposalIDs, err = tx.Proposals().FindPendingCreatedBefore(ctx, now.Add(-s.cfg.ProposalTTL), s.cfg.BatchSize)
		return err
	})
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, id := range bookingIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, err := s.target.TimeoutNoResponse(ctx, id)
		if s.record(&report, kindInaction, id, err) {
			report.TimedOut++
		}
	}
	for _, id := range proposalIDs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, err := s.target.ExpireProposal(ctx, id)
		if s.record(&report, kindProposal, id, err) {
			report.Expired++
		}
	}

	if report.TimedOut+report.Expired+report.Failed > 0 {
		s.logger.Info("timeout sweep finished",
			zap.Int("timed_out", report.TimedOut),
			zap.Int("expired", report.Expired),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// record classifies one candidate outcome and reports whether it fired.
func (s *TimeoutScheduler) record(report *SweepReport, kind string, id uuid.UUID, err error) bool {
	switch {
	case err == nil:
		s.metrics.SweepOutcome(kind, outcomeFired)
		return true
	case errors.Is(err, domain.ErrSchedulerSkip), domain.IsInvalidTransition(err), domain.IsNotFound(err):
		report.Skipped++
		s.metrics.SweepOutcome(kind, outcomeSkipped)
		s.logger.Debug("sweep candidate skipped",
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.Error(err),
		)
	default:
		report.Failed++
		s.metrics.SweepOutcome(kind, outcomeFailed)
		s.logger.Warn("sweep candidate failed",
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.Error(err),
		)
	}
	return false
}
