package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/servemate/service-booking/internal/domain"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/conflict"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/metrics"
	"github.com/servemate/service-booking/internal/store"
	"go.uber.org/zap"
)

const (
	schedulerActorName = "timeout-scheduler"
	resolverActorName  = "conflict-resolver"
)

// Options tunes the time-driven rules of the BookingService.
type Options struct {
	InactionThreshold time.Duration
	ProposalTTL       time.Duration
	LocalDisplay      DisplayFunc
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		InactionThreshold: 3 * time.Hour,
		ProposalTTL:       24 * time.Hour,
		LocalDisplay:      UTCDisplay,
	}
}

// BookingService is the application service orchestrating booking use cases.
// Every command runs as one unit of work: quota admission, the status
// transition, counter updates and any displacement commit or roll back
// together. Audit records are emitted only after commit.
type BookingService struct {
	uow      store.UnitOfWork
	ledger   *quota.Ledger
	resolver *conflict.Resolver
	audit    AuditSink
	clock    clock.Clock
	metrics  *metrics.Recorder
	logger   *zap.Logger
	opts     Options
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	uow store.UnitOfWork,
	ledger *quota.Ledger,
	resolver *conflict.Resolver,
	audit AuditSink,
	clk clock.Clock,
	recorder *metrics.Recorder,
	logger *zap.Logger,
	opts Options,
) *BookingService {
	if opts.LocalDisplay == nil {
		opts.LocalDisplay = UTCDisplay
	}
	if opts.InactionThreshold <= 0 {
		opts.InactionThreshold = DefaultOptions().InactionThreshold
	}
	if opts.ProposalTTL <= 0 {
		opts.ProposalTTL = DefaultOptions().ProposalTTL
	}
	return &BookingService{
		uow:      uow,
		ledger:   ledger,
		resolver: resolver,
		audit:    audit,
		clock:    clk,
		metrics:  recorder,
		logger:   logger,
		opts:     opts,
	}
}

// Options returns the effective options.
func (s *BookingService) Options() Options { return s.opts }

// effects collects what a unit of work did so it can be reported after
// commit. It is reset on every attempt.
type effects struct {
	audits      []AuditRecord
	transitions []bookingDomain.Transition
	displaced   int
}

func (e *effects) transition(actor bookingDomain.Actor, bk *bookingDomain.Booking, tr bookingDomain.Transition, display DisplayFunc) {
	e.transitions = append(e.transitions, tr)
	e.audits = append(e.audits, AuditRecord{
		ActorID:        actor.ID.String(),
		ActorName:      actor.Name,
		ActorRole:      string(actor.Role),
		Category:       AuditCategoryBooking,
		Action:         string(tr.Trigger),
		EntityType:     EntityBooking,
		EntityID:       bk.ID().String(),
		Detail:         fmt.Sprintf("%s -> %s at %s", tr.From, tr.To, display(tr.At)),
		PreviousStatus: string(tr.From),
		NewStatus:      string(tr.To),
		Reason:         tr.Reason,
		OccurredAt:     tr.At,
	})
}

// execute runs fn in a transaction. A version conflict retries the whole
// command once against fresh state before surfacing a ConflictError.
func (s *BookingService) execute(ctx context.Context, command string, fn func(ctx context.Context, tx store.Tx, fx *effects) error) error {
	var fx *effects
	for attempt := 1; ; attempt++ {
		fx = &effects{}
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return fn(ctx, tx, fx)
		})
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			if attempt == 1 {
				s.metrics.Retry()
				s.logger.Info("version conflict, retrying command", zap.String("command", command))
				continue
			}
			return domain.NewConflictError(fmt.Sprintf("%s lost a concurrent update, try again", command))
		}
		var qe *domain.QuotaExceededError
		if errors.As(err, &qe) {
			s.metrics.QuotaDenied(qe.Limit)
		}
		return err
	}

	for _, tr := range fx.transitions {
		s.metrics.Transition(string(tr.Trigger), string(tr.From), string(tr.To))
	}
	s.metrics.Displaced(fx.displaced)
	for _, rec := range fx.audits {
		if err := s.audit.Record(ctx, rec); err != nil {
			s.logger.Error("failed to record audit event",
				zap.String("action", rec.Action),
				zap.String("entity_id", rec.EntityID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// persist admits and stores a transition already applied to bk in memory.
func (s *BookingService) persist(ctx context.Context, tx store.Tx, bk *bookingDomain.Booking, before []quota.Key, prevVersion int64, now time.Time) error {
	after := quota.BookingKeys(bk)
	if err := s.ledger.CheckAdmission(ctx, tx.Counters(), before, after, now); err != nil {
		return err
	}
	bk.IncrementVersion(now)
	if err := tx.Bookings().Update(ctx, bk, prevVersion); err != nil {
		return err
	}
	return s.ledger.Apply(ctx, tx.Counters(), before, after)
}

// transitionFunc applies one transition to a loaded booking.
type transitionFunc func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error)

// runTransition loads, authorizes, transitions and persists one booking.
func (s *BookingService) runTransition(
	ctx context.Context,
	command string,
	bookingID uuid.UUID,
	actor bookingDomain.Actor,
	apply transitionFunc,
) (*BookingDTO, error) {
	var result BookingDTO
	err := s.execute(ctx, command, func(ctx context.Context, tx store.Tx, fx *effects) error {
		bk, err := tx.Bookings().FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorize(bk, actor); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		before := quota.BookingKeys(bk)
		prev := bk.Version()
		tr, err := apply(bk, now)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, tx, bk, before, prev, now); err != nil {
			return err
		}
		fx.transition(actor, bk, tr, s.opts.LocalDisplay)
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// authorize checks the actor is a party to the booking in the right role.
func authorize(bk *bookingDomain.Booking, actor bookingDomain.Actor) error {
	switch actor.Role {
	case bookingDomain.ActorSystem:
		return nil
	case bookingDomain.ActorUser:
		if bk.UserID() == actor.ID {
			return nil
		}
	case bookingDomain.ActorProvider:
		if bk.ProviderID() == actor.ID {
			return nil
		}
	}
	return domain.NewForbiddenError("booking does not belong to this " + string(actor.Role))
}

func requireRole(actor bookingDomain.Actor, role bookingDomain.ActorRole) error {
	if actor.Role != role {
		return domain.NewForbiddenError("only a " + string(role) + " can perform this action")
	}
	return nil
}

// CreateBooking files a new request against an active service listing.
func (s *BookingService) CreateBooking(ctx context.Context, user bookingDomain.Actor, req CreateBookingRequest) (*BookingDTO, error) {
	if err := requireRole(user, bookingDomain.ActorUser); err != nil {
		return nil, err
	}
	window, err := bookingDomain.NewTimeWindow(req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, err
	}

	var result BookingDTO
	err = s.execute(ctx, "create_booking", func(ctx context.Context, tx store.Tx, fx *effects) error {
		svc, err := tx.Listings().FindByIDForUpdate(ctx, req.ServiceID)
		if err != nil {
			return err
		}
		if !svc.Active() {
			return domain.NewValidationError("service is not accepting bookings")
		}

		now := s.clock.Now().UTC()
		bk, err := bookingDomain.NewBooking(
			svc.ServiceID(),
			user.ID,
			svc.ProviderID(),
			window,
			req.Description,
			bookingDomain.Location{Area: req.AddressArea, Latitude: req.Latitude, Longitude: req.Longitude},
			now,
		)
		if err != nil {
			return err
		}

		after := quota.BookingKeys(bk)
		if err := s.ledger.CheckAdmission(ctx, tx.Counters(), nil, after, now); err != nil {
			return err
		}
		if err := tx.Bookings().Save(ctx, bk); err != nil {
			return fmt.Errorf("failed to save booking: %w", err)
		}
		if err := s.ledger.Apply(ctx, tx.Counters(), nil, after); err != nil {
			return err
		}

		fx.transition(user, bk, bookingDomain.Transition{
			Trigger: bookingDomain.TriggerCreate,
			To:      bk.Status(),
			At:      now,
		}, s.opts.LocalDisplay)
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking requested",
		zap.String("booking_id", result.ID.String()),
		zap.String("provider_id", result.ProviderID.String()),
	)
	return &result, nil
}

// AcceptBooking records the provider's acceptance and displaces competing
// pending requests of that provider in the same unit of work.
func (s *BookingService) AcceptBooking(ctx context.Context, provider bookingDomain.Actor, bookingID uuid.UUID, req AcceptBookingRequest) (*BookingDTO, error) {
	if err := requireRole(provider, bookingDomain.ActorProvider); err != nil {
		return nil, err
	}

	var result BookingDTO
	err := s.execute(ctx, "accept_booking", func(ctx context.Context, tx store.Tx, fx *effects) error {
		bk, err := tx.Bookings().FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorize(bk, provider); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		before := quota.BookingKeys(bk)
		prev := bk.Version()
		tr, err := bk.Accept(req.PriceCents, req.Notes, now)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, tx, bk, before, prev, now); err != nil {
			return err
		}
		fx.transition(provider, bk, tr, s.opts.LocalDisplay)

		displaced, err := s.displaceCompeting(ctx, tx, bk, now)
		if err != nil {
			return err
		}
		if err := s.storeDisplacements(ctx, tx, fx, displaced, now); err != nil {
			return err
		}

		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// displaceCompeting picks the requests an acceptance pushes out of provider
// review: the overlapping ones, or every pending one once the provider has
// no accepted-booking capacity left.
func (s *BookingService) displaceCompeting(ctx context.Context, tx store.Tx, winner *bookingDomain.Booking, now time.Time) ([]conflict.Displacement, error) {
	full, err := s.ledger.ProviderFull(ctx, tx.Counters(), winner.ProviderID())
	if err != nil {
		return nil, err
	}
	if full {
		candidates, err := tx.Bookings().FindPendingByProvider(ctx, winner.ProviderID())
		if err != nil {
			return nil, fmt.Errorf("failed to query competing requests: %w", err)
		}
		return s.resolver.DisplaceForCapacity(winner, candidates, now)
	}
	candidates, err := tx.Bookings().FindPendingOverlapping(ctx, winner.ProviderID(), winner.Window(), winner.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to query competing requests: %w", err)
	}
	return s.resolver.DisplaceForAcceptance(winner, candidates, now)
}

func (s *BookingService) storeDisplacements(ctx context.Context, tx store.Tx, fx *effects, displaced []conflict.Displacement, now time.Time) error {
	actor := bookingDomain.SystemActor(resolverActorName)
	for _, d := range displaced {
		// LoseSlot has already run, so rebuild the pre-transition membership.
		before := quota.BookingKeys(bookingBefore(d))
		if err := s.persist(ctx, tx, d.Booking, before, d.PreviousVersion, now); err != nil {
			return fmt.Errorf("failed to displace booking %s: %w", d.Booking.ID(), err)
		}
		if err := tx.Proposals().Save(ctx, d.Proposal); err != nil {
			return fmt.Errorf("failed to save reschedule proposal: %w", err)
		}
		fx.transition(actor, d.Booking, d.Transition, s.opts.LocalDisplay)
		if slot := d.Proposal.Slot(); slot != nil {
			rec := &fx.audits[len(fx.audits)-1]
			rec.Detail += fmt.Sprintf("; proposed %s - %s", s.opts.LocalDisplay(slot.Start), s.opts.LocalDisplay(slot.End))
		}
	}
	fx.displaced += len(displaced)
	return nil
}

// bookingBefore reconstructs the displaced booking as it was before LoseSlot.
func bookingBefore(d conflict.Displacement) *bookingDomain.Booking {
	snap := d.Booking.Snapshot()
	snap.Status = d.Transition.From
	return bookingDomain.ReconstructBooking(snap)
}

// PayBooking records an externally confirmed payment.
func (s *BookingService) PayBooking(ctx context.Context, user bookingDomain.Actor, bookingID uuid.UUID, paymentRef string) (*BookingDTO, error) {
	if user.Role != bookingDomain.ActorSystem {
		if err := requireRole(user, bookingDomain.ActorUser); err != nil {
			return nil, err
		}
	}
	return s.runTransition(ctx, "pay_booking", bookingID, user, func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
		return bk.Pay(paymentRef, now)
	})
}

// StartJob marks a paid booking as in progress.
func (s *BookingService) StartJob(ctx context.Context, provider bookingDomain.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	if err := requireRole(provider, bookingDomain.ActorProvider); err != nil {
		return nil, err
	}
	return s.runTransition(ctx, "start_job", bookingID, provider, func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
		return bk.Start(now)
	})
}

// MarkJobDone records the provider finishing the job.
func (s *BookingService) MarkJobDone(ctx context.Context, provider bookingDomain.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	if err := requireRole(provider, bookingDomain.ActorProvider); err != nil {
		return nil, err
	}
	return s.runTransition(ctx, "mark_job_done", bookingID, provider, func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
		return bk.MarkDone(now)
	})
}

// ConfirmCompletion records the user confirming the finished job.
func (s *BookingService) ConfirmCompletion(ctx context.Context, user bookingDomain.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	if err := requireRole(user, bookingDomain.ActorUser); err != nil {
		return nil, err
	}
	return s.runTransition(ctx, "confirm_completion", bookingID, user, func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
		return bk.Confirm(now)
	})
}

// RaiseDispute moves an accepted booking into dispute.
func (s *BookingService) RaiseDispute(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID, reason string) (*BookingDTO, error) {
	return s.runTransition(ctx, "raise_dispute", bookingID, actor, func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
		return bk.RaiseDispute(reason, now)
	})
}

// CancelBooking cancels a non-terminal booking. Cancelling a booking that is
// waiting on a reschedule proposal also closes the proposal.
func (s *BookingService) CancelBooking(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID, reason string) (*BookingDTO, error) {
	var result BookingDTO
	err := s.execute(ctx, "cancel_booking", func(ctx context.Context, tx store.Tx, fx *effects) error {
		bk, err := tx.Bookings().FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorize(bk, actor); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		before := quota.BookingKeys(bk)
		prev := bk.Version()
		wasRescheduling := bk.Status() == bookingDomain.StatusNeedRescheduling

		tr, err := bk.Cancel(reason, actor.Role, now)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, tx, bk, before, prev, now); err != nil {
			return err
		}
		if wasRescheduling {
			if err := s.closeOpenProposal(ctx, tx, bk.ID(), now); err != nil {
				return err
			}
		}
		fx.transition(actor, bk, tr, s.opts.LocalDisplay)
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BookingService) closeOpenProposal(ctx context.Context, tx store.Tx, bookingID uuid.UUID, now time.Time) error {
	p, err := tx.Proposals().FindPendingByBooking(ctx, bookingID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	prev := p.Version()
	if err := p.Reject(now); err != nil {
		return err
	}
	p.IncrementVersion()
	return tx.Proposals().Update(ctx, p, prev)
}

// RespondToProposal records the user's answer to a reschedule proposal.
// Accepting re-enters provider review and is admitted like a new request.
func (s *BookingService) RespondToProposal(ctx context.Context, user bookingDomain.Actor, proposalID uuid.UUID, accept bool) (*BookingDTO, error) {
	if err := requireRole(user, bookingDomain.ActorUser); err != nil {
		return nil, err
	}

	var result BookingDTO
	err := s.execute(ctx, "respond_to_proposal", func(ctx context.Context, tx store.Tx, fx *effects) error {
		p, err := tx.Proposals().FindByIDForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		bk, err := tx.Bookings().FindByIDForUpdate(ctx, p.BookingID())
		if err != nil {
			return err
		}
		if err := authorize(bk, user); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		prevProposal := p.Version()
		before := quota.BookingKeys(bk)
		prev := bk.Version()

		var tr bookingDomain.Transition
		if accept {
			if err := p.Accept(now); err != nil {
				return err
			}
			tr, err = bk.ResumeFromProposal(p.Slot(), now)
		} else {
			if err := p.Reject(now); err != nil {
				return err
			}
			tr, err = bk.CloseAfterProposal(bookingDomain.TriggerProposalRejected, now)
		}
		if err != nil {
			return err
		}
		if err := s.persist(ctx, tx, bk, before, prev, now); err != nil {
			return err
		}
		p.IncrementVersion()
		if err := tx.Proposals().Update(ctx, p, prevProposal); err != nil {
			return err
		}
		fx.transition(user, bk, tr, s.opts.LocalDisplay)
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TimeoutNoResponse auto-cancels a booking left in provider review past the
// inaction threshold. A booking no longer eligible yields an error wrapping
// domain.ErrSchedulerSkip.
func (s *BookingService) TimeoutNoResponse(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	threshold := s.opts.InactionThreshold
	return s.runTransition(ctx, "timeout_no_response", bookingID, bookingDomain.SystemActor(schedulerActorName),
		func(bk *bookingDomain.Booking, now time.Time) (bookingDomain.Transition, error) {
			return bk.TimeoutNoResponse(threshold, now)
		})
}

// ExpireProposal closes an unanswered proposal past its TTL and cancels the
// displaced booking. A proposal no longer eligible yields an error wrapping
// domain.ErrSchedulerSkip.
func (s *BookingService) ExpireProposal(ctx context.Context, proposalID uuid.UUID) (*BookingDTO, error) {
	actor := bookingDomain.SystemActor(schedulerActorName)

	var result BookingDTO
	err := s.execute(ctx, "expire_proposal", func(ctx context.Context, tx store.Tx, fx *effects) error {
		p, err := tx.Proposals().FindByIDForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		prevProposal := p.Version()
		if err := p.Expire(s.opts.ProposalTTL, now); err != nil {
			return err
		}

		bk, err := tx.Bookings().FindByIDForUpdate(ctx, p.BookingID())
		if err != nil {
			return err
		}
		if bk.Status() != bookingDomain.StatusNeedRescheduling {
			return fmt.Errorf("%w: booking %s is %s", domain.ErrSchedulerSkip, bk.ID(), bk.Status())
		}
		before := quota.BookingKeys(bk)
		prev := bk.Version()
		tr, err := bk.CloseAfterProposal(bookingDomain.TriggerProposalExpired, now)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, tx, bk, before, prev, now); err != nil {
			return err
		}
		p.IncrementVersion()
		if err := tx.Proposals().Update(ctx, p, prevProposal); err != nil {
			return err
		}
		fx.transition(actor, bk, tr, s.opts.LocalDisplay)
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ActivateService opens a provider's listing for new requests, admitted
// against the provider's active-service limit.
func (s *BookingService) ActivateService(ctx context.Context, provider bookingDomain.Actor, serviceID uuid.UUID) (*ListingDTO, error) {
	if err := requireRole(provider, bookingDomain.ActorProvider); err != nil {
		return nil, err
	}

	var result ListingDTO
	err := s.execute(ctx, "activate_service", func(ctx context.Context, tx store.Tx, fx *effects) error {
		now := s.clock.Now().UTC()
		svc, err := s.loadListing(ctx, tx, serviceID, provider.ID, now)
		if err != nil {
			return err
		}
		prev := svc.Version()
		before := quota.ListingKeys(svc.ProviderID(), svc.Active())
		if !svc.SetActive(true, now) {
			result = toListingDTO(svc)
			return nil
		}
		after := quota.ListingKeys(svc.ProviderID(), svc.Active())
		if err := s.ledger.CheckAdmission(ctx, tx.Counters(), before, after, now); err != nil {
			return err
		}
		if err := tx.Listings().Upsert(ctx, svc, prev); err != nil {
			return err
		}
		if err := s.ledger.Apply(ctx, tx.Counters(), before, after); err != nil {
			return err
		}
		fx.audits = append(fx.audits, listingAudit(provider, svc, "activate_service", now))
		result = toListingDTO(svc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeactivateService closes a listing. Every request still pending on it is
// displaced with no alternative slot.
func (s *BookingService) DeactivateService(ctx context.Context, provider bookingDomain.Actor, serviceID uuid.UUID) (*ListingDTO, error) {
	if err := requireRole(provider, bookingDomain.ActorProvider); err != nil {
		return nil, err
	}

	var result ListingDTO
	err := s.execute(ctx, "deactivate_service", func(ctx context.Context, tx store.Tx, fx *effects) error {
		svc, err := tx.Listings().FindByIDForUpdate(ctx, serviceID)
		if err != nil {
			return err
		}
		if svc.ProviderID() != provider.ID {
			return domain.NewForbiddenError("service does not belong to this provider")
		}
		now := s.clock.Now().UTC()
		prev := svc.Version()
		before := quota.ListingKeys(svc.ProviderID(), svc.Active())
		if !svc.SetActive(false, now) {
			result = toListingDTO(svc)
			return nil
		}
		if err := tx.Listings().Upsert(ctx, svc, prev); err != nil {
			return err
		}
		if err := s.ledger.Apply(ctx, tx.Counters(), before, nil); err != nil {
			return err
		}
		fx.audits = append(fx.audits, listingAudit(provider, svc, "deactivate_service", now))

		pending, err := tx.Bookings().FindPendingByService(ctx, serviceID)
		if err != nil {
			return fmt.Errorf("failed to query pending requests: %w", err)
		}
		displaced, err := s.resolver.DisplaceForService(pending, now)
		if err != nil {
			return err
		}
		if err := s.storeDisplacements(ctx, tx, fx, displaced, now); err != nil {
			return err
		}
		result = toListingDTO(svc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BookingService) loadListing(ctx context.Context, tx store.Tx, serviceID, providerID uuid.UUID, now time.Time) (*listing.ServiceListing, error) {
	svc, err := tx.Listings().FindByIDForUpdate(ctx, serviceID)
	if err != nil {
		if !domain.IsNotFound(err) {
			return nil, err
		}
		return listing.NewServiceListing(serviceID, providerID, now)
	}
	if svc.ProviderID() != providerID {
		return nil, domain.NewForbiddenError("service does not belong to this provider")
	}
	return svc, nil
}

func listingAudit(actor bookingDomain.Actor, svc *listing.ServiceListing, action string, at time.Time) AuditRecord {
	return AuditRecord{
		ActorID:    actor.ID.String(),
		ActorName:  actor.Name,
		ActorRole:  string(actor.Role),
		Category:   AuditCategoryService,
		Action:     action,
		EntityType: EntityListing,
		EntityID:   svc.ServiceID().String(),
		OccurredAt: at,
	}
}

// GetBooking retrieves a single booking visible to the actor.
func (s *BookingService) GetBooking(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	var result BookingDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		bk, err := tx.Bookings().FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorize(bk, actor); err != nil {
			return err
		}
		result = toBookingDTO(bk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPendingProposal returns the open reschedule proposal of a booking.
func (s *BookingService) GetPendingProposal(ctx context.Context, actor bookingDomain.Actor, bookingID uuid.UUID) (*ProposalDTO, error) {
	var result ProposalDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		bk, err := tx.Bookings().FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorize(bk, actor); err != nil {
			return err
		}
		p, err := tx.Proposals().FindPendingByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		result = toProposalDTO(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CounterUsage returns every stored quota counter keyed by its string form.
func (s *BookingService) CounterUsage(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.Counters().All(ctx)
		if err != nil {
			return fmt.Errorf("failed to read counters: %w", err)
		}
		out = make(map[string]int64, len(all))
		for k, v := range all {
			out[k.String()] = v
		}
		return nil
	})
	return out, err
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	var counts map[string]int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		counts, err = tx.Bookings().CountByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}
