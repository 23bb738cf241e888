package service

import (
	"context"
	"errors"
	"time"
	bookingserrors "tripdesk/internal/bookings/errors"
	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/notify"
	"tripdesk/internal/reschedule/engine"
	"tripdesk/pkg/config"
	apperrors "tripdesk/pkg/errors"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// PriceChange reports how the booking total moved against the service lines'
// current unit prices.
type PriceChange struct {
	Changed       bool    `json:"changed"`
	PreviousTotal float64 `json:"previous_total"`
	NewTotal      float64 `json:"new_total"`
	Difference    float64 `json:"difference"`
}

// NotificationOutcome carries the per-channel best-effort flags.
type NotificationOutcome struct {
	Client  bool `json:"client"`
	Support bool `json:"support"`
}

// CommitResult is the success payload of a committed reschedule.
type CommitResult struct {
	Booking            *model.Booking                  `json:"booking"`
	History            []*model.RescheduleHistoryEntry `json:"history"`
	CanRescheduleAgain bool                            `json:"can_reschedule_again"`
	PriceChange        PriceChange                     `json:"price_change"`
	Notifications      NotificationOutcome             `json:"notifications"`
	Penalty            model.Penalty                   `json:"penalty"`
}

// CanRescheduleResult answers the cheap pre-flight check without running a
// full evaluation.
type CanRescheduleResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type RescheduleService interface {
	Reschedule(ctx context.Context, bookingID string, newStart time.Time, reason string, actor model.Actor) (*CommitResult, error)
	Validate(ctx context.Context, bookingID string, newStart time.Time, reason string, actor model.Actor) (*model.Verdict, error)
	Suggest(ctx context.Context, bookingID string, desired time.Time, actor model.Actor, count int) ([]model.Suggestion, error)
	History(ctx context.Context, bookingID string, actor model.Actor) ([]*model.RescheduleHistoryEntry, error)
	CanReschedule(ctx context.Context, bookingID string, actor model.Actor) (*CanRescheduleResult, error)
}

type rescheduleService struct {
	engine     *engine.Engine
	bookings   bookingsrepo.BookingRepository
	history    bookingsrepo.HistoryRepository
	locks      bookingsrepo.RescheduleLockRepository
	dispatcher notify.Dispatcher
	cfg        *config.Config
	now        func() time.Time
}

func NewRescheduleService(
	eng *engine.Engine,
	bookings bookingsrepo.BookingRepository,
	history bookingsrepo.HistoryRepository,
	locks bookingsrepo.RescheduleLockRepository,
	dispatcher notify.Dispatcher,
	cfg *config.Config,
) RescheduleService {
	return &rescheduleService{
		engine:     eng,
		bookings:   bookings,
		history:    history,
		locks:      locks,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// loadAuthorized fetches the booking and enforces booking-level permissions:
// callers without an operator or admin role may only act on their own
// bookings.
func (s *rescheduleService) loadAuthorized(ctx context.Context, bookingID string, actor model.Actor) (*model.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, mapBookingError(err, bookingID)
	}

	if !actor.HasAnyRole(model.RoleOperator, model.RoleAdmin) && booking.CustomerID != actor.ID {
		return nil, apperrors.Forbidden("You may only reschedule your own bookings")
	}

	return booking, nil
}

func (s *rescheduleService) Reschedule(ctx context.Context, bookingID string, newStart time.Time, reason string, actor model.Actor) (*CommitResult, error) {
	booking, err := s.loadAuthorized(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	verdict, err := s.engine.Evaluate(ctx, booking, newStart, reason, actor)
	if err != nil {
		s.cfg.Log.Error("Reschedule evaluation failed", "booking_id", bookingID, "error", err)
		return nil, apperrors.Internal("Failed to evaluate reschedule", err)
	}
	if !verdict.Valid {
		return nil, apperrors.PolicyViolation("The requested reschedule violates the active policy", verdict.Errors)
	}

	// Serialize commits per booking. A held lock means a concurrent attempt
	// is mid-flight; the caller should retry after it settles.
	lock, err := s.locks.Acquire(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrLockHeld) {
			return nil, apperrors.AvailabilityConflict("Another reschedule of this booking is in progress, please retry")
		}
		return nil, apperrors.Internal("Failed to acquire reschedule lock", err)
	}
	defer func() {
		if releaseErr := s.locks.Release(ctx, lock.ID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release reschedule lock", "lock_id", lock.ID, "error", releaseErr)
		}
	}()

	var (
		committed   *model.Booking
		entry       *model.RescheduleHistoryEntry
		priceChange PriceChange
	)

	err = s.bookings.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		// Re-read inside the transaction: state may have moved between
		// validation and commit.
		current, err := s.bookings.FindByID(sessCtx, bookingID)
		if err != nil {
			return mapBookingError(err, bookingID)
		}
		if current.Status == model.BookingCancelled {
			return apperrors.PolicyViolation("The requested reschedule violates the active policy", []string{"Cancelled bookings cannot be rescheduled."})
		}

		if err := s.recheckPackageOccupancy(sessCtx, current, newStart); err != nil {
			return err
		}

		priceChange = computePriceChange(current)

		previousStart := current.StartTime
		now := s.now()

		upd := bookingsrepo.RescheduleUpdate{
			NewStart:        newStart,
			Reason:          reason,
			ActorID:         actor.ID,
			RescheduledAt:   now,
			RescheduleCount: current.RescheduleCount + 1,
			TotalAmount:     priceChange.NewTotal,
			ServiceLines:    current.ServiceLines,
		}
		if current.OriginalStartTime == nil {
			upd.OriginalStart = &previousStart
		}

		if err := s.bookings.UpdateReschedule(sessCtx, bookingID, upd); err != nil {
			return apperrors.Internal("Failed to update booking", err)
		}

		entry = &model.RescheduleHistoryEntry{
			BookingID:     bookingID,
			PreviousStart: previousStart,
			NewStart:      newStart,
			Reason:        reason,
			ActorID:       actor.ID,
		}
		if err := s.history.Append(sessCtx, entry); err != nil {
			return apperrors.Internal("Failed to append reschedule history", err)
		}

		committed = current
		committed.StartTime = newStart
		committed.Status = model.BookingRescheduled
		committed.RescheduleReason = reason
		committed.RescheduledBy = actor.ID
		committed.RescheduledAt = &now
		committed.RescheduleCount = upd.RescheduleCount
		committed.TotalAmount = upd.TotalAmount
		if upd.OriginalStart != nil {
			committed.OriginalStartTime = upd.OriginalStart
		}

		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Reschedule transaction failed", "booking_id", bookingID, "error", err)
		return nil, apperrors.Internal("Failed to commit reschedule", err)
	}

	// Notifications are best-effort: the commit stands whatever happens here.
	outcome := NotificationOutcome{
		Client:  s.dispatcher.NotifyClient(ctx, committed, entry.PreviousStart, reason),
		Support: s.dispatcher.NotifySupport(ctx, committed, entry.PreviousStart, actor, reason),
	}
	if outcome.Client {
		if err := s.history.MarkNotificationSent(ctx, entry.ID); err != nil {
			s.cfg.Log.Warn("Failed to flag notification on history entry", "entry_id", entry.ID, "error", err)
		} else {
			entry.NotificationSent = true
		}
	}

	entries, err := s.history.FindByBooking(ctx, bookingID)
	if err != nil {
		s.cfg.Log.Warn("Failed to load history after commit", "booking_id", bookingID, "error", err)
		entries = []*model.RescheduleHistoryEntry{entry}
	}

	s.cfg.Log.Info("Reschedule committed",
		"booking_id", bookingID,
		"previous_start", entry.PreviousStart,
		"new_start", newStart,
		"actor_id", actor.ID,
		"reschedule_count", committed.RescheduleCount,
		"notified_client", outcome.Client,
		"notified_support", outcome.Support,
	)

	return &CommitResult{
		Booking:            committed,
		History:            entries,
		CanRescheduleAgain: committed.RescheduleCount < s.cfg.DefaultRescheduleLimit,
		PriceChange:        priceChange,
		Notifications:      outcome,
		Penalty:            verdict.Penalty,
	}, nil
}

// recheckPackageOccupancy is the defensive capacity re-check at commit time.
// For every service line sold as part of a package, the reserved quantity on
// the new date, including this booking, must fit the package's occupancy cap.
func (s *rescheduleService) recheckPackageOccupancy(ctx context.Context, booking *model.Booking, newStart time.Time) error {
	for _, line := range booking.ServiceLines {
		if line.PackageID == "" || line.PackageMaxOccupancy <= 0 {
			continue
		}

		others, err := s.bookings.FindActiveByPackageOnDate(ctx, newStart, line.PackageID, booking.ID)
		if err != nil {
			return apperrors.Internal("Failed to re-check package occupancy", err)
		}

		reserved := line.Quantity
		for _, other := range others {
			for _, otherLine := range other.ServiceLines {
				if otherLine.PackageID == line.PackageID {
					reserved += otherLine.Quantity
				}
			}
		}

		if reserved > line.PackageMaxOccupancy {
			return apperrors.AvailabilityConflict("The selected date no longer has capacity for " + line.ServiceTitle)
		}
	}

	return nil
}

// computePriceChange prices the booking's lines at their current unit prices
// and compares with the stored total.
func computePriceChange(booking *model.Booking) PriceChange {
	var newTotal float64
	for _, line := range booking.ServiceLines {
		newTotal += float64(line.Quantity) * line.UnitPrice
	}

	return PriceChange{
		Changed:       newTotal != booking.TotalAmount,
		PreviousTotal: booking.TotalAmount,
		NewTotal:      newTotal,
		Difference:    newTotal - booking.TotalAmount,
	}
}

func (s *rescheduleService) Validate(ctx context.Context, bookingID string, newStart time.Time, reason string, actor model.Actor) (*model.Verdict, error) {
	booking, err := s.loadAuthorized(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	verdict, err := s.engine.Evaluate(ctx, booking, newStart, reason, actor)
	if err != nil {
		return nil, apperrors.Internal("Failed to evaluate reschedule", err)
	}

	return verdict, nil
}

func (s *rescheduleService) Suggest(ctx context.Context, bookingID string, desired time.Time, actor model.Actor, count int) ([]model.Suggestion, error) {
	booking, err := s.loadAuthorized(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	suggestions, err := s.engine.Suggest(ctx, booking, desired, actor, count)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate suggestions", err)
	}

	return suggestions, nil
}

func (s *rescheduleService) History(ctx context.Context, bookingID string, actor model.Actor) ([]*model.RescheduleHistoryEntry, error) {
	if _, err := s.loadAuthorized(ctx, bookingID, actor); err != nil {
		return nil, err
	}

	entries, err := s.history.FindByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load reschedule history", err)
	}

	return entries, nil
}

// CanReschedule is a cheap pre-flight answer for UIs: it applies the
// structural checks without consulting the rule store.
func (s *rescheduleService) CanReschedule(ctx context.Context, bookingID string, actor model.Actor) (*CanRescheduleResult, error) {
	booking, err := s.loadAuthorized(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}

	switch {
	case booking.Status == model.BookingCancelled:
		return &CanRescheduleResult{Reason: "Cancelled bookings cannot be rescheduled."}, nil
	case booking.RescheduleCount >= s.cfg.DefaultRescheduleLimit:
		return &CanRescheduleResult{Reason: "This booking has reached its reschedule limit."}, nil
	case !booking.StartTime.After(s.now().Add(time.Duration(s.cfg.DefaultMinLeadHours) * time.Hour)):
		return &CanRescheduleResult{Reason: "The booking starts too soon to be rescheduled."}, nil
	}

	return &CanRescheduleResult{Allowed: true}, nil
}

func mapBookingError(err error, id string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("booking", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput(err.Error())
	default:
		return apperrors.Internal("Booking lookup failed", err)
	}
}
