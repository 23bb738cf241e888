package service

import (
	"context"
	"testing"
	"time"
	bookingserrors "tripdesk/internal/bookings/errors"
	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/reschedule/engine"
	"tripdesk/internal/rules/repository"
	"tripdesk/internal/rules/resolver"
	"tripdesk/pkg/config"
	mongotx "tripdesk/pkg/db/mongo"
	apperrors "tripdesk/pkg/errors"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type ruleRepoStub struct{}

func (s *ruleRepoStub) Create(ctx context.Context, rule *model.Rule) error { return nil }
func (s *ruleRepoStub) FindByID(ctx context.Context, id string) (*model.Rule, error) {
	return nil, nil
}
func (s *ruleRepoStub) FindAll(ctx context.Context, filter repository.RuleFilter, limit int, offset int64) ([]*model.Rule, error) {
	return nil, nil
}
func (s *ruleRepoStub) Count(ctx context.Context, filter repository.RuleFilter) (int64, error) {
	return 0, nil
}
func (s *ruleRepoStub) ListActiveByType(ctx context.Context, ruleType string) ([]*model.Rule, error) {
	return nil, nil
}
func (s *ruleRepoStub) ListActive(ctx context.Context) ([]*model.Rule, error) { return nil, nil }
func (s *ruleRepoStub) Update(ctx context.Context, id string, r *model.Rule) error {
	return nil
}
func (s *ruleRepoStub) SetActive(ctx context.Context, id string, active bool) error { return nil }
func (s *ruleRepoStub) Delete(ctx context.Context, id string) error                 { return nil }

type bookingRepoStub struct {
	findByID                  func(ctx context.Context, id string) (*model.Booking, error)
	updateReschedule          func(ctx context.Context, id string, upd bookingsrepo.RescheduleUpdate) error
	findActiveByPackageOnDate func(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error)
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.findByID(ctx, id)
}
func (s *bookingRepoStub) UpdateReschedule(ctx context.Context, id string, upd bookingsrepo.RescheduleUpdate) error {
	if s.updateReschedule != nil {
		return s.updateReschedule(ctx, id, upd)
	}
	return nil
}
func (s *bookingRepoStub) CountActiveOnDate(ctx context.Context, date time.Time, excludeID string) (int64, error) {
	return 0, nil
}
func (s *bookingRepoStub) FindConflictingOnDate(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error) {
	return nil, nil
}
func (s *bookingRepoStub) FindActiveByPackageOnDate(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error) {
	if s.findActiveByPackageOnDate != nil {
		return s.findActiveByPackageOnDate(ctx, date, packageID, excludeID)
	}
	return nil, nil
}
func (s *bookingRepoStub) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type historyRepoStub struct {
	appended         []*model.RescheduleHistoryEntry
	notifiedEntryIDs []string
}

func (s *historyRepoStub) Append(ctx context.Context, entry *model.RescheduleHistoryEntry) error {
	entry.ID = "h1"
	entry.CreatedAt = time.Now()
	s.appended = append(s.appended, entry)
	return nil
}
func (s *historyRepoStub) FindByBooking(ctx context.Context, bookingID string) ([]*model.RescheduleHistoryEntry, error) {
	return s.appended, nil
}
func (s *historyRepoStub) CountByActorOnDate(ctx context.Context, actorID string, date time.Time) (int64, error) {
	return 0, nil
}
func (s *historyRepoStub) MarkNotificationSent(ctx context.Context, entryID string) error {
	s.notifiedEntryIDs = append(s.notifiedEntryIDs, entryID)
	return nil
}

type lockRepoStub struct {
	acquire  func(ctx context.Context, bookingID string) (*model.RescheduleLock, error)
	acquired int
	released int
}

func (s *lockRepoStub) Acquire(ctx context.Context, bookingID string) (*model.RescheduleLock, error) {
	s.acquired++
	if s.acquire != nil {
		return s.acquire(ctx, bookingID)
	}
	return &model.RescheduleLock{ID: "reschedule_lock_" + bookingID}, nil
}
func (s *lockRepoStub) Release(ctx context.Context, lockID string) error {
	s.released++
	return nil
}

type dispatcherStub struct {
	clientOK    bool
	supportOK   bool
	clientCalls int
}

func (d *dispatcherStub) NotifyClient(ctx context.Context, booking *model.Booking, previousStart time.Time, reason string) bool {
	d.clientCalls++
	return d.clientOK
}
func (d *dispatcherStub) NotifySupport(ctx context.Context, booking *model.Booking, previousStart time.Time, actor model.Actor, reason string) bool {
	return d.supportOK
}
func (d *dispatcherStub) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		DefaultMinLeadHours:    24,
		DefaultMaxLeadHours:    8760,
		DefaultRescheduleLimit: 3,
		DefaultSuggestionCount: 5,
		Log:                    logger.New(logger.Config{Level: "error", Service: "reschedule-test"}),
	}
}

func testBooking() *model.Booking {
	return &model.Booking{
		ID:          "b1",
		CustomerID:  "c1",
		Status:      model.BookingPaid,
		StartTime:   time.Now().Add(14 * 24 * time.Hour),
		TotalAmount: 1000,
		Currency:    "EUR",
		ServiceLines: []model.ServiceLine{
			{ServiceID: "s1", ServiceTitle: "City Tour", Quantity: 2, UnitPrice: 500},
		},
	}
}

type fixture struct {
	service    RescheduleService
	bookings   *bookingRepoStub
	history    *historyRepoStub
	locks      *lockRepoStub
	dispatcher *dispatcherStub
}

func newFixture(booking *model.Booking) *fixture {
	cfg := testConfig()
	bookings := &bookingRepoStub{
		findByID: func(ctx context.Context, id string) (*model.Booking, error) {
			if booking == nil || id != booking.ID {
				return nil, bookingserrors.ErrNotFound
			}
			copied := *booking
			return &copied, nil
		},
	}
	history := &historyRepoStub{}
	locks := &lockRepoStub{}
	dispatcher := &dispatcherStub{clientOK: true, supportOK: true}

	eng := engine.NewEngine(resolver.NewResolver(&ruleRepoStub{}, cfg.Log), bookings, history, cfg)

	return &fixture{
		service:    NewRescheduleService(eng, bookings, history, locks, dispatcher, cfg),
		bookings:   bookings,
		history:    history,
		locks:      locks,
		dispatcher: dispatcher,
	}
}

func clientActor() model.Actor {
	return model.Actor{ID: "c1", Roles: []string{model.RoleClient}}
}

func TestRescheduleHappyPath(t *testing.T) {
	booking := testBooking()
	f := newFixture(booking)
	newStart := time.Now().Add(72 * time.Hour).Truncate(time.Second)

	result, err := f.service.Reschedule(context.Background(), "b1", newStart, "client asked", clientActor())
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	if !result.Booking.StartTime.Equal(newStart) {
		t.Errorf("StartTime = %v, want %v", result.Booking.StartTime, newStart)
	}
	if result.Booking.Status != model.BookingRescheduled {
		t.Errorf("Status = %s", result.Booking.Status)
	}
	if result.Booking.RescheduleCount != 1 {
		t.Errorf("RescheduleCount = %d, want 1", result.Booking.RescheduleCount)
	}
	if result.Booking.OriginalStartTime == nil || !result.Booking.OriginalStartTime.Equal(booking.StartTime) {
		t.Errorf("OriginalStartTime = %v, want the pre-move start", result.Booking.OriginalStartTime)
	}
	if !result.CanRescheduleAgain {
		t.Error("one reschedule against a limit of three leaves room")
	}
	if len(f.history.appended) != 1 {
		t.Fatalf("history entries = %d, want 1", len(f.history.appended))
	}
	if !result.Notifications.Client || !result.Notifications.Support {
		t.Errorf("Notifications = %+v", result.Notifications)
	}
	if len(f.history.notifiedEntryIDs) != 1 {
		t.Error("a delivered client notification must be flagged on the history entry")
	}
	if f.locks.acquired != 1 || f.locks.released != 1 {
		t.Errorf("lock acquired %d released %d, want 1 and 1", f.locks.acquired, f.locks.released)
	}
}

func TestRescheduleOriginalStartSetOnlyOnce(t *testing.T) {
	booking := testBooking()
	firstStart := booking.StartTime.Add(-48 * time.Hour)
	booking.OriginalStartTime = &firstStart
	booking.RescheduleCount = 1
	f := newFixture(booking)

	var captured bookingsrepo.RescheduleUpdate
	f.bookings.updateReschedule = func(ctx context.Context, id string, upd bookingsrepo.RescheduleUpdate) error {
		captured = upd
		return nil
	}

	result, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", clientActor())
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	if captured.OriginalStart != nil {
		t.Error("a later move must not overwrite the original start time")
	}
	if !result.Booking.OriginalStartTime.Equal(firstStart) {
		t.Errorf("OriginalStartTime = %v, want %v", result.Booking.OriginalStartTime, firstStart)
	}
	if result.Booking.RescheduleCount != 2 {
		t.Errorf("RescheduleCount = %d, want 2", result.Booking.RescheduleCount)
	}
}

func TestRescheduleForbiddenForForeignBooking(t *testing.T) {
	f := newFixture(testBooking())
	stranger := model.Actor{ID: "c2", Roles: []string{model.RoleClient}}

	_, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", stranger)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeForbidden {
		t.Errorf("Code = %s, want FORBIDDEN", appErr.Code)
	}
	if f.locks.acquired != 0 {
		t.Error("no lock may be taken for a forbidden request")
	}
}

func TestRescheduleOperatorMayMoveAnyBooking(t *testing.T) {
	f := newFixture(testBooking())
	operator := model.Actor{ID: "op1", Roles: []string{model.RoleOperator}}

	if _, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", operator); err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}
}

func TestReschedulePolicyViolation(t *testing.T) {
	f := newFixture(testBooking())

	_, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(2*time.Hour), "", clientActor())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodePolicyViolation {
		t.Fatalf("Code = %s, want POLICY_VIOLATION", appErr.Code)
	}
	if violations, ok := appErr.Details["violations"].([]string); !ok || len(violations) == 0 {
		t.Errorf("Details = %v, want the violation list", appErr.Details)
	}
	if f.locks.acquired != 0 {
		t.Error("an invalid request must not take the lock")
	}
	if len(f.history.appended) != 0 {
		t.Error("an invalid request must not write history")
	}
}

func TestRescheduleLockHeld(t *testing.T) {
	f := newFixture(testBooking())
	f.locks.acquire = func(ctx context.Context, bookingID string) (*model.RescheduleLock, error) {
		return nil, bookingserrors.ErrLockHeld
	}

	_, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", clientActor())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeAvailabilityConflict {
		t.Errorf("Code = %s, want AVAILABILITY_CONFLICT", appErr.Code)
	}
	if len(f.history.appended) != 0 {
		t.Error("a lost lock race must not write history")
	}
}

func TestReschedulePackageOccupancyRecheck(t *testing.T) {
	booking := testBooking()
	booking.ServiceLines = []model.ServiceLine{
		{ServiceID: "s1", ServiceTitle: "Wine Tasting", Quantity: 2, UnitPrice: 500, PackageID: "p1", PackageMaxOccupancy: 4},
	}
	f := newFixture(booking)
	f.bookings.findActiveByPackageOnDate = func(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error) {
		return []*model.Booking{
			{ID: "b9", ServiceLines: []model.ServiceLine{{ServiceID: "s1", Quantity: 3, PackageID: "p1"}}},
		}, nil
	}

	var updated bool
	f.bookings.updateReschedule = func(ctx context.Context, id string, upd bookingsrepo.RescheduleUpdate) error {
		updated = true
		return nil
	}

	_, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", clientActor())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeAvailabilityConflict {
		t.Fatalf("Code = %s, want AVAILABILITY_CONFLICT", appErr.Code)
	}
	if updated {
		t.Error("an over-capacity package must abort before the booking update")
	}
	if f.locks.released != 1 {
		t.Error("the lock must be released after an aborted transaction")
	}
}

func TestReschedulePriceChange(t *testing.T) {
	booking := testBooking()
	// Stored total lags the current unit prices.
	booking.TotalAmount = 900
	f := newFixture(booking)

	result, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", clientActor())
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	pc := result.PriceChange
	if !pc.Changed || pc.PreviousTotal != 900 || pc.NewTotal != 1000 || pc.Difference != 100 {
		t.Errorf("PriceChange = %+v", pc)
	}
	if result.Booking.TotalAmount != 1000 {
		t.Errorf("TotalAmount = %v, want repriced total", result.Booking.TotalAmount)
	}
}

func TestRescheduleNotificationFailureDoesNotUndoCommit(t *testing.T) {
	f := newFixture(testBooking())
	f.dispatcher.clientOK = false

	result, err := f.service.Reschedule(context.Background(), "b1", time.Now().Add(72*time.Hour), "", clientActor())
	if err != nil {
		t.Fatalf("Reschedule() error = %v", err)
	}

	if result.Notifications.Client {
		t.Error("client notification flag should be false")
	}
	if !result.Notifications.Support {
		t.Error("support notification flag should be true")
	}
	if len(f.history.notifiedEntryIDs) != 0 {
		t.Error("an undelivered notification must not be flagged on history")
	}
	if result.Booking.Status != model.BookingRescheduled {
		t.Error("the commit must stand regardless of notification failures")
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	f := newFixture(testBooking())

	verdict, err := f.service.Validate(context.Background(), "b1", time.Now().Add(2*time.Hour), "", clientActor())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if verdict.Valid {
		t.Error("a 2h candidate should fail the default lead time")
	}
	if f.locks.acquired != 0 || len(f.history.appended) != 0 {
		t.Error("Validate() must not lock or write")
	}
}

func TestCanReschedule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *model.Booking)
		allowed bool
	}{
		{"healthy booking", func(b *model.Booking) {}, true},
		{"cancelled", func(b *model.Booking) { b.Status = model.BookingCancelled }, false},
		{"at the limit", func(b *model.Booking) { b.RescheduleCount = 3 }, false},
		{"starting too soon", func(b *model.Booking) { b.StartTime = time.Now().Add(6 * time.Hour) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := testBooking()
			tt.mutate(booking)
			f := newFixture(booking)

			result, err := f.service.CanReschedule(context.Background(), "b1", clientActor())
			if err != nil {
				t.Fatalf("CanReschedule() error = %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v (%s)", result.Allowed, tt.allowed, result.Reason)
			}
			if !tt.allowed && result.Reason == "" {
				t.Error("a refusal must carry a reason")
			}
		})
	}
}

func TestRescheduleUnknownBooking(t *testing.T) {
	f := newFixture(nil)

	_, err := f.service.Reschedule(context.Background(), "missing", time.Now().Add(72*time.Hour), "", clientActor())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("Code = %s, want NOT_FOUND", appErr.Code)
	}
}
