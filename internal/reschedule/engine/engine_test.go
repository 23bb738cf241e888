package engine

import (
	"context"
	"strings"
	"testing"
	"time"
	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/rules/repository"
	"tripdesk/internal/rules/resolver"
	"tripdesk/pkg/config"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/model"

	mongotx "tripdesk/pkg/db/mongo"
)

// fixedNow is a Monday at noon. Blackout tests rely on the weekday.
var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type ruleRepoStub struct {
	rules map[string][]*model.Rule
}

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
	return s.rules[ruleType], nil
}
func (s *ruleRepoStub) ListActive(ctx context.Context) ([]*model.Rule, error) { return nil, nil }
func (s *ruleRepoStub) Update(ctx context.Context, id string, r *model.Rule) error {
	return nil
}
func (s *ruleRepoStub) SetActive(ctx context.Context, id string, active bool) error { return nil }
func (s *ruleRepoStub) Delete(ctx context.Context, id string) error                 { return nil }

type bookingRepoStub struct {
	countActiveOnDate     func(ctx context.Context, date time.Time, excludeID string) (int64, error)
	findConflictingOnDate func(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error)
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return nil, nil
}
func (s *bookingRepoStub) UpdateReschedule(ctx context.Context, id string, upd bookingsrepo.RescheduleUpdate) error {
	return nil
}
func (s *bookingRepoStub) CountActiveOnDate(ctx context.Context, date time.Time, excludeID string) (int64, error) {
	if s.countActiveOnDate != nil {
		return s.countActiveOnDate(ctx, date, excludeID)
	}
	return 0, nil
}
func (s *bookingRepoStub) FindConflictingOnDate(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error) {
	if s.findConflictingOnDate != nil {
		return s.findConflictingOnDate(ctx, date, serviceIDs, excludeID)
	}
	return nil, nil
}
func (s *bookingRepoStub) FindActiveByPackageOnDate(ctx context.Context, date time.Time, packageID string, excludeID string) ([]*model.Booking, error) {
	return nil, nil
}
func (s *bookingRepoStub) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return nil
}

type historyRepoStub struct {
	countByActorOnDate func(ctx context.Context, actorID string, date time.Time) (int64, error)
}

func (s *historyRepoStub) Append(ctx context.Context, entry *model.RescheduleHistoryEntry) error {
	return nil
}
func (s *historyRepoStub) FindByBooking(ctx context.Context, bookingID string) ([]*model.RescheduleHistoryEntry, error) {
	return nil, nil
}
func (s *historyRepoStub) CountByActorOnDate(ctx context.Context, actorID string, date time.Time) (int64, error) {
	if s.countByActorOnDate != nil {
		return s.countByActorOnDate(ctx, actorID, date)
	}
	return 0, nil
}
func (s *historyRepoStub) MarkNotificationSent(ctx context.Context, entryID string) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultMinLeadHours:    24,
		DefaultMaxLeadHours:    8760,
		DefaultRescheduleLimit: 3,
		DefaultSuggestionCount: 5,
		Log:                    logger.New(logger.Config{Level: "error", Service: "engine-test"}),
	}
}

func newTestEngine(rules map[string][]*model.Rule, bookings *bookingRepoStub, history *historyRepoStub) *Engine {
	cfg := testConfig()
	if bookings == nil {
		bookings = &bookingRepoStub{}
	}
	if history == nil {
		history = &historyRepoStub{}
	}
	e := NewEngine(resolver.NewResolver(&ruleRepoStub{rules: rules}, cfg.Log), bookings, history, cfg)
	e.now = func() time.Time { return fixedNow }
	return e
}

func testBooking() *model.Booking {
	return &model.Booking{
		ID:          "b1",
		CustomerID:  "c1",
		Status:      model.BookingPaid,
		StartTime:   fixedNow.AddDate(0, 0, 14),
		TotalAmount: 1000,
		Currency:    "EUR",
		ServiceLines: []model.ServiceLine{
			{ServiceID: "s1", ServiceTitle: "City Tour", Quantity: 2, UnitPrice: 500},
		},
	}
}

func activeRule(ruleType, role string, priority int) *model.Rule {
	return &model.Rule{
		Name:           ruleType + " test rule",
		RuleType:       ruleType,
		ApplicableRole: role,
		Active:         true,
		Priority:       priority,
	}
}

func intRule(ruleType, role string, value int64) *model.Rule {
	r := activeRule(ruleType, role, 100)
	r.IntValue = &value
	return r
}

func decimalRule(ruleType, role string, value float64) *model.Rule {
	r := activeRule(ruleType, role, 100)
	r.DecimalValue = &value
	return r
}

func textRule(ruleType, role, value string) *model.Rule {
	r := activeRule(ruleType, role, 100)
	r.TextValue = &value
	return r
}

func hasViolationContaining(verdict *model.Verdict, fragment string) bool {
	for _, v := range verdict.Errors {
		if strings.Contains(v, fragment) {
			return true
		}
	}
	return false
}

func TestEvaluateValidCandidate(t *testing.T) {
	e := newTestEngine(nil, nil, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "client request", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("Evaluate() invalid: %v", verdict.Errors)
	}
	if !verdict.Availability.Available {
		t.Error("availability should be computed and clear with no conflicts")
	}
	if verdict.Penalty.Applies {
		t.Error("no penalty rule configured, penalty should not apply")
	}
	if verdict.Penalty.TotalWithPenalty != 1000 {
		t.Errorf("TotalWithPenalty = %v, want unchanged total", verdict.Penalty.TotalWithPenalty)
	}
}

func TestEvaluateCancelledBooking(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	booking := testBooking()
	booking.Status = model.BookingCancelled

	verdict, err := e.Evaluate(context.Background(), booking, fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a cancelled booking must never pass")
	}
	if !hasViolationContaining(verdict, "Cancelled") {
		t.Errorf("missing cancelled violation, got %v", verdict.Errors)
	}
}

func TestEvaluateMinLeadBoundaryIsStrict(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	actor := model.Actor{ID: "c1", Roles: []string{model.RoleClient}}

	tests := []struct {
		name      string
		candidate time.Time
		valid     bool
	}{
		{"one hour short", fixedNow.Add(23 * time.Hour), false},
		{"exactly at the boundary", fixedNow.Add(24 * time.Hour), false},
		{"one hour past", fixedNow.Add(25 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := e.Evaluate(context.Background(), testBooking(), tt.candidate, "", actor)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if verdict.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v (errors: %v)", verdict.Valid, tt.valid, verdict.Errors)
			}
		})
	}
}

func TestEvaluateMinLeadRuleOverridesDefault(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleMinLeadTime: {intRule(model.RuleMinLeadTime, model.RoleClient, 72)},
	}
	e := newTestEngine(rules, nil, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("48h candidate should fail a 72h rule")
	}
	if !hasViolationContaining(verdict, "72 hours") {
		t.Errorf("violation should use the rule message, got %v", verdict.Errors)
	}
}

func TestEvaluatePastAndFarFutureCandidates(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	actor := model.Actor{ID: "c1", Roles: []string{model.RoleClient}}

	past, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(-time.Hour), "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if past.Valid || !hasViolationContaining(past, "future") {
		t.Errorf("past candidate verdict = %v", past.Errors)
	}

	far, err := e.Evaluate(context.Background(), testBooking(), fixedNow.AddDate(3, 0, 0), "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if far.Valid || !hasViolationContaining(far, "2 years") {
		t.Errorf("far-future candidate verdict = %v", far.Errors)
	}
}

func TestEvaluatePerBookingLimit(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	booking := testBooking()
	booking.RescheduleCount = 3

	verdict, err := e.Evaluate(context.Background(), booking, fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a booking at the default limit of 3 must fail")
	}
	if !hasViolationContaining(verdict, "limit of 3") {
		t.Errorf("violations = %v", verdict.Errors)
	}
}

func TestEvaluatePerDayLimitOnlyWhenConfigured(t *testing.T) {
	history := &historyRepoStub{
		countByActorOnDate: func(ctx context.Context, actorID string, date time.Time) (int64, error) {
			return 2, nil
		},
	}

	// Without a per-day rule the history count is irrelevant.
	e := newTestEngine(nil, nil, history)
	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("no per-day rule, verdict should be valid: %v", verdict.Errors)
	}

	rules := map[string][]*model.Rule{
		model.RuleMaxReschedulesPerDay: {intRule(model.RuleMaxReschedulesPerDay, model.RoleAll, 2)},
	}
	e = newTestEngine(rules, nil, history)
	verdict, err = e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("an actor at the daily quota must fail")
	}
}

func TestEvaluateBlackoutDay(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleBlackoutDays: {textRule(model.RuleBlackoutDays, model.RoleAll, `["SUNDAY"]`)},
	}
	e := newTestEngine(rules, nil, nil)
	actor := model.Actor{ID: "c1", Roles: []string{model.RoleClient}}

	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	verdict, err := e.Evaluate(context.Background(), testBooking(), sunday, "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a Sunday candidate must fail the blackout")
	}

	monday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	verdict, err = e.Evaluate(context.Background(), testBooking(), monday, "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("a Monday candidate should pass: %v", verdict.Errors)
	}
}

func TestEvaluateBlackoutHours(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleBlackoutHours: {textRule(model.RuleBlackoutHours, model.RoleAll, `[0,1,2,3]`)},
	}
	e := newTestEngine(rules, nil, nil)
	actor := model.Actor{ID: "c1", Roles: []string{model.RoleClient}}

	overnight := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)
	verdict, err := e.Evaluate(context.Background(), testBooking(), overnight, "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a 02:00 candidate must fail the hour blackout")
	}
}

func TestEvaluateMalformedBlackoutFailsOpen(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleBlackoutDays:  {textRule(model.RuleBlackoutDays, model.RoleAll, `[1,2,3]`)},
		model.RuleBlackoutHours: {textRule(model.RuleBlackoutHours, model.RoleAll, `["two"]`)},
	}
	e := newTestEngine(rules, nil, nil)

	sundayOvernight := time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC)
	verdict, err := e.Evaluate(context.Background(), testBooking(), sundayOvernight, "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("malformed blackout values are ignored, got %v", verdict.Errors)
	}
}

func TestEvaluateCapacityPerDate(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleMaxCapacityPerDate: {intRule(model.RuleMaxCapacityPerDate, model.RoleAll, 10)},
	}
	bookings := &bookingRepoStub{
		countActiveOnDate: func(ctx context.Context, date time.Time, excludeID string) (int64, error) {
			if excludeID != "b1" {
				t.Errorf("the booking itself must be excluded, got %s", excludeID)
			}
			return 10, nil
		},
	}
	e := newTestEngine(rules, bookings, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a full date must fail the capacity rule")
	}
}

func TestEvaluateRestrictedServices(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleRestrictedServices: {textRule(model.RuleRestrictedServices, model.RoleAll, `["city tour"]`)},
	}
	e := newTestEngine(rules, nil, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Valid {
		t.Fatal("a booking with a restricted service must fail")
	}
	if !hasViolationContaining(verdict, "City Tour") {
		t.Errorf("violation should name the service, got %v", verdict.Errors)
	}
}

func TestEvaluatePenalty(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RulePenaltyPercent: {decimalRule(model.RulePenaltyPercent, model.RoleClient, 5)},
	}
	e := newTestEngine(rules, nil, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("penalty alone never blocks: %v", verdict.Errors)
	}
	p := verdict.Penalty
	if !p.Applies || p.Percent != 5 || p.Amount != 50 || p.TotalWithPenalty != 1050 {
		t.Errorf("Penalty = %+v", p)
	}
}

func TestEvaluateAvailabilityConflicts(t *testing.T) {
	bookings := &bookingRepoStub{
		findConflictingOnDate: func(ctx context.Context, date time.Time, serviceIDs []string, excludeID string) ([]*model.Booking, error) {
			return []*model.Booking{
				{ID: "b2", ServiceLines: []model.ServiceLine{{ServiceID: "s1", ServiceTitle: "City Tour"}}},
				{ID: "b3", ServiceLines: []model.ServiceLine{{ServiceID: "s9", ServiceTitle: "Museum"}}},
			}, nil
		},
	}
	e := newTestEngine(nil, bookings, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if verdict.Availability.Available {
		t.Error("conflicting bookings should mark the date unavailable")
	}
	if verdict.Availability.Conflicts != 2 {
		t.Errorf("Conflicts = %d, want 2", verdict.Availability.Conflicts)
	}
	// Only services the booking itself uses are listed.
	if len(verdict.Availability.ConflictingServices) != 1 || verdict.Availability.ConflictingServices[0] != "City Tour" {
		t.Errorf("ConflictingServices = %v", verdict.Availability.ConflictingServices)
	}
	// Informational only: conflicts alone never invalidate.
	if !verdict.Valid {
		t.Errorf("availability conflicts must not block, got %v", verdict.Errors)
	}
}

func TestEvaluateAccumulatesAllViolations(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	booking := testBooking()
	booking.Status = model.BookingCancelled
	booking.RescheduleCount = 5

	verdict, err := e.Evaluate(context.Background(), booking, fixedNow.Add(time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(verdict.Errors) < 3 {
		t.Errorf("expected cancelled, lead-time and count violations together, got %v", verdict.Errors)
	}
}

func TestEvaluateRecordsAppliedRules(t *testing.T) {
	rules := map[string][]*model.Rule{
		model.RuleMinLeadTime:    {intRule(model.RuleMinLeadTime, model.RoleClient, 24)},
		model.RulePenaltyPercent: {decimalRule(model.RulePenaltyPercent, model.RoleAll, 5)},
	}
	e := newTestEngine(rules, nil, nil)

	verdict, err := e.Evaluate(context.Background(), testBooking(), fixedNow.Add(48*time.Hour), "", model.Actor{ID: "c1", Roles: []string{model.RoleClient}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(verdict.AppliedRules) != 2 {
		t.Fatalf("AppliedRules = %+v, want both resolved rules", verdict.AppliedRules)
	}
	if verdict.Metadata.RulesEvaluated != 2 {
		t.Errorf("RulesEvaluated = %d, want 2", verdict.Metadata.RulesEvaluated)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	e := newTestEngine(nil, nil, nil)
	actor := model.Actor{ID: "c1", Roles: []string{model.RoleClient}}
	candidate := fixedNow.Add(48 * time.Hour)

	first, err := e.Evaluate(context.Background(), testBooking(), candidate, "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	second, err := e.Evaluate(context.Background(), testBooking(), candidate, "", actor)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if first.Valid != second.Valid || len(first.Errors) != len(second.Errors) {
		t.Errorf("repeated evaluation diverged: %+v vs %+v", first, second)
	}
}
