package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	bookingsrepo "tripdesk/internal/bookings/repository"
	"tripdesk/internal/rules/resolver"
	"tripdesk/pkg/config"
	"tripdesk/pkg/model"
)

// maxLeadCeilingYears is a hard limit on how far out any caller may reschedule,
// independent of rule configuration.
const maxLeadCeilingYears = 2

// Engine evaluates candidate reschedules against the active rule set. It is
// read-only: violations accumulate as strings in the verdict and are never
// returned as errors. An error return means a store read failed.
type Engine struct {
	resolver *resolver.Resolver
	bookings bookingsrepo.BookingRepository
	history  bookingsrepo.HistoryRepository
	cfg      *config.Config

	// now is replaceable in tests.
	now func() time.Time
}

func NewEngine(
	ruleResolver *resolver.Resolver,
	bookings bookingsrepo.BookingRepository,
	history bookingsrepo.HistoryRepository,
	cfg *config.Config,
) *Engine {
	return &Engine{
		resolver: ruleResolver,
		bookings: bookings,
		history:  history,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Evaluate runs every rule category against the candidate and aggregates the
// outcome. All steps run; nothing short-circuits. Availability and penalty
// are computed even when violations exist so callers can render a complete
// picture.
func (e *Engine) Evaluate(ctx context.Context, booking *model.Booking, candidate time.Time, reason string, actor model.Actor) (*model.Verdict, error) {
	now := e.now()

	verdict := &model.Verdict{
		Errors:       []string{},
		Warnings:     []string{},
		AppliedRules: []model.AppliedRule{},
		Metadata: model.VerdictMetadata{
			Roles:       actor.Roles,
			EvaluatedAt: now,
		},
	}

	// Basic date checks. The 2-year ceiling is a hard engine constant, not
	// rule-configurable.
	if !candidate.After(now) {
		verdict.Errors = append(verdict.Errors, "The new date must be in the future.")
	}
	if candidate.After(now.AddDate(maxLeadCeilingYears, 0, 0)) {
		verdict.Errors = append(verdict.Errors, fmt.Sprintf("Bookings cannot be rescheduled more than %d years ahead.", maxLeadCeilingYears))
	}

	if booking.Status == model.BookingCancelled {
		verdict.Errors = append(verdict.Errors, "Cancelled bookings cannot be rescheduled.")
	}

	if err := e.checkLeadTimes(ctx, verdict, candidate, now, actor.Roles); err != nil {
		return nil, err
	}
	if err := e.checkCountLimits(ctx, verdict, booking, now, actor); err != nil {
		return nil, err
	}
	if err := e.checkBlackouts(ctx, verdict, candidate, actor.Roles); err != nil {
		return nil, err
	}
	if err := e.checkCapacity(ctx, verdict, booking, candidate, actor.Roles); err != nil {
		return nil, err
	}
	if err := e.checkRestrictedServices(ctx, verdict, booking, actor.Roles); err != nil {
		return nil, err
	}
	if err := e.computeAvailability(ctx, verdict, booking, candidate); err != nil {
		return nil, err
	}
	if err := e.computePenalty(ctx, verdict, booking, actor.Roles); err != nil {
		return nil, err
	}

	verdict.Valid = len(verdict.Errors) == 0
	verdict.Metadata.RulesEvaluated = len(verdict.AppliedRules)

	return verdict, nil
}

// resolveAndAudit resolves the governing rule of a type and records it on
// the verdict's audit trail when found.
func (e *Engine) resolveAndAudit(ctx context.Context, verdict *model.Verdict, ruleType string, roles []string) (*model.Rule, error) {
	rule, err := e.resolver.ResolveForRoles(ctx, ruleType, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s rule: %w", ruleType, err)
	}
	if rule != nil {
		verdict.AppliedRules = append(verdict.AppliedRules, model.AppliedRule{
			RuleType: rule.RuleType,
			Role:     rule.ApplicableRole,
			Name:     rule.Name,
			Value:    rule.Value().Raw(),
			Priority: rule.Priority,
		})
	}
	return rule, nil
}

func (e *Engine) checkLeadTimes(ctx context.Context, verdict *model.Verdict, candidate, now time.Time, roles []string) error {
	minHours := int64(e.cfg.DefaultMinLeadHours)
	minRule, err := e.resolveAndAudit(ctx, verdict, model.RuleMinLeadTime, roles)
	if err != nil {
		return err
	}
	if minRule != nil {
		if hours, ok := minRule.Value().AsInt(); ok {
			minHours = hours
		}
	}

	// Strict boundary: a candidate at exactly now+min is still too close.
	if !candidate.After(now.Add(time.Duration(minHours) * time.Hour)) {
		if minRule != nil {
			verdict.Errors = append(verdict.Errors, minRule.Message())
		} else {
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("Bookings must be rescheduled at least %d hours in advance.", minHours))
		}
	}

	maxHours := int64(e.cfg.DefaultMaxLeadHours)
	maxRule, err := e.resolveAndAudit(ctx, verdict, model.RuleMaxLeadTime, roles)
	if err != nil {
		return err
	}
	if maxRule != nil {
		if hours, ok := maxRule.Value().AsInt(); ok {
			maxHours = hours
		}
	}

	if candidate.After(now.Add(time.Duration(maxHours) * time.Hour)) {
		if maxRule != nil {
			verdict.Errors = append(verdict.Errors, maxRule.Message())
		} else {
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("Bookings cannot be rescheduled more than %d days ahead.", maxHours/24))
		}
	}

	return nil
}

func (e *Engine) checkCountLimits(ctx context.Context, verdict *model.Verdict, booking *model.Booking, now time.Time, actor model.Actor) error {
	limit := int64(e.cfg.DefaultRescheduleLimit)
	perBookingRule, err := e.resolveAndAudit(ctx, verdict, model.RuleMaxReschedulesPerBooking, actor.Roles)
	if err != nil {
		return err
	}
	if perBookingRule != nil {
		if v, ok := perBookingRule.Value().AsInt(); ok {
			limit = v
		}
	}

	if int64(booking.RescheduleCount) >= limit {
		if perBookingRule != nil {
			verdict.Errors = append(verdict.Errors, perBookingRule.Message())
		} else {
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("This booking has reached its limit of %d reschedules.", limit))
		}
	}

	// The per-day quota only applies when a rule configures it.
	perDayRule, err := e.resolveAndAudit(ctx, verdict, model.RuleMaxReschedulesPerDay, actor.Roles)
	if err != nil {
		return err
	}
	if perDayRule != nil {
		if dayLimit, ok := perDayRule.Value().AsInt(); ok {
			count, err := e.history.CountByActorOnDate(ctx, actor.ID, now)
			if err != nil {
				return fmt.Errorf("failed to count reschedules for actor: %w", err)
			}
			if count >= dayLimit {
				verdict.Errors = append(verdict.Errors, perDayRule.Message())
			}
		}
	}

	return nil
}

// checkBlackouts evaluates day and hour blackout windows. Malformed rule
// values are ignored entirely: no violation, no fault. This fail-open policy
// applies to blackout rules only.
func (e *Engine) checkBlackouts(ctx context.Context, verdict *model.Verdict, candidate time.Time, roles []string) error {
	daysRule, err := e.resolveAndAudit(ctx, verdict, model.RuleBlackoutDays, roles)
	if err != nil {
		return err
	}
	if daysRule != nil {
		if days, ok := daysRule.Value().AsStringList(); ok {
			weekday := strings.ToLower(candidate.Weekday().String())
			for _, day := range days {
				if strings.ToLower(strings.TrimSpace(day)) == weekday {
					verdict.Errors = append(verdict.Errors, daysRule.Message())
					break
				}
			}
		}
	}

	hoursRule, err := e.resolveAndAudit(ctx, verdict, model.RuleBlackoutHours, roles)
	if err != nil {
		return err
	}
	if hoursRule != nil {
		if hours, ok := hoursRule.Value().AsIntList(); ok {
			for _, hour := range hours {
				if candidate.Hour() == hour {
					verdict.Errors = append(verdict.Errors, hoursRule.Message())
					break
				}
			}
		}
	}

	return nil
}

func (e *Engine) checkCapacity(ctx context.Context, verdict *model.Verdict, booking *model.Booking, candidate time.Time, roles []string) error {
	rule, err := e.resolveAndAudit(ctx, verdict, model.RuleMaxCapacityPerDate, roles)
	if err != nil {
		return err
	}
	if rule == nil {
		return nil
	}

	limit, ok := rule.Value().AsInt()
	if !ok {
		return nil
	}

	count, err := e.bookings.CountActiveOnDate(ctx, candidate, booking.ID)
	if err != nil {
		return fmt.Errorf("failed to count bookings on candidate date: %w", err)
	}

	if count >= limit {
		verdict.Errors = append(verdict.Errors, rule.Message())
	}

	return nil
}

func (e *Engine) checkRestrictedServices(ctx context.Context, verdict *model.Verdict, booking *model.Booking, roles []string) error {
	rule, err := e.resolveAndAudit(ctx, verdict, model.RuleRestrictedServices, roles)
	if err != nil {
		return err
	}
	if rule == nil {
		return nil
	}

	value := rule.Value()
	var restricted []string
	if list, ok := value.AsStringList(); ok {
		restricted = list
	} else if value.Kind == model.ValueText {
		restricted = []string{value.Text}
	} else {
		return nil
	}

	// One violation per restricted service line in the booking.
	for _, line := range booking.ServiceLines {
		for _, title := range restricted {
			if strings.EqualFold(strings.TrimSpace(title), line.ServiceTitle) {
				verdict.Errors = append(verdict.Errors, fmt.Sprintf("The service %q cannot be rescheduled: %s", line.ServiceTitle, rule.Message()))
				break
			}
		}
	}

	return nil
}

// computeAvailability is informational: it reports service-level conflicts
// on the candidate date regardless of whether any rule was violated.
func (e *Engine) computeAvailability(ctx context.Context, verdict *model.Verdict, booking *model.Booking, candidate time.Time) error {
	conflicting, err := e.bookings.FindConflictingOnDate(ctx, candidate, booking.ServiceIDs(), booking.ID)
	if err != nil {
		return fmt.Errorf("failed to find conflicting bookings: %w", err)
	}

	ownServices := make(map[string]bool, len(booking.ServiceLines))
	for _, line := range booking.ServiceLines {
		ownServices[line.ServiceID] = true
	}

	seen := make(map[string]bool)
	var titles []string
	for _, other := range conflicting {
		for _, line := range other.ServiceLines {
			if ownServices[line.ServiceID] && !seen[line.ServiceTitle] {
				seen[line.ServiceTitle] = true
				titles = append(titles, line.ServiceTitle)
			}
		}
	}

	verdict.Availability = model.Availability{
		Available:           len(conflicting) == 0,
		Conflicts:           len(conflicting),
		ConflictingServices: titles,
	}

	return nil
}

func (e *Engine) computePenalty(ctx context.Context, verdict *model.Verdict, booking *model.Booking, roles []string) error {
	rule, err := e.resolveAndAudit(ctx, verdict, model.RulePenaltyPercent, roles)
	if err != nil {
		return err
	}

	var percent float64
	if rule != nil {
		if pct, ok := rule.Value().AsFloat(); ok {
			percent = pct
		}
	}

	amount := booking.TotalAmount * percent / 100

	verdict.Penalty = model.Penalty{
		Applies:          percent > 0,
		Percent:          percent,
		Amount:           amount,
		TotalWithPenalty: booking.TotalAmount + amount,
	}

	return nil
}
