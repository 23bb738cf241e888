package seed

import (
	"time"

	"tripdesk/pkg/model"
)

// Profile is a named, self-consistent set of reschedule rules.
type Profile struct {
	Name  string
	Rules []model.Rule
}

// Profiles are the shippable starting points. "basic" mirrors the built-in
// engine defaults, "strict" is for high-demand seasons, "flexible" for
// low-season goodwill.
var Profiles = map[string]Profile{
	"basic": {
		Name: "basic",
		Rules: []model.Rule{
			intRule("Minimum lead time", model.RuleMinLeadTime, model.RoleAll, 24, 100),
			intRule("Maximum lead time", model.RuleMaxLeadTime, model.RoleAll, 8760, 100),
			intRule("Reschedules per booking", model.RuleMaxReschedulesPerBooking, model.RoleAll, 3, 100),
			decimalRule("No penalty", model.RulePenaltyPercent, model.RoleAll, 0, 100),
		},
	},
	"strict": {
		Name: "strict",
		Rules: []model.Rule{
			intRule("Client minimum lead time", model.RuleMinLeadTime, model.RoleClient, 72, 10),
			intRule("Staff minimum lead time", model.RuleMinLeadTime, model.RoleOperatorOrAdmin, 12, 20),
			intRule("Maximum lead time", model.RuleMaxLeadTime, model.RoleAll, 4380, 100),
			intRule("One reschedule per booking", model.RuleMaxReschedulesPerBooking, model.RoleClient, 1, 10),
			intRule("Daily reschedule cap", model.RuleMaxReschedulesPerDay, model.RoleClient, 3, 10),
			textRule("No Sunday arrivals", model.RuleBlackoutDays, model.RoleAll, `["SUNDAY"]`, 100,
				"Arrivals cannot be moved to a Sunday."),
			textRule("No overnight arrivals", model.RuleBlackoutHours, model.RoleAll, `[0,1,2,3,4,5]`, 100,
				"Arrivals cannot be moved into overnight hours."),
			intRule("Date capacity", model.RuleMaxCapacityPerDate, model.RoleAll, 10, 100),
			decimalRule("Client reschedule penalty", model.RulePenaltyPercent, model.RoleClient, 10, 10),
		},
	},
	"flexible": {
		Name: "flexible",
		Rules: []model.Rule{
			intRule("Short lead time", model.RuleMinLeadTime, model.RoleAll, 6, 100),
			intRule("Maximum lead time", model.RuleMaxLeadTime, model.RoleAll, 8760, 100),
			intRule("Generous reschedule allowance", model.RuleMaxReschedulesPerBooking, model.RoleAll, 5, 100),
			decimalRule("No penalty", model.RulePenaltyPercent, model.RoleAll, 0, 100),
		},
	},
}

// DefaultGlobalConfig holds the system-wide toggles every installation
// starts with.
var DefaultGlobalConfig = []model.GlobalConfigEntry{
	{
		Key:         "EMAIL_NOTIFICATIONS",
		Value:       "true",
		Description: "Send client notifications after a committed reschedule",
		ValueType:   model.ConfigTypeBoolean,
		Active:      true,
	},
	{
		Key:         "SUPPORT_TICKETS",
		Value:       "true",
		Description: "Open a support ticket after a committed reschedule",
		ValueType:   model.ConfigTypeBoolean,
		Active:      true,
	},
	{
		Key:         "SUGGESTION_COUNT",
		Value:       "5",
		Description: "Default number of alternative dates to suggest",
		ValueType:   model.ConfigTypeInteger,
		Active:      true,
	},
}

func intRule(name, ruleType, role string, value int64, priority int) model.Rule {
	now := time.Now().UTC()
	return model.Rule{
		Name:           name,
		RuleType:       ruleType,
		ApplicableRole: role,
		IntValue:       &value,
		Active:         true,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func decimalRule(name, ruleType, role string, value float64, priority int) model.Rule {
	now := time.Now().UTC()
	return model.Rule{
		Name:           name,
		RuleType:       ruleType,
		ApplicableRole: role,
		DecimalValue:   &value,
		Active:         true,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func textRule(name, ruleType, role, value string, priority int, errorMessage string) model.Rule {
	now := time.Now().UTC()
	return model.Rule{
		Name:           name,
		RuleType:       ruleType,
		ApplicableRole: role,
		TextValue:      &value,
		Active:         true,
		Priority:       priority,
		ErrorMessage:   errorMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
