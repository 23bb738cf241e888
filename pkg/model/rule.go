package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Rule types form a closed enumeration. Each type is evaluated by a
// dedicated step in the reschedule engine.
const (
	RuleMinLeadTime              = "MIN_LEAD_TIME"
	RuleMaxLeadTime              = "MAX_LEAD_TIME"
	RuleMaxReschedulesPerBooking = "MAX_RESCHEDULES_PER_BOOKING"
	RuleMaxReschedulesPerDay     = "MAX_RESCHEDULES_PER_DAY"
	RuleMaxReschedulesPerWeek    = "MAX_RESCHEDULES_PER_WEEK"
	RuleMaxReschedulesPerMonth   = "MAX_RESCHEDULES_PER_MONTH"
	RuleBlackoutDays             = "BLACKOUT_DAYS"
	RuleBlackoutHours            = "BLACKOUT_HOURS"
	RuleMaxCapacityPerDate       = "MAX_CAPACITY_PER_DATE"
	RulePenaltyPercent           = "PENALTY_PERCENT"
	RuleRestrictedServices       = "RESTRICTED_SERVICES"
	RuleRolesExempt              = "ROLES_EXEMPT"
)

// RuleTypes lists every known rule type in evaluation/audit order.
var RuleTypes = []string{
	RuleMinLeadTime,
	RuleMaxLeadTime,
	RuleMaxReschedulesPerBooking,
	RuleMaxReschedulesPerDay,
	RuleMaxReschedulesPerWeek,
	RuleMaxReschedulesPerMonth,
	RuleBlackoutDays,
	RuleBlackoutHours,
	RuleMaxCapacityPerDate,
	RulePenaltyPercent,
	RuleRestrictedServices,
	RuleRolesExempt,
}

const (
	RoleAll              = "ALL"
	RoleClient           = "CLIENT"
	RoleOperator         = "OPERATOR"
	RoleAdmin            = "ADMIN"
	RoleClientOrOperator = "CLIENT_OR_OPERATOR"
	RoleOperatorOrAdmin  = "OPERATOR_OR_ADMIN"
)

// Rule is one configurable reschedule policy constraint. Exactly one of the
// four value fields is expected to be populated; Value() decodes whichever
// one is set.
type Rule struct {
	ID              string     `json:"id,omitempty" bson:"_id,omitempty"`
	Name            string     `json:"name" bson:"name" validate:"required,min=2,max=100"`
	RuleType        string     `json:"rule_type" bson:"rule_type" validate:"required,oneof=MIN_LEAD_TIME MAX_LEAD_TIME MAX_RESCHEDULES_PER_BOOKING MAX_RESCHEDULES_PER_DAY MAX_RESCHEDULES_PER_WEEK MAX_RESCHEDULES_PER_MONTH BLACKOUT_DAYS BLACKOUT_HOURS MAX_CAPACITY_PER_DATE PENALTY_PERCENT RESTRICTED_SERVICES ROLES_EXEMPT"`
	ApplicableRole  string     `json:"applicable_role" bson:"applicable_role" validate:"required,oneof=ALL CLIENT OPERATOR ADMIN CLIENT_OR_OPERATOR OPERATOR_OR_ADMIN"`
	IntValue        *int64     `json:"int_value,omitempty" bson:"int_value,omitempty"`
	DecimalValue    *float64   `json:"decimal_value,omitempty" bson:"decimal_value,omitempty"`
	TextValue       *string    `json:"text_value,omitempty" bson:"text_value,omitempty"`
	BoolValue       *bool      `json:"bool_value,omitempty" bson:"bool_value,omitempty"`
	ValidFrom       *time.Time `json:"valid_from,omitempty" bson:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty" bson:"valid_until,omitempty"`
	Active          bool       `json:"active" bson:"active"`
	Priority        int        `json:"priority" bson:"priority" validate:"required,min=1"`
	ErrorMessage    string     `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ExtraConditions bson.M     `json:"extra_conditions,omitempty" bson:"extra_conditions,omitempty"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

var (
	ErrRuleValueMissing  = errors.New("rule must define at least one value")
	ErrRuleWindowInvalid = errors.New("valid_from must be before valid_until")
)

// Validate enforces the structural invariants that the rule store checks at
// write time: a populated value and a coherent validity window.
func (r *Rule) Validate() error {
	if r.IntValue == nil && r.DecimalValue == nil && r.BoolValue == nil &&
		(r.TextValue == nil || *r.TextValue == "") {
		return ErrRuleValueMissing
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidFrom.Before(*r.ValidUntil) {
		return ErrRuleWindowInvalid
	}
	return nil
}

// AppliesToRole reports whether this rule governs the given caller role.
func (r *Rule) AppliesToRole(role string) bool {
	switch r.ApplicableRole {
	case RoleAll:
		return true
	case role:
		return true
	case RoleClientOrOperator:
		return role == RoleClient || role == RoleOperator
	case RoleOperatorOrAdmin:
		return role == RoleOperator || role == RoleAdmin
	}
	return false
}

// ValueKind tags the decoded rule value variant.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueDecimal
	ValueText
	ValueBool
	ValueList
)

// Value is the decoded form of a rule's polymorphic value. The four nullable
// storage fields collapse into a single tagged variant here so callers never
// probe raw columns.
type Value struct {
	Kind    ValueKind
	Int     int64
	Decimal float64
	Text    string
	Bool    bool
	List    []any
}

// Value decodes the populated storage field. Text values are attempted as
// structured JSON first and fall back to the raw string; this is the single
// decode step for the whole engine.
func (r *Rule) Value() Value {
	switch {
	case r.IntValue != nil:
		return Value{Kind: ValueInt, Int: *r.IntValue}
	case r.DecimalValue != nil:
		return Value{Kind: ValueDecimal, Decimal: *r.DecimalValue}
	case r.BoolValue != nil:
		return Value{Kind: ValueBool, Bool: *r.BoolValue}
	case r.TextValue != nil && *r.TextValue != "":
		var decoded any
		if err := json.Unmarshal([]byte(*r.TextValue), &decoded); err == nil {
			if list, ok := decoded.([]any); ok {
				return Value{Kind: ValueList, List: list}
			}
		}
		return Value{Kind: ValueText, Text: *r.TextValue}
	}
	return Value{}
}

// AsInt returns the value as an integer. Decimal values truncate, matching
// how limits were applied in the legacy configuration.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case ValueInt:
		return v.Int, true
	case ValueDecimal:
		return int64(v.Decimal), true
	}
	return 0, false
}

func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case ValueInt:
		return float64(v.Int), true
	case ValueDecimal:
		return v.Decimal, true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.Kind == ValueBool {
		return v.Bool, true
	}
	return false, false
}

// AsStringList returns the value as a list of strings. Non-string elements
// make the whole conversion fail; blackout evaluation treats that as a
// malformed rule.
func (v Value) AsStringList() ([]string, bool) {
	if v.Kind != ValueList {
		return nil, false
	}
	out := make([]string, 0, len(v.List))
	for _, item := range v.List {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// AsIntList returns the value as a list of integers. JSON numbers decode as
// float64, so each element is checked for a whole value.
func (v Value) AsIntList() ([]int, bool) {
	if v.Kind != ValueList {
		return nil, false
	}
	out := make([]int, 0, len(v.List))
	for _, item := range v.List {
		f, ok := item.(float64)
		if !ok || f != float64(int(f)) {
			return nil, false
		}
		out = append(out, int(f))
	}
	return out, true
}

// Raw returns the decoded value for audit payloads.
func (v Value) Raw() any {
	switch v.Kind {
	case ValueInt:
		return v.Int
	case ValueDecimal:
		return v.Decimal
	case ValueText:
		return v.Text
	case ValueBool:
		return v.Bool
	case ValueList:
		return v.List
	}
	return nil
}

// Message returns the rule's custom violation message, or a type-specific
// default when none was configured.
func (r *Rule) Message() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	v := r.Value()
	switch r.RuleType {
	case RuleMinLeadTime:
		if hours, ok := v.AsInt(); ok {
			return fmt.Sprintf("Bookings must be rescheduled at least %d hours in advance.", hours)
		}
		return "The new date is too close to now."
	case RuleMaxLeadTime:
		if hours, ok := v.AsInt(); ok {
			return fmt.Sprintf("Bookings cannot be rescheduled more than %d days ahead.", hours/24)
		}
		return "The new date is too far in the future."
	case RuleMaxReschedulesPerBooking:
		if limit, ok := v.AsInt(); ok {
			return fmt.Sprintf("This booking has reached its limit of %d reschedules.", limit)
		}
		return "This booking cannot be rescheduled again."
	case RuleMaxReschedulesPerDay:
		if limit, ok := v.AsInt(); ok {
			return fmt.Sprintf("You have reached the daily limit of %d reschedules.", limit)
		}
		return "Daily reschedule limit reached."
	case RuleMaxReschedulesPerWeek:
		return "Weekly reschedule limit reached."
	case RuleMaxReschedulesPerMonth:
		return "Monthly reschedule limit reached."
	case RuleBlackoutDays:
		return "Rescheduling is not allowed on the selected day."
	case RuleBlackoutHours:
		return "Rescheduling is not allowed at the selected hour."
	case RuleMaxCapacityPerDate:
		return "The selected date has reached its maximum capacity."
	case RulePenaltyPercent:
		return "A penalty applies when rescheduling this booking."
	case RuleRestrictedServices:
		return "One of the booked services is restricted from rescheduling."
	}
	return fmt.Sprintf("Rule %s was violated.", strings.ToLower(r.RuleType))
}
