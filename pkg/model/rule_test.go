package model

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64        { return &v }
func floatPtr(v float64) *float64    { return &v }
func strPtr(v string) *string        { return &v }
func boolPtr(v bool) *bool           { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestRuleValueDecode(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want ValueKind
	}{
		{"int value", Rule{IntValue: int64Ptr(24)}, ValueInt},
		{"decimal value", Rule{DecimalValue: floatPtr(10.5)}, ValueDecimal},
		{"bool value", Rule{BoolValue: boolPtr(true)}, ValueBool},
		{"plain text", Rule{TextValue: strPtr("SUNDAY")}, ValueText},
		{"json list", Rule{TextValue: strPtr(`["SUNDAY","MONDAY"]`)}, ValueList},
		{"json int list", Rule{TextValue: strPtr(`[0,1,2]`)}, ValueList},
		{"invalid json falls back to text", Rule{TextValue: strPtr(`[broken`)}, ValueText},
		{"empty rule", Rule{}, ValueNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Value().Kind; got != tt.want {
				t.Errorf("Value().Kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueAsStringList(t *testing.T) {
	rule := Rule{TextValue: strPtr(`["SUNDAY","SATURDAY"]`)}
	list, ok := rule.Value().AsStringList()
	if !ok {
		t.Fatal("AsStringList() failed on a valid string list")
	}
	if len(list) != 2 || list[0] != "SUNDAY" || list[1] != "SATURDAY" {
		t.Errorf("AsStringList() = %v", list)
	}

	mixed := Rule{TextValue: strPtr(`["SUNDAY", 3]`)}
	if _, ok := mixed.Value().AsStringList(); ok {
		t.Error("AsStringList() should fail on mixed element types")
	}
}

func TestValueAsIntList(t *testing.T) {
	rule := Rule{TextValue: strPtr(`[0,1,2,3]`)}
	list, ok := rule.Value().AsIntList()
	if !ok {
		t.Fatal("AsIntList() failed on a valid int list")
	}
	if len(list) != 4 || list[0] != 0 || list[3] != 3 {
		t.Errorf("AsIntList() = %v", list)
	}

	fractional := Rule{TextValue: strPtr(`[1.5]`)}
	if _, ok := fractional.Value().AsIntList(); ok {
		t.Error("AsIntList() should fail on fractional elements")
	}
}

func TestValueAsIntTruncatesDecimal(t *testing.T) {
	rule := Rule{DecimalValue: floatPtr(48.9)}
	got, ok := rule.Value().AsInt()
	if !ok || got != 48 {
		t.Errorf("AsInt() = %d, %v, want 48, true", got, ok)
	}
}

func TestRuleAppliesToRole(t *testing.T) {
	tests := []struct {
		applicable string
		role       string
		want       bool
	}{
		{RoleAll, RoleClient, true},
		{RoleAll, RoleAdmin, true},
		{RoleClient, RoleClient, true},
		{RoleClient, RoleOperator, false},
		{RoleClientOrOperator, RoleClient, true},
		{RoleClientOrOperator, RoleOperator, true},
		{RoleClientOrOperator, RoleAdmin, false},
		{RoleOperatorOrAdmin, RoleAdmin, true},
		{RoleOperatorOrAdmin, RoleOperator, true},
		{RoleOperatorOrAdmin, RoleClient, false},
	}

	for _, tt := range tests {
		rule := Rule{ApplicableRole: tt.applicable}
		if got := rule.AppliesToRole(tt.role); got != tt.want {
			t.Errorf("AppliesToRole(%s) with applicable_role=%s = %v, want %v",
				tt.role, tt.applicable, got, tt.want)
		}
	}
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{IntValue: int64Ptr(24)}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on a valid rule = %v", err)
	}

	empty := Rule{}
	if err := empty.Validate(); err != ErrRuleValueMissing {
		t.Errorf("Validate() on an empty rule = %v, want ErrRuleValueMissing", err)
	}

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(-time.Hour)
	inverted := Rule{IntValue: int64Ptr(1), ValidFrom: timePtr(from), ValidUntil: timePtr(until)}
	if err := inverted.Validate(); err != ErrRuleWindowInvalid {
		t.Errorf("Validate() with inverted window = %v, want ErrRuleWindowInvalid", err)
	}
}

func TestRuleMessage(t *testing.T) {
	custom := Rule{RuleType: RuleMinLeadTime, IntValue: int64Ptr(24), ErrorMessage: "Too close."}
	if got := custom.Message(); got != "Too close." {
		t.Errorf("Message() = %q, want the configured message", got)
	}

	derived := Rule{RuleType: RuleMinLeadTime, IntValue: int64Ptr(48)}
	if got := derived.Message(); got != "Bookings must be rescheduled at least 48 hours in advance." {
		t.Errorf("Message() = %q", got)
	}

	maxLead := Rule{RuleType: RuleMaxLeadTime, IntValue: int64Ptr(8760)}
	if got := maxLead.Message(); got != "Bookings cannot be rescheduled more than 365 days ahead." {
		t.Errorf("Message() = %q", got)
	}
}

func TestTicketPriorityForRescheduleCount(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{1, TicketPriorityLow},
		{2, TicketPriorityMedium},
		{3, TicketPriorityHigh},
		{7, TicketPriorityHigh},
	}
	for _, tt := range tests {
		if got := TicketPriorityForRescheduleCount(tt.count); got != tt.want {
			t.Errorf("TicketPriorityForRescheduleCount(%d) = %s, want %s", tt.count, got, tt.want)
		}
	}
}
