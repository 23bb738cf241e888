package model

import "time"

// Availability describes service-level conflicts on a candidate date. It is
// informational and computed on every evaluation, independent of rule
// violations.
type Availability struct {
	Available           bool     `json:"available"`
	Conflicts           int      `json:"conflicts"`
	ConflictingServices []string `json:"conflicting_services"`
}

// Penalty describes the economic cost of committing a reschedule.
type Penalty struct {
	Applies          bool    `json:"applies"`
	Percent          float64 `json:"percent"`
	Amount           float64 `json:"amount"`
	TotalWithPenalty float64 `json:"total_with_penalty"`
}

// AppliedRule records which rule governed a rule type during an evaluation.
// Collected for audit output, not enforcement.
type AppliedRule struct {
	RuleType string `json:"rule_type"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
	Priority int    `json:"priority"`
}

// VerdictMetadata captures the evaluation context.
type VerdictMetadata struct {
	Roles          []string  `json:"roles"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
	RulesEvaluated int       `json:"rules_evaluated"`
}

// Verdict is the structured result of evaluating a candidate reschedule
// against every active rule. Violations are data, never errors.
type Verdict struct {
	Valid        bool            `json:"valid"`
	Errors       []string        `json:"errors"`
	Warnings     []string        `json:"warnings"`
	Availability Availability    `json:"availability"`
	Penalty      Penalty         `json:"penalty"`
	AppliedRules []AppliedRule   `json:"applied_rules"`
	Metadata     VerdictMetadata `json:"metadata"`
}

// Suggestion is one ranked alternative date produced by the recommendation
// search.
type Suggestion struct {
	CandidateTime time.Time `json:"candidate_time"`
	Available     bool      `json:"available"`
	Conflicts     int       `json:"conflicts"`
	Penalty       Penalty   `json:"penalty"`
	Score         float64   `json:"score"`
}
