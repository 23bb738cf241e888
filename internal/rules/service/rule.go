package service

import (
	"context"
	"errors"
	"fmt"
	ruleserrors "tripdesk/internal/rules/errors"
	"tripdesk/internal/rules/repository"
	"tripdesk/internal/rules/validator"
	"tripdesk/pkg/config"
	apperrors "tripdesk/pkg/errors"
	"tripdesk/pkg/model"
)

// ConfigReport is the outcome of linting the active rule set as a whole.
type ConfigReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type RuleService interface {
	Create(ctx context.Context, rule *model.Rule) error
	GetByID(ctx context.Context, id string) (*model.Rule, error)
	GetAll(ctx context.Context, filter repository.RuleFilter, limit int, offset int64) ([]*model.Rule, int64, error)
	Update(ctx context.Context, id string, rule *model.Rule) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	ValidateConfig(ctx context.Context) (*ConfigReport, error)
	GetConfigEntry(ctx context.Context, key string) (*model.GlobalConfigEntry, error)
	UpsertConfigEntry(ctx context.Context, entry *model.GlobalConfigEntry) error
	ListConfigEntries(ctx context.Context) ([]*model.GlobalConfigEntry, error)
}

type ruleService struct {
	repo       repository.RuleRepository
	configRepo repository.GlobalConfigRepository
	validator  *validator.RuleValidator
	cfg        *config.Config
}

func NewRuleService(
	repo repository.RuleRepository,
	configRepo repository.GlobalConfigRepository,
	ruleValidator *validator.RuleValidator,
	cfg *config.Config,
) RuleService {
	return &ruleService{
		repo:       repo,
		configRepo: configRepo,
		validator:  ruleValidator,
		cfg:        cfg,
	}
}

func (s *ruleService) Create(ctx context.Context, rule *model.Rule) error {
	if err := s.validator.Validate(rule); err != nil {
		return apperrors.Validation("Rule validation failed", map[string]any{"errors": err.Error()})
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		if errors.Is(err, ruleserrors.ErrDuplicateActive) {
			return apperrors.Conflict(err.Error())
		}
		s.cfg.Log.Error("Failed to create rule", "error", err)
		return apperrors.Internal("Failed to create rule", err)
	}

	s.cfg.Log.Info("Rule created",
		"id", rule.ID,
		"rule_type", rule.RuleType,
		"applicable_role", rule.ApplicableRole,
		"priority", rule.Priority,
	)
	return nil
}

func (s *ruleService) GetByID(ctx context.Context, id string) (*model.Rule, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Rule ID cannot be empty")
	}

	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapRuleError(err, id)
	}

	return rule, nil
}

func (s *ruleService) GetAll(ctx context.Context, filter repository.RuleFilter, limit int, offset int64) ([]*model.Rule, int64, error) {
	rules, err := s.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list rules", "error", err)
		return nil, 0, apperrors.Internal("Failed to list rules", err)
	}

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.cfg.Log.Error("Failed to count rules", "error", err)
		return nil, 0, apperrors.Internal("Failed to count rules", err)
	}

	return rules, count, nil
}

func (s *ruleService) Update(ctx context.Context, id string, rule *model.Rule) error {
	if err := s.validator.Validate(rule); err != nil {
		return apperrors.Validation("Rule validation failed", map[string]any{"errors": err.Error()})
	}

	if err := s.repo.Update(ctx, id, rule); err != nil {
		if errors.Is(err, ruleserrors.ErrDuplicateActive) {
			return apperrors.Conflict(err.Error())
		}
		return mapRuleError(err, id)
	}

	s.cfg.Log.Info("Rule updated", "id", id, "rule_type", rule.RuleType)
	return nil
}

func (s *ruleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapRuleError(err, id)
	}

	s.cfg.Log.Info("Rule deleted", "id", id)
	return nil
}

func (s *ruleService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, ruleserrors.ErrDuplicateActive) {
			return apperrors.Conflict(err.Error())
		}
		return mapRuleError(err, id)
	}

	s.cfg.Log.Info("Rule active state changed", "id", id, "active", active)
	return nil
}

// ValidateConfig lints the active rule set for cross-rule inconsistencies
// that per-rule validation cannot see.
func (s *ruleService) ValidateConfig(ctx context.Context) (*ConfigReport, error) {
	rules, err := s.repo.ListActive(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to load active rules for config lint", "error", err)
		return nil, apperrors.Internal("Failed to load active rules", err)
	}

	report := &ConfigReport{
		Errors:   []string{},
		Warnings: []string{},
	}

	byType := make(map[string][]*model.Rule)
	for _, rule := range rules {
		byType[rule.RuleType] = append(byType[rule.RuleType], rule)
	}

	// A minimum lead window that meets or exceeds the maximum makes every
	// candidate date invalid for the affected role.
	for _, minRule := range byType[model.RuleMinLeadTime] {
		minHours, ok := minRule.Value().AsInt()
		if !ok {
			continue
		}
		for _, maxRule := range byType[model.RuleMaxLeadTime] {
			maxHours, ok := maxRule.Value().AsInt()
			if !ok {
				continue
			}
			if rolesOverlap(minRule, maxRule) && minHours >= maxHours {
				report.Errors = append(report.Errors, fmt.Sprintf(
					"minimum lead time (%dh, rule %q) is not below maximum lead time (%dh, rule %q)",
					minHours, minRule.Name, maxHours, maxRule.Name,
				))
			}
		}
	}

	for _, rule := range byType[model.RuleMaxReschedulesPerBooking] {
		if limit, ok := rule.Value().AsInt(); ok && limit > 10 {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"rule %q allows %d reschedules per booking, which is unusually permissive",
				rule.Name, limit,
			))
		}
	}

	seen := make(map[string]string)
	for _, rule := range rules {
		key := rule.RuleType + "/" + rule.ApplicableRole
		if prev, ok := seen[key]; ok {
			report.Errors = append(report.Errors, fmt.Sprintf(
				"rules %q and %q are both active for %s and role %s",
				prev, rule.Name, rule.RuleType, rule.ApplicableRole,
			))
			continue
		}
		seen[key] = rule.Name
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

func (s *ruleService) GetConfigEntry(ctx context.Context, key string) (*model.GlobalConfigEntry, error) {
	if key == "" {
		return nil, apperrors.InvalidInput("Config key cannot be empty")
	}

	entry, err := s.configRepo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ruleserrors.ErrConfigNotFound) {
			return nil, apperrors.NotFoundWithID("config entry", key)
		}
		return nil, apperrors.Internal("Failed to get config entry", err)
	}

	return entry, nil
}

func (s *ruleService) UpsertConfigEntry(ctx context.Context, entry *model.GlobalConfigEntry) error {
	if entry.Key == "" {
		return apperrors.InvalidInput("Config key cannot be empty")
	}
	if _, err := entry.TypedValue(); err != nil {
		return apperrors.Validation("Config value does not match its declared type", map[string]any{
			"key":   entry.Key,
			"error": err.Error(),
		})
	}

	if err := s.configRepo.Upsert(ctx, entry); err != nil {
		s.cfg.Log.Error("Failed to upsert config entry", "key", entry.Key, "error", err)
		return apperrors.Internal("Failed to upsert config entry", err)
	}

	s.cfg.Log.Info("Config entry upserted", "key", entry.Key)
	return nil
}

func (s *ruleService) ListConfigEntries(ctx context.Context) ([]*model.GlobalConfigEntry, error) {
	entries, err := s.configRepo.List(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list config entries", err)
	}
	return entries, nil
}

// rolesOverlap reports whether two rules can govern the same caller.
func rolesOverlap(a, b *model.Rule) bool {
	if a.ApplicableRole == model.RoleAll || b.ApplicableRole == model.RoleAll {
		return true
	}
	for _, role := range []string{model.RoleClient, model.RoleOperator, model.RoleAdmin} {
		if a.AppliesToRole(role) && b.AppliesToRole(role) {
			return true
		}
	}
	return false
}

func mapRuleError(err error, id string) error {
	switch {
	case errors.Is(err, ruleserrors.ErrNotFound):
		return apperrors.NotFoundWithID("rule", id)
	case errors.Is(err, ruleserrors.ErrInvalidID):
		return apperrors.InvalidInput(err.Error())
	default:
		return apperrors.Internal("Rule operation failed", err)
	}
}
