package resolver

import (
	"context"
	"tripdesk/internal/rules/repository"
	"tripdesk/pkg/logger"
	"tripdesk/pkg/model"
)

// FirstMatch walks the caller's roles in order, most specific first, and
// returns the first rule that governs one of them. The rules slice must be
// sorted by priority ascending; within a role the lowest priority wins.
// model.RoleAll is appended as the final fallback, so a generic rule only
// applies when no role-specific rule exists.
func FirstMatch(rules []*model.Rule, roles []string) *model.Rule {
	walk := make([]string, 0, len(roles)+1)
	walk = append(walk, roles...)
	walk = append(walk, model.RoleAll)

	for _, role := range walk {
		for _, rule := range rules {
			if rule.AppliesToRole(role) {
				return rule
			}
		}
	}

	return nil
}

// Resolver answers "which rule of this type applies to this caller". It is
// the single lookup path used by the engine, the recommendation search and
// the admin configuration lint.
type Resolver struct {
	repo repository.RuleRepository
	log  *logger.Logger
}

func NewResolver(repo repository.RuleRepository, log *logger.Logger) *Resolver {
	return &Resolver{repo: repo, log: log}
}

// Resolve returns the applicable rule of the given type for a single role,
// or nil when no active rule governs it.
func (r *Resolver) Resolve(ctx context.Context, ruleType string, role string) (*model.Rule, error) {
	return r.ResolveForRoles(ctx, ruleType, []string{role})
}

// ResolveForRoles walks the ordered role list and returns the first
// applicable rule, or nil when none governs the caller.
func (r *Resolver) ResolveForRoles(ctx context.Context, ruleType string, roles []string) (*model.Rule, error) {
	rules, err := r.repo.ListActiveByType(ctx, ruleType)
	if err != nil {
		return nil, err
	}

	return FirstMatch(rules, roles), nil
}

// ValueForRoles resolves the rule and decodes its value in one step. The
// second return reports whether a rule was found.
func (r *Resolver) ValueForRoles(ctx context.Context, ruleType string, roles []string) (model.Value, *model.Rule, error) {
	rule, err := r.ResolveForRoles(ctx, ruleType, roles)
	if err != nil {
		return model.Value{}, nil, err
	}
	if rule == nil {
		return model.Value{}, nil, nil
	}

	return rule.Value(), rule, nil
}
