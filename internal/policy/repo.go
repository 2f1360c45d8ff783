package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/internal/repo"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
)

// Repository reads handoff policies and their rules.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// ActiveRules returns the active rules of active policies. Rules with undecodable
// criteria are skipped and reported in the returned slice of errors.
func (r *Repository) ActiveRules(ctx context.Context) ([]Rule, []error, error) {
	var policies []models.HandoffPolicy
	if err := r.DB(ctx).Where("active = ?", true).Find(&policies).Error; err != nil {
		return nil, nil, fmt.Errorf("load policies: %w", err)
	}
	if len(policies) == 0 {
		return []Rule{}, nil, nil
	}

	byID := make(map[uuid.UUID]models.HandoffPolicy, len(policies))
	ids := make([]uuid.UUID, 0, len(policies))
	for _, p := range policies {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	var rows []models.PolicyRule
	err := r.DB(ctx).
		Where("active = ? AND policy_id IN ?", true, ids).
		Order("priority DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load policy rules: %w", err)
	}

	rules := make([]Rule, 0, len(rows))
	var skipped []error
	for _, row := range rows {
		rule, err := toRule(byID[row.PolicyID], row)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, skipped, nil
}

func toRule(p models.HandoffPolicy, row models.PolicyRule) (Rule, error) {
	if !row.TriggerType.IsValid() {
		return Rule{}, fmt.Errorf("rule %s: unknown trigger type %q", row.ID, row.TriggerType)
	}
	rule := Rule{
		ID:             row.ID,
		PolicyID:       p.ID,
		PolicyName:     p.Name,
		ReasonCode:     p.ReasonCode,
		RequiredSkills: []string(p.RequiredSkills.Normalized()),
		TriggerType:    row.TriggerType,
		Priority:       row.Priority,
	}
	if err := decodeCriteria(row.Criteria, &rule); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	return rule, nil
}

func decodeCriteria(c dbtypes.JSONMap, rule *Rule) error {
	if raw, ok := c["threshold"]; ok && raw != nil {
		switch v := raw.(type) {
		case float64:
			rule.Threshold = &v
		case int:
			f := float64(v)
			rule.Threshold = &f
		default:
			return fmt.Errorf("threshold must be a number, got %T", raw)
		}
	}
	if raw, ok := c["flags"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("flags must be a list, got %T", raw)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("flag entries must be strings, got %T", item)
			}
			rule.Flags = append(rule.Flags, s)
		}
	}
	if raw, ok := c["retryable"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("retryable must be a boolean, got %T", raw)
		}
		rule.Retryable = &b
	}
	return nil
}
