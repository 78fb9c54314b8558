package file

import (
	"context"
	"sort"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

// Condition groups are stored as assembled trees, one file per root group.

func (fp *Persistence) ConditionGroups(ctx context.Context) ([]*models.ConditionGroup, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return listJSON[models.ConditionGroup](fp, dirConditionGroups)
}

func (fp *Persistence) ConditionGroupByID(ctx context.Context, id string) (*models.ConditionGroup, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var group models.ConditionGroup

	found, err := fp.readJSON(dirConditionGroups, id, &group)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("ConditionGroupByID", id, persistence.ErrConditionGroupNotFound)
	}

	return &group, nil
}

func (fp *Persistence) ConditionGroupsByStep(ctx context.Context, workflowStepID string) ([]*models.ConditionGroup, error) {
	groups, err := fp.ConditionGroups(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ConditionGroup, 0)

	for _, group := range groups {
		if group.WorkflowStepID == workflowStepID && group.Active {
			matched = append(matched, group)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (fp *Persistence) SaveConditionGroup(ctx context.Context, group *models.ConditionGroup) error {
	if err := group.Validate(); err != nil {
		return persistence.NewStoreError("SaveConditionGroup", group.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := nowUTC()

	if group.ID == "" {
		group.ID = newID()
		group.CreatedAt = now
	}

	group.UpdatedAt = now

	return fp.writeJSON(dirConditionGroups, group.ID, group)
}

// DeactivateConditionGroup soft-deactivates; groups referenced by ledger
// history are never hard-deleted.
func (fp *Persistence) DeactivateConditionGroup(ctx context.Context, id string) error {
	group, err := fp.ConditionGroupByID(ctx, id)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := nowUTC()
	group.Active = false
	group.DeactivatedAt = &now
	group.UpdatedAt = now

	return fp.writeJSON(dirConditionGroups, id, group)
}

func (fp *Persistence) ActionsByGroup(ctx context.Context, groupID string) ([]*models.ConditionalAction, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	actions, err := listJSON[models.ConditionalAction](fp, dirActions)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ConditionalAction, 0)

	for _, action := range actions {
		if action.GroupID == groupID && action.DeactivatedAt == nil {
			matched = append(matched, action)
		}
	}

	// Ascending execution order, ties broken by creation time.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ExecutionOrder != matched[j].ExecutionOrder {
			return matched[i].ExecutionOrder < matched[j].ExecutionOrder
		}

		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (fp *Persistence) SaveAction(ctx context.Context, action *models.ConditionalAction) error {
	if err := action.Validate(); err != nil {
		return persistence.NewStoreError("SaveAction", action.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := nowUTC()

	if action.ID == "" {
		action.ID = newID()
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	return fp.writeJSON(dirActions, action.ID, action)
}

func (fp *Persistence) DeactivateAction(ctx context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var action models.ConditionalAction

	found, err := fp.readJSON(dirActions, id, &action)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewStoreError("DeactivateAction", id, persistence.ErrActionNotFound)
	}

	now := nowUTC()
	action.Enabled = false
	action.DeactivatedAt = &now
	action.UpdatedAt = now

	return fp.writeJSON(dirActions, id, &action)
}

func (fp *Persistence) EscalationRules(ctx context.Context) ([]*models.EscalationRule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return listJSON[models.EscalationRule](fp, dirEscalationRules)
}

func (fp *Persistence) EscalationRuleByID(ctx context.Context, id string) (*models.EscalationRule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var rule models.EscalationRule

	found, err := fp.readJSON(dirEscalationRules, id, &rule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("EscalationRuleByID", id, persistence.ErrEscalationRuleNotFound)
	}

	return &rule, nil
}

func (fp *Persistence) ActiveEscalationRules(ctx context.Context) ([]*models.EscalationRule, error) {
	rules, err := fp.EscalationRules(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.EscalationRule, 0, len(rules))

	for _, rule := range rules {
		if rule.Active && rule.DeactivatedAt == nil {
			active = append(active, rule)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active, nil
}

func (fp *Persistence) SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	if err := rule.Validate(); err != nil {
		return persistence.NewStoreError("SaveEscalationRule", rule.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := nowUTC()

	if rule.ID == "" {
		rule.ID = newID()
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	return fp.writeJSON(dirEscalationRules, rule.ID, rule)
}

func (fp *Persistence) DeactivateEscalationRule(ctx context.Context, id string) error {
	rule, err := fp.EscalationRuleByID(ctx, id)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := nowUTC()
	rule.Active = false
	rule.DeactivatedAt = &now
	rule.UpdatedAt = now

	return fp.writeJSON(dirEscalationRules, id, rule)
}
