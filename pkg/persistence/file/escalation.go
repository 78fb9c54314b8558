package file

import (
	"context"
	"sort"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

// CreatePendingInstance is the insert-if-absent guard. The write lock makes
// the existence check and the write a single atomic step, mirroring the
// partial unique index the postgresql backend relies on.
func (fp *Persistence) CreatePendingInstance(ctx context.Context, instance *models.EscalationInstance) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	instances, err := listJSON[models.EscalationInstance](fp, dirEscalationInstances)
	if err != nil {
		return err
	}

	for _, existing := range instances {
		if existing.RuleID == instance.RuleID &&
			existing.StepInstanceID == instance.StepInstanceID &&
			existing.Status == models.EscalationPending {
			return persistence.NewStoreError("CreatePendingInstance", instance.ID, persistence.ErrDuplicatePending)
		}
	}

	now := nowUTC()

	if instance.ID == "" {
		instance.ID = newID()
	}

	instance.Status = models.EscalationPending
	instance.CreatedAt = now
	instance.UpdatedAt = now

	return fp.writeJSON(dirEscalationInstances, instance.ID, instance)
}

func (fp *Persistence) UpdateEscalationInstance(ctx context.Context, instance *models.EscalationInstance) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var existing models.EscalationInstance

	found, err := fp.readJSON(dirEscalationInstances, instance.ID, &existing)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewStoreError("UpdateEscalationInstance", instance.ID, persistence.ErrEscalationInstanceNotFound)
	}

	instance.CreatedAt = existing.CreatedAt
	instance.UpdatedAt = nowUTC()

	return fp.writeJSON(dirEscalationInstances, instance.ID, instance)
}

func (fp *Persistence) EscalationInstanceByID(ctx context.Context, id string) (*models.EscalationInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var instance models.EscalationInstance

	found, err := fp.readJSON(dirEscalationInstances, id, &instance)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("EscalationInstanceByID", id, persistence.ErrEscalationInstanceNotFound)
	}

	return &instance, nil
}

// OpenInstance returns the pending or triggered instance for the pair, or
// nil when none exists.
func (fp *Persistence) OpenInstance(ctx context.Context, ruleID, stepInstanceID string) (*models.EscalationInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	instances, err := listJSON[models.EscalationInstance](fp, dirEscalationInstances)
	if err != nil {
		return nil, err
	}

	for _, instance := range instances {
		if instance.RuleID == ruleID && instance.StepInstanceID == stepInstanceID && instance.Open() {
			return instance, nil
		}
	}

	return nil, nil
}

func (fp *Persistence) ListEscalationInstances(ctx context.Context, filter persistence.EscalationInstanceFilter) ([]*models.EscalationInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	instances, err := listJSON[models.EscalationInstance](fp, dirEscalationInstances)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.EscalationInstance, 0)

	for _, instance := range instances {
		if filter.RuleID != "" && instance.RuleID != filter.RuleID {
			continue
		}

		if filter.StepInstanceID != "" && instance.StepInstanceID != filter.StepInstanceID {
			continue
		}

		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}

		matched = append(matched, instance)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (fp *Persistence) OpenInstancesByStepInstance(ctx context.Context, stepInstanceID string) ([]*models.EscalationInstance, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	instances, err := listJSON[models.EscalationInstance](fp, dirEscalationInstances)
	if err != nil {
		return nil, err
	}

	open := make([]*models.EscalationInstance, 0)

	for _, instance := range instances {
		if instance.StepInstanceID == stepInstanceID && instance.Open() {
			open = append(open, instance)
		}
	}

	return open, nil
}
