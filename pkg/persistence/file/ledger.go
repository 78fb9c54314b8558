package file

import (
	"context"
	"errors"
	"sort"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
)

// Ledger records are append-only: one file per record, never rewritten.

func (fp *Persistence) RecordEvaluation(ctx context.Context, record *models.ConditionEvaluation) error {
	if record.GroupID == "" || record.StepInstanceID == "" {
		return errors.New("evaluation record requires group and step instance ids")
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if record.ID == "" {
		record.ID = newID()
	}

	if record.EvaluatedAt.IsZero() {
		record.EvaluatedAt = nowUTC()
	}

	return fp.writeJSON(dirEvaluations, record.ID, record)
}

func (fp *Persistence) RecordExecution(ctx context.Context, record *models.ActionExecution) error {
	if record.ActionID == "" || record.StepInstanceID == "" {
		return errors.New("execution record requires action and step instance ids")
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if record.ID == "" {
		record.ID = newID()
	}

	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = nowUTC()
	}

	return fp.writeJSON(dirExecutions, record.ID, record)
}

func (fp *Persistence) EvaluationsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ConditionEvaluation, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := listJSON[models.ConditionEvaluation](fp, dirEvaluations)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ConditionEvaluation, 0)

	for _, record := range records {
		if record.StepInstanceID == stepInstanceID && timeRange.Contains(record.EvaluatedAt) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EvaluatedAt.Before(matched[j].EvaluatedAt)
	})

	return matched, nil
}

func (fp *Persistence) ExecutionsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := listJSON[models.ActionExecution](fp, dirExecutions)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ActionExecution, 0)

	for _, record := range records {
		if record.StepInstanceID == stepInstanceID && timeRange.Contains(record.ExecutedAt) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ExecutedAt.Before(matched[j].ExecutedAt)
	})

	return matched, nil
}

func (fp *Persistence) ExecutionsByAction(ctx context.Context, actionID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := listJSON[models.ActionExecution](fp, dirExecutions)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.ActionExecution, 0)

	for _, record := range records {
		if record.ActionID == actionID && timeRange.Contains(record.ExecutedAt) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ExecutedAt.Before(matched[j].ExecutedAt)
	})

	return matched, nil
}

func (fp *Persistence) HasSucceededExecution(ctx context.Context, actionID, stepInstanceID, eventID string) (bool, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	records, err := listJSON[models.ActionExecution](fp, dirExecutions)
	if err != nil {
		return false, err
	}

	for _, record := range records {
		if record.ActionID == actionID &&
			record.StepInstanceID == stepInstanceID &&
			record.EventID == eventID &&
			record.Status == models.ExecutionSucceeded {
			return true, nil
		}
	}

	return false, nil
}
