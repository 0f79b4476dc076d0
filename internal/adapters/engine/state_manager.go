package engine

import (
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// stateManager persists runs, steps, and definitions. Run rows are
// shadowed by a status index key so listing by status is a prefix scan
// instead of a full table walk.
type stateManager struct {
	storage ports.StoragePort
}

func newStateManager(storage ports.StoragePort) *stateManager {
	return &stateManager{storage: storage}
}

func (sm *stateManager) saveDefinition(def *domain.WorkflowDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return sm.storage.Put(domain.DefinitionKey(def.ID), data)
}

func (sm *stateManager) loadDefinition(definitionID string) (*domain.WorkflowDefinition, error) {
	data, exists, err := sm.storage.Get(domain.DefinitionKey(definitionID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NewNotFoundError("definition", definitionID)
	}

	var def domain.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (sm *stateManager) saveRun(run *domain.Run, previousStatus domain.RunStatus) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	ops := []ports.WriteOp{
		{Type: ports.OpPut, Key: domain.RunStateKey(run.ID), Value: data},
		{Type: ports.OpPut, Key: domain.RunStatusIndexKey(run.Status, run.ID), Value: []byte(run.ID)},
	}
	if previousStatus != "" && previousStatus != run.Status {
		ops = append(ops, ports.WriteOp{
			Type: ports.OpDelete,
			Key:  domain.RunStatusIndexKey(previousStatus, run.ID),
		})
	}
	return sm.storage.BatchWrite(ops)
}

func (sm *stateManager) loadRun(runID string) (*domain.Run, error) {
	data, exists, err := sm.storage.Get(domain.RunStateKey(runID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NewNotFoundError("run", runID)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (sm *stateManager) saveStep(step *domain.Step) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}
	return sm.storage.Put(domain.StepKey(step.RunID, step.NodeID), data)
}

func (sm *stateManager) loadStep(runID, nodeID string) (*domain.Step, bool, error) {
	data, exists, err := sm.storage.Get(domain.StepKey(runID, nodeID))
	if err != nil || !exists {
		return nil, false, err
	}

	var step domain.Step
	if err := json.Unmarshal(data, &step); err != nil {
		return nil, false, err
	}
	return &step, true, nil
}

func (sm *stateManager) loadSteps(runID string) (map[string]*domain.Step, error) {
	rows, err := sm.storage.ListByPrefix(domain.StepPrefix(runID))
	if err != nil {
		return nil, err
	}

	steps := make(map[string]*domain.Step, len(rows))
	for _, row := range rows {
		var step domain.Step
		if err := json.Unmarshal(row.Value, &step); err != nil {
			return nil, err
		}
		steps[step.NodeID] = &step
	}
	return steps, nil
}

func (sm *stateManager) saveAttempt(record *domain.AttemptRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return sm.storage.Put(domain.AttemptHistoryKey(record.RunID, record.NodeID, record.Attempt), data)
}

func (sm *stateManager) listAttempts(runID, nodeID string) ([]*domain.AttemptRecord, error) {
	rows, err := sm.storage.ListByPrefix(domain.AttemptHistoryPrefix(runID, nodeID))
	if err != nil {
		return nil, err
	}

	records := make([]*domain.AttemptRecord, 0, len(rows))
	for _, row := range rows {
		var record domain.AttemptRecord
		if err := json.Unmarshal(row.Value, &record); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	return records, nil
}

// listRuns returns runs filtered by status, newest-id-last, honoring
// offset/limit. An empty status lists every run.
func (sm *stateManager) listRuns(status domain.RunStatus, offset, limit int) ([]*domain.Run, error) {
	var ids []string
	if status == "" {
		rows, err := sm.storage.ListByPrefix("run:state:")
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids = append(ids, strings.TrimPrefix(row.Key, "run:state:"))
		}
	} else {
		rows, err := sm.storage.ListByPrefix(domain.RunStatusIndexKey(status, ""))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids = append(ids, string(row.Value))
		}
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	runs := make([]*domain.Run, 0, len(ids))
	for _, id := range ids {
		run, err := sm.loadRun(id)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (sm *stateManager) countRuns(status domain.RunStatus) (int, error) {
	return sm.storage.CountPrefix(domain.RunStatusIndexKey(status, ""))
}
