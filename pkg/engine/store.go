package engine

import (
	"sort"
	"sync"

	"github.com/openfleet/openfleet/pkg/faults"
)

// WorkflowStore holds every workflow for the lifetime of the process.
// The map lock guards membership only; each record carries its own lock so
// workflows progress independently.
type WorkflowStore struct {
	mu      sync.RWMutex
	records map[string]*workflowRecord
}

type workflowRecord struct {
	mu sync.Mutex
	wf *Workflow
}

// NewWorkflowStore creates an empty store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{records: make(map[string]*workflowRecord)}
}

// Create stores a new workflow.
func (s *WorkflowStore) Create(wf *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[wf.ID]; exists {
		return faults.NewInvalidInputError("workflow already exists", nil).
			WithResource(wf.ID).
			WithOperation("create_workflow")
	}
	s.records[wf.ID] = &workflowRecord{wf: wf.clone()}
	return nil
}

// Get returns a copy of the workflow.
func (s *WorkflowStore) Get(id string) (*Workflow, error) {
	rec, err := s.record(id, "get_workflow")
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.wf.clone(), nil
}

// Update applies fn to a started workflow under the record lock and returns
// a copy of the result. Terminal workflows are rejected before fn runs.
func (s *WorkflowStore) Update(id, operation string, fn func(*Workflow)) (*Workflow, error) {
	rec, err := s.record(id, operation)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.wf.Status.IsTerminal() {
		return nil, faults.NewAlreadyTerminalError("workflow is "+string(rec.wf.Status), nil).
			WithResource(id).
			WithOperation(operation)
	}
	fn(rec.wf)
	return rec.wf.clone(), nil
}

// List returns copies of all workflows ordered by start time, then id.
func (s *WorkflowStore) List() []*Workflow {
	return s.filter(func(*Workflow) bool { return true })
}

// ListByStatus returns copies of the workflows in the given status.
func (s *WorkflowStore) ListByStatus(status WorkflowStatus) []*Workflow {
	return s.filter(func(wf *Workflow) bool { return wf.Status == status })
}

// Len returns the number of stored workflows.
func (s *WorkflowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *WorkflowStore) record(id, operation string) (*workflowRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, faults.NewNotFoundError("workflow not found", nil).
			WithResource(id).
			WithOperation(operation)
	}
	return rec, nil
}

func (s *WorkflowStore) filter(keep func(*Workflow) bool) []*Workflow {
	s.mu.RLock()
	recs := make([]*workflowRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]*Workflow, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if keep(rec.wf) {
			out = append(out, rec.wf.clone())
		}
		rec.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
