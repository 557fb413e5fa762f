package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Registry names the orchestrator looks workers up by. They match the
// workers' actor identities.
const (
	WorkerDataAnalysis          = policy.ActorDataAnalysis
	WorkerDiagnosis             = policy.ActorDiagnosis
	WorkerCustomerEngagement    = policy.ActorCustomerEngagement
	WorkerScheduling            = policy.ActorScheduling
	WorkerFeedback              = policy.ActorFeedback
	WorkerManufacturingInsights = policy.ActorManufacturingInsights
)

// WorkerRegistry maps names to workers.
type WorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewWorkerRegistry creates an empty registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{workers: make(map[string]Worker)}
}

// Register adds a worker under name, replacing any previous registration.
func (r *WorkerRegistry) Register(name string, w Worker) error {
	if name == "" {
		return faults.NewInvalidInputError("worker name is required", nil).WithOperation("register_worker")
	}
	if w == nil {
		return faults.NewInvalidInputError("worker is nil", nil).
			WithResource(name).
			WithOperation("register_worker")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[name] = w
	return nil
}

// Get returns the worker registered under name.
func (r *WorkerRegistry) Get(name string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[name]
	if !ok {
		return nil, faults.NewNotFoundError("worker not registered", nil).
			WithResource(name).
			WithOperation("get_worker")
	}
	return w, nil
}

// Names returns the registered worker names, sorted.
func (r *WorkerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for n := range r.workers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the worker registered under name as variant T.
// A worker of another variant is reported as invalid input.
func Lookup[T Worker](r *WorkerRegistry, name string) (T, error) {
	var zero T
	w, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := w.(T)
	if !ok {
		return zero, faults.NewInvalidInputError(
			fmt.Sprintf("worker %s does not implement %T", name, (*T)(nil)), nil).
			WithResource(name).
			WithOperation("lookup_worker")
	}
	return typed, nil
}
