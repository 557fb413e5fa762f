package engine

import (
	"context"
	"sync"
)

// DefaultMaxParallel bounds OrchestrateMany when no limit is given.
const DefaultMaxParallel = 4

// BatchResult is the outcome of one vehicle in OrchestrateMany.
type BatchResult struct {
	VehicleID string
	Workflow  *Workflow
	Err       error
}

// OrchestrateMany runs Orchestrate for each vehicle with at most maxParallel
// pipelines in flight. Results are returned in input order. Vehicles not yet
// started when ctx is done are reported with ctx.Err(); pipelines already
// running are never interrupted.
func (o *Orchestrator) OrchestrateMany(ctx context.Context, vehicleIDs []string, maxParallel int) []BatchResult {
	results := make([]BatchResult, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return results
	}

	workerCount := maxParallel
	if workerCount <= 0 {
		workerCount = DefaultMaxParallel
	}
	if len(vehicleIDs) < workerCount {
		workerCount = len(vehicleIDs)
	}

	// Create work queue
	workQueue := make(chan int, len(vehicleIDs))
	for i := range vehicleIDs {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for idx := range workQueue {
				vehicleID := vehicleIDs[idx]
				results[idx].VehicleID = vehicleID

				select {
				case <-ctx.Done():
					results[idx].Err = ctx.Err()
					continue
				default:
				}

				wf, err := o.Orchestrate(ctx, vehicleID)
				results[idx].Workflow = wf
				results[idx].Err = err
			}
		}()
	}

	wg.Wait()

	o.logger.Info().
		Int("vehicles", len(vehicleIDs)).
		Int("parallel", workerCount).
		Msg("Batch orchestration finished")
	return results
}
