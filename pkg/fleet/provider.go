package fleet

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openfleet/openfleet/pkg/faults"
)

// Provider is a read-only lookup of vehicle data by id.
// Unknown vehicle ids are reported as faults.KindNotFound.
type Provider interface {
	// Vehicle returns the vehicle profile.
	Vehicle(ctx context.Context, vehicleID string) (*Vehicle, error)

	// LatestSensors returns the most recent sensor snapshot.
	LatestSensors(ctx context.Context, vehicleID string) (*SensorSnapshot, error)

	// History returns maintenance records ordered by service date, oldest first.
	History(ctx context.Context, vehicleID string) ([]MaintenanceRecord, error)
}

// Dataset is the on-disk layout of a fleet fixture file.
type Dataset struct {
	Vehicles    []Vehicle           `yaml:"vehicles"`
	Sensors     []SensorSnapshot    `yaml:"sensors"`
	Maintenance []MaintenanceRecord `yaml:"maintenance"`
}

// MemoryProvider serves fleet data from memory.
type MemoryProvider struct {
	mu       sync.RWMutex
	vehicles map[string]Vehicle
	sensors  map[string]SensorSnapshot
	history  map[string][]MaintenanceRecord
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		vehicles: make(map[string]Vehicle),
		sensors:  make(map[string]SensorSnapshot),
		history:  make(map[string][]MaintenanceRecord),
	}
}

// LoadDataset reads a YAML dataset file into a new provider.
func LoadDataset(path string) (*MemoryProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	p := NewMemoryProvider()
	for i := range ds.Vehicles {
		p.PutVehicle(ds.Vehicles[i])
	}
	for i := range ds.Sensors {
		p.PutSensors(ds.Sensors[i])
	}
	for i := range ds.Maintenance {
		p.AddMaintenance(ds.Maintenance[i])
	}

	return p, nil
}

// PutVehicle adds or replaces a vehicle profile.
func (p *MemoryProvider) PutVehicle(v Vehicle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vehicles[v.ID] = v
}

// PutSensors stores a snapshot if it is newer than the one already held for the vehicle.
func (p *MemoryProvider) PutSensors(s SensorSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.sensors[s.VehicleID]; ok && cur.Timestamp.After(s.Timestamp) {
		return
	}
	p.sensors[s.VehicleID] = s
}

// AddMaintenance appends a maintenance record, keeping history ordered by service date.
func (p *MemoryProvider) AddMaintenance(r MaintenanceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := append(p.history[r.VehicleID], r)
	sort.SliceStable(h, func(i, j int) bool {
		return h[i].ServiceDate.Before(h[j].ServiceDate)
	})
	p.history[r.VehicleID] = h
}

// VehicleIDs returns all known vehicle ids in sorted order.
func (p *MemoryProvider) VehicleIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.vehicles))
	for id := range p.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Vehicle implements Provider.
func (p *MemoryProvider) Vehicle(_ context.Context, vehicleID string) (*Vehicle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.vehicles[vehicleID]
	if !ok {
		return nil, faults.NewNotFoundError("vehicle not found", nil).WithResource(vehicleID)
	}
	return &v, nil
}

// LatestSensors implements Provider.
func (p *MemoryProvider) LatestSensors(_ context.Context, vehicleID string) (*SensorSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.vehicles[vehicleID]; !ok {
		return nil, faults.NewNotFoundError("vehicle not found", nil).WithResource(vehicleID)
	}
	s, ok := p.sensors[vehicleID]
	if !ok {
		return nil, faults.NewNotFoundError("no sensor data for vehicle", nil).WithResource(vehicleID)
	}
	s.DiagnosticCodes = append([]string(nil), s.DiagnosticCodes...)
	return &s, nil
}

// History implements Provider. A known vehicle without records yields an empty slice.
func (p *MemoryProvider) History(_ context.Context, vehicleID string) ([]MaintenanceRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.vehicles[vehicleID]; !ok {
		return nil, faults.NewNotFoundError("vehicle not found", nil).WithResource(vehicleID)
	}
	return append([]MaintenanceRecord{}, p.history[vehicleID]...), nil
}

// AllHistory returns every maintenance record in the fleet, grouped by vehicle id
// and ordered by service date within each vehicle.
func (p *MemoryProvider) AllHistory(_ context.Context) ([]MaintenanceRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.history))
	for id := range p.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []MaintenanceRecord
	for _, id := range ids {
		out = append(out, p.history[id]...)
	}
	return out, nil
}
