package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/policy"
)

// Appointment states.
const (
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
)

const (
	lookaheadDays = 7
	slotsPerDay   = 3
	dateLayout    = "2006-01-02"
)

// ServiceCenter is a workshop that accepts appointments.
type ServiceCenter struct {
	ID              string `json:"id" yaml:"id" validate:"required"`
	Name            string `json:"name" yaml:"name" validate:"required"`
	Location        string `json:"location" yaml:"location"`
	OpenHour        int    `json:"open_hour" yaml:"open_hour" validate:"gte=0,lte=23"`
	CloseHour       int    `json:"close_hour" yaml:"close_hour" validate:"gtfield=OpenHour,lte=24"`
	CapacityPerHour int    `json:"capacity_per_hour" yaml:"capacity_per_hour" validate:"gt=0"`
}

// DefaultServiceCenters returns the built-in workshop network.
func DefaultServiceCenters() []ServiceCenter {
	return []ServiceCenter{
		{ID: "SC001", Name: "Mumbai Service Center", Location: "Mumbai", OpenHour: 9, CloseHour: 18, CapacityPerHour: 4},
		{ID: "SC002", Name: "Delhi Service Center", Location: "Delhi", OpenHour: 9, CloseHour: 18, CapacityPerHour: 5},
		{ID: "SC003", Name: "Bangalore Service Center", Location: "Bangalore", OpenHour: 9, CloseHour: 19, CapacityPerHour: 6},
		{ID: "SC004", Name: "Pune Service Center", Location: "Pune", OpenHour: 9, CloseHour: 18, CapacityPerHour: 3},
		{ID: "SC005", Name: "Chennai Service Center", Location: "Chennai", OpenHour: 9, CloseHour: 18, CapacityPerHour: 4},
	}
}

// Slot is a free appointment window.
type Slot struct {
	Time              string `json:"time"`
	EndTime           string `json:"end_time"`
	AvailableCapacity int    `json:"available_capacity"`
}

// DaySlots groups the free windows of one day.
type DaySlots struct {
	Date    string `json:"date"`
	DayName string `json:"day_name"`
	Slots   []Slot `json:"slots"`
}

// Scheduling books service appointments at the nearest service center.
type Scheduling struct {
	actor
	centers []ServiceCenter

	mu           sync.RWMutex
	appointments []*engine.Appointment
}

var _ engine.SchedulingWorker = (*Scheduling)(nil)

// NewScheduling creates the scheduling worker. An empty center list uses
// DefaultServiceCenters.
func NewScheduling(centers []ServiceCenter, recorder Recorder, logger zerolog.Logger, opts ...Option) *Scheduling {
	if len(centers) == 0 {
		centers = DefaultServiceCenters()
	}
	return &Scheduling{
		actor:   newActor(policy.ActorScheduling, recorder, logger, opts),
		centers: append([]ServiceCenter(nil), centers...),
	}
}

// DataDomains implements engine.Worker.
func (w *Scheduling) DataDomains() []string {
	return []string{policy.DataServiceCenters, policy.DataAppointments, policy.DataCustomers}
}

// Schedule implements engine.SchedulingWorker. It books the first free slot of
// the proposal; a vehicle with no free slot in the lookahead window gets no
// appointment and no error.
func (w *Scheduling) Schedule(ctx context.Context, vehicle *fleet.Vehicle, diag *engine.DiagnosisReport) (*engine.SchedulingResult, error) {
	if vehicle == nil || diag == nil {
		return nil, faults.NewInvalidInputError("vehicle and diagnosis are required", nil).
			WithOperation("schedule")
	}

	center := w.NearestCenter(vehicle.City)
	hours := durationHours(diag.EstimatedDuration.Minutes)

	w.record(ctx, policy.ActionAvailabilityCheck, policy.DataServiceCenters, map[string]string{"serviceCenterId": center.ID})
	proposal, err := w.Propose(center.ID, hours)
	if err != nil {
		return nil, err
	}
	w.record(ctx, policy.ActionAppointmentPropose, policy.DataAppointments, nil)

	res := &engine.SchedulingResult{ServiceCenterID: center.ID, ProposedDays: len(proposal)}
	if len(proposal) == 0 {
		w.logger.Warn().Str("vehicle_id", vehicle.ID).Str("service_center", center.ID).Msg("No free slots in lookahead window")
		return res, nil
	}

	first := proposal[0]
	apt := &engine.Appointment{
		ID:                "APT-" + uuid.New().String(),
		VehicleID:         vehicle.ID,
		CustomerID:        vehicle.OwnerID,
		CustomerName:      vehicle.OwnerName,
		ServiceCenterID:   center.ID,
		ServiceCenterName: center.Name,
		Date:              first.Date,
		Time:              first.Slots[0].Time,
		EndTime:           first.Slots[0].EndTime,
		ServiceType:       serviceType(diag),
		Urgency:           diag.Urgency.Level,
		EstimatedDuration: diag.EstimatedDuration,
		EstimatedCost:     diag.EstimatedCost,
		Status:            AppointmentConfirmed,
		CreatedAt:         w.clock().UTC(),
	}
	w.mu.Lock()
	w.appointments = append(w.appointments, apt)
	w.mu.Unlock()
	w.record(ctx, policy.ActionAppointmentConfirm, policy.DataAppointments, map[string]string{"appointmentId": apt.ID})

	w.logger.Info().
		Str("appointment_id", apt.ID).
		Str("service_center", center.ID).
		Str("date", apt.Date).
		Str("time", apt.Time).
		Msg("Appointment booked")

	cp := *apt
	res.Appointment = &cp
	res.AppointmentBooked = true
	return res, nil
}

// NearestCenter returns the center in city, or the first center when none matches.
func (w *Scheduling) NearestCenter(city string) ServiceCenter {
	for _, c := range w.centers {
		if strings.EqualFold(c.Location, city) {
			return c
		}
	}
	return w.centers[0]
}

// Availability lists the free windows of a center on a given day for a
// service lasting the given number of hours.
func (w *Scheduling) Availability(centerID string, day time.Time, hours int) ([]Slot, error) {
	center, ok := w.center(centerID)
	if !ok {
		return nil, faults.NewNotFoundError("service center not found", nil).WithResource(centerID)
	}
	date := day.Format(dateLayout)

	w.mu.RLock()
	var starts []int
	for _, a := range w.appointments {
		if a.ServiceCenterID == centerID && a.Date == date && a.Status != AppointmentCancelled {
			var h int
			if _, err := fmt.Sscanf(a.Time, "%d:", &h); err == nil {
				starts = append(starts, h)
			}
		}
	}
	w.mu.RUnlock()

	slots := []Slot{}
	for hour := center.OpenHour; hour < center.CloseHour-hours; hour++ {
		end := hour + hours
		booked := 0
		for _, h := range starts {
			if h >= hour && h < end {
				booked++
			}
		}
		if booked < center.CapacityPerHour {
			slots = append(slots, Slot{
				Time:              fmt.Sprintf("%02d:00", hour),
				EndTime:           fmt.Sprintf("%02d:00", end),
				AvailableCapacity: center.CapacityPerHour - booked,
			})
		}
	}
	return slots, nil
}

// Propose checks the next seven days and returns up to three free windows
// for each day that has any.
func (w *Scheduling) Propose(centerID string, hours int) ([]DaySlots, error) {
	today := w.clock()
	out := []DaySlots{}
	for offset := 1; offset <= lookaheadDays; offset++ {
		day := today.AddDate(0, 0, offset)
		slots, err := w.Availability(centerID, day, hours)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}
		if len(slots) > slotsPerDay {
			slots = slots[:slotsPerDay]
		}
		out = append(out, DaySlots{Date: day.Format(dateLayout), DayName: day.Weekday().String(), Slots: slots})
	}
	return out, nil
}

// CancelAppointment marks an appointment cancelled, freeing its capacity.
func (w *Scheduling) CancelAppointment(ctx context.Context, id, reason string) (*engine.Appointment, error) {
	w.mu.Lock()
	var apt *engine.Appointment
	for _, a := range w.appointments {
		if a.ID == id {
			apt = a
			break
		}
	}
	if apt == nil {
		w.mu.Unlock()
		return nil, faults.NewNotFoundError("appointment not found", nil).
			WithResource(id).
			WithOperation("cancel_appointment")
	}
	apt.Status = AppointmentCancelled
	cp := *apt
	w.mu.Unlock()

	w.record(ctx, policy.ActionAppointmentCancel, policy.DataAppointments, map[string]string{
		"appointmentId": id,
		"reason":        reason,
	})
	w.logger.Info().Str("appointment_id", id).Str("reason", reason).Msg("Appointment cancelled")
	return &cp, nil
}

// Appointments returns copies of every appointment, booked order.
func (w *Scheduling) Appointments() []engine.Appointment {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]engine.Appointment, len(w.appointments))
	for i, a := range w.appointments {
		out[i] = *a
	}
	return out
}

func (w *Scheduling) center(id string) (ServiceCenter, bool) {
	for _, c := range w.centers {
		if c.ID == id {
			return c, true
		}
	}
	return ServiceCenter{}, false
}

func durationHours(minutes int) int {
	h := (minutes + 59) / 60
	if h < 1 {
		h = 1
	}
	return h
}

func serviceType(diag *engine.DiagnosisReport) string {
	preds := diag.Diagnosis.Predictions
	if len(preds) == 0 {
		return "General Service"
	}
	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = string(p.Component)
	}
	return strings.Join(names, ", ")
}
