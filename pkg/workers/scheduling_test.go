package workers

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/faults"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/scoring"
)

func TestSchedule_BooksFirstSlot(t *testing.T) {
	rec := &captureRecorder{}
	w := NewScheduling(nil, rec, zerolog.Nop(), WithClock(testNow))

	res, err := w.Schedule(context.Background(), testVehicle(), testDiagnosis(225, scoring.ComponentEngine, scoring.ComponentOil))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if !res.AppointmentBooked || res.Appointment == nil {
		t.Fatalf("Expected an appointment, got %+v", res)
	}
	if res.ServiceCenterID != "SC004" || res.ProposedDays != 7 {
		t.Errorf("Expected SC004 with 7 proposed days, got %s and %d", res.ServiceCenterID, res.ProposedDays)
	}

	apt := res.Appointment
	if apt.Date != "2024-04-03" || apt.Time != "09:00" || apt.EndTime != "13:00" {
		t.Errorf("Expected 2024-04-03 09:00-13:00, got %s %s-%s", apt.Date, apt.Time, apt.EndTime)
	}
	if apt.ServiceType != "Engine, Oil System" {
		t.Errorf("Unexpected service type %q", apt.ServiceType)
	}
	if apt.Status != AppointmentConfirmed || apt.Urgency != scoring.UrgencyCritical {
		t.Errorf("Unexpected appointment %+v", apt)
	}
	if !strings.HasPrefix(apt.ID, "APT-") || apt.ServiceCenterName != "Pune Service Center" {
		t.Errorf("Unexpected appointment %+v", apt)
	}

	want := []string{policy.DataServiceCenters, policy.DataAppointments, policy.DataAppointments}
	if got := rec.domains(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected data domains %v, got %v", want, got)
	}
}

func TestSchedule_CapacityAndCancel(t *testing.T) {
	ctx := context.Background()
	w := NewScheduling(nil, nil, zerolog.Nop(), WithClock(testNow))
	diag := testDiagnosis(225, scoring.ComponentEngine)

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := w.Schedule(ctx, testVehicle(), diag)
		if err != nil {
			t.Fatalf("Schedule %d failed: %v", i, err)
		}
		if res.Appointment.Time != "09:00" {
			t.Fatalf("Booking %d: expected 09:00, got %s", i, res.Appointment.Time)
		}
		ids = append(ids, res.Appointment.ID)
	}

	res, err := w.Schedule(ctx, testVehicle(), diag)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if res.Appointment.Date != "2024-04-03" || res.Appointment.Time != "10:00" {
		t.Errorf("Expected the full 09:00 slot to be skipped, got %s %s", res.Appointment.Date, res.Appointment.Time)
	}

	for _, id := range ids[:2] {
		if _, err := w.CancelAppointment(ctx, id, "customer request"); err != nil {
			t.Fatalf("CancelAppointment failed: %v", err)
		}
	}
	slots, err := w.Availability("SC004", testNow().AddDate(0, 0, 1), 4)
	if err != nil {
		t.Fatalf("Availability failed: %v", err)
	}
	if slots[0].Time != "09:00" || slots[0].AvailableCapacity != 1 {
		t.Errorf("Expected cancelled capacity to free 09:00, got %+v", slots[0])
	}

	cancelled := 0
	for _, a := range w.Appointments() {
		if a.Status == AppointmentCancelled {
			cancelled++
		}
	}
	if len(w.Appointments()) != 4 || cancelled != 2 {
		t.Errorf("Expected 4 appointments with 2 cancelled, got %d and %d", len(w.Appointments()), cancelled)
	}

	if _, err := w.CancelAppointment(ctx, "APT-missing", ""); !faults.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestSchedule_NoSlots(t *testing.T) {
	w := NewScheduling(nil, nil, zerolog.Nop(), WithClock(testNow))

	res, err := w.Schedule(context.Background(), testVehicle(), testDiagnosis(600, scoring.ComponentEngine))
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if res.AppointmentBooked || res.Appointment != nil || res.ProposedDays != 0 {
		t.Errorf("Expected no booking for a service longer than the working day, got %+v", res)
	}
}

func TestNearestCenter(t *testing.T) {
	w := NewScheduling(nil, nil, zerolog.Nop())

	if c := w.NearestCenter("bangalore"); c.ID != "SC003" {
		t.Errorf("Expected SC003, got %s", c.ID)
	}
	if c := w.NearestCenter("Kolkata"); c.ID != "SC001" {
		t.Errorf("Expected fallback to SC001, got %s", c.ID)
	}
}

func TestPropose(t *testing.T) {
	w := NewScheduling(nil, nil, zerolog.Nop(), WithClock(testNow))

	days, err := w.Propose("SC003", 1)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(days))
	}
	if days[0].DayName != "Wednesday" || len(days[0].Slots) != 3 {
		t.Errorf("Unexpected first day %+v", days[0])
	}
	if days[0].Slots[2].Time != "11:00" || days[0].Slots[2].EndTime != "12:00" {
		t.Errorf("Unexpected third slot %+v", days[0].Slots[2])
	}

	if _, err := w.Propose("SC999", 1); !faults.IsNotFound(err) {
		t.Errorf("Expected NotFound for unknown center, got %v", err)
	}
}

func TestDurationHours(t *testing.T) {
	tests := map[int]int{0: 1, 45: 1, 60: 1, 61: 2, 225: 4}
	for minutes, want := range tests {
		if got := durationHours(minutes); got != want {
			t.Errorf("durationHours(%d) = %d, want %d", minutes, got, want)
		}
	}
}
