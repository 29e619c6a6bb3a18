package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/availability"
	"github.com/brightpaw/vetdesk-ai-platform/internal/booking"
	"github.com/brightpaw/vetdesk-ai-platform/internal/cancellation"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/reschedule"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
)

type fakeAvailability struct {
	day      *availability.DayAvailability
	rng      *availability.RangeResult
	err      error
	lastDays int
}

func (f *fakeAvailability) CheckAvailability(_ context.Context, _ *clinic.Config, _ string) (*availability.DayAvailability, error) {
	return f.day, f.err
}

func (f *fakeAvailability) CheckAvailabilityRange(_ context.Context, _ *clinic.Config, _ string, days int) (*availability.RangeResult, error) {
	f.lastDays = days
	return f.rng, f.err
}

type fakeBooker struct {
	outcome *booking.Outcome
	err     error
	got     *booking.Input
}

func (f *fakeBooker) Book(_ context.Context, _ *clinic.Config, input booking.Input) (*booking.Outcome, error) {
	f.got = &input
	return f.outcome, f.err
}

type fakeVerifier struct {
	match *verification.Match
	err   error
}

func (f *fakeVerifier) Resolve(_ context.Context, _ *clinic.Config, _, _, _ string) (*verification.Match, error) {
	return f.match, f.err
}

type fakeCanceller struct {
	result *cancellation.Result
	err    error
	got    *cancellation.Request
}

func (f *fakeCanceller) Cancel(_ context.Context, _ *clinic.Config, req cancellation.Request) (*cancellation.Result, error) {
	f.got = &req
	return f.result, f.err
}

type fakeRescheduler struct {
	result *reschedule.Result
	err    error
	got    *reschedule.Request
}

func (f *fakeRescheduler) Reschedule(_ context.Context, _ *clinic.Config, req reschedule.Request) (*reschedule.Result, error) {
	f.got = &req
	return f.result, f.err
}

func testClinic() *clinic.Config {
	return &clinic.Config{ClinicID: "clinic-1", Timezone: "UTC"}
}

func callCtx() CallContext {
	return CallContext{CallID: "call-1", CallerNumber: "+15559876543"}
}

func openDay() *availability.DayAvailability {
	return &availability.DayAvailability{
		Date:       "2026-06-15",
		DateSpoken: "Monday, June 15",
		Open:       true,
		OpenCount:  2,
		Slots: []availability.OpenSlot{
			{StartTime: "10:00:00", EndTime: "10:30:00", StartSpoken: "10:00 AM", AvailableCount: 1},
			{StartTime: "14:30:00", EndTime: "15:00:00", StartSpoken: "2:30 PM", AvailableCount: 2},
		},
	}
}

func TestCheckAvailabilityOpenDay(t *testing.T) {
	e := NewEngine(EngineConfig{Availability: &fakeAvailability{day: openDay()}})

	result := e.Dispatch(context.Background(), testClinic(), ToolCheckAvailability,
		map[string]string{"date": "june 15"}, callCtx())

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Message, "10:00 AM or 2:30 PM") {
		t.Errorf("message must list spoken times: %s", result.Message)
	}
	if result.Data["open_count"] != 2 {
		t.Errorf("data missing open count: %+v", result.Data)
	}
}

func TestCheckAvailabilityClosedDay(t *testing.T) {
	day := &availability.DayAvailability{Date: "2026-06-15", DateSpoken: "Monday, June 15"}
	e := NewEngine(EngineConfig{Availability: &fakeAvailability{day: day}})

	result := e.CheckAvailability(context.Background(), testClinic(), map[string]string{"date": "june 15"}, callCtx())
	if !result.Success {
		t.Fatalf("closed day is still a successful lookup: %+v", result)
	}
	if !strings.Contains(result.Message, "nothing open") {
		t.Errorf("unexpected message: %s", result.Message)
	}
}

func TestCheckAvailabilityPastDate(t *testing.T) {
	e := NewEngine(EngineConfig{Availability: &fakeAvailability{err: availability.ErrPastDate}})

	result := e.CheckAvailability(context.Background(), testClinic(), map[string]string{"date": "yesterday"}, callCtx())
	if result.Success || result.Error != "past_date" {
		t.Fatalf("expected past_date, got %+v", result)
	}
}

func TestCheckAvailabilityRangeUsesDaysAhead(t *testing.T) {
	first := openDay()
	av := &fakeAvailability{rng: &availability.RangeResult{FirstDay: first, Days: []availability.DayAvailability{*first}}}
	e := NewEngine(EngineConfig{Availability: av})

	result := e.CheckAvailability(context.Background(), testClinic(),
		map[string]string{"date": "tomorrow", "days_ahead": "7"}, callCtx())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if av.lastDays != 7 {
		t.Errorf("days_ahead not forwarded: %d", av.lastDays)
	}
	if !strings.Contains(result.Message, "earliest opening is Monday, June 15 at 10:00 AM") {
		t.Errorf("unexpected message: %s", result.Message)
	}
}

func TestBookForwardsCallerNumber(t *testing.T) {
	booker := &fakeBooker{outcome: &booking.Outcome{Success: true, Message: "booked", ConfirmationNumber: "VET-1"}}
	e := NewEngine(EngineConfig{Booker: booker})

	result := e.Book(context.Background(), testClinic(), map[string]string{
		"client_name": "Jane Doe",
		"pet_name":    "Biscuit",
		"date":        "june 15",
		"time":        "10am",
	}, callCtx())

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if booker.got.ClientPhone != "+15559876543" {
		t.Errorf("caller number must backfill client_phone: %s", booker.got.ClientPhone)
	}
	if booker.got.CallID != "call-1" {
		t.Errorf("call id not forwarded: %s", booker.got.CallID)
	}
	if result.Data["confirmation_number"] != "VET-1" {
		t.Errorf("data missing confirmation: %+v", result.Data)
	}
}

func TestBookFailureCarriesCodeAndAlternatives(t *testing.T) {
	booker := &fakeBooker{outcome: &booking.Outcome{
		Success:      false,
		Code:         "slot_unavailable",
		Message:      "taken",
		Alternatives: []string{"11:00 AM"},
	}}
	e := NewEngine(EngineConfig{Booker: booker})

	result := e.Book(context.Background(), testClinic(), map[string]string{}, callCtx())
	if result.Success || result.Error != "slot_unavailable" {
		t.Fatalf("expected slot_unavailable, got %+v", result)
	}
	if _, ok := result.Data["alternatives"]; !ok {
		t.Errorf("alternatives missing from data: %+v", result.Data)
	}
}

func TestBookInfrastructureError(t *testing.T) {
	e := NewEngine(EngineConfig{Booker: &fakeBooker{err: errors.New("boom")}})

	result := e.Book(context.Background(), testClinic(), map[string]string{}, callCtx())
	if result.Error != "database_error" {
		t.Fatalf("expected database_error, got %+v", result)
	}
}

func TestVerifyFound(t *testing.T) {
	match := &verification.Match{
		Appointment: appointments.Appointment{
			ID:        "appt-1",
			PetName:   "Biscuit",
			Provider:  "Dr. Patel",
			Date:      time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC),
			StartTime: "10:00:00",
			Source:    appointments.SourceSynced,
		},
		DateSpoken: "Monday, June 15",
		TimeSpoken: "10:00 AM",
	}
	e := NewEngine(EngineConfig{Verifier: &fakeVerifier{match: match}})

	result := e.Verify(context.Background(), testClinic(), map[string]string{
		"client_name": "Jane", "pet_name": "Biscuit", "date": "june 15",
	}, callCtx())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Message, "Monday, June 15 at 10:00 AM with Dr. Patel") {
		t.Errorf("unexpected message: %s", result.Message)
	}
	if result.Data["appointment_id"] != "appt-1" {
		t.Errorf("data missing id: %+v", result.Data)
	}
}

func TestVerifyNotFound(t *testing.T) {
	e := NewEngine(EngineConfig{Verifier: &fakeVerifier{err: verification.ErrNoMatch}})

	result := e.Verify(context.Background(), testClinic(), map[string]string{}, callCtx())
	if result.Success || result.Error != "appointment_not_found" {
		t.Fatalf("expected appointment_not_found, got %+v", result)
	}
}

func TestCancelParsesConfirmedFlag(t *testing.T) {
	canceller := &fakeCanceller{result: &cancellation.Result{Success: true, Message: "done"}}
	e := NewEngine(EngineConfig{Canceller: canceller})

	e.Cancel(context.Background(), testClinic(), map[string]string{"confirmed": "true"}, callCtx())
	if !canceller.got.Confirmed {
		t.Error("confirmed=true not parsed")
	}

	e.Cancel(context.Background(), testClinic(), map[string]string{"confirmed": "nope"}, callCtx())
	if canceller.got.Confirmed {
		t.Error("garbage confirmed value must read as false")
	}
}

func TestCancelRequiresConfirmationPassthrough(t *testing.T) {
	canceller := &fakeCanceller{result: &cancellation.Result{
		Success: false,
		Code:    "requires_confirmation",
		Message: "Should I cancel it?",
	}}
	e := NewEngine(EngineConfig{Canceller: canceller})

	result := e.Cancel(context.Background(), testClinic(), map[string]string{}, callCtx())
	if result.Error != "requires_confirmation" {
		t.Fatalf("expected requires_confirmation, got %+v", result)
	}
}

func TestReschedulePassesThroughSagaResult(t *testing.T) {
	rescheduler := &fakeRescheduler{result: &reschedule.Result{
		Success:          true,
		Message:          "moved",
		NewAppointmentID: "appt-new",
		NewDate:          time.Date(2026, time.June, 16, 0, 0, 0, 0, time.UTC),
		NewStartTime:     "14:30:00",
	}}
	e := NewEngine(EngineConfig{Rescheduler: rescheduler})

	result := e.Reschedule(context.Background(), testClinic(), map[string]string{
		"date": "june 15", "new_date": "june 16", "new_time": "2:30pm", "confirmed": "true",
	}, callCtx())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Data["new_appointment_id"] != "appt-new" || result.Data["new_start_time"] != "14:30:00" {
		t.Errorf("data incomplete: %+v", result.Data)
	}
	if !rescheduler.got.Confirmed {
		t.Error("confirmed flag not forwarded")
	}
}

func TestRescheduleRollbackPassthrough(t *testing.T) {
	rescheduler := &fakeRescheduler{result: &reschedule.Result{
		Success: false,
		Code:    "rollback_success",
		Message: "kept the original",
	}}
	e := NewEngine(EngineConfig{Rescheduler: rescheduler})

	result := e.Reschedule(context.Background(), testClinic(), map[string]string{}, callCtx())
	if result.Error != "rollback_success" {
		t.Fatalf("expected rollback_success, got %+v", result)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	e := NewEngine(EngineConfig{})

	result := e.Dispatch(context.Background(), testClinic(), "order_pizza", nil, callCtx())
	if result.Success || result.Error != "invalid_state" {
		t.Fatalf("expected invalid_state, got %+v", result)
	}
	if result.Message == "" {
		t.Error("unknown tool still needs a speakable message")
	}
}
