package cancellation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/audit"
	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pmssync"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
)

type fakeVerifier struct {
	match *verification.Match
	err   error
}

func (f *fakeVerifier) Resolve(_ context.Context, _ *clinic.Config, _, _, _ string) (*verification.Match, error) {
	return f.match, f.err
}

type fakeCanceller struct {
	err    error
	calls  int
	lastID string
}

func (f *fakeCanceller) Cancel(_ context.Context, _ appointments.Source, id, _ string, _ time.Time) error {
	f.calls++
	f.lastID = id
	return f.err
}

type fakeAuditor struct {
	entries int
	lastExt string
}

func (f *fakeAuditor) LogCancel(_ context.Context, _, _, _, externalID string, _ audit.Details) error {
	f.entries++
	f.lastExt = externalID
	return nil
}

type fakeSubmitter struct {
	jobs []pmssync.Job
}

func (f *fakeSubmitter) Submit(_ context.Context, job pmssync.Job) {
	f.jobs = append(f.jobs, job)
}

type fakeOutcomes struct {
	set map[string]string
}

func (f *fakeOutcomes) SetOutcome(_ context.Context, callID, outcome string) error {
	if f.set == nil {
		f.set = map[string]string{}
	}
	f.set[callID] = outcome
	return nil
}

func testClinic() *clinic.Config {
	return &clinic.Config{ClinicID: "clinic-1", Timezone: "UTC"}
}

func matchFor(id, externalID string) *verification.Match {
	return &verification.Match{
		Appointment: appointments.Appointment{
			ID:         id,
			ClinicID:   "clinic-1",
			PetName:    "Biscuit",
			Date:       time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC),
			StartTime:  "10:00:00",
			Status:     appointments.StatusScheduled,
			ExternalID: externalID,
			Source:     appointments.SourceSynced,
		},
		DateSpoken: "Monday, June 15",
		TimeSpoken: "10:00 AM",
	}
}

func confirmedRequest() Request {
	return Request{
		CallID:     "call-1",
		ClientName: "Jane Doe",
		PetName:    "Biscuit",
		DateText:   "june 15",
		Confirmed:  true,
	}
}

func TestCancelUnconfirmedNeverMutates(t *testing.T) {
	repo := &fakeCanceller{}
	tx := NewTransactor(&fakeVerifier{match: matchFor("appt-1", "")}, repo, nil, nil, nil, nil)

	req := confirmedRequest()
	req.Confirmed = false
	result, err := tx.Cancel(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Success || result.Code != CodeRequiresConfirmation {
		t.Fatalf("expected requires_confirmation, got %+v", result)
	}
	if repo.calls != 0 {
		t.Error("unconfirmed request must not touch the repository")
	}
	if !strings.Contains(result.Message, "Monday, June 15 at 10:00 AM") {
		t.Errorf("confirmation prompt missing details: %s", result.Message)
	}
}

func TestCancelConfirmed(t *testing.T) {
	repo := &fakeCanceller{}
	auditor := &fakeAuditor{}
	sync := &fakeSubmitter{}
	outcomes := &fakeOutcomes{}
	tx := NewTransactor(&fakeVerifier{match: matchFor("appt-1", "ext-77")}, repo, auditor, sync, outcomes, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if repo.calls != 1 || repo.lastID != "appt-1" {
		t.Errorf("expected one cancel of appt-1, got %d/%s", repo.calls, repo.lastID)
	}
	if auditor.entries != 1 || auditor.lastExt != "ext-77" {
		t.Errorf("expected audit entry with external id, got %d/%s", auditor.entries, auditor.lastExt)
	}
	if len(sync.jobs) != 1 || sync.jobs[0].Kind != pmssync.KindCancel {
		t.Errorf("expected PMS cancel job, got %+v", sync.jobs)
	}
	if outcomes.set["call-1"] != calls.OutcomeCancelled {
		t.Errorf("call outcome not set: %v", outcomes.set)
	}
}

func TestCancelSkipsSyncWithoutExternalID(t *testing.T) {
	sync := &fakeSubmitter{}
	tx := NewTransactor(&fakeVerifier{match: matchFor("appt-1", "")}, &fakeCanceller{}, &fakeAuditor{}, sync, nil, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sync.jobs) != 0 {
		t.Errorf("no PMS job expected without external id, got %+v", sync.jobs)
	}
}

func TestCancelNotFound(t *testing.T) {
	tx := NewTransactor(&fakeVerifier{err: verification.ErrNoMatch}, &fakeCanceller{}, nil, nil, nil, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Code != CodeNotFound {
		t.Fatalf("expected appointment_not_found, got %+v", result)
	}
}

func TestCancelUnparseableDate(t *testing.T) {
	tx := NewTransactor(&fakeVerifier{err: timeparse.ErrUnrecognizedDate}, &fakeCanceller{}, nil, nil, nil, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Code != CodeInvalidDate {
		t.Fatalf("expected invalid_date, got %+v", result)
	}
}

func TestCancelStoreFailureLeavesScheduled(t *testing.T) {
	repo := &fakeCanceller{err: errors.New("connection refused")}
	auditor := &fakeAuditor{}
	sync := &fakeSubmitter{}
	tx := NewTransactor(&fakeVerifier{match: matchFor("appt-1", "ext-77")}, repo, auditor, sync, nil, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Success || result.Code != CodeDatabaseError {
		t.Fatalf("expected database_error, got %+v", result)
	}
	if !strings.Contains(result.Message, "remains scheduled") {
		t.Errorf("message must state the appointment remains scheduled: %s", result.Message)
	}
	if auditor.entries != 0 || len(sync.jobs) != 0 {
		t.Error("failed cancel must not audit or publish sync jobs")
	}
}

func TestCancelRepoRaceReturnsNotFound(t *testing.T) {
	repo := &fakeCanceller{err: appointments.ErrAppointmentNotFound}
	tx := NewTransactor(&fakeVerifier{match: matchFor("appt-1", "")}, repo, nil, nil, nil, nil)

	result, err := tx.Cancel(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Code != CodeNotFound {
		t.Fatalf("expected appointment_not_found, got %+v", result)
	}
}
