package reschedule

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
	"github.com/brightpaw/vetdesk-ai-platform/internal/scheduling"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
)

// Wednesday.
func fixedNow() time.Time {
	return time.Date(2026, time.June, 10, 9, 0, 0, 0, time.UTC)
}

func testClinic() *clinic.Config {
	return &clinic.Config{ClinicID: "clinic-1", Timezone: "UTC"}
}

type fakeVerifier struct {
	match *verification.Match
	err   error
}

func (f *fakeVerifier) Resolve(_ context.Context, _ *clinic.Config, _, _, _ string) (*verification.Match, error) {
	return f.match, f.err
}

type fakeSlots struct {
	slots []scheduling.Slot
	err   error
}

func (f *fakeSlots) GetAvailableSlots(_ context.Context, _ string, _ time.Time) ([]scheduling.Slot, error) {
	return f.slots, f.err
}

type fakeRepo struct {
	cancelErr  error
	createErr  error
	restoreErr error

	cancelled []string
	restored  []string
	created   []appointments.Appointment
}

func (f *fakeRepo) Cancel(_ context.Context, _ appointments.Source, id, _ string, _ time.Time) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeRepo) Restore(_ context.Context, _ appointments.Source, id string, _ appointments.Status) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.restored = append(f.restored, id)
	return nil
}

func (f *fakeRepo) CreatePending(_ context.Context, appt appointments.Appointment) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, appt)
	return "appt-new", nil
}

type fakeAuditor struct {
	entries int
	newID   string
	priorID string
}

func (f *fakeAuditor) LogReschedule(_ context.Context, _, _, newAppointmentID, priorAppointmentID, _ string, _ audit.Details) error {
	f.entries++
	f.newID = newAppointmentID
	f.priorID = priorAppointmentID
	return nil
}

type fakeSubmitter struct {
	jobs []pmssync.Job
}

func (f *fakeSubmitter) Submit(_ context.Context, job pmssync.Job) {
	f.jobs = append(f.jobs, job)
}

type fakeRecorder struct {
	outcomes  map[string]string
	snapshots map[string]calls.Snapshot
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: map[string]string{}, snapshots: map[string]calls.Snapshot{}}
}

func (f *fakeRecorder) SetOutcome(_ context.Context, callID, outcome string) error {
	f.outcomes[callID] = outcome
	return nil
}

func (f *fakeRecorder) SetAppointmentSnapshot(_ context.Context, callID string, snap calls.Snapshot) error {
	f.snapshots[callID] = snap
	return nil
}

func existingMatch(externalID string) *verification.Match {
	return &verification.Match{
		Appointment: appointments.Appointment{
			ID:          "appt-old",
			ClinicID:    "clinic-1",
			ClientName:  "Jane Doe",
			ClientPhone: "+15559876543",
			PetName:     "Biscuit",
			PetSpecies:  "dog",
			Date:        time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC),
			StartTime:   "10:00:00",
			EndTime:     "10:30:00",
			Status:      appointments.StatusScheduled,
			Provider:    "Dr. Patel",
			Type:        "wellness",
			ExternalID:  externalID,
			Source:      appointments.SourceSynced,
		},
		DateSpoken: "Monday, June 15",
		TimeSpoken: "10:00 AM",
	}
}

func openSlots() []scheduling.Slot {
	return []scheduling.Slot{
		{StartTime: "09:00:00", EndTime: "09:30:00", Capacity: 2, BookedCount: 2, AvailableCount: 0},
		{StartTime: "14:30:00", EndTime: "15:00:00", Capacity: 2, BookedCount: 0, AvailableCount: 2},
		{StartTime: "15:00:00", EndTime: "15:30:00", Capacity: 2, BookedCount: 1, AvailableCount: 1},
	}
}

func confirmedRequest() Request {
	return Request{
		CallID:      "call-1",
		ClientName:  "Jane Doe",
		PetName:     "Biscuit",
		DateText:    "june 15",
		NewDateText: "june 16",
		NewTimeText: "2:30pm",
		Confirmed:   true,
	}
}

func newTx(v Verifier, s SlotReader, r Repo, a Auditor, sub SyncSubmitter, rec CallRecorder) *Transactor {
	return NewTransactor(v, s, r, a, sub, rec, nil, nil).WithNow(fixedNow)
}

func TestRescheduleUnconfirmedNeverMutates(t *testing.T) {
	repo := &fakeRepo{}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, repo, nil, nil, nil)

	req := confirmedRequest()
	req.Confirmed = false
	result, err := tx.Reschedule(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Success || result.Code != CodeRequiresConfirmation {
		t.Fatalf("expected requires_confirmation, got %+v", result)
	}
	if len(repo.cancelled) != 0 || len(repo.created) != 0 {
		t.Error("unconfirmed request must not mutate")
	}
	if !strings.Contains(result.Message, "from Monday, June 15 at 10:00 AM") ||
		!strings.Contains(result.Message, "2:30 PM") {
		t.Errorf("summary missing old/new details: %s", result.Message)
	}
}

func TestRescheduleConfirmedMovesAppointment(t *testing.T) {
	repo := &fakeRepo{}
	auditor := &fakeAuditor{}
	sync := &fakeSubmitter{}
	recorder := newFakeRecorder()
	tx := newTx(&fakeVerifier{match: existingMatch("ext-77")}, &fakeSlots{slots: openSlots()}, repo, auditor, sync, recorder)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if !result.Success || result.NewAppointmentID != "appt-new" {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(repo.cancelled) != 1 || repo.cancelled[0] != "appt-old" {
		t.Errorf("original not cancelled: %v", repo.cancelled)
	}
	if len(repo.created) != 1 {
		t.Fatalf("replacement not created: %v", repo.created)
	}
	created := repo.created[0]
	if created.RescheduledFromID != "appt-old" {
		t.Errorf("back-reference missing: %+v", created)
	}
	if created.ExternalID != "ext-77" || created.Provider != "Dr. Patel" || created.Type != "wellness" {
		t.Errorf("metadata not carried forward: %+v", created)
	}
	if created.StartTime != "14:30:00" || created.EndTime != "15:00:00" {
		t.Errorf("wrong target slot: %+v", created)
	}
	if auditor.entries != 1 || auditor.newID != "appt-new" || auditor.priorID != "appt-old" {
		t.Errorf("audit entry wrong: %+v", auditor)
	}
	if len(sync.jobs) != 1 || sync.jobs[0].Kind != pmssync.KindReschedule {
		t.Errorf("expected PMS reschedule job, got %+v", sync.jobs)
	}
	if recorder.outcomes["call-1"] != calls.OutcomeRescheduled {
		t.Errorf("call outcome not set: %v", recorder.outcomes)
	}
	if recorder.snapshots["call-1"].AppointmentID != "appt-new" {
		t.Errorf("snapshot not attached: %+v", recorder.snapshots)
	}
}

func TestRescheduleNoTimePicksEarliestOpen(t *testing.T) {
	repo := &fakeRepo{}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, repo, nil, nil, nil)

	req := confirmedRequest()
	req.NewTimeText = ""
	result, err := tx.Reschedule(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.NewStartTime != "14:30:00" {
		t.Errorf("expected earliest open slot 14:30:00, got %s", result.NewStartTime)
	}
}

func TestRescheduleNoTimeNoAvailability(t *testing.T) {
	full := []scheduling.Slot{{StartTime: "09:00:00", EndTime: "09:30:00", Capacity: 1, BookedCount: 1}}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: full}, &fakeRepo{}, nil, nil, nil)

	req := confirmedRequest()
	req.NewTimeText = ""
	result, err := tx.Reschedule(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Code != CodeNoAvailability {
		t.Fatalf("expected no_availability, got %+v", result)
	}
}

func TestRescheduleRequestedTimeNotOpen(t *testing.T) {
	repo := &fakeRepo{}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, repo, nil, nil, nil)

	req := confirmedRequest()
	req.NewTimeText = "9am" // fully booked
	result, err := tx.Reschedule(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Code != CodeSlotNotAvailable {
		t.Fatalf("expected slot_not_available, got %+v", result)
	}
	if len(result.Alternatives) != 2 {
		t.Errorf("expected the two open times as alternatives, got %v", result.Alternatives)
	}
	if len(repo.cancelled) != 0 {
		t.Error("failed target resolution must not mutate")
	}
}

func TestRescheduleAlternativesCapAtFive(t *testing.T) {
	var many []scheduling.Slot
	for h := 9; h < 17; h++ {
		many = append(many, scheduling.Slot{
			StartTime:      time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04:05"),
			EndTime:        time.Date(0, 1, 1, h, 30, 0, 0, time.UTC).Format("15:04:05"),
			Capacity:       1,
			AvailableCount: 1,
		})
	}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: many}, &fakeRepo{}, nil, nil, nil)

	req := confirmedRequest()
	req.NewTimeText = "8am" // before any open slot
	result, err := tx.Reschedule(context.Background(), testClinic(), req)
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if len(result.Alternatives) != 5 {
		t.Fatalf("alternatives must cap at 5, got %v", result.Alternatives)
	}
}

func TestRescheduleCreateFailureRollsBack(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("insert failed")}
	sync := &fakeSubmitter{}
	auditor := &fakeAuditor{}
	tx := newTx(&fakeVerifier{match: existingMatch("ext-77")}, &fakeSlots{slots: openSlots()}, repo, auditor, sync, nil)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Success || result.Code != CodeRollbackSuccess {
		t.Fatalf("expected rollback_success, got %+v", result)
	}
	if len(repo.restored) != 1 || repo.restored[0] != "appt-old" {
		t.Errorf("original not restored: %v", repo.restored)
	}
	if !strings.Contains(result.Message, "original appointment") {
		t.Errorf("message must reassure the original is kept: %s", result.Message)
	}
	if auditor.entries != 0 || len(sync.jobs) != 0 {
		t.Error("rolled-back move must not audit or publish sync jobs")
	}
}

func TestRescheduleRestoreFailureIsDatabaseError(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("insert failed"), restoreErr: errors.New("restore failed")}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, repo, nil, nil, nil)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Code != CodeDatabaseError {
		t.Fatalf("expected database_error, got %+v", result)
	}
}

func TestRescheduleCancelStepFailureLeavesOriginal(t *testing.T) {
	repo := &fakeRepo{cancelErr: errors.New("connection refused")}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, repo, nil, nil, nil)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Code != CodeDatabaseError {
		t.Fatalf("expected database_error, got %+v", result)
	}
	if len(repo.created) != 0 {
		t.Error("create must not run after a failed cancel step")
	}
}

func TestRescheduleVerifyNotFound(t *testing.T) {
	tx := newTx(&fakeVerifier{err: verification.ErrNoMatch}, &fakeSlots{}, &fakeRepo{}, nil, nil, nil)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if result.Code != CodeNotFound {
		t.Fatalf("expected appointment_not_found, got %+v", result)
	}
}

func TestRescheduleSkipsSyncWithoutExternalID(t *testing.T) {
	sync := &fakeSubmitter{}
	tx := newTx(&fakeVerifier{match: existingMatch("")}, &fakeSlots{slots: openSlots()}, &fakeRepo{}, nil, sync, nil)

	result, err := tx.Reschedule(context.Background(), testClinic(), confirmedRequest())
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(sync.jobs) != 0 {
		t.Errorf("no PMS job expected without external id, got %+v", sync.jobs)
	}
}
