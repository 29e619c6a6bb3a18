// Package reschedule moves an appointment to a new slot as a two-step
// local saga: cancel the original, create the replacement, and compensate
// by restoring the original if the second step fails. The caller observes
// a binary outcome: either nothing changed or the appointment fully moved.
package reschedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/audit"
	"github.com/brightpaw/vetdesk-ai-platform/internal/availability"
	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/observability/metrics"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pmssync"
	"github.com/brightpaw/vetdesk-ai-platform/internal/scheduling"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// Stable outcome codes surfaced to the tool layer.
const (
	CodeNotFound             = "appointment_not_found"
	CodeRequiresConfirmation = "requires_confirmation"
	CodeSlotNotAvailable     = "slot_not_available"
	CodeNoAvailability       = "no_availability"
	CodeRollbackSuccess      = "rollback_success"
	CodeDatabaseError        = "database_error"
	CodeInvalidDate          = "invalid_date"
	CodeInvalidTime          = "invalid_time"
	CodeInvalidState         = "invalid_state"
	CodePastDate             = "past_date"
)

// maxAlternatives caps the other open times offered when the requested
// target slot is taken.
const maxAlternatives = 5

// Request carries the caller's identifying details and the move target.
type Request struct {
	CallID      string
	ClientName  string
	PetName     string
	DateText    string // date of the existing appointment
	NewDateText string
	NewTimeText string // optional; empty means "earliest open"
	Reason      string
	Confirmed   bool
}

// Result is the uniform reschedule outcome.
type Result struct {
	Success          bool
	Code             string
	Message          string
	Original         *verification.Match
	NewAppointmentID string
	NewDate          time.Time
	NewStartTime     string // "HH:MM:SS"
	Alternatives     []string
}

// Verifier locates the appointment being moved.
type Verifier interface {
	Resolve(ctx context.Context, cfg *clinic.Config, clientName, petName, dateText string) (*verification.Match, error)
}

// SlotReader reads the slot projection for the target date.
type SlotReader interface {
	GetAvailableSlots(ctx context.Context, clinicID string, date time.Time) ([]scheduling.Slot, error)
}

// Repo is the slice of the appointments repository the saga needs.
type Repo interface {
	Cancel(ctx context.Context, source appointments.Source, id, reason string, at time.Time) error
	Restore(ctx context.Context, source appointments.Source, id string, priorStatus appointments.Status) error
	CreatePending(ctx context.Context, appt appointments.Appointment) (string, error)
}

// Auditor records the completed move.
type Auditor interface {
	LogReschedule(ctx context.Context, clinicID, callID, newAppointmentID, priorAppointmentID, externalID string, d audit.Details) error
}

// SyncSubmitter publishes fire-and-forget PMS propagation jobs.
type SyncSubmitter interface {
	Submit(ctx context.Context, job pmssync.Job)
}

// CallRecorder tags the call record after a successful move.
type CallRecorder interface {
	SetOutcome(ctx context.Context, callID, outcome string) error
	SetAppointmentSnapshot(ctx context.Context, callID string, snap calls.Snapshot) error
}

// Transactor runs the reschedule saga.
type Transactor struct {
	verifier Verifier
	slots    SlotReader
	repo     Repo
	audit    Auditor
	sync     SyncSubmitter
	calls    CallRecorder
	metrics  *metrics.ToolMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewTransactor creates the reschedule transactor. audit, sync, calls,
// and metrics may be nil in reduced deployments.
func NewTransactor(verifier Verifier, slots SlotReader, repo Repo, auditor Auditor, sync SyncSubmitter, recorder CallRecorder, m *metrics.ToolMetrics, logger *logging.Logger) *Transactor {
	if verifier == nil {
		panic("reschedule: verifier required")
	}
	if slots == nil {
		panic("reschedule: slot reader required")
	}
	if repo == nil {
		panic("reschedule: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Transactor{
		verifier: verifier,
		slots:    slots,
		repo:     repo,
		audit:    auditor,
		sync:     sync,
		calls:    recorder,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (t *Transactor) WithNow(now func() time.Time) *Transactor {
	t.now = now
	return t
}

// Reschedule verifies the original, resolves the target slot, and once
// confirmed runs the cancel-create saga.
func (t *Transactor) Reschedule(ctx context.Context, cfg *clinic.Config, req Request) (*Result, error) {
	match, failure := t.verify(ctx, cfg, req)
	if failure != nil {
		return failure, nil
	}

	target, failure := t.resolveTarget(ctx, cfg, req)
	if failure != nil {
		failure.Original = match
		return failure, nil
	}

	if !req.Confirmed {
		return &Result{
			Success: false,
			Code:    CodeRequiresConfirmation,
			Message: fmt.Sprintf(
				"You'd be moving %s's appointment from %s at %s to %s at %s. Shall I make the change?",
				match.Appointment.PetName,
				match.DateSpoken, match.TimeSpoken,
				timeparse.SpeakableDate(target.date), timeparse.Format12Hour(target.startTime),
			),
			Original:     match,
			NewDate:      target.date,
			NewStartTime: target.startTime,
		}, nil
	}

	return t.execute(ctx, cfg, req, match, target)
}

type targetSlot struct {
	date      time.Time
	startTime string
	endTime   string
}

func (t *Transactor) verify(ctx context.Context, cfg *clinic.Config, req Request) (*verification.Match, *Result) {
	match, err := t.verifier.Resolve(ctx, cfg, req.ClientName, req.PetName, req.DateText)
	if err == nil {
		return match, nil
	}

	switch {
	case errors.Is(err, verification.ErrNoMatch):
		return nil, &Result{Success: false, Code: CodeNotFound, Message: "I couldn't find an appointment matching those details."}
	case errors.Is(err, verification.ErrMissingNames):
		return nil, &Result{Success: false, Code: CodeInvalidState, Message: "I need your name and your pet's name to look that up."}
	case errors.Is(err, timeparse.ErrUnrecognizedDate):
		return nil, &Result{Success: false, Code: CodeInvalidDate, Message: "I didn't catch the date of the current appointment."}
	default:
		t.logger.Error("reschedule verify failed", "error", err, "clinic_id", cfg.ClinicID)
		return nil, &Result{
			Success: false,
			Code:    CodeDatabaseError,
			Message: "I'm having trouble looking that up right now. Nothing was changed; please try again in a moment.",
		}
	}
}

// resolveTarget picks the slot the appointment moves to. An explicit time
// must match an open slot exactly; with no time, the earliest open slot
// wins.
func (t *Transactor) resolveTarget(ctx context.Context, cfg *clinic.Config, req Request) (*targetSlot, *Result) {
	localNow := t.now().In(cfg.Location())

	date, err := timeparse.ParseDate(req.NewDateText, localNow)
	if err != nil {
		return nil, &Result{Success: false, Code: CodeInvalidDate, Message: "I didn't catch the new date. What day would you like instead?"}
	}
	if date.Before(startOfDay(localNow)) {
		return nil, &Result{Success: false, Code: CodePastDate, Message: "That date has already passed. What day would work for you?"}
	}

	slots, err := t.slots.GetAvailableSlots(ctx, cfg.ClinicID, date)
	if err != nil {
		t.logger.Error("reschedule slot read failed", "error", err, "clinic_id", cfg.ClinicID)
		return nil, &Result{
			Success: false,
			Code:    CodeDatabaseError,
			Message: "I'm having trouble reaching the schedule right now. Nothing was changed; please try again in a moment.",
		}
	}
	open := availability.FilterOpen(slots, cfg.CapacityOverride)

	if req.NewTimeText == "" {
		if len(open) == 0 {
			return nil, &Result{
				Success: false,
				Code:    CodeNoAvailability,
				Message: fmt.Sprintf("I'm sorry, there's nothing open on %s.", timeparse.SpeakableDate(date)),
			}
		}
		first := open[0]
		return &targetSlot{date: date, startTime: first.StartTime, endTime: first.EndTime}, nil
	}

	wanted, err := timeparse.ParseTime(req.NewTimeText)
	if err != nil {
		return nil, &Result{Success: false, Code: CodeInvalidTime, Message: "I didn't catch the new time. What time would you like?"}
	}

	for _, slot := range open {
		if slot.StartTime == wanted {
			return &targetSlot{date: date, startTime: slot.StartTime, endTime: slot.EndTime}, nil
		}
	}

	alternatives := make([]string, 0, maxAlternatives)
	for _, slot := range open {
		if len(alternatives) == maxAlternatives {
			break
		}
		alternatives = append(alternatives, timeparse.Format12Hour(slot.StartTime))
	}

	msg := fmt.Sprintf("I'm sorry, %s isn't open on %s.", timeparse.Format12Hour(wanted), timeparse.SpeakableDate(date))
	if len(alternatives) > 0 {
		msg += " I could do " + joinSpoken(alternatives) + "."
	}
	return nil, &Result{
		Success:      false,
		Code:         CodeSlotNotAvailable,
		Message:      msg,
		Alternatives: alternatives,
	}
}

// execute runs the saga. Step order matters: the original is cancelled
// first so the replacement cannot double-book the caller, and the create
// failure path restores the original exactly as it was.
func (t *Transactor) execute(ctx context.Context, cfg *clinic.Config, req Request, match *verification.Match, target *targetSlot) (*Result, error) {
	appt := match.Appointment
	reason := fmt.Sprintf("rescheduled to %s at %s", target.date.Format("2006-01-02"), target.startTime)

	if err := t.repo.Cancel(ctx, appt.Source, appt.ID, reason, t.now().UTC()); err != nil {
		t.logger.Error("reschedule cancel step failed", "error", err, "appointment_id", appt.ID)
		return &Result{
			Success:  false,
			Code:     CodeDatabaseError,
			Message:  "I wasn't able to make the change. Your original appointment is untouched; please try again in a moment.",
			Original: match,
		}, nil
	}

	newID, err := t.repo.CreatePending(ctx, appointments.Appointment{
		ClinicID:          appt.ClinicID,
		ClientName:        appt.ClientName,
		ClientPhone:       appt.ClientPhone,
		PetName:           appt.PetName,
		PetSpecies:        appt.PetSpecies,
		Date:              target.date,
		StartTime:         target.startTime,
		EndTime:           target.endTime,
		Provider:          appt.Provider,
		Type:              appt.Type,
		ExternalID:        appt.ExternalID,
		RescheduledFromID: appt.ID,
	})
	if err != nil {
		return t.compensate(ctx, cfg, match, err), nil
	}

	t.afterMove(ctx, cfg, req, appt, newID, target)

	return &Result{
		Success: true,
		Message: fmt.Sprintf(
			"Done. %s's appointment is now %s at %s.",
			appt.PetName,
			timeparse.SpeakableDate(target.date),
			timeparse.Format12Hour(target.startTime),
		),
		Original:         match,
		NewAppointmentID: newID,
		NewDate:          target.date,
		NewStartTime:     target.startTime,
	}, nil
}

// compensate restores the original appointment after the create step
// failed. When the restore itself fails the record is left cancelled and
// flagged for operator attention; that path is the only one where the
// caller's schedule state is ambiguous.
func (t *Transactor) compensate(ctx context.Context, cfg *clinic.Config, match *verification.Match, cause error) *Result {
	appt := match.Appointment
	t.logger.Error("reschedule create step failed, compensating", "error", cause, "appointment_id", appt.ID)

	if err := t.repo.Restore(ctx, appt.Source, appt.ID, appt.Status); err != nil {
		t.metrics.ObserveRollback("failed")
		t.logger.Error("reschedule compensation failed",
			"error", err,
			"appointment_id", appt.ID,
			"clinic_id", cfg.ClinicID,
		)
		return &Result{
			Success:  false,
			Code:     CodeDatabaseError,
			Message:  "Something went wrong making the change. Please call the clinic to confirm your appointment.",
			Original: match,
		}
	}

	t.metrics.ObserveRollback("success")
	return &Result{
		Success: false,
		Code:    CodeRollbackSuccess,
		Message: fmt.Sprintf(
			"I wasn't able to make the change, so I've kept %s's original appointment on %s at %s.",
			appt.PetName, match.DateSpoken, match.TimeSpoken,
		),
		Original: match,
	}
}

// afterMove handles post-commit side effects; none can fail the move.
func (t *Transactor) afterMove(ctx context.Context, cfg *clinic.Config, req Request, appt appointments.Appointment, newID string, target *targetSlot) {
	if t.audit != nil {
		err := t.audit.LogReschedule(ctx, cfg.ClinicID, req.CallID, newID, appt.ID, appt.ExternalID, audit.Details{
			Date:          target.date.Format("2006-01-02"),
			StartTime:     target.startTime,
			FromDate:      appt.Date.Format("2006-01-02"),
			FromStartTime: appt.StartTime,
			Reason:        req.Reason,
		})
		if err != nil {
			t.logger.Error("reschedule audit failed", "error", err, "appointment_id", newID)
		}
	}

	if t.sync != nil && appt.ExternalID != "" {
		t.sync.Submit(ctx, pmssync.NewRescheduleJob(cfg.ClinicID, pmssync.RescheduleJob{
			ExternalID:  appt.ExternalID,
			Reason:      req.Reason,
			ClientName:  appt.ClientName,
			ClientPhone: appt.ClientPhone,
			PetName:     appt.PetName,
			PetSpecies:  appt.PetSpecies,
			Date:        target.date.Format("2006-01-02"),
			StartTime:   target.startTime,
			EndTime:     target.endTime,
		}))
	}

	if t.calls != nil && req.CallID != "" {
		snap := calls.Snapshot{
			AppointmentID: newID,
			ExternalID:    appt.ExternalID,
			ClientName:    appt.ClientName,
			PetName:       appt.PetName,
			Date:          target.date.Format("2006-01-02"),
			StartTime:     target.startTime,
			Status:        string(appointments.StatusPendingSync),
		}
		if err := t.calls.SetAppointmentSnapshot(ctx, req.CallID, snap); err != nil {
			t.logger.Error("failed to attach appointment snapshot", "error", err, "call_id", req.CallID)
		}
		if err := t.calls.SetOutcome(ctx, req.CallID, calls.OutcomeRescheduled); err != nil {
			t.logger.Error("failed to set call outcome", "error", err, "call_id", req.CallID)
		}
	}
}

func joinSpoken(spoken []string) string {
	switch len(spoken) {
	case 0:
		return ""
	case 1:
		return spoken[0]
	case 2:
		return spoken[0] + " or " + spoken[1]
	default:
		return strings.Join(spoken[:len(spoken)-1], ", ") + ", or " + spoken[len(spoken)-1]
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
