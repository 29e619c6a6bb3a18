// Package cancellation cancels appointments in two phases: an unconfirmed
// request only reads back what was found, and nothing mutates until the
// caller explicitly confirms.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/audit"
	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pmssync"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// Stable outcome codes surfaced to the tool layer.
const (
	CodeNotFound             = "appointment_not_found"
	CodeRequiresConfirmation = "requires_confirmation"
	CodeDatabaseError        = "database_error"
	CodeInvalidDate          = "invalid_date"
	CodeInvalidState         = "invalid_state"
)

// Request carries the caller's identifying details and intent.
type Request struct {
	CallID     string
	ClientName string
	PetName    string
	DateText   string
	Reason     string
	Confirmed  bool
}

// Result is the uniform cancellation outcome.
type Result struct {
	Success bool
	Code    string
	Message string
	Match   *verification.Match
}

// Verifier locates the appointment to cancel.
type Verifier interface {
	Resolve(ctx context.Context, cfg *clinic.Config, clientName, petName, dateText string) (*verification.Match, error)
}

// Canceller is the slice of the appointments repository this needs.
type Canceller interface {
	Cancel(ctx context.Context, source appointments.Source, id, reason string, at time.Time) error
}

// Auditor records the mutation.
type Auditor interface {
	LogCancel(ctx context.Context, clinicID, callID, appointmentID, externalID string, d audit.Details) error
}

// SyncSubmitter publishes fire-and-forget PMS propagation jobs.
type SyncSubmitter interface {
	Submit(ctx context.Context, job pmssync.Job)
}

// OutcomeSetter tags the call record.
type OutcomeSetter interface {
	SetOutcome(ctx context.Context, callID, outcome string) error
}

// Transactor runs the two-phase cancellation.
type Transactor struct {
	verifier Verifier
	repo     Canceller
	audit    Auditor
	sync     SyncSubmitter
	calls    OutcomeSetter
	logger   *logging.Logger
	now      func() time.Time
}

// NewTransactor creates the cancellation transactor. audit, sync, and
// calls may be nil in reduced deployments.
func NewTransactor(verifier Verifier, repo Canceller, auditor Auditor, sync SyncSubmitter, outcomes OutcomeSetter, logger *logging.Logger) *Transactor {
	if verifier == nil {
		panic("cancellation: verifier required")
	}
	if repo == nil {
		panic("cancellation: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Transactor{
		verifier: verifier,
		repo:     repo,
		audit:    auditor,
		sync:     sync,
		calls:    outcomes,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (t *Transactor) WithNow(now func() time.Time) *Transactor {
	t.now = now
	return t
}

// Cancel verifies, then cancels once confirmed. An unconfirmed request
// never mutates anything.
func (t *Transactor) Cancel(ctx context.Context, cfg *clinic.Config, req Request) (*Result, error) {
	match, result := t.verify(ctx, cfg, req)
	if result != nil {
		return result, nil
	}
	appt := match.Appointment

	if !req.Confirmed {
		return &Result{
			Success: false,
			Code:    CodeRequiresConfirmation,
			Message: fmt.Sprintf(
				"I found %s's appointment on %s at %s. Should I go ahead and cancel it?",
				appt.PetName, match.DateSpoken, match.TimeSpoken,
			),
			Match: match,
		}, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled by caller"
	}

	if err := t.repo.Cancel(ctx, appt.Source, appt.ID, reason, t.now().UTC()); err != nil {
		if errors.Is(err, appointments.ErrAppointmentNotFound) {
			return &Result{Success: false, Code: CodeNotFound, Message: notFoundMessage(req.PetName)}, nil
		}
		t.logger.Error("cancellation write failed", "error", err, "appointment_id", appt.ID, "clinic_id", cfg.ClinicID)
		return &Result{
			Success: false,
			Code:    CodeDatabaseError,
			Message: "I wasn't able to cancel just now. The appointment remains scheduled; please try again in a moment.",
		}, nil
	}

	t.afterCancel(ctx, cfg, req, appt, reason)

	return &Result{
		Success: true,
		Message: fmt.Sprintf(
			"Done. %s's appointment on %s at %s has been cancelled.",
			appt.PetName, match.DateSpoken, match.TimeSpoken,
		),
		Match: match,
	}, nil
}

func (t *Transactor) verify(ctx context.Context, cfg *clinic.Config, req Request) (*verification.Match, *Result) {
	match, err := t.verifier.Resolve(ctx, cfg, req.ClientName, req.PetName, req.DateText)
	if err == nil {
		return match, nil
	}

	switch {
	case errors.Is(err, verification.ErrNoMatch):
		return nil, &Result{Success: false, Code: CodeNotFound, Message: notFoundMessage(req.PetName)}
	case errors.Is(err, verification.ErrMissingNames):
		return nil, &Result{Success: false, Code: CodeInvalidState, Message: "I need your name and your pet's name to look that up."}
	case errors.Is(err, timeparse.ErrUnrecognizedDate):
		return nil, &Result{Success: false, Code: CodeInvalidDate, Message: "I didn't catch that date. What day is the appointment?"}
	default:
		t.logger.Error("cancellation verify failed", "error", err, "clinic_id", cfg.ClinicID)
		return nil, &Result{
			Success: false,
			Code:    CodeDatabaseError,
			Message: "I'm having trouble looking that up right now. Nothing was changed; please try again in a moment.",
		}
	}
}

// afterCancel handles the post-commit side effects. None of them can fail
// the cancellation: the local write is already durable.
func (t *Transactor) afterCancel(ctx context.Context, cfg *clinic.Config, req Request, appt appointments.Appointment, reason string) {
	if t.audit != nil {
		err := t.audit.LogCancel(ctx, cfg.ClinicID, req.CallID, appt.ID, appt.ExternalID, audit.Details{
			Date:      appt.Date.Format("2006-01-02"),
			StartTime: appt.StartTime,
			Reason:    reason,
		})
		if err != nil {
			t.logger.Error("cancellation audit failed", "error", err, "appointment_id", appt.ID)
		}
	}

	if t.sync != nil && appt.ExternalID != "" {
		t.sync.Submit(ctx, pmssync.NewCancelJob(cfg.ClinicID, pmssync.CancelJob{
			ExternalID: appt.ExternalID,
			Reason:     reason,
		}))
	}

	if t.calls != nil && req.CallID != "" {
		if err := t.calls.SetOutcome(ctx, req.CallID, calls.OutcomeCancelled); err != nil {
			t.logger.Error("failed to set call outcome", "error", err, "call_id", req.CallID)
		}
	}
}

func notFoundMessage(petName string) string {
	if petName == "" {
		return "I couldn't find an appointment matching those details."
	}
	return fmt.Sprintf("I couldn't find an appointment for %s matching those details.", petName)
}
