package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/audit"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// defaultVisitMinutes is the slot length assumed when the clinic has not
// configured one. Slot generation uses the same value.
const defaultVisitMinutes = 30

// Input carries the raw, possibly spoken booking details.
type Input struct {
	CallID      string
	ClientName  string
	ClientPhone string
	PetName     string
	PetSpecies  string
	DateText    string
	TimeText    string
	Reason      string
}

// Auditor records the mutation.
type Auditor interface {
	LogBook(ctx context.Context, clinicID, callID, appointmentID, externalID string, d audit.Details) error
}

// Transactor normalizes booking input and dispatches to the strategy
// registered for the clinic's integration type.
type Transactor struct {
	registry Registry
	auditor  Auditor
	logger   *logging.Logger
	now      func() time.Time
}

// NewTransactor creates the booking transactor. auditor may be nil.
func NewTransactor(registry Registry, auditor Auditor, logger *logging.Logger) *Transactor {
	if len(registry) == 0 {
		panic("booking: strategy registry required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Transactor{registry: registry, auditor: auditor, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (t *Transactor) WithNow(now func() time.Time) *Transactor {
	t.now = now
	return t
}

// Book validates the spoken date and time, then runs the clinic's
// strategy. Validation failures come back as unsuccessful outcomes so the
// voice agent can re-prompt; only infrastructure errors surface as errors.
func (t *Transactor) Book(ctx context.Context, cfg *clinic.Config, input Input) (*Outcome, error) {
	localNow := t.now().In(cfg.Location())

	date, err := timeparse.ParseDate(input.DateText, localNow)
	if err != nil {
		return &Outcome{
			Success: false,
			Code:    CodeInvalidDate,
			Message: fmt.Sprintf("I didn't catch that date. Could you say it again, like %q?", "next Tuesday"),
		}, nil
	}
	if date.Before(startOfDay(localNow)) {
		return &Outcome{
			Success: false,
			Code:    CodePastDate,
			Message: "That date has already passed. What day would work for you?",
		}, nil
	}

	startTime, err := timeparse.ParseTime(input.TimeText)
	if err != nil {
		return &Outcome{
			Success: false,
			Code:    CodeInvalidTime,
			Message: fmt.Sprintf("I didn't catch that time. Could you say it again, like %q?", "2:30 PM"),
		}, nil
	}

	strategy, ok := t.registry[cfg.EffectiveIntegration()]
	if !ok {
		return nil, fmt.Errorf("booking: no strategy for integration %q", cfg.EffectiveIntegration())
	}

	req := Request{
		Clinic:      cfg,
		CallID:      input.CallID,
		ClientName:  input.ClientName,
		ClientPhone: input.ClientPhone,
		PetName:     input.PetName,
		PetSpecies:  input.PetSpecies,
		Date:        date,
		StartTime:   startTime,
		EndTime:     addMinutes(startTime, defaultVisitMinutes),
		Reason:      input.Reason,
	}

	outcome, err := strategy.Attempt(ctx, req)
	if err != nil {
		t.logger.Error("booking attempt failed",
			"error", err,
			"strategy", strategy.Name(),
			"clinic_id", cfg.ClinicID,
		)
		return &Outcome{
			Success:  false,
			Code:     CodeDatabaseError,
			Message:  "I'm having trouble reaching the schedule right now. Nothing was booked; please try again in a moment.",
			Strategy: strategy.Name(),
		}, nil
	}

	t.logger.Info("booking attempt finished",
		"strategy", outcome.Strategy,
		"success", outcome.Success,
		"code", outcome.Code,
		"clinic_id", cfg.ClinicID,
	)
	if outcome.Success {
		t.afterBook(ctx, cfg, req, outcome)
	}
	return outcome, nil
}

// afterBook writes the audit entry for a committed booking. The booking
// already succeeded, so a write failure is logged, never surfaced.
func (t *Transactor) afterBook(ctx context.Context, cfg *clinic.Config, req Request, outcome *Outcome) {
	if t.auditor == nil {
		return
	}
	err := t.auditor.LogBook(ctx, cfg.ClinicID, req.CallID, outcome.BookingID, outcome.ExternalID, audit.Details{
		Date:      req.Date.Format("2006-01-02"),
		StartTime: req.StartTime,
		Reason:    req.Reason,
	})
	if err != nil {
		t.logger.Error("booking audit write failed",
			"error", err,
			"clinic_id", cfg.ClinicID,
			"booking_id", outcome.BookingID,
		)
	}
}

func addMinutes(canonical string, minutes int) string {
	t, err := time.Parse("15:04:05", canonical)
	if err != nil {
		return canonical
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format("15:04:05")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
