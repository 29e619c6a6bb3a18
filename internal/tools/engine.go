// Package tools is the uniform surface the voice assistant calls. Each
// tool takes the assistant's string arguments, runs the matching domain
// transactor, and returns a Result whose Message is always safe to read
// aloud and whose Error carries a stable machine code.
package tools

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/availability"
	"github.com/brightpaw/vetdesk-ai-platform/internal/booking"
	"github.com/brightpaw/vetdesk-ai-platform/internal/cancellation"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/observability/metrics"
	"github.com/brightpaw/vetdesk-ai-platform/internal/reschedule"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// Tool names as registered on the voice assistant.
const (
	ToolCheckAvailability     = "check_availability"
	ToolBookAppointment       = "book_appointment"
	ToolVerifyAppointment     = "verify_appointment"
	ToolCancelAppointment     = "cancel_appointment"
	ToolRescheduleAppointment = "reschedule_appointment"
)

// CallContext identifies the live call a tool invocation belongs to.
type CallContext struct {
	CallID       string
	CallerNumber string
}

// Result is the uniform tool response. Message is spoken to the caller;
// Error is the stable code the assistant's prompt logic branches on.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Availability is the slice of the availability service the engine needs.
type Availability interface {
	CheckAvailability(ctx context.Context, cfg *clinic.Config, dateText string) (*availability.DayAvailability, error)
	CheckAvailabilityRange(ctx context.Context, cfg *clinic.Config, startDateText string, daysAhead int) (*availability.RangeResult, error)
}

// Booker runs booking attempts.
type Booker interface {
	Book(ctx context.Context, cfg *clinic.Config, input booking.Input) (*booking.Outcome, error)
}

// Verifier locates existing appointments.
type Verifier interface {
	Resolve(ctx context.Context, cfg *clinic.Config, clientName, petName, dateText string) (*verification.Match, error)
}

// Canceller runs two-phase cancellations.
type Canceller interface {
	Cancel(ctx context.Context, cfg *clinic.Config, req cancellation.Request) (*cancellation.Result, error)
}

// Rescheduler runs the reschedule saga.
type Rescheduler interface {
	Reschedule(ctx context.Context, cfg *clinic.Config, req reschedule.Request) (*reschedule.Result, error)
}

// Engine dispatches tool calls to the domain services.
type Engine struct {
	availability Availability
	booker       Booker
	verifier     Verifier
	canceller    Canceller
	rescheduler  Rescheduler
	metrics      *metrics.ToolMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// EngineConfig wires the engine's dependencies.
type EngineConfig struct {
	Availability Availability
	Booker       Booker
	Verifier     Verifier
	Canceller    Canceller
	Rescheduler  Rescheduler
	Metrics      *metrics.ToolMetrics
	Logger       *logging.Logger
}

// NewEngine creates the tool engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Engine{
		availability: cfg.Availability,
		booker:       cfg.Booker,
		verifier:     cfg.Verifier,
		canceller:    cfg.Canceller,
		rescheduler:  cfg.Rescheduler,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Dispatch routes a named tool call. Unknown tools produce a spoken
// apology with code invalid_state rather than an HTTP error, so the
// assistant can recover mid-call.
func (e *Engine) Dispatch(ctx context.Context, cfg *clinic.Config, tool string, args map[string]string, cc CallContext) Result {
	start := e.now()
	var result Result

	switch tool {
	case ToolCheckAvailability:
		result = e.CheckAvailability(ctx, cfg, args, cc)
	case ToolBookAppointment:
		result = e.Book(ctx, cfg, args, cc)
	case ToolVerifyAppointment:
		result = e.Verify(ctx, cfg, args, cc)
	case ToolCancelAppointment:
		result = e.Cancel(ctx, cfg, args, cc)
	case ToolRescheduleAppointment:
		result = e.Reschedule(ctx, cfg, args, cc)
	default:
		e.logger.Warn("unknown tool requested", "tool", tool, "clinic_id", cfg.ClinicID)
		result = Result{
			Success: false,
			Error:   "invalid_state",
			Message: "I'm sorry, I can't help with that on this call.",
		}
	}

	status := "success"
	if !result.Success {
		status = "error"
		if result.Error != "" {
			status = result.Error
		}
	}
	e.metrics.ObserveToolCall(tool, status)
	e.metrics.ObserveToolLatency(tool, time.Since(start).Seconds())
	return result
}

// CheckAvailability answers "what's open on <date>". With a days_ahead
// argument it scans forward and reports the first open day.
func (e *Engine) CheckAvailability(ctx context.Context, cfg *clinic.Config, args map[string]string, _ CallContext) Result {
	dateText := strings.TrimSpace(args["date"])

	if days := parseDays(args["days_ahead"]); days > 1 {
		return e.checkRange(ctx, cfg, dateText, days)
	}

	day, err := e.availability.CheckAvailability(ctx, cfg, dateText)
	if err != nil {
		return e.availabilityError(err, cfg)
	}

	if !day.Open {
		return Result{
			Success: true,
			Message: "I'm sorry, there's nothing open on " + day.DateSpoken + ". Would another day work?",
			Data:    map[string]any{"date": day.Date, "open": false},
		}
	}

	return Result{
		Success: true,
		Message: "On " + day.DateSpoken + " I have " + spokenTimes(day.Slots) + ". Would any of those work?",
		Data: map[string]any{
			"date":       day.Date,
			"open":       true,
			"open_count": day.OpenCount,
			"slots":      day.Slots,
		},
	}
}

func (e *Engine) checkRange(ctx context.Context, cfg *clinic.Config, startDateText string, days int) Result {
	result, err := e.availability.CheckAvailabilityRange(ctx, cfg, startDateText, days)
	if err != nil {
		return e.availabilityError(err, cfg)
	}

	if result.FirstDay == nil {
		return Result{
			Success: true,
			Message: "I'm sorry, I don't see anything open in the next couple of weeks.",
			Data:    map[string]any{"days": result.Days},
		}
	}

	first := result.FirstDay
	return Result{
		Success: true,
		Message: "The earliest opening is " + first.DateSpoken + " at " + first.Slots[0].StartSpoken + ". Would that work?",
		Data: map[string]any{
			"first_open_day": first,
			"days":           result.Days,
		},
	}
}

func (e *Engine) availabilityError(err error, cfg *clinic.Config) Result {
	switch {
	case errors.Is(err, availability.ErrPastDate):
		return Result{
			Success: false,
			Error:   "past_date",
			Message: "That date has already passed. What day were you thinking of?",
		}
	case errors.Is(err, timeparse.ErrUnrecognizedDate):
		return Result{
			Success: false,
			Error:   "invalid_date",
			Message: "I didn't catch that date. Could you say it another way?",
		}
	default:
		e.logger.Error("availability check failed", "error", err, "clinic_id", cfg.ClinicID)
		return Result{
			Success: false,
			Error:   "database_error",
			Message: "I'm having trouble reaching the schedule right now. Please try again in a moment.",
		}
	}
}

// Book creates a new appointment.
func (e *Engine) Book(ctx context.Context, cfg *clinic.Config, args map[string]string, cc CallContext) Result {
	phone := strings.TrimSpace(args["client_phone"])
	if phone == "" {
		phone = cc.CallerNumber
	}

	outcome, err := e.booker.Book(ctx, cfg, booking.Input{
		CallID:      cc.CallID,
		ClientName:  strings.TrimSpace(args["client_name"]),
		ClientPhone: phone,
		PetName:     strings.TrimSpace(args["pet_name"]),
		PetSpecies:  strings.TrimSpace(args["pet_species"]),
		DateText:    strings.TrimSpace(args["date"]),
		TimeText:    strings.TrimSpace(args["time"]),
		Reason:      strings.TrimSpace(args["reason"]),
	})
	if err != nil {
		e.logger.Error("booking tool failed", "error", err, "clinic_id", cfg.ClinicID)
		return Result{
			Success: false,
			Error:   "database_error",
			Message: "I'm having trouble booking right now. Nothing was saved; please try again in a moment.",
		}
	}

	result := Result{
		Success: outcome.Success,
		Message: outcome.Message,
		Error:   outcome.Code,
	}
	data := map[string]any{}
	if outcome.BookingID != "" {
		data["booking_id"] = outcome.BookingID
	}
	if outcome.ConfirmationNumber != "" {
		data["confirmation_number"] = outcome.ConfirmationNumber
	}
	if outcome.ExternalID != "" {
		data["external_id"] = outcome.ExternalID
	}
	if len(outcome.Alternatives) > 0 {
		data["alternatives"] = outcome.Alternatives
	}
	if len(data) > 0 {
		result.Data = data
	}
	return result
}

// Verify confirms an existing appointment's details back to the caller.
func (e *Engine) Verify(ctx context.Context, cfg *clinic.Config, args map[string]string, _ CallContext) Result {
	match, err := e.verifier.Resolve(ctx, cfg,
		strings.TrimSpace(args["client_name"]),
		strings.TrimSpace(args["pet_name"]),
		strings.TrimSpace(args["date"]),
	)
	if err != nil {
		switch {
		case errors.Is(err, verification.ErrNoMatch):
			return Result{
				Success: false,
				Error:   "appointment_not_found",
				Message: "I couldn't find an appointment matching those details. Could you double-check the date?",
			}
		case errors.Is(err, verification.ErrMissingNames):
			return Result{
				Success: false,
				Error:   "invalid_state",
				Message: "I need your name and your pet's name to look that up.",
			}
		case errors.Is(err, timeparse.ErrUnrecognizedDate):
			return Result{
				Success: false,
				Error:   "invalid_date",
				Message: "I didn't catch that date. What day is the appointment?",
			}
		default:
			e.logger.Error("verify tool failed", "error", err, "clinic_id", cfg.ClinicID)
			return Result{
				Success: false,
				Error:   "database_error",
				Message: "I'm having trouble looking that up right now. Please try again in a moment.",
			}
		}
	}

	appt := match.Appointment
	msg := "I found it. " + appt.PetName + " is booked for " + match.DateSpoken + " at " + match.TimeSpoken
	if appt.Provider != "" {
		msg += " with " + appt.Provider
	}
	msg += "."

	return Result{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"appointment_id": appt.ID,
			"date":           appt.Date.Format("2006-01-02"),
			"start_time":     appt.StartTime,
			"provider":       appt.Provider,
			"source":         string(appt.Source),
		},
	}
}

// Cancel runs the two-phase cancellation.
func (e *Engine) Cancel(ctx context.Context, cfg *clinic.Config, args map[string]string, cc CallContext) Result {
	result, err := e.canceller.Cancel(ctx, cfg, cancellation.Request{
		CallID:     cc.CallID,
		ClientName: strings.TrimSpace(args["client_name"]),
		PetName:    strings.TrimSpace(args["pet_name"]),
		DateText:   strings.TrimSpace(args["date"]),
		Reason:     strings.TrimSpace(args["reason"]),
		Confirmed:  parseBool(args["confirmed"]),
	})
	if err != nil {
		e.logger.Error("cancel tool failed", "error", err, "clinic_id", cfg.ClinicID)
		return Result{
			Success: false,
			Error:   "database_error",
			Message: "I'm having trouble with that right now. Nothing was changed; please try again in a moment.",
		}
	}

	out := Result{Success: result.Success, Message: result.Message, Error: result.Code}
	if result.Match != nil {
		out.Data = map[string]any{
			"appointment_id": result.Match.Appointment.ID,
			"date":           result.Match.Appointment.Date.Format("2006-01-02"),
			"start_time":     result.Match.Appointment.StartTime,
		}
	}
	return out
}

// Reschedule runs the reschedule saga.
func (e *Engine) Reschedule(ctx context.Context, cfg *clinic.Config, args map[string]string, cc CallContext) Result {
	result, err := e.rescheduler.Reschedule(ctx, cfg, reschedule.Request{
		CallID:      cc.CallID,
		ClientName:  strings.TrimSpace(args["client_name"]),
		PetName:     strings.TrimSpace(args["pet_name"]),
		DateText:    strings.TrimSpace(args["date"]),
		NewDateText: strings.TrimSpace(args["new_date"]),
		NewTimeText: strings.TrimSpace(args["new_time"]),
		Reason:      strings.TrimSpace(args["reason"]),
		Confirmed:   parseBool(args["confirmed"]),
	})
	if err != nil {
		e.logger.Error("reschedule tool failed", "error", err, "clinic_id", cfg.ClinicID)
		return Result{
			Success: false,
			Error:   "database_error",
			Message: "I'm having trouble with that right now. Nothing was changed; please try again in a moment.",
		}
	}

	out := Result{Success: result.Success, Message: result.Message, Error: result.Code}
	data := map[string]any{}
	if result.NewAppointmentID != "" {
		data["new_appointment_id"] = result.NewAppointmentID
		data["new_date"] = result.NewDate.Format("2006-01-02")
		data["new_start_time"] = result.NewStartTime
	}
	if result.Original != nil {
		data["appointment_id"] = result.Original.Appointment.ID
	}
	if len(result.Alternatives) > 0 {
		data["alternatives"] = result.Alternatives
	}
	if len(data) > 0 {
		out.Data = data
	}
	return out
}

// spokenTimes lists up to five open times for speech.
func spokenTimes(slots []availability.OpenSlot) string {
	const speakLimit = 5
	spoken := make([]string, 0, speakLimit)
	for _, slot := range slots {
		if len(spoken) == speakLimit {
			break
		}
		spoken = append(spoken, slot.StartSpoken)
	}
	switch len(spoken) {
	case 0:
		return "no openings"
	case 1:
		return spoken[0]
	case 2:
		return spoken[0] + " or " + spoken[1]
	default:
		return strings.Join(spoken[:len(spoken)-1], ", ") + ", or " + spoken[len(spoken)-1]
	}
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func parseDays(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
