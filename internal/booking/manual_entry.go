package booking

import (
	"context"
	"fmt"

	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/notify"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// ManualBookingWriter is the slice of the call store the manual strategy
// needs.
type ManualBookingWriter interface {
	WriteManualBooking(ctx context.Context, callID string, booking calls.ManualBooking) error
}

// ManualEntry handles clinics with no API integration: the request is
// written to the call record and staff are emailed to enter it by hand.
type ManualEntry struct {
	calls  ManualBookingWriter
	email  notify.EmailSender
	logger *logging.Logger
}

// NewManualEntry creates the no-API booking strategy.
func NewManualEntry(writer ManualBookingWriter, email notify.EmailSender, logger *logging.Logger) *ManualEntry {
	if writer == nil {
		panic("booking: manual booking writer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ManualEntry{calls: writer, email: email, logger: logger}
}

func (s *ManualEntry) Name() string { return "no_api" }

// Attempt records the request against the call and notifies staff. The
// call record is the system of record here, so a missing call id is a
// hard failure rather than a silent drop.
func (s *ManualEntry) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	if req.CallID == "" {
		return &Outcome{
			Success:  false,
			Code:     CodeMissingCallID,
			Message:  "I wasn't able to take down your request on this call. Please call the clinic directly to book.",
			Strategy: s.Name(),
		}, nil
	}

	booking := calls.ManualBooking{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		PetName:     req.PetName,
		PetSpecies:  req.PetSpecies,
		Date:        req.Date.Format("2006-01-02"),
		StartTime:   req.StartTime,
		Reason:      req.Reason,
	}
	if err := s.calls.WriteManualBooking(ctx, req.CallID, booking); err != nil {
		return nil, fmt.Errorf("booking: manual entry: %w", err)
	}

	s.notifyStaff(ctx, req)

	return &Outcome{
		Success: true,
		Message: fmt.Sprintf(
			"I've passed your request for %s on %s to the team at %s. They'll confirm with you shortly.",
			timeparse.Format12Hour(req.StartTime),
			timeparse.SpeakableDate(req.Date),
			req.Clinic.SpokenName(),
		),
		Strategy: s.Name(),
	}, nil
}

// notifyStaff emails the clinic's configured recipients. Email failures
// are logged only; the request is already on the call record.
func (s *ManualEntry) notifyStaff(ctx context.Context, req Request) {
	cfg := req.Clinic
	if s.email == nil || !cfg.Notifications.EmailEnabled {
		return
	}
	for _, recipient := range cfg.Notifications.EmailRecipients {
		msg := notify.BookingRequestEmail(recipient, notify.BookingRequest{
			ClinicName:  cfg.SpokenName(),
			ClientName:  req.ClientName,
			ClientPhone: req.ClientPhone,
			PetName:     req.PetName,
			PetSpecies:  req.PetSpecies,
			DateSpoken:  timeparse.SpeakableDate(req.Date),
			TimeSpoken:  timeparse.Format12Hour(req.StartTime),
			Reason:      req.Reason,
			CallID:      req.CallID,
		})
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("failed to email booking request", "error", err, "to", recipient, "call_id", req.CallID)
		}
	}
}
