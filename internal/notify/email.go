// Package notify delivers outbound notifications to clinic staff.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SES, SMTP) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

// BookingRequest carries the details staff need to enter an appointment
// into their practice management system by hand.
type BookingRequest struct {
	ClinicName  string
	ClientName  string
	ClientPhone string
	PetName     string
	PetSpecies  string
	DateSpoken  string
	TimeSpoken  string
	Reason      string
	CallID      string
}

// BookingRequestEmail renders the staff notification for a manual booking.
func BookingRequestEmail(to string, req BookingRequest) EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "A caller requested an appointment at %s.\n\n", req.ClinicName)
	fmt.Fprintf(&b, "Client: %s (%s)\n", req.ClientName, req.ClientPhone)
	fmt.Fprintf(&b, "Pet: %s", req.PetName)
	if req.PetSpecies != "" {
		fmt.Fprintf(&b, " (%s)", req.PetSpecies)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Requested: %s at %s\n", req.DateSpoken, req.TimeSpoken)
	if req.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", req.Reason)
	}
	fmt.Fprintf(&b, "Call reference: %s\n\n", req.CallID)
	b.WriteString("Please enter this appointment into your practice management system and confirm with the client.\n")

	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("New appointment request: %s / %s on %s", req.ClientName, req.PetName, req.DateSpoken),
		Body:    b.String(),
	}
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}
