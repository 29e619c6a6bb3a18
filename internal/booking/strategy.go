// Package booking creates new appointments. Each clinic integration type
// gets its own strategy; the transactor normalizes the caller's spoken
// date and time, then dispatches to the strategy registered for the
// clinic.
package booking

import (
	"context"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
)

// Stable outcome codes surfaced to the tool layer.
const (
	CodePastDate        = "past_date"
	CodeInvalidDate     = "invalid_date"
	CodeInvalidTime     = "invalid_time"
	CodeSlotUnavailable = "slot_unavailable"
	CodeNoAvailability  = "no_availability"
	CodeMissingCallID   = "missing_call_id"
	CodeDatabaseError   = "database_error"
)

// Request is a fully normalized booking request: the date and time have
// already been parsed in the clinic's timezone.
type Request struct {
	Clinic      *clinic.Config
	CallID      string
	ClientName  string
	ClientPhone string
	PetName     string
	PetSpecies  string
	Date        time.Time
	StartTime   string // "HH:MM:SS"
	EndTime     string // "HH:MM:SS"
	Reason      string
}

// Outcome is the uniform result of a booking attempt. When Success is
// false, Code carries the stable machine-readable reason and Message a
// sentence the voice agent can read to the caller.
type Outcome struct {
	Success            bool
	Code               string
	Message            string
	BookingID          string
	ConfirmationNumber string
	ExternalID         string
	Alternatives       []string // spoken times, e.g. "2:30 PM"
	Strategy           string   // name of the strategy that produced the outcome
}

// Strategy attempts a booking for one integration type. Attempt returns an
// error only for infrastructure failures; domain failures (slot taken, no
// availability) come back as unsuccessful Outcomes.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*Outcome, error)
}

// Registry maps clinic integration types to strategies, resolved once at
// composition time.
type Registry map[clinic.IntegrationType]Strategy
