// Package appointments owns appointment records across the two data
// sources: the primary PMS-synced table and the pending local bookings
// created by our own hold-and-book flow. Records are never physically
// deleted; cancellation is a status transition.
package appointments

import "time"

// Status is the lifecycle state of an appointment record.
type Status string

const (
	// StatusPendingSync marks a locally created record not yet pushed to
	// the clinic's practice management system.
	StatusPendingSync Status = "pending_sync"
	StatusScheduled   Status = "scheduled"
	StatusCancelled   Status = "cancelled"
)

// Source tags which table a record came from.
type Source string

const (
	// SourceSynced is the primary synced-appointments table.
	SourceSynced Source = "primary-synced"
	// SourcePending is the pending-local-bookings table.
	SourcePending Source = "pending-local"
)

// Appointment is a uniform view over both sources.
type Appointment struct {
	ID          string
	ClinicID    string
	ClientName  string
	ClientPhone string
	PetName     string
	PetSpecies  string
	Date        time.Time
	StartTime   string // "HH:MM:SS"
	EndTime     string
	Status      Status
	Provider    string
	Room        string
	Type        string
	// ExternalID is set only when the clinic's practice management
	// system created or mirrors this record.
	ExternalID string
	// RescheduledFromID back-references the record this one replaced.
	RescheduledFromID string
	CancelledAt       *time.Time
	CancelledReason   string
	Source            Source
	UpdatedAt         time.Time
}

// Active reports whether the record still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}
