// Package calls persists per-call state for the voice channel: the outcome
// tag shown on the call log, the appointment snapshot attached after a
// successful booking action, and the manual booking payload staff work
// from when a clinic has no API integration.
package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCallNotFound is returned when no call row matches the id.
var ErrCallNotFound = errors.New("calls: not found")

// Outcome values shown on the clinic's call log.
const (
	OutcomeBooked      = "Booked"
	OutcomeCancelled   = "Cancelled"
	OutcomeRescheduled = "Rescheduled"
	OutcomeManualEntry = "Manual Entry"
)

// Snapshot is the appointment state attached to a call after a successful
// booking mutation, so the call log can show what happened without a join.
type Snapshot struct {
	AppointmentID string `json:"appointment_id"`
	ExternalID    string `json:"external_id,omitempty"`
	ClientName    string `json:"client_name"`
	PetName       string `json:"pet_name"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Status        string `json:"status"`
}

// ManualBooking is the request payload staff act on for no-API clinics.
type ManualBooking struct {
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	PetName     string `json:"pet_name"`
	PetSpecies  string `json:"pet_species,omitempty"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	Reason      string `json:"reason,omitempty"`
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists call records.
type Store struct {
	pool execer
}

// NewStore creates a call store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithExecer(e execer) *Store {
	return &Store{pool: e}
}

// SetOutcome tags the call with its final disposition.
func (s *Store) SetOutcome(ctx context.Context, callID, outcome string) error {
	query := `UPDATE calls SET outcome = $2, updated_at = now() WHERE id = $1`
	ct, err := s.pool.Exec(ctx, query, callID, outcome)
	if err != nil {
		return fmt.Errorf("calls: set outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

// SetAppointmentSnapshot attaches the appointment state to the call record.
func (s *Store) SetAppointmentSnapshot(ctx context.Context, callID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("calls: marshal snapshot: %w", err)
	}
	query := `UPDATE calls SET appointment_snapshot = $2, updated_at = now() WHERE id = $1`
	ct, err := s.pool.Exec(ctx, query, callID, payload)
	if err != nil {
		return fmt.Errorf("calls: set snapshot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

// WriteManualBooking stores the booking request for staff follow-up and
// tags the call as a manual entry in one statement.
func (s *Store) WriteManualBooking(ctx context.Context, callID string, booking ManualBooking) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("calls: marshal manual booking: %w", err)
	}
	query := `
		UPDATE calls
		SET manual_booking = $2, outcome = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, callID, payload, OutcomeManualEntry)
	if err != nil {
		return fmt.Errorf("calls: write manual booking: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}
