// Package scheduling reads slot projections and invokes the store's atomic
// hold-and-book procedure. Slot generation and hold expiry live in the
// database; this package only consumes their results.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Slot is a clinic-and-date-scoped bookable time unit, computed by the
// store's get_available_slots procedure.
type Slot struct {
	StartTime      string // "HH:MM:SS"
	EndTime        string // "HH:MM:SS"
	Capacity       int
	BookedCount    int
	AvailableCount int
	IsBlocked      bool
	BlockReason    string
}

// BookingRequest carries everything book_slot_with_hold needs.
type BookingRequest struct {
	ClinicID    string
	Date        time.Time
	StartTime   string // "HH:MM:SS"
	ClientName  string
	ClientPhone string
	PetName     string
	PetSpecies  string
	Reason      string
}

// BookingResult is the structured outcome of book_slot_with_hold. On
// failure the procedure suggests other open times for the same date.
type BookingResult struct {
	Success            bool
	BookingID          string
	ConfirmationNumber string
	FailureReason      string
	AlternativeTimes   []string // "HH:MM:SS", already filtered to open slots
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps the scheduling procedures.
type Store struct {
	pool querier
}

// NewStore creates a scheduling store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	return &Store{pool: q}
}

// GetAvailableSlots returns the slot projection for a clinic and date,
// unfiltered. Callers apply blocking/capacity rules.
func (s *Store) GetAvailableSlots(ctx context.Context, clinicID string, date time.Time) ([]Slot, error) {
	query := `
		SELECT start_time, end_time, capacity, booked_count,
			   available_count, is_blocked, COALESCE(block_reason, '')
		FROM get_available_slots($1, $2)
		ORDER BY start_time
	`
	rows, err := s.pool.Query(ctx, query, clinicID, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("scheduling: get available slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(
			&slot.StartTime,
			&slot.EndTime,
			&slot.Capacity,
			&slot.BookedCount,
			&slot.AvailableCount,
			&slot.IsBlocked,
			&slot.BlockReason,
		); err != nil {
			return nil, fmt.Errorf("scheduling: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// BookSlotWithHold invokes the store's atomic hold-and-book procedure. This
// call is the serialization point for double-booking prevention; we react
// only to its structured result and never lock anything ourselves.
func (s *Store) BookSlotWithHold(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	query := `
		SELECT success, booking_id, confirmation_number, error_reason, alternative_times
		FROM book_slot_with_hold($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var (
		result       BookingResult
		bookingID    *string
		confirmation *string
		reason       *string
		alternatives []string
	)
	err := s.pool.QueryRow(ctx, query,
		req.ClinicID,
		req.Date.Format("2006-01-02"),
		req.StartTime,
		req.ClientName,
		req.ClientPhone,
		req.PetName,
		req.PetSpecies,
		req.Reason,
	).Scan(&result.Success, &bookingID, &confirmation, &reason, &alternatives)
	if err != nil {
		return nil, fmt.Errorf("scheduling: book slot with hold: %w", err)
	}

	if bookingID != nil {
		result.BookingID = *bookingID
	}
	if confirmation != nil {
		result.ConfirmationNumber = *confirmation
	}
	if reason != nil {
		result.FailureReason = *reason
	}
	result.AlternativeTimes = alternatives
	return &result, nil
}
