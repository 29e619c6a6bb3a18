package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAppointmentNotFound is returned when no record matches.
var ErrAppointmentNotFound = errors.New("appointments: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointment records.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	return &Repository{pool: q}
}

const syncedColumns = `
	id, clinic_id, client_name, client_phone, pet_name, pet_species,
	date, start_time, end_time, status, COALESCE(provider, ''),
	COALESCE(room, ''), COALESCE(appointment_type, ''),
	COALESCE(external_id, ''), COALESCE(rescheduled_from, ''),
	cancelled_at, COALESCE(cancelled_reason, ''), updated_at`

// SearchSynced finds active records in the primary synced table matching
// clinic, date, and case-insensitive name fragments for both the client
// and the pet. Soft-deleted, cancelled, and no-show rows are excluded.
// Most recently updated rows come first.
func (r *Repository) SearchSynced(ctx context.Context, clinicID string, date time.Time, clientFragment, petFragment string) ([]Appointment, error) {
	query := `
		SELECT ` + syncedColumns + `
		FROM appointments
		WHERE clinic_id = $1
		  AND date = $2
		  AND client_name ILIKE '%' || $3 || '%'
		  AND pet_name ILIKE '%' || $4 || '%'
		  AND deleted_at IS NULL
		  AND status NOT IN ('cancelled', 'no_show')
		ORDER BY updated_at DESC
	`
	return r.search(ctx, query, SourceSynced, clinicID, date.Format("2006-01-02"), clientFragment, petFragment)
}

// SearchPending finds records in the pending-local-bookings table with the
// same name filters, restricted to pending/confirmed status.
func (r *Repository) SearchPending(ctx context.Context, clinicID string, date time.Time, clientFragment, petFragment string) ([]Appointment, error) {
	query := `
		SELECT ` + syncedColumns + `
		FROM pending_bookings
		WHERE clinic_id = $1
		  AND date = $2
		  AND client_name ILIKE '%' || $3 || '%'
		  AND pet_name ILIKE '%' || $4 || '%'
		  AND status IN ('pending', 'confirmed', 'pending_sync', 'scheduled')
		ORDER BY updated_at DESC
	`
	return r.search(ctx, query, SourcePending, clinicID, date.Format("2006-01-02"), clientFragment, petFragment)
}

func (r *Repository) search(ctx context.Context, query string, source Source, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: search %s: %w", source, err)
	}
	defer rows.Close()

	var results []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows, source)
		if err != nil {
			return nil, err
		}
		results = append(results, *appt)
	}
	return results, rows.Err()
}

// GetByID loads one record from the table its source tag names.
func (r *Repository) GetByID(ctx context.Context, source Source, id string) (*Appointment, error) {
	table, err := tableFor(source)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + syncedColumns + ` FROM ` + table + ` WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	appt, err := scanRow(row, source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: get %s: %w", id, err)
	}
	return appt, nil
}

// Cancel marks a record cancelled with a timestamp and reason. The row is
// kept; nothing is deleted.
func (r *Repository) Cancel(ctx context.Context, source Source, id, reason string, at time.Time) error {
	table, err := tableFor(source)
	if err != nil {
		return err
	}
	query := `
		UPDATE ` + table + `
		SET status = 'cancelled', cancelled_at = $2, cancelled_reason = $3, updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return fmt.Errorf("appointments: cancel %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Restore is the exact inverse of Cancel: it puts back the prior status
// and clears the cancellation fields. Used by the reschedule saga's
// compensation step.
func (r *Repository) Restore(ctx context.Context, source Source, id string, priorStatus Status) error {
	table, err := tableFor(source)
	if err != nil {
		return err
	}
	query := `
		UPDATE ` + table + `
		SET status = $2, cancelled_at = NULL, cancelled_reason = NULL, updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, id, string(priorStatus))
	if err != nil {
		return fmt.Errorf("appointments: restore %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// CreatePending inserts a new pending-local booking, typically as the
// target of a reschedule. Returns the new record id.
func (r *Repository) CreatePending(ctx context.Context, appt Appointment) (string, error) {
	id := appt.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := appt.Status
	if status == "" {
		status = StatusPendingSync
	}
	query := `
		INSERT INTO pending_bookings (
			id, clinic_id, client_name, client_phone, pet_name, pet_species,
			date, start_time, end_time, status, provider, room,
			appointment_type, external_id, rescheduled_from
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.pool.Exec(ctx, query,
		id,
		appt.ClinicID,
		appt.ClientName,
		appt.ClientPhone,
		appt.PetName,
		appt.PetSpecies,
		appt.Date.Format("2006-01-02"),
		appt.StartTime,
		appt.EndTime,
		string(status),
		nullable(appt.Provider),
		nullable(appt.Room),
		nullable(appt.Type),
		nullable(appt.ExternalID),
		nullable(appt.RescheduledFromID),
	)
	if err != nil {
		return "", fmt.Errorf("appointments: create pending: %w", err)
	}
	return id, nil
}

func tableFor(source Source) (string, error) {
	switch source {
	case SourceSynced:
		return "appointments", nil
	case SourcePending:
		return "pending_bookings", nil
	default:
		return "", fmt.Errorf("appointments: unknown source %q", source)
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAppointment(rows pgx.Rows, source Source) (*Appointment, error) {
	appt, err := scanRow(rows, source)
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	return appt, nil
}

func scanRow(row scannable, source Source) (*Appointment, error) {
	var appt Appointment
	if err := row.Scan(
		&appt.ID,
		&appt.ClinicID,
		&appt.ClientName,
		&appt.ClientPhone,
		&appt.PetName,
		&appt.PetSpecies,
		&appt.Date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&appt.Provider,
		&appt.Room,
		&appt.Type,
		&appt.ExternalID,
		&appt.RescheduledFromID,
		&appt.CancelledAt,
		&appt.CancelledReason,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Source = source
	return &appt, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
