// Package audit writes the append-only appointment audit trail. Every
// successful booking mutation gets exactly one entry; rows are never
// updated or deleted.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies the mutation being recorded.
type Action string

const (
	// ActionBook is logged when a new appointment is created.
	ActionBook Action = "appointment.book"
	// ActionCancel is logged when an appointment is cancelled.
	ActionCancel Action = "appointment.cancel"
	// ActionReschedule is logged when an appointment is moved to a new slot.
	ActionReschedule Action = "appointment.reschedule"
)

// ChannelVoiceCall is the only channel this engine writes. Other channels
// (web portal, staff UI) have their own writers.
const ChannelVoiceCall = "voice-call"

// Entry is an immutable audit record.
type Entry struct {
	ID                 string          `json:"id"`
	Action             Action          `json:"action"`
	ClinicID           string          `json:"clinic_id"`
	CallID             string          `json:"call_id,omitempty"`
	AppointmentID      string          `json:"appointment_id,omitempty"`
	PriorAppointmentID string          `json:"prior_appointment_id,omitempty"`
	ExternalID         string          `json:"external_id,omitempty"`
	Channel            string          `json:"channel"`
	Details            json.RawMessage `json:"details,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Details carries action-specific context.
type Details struct {
	Date      string `json:"date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// For reschedule
	FromDate      string `json:"from_date,omitempty"`
	FromStartTime string `json:"from_start_time,omitempty"`
}

// Service handles audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Log records an audit entry.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Channel == "" {
		entry.Channel = ChannelVoiceCall
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO appointment_audit_log (
			id, action, clinic_id, call_id, appointment_id,
			prior_appointment_id, external_id, channel, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.ClinicID,
		nullString(entry.CallID),
		nullString(entry.AppointmentID),
		nullString(entry.PriorAppointmentID),
		nullString(entry.ExternalID),
		entry.Channel,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log entry: %w", err)
	}

	return nil
}

// LogBook records a successful booking. externalID is set when the record
// was created directly in the clinic's PMS.
func (s *Service) LogBook(ctx context.Context, clinicID, callID, appointmentID, externalID string, d Details) error {
	detailsJSON, _ := json.Marshal(d)
	return s.Log(ctx, Entry{
		Action:        ActionBook,
		ClinicID:      clinicID,
		CallID:        callID,
		AppointmentID: appointmentID,
		ExternalID:    externalID,
		Details:       detailsJSON,
	})
}

// LogCancel records a successful cancellation.
func (s *Service) LogCancel(ctx context.Context, clinicID, callID, appointmentID, externalID string, d Details) error {
	detailsJSON, _ := json.Marshal(d)
	return s.Log(ctx, Entry{
		Action:        ActionCancel,
		ClinicID:      clinicID,
		CallID:        callID,
		AppointmentID: appointmentID,
		ExternalID:    externalID,
		Details:       detailsJSON,
	})
}

// LogReschedule records a completed reschedule with both record ids.
func (s *Service) LogReschedule(ctx context.Context, clinicID, callID, newAppointmentID, priorAppointmentID, externalID string, d Details) error {
	detailsJSON, _ := json.Marshal(d)
	return s.Log(ctx, Entry{
		Action:             ActionReschedule,
		ClinicID:           clinicID,
		CallID:             callID,
		AppointmentID:      newAppointmentID,
		PriorAppointmentID: priorAppointmentID,
		ExternalID:         externalID,
		Details:            detailsJSON,
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
