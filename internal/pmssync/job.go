// Package pmssync propagates booking mutations to a clinic's external
// practice management system after the local transaction has committed.
// Submission is fire-and-forget: the caller's transaction never waits on,
// or fails because of, PMS propagation. The worker consumes jobs and
// relies on queue redrive for retries.
package pmssync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind discriminates sync job payloads.
type JobKind string

const (
	// KindCancel propagates a cancellation to the PMS.
	KindCancel JobKind = "pms.cancel"
	// KindReschedule propagates a reschedule as cancel-then-create.
	KindReschedule JobKind = "pms.reschedule"
)

// Job is the envelope placed on the sync queue.
type Job struct {
	ID         string         `json:"id"`
	Kind       JobKind        `json:"kind"`
	ClinicID   string         `json:"clinic_id"`
	Cancel     *CancelJob     `json:"cancel,omitempty"`
	Reschedule *RescheduleJob `json:"reschedule,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// CancelJob tells the worker which external appointment to cancel.
type CancelJob struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason,omitempty"`
}

// RescheduleJob tells the worker to cancel the old external appointment
// and create the replacement.
type RescheduleJob struct {
	ExternalID  string `json:"external_id"`
	Reason      string `json:"reason,omitempty"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	PetName     string `json:"pet_name"`
	PetSpecies  string `json:"pet_species,omitempty"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// NewCancelJob builds a cancel sync job.
func NewCancelJob(clinicID string, cancel CancelJob) Job {
	return Job{
		ID:         uuid.NewString(),
		Kind:       KindCancel,
		ClinicID:   clinicID,
		Cancel:     &cancel,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewRescheduleJob builds a reschedule sync job.
func NewRescheduleJob(clinicID string, resched RescheduleJob) Job {
	return Job{
		ID:         uuid.NewString(),
		Kind:       KindReschedule,
		ClinicID:   clinicID,
		Reschedule: &resched,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks that the payload matching the kind is present.
func (j Job) Validate() error {
	switch j.Kind {
	case KindCancel:
		if j.Cancel == nil || j.Cancel.ExternalID == "" {
			return fmt.Errorf("pmssync: cancel job missing external id")
		}
	case KindReschedule:
		if j.Reschedule == nil || j.Reschedule.ExternalID == "" {
			return fmt.Errorf("pmssync: reschedule job missing external id")
		}
	default:
		return fmt.Errorf("pmssync: unknown job kind %q", j.Kind)
	}
	if j.ClinicID == "" {
		return fmt.Errorf("pmssync: job missing clinic id")
	}
	return nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("pmssync: decode job: %w", err)
	}
	return job, nil
}
