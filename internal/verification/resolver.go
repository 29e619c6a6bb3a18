// Package verification locates an existing appointment from the identifying
// details a caller can say out loud: their name, the pet's name, and the
// date. Matching is deliberately fuzzy because both names arrive through
// speech-to-text.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

var (
	// ErrNoMatch means neither data source held a matching appointment.
	ErrNoMatch = errors.New("verification: no matching appointment")
	// ErrMissingNames is returned when the caller supplied neither name.
	ErrMissingNames = errors.New("verification: owner and pet name required")
)

// Searcher is the slice of the appointments repository this resolver needs.
type Searcher interface {
	SearchSynced(ctx context.Context, clinicID string, date time.Time, clientFragment, petFragment string) ([]appointments.Appointment, error)
	SearchPending(ctx context.Context, clinicID string, date time.Time, clientFragment, petFragment string) ([]appointments.Appointment, error)
}

// Match is the uniform shape returned for a verified appointment.
type Match struct {
	Appointment appointments.Appointment
	DateSpoken  string // "Monday, June 15"
	TimeSpoken  string // "10:00 AM"
}

// Resolver verifies appointments across the two data sources.
type Resolver struct {
	repo   Searcher
	logger *logging.Logger
	now    func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(repo Searcher, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve finds the appointment matching the caller's details. The primary
// synced source wins; pending local bookings are consulted only when the
// primary has nothing. Multiple matches resolve to the most recently
// updated row.
func (r *Resolver) Resolve(ctx context.Context, cfg *clinic.Config, clientName, petName, dateText string) (*Match, error) {
	clientName = strings.TrimSpace(clientName)
	petName = strings.TrimSpace(petName)
	if clientName == "" && petName == "" {
		return nil, ErrMissingNames
	}

	localNow := r.now().In(cfg.Location())
	date, err := timeparse.ParseDate(dateText, localNow)
	if err != nil {
		return nil, err
	}

	synced, err := r.repo.SearchSynced(ctx, cfg.ClinicID, date, clientName, petName)
	if err != nil {
		return nil, fmt.Errorf("verification: search synced: %w", err)
	}
	if len(synced) > 0 {
		return r.toMatch(synced[0], len(synced)), nil
	}

	pending, err := r.repo.SearchPending(ctx, cfg.ClinicID, date, clientName, petName)
	if err != nil {
		return nil, fmt.Errorf("verification: search pending: %w", err)
	}
	if len(pending) > 0 {
		return r.toMatch(pending[0], len(pending)), nil
	}

	return nil, ErrNoMatch
}

func (r *Resolver) toMatch(appt appointments.Appointment, total int) *Match {
	if total > 1 {
		r.logger.Info("verification: multiple matches, using most recent",
			"clinic_id", appt.ClinicID,
			"appointment_id", appt.ID,
			"match_count", total,
		)
	}
	return &Match{
		Appointment: appt,
		DateSpoken:  timeparse.SpeakableDate(appt.Date),
		TimeSpoken:  timeparse.Format12Hour(appt.StartTime),
	}
}
