package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pms"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// defaultSearchLimit bounds PMS patient searches.
const defaultSearchLimit = 5

// CallRecorder is the slice of the call store the PMS strategy needs.
type CallRecorder interface {
	SetOutcome(ctx context.Context, callID, outcome string) error
	SetAppointmentSnapshot(ctx context.Context, callID string, snap calls.Snapshot) error
}

// RealtimePMS books directly against the clinic's practice management
// system. Any PMS failure degrades to the fallback strategy rather than
// failing the caller: a locally held slot beats a dropped call.
type RealtimePMS struct {
	client      pms.Client
	calls       CallRecorder
	fallback    Strategy
	logger      *logging.Logger
	searchLimit int
}

// NewRealtimePMS creates the PMS-integrated booking strategy.
func NewRealtimePMS(client pms.Client, recorder CallRecorder, fallback Strategy, logger *logging.Logger) *RealtimePMS {
	if client == nil {
		panic("booking: pms client required")
	}
	if fallback == nil {
		panic("booking: fallback strategy required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RealtimePMS{
		client:      client,
		calls:       recorder,
		fallback:    fallback,
		logger:      logger,
		searchLimit: defaultSearchLimit,
	}
}

func (s *RealtimePMS) Name() string { return "realtime_pms" }

// Attempt opens a scoped PMS session, finds or creates the patient, and
// books. Every PMS failure falls back to the store-managed path.
func (s *RealtimePMS) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	cfg := req.Clinic
	session, err := s.client.Authenticate(ctx, pms.Credentials{
		Username: cfg.PMSCredentials.Username,
		Password: cfg.PMSCredentials.Password,
		SiteID:   cfg.PMSCredentials.SiteID,
	})
	if err != nil {
		s.logger.Warn("pms authenticate failed, falling back", "error", err, "clinic_id", cfg.ClinicID)
		return s.fallback.Attempt(ctx, req)
	}
	defer session.Close()

	result, err := s.book(ctx, session, req)
	if err != nil {
		s.logger.Warn("pms booking failed, falling back", "error", err, "clinic_id", cfg.ClinicID)
		return s.fallback.Attempt(ctx, req)
	}
	if !result.Success {
		s.logger.Warn("pms rejected booking, falling back", "reason", result.Message, "clinic_id", cfg.ClinicID)
		return s.fallback.Attempt(ctx, req)
	}

	s.recordCall(ctx, req, result.AppointmentID)

	return &Outcome{
		Success:    true,
		ExternalID: result.AppointmentID,
		Message: fmt.Sprintf(
			"You're booked. %s is confirmed for %s on %s.",
			req.PetName,
			timeparse.Format12Hour(req.StartTime),
			timeparse.SpeakableDate(req.Date),
		),
		Strategy: s.Name(),
	}, nil
}

func (s *RealtimePMS) book(ctx context.Context, session pms.Session, req Request) (*pms.CreateResult, error) {
	patients, err := session.SearchPatients(ctx, req.PetName, s.searchLimit)
	if err != nil {
		return nil, err
	}

	params := pms.AppointmentParams{
		Date:      req.Date.Format("2006-01-02"),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	}

	if match := matchPatient(patients, req.ClientName, req.PetName); match != nil {
		params.PatientID = match.ID
		params.ClientID = match.ClientID
		return session.CreateAppointment(ctx, params)
	}

	params.ClientName = req.ClientName
	params.ClientPhone = req.ClientPhone
	params.PetName = req.PetName
	params.PetSpecies = req.PetSpecies
	return session.CreateAppointmentWithNewClient(ctx, params)
}

// recordCall persists the denormalized appointment snapshot on the call
// record. Failures here are logged only; the booking already succeeded.
func (s *RealtimePMS) recordCall(ctx context.Context, req Request, externalID string) {
	if s.calls == nil || req.CallID == "" {
		return
	}
	snap := calls.Snapshot{
		ExternalID: externalID,
		ClientName: req.ClientName,
		PetName:    req.PetName,
		Date:       req.Date.Format("2006-01-02"),
		StartTime:  req.StartTime,
		Status:     "scheduled",
	}
	if err := s.calls.SetAppointmentSnapshot(ctx, req.CallID, snap); err != nil {
		s.logger.Error("failed to attach appointment snapshot", "error", err, "call_id", req.CallID)
	}
	if err := s.calls.SetOutcome(ctx, req.CallID, calls.OutcomeBooked); err != nil {
		s.logger.Error("failed to set call outcome", "error", err, "call_id", req.CallID)
	}
}

// matchPatient picks the search result whose pet name matches exactly and
// whose owner name overlaps the caller's. A weak match books as a new
// client instead; clinics would rather merge duplicates than misfile a
// visit under the wrong patient.
func matchPatient(patients []pms.Patient, clientName, petName string) *pms.Patient {
	pet := strings.ToLower(strings.TrimSpace(petName))
	owner := strings.ToLower(strings.TrimSpace(clientName))
	for i := range patients {
		p := &patients[i]
		if strings.ToLower(p.Name) != pet {
			continue
		}
		if owner == "" || strings.Contains(strings.ToLower(p.OwnerName), owner) || strings.Contains(owner, strings.ToLower(p.OwnerName)) {
			return p
		}
	}
	return nil
}
