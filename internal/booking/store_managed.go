package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/brightpaw/vetdesk-ai-platform/internal/scheduling"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// maxBookingAlternatives caps how many other times we read back to the
// caller after a failed booking. More than three is unusable over voice.
const maxBookingAlternatives = 3

// SlotBooker is the slice of the scheduling store this strategy needs.
type SlotBooker interface {
	BookSlotWithHold(ctx context.Context, req scheduling.BookingRequest) (*scheduling.BookingResult, error)
}

// StoreManaged books through the store's atomic hold-and-book procedure.
// It is the default strategy and the fallback for PMS-integrated clinics.
type StoreManaged struct {
	store  SlotBooker
	logger *logging.Logger
}

// NewStoreManaged creates the store-managed booking strategy.
func NewStoreManaged(store SlotBooker, logger *logging.Logger) *StoreManaged {
	if store == nil {
		panic("booking: slot booker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StoreManaged{store: store, logger: logger}
}

func (s *StoreManaged) Name() string { return "store_managed" }

// Attempt invokes book_slot_with_hold and translates its structured result.
// The procedure is the serialization point: a success here means the slot
// is held for this caller and nobody else can take it.
func (s *StoreManaged) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	result, err := s.store.BookSlotWithHold(ctx, scheduling.BookingRequest{
		ClinicID:    req.Clinic.ClinicID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		PetName:     req.PetName,
		PetSpecies:  req.PetSpecies,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("booking: store-managed attempt: %w", err)
	}

	if result.Success {
		return &Outcome{
			Success:            true,
			BookingID:          result.BookingID,
			ConfirmationNumber: result.ConfirmationNumber,
			Message: fmt.Sprintf(
				"You're all set. I've held %s on %s for %s. The hold lasts 5 minutes while we finish up, and your confirmation number is %s.",
				timeparse.Format12Hour(req.StartTime),
				timeparse.SpeakableDate(req.Date),
				req.PetName,
				result.ConfirmationNumber,
			),
			Strategy: s.Name(),
		}, nil
	}

	alternatives := spokenAlternatives(result.AlternativeTimes, maxBookingAlternatives)
	code := CodeSlotUnavailable
	if result.FailureReason == "no_availability" || len(alternatives) == 0 {
		code = CodeNoAvailability
	}

	msg := fmt.Sprintf("I'm sorry, %s on %s just filled up.", timeparse.Format12Hour(req.StartTime), timeparse.SpeakableDate(req.Date))
	if len(alternatives) > 0 {
		msg += " I could do " + joinSpoken(alternatives) + " instead."
	} else {
		msg = fmt.Sprintf("I'm sorry, there's nothing open on %s.", timeparse.SpeakableDate(req.Date))
	}

	return &Outcome{
		Success:      false,
		Code:         code,
		Message:      msg,
		Alternatives: alternatives,
		Strategy:     s.Name(),
	}, nil
}

func spokenAlternatives(times []string, limit int) []string {
	if len(times) > limit {
		times = times[:limit]
	}
	spoken := make([]string, 0, len(times))
	for _, t := range times {
		spoken = append(spoken, timeparse.Format12Hour(t))
	}
	return spoken
}

func joinSpoken(spoken []string) string {
	switch len(spoken) {
	case 0:
		return ""
	case 1:
		return spoken[0]
	case 2:
		return spoken[0] + " or " + spoken[1]
	default:
		return strings.Join(spoken[:len(spoken)-1], ", ") + ", or " + spoken[len(spoken)-1]
	}
}
