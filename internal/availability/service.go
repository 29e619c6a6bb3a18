// Package availability answers "what's open" questions for a clinic and
// date, applying blocked-slot filtering and per-clinic capacity overrides
// over the raw slot projection.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	"github.com/brightpaw/vetdesk-ai-platform/internal/scheduling"
	"github.com/brightpaw/vetdesk-ai-platform/internal/timeparse"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

// ErrPastDate is returned for dates before today in the clinic's timezone.
var ErrPastDate = errors.New("availability: requested date is in the past")

// maxRangeDays caps multi-day lookups regardless of caller input.
const maxRangeDays = 14

// firstDaySlotCap limits how many openings the range lookup returns for the
// first open day, enough for the assistant to offer choices without reading
// out an entire schedule.
const firstDaySlotCap = 8

// SlotReader is the slice of the scheduling store this service needs.
type SlotReader interface {
	GetAvailableSlots(ctx context.Context, clinicID string, date time.Time) ([]scheduling.Slot, error)
}

// OpenSlot is a bookable time presented in both canonical and spoken form.
type OpenSlot struct {
	StartTime      string `json:"start_time"` // "HH:MM:SS"
	EndTime        string `json:"end_time"`
	StartSpoken    string `json:"start_spoken"` // "10:00 AM"
	AvailableCount int    `json:"available_count"`
}

// DayAvailability summarizes one date.
type DayAvailability struct {
	Date       string     `json:"date"` // "2006-01-02", clinic-local
	DateSpoken string     `json:"date_spoken"`
	Open       bool       `json:"open"`
	OpenCount  int        `json:"open_count"`
	Slots      []OpenSlot `json:"slots,omitempty"`
}

// RangeResult is the multi-day availability summary.
type RangeResult struct {
	Days     []DayAvailability `json:"days"`
	FirstDay *DayAvailability  `json:"first_open_day,omitempty"`
}

// Service implements availability queries.
type Service struct {
	slots  SlotReader
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates an availability service.
func NewService(slots SlotReader, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{slots: slots, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckAvailability resolves a spoken date and returns that day's open
// slots for the clinic. Dates before today in the clinic's timezone fail
// with ErrPastDate before any store access.
func (s *Service) CheckAvailability(ctx context.Context, cfg *clinic.Config, dateText string) (*DayAvailability, error) {
	localNow := s.now().In(cfg.Location())
	date, err := timeparse.ParseDate(dateText, localNow)
	if err != nil {
		return nil, err
	}
	if beforeToday(date, localNow) {
		return nil, ErrPastDate
	}
	return s.dayAvailability(ctx, cfg, date)
}

// CheckAvailabilityRange summarizes availability for up to maxRangeDays
// starting from startDateText (today when empty). The first day with any
// opening is returned with its slot list so the assistant can offer times
// immediately.
func (s *Service) CheckAvailabilityRange(ctx context.Context, cfg *clinic.Config, startDateText string, daysAhead int) (*RangeResult, error) {
	localNow := s.now().In(cfg.Location())

	start := startOfDay(localNow)
	if startDateText != "" {
		parsed, err := timeparse.ParseDate(startDateText, localNow)
		if err != nil {
			return nil, err
		}
		if beforeToday(parsed, localNow) {
			return nil, ErrPastDate
		}
		start = parsed
	}

	if daysAhead < 1 {
		daysAhead = 1
	}
	if daysAhead > maxRangeDays {
		daysAhead = maxRangeDays
	}

	result := &RangeResult{}
	for i := 0; i < daysAhead; i++ {
		date := start.AddDate(0, 0, i)
		day, err := s.dayAvailability(ctx, cfg, date)
		if err != nil {
			return nil, err
		}

		summary := DayAvailability{
			Date:       day.Date,
			DateSpoken: day.DateSpoken,
			Open:       day.Open,
			OpenCount:  day.OpenCount,
		}
		result.Days = append(result.Days, summary)

		if day.Open && result.FirstDay == nil {
			first := *day
			if len(first.Slots) > firstDaySlotCap {
				first.Slots = first.Slots[:firstDaySlotCap]
			}
			result.FirstDay = &first
		}
	}
	return result, nil
}

func (s *Service) dayAvailability(ctx context.Context, cfg *clinic.Config, date time.Time) (*DayAvailability, error) {
	slots, err := s.slots.GetAvailableSlots(ctx, cfg.ClinicID, date)
	if err != nil {
		s.logger.Error("availability: slot query failed",
			"error", err,
			"clinic_id", cfg.ClinicID,
			"date", date.Format("2006-01-02"),
		)
		return nil, fmt.Errorf("availability: query slots: %w", err)
	}

	open := FilterOpen(slots, cfg.CapacityOverride)
	day := &DayAvailability{
		Date:       date.Format("2006-01-02"),
		DateSpoken: timeparse.SpeakableDate(date),
		Open:       len(open) > 0,
		OpenCount:  len(open),
		Slots:      open,
	}
	return day, nil
}

// FilterOpen keeps slots that are unblocked with remaining capacity, after
// applying the clinic's capacity override. A blocked slot is never usable
// regardless of its stored available count, and the override never touches
// blocked slots. The result is sorted by start time.
func FilterOpen(slots []scheduling.Slot, override *int) []OpenSlot {
	var open []OpenSlot
	for _, slot := range slots {
		if slot.IsBlocked {
			continue
		}
		available := slot.AvailableCount
		if override != nil {
			available = *override - slot.BookedCount
			if available < 0 {
				available = 0
			}
		}
		if available <= 0 {
			continue
		}
		open = append(open, OpenSlot{
			StartTime:      slot.StartTime,
			EndTime:        slot.EndTime,
			StartSpoken:    timeparse.Format12Hour(slot.StartTime),
			AvailableCount: available,
		})
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartTime < open[j].StartTime })
	return open
}

func beforeToday(date time.Time, localNow time.Time) bool {
	return date.Before(startOfDay(localNow))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
