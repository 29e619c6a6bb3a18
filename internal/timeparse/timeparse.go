// Package timeparse normalizes spoken-language date and time phrases into
// canonical values. Voice transcripts arrive as free text ("next tuesday",
// "March 3rd", "9:30pm"), and every scheduling operation needs them resolved
// against the caller's current date before touching the store.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnrecognizedDate is returned when no parsing rule matches the input.
	ErrUnrecognizedDate = errors.New("timeparse: unrecognized date phrase")
	// ErrUnrecognizedTime is returned when the input is not a spoken or canonical time.
	ErrUnrecognizedTime = errors.New("timeparse: unrecognized time phrase")
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

var (
	monthDayRe   = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	dayOfMonthRe = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+of\s+([a-z]+)(?:,?\s+(\d{4}))?$`)
	bareNthRe    = regexp.MustCompile(`^(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)$`)
	numericRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?$`)
	ordinalRe    = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)
	clockRe      = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	canonicalRe  = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
)

// ParseDate resolves a spoken date phrase relative to now. The returned time
// is midnight of the resolved calendar day in now's location. Rules are
// applied in priority order; unmatched input returns ErrUnrecognizedDate.
func ParseDate(text string, now time.Time) (time.Time, error) {
	phrase := strings.ToLower(strings.TrimSpace(text))
	if phrase == "" {
		return time.Time{}, ErrUnrecognizedDate
	}
	today := midnight(now)

	switch phrase {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	// Weekday names, bare or prefixed with "next"/"this". Always the next
	// occurrence strictly after today — "monday" said on a Monday means a
	// week out, never the current day.
	wd := phrase
	wd = strings.TrimPrefix(wd, "next ")
	wd = strings.TrimPrefix(wd, "this ")
	if target, ok := weekdays[wd]; ok {
		offset := (int(target) - int(today.Weekday()) + 7) % 7
		if offset <= 0 {
			offset += 7
		}
		return today.AddDate(0, 0, offset), nil
	}

	// Month-name + day, optional year: "march 3", "march 3rd, 2027".
	if m := monthDayRe.FindStringSubmatch(phrase); m != nil {
		if month, ok := months[m[1]]; ok {
			day, _ := strconv.Atoi(m[2])
			return resolveMonthDay(today, month, day, m[3])
		}
	}

	// Day + "of" + month-name: "3rd of march".
	if m := dayOfMonthRe.FindStringSubmatch(phrase); m != nil {
		if month, ok := months[m[2]]; ok {
			day, _ := strconv.Atoi(m[1])
			return resolveMonthDay(today, month, day, m[3])
		}
	}

	// "the 12th" — current month, rolling forward once the day has passed.
	if m := bareNthRe.FindStringSubmatch(phrase); m != nil {
		day, _ := strconv.Atoi(m[1])
		if day < 1 || day > 31 {
			return time.Time{}, ErrUnrecognizedDate
		}
		candidate := time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, today.Location())
		if candidate.Before(today) {
			candidate = candidate.AddDate(0, 1, 0)
		}
		return candidate, nil
	}

	// Numeric M/D or M/D/YY(YY).
	if m := numericRe.FindStringSubmatch(phrase); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, ErrUnrecognizedDate
		}
		if m[3] == "" {
			return resolveMonthDay(today, time.Month(month), day, "")
		}
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location()), nil
	}

	// Generic fallback: strip ordinal suffixes and try common layouts. When
	// the layout carries no year and the result is in the past, assume the
	// caller means the upcoming occurrence.
	stripped := ordinalRe.ReplaceAllString(phrase, "$1")
	withYear := []string{"January 2, 2006", "January 2 2006", "2006-01-02", "Jan 2, 2006", "Jan 2 2006"}
	for _, layout := range withYear {
		if t, err := time.ParseInLocation(layout, stripped, today.Location()); err == nil {
			return midnight(t), nil
		}
	}
	withoutYear := []string{"January 2", "Jan 2", "2 January", "2 Jan"}
	for _, layout := range withoutYear {
		if t, err := time.ParseInLocation(layout, stripped, today.Location()); err == nil {
			candidate := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, today.Location())
			if candidate.Before(today) {
				candidate = candidate.AddDate(1, 0, 0)
			}
			return candidate, nil
		}
	}

	return time.Time{}, ErrUnrecognizedDate
}

// resolveMonthDay applies the year-rollover rule shared by month-name,
// day-of-month, and yearless numeric forms.
func resolveMonthDay(today time.Time, month time.Month, day int, yearText string) (time.Time, error) {
	if day < 1 || day > 31 {
		return time.Time{}, ErrUnrecognizedDate
	}
	if yearText != "" {
		year, err := strconv.Atoi(yearText)
		if err != nil {
			return time.Time{}, ErrUnrecognizedDate
		}
		return time.Date(year, month, day, 0, 0, 0, 0, today.Location()), nil
	}
	candidate := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if candidate.Before(today) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate, nil
}

// ParseTime normalizes a spoken or canonical clock time to "HH:MM:SS".
// Accepted shapes: "9am", "9:30pm", "14:30", "14:30:00". Hour 12 with "am"
// maps to 0, with "pm" stays 12.
func ParseTime(text string) (string, error) {
	phrase := strings.ToLower(strings.TrimSpace(text))
	if phrase == "" {
		return "", ErrUnrecognizedTime
	}

	if m := clockRe.FindStringSubmatch(phrase); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return "", ErrUnrecognizedTime
		}
		if m[3] == "am" {
			if hour == 12 {
				hour = 0
			}
		} else if hour != 12 {
			hour += 12
		}
		return fmt.Sprintf("%02d:%02d:00", hour, minute), nil
	}

	if m := canonicalRe.FindStringSubmatch(phrase); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		second := 0
		if m[3] != "" {
			second, _ = strconv.Atoi(m[3])
		}
		if hour > 23 || minute > 59 || second > 59 {
			return "", ErrUnrecognizedTime
		}
		return fmt.Sprintf("%02d:%02d:%02d", hour, minute, second), nil
	}

	return "", ErrUnrecognizedTime
}

// Format12Hour renders a canonical "HH:MM" or "HH:MM:SS" time the way it
// should be spoken, e.g. "14:30" -> "2:30 PM".
func Format12Hour(canonical string) string {
	m := canonicalRe.FindStringSubmatch(strings.TrimSpace(canonical))
	if m == nil {
		return canonical
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return canonical
	}

	suffix := "AM"
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour == 12:
		suffix = "PM"
	case hour > 12:
		display = hour - 12
		suffix = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", display, minute, suffix)
}

// SpeakableDate renders a date the way the assistant should say it,
// e.g. "Tuesday, March 3".
func SpeakableDate(t time.Time) string {
	return t.Format("Monday, January 2")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
