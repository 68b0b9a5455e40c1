package timetable

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"time"
)

// Slot geometry of the university day. Period 1 starts at 08:00; each
// lesson lasts 90 minutes with a 10 minute break before the next slot.
const (
	MinWeekday = 1 // Monday
	MaxWeekday = 6 // Saturday

	FirstPeriodHour = 8
	LessonMinutes   = 90
	BreakMinutes    = 10
)

// ErrInvalidCoordinate is returned when a (week, weekday, period) tuple is
// outside the legal range. Coordinates are never clamped; a bad tuple is
// a data error that must surface.
var ErrInvalidCoordinate = errors.New("timetable: invalid schedule coordinate")

// ComputeID derives the deterministic occurrence identifier for a lesson.
//
// The digest is SHA-256 over a length-prefixed encoding of the five
// identity fields, truncated to 16 bytes and hex-encoded (32 characters).
// Length prefixes make the encoding unambiguous: ("A1", 23) and ("A", 123)
// hash differently even though their naive concatenations collide.
//
// Office and teacher are excluded on purpose (see model.Lesson.ID).
// The encoding is part of the on-calendar contract: changing it would
// silently orphan every previously synced event.
func ComputeID(group string, week, weekday, period int, course, courseType string) string {
	h := sha256.New()
	hashString(h, group)
	hashInt(h, week)
	hashInt(h, weekday)
	hashInt(h, period)
	hashString(h, course)
	hashString(h, courseType)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func hashString(h hash.Hash, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	h.Write(buf[:n])
	h.Write([]byte(s))
}

func hashInt(h hash.Hash, v int) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(v))
	h.Write(buf[:n])
}

// ValidateCoordinate checks a (week, weekday, period) tuple.
func ValidateCoordinate(week, weekday, period int) error {
	if week < 1 {
		return fmt.Errorf("%w: week %d", ErrInvalidCoordinate, week)
	}
	if weekday < MinWeekday || weekday > MaxWeekday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidCoordinate, weekday)
	}
	if period < 1 {
		return fmt.Errorf("%w: period %d", ErrInvalidCoordinate, period)
	}
	return nil
}

// ResolveInterval maps a slot coordinate to its absolute [start, end)
// interval. epoch is the calendar date of Monday of week 1, at midnight in
// the university timezone; all arithmetic stays in epoch's location so the
// result is reproducible regardless of the host zone.
func ResolveInterval(epoch time.Time, week, weekday, period int) (time.Time, time.Time, error) {
	if err := ValidateCoordinate(week, weekday, period); err != nil {
		return time.Time{}, time.Time{}, err
	}

	day := epoch.AddDate(0, 0, 7*(week-1)+(weekday-1))
	start := time.Date(day.Year(), day.Month(), day.Day(), FirstPeriodHour, 0, 0, 0, day.Location()).
		Add(time.Duration(period-1) * (LessonMinutes + BreakMinutes) * time.Minute)
	end := start.Add(LessonMinutes * time.Minute)

	return start, end, nil
}

// DateFor returns the calendar date (midnight, epoch's location) of the
// given week/weekday. Used to bound remote calendar queries.
func DateFor(epoch time.Time, week, weekday int) time.Time {
	return epoch.AddDate(0, 0, 7*(week-1)+(weekday-1))
}

// WeekForDate returns the university week number containing the given
// date. Dates before the epoch yield values below 1; callers decide how
// to treat the off-semester case.
func WeekForDate(epoch, date time.Time) int {
	d := date.In(epoch.Location())
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, epoch.Location())
	days := int(day.Sub(epoch).Hours() / 24)
	if days < 0 {
		// Floor division for negative day offsets.
		return (days-6)/7 + 1
	}
	return days/7 + 1
}
