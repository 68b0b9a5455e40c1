package model

import "time"

// Weekday numbering follows the portal convention: 1 = Monday .. 6 = Saturday.
// Sunday has no teaching slots and is not representable.

// Lesson is a single scheduled meeting of a course at a specific
// (week, weekday, period) slot for one group.
type Lesson struct {
	// ID is the deterministic occurrence identifier, a 32-hex-char digest
	// of (Group, Week, Weekday, Period, Course, Type). Office and Teacher
	// are deliberately excluded so that corrections to them keep the same
	// calendar event instead of producing a delete/recreate pair.
	ID string `json:"id"`

	Group   string `json:"group"`
	Week    int    `json:"week"`
	Weekday int    `json:"weekday"`
	Period  int    `json:"period"`

	Course  string `json:"course"`
	Type    string `json:"type,omitempty"`
	Office  string `json:"office,omitempty"`
	Teacher string `json:"teacher,omitempty"`

	// Start / End are absolute timestamps in the configured university
	// timezone, derived from the semester epoch and the slot coordinates.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SameContent reports whether the non-identity fields of two lessons match.
// Identity fields are covered by ID equality already.
func (l Lesson) SameContent(other Lesson) bool {
	return l.Office == other.Office && l.Teacher == other.Teacher
}

// Schedule is a normalized weekly schedule for one group, covering exactly
// the set of requested weeks. Weeks with no lessons are present with an
// empty slice so that "no lessons" is distinguishable from "not fetched".
// Lessons within a week are ordered by (weekday, period) ascending.
//
// A Schedule is built once by the normalizer and never mutated afterwards;
// diffing and reconciliation always operate on independent instances.
type Schedule struct {
	Group string `json:"group"`
	// Weeks lists the requested week numbers in ascending order.
	Weeks []int `json:"weeks"`
	// Lessons maps week number to that week's ordered lessons.
	Lessons map[int][]Lesson `json:"lessons"`
}

// Total returns the number of lessons across all weeks.
func (s *Schedule) Total() int {
	n := 0
	for _, ls := range s.Lessons {
		n += len(ls)
	}
	return n
}

// HasWeek reports whether the given week was part of the requested set.
func (s *Schedule) HasWeek(week int) bool {
	_, ok := s.Lessons[week]
	return ok
}

// Snapshot is a schedule captured at a point in time, persisted between
// runs as the comparison baseline for change detection.
type Snapshot struct {
	Schedule   *Schedule `json:"schedule"`
	CapturedAt time.Time `json:"captured_at"`
}

// LessonChange pairs the stored and freshly fetched versions of a lesson
// whose occurrence id is unchanged but whose content differs.
type LessonChange struct {
	Old Lesson `json:"old"`
	New Lesson `json:"new"`
}

// ScheduleDiff classifies the differences between two schedules.
// Each list is ordered by (week, weekday, period) ascending.
type ScheduleDiff struct {
	Added    []Lesson       `json:"added"`
	Removed  []Lesson       `json:"removed"`
	Modified []LessonChange `json:"modified"`
}

// Empty reports whether the diff contains no changes.
func (d *ScheduleDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Count returns the total number of detected changes.
func (d *ScheduleDiff) Count() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// ReconcileReport summarizes one reconciliation pass. A completed run
// always carries full counts, even when some occurrences failed, so that
// partial success is distinguishable from total failure.
type ReconcileReport struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Dropped counts malformed slots discarded by the normalizer for the
	// schedule this report was produced from.
	Dropped int `json:"dropped"`
}

// Total returns the number of occurrences the reconciler processed.
func (r *ReconcileReport) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Failed
}

// PruneReport summarizes an orphan-pruning pass.
type PruneReport struct {
	Deleted int `json:"deleted"`
	Kept    int `json:"kept"`
	Failed  int `json:"failed"`
}
