package schedule

import (
	"sort"

	"orarsync/internal/model"
)

// Diff compares two normalized schedules and classifies every difference.
// Only weeks present on both sides are considered; how to treat a newly
// fetched week with no stored baseline is the caller's decision.
//
// Occurrences are matched by id. An id present on one side only becomes
// Added or Removed. For ids present on both sides the non-identity fields
// (office, teacher) are compared; any difference yields a Modified entry
// carrying both versions. A change to an identity field (course, type, or
// the slot itself) changes the id and therefore surfaces as a
// Removed+Added pair instead.
//
// The result is independent of input ordering; each output list is
// ordered by (week, weekday, period) ascending.
func Diff(old, new *model.Schedule) *model.ScheduleDiff {
	diff := &model.ScheduleDiff{}

	for _, week := range new.Weeks {
		newLessons, ok := new.Lessons[week]
		if !ok {
			continue
		}
		oldLessons, ok := old.Lessons[week]
		if !ok {
			continue
		}

		oldByID := indexByID(oldLessons)
		newByID := indexByID(newLessons)

		for id, lesson := range newByID {
			prev, exists := oldByID[id]
			switch {
			case !exists:
				diff.Added = append(diff.Added, lesson)
			case !prev.SameContent(lesson):
				diff.Modified = append(diff.Modified, model.LessonChange{Old: prev, New: lesson})
			}
		}
		for id, lesson := range oldByID {
			if _, exists := newByID[id]; !exists {
				diff.Removed = append(diff.Removed, lesson)
			}
		}
	}

	sortLessons(diff.Added)
	sortLessons(diff.Removed)
	sort.Slice(diff.Modified, func(i, j int) bool {
		return lessonLess(diff.Modified[i].New, diff.Modified[j].New)
	})
	return diff
}

func indexByID(lessons []model.Lesson) map[string]model.Lesson {
	m := make(map[string]model.Lesson, len(lessons))
	for _, l := range lessons {
		m[l.ID] = l
	}
	return m
}

func sortLessons(lessons []model.Lesson) {
	sort.Slice(lessons, func(i, j int) bool {
		return lessonLess(lessons[i], lessons[j])
	})
}

func lessonLess(a, b model.Lesson) bool {
	if a.Week != b.Week {
		return a.Week < b.Week
	}
	if a.Weekday != b.Weekday {
		return a.Weekday < b.Weekday
	}
	return a.Period < b.Period
}
