package schedule

import (
	"sort"
	"time"

	appLog "orarsync/internal/log"
	"orarsync/internal/model"
	"orarsync/internal/portal"
	"orarsync/internal/timetable"
)

// Normalizer turns raw portal payloads into canonical schedules. Epoch is
// the date of Monday of week 1, at midnight in the university timezone.
type Normalizer struct {
	Epoch time.Time
}

// Normalize produces one model.Lesson per non-empty slot across the
// requested weeks and returns the number of malformed slots it dropped.
//
// Guarantees:
//   - the result covers exactly the requested weeks; a week with no
//     lessons is present with an empty slice, never absent
//   - lessons within a week are ordered by (weekday, period) ascending
//   - every lesson carries its occurrence id and resolved start/end
//
// Malformed slots (free periods, missing course name, coordinates outside
// the legal range) are logged and skipped so that the sync proceeds with
// partial data instead of aborting.
func (n Normalizer) Normalize(raw map[int]portal.RawWeek, group string, weeks []int) (*model.Schedule, int) {
	sched := &model.Schedule{
		Group:   group,
		Weeks:   sortedWeeks(weeks),
		Lessons: make(map[int][]model.Lesson, len(weeks)),
	}

	dropped := 0
	for _, week := range sched.Weeks {
		lessons := make([]model.Lesson, 0, len(raw[week].Week))
		for _, slot := range raw[week].Week {
			lesson, ok := n.normalizeSlot(slot, group, week)
			if !ok {
				dropped++
				continue
			}
			lessons = append(lessons, lesson)
		}
		sort.Slice(lessons, func(i, j int) bool {
			if lessons[i].Weekday != lessons[j].Weekday {
				return lessons[i].Weekday < lessons[j].Weekday
			}
			return lessons[i].Period < lessons[j].Period
		})
		sched.Lessons[week] = lessons
	}

	if dropped > 0 {
		appLog.Warn("normalizer dropped malformed slots", "group", group, "dropped", dropped)
	}
	return sched, dropped
}

func (n Normalizer) normalizeSlot(slot portal.RawLesson, group string, week int) (model.Lesson, bool) {
	// The portal emits day_number 0 / cours_nr 0 for free periods.
	if slot.DayNumber == 0 || slot.Period == 0 {
		return model.Lesson{}, false
	}
	if slot.Course == "" {
		appLog.Warn("slot without course name skipped",
			"group", group, "week", week, "weekday", slot.DayNumber, "period", slot.Period)
		return model.Lesson{}, false
	}

	start, end, err := timetable.ResolveInterval(n.Epoch, week, slot.DayNumber, slot.Period)
	if err != nil {
		appLog.Warn("slot with invalid coordinates skipped",
			"group", group, "week", week, "weekday", slot.DayNumber, "period", slot.Period, "err", err)
		return model.Lesson{}, false
	}

	return model.Lesson{
		ID:      timetable.ComputeID(group, week, slot.DayNumber, slot.Period, slot.Course, slot.Type),
		Group:   group,
		Week:    week,
		Weekday: slot.DayNumber,
		Period:  slot.Period,
		Course:  slot.Course,
		Type:    slot.Type,
		Office:  slot.Office,
		Teacher: slot.Teacher,
		Start:   start,
		End:     end,
	}, true
}

func sortedWeeks(weeks []int) []int {
	out := make([]int, 0, len(weeks))
	seen := make(map[int]bool, len(weeks))
	for _, w := range weeks {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Ints(out)
	return out
}
