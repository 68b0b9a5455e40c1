package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orarsync/internal/model"
	"orarsync/internal/portal"
)

func diffFixture(t *testing.T, weeks []int, raw map[int]portal.RawWeek) *model.Schedule {
	t.Helper()
	n := testNormalizer(t)
	sched, _ := n.Normalize(raw, "IT11Z", weeks)
	return sched
}

func TestDiffIdenticalSchedules(t *testing.T) {
	raw := map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{
			{DayNumber: 2, Period: 1, Course: "Algorithms", Type: "lecture", Office: "A101"},
			{DayNumber: 4, Period: 2, Course: "Databases", Type: "seminar", Teacher: "Rusu"},
		}},
	}

	old := diffFixture(t, []int{3}, raw)
	cur := diffFixture(t, []int{3}, raw)

	d := Diff(old, cur)
	assert.True(t, d.Empty())
	assert.Zero(t, d.Count())
}

func TestDiffLocationChangeIsModified(t *testing.T) {
	old := diffFixture(t, []int{3}, map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{
			{DayNumber: 2, Period: 1, Course: "Algorithms", Type: "lecture", Office: "A101"},
		}},
	})
	cur := diffFixture(t, []int{3}, map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{
			{DayNumber: 2, Period: 1, Course: "Algorithms", Type: "lecture", Office: "B202"},
		}},
	})

	d := Diff(old, cur)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	require.Len(t, d.Modified, 1)

	change := d.Modified[0]
	assert.Equal(t, change.Old.ID, change.New.ID)
	assert.Equal(t, "A101", change.Old.Office)
	assert.Equal(t, "B202", change.New.Office)
}

func TestDiffCourseChangeIsRemoveAdd(t *testing.T) {
	// Changing an identity field changes the occurrence id, so the slot
	// surfaces as a removed lesson plus an added one.
	old := diffFixture(t, []int{3}, map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{{DayNumber: 2, Period: 1, Course: "Algorithms", Type: "lecture"}}},
	})
	cur := diffFixture(t, []int{3}, map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{{DayNumber: 2, Period: 1, Course: "Geometry", Type: "lecture"}}},
	})

	d := Diff(old, cur)
	assert.Empty(t, d.Modified)
	require.Len(t, d.Added, 1)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "Geometry", d.Added[0].Course)
	assert.Equal(t, "Algorithms", d.Removed[0].Course)
}

func TestDiffIgnoresNonOverlappingWeeks(t *testing.T) {
	old := diffFixture(t, []int{3}, map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{{DayNumber: 1, Period: 1, Course: "Algorithms"}}},
	})
	cur := diffFixture(t, []int{4}, map[int]portal.RawWeek{
		4: {Week: []portal.RawLesson{{DayNumber: 1, Period: 1, Course: "Databases"}}},
	})

	d := Diff(old, cur)
	assert.True(t, d.Empty())
}

func TestDiffOrderingDeterministic(t *testing.T) {
	// Input ordering within the raw payload must not influence the diff.
	oldRaw := map[int]portal.RawWeek{
		2: {Week: []portal.RawLesson{}},
		3: {Week: []portal.RawLesson{}},
	}
	curRawA := map[int]portal.RawWeek{
		2: {Week: []portal.RawLesson{
			{DayNumber: 5, Period: 2, Course: "C"},
			{DayNumber: 1, Period: 1, Course: "A"},
		}},
		3: {Week: []portal.RawLesson{{DayNumber: 2, Period: 1, Course: "B"}}},
	}
	curRawB := map[int]portal.RawWeek{
		2: {Week: []portal.RawLesson{
			{DayNumber: 1, Period: 1, Course: "A"},
			{DayNumber: 5, Period: 2, Course: "C"},
		}},
		3: {Week: []portal.RawLesson{{DayNumber: 2, Period: 1, Course: "B"}}},
	}

	old := diffFixture(t, []int{2, 3}, oldRaw)
	dA := Diff(old, diffFixture(t, []int{2, 3}, curRawA))
	dB := Diff(old, diffFixture(t, []int{2, 3}, curRawB))

	require.Len(t, dA.Added, 3)
	assert.Equal(t, dA.Added, dB.Added)

	// (week, weekday, period) ascending.
	assert.Equal(t, "A", dA.Added[0].Course)
	assert.Equal(t, "C", dA.Added[1].Course)
	assert.Equal(t, "B", dA.Added[2].Course)
}
