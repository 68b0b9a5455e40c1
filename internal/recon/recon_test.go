package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orarsync/internal/model"
	"orarsync/internal/portal"
	"orarsync/internal/schedule"
)

type fakeEvent struct {
	id        string
	rendering Rendering
}

func (e *fakeEvent) OccurrenceID() string { return e.id }

// fakeCalendar is an in-memory CalendarAdapter with failure injection.
type fakeCalendar struct {
	events map[string][]*fakeEvent

	failCreateFor string
	failUpdateFor string
	findErrFor    string

	creates int
	updates int
	finds   int
	deletes int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string][]*fakeEvent)}
}

func (c *fakeCalendar) FindEvents(_ context.Context, id string) ([]RemoteEvent, error) {
	c.finds++
	if id == c.findErrFor {
		return nil, errors.New("lookup failed")
	}
	out := make([]RemoteEvent, 0, len(c.events[id]))
	for _, ev := range c.events[id] {
		out = append(out, ev)
	}
	return out, nil
}

func (c *fakeCalendar) Create(_ context.Context, r Rendering) error {
	if r.UID == c.failCreateFor {
		return errors.New("create failed")
	}
	c.creates++
	c.events[r.UID] = append(c.events[r.UID], &fakeEvent{id: r.UID, rendering: r})
	return nil
}

func (c *fakeCalendar) Update(_ context.Context, ev RemoteEvent, r Rendering) error {
	if r.UID == c.failUpdateFor {
		return errors.New("update failed")
	}
	c.updates++
	ev.(*fakeEvent).rendering = r
	return nil
}

func (c *fakeCalendar) List(_ context.Context, from, to time.Time) ([]RemoteEvent, error) {
	var out []RemoteEvent
	for _, evs := range c.events {
		for _, ev := range evs {
			if !ev.rendering.Start.Before(from) && ev.rendering.Start.Before(to) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func (c *fakeCalendar) Delete(_ context.Context, ev RemoteEvent) error {
	c.deletes++
	delete(c.events, ev.OccurrenceID())
	return nil
}

func fiveLessonSchedule(t *testing.T) *model.Schedule {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Chisinau")
	require.NoError(t, err)
	n := schedule.Normalizer{Epoch: time.Date(2025, 9, 1, 0, 0, 0, 0, loc)}

	raw := map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{
			{DayNumber: 1, Period: 1, Course: "Algorithms", Type: "lecture", Office: "A101", Teacher: "Popescu"},
			{DayNumber: 1, Period: 2, Course: "Databases", Type: "seminar", Office: "B202"},
			{DayNumber: 2, Period: 1, Course: "Operating Systems", Type: "lab"},
			{DayNumber: 3, Period: 3, Course: "Mathematics"},
			{DayNumber: 5, Period: 1, Course: "English", Teacher: "Rusu"},
		}},
	}
	sched, dropped := n.Normalize(raw, "IT11Z", []int{3})
	require.Zero(t, dropped)
	require.Equal(t, 5, sched.Total())
	return sched
}

func TestReconcileCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()

	report := Reconcile(ctx, sched, cal, true)
	assert.Equal(t, &model.ReconcileReport{Created: 5}, report)

	// Second pass against the now-populated calendar updates everything,
	// even though nothing changed.
	report = Reconcile(ctx, sched, cal, true)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 5, report.Updated)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	// Net remote state: exactly one event per occurrence.
	assert.Len(t, cal.events, 5)
}

func TestReconcileNoOverwriteSkips(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()

	Reconcile(ctx, sched, cal, true)
	cal.creates = 0
	cal.updates = 0

	report := Reconcile(ctx, sched, cal, false)
	assert.Equal(t, 5, report.Skipped)
	assert.Equal(t, 5, report.Total())
	// Zero write calls were issued.
	assert.Zero(t, cal.creates)
	assert.Zero(t, cal.updates)
}

func TestReconcileIsolatesWriteFailure(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()

	cal.failCreateFor = sched.Lessons[3][2].ID

	report := Reconcile(ctx, sched, cal, true)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 5, report.Total())
}

func TestReconcileLookupFailureCountsAsFailed(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()
	cal.findErrFor = sched.Lessons[3][0].ID

	report := Reconcile(ctx, sched, cal, true)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Created)
}

func TestReconcileDuplicateEventsSkipped(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()

	// Server-side duplicates for one occurrence id.
	dup := sched.Lessons[3][1]
	cal.events[dup.ID] = []*fakeEvent{{id: dup.ID}, {id: dup.ID}}

	report := Reconcile(ctx, sched, cal, true)
	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	// The duplicates were left untouched.
	assert.Len(t, cal.events[dup.ID], 2)
	assert.Zero(t, cal.updates)
}

func TestRender(t *testing.T) {
	sched := fiveLessonSchedule(t)
	lesson := sched.Lessons[3][0] // Algorithms lecture, A101, Popescu

	r := Render(lesson)
	assert.Equal(t, lesson.ID, r.UID)
	assert.Equal(t, "Algorithms | lecture", r.Title)
	assert.Equal(t, "A101", r.Location)
	assert.Equal(t, "Lesson 1\nType: lecture\nOffice: A101\nTeacher: Popescu", r.Description)
	assert.Equal(t, lesson.Start, r.Start)
	assert.Equal(t, lesson.End, r.End)

	// Untyped lesson without an office.
	bare := sched.Lessons[3][3] // Mathematics
	r = Render(bare)
	assert.Equal(t, "Mathematics", r.Title)
	assert.Equal(t, "Unknown", r.Location)
	assert.Equal(t, "Lesson 3\nOffice: Unknown", r.Description)
}

func TestPruneOrphans(t *testing.T) {
	ctx := context.Background()
	sched := fiveLessonSchedule(t)
	cal := newFakeCalendar()
	Reconcile(ctx, sched, cal, true)

	// One stale occurrence from an earlier fetch and one foreign event.
	staleStart := sched.Lessons[3][0].Start
	cal.events["deadbeefdeadbeefdeadbeefdeadbeef"] = []*fakeEvent{{
		id:        "deadbeefdeadbeefdeadbeefdeadbeef",
		rendering: Rendering{Start: staleStart},
	}}
	cal.events["birthday-party"] = []*fakeEvent{{
		id:        "birthday-party",
		rendering: Rendering{Start: staleStart},
	}}

	from := staleStart.AddDate(0, 0, -7)
	to := staleStart.AddDate(0, 0, 7)
	report, err := PruneOrphans(ctx, sched, cal, from, to)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 0, report.Failed)
	_, stale := cal.events["deadbeefdeadbeefdeadbeefdeadbeef"]
	assert.False(t, stale)
	// Foreign events and live occurrences survive.
	_, foreign := cal.events["birthday-party"]
	assert.True(t, foreign)
	assert.Len(t, cal.events, 6)
}
