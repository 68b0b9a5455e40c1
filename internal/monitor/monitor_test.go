package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orarsync/internal/model"
	"orarsync/internal/portal"
	"orarsync/internal/snapshot"
)

type fakeFetcher struct {
	raw map[int]portal.RawWeek
	err error
}

func (f *fakeFetcher) FetchWeeks(_ context.Context, _ string, weeks []int) (map[int]portal.RawWeek, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int]portal.RawWeek, len(weeks))
	for _, w := range weeks {
		out[w] = f.raw[w]
	}
	return out, nil
}

type fakeSender struct {
	messages []string
	err      error
}

func (s *fakeSender) Send(text string) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, text)
	return nil
}

func testMonitor(t *testing.T, fetcher *fakeFetcher, sender Sender, sync SyncFunc, autoSync bool) *Monitor {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Chisinau")
	require.NoError(t, err)
	epoch := time.Date(2025, 9, 1, 0, 0, 0, 0, loc)

	store, err := snapshot.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := New(Config{
		Group:    "IT11Z",
		Window:   1,
		Epoch:    epoch,
		AutoSync: autoSync,
	}, fetcher, store, sender, sync)

	// Pin the clock inside week 3.
	m.now = func() time.Time { return time.Date(2025, 9, 17, 9, 0, 0, 0, loc) }
	return m
}

func lessonRaw(office string) map[int]portal.RawWeek {
	return map[int]portal.RawWeek{
		3: {Week: []portal.RawLesson{
			{DayNumber: 2, Period: 1, Course: "Algorithms", Type: "lecture", Office: office},
		}},
		4: {},
	}
}

func TestWeeksRollingWindow(t *testing.T) {
	m := testMonitor(t, &fakeFetcher{}, nil, nil, false)
	assert.Equal(t, []int{3, 4}, m.Weeks(m.now()))

	// The window never runs past MaxWeek.
	m.cfg.Window = 30
	weeks := m.Weeks(m.now())
	assert.Equal(t, DefaultMaxWeek, weeks[len(weeks)-1])

	// Before the semester the window starts at week 1.
	assert.Equal(t, []int{1}, func() []int {
		m.cfg.Window = 0
		return m.Weeks(m.cfg.Epoch.AddDate(0, 0, -30))
	}())
}

func TestCheckRecordsBaselineThenDetectsChange(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{raw: lessonRaw("A101")}
	sender := &fakeSender{}
	m := testMonitor(t, fetcher, sender, nil, false)

	// First cycle: no baseline, empty diff, nothing sent.
	diff, err := m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Empty(t, sender.messages)

	// Same schedule again: still quiet.
	diff, err = m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Empty(t, sender.messages)

	// Office change: one modified entry, one notification.
	fetcher.raw = lessonRaw("B202")
	diff, err = m.Check(ctx)
	require.NoError(t, err)
	require.Len(t, diff.Modified, 1)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "Schedule update detected")
	assert.Contains(t, sender.messages[0], "A101 -> B202")

	// The snapshot advanced: re-checking is quiet again.
	diff, err = m.Check(ctx)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
}

func TestCheckAutoSync(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{raw: lessonRaw("A101")}
	sender := &fakeSender{}

	syncCalls := 0
	sync := func(_ context.Context, sched *model.Schedule) (*model.ReconcileReport, error) {
		syncCalls++
		return &model.ReconcileReport{Updated: sched.Total()}, nil
	}
	m := testMonitor(t, fetcher, sender, sync, true)

	_, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Zero(t, syncCalls, "baseline cycle must not sync")

	fetcher.raw = lessonRaw("B202")
	_, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, syncCalls)
	require.Len(t, sender.messages, 2)
	assert.Contains(t, sender.messages[1], "Sync complete")
}

func TestCheckFetchFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("portal down")}
	m := testMonitor(t, fetcher, nil, nil, false)

	_, err := m.Check(context.Background())
	assert.Error(t, err)
}
