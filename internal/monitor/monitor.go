package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "orarsync/internal/log"
	"orarsync/internal/model"
	"orarsync/internal/notify"
	"orarsync/internal/portal"
	"orarsync/internal/schedule"
	"orarsync/internal/snapshot"
	"orarsync/internal/timetable"
)

// DefaultMaxWeek caps the rolling monitoring window; the semester never
// runs past week 20.
const DefaultMaxWeek = 20

// Sender is the outbound notification channel. Satisfied by
// notify.Telegram; nil disables notifications.
type Sender interface {
	Send(text string) error
}

// Fetcher is the slice of the portal client the monitor needs.
type Fetcher interface {
	FetchWeeks(ctx context.Context, group string, weeks []int) (map[int]portal.RawWeek, error)
}

// SyncFunc reconciles a freshly fetched schedule against the remote
// calendar; wired in by the caller when auto-sync is enabled.
type SyncFunc func(ctx context.Context, sched *model.Schedule) (*model.ReconcileReport, error)

// Config controls one monitoring cycle.
type Config struct {
	Group string
	// Window is how many weeks beyond the current one to watch.
	Window int
	// MaxWeek caps the window; zero means DefaultMaxWeek.
	MaxWeek int
	// Epoch is Monday of week 1 in the university timezone.
	Epoch time.Time
	// AutoSync reconciles the calendar automatically whenever a change
	// is detected.
	AutoSync bool
}

// Monitor periodically re-fetches the schedule, diffs it against the
// stored snapshot, notifies on changes, and advances the snapshot.
type Monitor struct {
	cfg    Config
	portal Fetcher
	store  *snapshot.Store
	sender Sender   // optional
	sync   SyncFunc // optional, used when cfg.AutoSync

	// now is swappable for tests.
	now func() time.Time
}

// New assembles a monitor. sender and sync may be nil.
func New(cfg Config, fetcher Fetcher, store *snapshot.Store, sender Sender, sync SyncFunc) *Monitor {
	if cfg.MaxWeek <= 0 {
		cfg.MaxWeek = DefaultMaxWeek
	}
	if cfg.Window < 0 {
		cfg.Window = 0
	}
	return &Monitor{
		cfg:    cfg,
		portal: fetcher,
		store:  store,
		sender: sender,
		sync:   sync,
		now:    time.Now,
	}
}

// Weeks returns the rolling window of university weeks to watch at the
// given instant: the current week plus cfg.Window following ones, capped
// at cfg.MaxWeek.
func (m *Monitor) Weeks(at time.Time) []int {
	current := timetable.WeekForDate(m.cfg.Epoch, at)
	if current < 1 {
		current = 1
	}
	if current > m.cfg.MaxWeek {
		current = m.cfg.MaxWeek
	}

	var weeks []int
	for w := current; w <= current+m.cfg.Window && w <= m.cfg.MaxWeek; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}

// Check runs one monitoring cycle: fetch, normalize, diff against the
// stored snapshot, notify when something changed, optionally auto-sync,
// and save the fresh schedule as the new baseline.
//
// The first ever cycle has no baseline; it records one and reports an
// empty diff.
func (m *Monitor) Check(ctx context.Context) (*model.ScheduleDiff, error) {
	now := m.now()
	weeks := m.Weeks(now)

	raw, err := m.portal.FetchWeeks(ctx, m.cfg.Group, weeks)
	if err != nil {
		return nil, err
	}

	norm := schedule.Normalizer{Epoch: m.cfg.Epoch}
	sched, dropped := norm.Normalize(raw, m.cfg.Group, weeks)

	diff := &model.ScheduleDiff{}
	snap, ok, err := m.store.Load(ctx, m.cfg.Group, weeks)
	if err != nil {
		return nil, err
	}
	if ok {
		diff = schedule.Diff(snap.Schedule, sched)
	} else {
		appLog.Info("no snapshot baseline yet, recording one", "group", m.cfg.Group)
	}

	if !diff.Empty() {
		appLog.Info("schedule changes detected",
			"group", m.cfg.Group,
			"added", len(diff.Added),
			"removed", len(diff.Removed),
			"modified", len(diff.Modified),
		)
		m.send("Schedule update detected!\n\n" + notify.FormatDiff(diff))

		if m.cfg.AutoSync && m.sync != nil {
			report, err := m.sync(ctx, sched)
			if err != nil {
				appLog.Error("auto-sync failed", err, "group", m.cfg.Group)
				m.send(fmt.Sprintf("Auto-sync failed: %v", err))
			} else {
				report.Dropped = dropped
				m.send(notify.FormatReport(report))
			}
		}
	}

	if err := m.store.Save(ctx, sched, now); err != nil {
		return nil, err
	}
	return diff, nil
}

// Run executes Check on the given cron schedule until ctx is canceled.
// Errors inside a cycle are logged and the loop keeps going; a broken
// portal at 3am should not kill the monitor.
func (m *Monitor) Run(ctx context.Context, cronSpec string) error {
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		if _, err := m.Check(ctx); err != nil {
			appLog.Error("monitor check failed", err, "group", m.cfg.Group)
			m.send(fmt.Sprintf("Schedule check failed: %v", err))
		}
	})
	if err != nil {
		return fmt.Errorf("monitor: bad cron spec %q: %w", cronSpec, err)
	}

	appLog.Info("monitor started", "group", m.cfg.Group, "cron", cronSpec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// send delivers a notification, logging (never escalating) failures.
func (m *Monitor) send(text string) {
	if m.sender == nil {
		return
	}
	if err := m.sender.Send(text); err != nil {
		appLog.Error("notification send failed", err)
	}
}
