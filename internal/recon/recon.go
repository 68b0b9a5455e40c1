package recon

import (
	"context"
	"strconv"
	"strings"
	"time"

	appLog "orarsync/internal/log"
	"orarsync/internal/model"
)

// Rendering is the canonical remote representation of one lesson. The UID
// is the bare occurrence id; the calendar adapter owns whatever suffix or
// key field its protocol needs, as long as the id round-trips losslessly.
type Rendering struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// RemoteEvent is an event that already exists on the calendar server,
// referenced by the reconciler but owned by the adapter.
type RemoteEvent interface {
	// OccurrenceID returns the occurrence id the event is keyed by.
	OccurrenceID() string
}

// CalendarAdapter is the mutable view of the remote calendar the
// reconciler works against.
type CalendarAdapter interface {
	// FindEvents returns every remote event keyed by the given occurrence
	// id. Uniqueness is not enforced server-side; more than one match is
	// possible and is treated as an anomaly by the reconciler.
	FindEvents(ctx context.Context, id string) ([]RemoteEvent, error)
	Create(ctx context.Context, r Rendering) error
	Update(ctx context.Context, ev RemoteEvent, r Rendering) error
}

// PruneAdapter extends CalendarAdapter with the operations the optional
// orphan-pruning pass needs.
type PruneAdapter interface {
	CalendarAdapter
	// List returns every event on the calendar within [from, to).
	List(ctx context.Context, from, to time.Time) ([]RemoteEvent, error)
	Delete(ctx context.Context, ev RemoteEvent) error
}

// Render produces the canonical remote rendering for a lesson.
func Render(l model.Lesson) Rendering {
	title := l.Course
	if l.Type != "" {
		title = l.Course + " | " + l.Type
	}

	office := l.Office
	if office == "" {
		office = "Unknown"
	}

	parts := []string{"Lesson " + strconv.Itoa(l.Period)}
	if l.Type != "" {
		parts = append(parts, "Type: "+l.Type)
	}
	parts = append(parts, "Office: "+office)
	if l.Teacher != "" {
		parts = append(parts, "Teacher: "+l.Teacher)
	}

	return Rendering{
		UID:         l.ID,
		Title:       title,
		Description: strings.Join(parts, "\n"),
		Location:    office,
		Start:       l.Start,
		End:         l.End,
	}
}

// Reconcile makes the remote calendar reflect the given schedule. For
// every lesson, in (week, weekday, period) order:
//
//   - no remote event for its id  -> create, counted as Created
//   - event exists, overwrite     -> unconditional update, counted as
//     Updated (even when content is byte-identical; remote writes are
//     idempotent and cheap next to the portal fetch)
//   - event exists, !overwrite    -> untouched, counted as Skipped
//   - multiple events for one id  -> anomaly: logged and skipped
//
// A per-lesson adapter error is logged with the lesson's identity,
// counted as Failed, and does not stop the remaining lessons. Events no
// longer present in the schedule are never deleted here; the source only
// fetches a rolling window of weeks, so absence from this schedule does
// not mean absence from the semester. See PruneOrphans.
//
// Reconcile holds no state besides the report it returns and is safe to
// re-run any number of times.
func Reconcile(ctx context.Context, sched *model.Schedule, remote CalendarAdapter, overwrite bool) *model.ReconcileReport {
	report := &model.ReconcileReport{}

	for _, week := range sched.Weeks {
		for _, lesson := range sched.Lessons[week] {
			reconcileOne(ctx, lesson, remote, overwrite, report)
		}
	}

	appLog.Info("reconcile completed",
		"group", sched.Group,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report
}

func reconcileOne(ctx context.Context, lesson model.Lesson, remote CalendarAdapter, overwrite bool, report *model.ReconcileReport) {
	existing, err := remote.FindEvents(ctx, lesson.ID)
	if err != nil {
		appLog.Error("event lookup failed", err, lessonKV(lesson)...)
		report.Failed++
		return
	}

	switch {
	case len(existing) == 0:
		if err := remote.Create(ctx, Render(lesson)); err != nil {
			appLog.Error("event create failed", err, lessonKV(lesson)...)
			report.Failed++
			return
		}
		report.Created++

	case len(existing) > 1:
		// The server let duplicates in. Touching any of them could make
		// it worse; leave the mess alone and move on.
		appLog.Warn("multiple events share one occurrence id, skipping",
			append(lessonKV(lesson), "matches", len(existing))...)
		report.Skipped++

	case overwrite:
		if err := remote.Update(ctx, existing[0], Render(lesson)); err != nil {
			appLog.Error("event update failed", err, lessonKV(lesson)...)
			report.Failed++
			return
		}
		report.Updated++

	default:
		report.Skipped++
	}
}

// PruneOrphans deletes remote events inside [from, to) whose occurrence
// id is no longer present in the schedule. Events whose id cannot be
// attributed to this tool (foreign UIDs) are kept. This is a separate,
// explicitly requested pass; Reconcile never deletes anything.
func PruneOrphans(ctx context.Context, sched *model.Schedule, remote PruneAdapter, from, to time.Time) (*model.PruneReport, error) {
	live := make(map[string]bool, sched.Total())
	for _, week := range sched.Weeks {
		for _, lesson := range sched.Lessons[week] {
			live[lesson.ID] = true
		}
	}

	events, err := remote.List(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &model.PruneReport{}
	for _, ev := range events {
		id := ev.OccurrenceID()
		if !isOccurrenceID(id) || live[id] {
			report.Kept++
			continue
		}
		if err := remote.Delete(ctx, ev); err != nil {
			appLog.Error("orphan delete failed", err, "id", id)
			report.Failed++
			continue
		}
		appLog.Info("orphan event deleted", "id", id)
		report.Deleted++
	}
	return report, nil
}

// isOccurrenceID reports whether id looks like one of our 32-hex-char
// occurrence identifiers.
func isOccurrenceID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func lessonKV(l model.Lesson) []any {
	return []any{
		"id", l.ID,
		"group", l.Group,
		"week", l.Week,
		"weekday", l.Weekday,
		"period", l.Period,
		"course", l.Course,
	}
}
