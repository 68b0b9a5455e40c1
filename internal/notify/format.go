package notify

import (
	"fmt"
	"strings"

	"orarsync/internal/model"
)

// FormatDiff renders a schedule diff as the human-readable message sent
// through the notification channel.
func FormatDiff(diff *model.ScheduleDiff) string {
	if diff.Empty() {
		return "No changes detected"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d change(s):\n", diff.Count())

	if len(diff.Added) > 0 {
		fmt.Fprintf(&b, "\nAdded (%d):\n", len(diff.Added))
		for _, l := range diff.Added {
			writeLessonLine(&b, l)
		}
	}

	if len(diff.Removed) > 0 {
		fmt.Fprintf(&b, "\nRemoved (%d):\n", len(diff.Removed))
		for _, l := range diff.Removed {
			writeLessonLine(&b, l)
		}
	}

	if len(diff.Modified) > 0 {
		fmt.Fprintf(&b, "\nModified (%d):\n", len(diff.Modified))
		for _, c := range diff.Modified {
			writeLessonLine(&b, c.New)
			if deltas := fieldDeltas(c.Old, c.New); len(deltas) > 0 {
				fmt.Fprintf(&b, "    Changes: %s\n", strings.Join(deltas, ", "))
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatReport renders a reconciliation report summary.
func FormatReport(r *model.ReconcileReport) string {
	return fmt.Sprintf("Sync complete: created=%d updated=%d skipped=%d failed=%d dropped=%d",
		r.Created, r.Updated, r.Skipped, r.Failed, r.Dropped)
}

func writeLessonLine(b *strings.Builder, l model.Lesson) {
	fmt.Fprintf(b, "  - Week %d, Day %d, Lesson %d: %s", l.Week, l.Weekday, l.Period, l.Course)
	if l.Type != "" {
		fmt.Fprintf(b, " | %s", l.Type)
	}
	b.WriteByte('\n')
}

func fieldDeltas(old, new model.Lesson) []string {
	var deltas []string
	if old.Office != new.Office {
		deltas = append(deltas, fmt.Sprintf("office: %s -> %s", orUnknown(old.Office), orUnknown(new.Office)))
	}
	if old.Teacher != new.Teacher {
		deltas = append(deltas, fmt.Sprintf("teacher: %s -> %s", orUnknown(old.Teacher), orUnknown(new.Teacher)))
	}
	return deltas
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
