// Package ics exports a normalized schedule as an iCalendar file, for
// users who would rather import the schedule into a client by hand than
// hand over CalDAV credentials.
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "orarsync/internal/log"
	"orarsync/internal/caldav"
	"orarsync/internal/model"
	"orarsync/internal/recon"
)

// Write serializes the schedule to w. Events carry the same UID scheme as
// the CalDAV adapter, so an exported file and a synced calendar agree on
// event identity.
func Write(w io.Writer, sched *model.Schedule) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//orarsync//EN")

	now := time.Now().UTC()
	count := 0
	for _, week := range sched.Weeks {
		for _, lesson := range sched.Lessons[week] {
			r := recon.Render(lesson)

			ev := cal.AddEvent(r.UID + "@" + caldav.UIDDomain)
			ev.SetDtStampTime(now)
			ev.SetStartAt(r.Start.UTC())
			ev.SetEndAt(r.End.UTC())
			ev.SetSummary(r.Title)
			ev.SetDescription(r.Description)
			ev.SetLocation(r.Location)
			count++
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: serialize: %w", err)
	}

	appLog.Info("schedule exported", "group", sched.Group, "events", count)
	return nil
}
