package caldav

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	cdav "github.com/emersion/go-webdav/caldav"

	appLog "orarsync/internal/log"
	"orarsync/internal/recon"
)

// UIDDomain suffixes every event UID written by this tool. The occurrence
// id must round-trip losslessly through the UID field: it is the sole
// mechanism preventing duplicate creation across runs.
const UIDDomain = "orarsync.local"

// Config holds CalDAV connection parameters. Password is expected to be
// an app-specific password for providers that require one (iCloud does).
type Config struct {
	URL      string
	Username string
	Password string
	// Calendar is the display name of the target calendar. Events are
	// namespaced per calendar; the calendar must already exist.
	Calendar string
}

// ConnectError means the calendar server could not be reached or the
// target calendar resolved at all. It is fatal: reconciliation aborts
// before any per-occurrence work.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("caldav: connect: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Event is a remote calendar event handle: the object path on the server
// plus the occurrence id recovered from its UID.
type Event struct {
	path string
	id   string
}

// OccurrenceID implements recon.RemoteEvent. For foreign events (not
// written by this tool) it returns the raw UID, which never matches the
// 32-hex occurrence id shape.
func (e *Event) OccurrenceID() string { return e.id }

// Client is a CalDAV-backed recon.PruneAdapter scoped to one calendar.
type Client struct {
	dav          *cdav.Client
	calendarPath string
}

var _ recon.PruneAdapter = (*Client)(nil)

// Connect authenticates against the CalDAV endpoint and resolves the
// configured calendar by display name. Every failure here is a
// ConnectError.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, &ConnectError{Err: fmt.Errorf("url, username and password are required")}
	}

	httpClient := webdav.HTTPClientWithBasicAuth(nil, cfg.Username, cfg.Password)
	dav, err := cdav.NewClient(httpClient, cfg.URL)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("find principal: %w", err)}
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("find calendar home set: %w", err)}
	}
	calendars, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, &ConnectError{Err: fmt.Errorf("list calendars: %w", err)}
	}

	for _, cal := range calendars {
		if cal.Name == cfg.Calendar {
			appLog.Info("caldav calendar resolved", "calendar", cfg.Calendar, "path", cal.Path)
			return &Client{dav: dav, calendarPath: withTrailingSlash(cal.Path)}, nil
		}
	}
	return nil, &ConnectError{
		Err: fmt.Errorf("calendar %q not found; create it in your calendar client first", cfg.Calendar),
	}
}

// FindEvents returns every event on the calendar whose UID carries the
// given occurrence id. Servers do not enforce UID uniqueness, so more
// than one match is possible.
func (c *Client) FindEvents(ctx context.Context, id string) ([]recon.RemoteEvent, error) {
	query := &cdav.CalendarQuery{
		CompRequest: eventCompRequest(),
		CompFilter: cdav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []cdav.CompFilter{{
				Name: ical.CompEvent,
				Props: []cdav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &cdav.TextMatch{Text: fullUID(id)},
				}},
			}},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav: query uid %s: %w", id, err)
	}

	events := make([]recon.RemoteEvent, 0, len(objects))
	for _, obj := range objects {
		events = append(events, &Event{path: obj.Path, id: id})
	}
	return events, nil
}

// Create writes a new event object keyed by the rendering's UID.
func (c *Client) Create(ctx context.Context, r recon.Rendering) error {
	path := c.calendarPath + r.UID + ".ics"
	if _, err := c.dav.PutCalendarObject(ctx, path, renderCalendar(r)); err != nil {
		return fmt.Errorf("caldav: put %s: %w", r.UID, err)
	}
	return nil
}

// Update replaces an existing event's content with the fresh rendering.
func (c *Client) Update(ctx context.Context, ev recon.RemoteEvent, r recon.Rendering) error {
	remote, ok := ev.(*Event)
	if !ok {
		return fmt.Errorf("caldav: update: foreign event type %T", ev)
	}
	if _, err := c.dav.PutCalendarObject(ctx, remote.path, renderCalendar(r)); err != nil {
		return fmt.Errorf("caldav: put %s: %w", r.UID, err)
	}
	return nil
}

// List returns every event on the calendar starting within [from, to).
func (c *Client) List(ctx context.Context, from, to time.Time) ([]recon.RemoteEvent, error) {
	query := &cdav.CalendarQuery{
		CompRequest: eventCompRequest(),
		CompFilter: cdav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []cdav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from.UTC(),
				End:   to.UTC(),
			}},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav: time-range query: %w", err)
	}

	events := make([]recon.RemoteEvent, 0, len(objects))
	for _, obj := range objects {
		uid, ok := objectUID(obj)
		if !ok {
			appLog.Debug("calendar object without UID skipped", "path", obj.Path)
			continue
		}
		events = append(events, &Event{path: obj.Path, id: stripUIDDomain(uid)})
	}
	return events, nil
}

// Delete removes an event object from the calendar.
func (c *Client) Delete(ctx context.Context, ev recon.RemoteEvent) error {
	remote, ok := ev.(*Event)
	if !ok {
		return fmt.Errorf("caldav: delete: foreign event type %T", ev)
	}
	if err := c.dav.RemoveAll(ctx, remote.path); err != nil {
		return fmt.Errorf("caldav: delete %s: %w", remote.id, err)
	}
	return nil
}

func eventCompRequest() cdav.CalendarCompRequest {
	return cdav.CalendarCompRequest{
		Name: ical.CompCalendar,
		Comps: []cdav.CalendarCompRequest{{
			Name:  ical.CompEvent,
			Props: []string{ical.PropUID, ical.PropDateTimeStart, ical.PropDateTimeEnd},
		}},
	}
}

// renderCalendar builds the iCalendar object stored on the server.
// Timestamps are written in UTC so the stored form never depends on the
// host zone or on server-side VTIMEZONE handling.
func renderCalendar(r recon.Rendering) *ical.Calendar {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, fullUID(r.UID))
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, r.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, r.End.UTC())
	ev.Props.SetText(ical.PropSummary, r.Title)
	if r.Description != "" {
		ev.Props.SetText(ical.PropDescription, r.Description)
	}
	if r.Location != "" {
		ev.Props.SetText(ical.PropLocation, r.Location)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//orarsync//EN")
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

func objectUID(obj cdav.CalendarObject) (string, bool) {
	if obj.Data == nil {
		return "", false
	}
	for _, ev := range obj.Data.Events() {
		if prop := ev.Props.Get(ical.PropUID); prop != nil && prop.Value != "" {
			return prop.Value, true
		}
	}
	return "", false
}

func fullUID(id string) string {
	return id + "@" + UIDDomain
}

// stripUIDDomain recovers the occurrence id from a UID written by this
// tool; foreign UIDs pass through unchanged.
func stripUIDDomain(uid string) string {
	if rest, ok := strings.CutSuffix(uid, "@"+UIDDomain); ok {
		return rest
	}
	return uid
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
