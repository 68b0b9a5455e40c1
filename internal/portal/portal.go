package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	appLog "orarsync/internal/log"
)

// DefaultBaseURL is the public timetable portal of the university.
const DefaultBaseURL = "https://orar.usarb.md"

// FetchError wraps any failure while talking to the portal. A fetch
// failure is fatal to the whole run: without a schedule there is nothing
// to reconcile.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("portal: %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(op string, err error) error {
	return &FetchError{Op: op, Err: err}
}

// RawLesson is one slot entry exactly as the portal's getlessons API
// returns it. Field names mirror the upstream JSON; this is the tagged
// boundary that isolates the normalizer from upstream schema drift.
type RawLesson struct {
	DayNumber int    `json:"day_number"`
	Period    int    `json:"cours_nr"`
	Course    string `json:"cours_name"`
	Type      string `json:"cours_type"`
	Office    string `json:"cours_office"`
	Teacher   string `json:"teacher_name"`
}

// RawWeek is the per-week payload of the getlessons API.
type RawWeek struct {
	Week []RawLesson `json:"week"`
}

type group struct {
	ID   int    `json:"Id"`
	Name string `json:"Denumire"`
}

// Client fetches raw schedule payloads from the portal. The portal
// requires a session cookie plus a CSRF token scraped from the home page
// before its JSON endpoints answer.
type Client struct {
	base     string
	semester int
	http     *http.Client
}

// NewClient creates a portal client. baseURL falls back to
// DefaultBaseURL when empty; semester < 1 falls back to 1.
func NewClient(baseURL string, semester int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if semester < 1 {
		semester = 1
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		semester: semester,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
		},
	}
}

// FetchWeeks fetches the raw payload for every requested week, keyed by
// week number. The CSRF token and group id are resolved once per call and
// reused across weeks. Any failure aborts with a FetchError; the portal
// never partially fails within a single week.
func (c *Client) FetchWeeks(ctx context.Context, groupName string, weeks []int) (map[int]RawWeek, error) {
	if groupName == "" {
		return nil, fetchErr("fetch weeks", errors.New("group name is empty"))
	}
	if len(weeks) == 0 {
		return nil, fetchErr("fetch weeks", errors.New("no weeks requested"))
	}

	csrf, err := c.fetchCSRF(ctx)
	if err != nil {
		return nil, err
	}

	groupID, err := c.groupID(ctx, csrf, groupName)
	if err != nil {
		return nil, err
	}

	out := make(map[int]RawWeek, len(weeks))
	for _, week := range weeks {
		raw, err := c.fetchWeek(ctx, csrf, groupID, groupName, week)
		if err != nil {
			return nil, err
		}
		out[week] = raw
		appLog.Debug("portal week fetched", "group", groupName, "week", week, "slots", len(raw.Week))
	}

	appLog.Info("portal fetch completed", "group", groupName, "weeks", len(weeks))
	return out, nil
}

// fetchCSRF loads the portal home page (which also seeds the session
// cookie) and extracts the csrf-token meta tag.
func (c *Client) fetchCSRF(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return "", fetchErr("csrf request", err)
	}

	appLog.Debug("portal csrf fetch start", "url", c.base)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fetchErr("csrf fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fetchErr("csrf fetch", errors.New(resp.Status))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fetchErr("csrf parse", err)
	}

	token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if !ok || token == "" {
		return "", fetchErr("csrf parse", errors.New("csrf-token meta tag not found"))
	}
	return token, nil
}

// groupID resolves a group name to the portal's numeric group id.
func (c *Client) groupID(ctx context.Context, csrf, groupName string) (int, error) {
	form := url.Values{"_csrf": {csrf}}

	body, err := c.postForm(ctx, c.base+"/api/getGroups", form)
	if err != nil {
		return 0, fetchErr("get groups", err)
	}

	var groups []group
	if err := json.Unmarshal(body, &groups); err != nil {
		return 0, fetchErr("decode groups", err)
	}

	for _, g := range groups {
		if g.Name == groupName {
			return g.ID, nil
		}
	}
	return 0, fetchErr("get groups", fmt.Errorf("group %q not found", groupName))
}

// fetchWeek posts the getlessons form for a single university week.
func (c *Client) fetchWeek(ctx context.Context, csrf string, groupID int, groupName string, week int) (RawWeek, error) {
	form := url.Values{
		"_csrf": {csrf},
		"gr":    {strconv.Itoa(groupID)},
		"sem":   {strconv.Itoa(c.semester)},
		// The frontend always posts day=7; the API ignores it for our use.
		"day":    {"7"},
		"week":   {strconv.Itoa(week)},
		"grName": {groupName},
	}

	body, err := c.postForm(ctx, c.base+"/api/getlessons", form)
	if err != nil {
		return RawWeek{}, fetchErr(fmt.Sprintf("get lessons week %d", week), err)
	}

	var raw RawWeek
	if err := json.Unmarshal(body, &raw); err != nil {
		return RawWeek{}, fetchErr(fmt.Sprintf("decode lessons week %d", week), err)
	}
	return raw, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(resp.Body)
}
