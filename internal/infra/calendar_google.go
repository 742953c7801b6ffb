package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// DefaultCalendarAPI is the Google Calendar v3 endpoint.
const DefaultCalendarAPI = "https://www.googleapis.com/calendar/v3"

const allDayLayout = "2006-01-02"

// GoogleCalendar implements domain.CalendarSource against the Calendar v3 events list.
type GoogleCalendar struct {
	client     *http.Client
	baseURL    string
	calendarID string
	logger     *zap.Logger
}

// NewGoogleCalendar creates a calendar source. Empty baseURL selects DefaultCalendarAPI,
// empty calendarID selects "primary".
func NewGoogleCalendar(client *http.Client, baseURL, calendarID string, logger *zap.Logger) *GoogleCalendar {
	if client == nil {
		client = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultCalendarAPI
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleCalendar{
		client:     client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		calendarID: calendarID,
		logger:     logger,
	}
}

// FetchEvents lists single events overlapping window.
// A 401 response is reported as domain.ErrCalendarUnauthorized.
func (g *GoogleCalendar) FetchEvents(ctx context.Context, token string, window domain.TimeWindow, keywordHint string) ([]domain.CalendarEvent, error) {
	q := url.Values{}
	q.Set("timeMin", window.Start.Format(time.RFC3339))
	q.Set("timeMax", window.End.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	if keywordHint != "" {
		q.Set("q", keywordHint)
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", g.baseURL, url.PathEscape(g.calendarID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sitemon")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("calendar API status %d: %w", resp.StatusCode, domain.ErrCalendarUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("calendar API returned status %d: %s",
			resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("calendar API returned invalid JSON")
	}

	var events []domain.CalendarEvent
	for _, item := range gjson.GetBytes(body, "items").Array() {
		if item.Get("status").String() == "cancelled" {
			continue
		}
		ev, err := parseEvent(item)
		if err != nil {
			g.logger.Debug("skipping calendar event",
				zap.String("id", item.Get("id").String()),
				zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseEvent reads either dateTime instants or all-day dates.
// All-day dates are local midnights; the end date is exclusive.
func parseEvent(item gjson.Result) (domain.CalendarEvent, error) {
	ev := domain.CalendarEvent{Summary: item.Get("summary").String()}

	if dt := item.Get("start.dateTime"); dt.Exists() {
		start, err := time.Parse(time.RFC3339, dt.String())
		if err != nil {
			return ev, fmt.Errorf("start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, item.Get("end.dateTime").String())
		if err != nil {
			return ev, fmt.Errorf("end: %w", err)
		}
		ev.Start, ev.End = start, end
		return ev, nil
	}

	start, err := time.ParseInLocation(allDayLayout, item.Get("start.date").String(), time.Local)
	if err != nil {
		return ev, fmt.Errorf("start date: %w", err)
	}
	end, err := time.ParseInLocation(allDayLayout, item.Get("end.date").String(), time.Local)
	if err != nil {
		return ev, fmt.Errorf("end date: %w", err)
	}
	ev.Start, ev.End, ev.AllDay = start, end, true
	return ev, nil
}

var _ domain.CalendarSource = (*GoogleCalendar)(nil)
