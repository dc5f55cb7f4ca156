// Package clock turns instants into civil dates of one named timezone.
//
// Every "today" in the system comes from a Calendar so that all sessions share
// the same day boundary regardless of the host's local zone, and so tests can
// pin the current instant.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // containers often ship without /usr/share/zoneinfo
)

// DateLayout is the zero-padded YYYY-MM-DD form used by the reset marker
const DateLayout = "2006-01-02"

type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New loads zone (an IANA name such as "America/Sao_Paulo"). A nil now uses time.Now.
func New(zone string, now func() time.Time) (*Calendar, error) {
	if zone == "" || zone == "Local" {
		return nil, fmt.Errorf("a named timezone is required, got %q", zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", zone, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}, nil
}

// Fixed returns a Calendar whose clock never moves. For tests and one-shot tools.
func Fixed(zone string, at time.Time) (*Calendar, error) {
	return New(zone, func() time.Time { return at })
}

func (c *Calendar) Now() time.Time {
	return c.now()
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today is the current civil date in the calendar's zone
func (c *Calendar) Today() string {
	return c.DateOf(c.now())
}

// DateOf formats t as the civil date it falls on in the calendar's zone
func (c *Calendar) DateOf(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

// ParseDay accepts either a bare YYYY-MM-DD date or an RFC 3339 instant and returns
// the civil date it denotes in the calendar's zone.
func (c *Calendar) ParseDay(s string) (string, error) {
	if len(s) == len(DateLayout) {
		if _, err := time.ParseInLocation(DateLayout, s, c.loc); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", s, err)
		}
		return s, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", fmt.Errorf("invalid instant %q: %w", s, err)
	}
	return c.DateOf(t), nil
}
