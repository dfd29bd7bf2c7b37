// Package daily defines the day boundary shared by the limit check and the leaderboard.
package daily

import (
	"fmt"
	"strings"
	"time"

	"github.com/jsureka/chemouflage-card-shop-sub000/internal/domain"
)

// Calendar maps instants to days in a single fixed reference timezone.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the named IANA zone. An empty name means UTC.
func NewCalendar(timezone string) (*Calendar, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		return &Calendar{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Calendar{loc: loc}, nil
}

// MustCalendar is NewCalendar for static zones in tests and defaults.
func MustCalendar(timezone string) *Calendar {
	c, err := NewCalendar(timezone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Today returns the reference-timezone day containing now.
func (c *Calendar) Today(now time.Time) domain.Day {
	return c.DayOf(now)
}

// DayOf returns the reference-timezone day containing t.
func (c *Calendar) DayOf(t time.Time) domain.Day {
	return domain.DayOf(t.In(c.loc))
}

// Window returns the half-open interval [start, end) covered by day.
func (c *Calendar) Window(day domain.Day) (start, end time.Time, err error) {
	start, err = day.Time(c.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// Contains reports whether t falls inside day's window.
func (c *Calendar) Contains(day domain.Day, t time.Time) bool {
	return c.DayOf(t) == day
}

// Previous returns the day before day, or "" if day does not parse.
func (c *Calendar) Previous(day domain.Day) domain.Day {
	start, err := day.Time(c.loc)
	if err != nil {
		return ""
	}
	return domain.DayOf(start.AddDate(0, 0, -1))
}
