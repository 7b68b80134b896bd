// Package interval models a stay as a half-open range of calendar dates.
//
// An interval [Start, End) covers the nights from Start up to, but not including,
// End. A booking ending on the 12th and one starting on the 12th share no night.
package interval

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var ErrEmptyInterval = errors.New("interval end must be after start")

type Interval struct {
	Start time.Time
	End   time.Time
}

// Date truncates t to midnight UTC of the calendar day t falls on in its own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: Date(start), End: Date(end)}
	if !iv.Valid() {
		return Interval{}, ErrEmptyInterval
	}
	return iv, nil
}

func Parse(start, end string) (Interval, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return New(s, e)
}

func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether a and b share at least one night.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Adjacent reports whether one interval ends exactly where the other starts.
func Adjacent(a, b Interval) bool {
	return a.End.Equal(b.Start) || b.End.Equal(a.Start)
}

func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv, other)
}

func (iv Interval) Contains(day time.Time) bool {
	d := Date(day)
	return !d.Before(iv.Start) && d.Before(iv.End)
}

func (iv Interval) Nights() int {
	return int(iv.End.Sub(iv.Start).Hours() / 24)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(DateLayout), iv.End.Format(DateLayout))
}
