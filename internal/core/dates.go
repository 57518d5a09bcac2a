package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

type Date struct {
	time.Time
}

var (
	ErrInvalidDay   = errors.New("invalid day")
	ErrInvalidMonth = errors.New("invalid month")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf strips the time of day. The calendar day is read in t's own location
// so that 23:30 local time stays on the same day once normalized to UTC.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current calendar date in the local time zone.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, dd := d.Date()
	if dd < 1 || dd > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Before(o Date) bool { return d.normalized().Before(o.normalized()) }
func (d Date) After(o Date) bool  { return d.normalized().After(o.normalized()) }
func (d Date) Equal(o Date) bool  { return d.normalized().Equal(o.normalized()) }

// AddDays moves the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.normalized().AddDate(0, 0, n))
}

func (d Date) normalized() time.Time {
	return DateOf(d.Time).Time
}

// DaysBetween is the exclusive whole-day count b - a, negative when b is
// before a. Both sides are normalized to UTC midnight first and compared as
// day numbers, so the count holds for any span time.Duration cannot hold.
func DaysBetween(a, b Date) int {
	return int(dayNumber(b) - dayNumber(a))
}

func dayNumber(d Date) int64 {
	// Unix seconds of a UTC midnight are an exact multiple of a day.
	return d.normalized().Unix() / secondsPerDay
}

// InclusiveDays counts both the first and the last day, so a same-day rental
// lasts 1 day. Every duration in the engine goes through here.
func InclusiveDays(a, b Date) int {
	return DaysBetween(a, b) + 1
}

// DaysPast is the number of whole days today is past reference, 0 when
// today is on or before reference.
func DaysPast(reference, today Date) int {
	return max(0, DaysBetween(reference, today))
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi Date) Date {
	if d.Before(lo) {
		return lo
	}
	if d.After(hi) {
		return hi
	}
	return d
}
