// Package calendar maps device-local civil dates to canonical date keys.
//
// Keys have the form YYYY-MM-DD. Every derivation of "today" and every
// day shift uses the device's local calendar, never UTC, because day
// boundaries are relative to the user's timezone.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyFormat is the layout of a canonical date key.
const KeyFormat = "2006-01-02"

// ErrMalformedKey is returned by Parse when the key is not YYYY-MM-DD.
var ErrMalformedKey = errors.New("malformed date key")

// weekdayLabels is the fixed cycle order used by OffsetFromToday.
var weekdayLabels = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Civil is a (year, month, day) triple in the device's calendar.
type Civil struct {
	Year  int
	Month time.Month
	Day   int
}

// Calendar derives keys from an injectable clock and location.
type Calendar struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		c.now = now
	}
}

// WithLocation overrides the device location.
func WithLocation(loc *time.Location) Option {
	return func(c *Calendar) {
		c.loc = loc
	}
}

// New constructs a Calendar using time.Now and time.Local unless overridden.
func New(opts ...Option) *Calendar {
	c := &Calendar{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current instant in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the key for the current local date.
func (c *Calendar) Today() string {
	y, m, d := c.Now().Date()
	return Format(Civil{Year: y, Month: m, Day: d})
}

// IsToday reports whether key names the current local date.
func (c *Calendar) IsToday(key string) bool {
	return key == c.Today()
}

// OffsetFromToday returns how many days ahead (0-6) the weekday label
// falls, counting today as 0 and wrapping forward. Unknown labels yield -1.
func (c *Calendar) OffsetFromToday(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return -1
	}
	today := int(c.Now().Weekday())
	for i := 0; i < len(weekdayLabels); i++ {
		if weekdayLabels[(today+i)%7] == label {
			return i
		}
	}
	return -1
}

// WeekAnchorKey returns the anchor of the rolling 7-day window, which is
// today at the moment of navigation. Step it with AddDays(anchor, ±7).
func (c *Calendar) WeekAnchorKey() string {
	return c.Today()
}

// DateKeyForDay resolves a weekday label to its key within the window
// anchored at weekKey.
func (c *Calendar) DateKeyForDay(weekKey, label string) (string, error) {
	offset := c.OffsetFromToday(label)
	if offset < 0 {
		return "", fmt.Errorf("unknown weekday label %q", label)
	}
	return AddDays(weekKey, offset)
}

// Format renders a civil date as a canonical key, normalising overflow.
func Format(d Civil) string {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return t.Format(KeyFormat)
}

// Parse splits a canonical key into its civil date components.
func Parse(key string) (Civil, error) {
	parts := strings.Split(key, "-")
	if len(parts) != 3 {
		return Civil{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	nums := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Civil{}, fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
		nums[i] = n
	}
	return Civil{Year: nums[0], Month: time.Month(nums[1]), Day: nums[2]}, nil
}

// AddDays shifts key by n civil days with normal month and year carry.
func AddDays(key string, n int) (string, error) {
	d, err := Parse(key)
	if err != nil {
		return "", err
	}
	// Noon keeps DST transitions from moving the civil date.
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	y, m, day := t.Date()
	return Format(Civil{Year: y, Month: m, Day: day}), nil
}

// Compare orders two keys chronologically: -1, 0 or 1.
func Compare(a, b string) (int, error) {
	ca, err := Parse(a)
	if err != nil {
		return 0, err
	}
	cb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	ta := time.Date(ca.Year, ca.Month, ca.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(cb.Year, cb.Month, cb.Day, 0, 0, 0, 0, time.UTC)
	switch {
	case ta.Before(tb):
		return -1, nil
	case ta.After(tb):
		return 1, nil
	default:
		return 0, nil
	}
}

// WeekdayOf returns the weekday label of key.
func WeekdayOf(key string) (string, error) {
	d, err := Parse(key)
	if err != nil {
		return "", err
	}
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return weekdayLabels[t.Weekday()], nil
}

// IsWeekdayLabel reports whether label is one of the seven weekday names.
func IsWeekdayLabel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, l := range weekdayLabels {
		if l == label {
			return true
		}
	}
	return false
}

var defaultCalendar = New()

// Today returns today's key using the device clock and location.
func Today() string { return defaultCalendar.Today() }

// IsToday reports whether key is today on the device clock.
func IsToday(key string) bool { return defaultCalendar.IsToday(key) }

// OffsetFromToday is the package-level form of Calendar.OffsetFromToday.
func OffsetFromToday(label string) int { return defaultCalendar.OffsetFromToday(label) }
