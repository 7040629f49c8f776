package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time conversion constants.
const (
	minutesPerHour = 60
	maxHour        = 23
)

// Static errors for clock validation.
var (
	ErrTimeFormat     = errors.New("time must be HH:MM")
	ErrInvalidHour    = errors.New("invalid hour")
	ErrInvalidMinute  = errors.New("invalid minute")
	ErrHourOutOfRange = errors.New("hour out of range")
)

// Clock is a wall-clock time of day. Daily triggers fire at Clock times in
// UTC.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts H:MM or HH:MM.
func ParseClock(value string) (Clock, error) {
	normalized, err := NormalizeTimeHM(value)
	if err != nil {
		return Clock{}, err
	}

	hour, _ := strconv.Atoi(normalized[:2])
	minute, _ := strconv.Atoi(normalized[3:])

	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the clock as minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*minutesPerHour + c.Minute
}

// Next returns the first UTC occurrence of the clock time strictly after the
// given moment.
func (c Clock) Next(after time.Time) time.Time {
	after = after.UTC()

	next := time.Date(after.Year(), after.Month(), after.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// Prev returns the last UTC occurrence of the clock time at or before the
// given moment.
func (c Clock) Prev(before time.Time) time.Time {
	before = before.UTC()

	prev := time.Date(before.Year(), before.Month(), before.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
	if prev.After(before) {
		prev = prev.AddDate(0, 0, -1)
	}

	return prev
}

// NormalizeTimeHM accepts H:MM or HH:MM and returns HH:MM.
func NormalizeTimeHM(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrTimeFormat
	}

	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return "", ErrTimeFormat
	}

	if len(parts[1]) != 2 {
		return "", ErrTimeFormat
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", ErrInvalidHour
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", ErrInvalidMinute
	}

	if hour > maxHour || hour < 0 {
		return "", ErrHourOutOfRange
	}

	if minute < 0 || minute >= minutesPerHour {
		return "", ErrInvalidMinute
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// UTCMidnight returns the start of the given moment's UTC day.
func UTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
