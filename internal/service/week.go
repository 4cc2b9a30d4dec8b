package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrInvalidBatchWeek = errors.New("invalid batch week")

// BatchWeek is an ISO 8601 year-week, written as "2026-W41".
type BatchWeek struct {
	Year int
	Week int
}

func ParseBatchWeek(label string) (BatchWeek, error) {
	if len(label) != 8 || label[4:6] != "-W" {
		return BatchWeek{}, fmt.Errorf("%w: %q", ErrInvalidBatchWeek, label)
	}
	year, err := strconv.Atoi(label[:4])
	if err != nil {
		return BatchWeek{}, fmt.Errorf("%w: %q", ErrInvalidBatchWeek, label)
	}
	week, err := strconv.Atoi(label[6:])
	if err != nil || week < 1 || week > weeksInYear(year) {
		return BatchWeek{}, fmt.Errorf("%w: %q", ErrInvalidBatchWeek, label)
	}
	return BatchWeek{Year: year, Week: week}, nil
}

// BatchWeekOf returns the ISO week containing t, in t's location.
func BatchWeekOf(t time.Time) BatchWeek {
	year, week := t.ISOWeek()
	return BatchWeek{Year: year, Week: week}
}

// FormatBatchWeek labels the ISO week containing t, e.g. "2026-W41".
func FormatBatchWeek(t time.Time) string {
	return BatchWeekOf(t).String()
}

// PreviousBatchWeek is the ISO week before the one containing now.
func PreviousBatchWeek(now time.Time) BatchWeek {
	return BatchWeekOf(now.AddDate(0, 0, -7))
}

func (w BatchWeek) String() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Week)
}

// Start is Monday 00:00 of the week in loc.
func (w BatchWeek) Start(loc *time.Location) time.Time {
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, loc)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, 1-weekday)
	return monday.AddDate(0, 0, (w.Week-1)*7)
}

// End is the exclusive end of the week: the following Monday 00:00 in loc.
func (w BatchWeek) End(loc *time.Location) time.Time {
	return w.Start(loc).AddDate(0, 0, 7)
}

// weeksInYear is 52 or 53; December 28 always falls in the last ISO week.
func weeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}
