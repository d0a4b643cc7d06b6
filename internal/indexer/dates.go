package indexer

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DayStart returns the unix seconds of date at 00:00:00 UTC.
func DayStart(date string) (int64, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day.Unix(), nil
}

// DayEnd returns the unix seconds of date at 23:59:59.999 UTC, floored to the second.
func DayEnd(date string) (int64, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day.Add(24*time.Hour - time.Millisecond).Unix(), nil
}

// DayBounds returns the unix seconds of start 00:00:00 UTC and end 23:59:59.999 UTC.
func DayBounds(startDate, endDate string) (int64, int64, error) {
	start, err := DayStart(startDate)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	end, err := DayEnd(endDate)
	if err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	return start, end, nil
}
