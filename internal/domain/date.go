package domain

import (
	"fmt"
	"regexp"
	"time"
)

// RunDateLayout is the folder-key form of a run date.
const RunDateLayout = "20060102"

// runDateRe rejects anything that is not eight digits before the (stricter)
// calendar parse runs, so "2025-13-01" and "abc" fail with a shape error.
var runDateRe = regexp.MustCompile(`^\d{8}$`)

// ParseRunDate validates a YYYYMMDD string as a real calendar date and returns
// it as midnight UTC.
func ParseRunDate(s string) (time.Time, error) {
	if !runDateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q is not in YYYYMMDD form", ErrInvalidDate, s)
	}
	t, err := time.ParseInLocation(RunDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, s)
	}
	return t, nil
}

// ValidateRunDates parses every date and fails on the first bad one. Callers
// run this before touching the filesystem or the network.
func ValidateRunDates(dates []string) error {
	if len(dates) == 0 {
		return fmt.Errorf("%w: empty date list", ErrInvalidDate)
	}
	for _, d := range dates {
		if _, err := ParseRunDate(d); err != nil {
			return err
		}
	}
	return nil
}

// NextDay returns the following calendar day in YYYYMMDD form.
// The input must already be validated.
func NextDay(date string) string {
	t, err := ParseRunDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, 1).Format(RunDateLayout)
}

// Today is the current UTC calendar date in folder-key form.
func Today() string {
	return Now().Format(RunDateLayout)
}
