package forecast

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrHorizonTooLong = errors.New("forecast horizon too long")
	ErrInvalidMonth   = errors.New("month must be within 1..12")
)

// MonthLabelLayout formats the month a forecast step lands on.
const MonthLabelLayout = "Jan 2006"

// Horizon is the number of months from epoch to (year, month). It is zero or
// negative for dates at or before the epoch.
func Horizon(epoch time.Time, year int, month time.Month) int {
	return (year-epoch.Year())*12 + int(month) - int(epoch.Month())
}

// StepMonth is the calendar month forecast step k (zero-based) predicts.
func StepMonth(epoch time.Time, k int) time.Time {
	return time.Date(epoch.Year(), epoch.Month()+time.Month(k+1), 1, 0, 0, 0, 0, time.UTC)
}

// checkHorizon validates a request and returns its horizon.
func checkHorizon(epoch time.Time, maxHorizon, year int, month time.Month) (int, error) {
	if month < time.January || month > time.December {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}
	// bound the year first so Horizon cannot overflow
	window := maxHorizon/12 + 1
	switch {
	case year > epoch.Year()+window:
		return 0, fmt.Errorf("%w: year %d is more than %d years after %d", ErrHorizonTooLong, year, window, epoch.Year())
	case year < epoch.Year()-window:
		return 0, nil
	}
	n := Horizon(epoch, year, month)
	if n > maxHorizon {
		return 0, fmt.Errorf("%w: %d months requested, maximum is %d", ErrHorizonTooLong, n, maxHorizon)
	}
	return n, nil
}
