package extract

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format accepted by ParseDateRange.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for a range whose end precedes its start.
var ErrInvalidRange = errors.New("invalid date range")

// DateRange is a half-open UTC interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// NewDateRange returns the range converted to UTC.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: start.UTC(), End: end.UTC()}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// ParseDateRange reads two calendar dates. Both days are included, so the
// range ends at midnight after the end date.
func ParseDateRange(start, end string) (DateRange, error) {
	from, err := time.ParseInLocation(DateLayout, start, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start: %v", ErrInvalidRange, err)
	}
	to, err := time.ParseInLocation(DateLayout, end, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end: %v", ErrInvalidRange, err)
	}
	return NewDateRange(from, to.AddDate(0, 0, 1))
}

// Validate enforces Start <= End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// Duration returns End - Start.
func (r DateRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r DateRange) String() string {
	return r.Start.Format(time.RFC3339) + "/" + r.End.Format(time.RFC3339)
}
