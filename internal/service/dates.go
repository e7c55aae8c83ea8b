package service

import (
	"time"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
)

const dateLayout = "2006-01-02"

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.BadRequest("invalid date %q, expected YYYY-MM-DD", s)
}

// ParseDateRange turns inclusive start and end dates into a half-open
// range. Empty bounds stay open unless required.
func ParseDateRange(start, end string, required bool) (domain.DateRange, error) {
	var r domain.DateRange
	if required && (start == "" || end == "") {
		return r, apperr.BadRequest("startDate and endDate are required")
	}
	if start != "" {
		t, err := ParseDate(start)
		if err != nil {
			return r, err
		}
		r.From = t
	}
	if end != "" {
		t, err := ParseDate(end)
		if err != nil {
			return r, err
		}
		r.To = t.AddDate(0, 0, 1)
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, apperr.BadRequest("startDate must not be after endDate")
	}
	return r, nil
}
