package events

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/markusmobius/go-dateparser"
)

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseSearchFilters reads q, location, date_from and date_to from a query
// string. A date-only date_to covers the whole day.
func ParseSearchFilters(values url.Values, now time.Time) (Filters, error) {
	filters := Filters{
		Query:    strings.TrimSpace(values.Get("q")),
		Location: strings.TrimSpace(values.Get("location")),
	}

	from, err := parseDate("date_from", values.Get("date_from"), now, false)
	if err != nil {
		return filters, err
	}
	to, err := parseDate("date_to", values.Get("date_to"), now, true)
	if err != nil {
		return filters, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return filters, FilterError{Field: "date_to", Message: "must be on or after date_from"}
	}
	filters.DateFrom = from
	filters.DateTo = to
	return filters, nil
}

func parseDate(field, value string, now time.Time, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if parsed, err := validation.ParseTimestamp(value); err == nil {
		if endOfDay && isDateOnly(value) {
			parsed = parsed.Add(24*time.Hour - time.Nanosecond)
		}
		return &parsed, nil
	}

	// Free-form input such as "next friday" or "1 March 2030".
	cfg := &dateparser.Configuration{
		CurrentTime:     now,
		DefaultTimezone: time.UTC,
	}
	parsed, err := dateparser.Parse(cfg, value)
	if err != nil || parsed.Time.IsZero() {
		return nil, FilterError{Field: field, Message: "must be a valid date"}
	}
	t := parsed.Time.UTC()
	return &t, nil
}

func isDateOnly(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}
