// Package compass talks to the Compass Education platform.
//
// Two implementations satisfy Client: HTTPClient logs in over HTTP and
// calls the platform's JSON services, MockClient serves a committed sample
// corpus. NewClient picks one by mode. Clients return raw records; callers
// validate them with internal/parser.
//
// A client follows Created -> Authenticated -> Closed. Fetching before Login
// or after Close fails with a KindFetch error. Clients are not safe for
// concurrent use; build one per goroutine.
package compass

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bellweaver/internal/model"
)

// Client is the operation surface shared by the real and mock clients.
type Client interface {
	// Login authenticates and must be called before any fetch. It returns
	// false only together with an error wrapping ErrCredentialsRejected.
	Login(ctx context.Context) (bool, error)
	// GetUserDetails returns the raw profile of targetUserID, or of the
	// logged-in user when targetUserID is nil.
	GetUserDetails(ctx context.Context, targetUserID *int) (model.Raw, error)
	// GetCalendarEvents returns at most limit raw events between start and
	// end inclusive. A reversed range is not rejected.
	GetCalendarEvents(ctx context.Context, start, end Date, limit int) ([]model.Raw, error)
	// Close releases resources. It is idempotent.
	Close() error
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current date in loc.
func Today(loc *time.Location) Date {
	return DateOf(time.Now().In(loc))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// state tracks the Created -> Authenticated -> Closed lifecycle.
type state int

const (
	stateCreated state = iota
	stateAuthenticated
	stateClosed
)

// check returns the fetch error for op when s does not allow fetching.
func (s state) check(op string) error {
	switch s {
	case stateClosed:
		return fetchErr(op, ErrClosed)
	case stateCreated:
		return fetchErr(op, ErrNotAuthenticated)
	}
	return nil
}
