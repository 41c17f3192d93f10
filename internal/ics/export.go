// Package ics renders validated Compass events as an iCalendar feed.
package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"bellweaver/internal/model"
)

const (
	// UIDDomain is appended to instance IDs to form VEVENT UIDs.
	UIDDomain = "bellweaver"

	// ColorProperty carries the Compass background colour verbatim.
	ColorProperty = ical.ComponentProperty("X-BELLWEAVER-COLOR")

	localFormat = "20060102T150405"
	utcFormat   = "20060102T150405Z"
)

// Options controls calendar generation.
type Options struct {
	// Name is written as X-WR-CALNAME when set.
	Name string

	// Location is used for all-day dates and recurrence rules. If nil, UTC
	// is used.
	Location *time.Location

	// Collapse folds recurring activities into RRULE series.
	Collapse bool

	// Now stamps DTSTAMP. If nil, time.Now is used.
	Now func() time.Time
}

var statuses = map[string]ical.ObjectStatus{
	model.StatusScheduled: ical.ObjectStatusConfirmed,
	model.StatusCancelled: ical.ObjectStatusCancelled,
	model.StatusPostponed: ical.ObjectStatusTentative,
}

// Build returns a calendar with one VEVENT per event, or per series when
// opts.Collapse is set.
func Build(events []model.Event, opts Options) *ical.Calendar {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stamp := now()

	cal := ical.NewCalendarFor(UIDDomain)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	singles := events
	var series []Series
	if opts.Collapse {
		singles, series = CollapseRecurring(events, loc)
	}

	for _, ev := range singles {
		ve := addEvent(cal, ev, stamp, loc)
		if ev.AllDay {
			continue
		}
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.Finish)
	}
	for _, s := range series {
		ve := addEvent(cal, s.First, stamp, loc)
		if !s.First.AllDay {
			setZoned(ve, ical.ComponentPropertyDtStart, s.First.Start, loc)
			setZoned(ve, ical.ComponentPropertyDtEnd, s.First.Finish, loc)
		}
		ve.AddRrule(s.Rule.OrigOptions.RRuleString())
		for _, ex := range s.ExDates {
			if s.First.AllDay {
				ve.AddExdate(ex.In(loc).Format("20060102"), ical.WithValue(string(ical.ValueDataTypeDate)))
				continue
			}
			addZoned(ve, ical.ComponentPropertyExdate, ex, loc)
		}
	}
	return cal
}

// Write serializes the calendar for events to w.
func Write(w io.Writer, events []model.Event, opts Options) error {
	return Build(events, opts).SerializeTo(w)
}

// UID returns the VEVENT UID for a Compass instance ID.
func UID(instanceID string) string {
	return instanceID + "@" + UIDDomain
}

// addEvent adds a VEVENT with the common properties. Timed start and end
// are left to the caller; all-day dates are set here.
func addEvent(cal *ical.Calendar, ev model.Event, stamp time.Time, loc *time.Location) *ical.VEvent {
	e := model.ToEntry(ev)

	ve := cal.AddEvent(UID(ev.InstanceID))
	ve.SetDtStampTime(stamp)
	ve.SetSummary(e.Title)
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	if e.Location != "" {
		ve.SetLocation(e.Location)
	}
	if st, ok := statuses[e.Status]; ok {
		ve.SetStatus(st)
	}
	if e.Color != "" {
		ve.SetProperty(ColorProperty, e.Color)
	}
	if ev.AllDay {
		start, end := allDayRange(ev, loc)
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(end)
	}
	return ve
}

// allDayRange returns the first day and the exclusive end day of an
// all-day event. Compass sends either midnight of the next day or a time
// on the last day as the finish.
func allDayRange(ev model.Event, loc *time.Location) (time.Time, time.Time) {
	start := midnight(ev.Start.In(loc))
	fin := ev.Finish.In(loc)
	end := midnight(fin)
	if !fin.Equal(end) || !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func setZoned(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	if loc == time.UTC {
		ve.SetProperty(prop, t.UTC().Format(utcFormat))
		return
	}
	ve.SetProperty(prop, t.In(loc).Format(localFormat), ical.WithTZID(loc.String()))
}

func addZoned(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	if loc == time.UTC {
		ve.AddProperty(prop, t.UTC().Format(utcFormat))
		return
	}
	ve.AddProperty(prop, t.In(loc).Format(localFormat), ical.WithTZID(loc.String()))
}
