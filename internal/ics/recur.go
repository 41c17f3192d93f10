package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "bellweaver/internal/log"
	"bellweaver/internal/model"
)

// Series is one recurring Compass activity rendered as a single VEVENT.
type Series struct {
	// First is the earliest observed instance; it supplies the VEVENT body.
	First model.Event
	Rule  *rrule.RRule
	// ExDates are rule occurrences inside the observed span with no
	// matching instance.
	ExDates []time.Time
}

// repeat_frequency codes used by Compass.
var frequencies = map[int]rrule.Frequency{
	1: rrule.DAILY,
	2: rrule.WEEKLY,
	3: rrule.MONTHLY,
	4: rrule.YEARLY,
}

// CollapseRecurring groups recurring instances by activity ID and replaces
// each group with a Series whose rule reproduces the instances. Rules are
// evaluated in loc so wall-clock times survive DST changes.
//
// Events that are not recurring, carry an unknown frequency or do not land
// on a rule occurrence are returned unchanged in singles, in input order.
func CollapseRecurring(events []model.Event, loc *time.Location) (singles []model.Event, series []Series) {
	if loc == nil {
		loc = time.UTC
	}

	groups := make(map[int][]model.Event)
	var order []int
	for _, ev := range events {
		if _, ok := frequencies[ev.RepeatFrequency]; !ok || !ev.IsRecurring || ev.ActivityID == 0 {
			singles = append(singles, ev)
			continue
		}
		if _, seen := groups[ev.ActivityID]; !seen {
			order = append(order, ev.ActivityID)
		}
		groups[ev.ActivityID] = append(groups[ev.ActivityID], ev)
	}

	for _, id := range order {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Start.Before(group[j].Start) })

		s, rest, err := buildSeries(group, loc)
		if err != nil {
			appLog.Warn("ics recurrence not collapsed", "activity_id", id, "err", err)
			singles = append(singles, group...)
			continue
		}
		series = append(series, s)
		singles = append(singles, rest...)
	}
	return singles, series
}

func buildSeries(group []model.Event, loc *time.Location) (Series, []model.Event, error) {
	first, last := group[0], group[len(group)-1]
	opt := rrule.ROption{
		Freq:    frequencies[first.RepeatFrequency],
		Dtstart: first.Start.In(loc),
	}
	switch {
	case first.RepeatForever:
	case first.RepeatUntil != nil:
		// Compass sends the last day at midnight; the final instance
		// starts later that day.
		y, m, d := first.RepeatUntil.In(loc).Date()
		opt.Until = time.Date(y, m, d, 23, 59, 59, 0, loc)
	default:
		opt.Until = last.Start.In(loc)
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return Series{}, nil, err
	}

	byStart := make(map[int64]bool, len(group))
	for _, ev := range group {
		byStart[ev.Start.Unix()] = true
	}
	onRule := make(map[int64]bool)
	s := Series{First: first, Rule: rule}
	for _, occ := range rule.Between(opt.Dtstart, last.Start.In(loc), true) {
		if byStart[occ.Unix()] {
			onRule[occ.Unix()] = true
			continue
		}
		s.ExDates = append(s.ExDates, occ)
	}

	var rest []model.Event
	for _, ev := range group[1:] {
		if !onRule[ev.Start.Unix()] {
			rest = append(rest, ev)
		}
	}
	return s, rest, nil
}
