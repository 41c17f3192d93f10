package model

import "time"

// Entry statuses, named after the schema.org EventStatusType values.
const (
	StatusScheduled = "EventScheduled"
	StatusCancelled = "EventCancelled"
	StatusPostponed = "EventPostponed"
)

// Entry is the platform-agnostic view of a calendar event used by the web
// API and exports. It keeps only what is needed for display.
type Entry struct {
	Source     string `json:"source,omitempty"` // channel ID
	InstanceID string `json:"instance_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool      `json:"all_day"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`

	Organizer string   `json:"organizer,omitempty"`
	Attendees []string `json:"attendees"`
	Status    string   `json:"status,omitempty"`
	Color     string   `json:"color,omitempty"`
}

var runningStatus = map[int]string{
	0: StatusScheduled,
	1: StatusCancelled,
	2: StatusPostponed,
}

// ToEntry maps a Compass event onto an Entry. The plain location string wins
// over the structured list; unknown running statuses map to "".
func ToEntry(ev Event) Entry {
	var loc string
	if ev.Location != nil {
		loc = *ev.Location
	}
	if loc == "" {
		for _, l := range ev.Locations {
			if l.LocationName != nil {
				loc = *l.LocationName
			}
			break
		}
	}

	return Entry{
		InstanceID:  ev.InstanceID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    loc,
		AllDay:      ev.AllDay,
		Start:       ev.Start,
		End:         ev.Finish,
		Attendees:   []string{},
		Status:      runningStatus[ev.RunningStatus],
		Color:       ev.BackgroundColor,
	}
}

// ToEntries maps a slice of events, tagging each entry with source.
func ToEntries(source string, evs []Event) []Entry {
	out := make([]Entry, 0, len(evs))
	for _, ev := range evs {
		e := ToEntry(ev)
		e.Source = source
		out = append(out, e)
	}
	return out
}
