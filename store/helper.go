package store

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// EventToICS serializes an event's component wrapped in a VCALENDAR.
func EventToICS(ev *Event) (string, error) {
	if ev.Component == nil {
		return "", fmt.Errorf("event %s has no component data", ev.Path)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Caltree//Calendar Store//EN")

	if ev.Component.Props.Get(ical.PropDateTimeStamp) == nil {
		ev.Component.Props.SetDateTime(ical.PropDateTimeStamp, time.Now())
	}

	cal.Children = append(cal.Children, ev.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}

// ICSToComponent parses an ICS document and returns its first VEVENT
// component.
func ICSToComponent(ics string) (*ical.Component, error) {
	dec := ical.NewDecoder(strings.NewReader(ics))

	cal, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			return child, nil
		}
	}
	return nil, fmt.Errorf("no VEVENT component found")
}

// NewEventComponent builds a minimal VEVENT component.
func NewEventComponent(uid, summary string, start time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props.SetText(ical.PropSummary, summary)
	comp.Props.SetDateTime(ical.PropDateTimeStart, start)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, start)
	return comp
}
