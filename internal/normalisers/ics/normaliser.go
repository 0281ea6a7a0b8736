// Package ics reads iCalendar files, the format airlines, rail operators and
// booking sites attach to confirmations, and renders each VEVENT as a short
// block of "Field: value" lines.
package ics

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/filename"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles text/calendar documents.
type Normaliser struct{}

// New creates an iCalendar normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/calendar"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders every event in the calendar.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	cal, err := Parse(raw.Content)
	if err != nil {
		return nil, err
	}

	title := cal.Title()
	if title == "" {
		title = filename.Title(raw.URI)
	}
	return &driven.NormaliseResult{Title: title, Text: cal.Text()}, nil
}

// Event is one VEVENT.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       string
	End         string
	Organizer   string
	Attendees   []string
}

// Calendar is a parsed VCALENDAR.
type Calendar struct {
	Name   string
	Events []Event
}

// Title is the first event's summary, marked when more events follow, or
// the calendar name when there are no events.
func (c *Calendar) Title() string {
	if len(c.Events) == 0 || c.Events[0].Summary == "" {
		return c.Name
	}
	if len(c.Events) > 1 {
		return c.Events[0].Summary + " (and more)"
	}
	return c.Events[0].Summary
}

// Text renders the calendar as plain text, one block per event.
func (c *Calendar) Text() string {
	var blocks []string
	if c.Name != "" {
		blocks = append(blocks, "Calendar: "+c.Name)
	}
	for _, e := range c.Events {
		var b strings.Builder
		line := func(k, v string) {
			if v != "" {
				fmt.Fprintf(&b, "%s: %s\n", k, v)
			}
		}
		line("Event", e.Summary)
		switch {
		case e.Start != "" && e.End != "":
			line("When", e.Start+" to "+e.End)
		default:
			line("When", e.Start)
		}
		line("Where", e.Location)
		line("Organizer", e.Organizer)
		line("Attendees", strings.Join(e.Attendees, ", "))
		line("Details", e.Description)
		blocks = append(blocks, strings.TrimSpace(b.String()))
	}
	return strings.Join(blocks, "\n\n")
}

// Parse reads an iCalendar document. Content without a VCALENDAR is
// rejected with domain.ErrInvalidInput.
func Parse(content []byte) (*Calendar, error) {
	lines := unfold(content)

	var (
		cal     Calendar
		inCal   bool
		current *Event
		depth   int
	)
	for _, l := range lines {
		name, params, value := splitProperty(l)
		switch name {
		case "BEGIN":
			switch strings.ToUpper(value) {
			case "VCALENDAR":
				inCal = true
			case "VEVENT":
				if depth == 0 {
					current = &Event{}
				}
			}
			if current != nil && strings.ToUpper(value) != "VEVENT" {
				depth++
			}
			continue
		case "END":
			switch {
			case current != nil && depth > 0:
				depth--
			case current != nil && strings.ToUpper(value) == "VEVENT":
				cal.Events = append(cal.Events, *current)
				current = nil
			}
			continue
		}

		if current == nil {
			if name == "X-WR-CALNAME" {
				cal.Name = decodeValue(value)
			}
			continue
		}
		// Properties of nested components such as VALARM are ignored.
		if depth > 0 {
			continue
		}

		switch name {
		case "SUMMARY":
			current.Summary = decodeValue(value)
		case "DESCRIPTION":
			current.Description = decodeValue(value)
		case "LOCATION":
			current.Location = decodeValue(value)
		case "DTSTART":
			current.Start = formatDateTime(value, params["TZID"])
		case "DTEND":
			current.End = formatDateTime(value, params["TZID"])
		case "ORGANIZER":
			current.Organizer = participant(value, params["CN"])
		case "ATTENDEE":
			current.Attendees = append(current.Attendees, participant(value, params["CN"]))
		}
	}

	if !inCal {
		return nil, fmt.Errorf("%w: not an iCalendar document", domain.ErrInvalidInput)
	}
	return &cal, nil
}

// unfold joins continuation lines, which start with a space or tab.
func unfold(content []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		l := strings.TrimRight(sc.Text(), "\r")
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// splitProperty splits "DTSTART;TZID=Europe/Lisbon:20260601T090000" into
// its name, parameters and value.
func splitProperty(l string) (string, map[string]string, string) {
	colon := valueColon(l)
	if colon < 0 {
		return strings.ToUpper(l), nil, ""
	}
	head, value := l[:colon], l[colon+1:]
	parts := strings.Split(head, ";")
	params := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			params[strings.ToUpper(k)] = strings.Trim(v, `"`)
		}
	}
	return strings.ToUpper(parts[0]), params, value
}

// valueColon finds the colon that ends the property head, skipping colons
// inside quoted parameter values.
func valueColon(l string) int {
	quoted := false
	for i, r := range l {
		switch r {
		case '"':
			quoted = !quoted
		case ':':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func decodeValue(v string) string {
	return strings.TrimSpace(unescaper.Replace(v))
}

func participant(value, cn string) string {
	email := value
	if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	if cn == "" {
		return email
	}
	return cn + " <" + email + ">"
}

// formatDateTime renders DATE and DATE-TIME values. Unparseable values are
// returned unchanged.
func formatDateTime(v, tzid string) string {
	switch {
	case len(v) == 8:
		if t, err := time.Parse("20060102", v); err == nil {
			return t.Format("Mon 2 Jan 2006")
		}
	case strings.HasSuffix(v, "Z"):
		if t, err := time.Parse("20060102T150405Z", v); err == nil {
			return t.Format("Mon 2 Jan 2006 15:04") + " UTC"
		}
	default:
		if t, err := time.Parse("20060102T150405", v); err == nil {
			s := t.Format("Mon 2 Jan 2006 15:04")
			if tzid != "" {
				s += " (" + tzid + ")"
			}
			return s
		}
	}
	return v
}
