// Package navigator tracks which landing-page section is active.
//
// The active section is derived from the scroll offset and the measured
// layout of each section, or set directly when a visitor clicks a nav item.
// All transitions are pure: every method returns a new State.
package navigator

import "strings"

// SectionID names one of the fixed landing-page sections.
type SectionID string

const (
	Home       SectionID = "home"
	About      SectionID = "about"
	Work       SectionID = "work"
	Experience SectionID = "experience"
	Contact    SectionID = "contact"
)

// Order is the fixed order sections are checked in.
var Order = []SectionID{Home, About, Work, Experience, Contact}

const (
	// LookAhead biases the scroll offset so a section activates slightly
	// before its top reaches the viewport edge.
	LookAhead = 100.0
	// HeaderOffset is the height of the fixed nav bar.
	HeaderOffset = 80.0
)

// ParseSection maps a raw id onto a known section.
func ParseSection(raw string) (SectionID, bool) {
	id := SectionID(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Order {
		if id == known {
			return id, true
		}
	}
	return Home, false
}

// Label is the nav text for a section.
func (id SectionID) Label() string {
	s := string(id)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Geometry is the measured vertical extent of one rendered section.
type Geometry struct {
	ID     SectionID `json:"id"`
	Top    float64   `json:"top"`
	Height float64   `json:"height"`
}

func (g Geometry) contains(y float64) bool {
	return y >= g.Top && y < g.Top+g.Height
}

func lookup(sections []Geometry, id SectionID) (Geometry, bool) {
	for _, g := range sections {
		if g.ID == id {
			return g, true
		}
	}
	return Geometry{}, false
}

// ComputeActiveSection returns the first section, in Order, whose extent
// contains scrollY+LookAhead. Sections without geometry are skipped. When
// nothing matches the previous section is kept.
func ComputeActiveSection(scrollY float64, sections []Geometry, previous SectionID) SectionID {
	probe := scrollY + LookAhead
	for _, id := range Order {
		g, ok := lookup(sections, id)
		if !ok {
			continue
		}
		if g.contains(probe) {
			return id
		}
	}
	if _, ok := ParseSection(string(previous)); !ok {
		return Home
	}
	return previous
}

// State is the navigation state owned by the landing view.
type State struct {
	Active   SectionID `json:"active"`
	MenuOpen bool      `json:"menuOpen"`
}

// NewState returns the initial state: home active, menu closed.
func NewState() State {
	return State{Active: Home}
}

// Normalize repairs a state decoded from outside so Active is a known id.
func (s State) Normalize() State {
	if id, ok := ParseSection(string(s.Active)); ok {
		s.Active = id
	} else {
		s.Active = Home
	}
	return s
}

// OnScroll recomputes the active section for a scroll event.
func (s State) OnScroll(scrollY float64, sections []Geometry) State {
	s = s.Normalize()
	s.Active = ComputeActiveSection(scrollY, sections, s.Active)
	return s
}

// ScrollTo handles a nav click. The menu is always closed. When the target
// has geometry the returned offset places its top just below the header and
// the target becomes active immediately; otherwise nothing scrolls and ok is
// false.
func (s State) ScrollTo(target SectionID, sections []Geometry) (next State, top float64, ok bool) {
	next = s.Normalize()
	next.MenuOpen = false
	id, known := ParseSection(string(target))
	if !known {
		return next, 0, false
	}
	g, found := lookup(sections, id)
	if !found {
		return next, 0, false
	}
	next.Active = id
	return next, g.Top - HeaderOffset, true
}

// ToggleMenu flips the mobile menu.
func (s State) ToggleMenu() State {
	s = s.Normalize()
	s.MenuOpen = !s.MenuOpen
	return s
}
