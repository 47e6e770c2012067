package merge

import "strings"

// Gazetteer is the fixed reference list of recognized life-sciences
// cluster regions used for biotech-hub tagging.
type Gazetteer []string

// DefaultGazetteer lists the hub regions the product ships with.
// Overridable through configuration.
func DefaultGazetteer() Gazetteer {
	return Gazetteer{
		"Cambridge, MA",
		"Boston, MA",
		"San Francisco, CA",
		"San Diego, CA",
		"Research Triangle Park, NC",
		"Seattle, WA",
		"New York, NY",
		"Basel, Switzerland",
		"London, UK",
	}
}

// Match reports whether a location falls inside a known hub, by
// case-insensitive containment in either direction. An unmatched
// location yields ("", false); the hub flag stays off.
func (g Gazetteer) Match(location string) (string, bool) {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return "", false
	}
	for _, hub := range g {
		h := strings.ToLower(hub)
		if strings.Contains(loc, h) || strings.Contains(h, loc) {
			return hub, true
		}
	}
	return "", false
}
