package sorter

import "fmt"

// Mode selects how records are ordered.
type Mode uint8

const (
	// ModeNull keeps cull order.
	ModeNull Mode = iota
	// ModeTransparency keeps opaque records in cull order and draws
	// transparent ones back to front after them.
	ModeTransparency
	// ModeStateDepth groups opaque records by state key, front to back
	// inside a group, then draws transparent ones back to front.
	ModeStateDepth
)

var modeNames = map[Mode]string{
	ModeNull:         "null",
	ModeTransparency: "transparency",
	ModeStateDepth:   "state",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// ParseMode parses a configuration value.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeNull, fmt.Errorf("unknown sort mode %q", s)
}
