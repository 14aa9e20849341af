package clearance

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is a member's clearance inside a tenant: an integer on the
// seven-step "rainbow" scale from INFRARED (0) to ULTRAVIOLET (6).
//
// Why a plain int and not a richer type?
//   - Every gate in the app is "is the caller at least X?". A numeric
//     comparison is exactly that check, nothing more.
//   - It maps 1:1 onto the clearance_level SMALLINT column.
type Level int

const (
	Infrared Level = iota
	Red
	Orange
	Yellow
	Green
	Blue
	Ultraviolet
)

// Min and Max bound the scale. Anything outside is invalid.
const (
	Min = Infrared
	Max = Ultraviolet
)

var names = [...]string{
	Infrared:    "INFRARED",
	Red:         "RED",
	Orange:      "ORANGE",
	Yellow:      "YELLOW",
	Green:       "GREEN",
	Blue:        "BLUE",
	Ultraviolet: "ULTRAVIOLET",
}

// IsValid reports whether level is an integer in [0,6].
func IsValid(level int) bool {
	return level >= int(Min) && level <= int(Max)
}

// HasAccess reports whether a member at userLevel may use something that
// requires requiredLevel. Invalid levels on either side never grant access.
func HasAccess(userLevel, requiredLevel Level) bool {
	if !userLevel.Valid() || !requiredLevel.Valid() {
		return false
	}
	return userLevel >= requiredLevel
}

func (l Level) Valid() bool {
	return IsValid(int(l))
}

func (l Level) String() string {
	if !l.Valid() {
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
	return names[l]
}

// Parse accepts either the numeric form ("3") or the name ("yellow").
func Parse(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if !IsValid(n) {
			return 0, fmt.Errorf("clearance %d out of range [%d,%d]", n, Min, Max)
		}
		return Level(n), nil
	}
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown clearance %q", s)
}

// All returns the scale in ascending order.
func All() []Level {
	out := make([]Level, 0, len(names))
	for i := range names {
		out = append(out, Level(i))
	}
	return out
}
