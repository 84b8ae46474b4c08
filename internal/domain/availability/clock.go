package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock accepts "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock parses s and panics on error. Intended for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is a half-open [Start, End) range within one day.
type Window struct {
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Valid reports whether the window has positive length.
func (w Window) Valid() bool {
	return w.Start < w.End
}

// Contains reports whether inner lies fully inside w.
func (w Window) Contains(inner Window) bool {
	return inner.Start >= w.Start && inner.End <= w.End
}

// Overlaps is the half-open intersection test; touching windows do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && w.End > other.Start
}
