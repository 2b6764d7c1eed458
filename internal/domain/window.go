package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	WindowRecent = "recent"
	Window3h     = "3h"
	Window9h     = "9h"
	Window1d     = "1d"
	Window7d     = "7d"
)

// DefaultUptimeWindow is the window used when a caller does not name one.
const DefaultUptimeWindow = Window7d

var windows = map[string]time.Duration{
	WindowRecent: time.Hour,
	Window3h:     3 * time.Hour,
	Window9h:     9 * time.Hour,
	Window1d:     24 * time.Hour,
	Window7d:     7 * 24 * time.Hour,
}

// ParseWindow resolves a named preset or a Go duration string.
func ParseWindow(name string) (time.Duration, error) {
	if name == "" {
		name = DefaultUptimeWindow
	}
	if d, ok := windows[name]; ok {
		return d, nil
	}
	d, err := time.ParseDuration(name)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidWindow, name)
	}
	return d, nil
}

// UptimeRatio returns 100*up/total rounded to one decimal place. An empty
// window counts as fully available.
func UptimeRatio(up, total int) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(float64(up)*1000/float64(total)) / 10
}
