// Package sampler correlates timestamped workload markers with a fault window.
//
// All comparisons happen at minute granularity: both the markers and the
// window bounds are truncated to the minute before they are compared, so a
// clock skew of less than a minute between the harness and the workload never
// flips a classification. Window bounds are inclusive.
package sampler

import (
	"fmt"
	"sort"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/types"
)

// Granularity of every comparison made by the sampler
const Granularity = time.Minute

// gap reasons
const (
	ReasonNoMarker      = "no marker inside the window"
	ReasonShortWorkload = "workload span is shorter than the window"
	ReasonNoActivity    = "workload produced no markers"
)

// Gap describes why a window is classified as paused
type Gap struct {
	Window  types.ObservationWindow
	Reason  string
	Missing []time.Time
}

func (g Gap) String() string {
	return fmt.Sprintf("%s %s, %d sampled minute(s) without marker", g.Window, g.Reason, len(g.Missing))
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(Granularity)
}

// Overlaps reports whether t falls inside the window at minute granularity
func Overlaps(t time.Time, w types.ObservationWindow) bool {
	m := truncate(t)
	return !m.Before(truncate(w.Start)) && !m.After(truncate(w.End))
}

// MinuteRange returns every sampling instant of the window
func MinuteRange(w types.ObservationWindow) []time.Time {
	var out []time.Time
	end := truncate(w.End)
	for m := truncate(w.Start); !m.After(end); m = m.Add(Granularity) {
		out = append(out, m)
	}
	return out
}

// FindGap returns nil when at least one marker overlaps the window and a gap otherwise.
// A workload whose own span is shorter than the window is always reported as
// paused, whatever its markers overlap. Markers need not be sorted.
func FindGap(markers []time.Time, w types.ObservationWindow) *Gap {
	if len(markers) == 0 {
		return &Gap{Window: w, Reason: ReasonNoActivity, Missing: MinuteRange(w)}
	}
	if span(markers) < truncate(w.End).Sub(truncate(w.Start)) {
		return &Gap{Window: w, Reason: ReasonShortWorkload, Missing: MissingMinutes(markers, w)}
	}
	for _, m := range markers {
		if Overlaps(m, w) {
			return nil
		}
	}
	return &Gap{Window: w, Reason: ReasonNoMarker, Missing: MissingMinutes(markers, w)}
}

// MissingMinutes lists the sampled minutes of the window which carry no marker
func MissingMinutes(markers []time.Time, w types.ObservationWindow) []time.Time {
	seen := make(map[time.Time]struct{}, len(markers))
	for _, m := range markers {
		seen[truncate(m)] = struct{}{}
	}
	var missing []time.Time
	for _, minute := range MinuteRange(w) {
		if _, ok := seen[minute]; !ok {
			missing = append(missing, minute)
		}
	}
	return missing
}

// span is the distance between the earliest and the latest marker
func span(markers []time.Time) time.Duration {
	if len(markers) == 0 {
		return 0
	}
	sorted := make([]time.Time, len(markers))
	copy(sorted, markers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return truncate(sorted[len(sorted)-1]).Sub(truncate(sorted[0]))
}
