package sampler

import (
	"bufio"
	"strings"
	"time"

	"github.com/palantir/stacktrace"
)

var markerLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseMarker reads the timestamp a record line starts with.
// Timestamps without a zone are taken as UTC.
func ParseMarker(line string) (time.Time, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	candidates := []string{fields[0]}
	if len(fields) > 1 {
		candidates = append(candidates, fields[0]+" "+fields[1])
	}
	for _, candidate := range candidates {
		for _, layout := range markerLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseMarkers extracts the marker of every line, lines without one are skipped.
// A line longer than the scan buffer fails the parse.
func ParseMarkers(text string) ([]time.Time, error) {
	var markers []time.Time
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if t, ok := ParseMarker(scanner.Text()); ok {
			markers = append(markers, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, stacktrace.Propagate(err, "could not read the markers")
	}
	return markers, nil
}

// StartMarker returns the clock part of the "started" record of an artifact,
// e.g. "10:15:03.123456+00:00" for "2024-05-10T10:15:03.123456+00:00 started".
func StartMarker(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ""
	}
	stamp := fields[0]
	if idx := strings.Index(stamp, "T"); idx >= 0 {
		return stamp[idx+1:]
	}
	return stamp
}
