package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFaultWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		start    time.Time
		duration time.Duration
		wantErr  bool
	}{
		{"future start", now.Add(5 * time.Minute), 15 * time.Minute, false},
		{"start equal to issue time", now, 15 * time.Minute, true},
		{"start in the past", now.Add(-time.Minute), 15 * time.Minute, true},
		{"zero duration", now.Add(time.Minute), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFaultWindow(NetworkSplit, "bc", now, tt.start, tt.duration, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start.Add(tt.duration), w.End())
		})
	}
}

func TestObservationWindowContainsBounds(t *testing.T) {
	start := time.Date(2024, 5, 10, 10, 5, 0, 0, time.UTC)
	w := ObservationWindow{Start: start, End: start.Add(20 * time.Minute)}

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(time.Second)))
	assert.False(t, w.Contains(w.Start.Add(-time.Second)))
	assert.Equal(t, 20*time.Minute, w.Duration())
}

func TestOutcomeRecord(t *testing.T) {
	o := NewOutcome("logwriter-rbd-0", NetworkSplit, Pause, true, "gap at 10:07")
	assert.Equal(t, "logwriter-rbd-0", o.Subject())
	assert.Equal(t, NetworkSplit, o.Fault())
	assert.Equal(t, Pause, o.Kind())
	assert.True(t, o.Value())
	assert.False(t, o.Skipped())
	assert.Equal(t, "logwriter-rbd-0 Pause: true (gap at 10:07)", o.String())

	z := o.InZone("data-1")
	assert.Equal(t, "data-1", z.Zone())
	assert.Empty(t, o.Zone())
	assert.Equal(t, "logwriter-rbd-0[data-1] Pause: true (gap at 10:07)", z.String())

	s := SkippedOutcome("logwriter-cephfs-1", NetworkSplit, Pause, "Permission Denied")
	assert.True(t, s.Skipped())
	assert.False(t, s.Value())
}

func TestLogFileMapArtifacts(t *testing.T) {
	m := LogFileMap{"logwriter-rbd-0": {"a.log": "10:00:00", "b.log": "10:01:00"}}
	assert.ElementsMatch(t, []string{"a.log", "b.log"}, m.Artifacts("logwriter-rbd-0"))
	assert.Empty(t, m.Artifacts("missing"))
}
