package environment

import (
	"testing"
	"time"

	experimentTypes "github.com/litmuschaos/stretch-dr-go/pkg/stretch/types"
	"github.com/stretchr/testify/assert"
)

func TestGetENVDefaults(t *testing.T) {
	details := experimentTypes.ExperimentDetails{}
	GetENV(&details)

	assert.Equal(t, "namespace-sc-logwriter", details.Namespace)
	assert.Equal(t, []string{"data-1", "data-2"}, details.DataZones)
	assert.Equal(t, 15*time.Minute, details.ChaosDurationTime())
	assert.Equal(t, 5*time.Minute, details.LeadTime())
	assert.Equal(t, 5*time.Minute, details.Margin())
	assert.Equal(t, 600*time.Second, details.SettleTime())
	assert.Equal(t, 900, details.Timeout)
	assert.Equal(t, 50, details.HealthCheckTries)
	assert.Equal(t, 5, details.PoolWorkers)
	assert.True(t, details.Fencing)
	assert.Len(t, details.RunID, 6)
}

func TestGetENVOverrides(t *testing.T) {
	t.Setenv("NETSPLIT_ZONES", "ab-bc")
	t.Setenv("TOTAL_CHAOS_DURATION", "30")
	t.Setenv("FENCING", "false")
	t.Setenv("DATA_ZONES", "east,west")

	details := experimentTypes.ExperimentDetails{}
	GetENV(&details)

	assert.Equal(t, "ab-bc", details.NetsplitZones)
	assert.Equal(t, 30*time.Minute, details.ChaosDurationTime())
	assert.False(t, details.Fencing)
	assert.Equal(t, []string{"east", "west"}, details.DataZones)
}
