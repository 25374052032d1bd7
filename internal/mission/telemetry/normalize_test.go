package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAgentCountByStatusPlainObject(t *testing.T) {
	raw := map[string]interface{}{"RUNNING": float64(2), "DONE": float64(1)}
	out := normalizeAgentCountByStatus(raw)
	assert.Equal(t, 2, out["RUNNING"])
	assert.Equal(t, 1, out["DONE"])
}

func TestNormalizeAgentCountByStatusMapMarker(t *testing.T) {
	raw := map[string]interface{}{
		"_type": "Map",
		"entries": []interface{}{
			[]interface{}{"RUNNING", float64(3)},
			[]interface{}{"ERROR", float64(0)},
		},
	}
	out := normalizeAgentCountByStatus(raw)
	assert.Equal(t, 3, out["RUNNING"])
	assert.Equal(t, 0, out["ERROR"])
}

func TestNormalizePerAgentStatsStepsAsMappingIsReconstructed(t *testing.T) {
	var warnings []string
	warn := func(msg string) { warnings = append(warnings, msg) }

	raw := map[string]interface{}{
		"RUNNING": []interface{}{
			map[string]interface{}{
				"agentId": "a1",
				"color":   "blue",
				"steps": map[string]interface{}{
					"0": map[string]interface{}{"id": "s1"},
				},
			},
		},
	}

	out := normalizePerAgentStats(raw, warn)
	require.Contains(t, out, "RUNNING")
	require.Len(t, out["RUNNING"], 1)
	require.Len(t, out["RUNNING"][0].Steps, 1)
	assert.Equal(t, "s1", out["RUNNING"][0].Steps[0].ID)
	assert.NotEmpty(t, warnings)
}

func TestNormalizePerAgentStatsMissingStepsYieldsEmptySequence(t *testing.T) {
	raw := map[string]interface{}{
		"RUNNING": []interface{}{
			map[string]interface{}{"agentId": "a1", "color": "blue"},
		},
	}
	out := normalizePerAgentStats(raw, func(string) {})
	require.Len(t, out["RUNNING"], 1)
	assert.Empty(t, out["RUNNING"][0].Steps)
}

func TestNormalizePerAgentStatsStepsAsSequencePassThrough(t *testing.T) {
	raw := map[string]interface{}{
		"RUNNING": []interface{}{
			map[string]interface{}{
				"agentId": "a1",
				"steps": []interface{}{
					map[string]interface{}{"id": "s1", "actionVerb": "THINK"},
				},
			},
		},
	}
	out := normalizePerAgentStats(raw, func(string) {})
	require.Len(t, out["RUNNING"][0].Steps, 1)
	assert.Equal(t, "THINK", out["RUNNING"][0].Steps[0].ActionVerb)
}

func TestNormalizePerAgentStatsStepWithoutStatusLeavesStatusEmpty(t *testing.T) {
	raw := map[string]interface{}{
		"RUNNING": []interface{}{
			map[string]interface{}{
				"agentId": "a1",
				"steps": []interface{}{
					map[string]interface{}{"id": "s1", "actionVerb": "THINK"},
				},
			},
		},
	}
	out := normalizePerAgentStats(raw, func(string) {})
	require.Len(t, out["RUNNING"][0].Steps, 1)
	assert.Empty(t, out["RUNNING"][0].Steps[0].Status)
	assert.Equal(t, "THINK", out["RUNNING"][0].Steps[0].ActionVerb)
}
