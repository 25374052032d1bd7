package telemetry

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

// normalizeAgentCountByStatus restores a possibly-serialized status->count
// mapping. The Traffic Manager may send it as a native JSON object, or as
// a marked-up {"_type":"Map","entries":[[key,value],...]} form; either
// shape is accepted, anything else yields an empty mapping.
func normalizeAgentCountByStatus(raw interface{}) map[string]int {
	out := make(map[string]int)
	if raw == nil {
		return out
	}

	if entries, ok := extractMapEntries(raw); ok {
		for _, entry := range entries {
			pair, ok := entry.([]interface{})
			if !ok || len(pair) != 2 {
				continue
			}
			key, _ := pair[0].(string)
			out[key] = toInt(pair[1])
		}
		return out
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range obj {
		if k == "_type" || k == "entries" {
			continue
		}
		out[k] = toInt(v)
	}
	return out
}

// normalizePerAgentStats restores the status -> []AgentStat mapping,
// applying the same _type="Map" unwrap and, per agent, rebuilding a
// step sequence from either a native array or an index-keyed object.
func normalizePerAgentStats(raw interface{}, warn func(string)) map[string][]model.AgentStat {
	out := make(map[string][]model.AgentStat)
	if raw == nil {
		return out
	}

	obj, ok := rawAsObject(raw)
	if !ok {
		return out
	}

	for status, agentsRaw := range obj {
		agentsList, ok := agentsRaw.([]interface{})
		if !ok {
			continue
		}
		var stats []model.AgentStat
		for _, a := range agentsList {
			agentObj, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			stats = append(stats, normalizeAgentStat(agentObj, warn))
		}
		out[status] = stats
	}
	return out
}

func normalizeAgentStat(obj map[string]interface{}, warn func(string)) model.AgentStat {
	agentID, _ := obj["agentId"].(string)
	color, _ := obj["color"].(string)

	stat := model.AgentStat{AgentID: agentID, Color: color, Steps: []model.Step{}}

	stepsRaw, present := obj["steps"]
	if !present || stepsRaw == nil {
		return stat
	}

	switch v := stepsRaw.(type) {
	case []interface{}:
		stat.Steps = decodeSteps(v)
	case map[string]interface{}:
		warn("reconstructing step sequence from index-keyed mapping for agent " + agentID)
		stat.Steps = decodeSteps(orderedValues(v))
	default:
		// neither sequence nor mapping: leave the empty sequence in place.
	}
	return stat
}

// orderedValues rebuilds an ordered slice from a map keyed by numeric-
// looking string indices, sorted by key so the reconstruction is
// deterministic across runs.
func orderedValues(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		if errI == nil && errJ == nil && ni != nj {
			return ni < nj
		}
		if (errI == nil) != (errJ == nil) {
			return errI == nil
		}
		return keys[i] < keys[j]
	})
	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func decodeSteps(items []interface{}) []model.Step {
	steps := make([]model.Step, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		steps = append(steps, decodeStep(obj))
	}
	return steps
}

func decodeStep(obj map[string]interface{}) model.Step {
	s := model.Step{
		ID:     stringField(obj, "id"),
		Status: stringField(obj, "status"),
		Result: obj["result"],
	}
	s.ActionVerb = stringField(obj, "actionVerb")
	if s.ActionVerb == "" {
		s.ActionVerb = stringField(obj, "verb")
	}
	if deps, ok := obj["dependencies"].([]interface{}); ok {
		for _, d := range deps {
			if str, ok := d.(string); ok {
				s.Dependencies = append(s.Dependencies, str)
			}
		}
	}
	if inputs, ok := obj["inputReferences"].(map[string]interface{}); ok {
		s.Inputs = inputs
	}
	return s
}

func stringField(obj map[string]interface{}, key string) string {
	v, _ := obj[key].(string)
	return v
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

// extractMapEntries recognizes the {"_type":"Map","entries":[...]} marker
// form and returns its entries slice.
func extractMapEntries(raw interface{}) ([]interface{}, bool) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if t, _ := obj["_type"].(string); t != "Map" {
		return nil, false
	}
	entries, ok := obj["entries"].([]interface{})
	return entries, ok
}

// rawAsObject unwraps the _type="Map" marker into a native object keyed by
// its original string keys, or passes a plain object through unchanged.
func rawAsObject(raw interface{}) (map[string]interface{}, bool) {
	if entries, ok := extractMapEntries(raw); ok {
		out := make(map[string]interface{}, len(entries))
		for _, entry := range entries {
			pair, ok := entry.([]interface{})
			if !ok || len(pair) != 2 {
				continue
			}
			key, _ := pair[0].(string)
			out[key] = pair[1]
		}
		return out, true
	}
	obj, ok := raw.(map[string]interface{})
	return obj, ok
}
