// Package reflection detects mission quiescence (delegated to the
// telemetry aggregator, which calls Trigger) and invokes the Capabilities
// Manager's REFLECT capability to decide whether a mission is complete or
// needs a new plan.
package reflection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
)

// reflectQuestion is the fixed question posed to REFLECT on every invocation.
const reflectQuestion = "Given the original mission goal and the work completed, is the mission fully accomplished? If not, what is the next logical step?"

// StatusEmitter is the subset of lifecycle.Engine's behavior the
// coordinator needs: applying a legal transition and telling subscribers
// about it. Defined narrowly here to avoid importing the lifecycle
// package's full command surface into reflection.
type StatusEmitter interface {
	ApplyReflectionOutcome(ctx context.Context, missionID string, next model.Status, message string) error
}

// Coordinator runs the REFLECT round for a quiescent mission.
type Coordinator struct {
	reg      *registry.Registry
	cm       *client.CapabilitiesManagerClient
	emitter  StatusEmitter
	log      *logger.Logger
}

// New builds a Coordinator.
func New(reg *registry.Registry, cm *client.CapabilitiesManagerClient, emitter StatusEmitter, log *logger.Logger) *Coordinator {
	return &Coordinator{reg: reg, cm: cm, emitter: emitter, log: log}
}

// planHistoryEntry is one agent step rendered for the REFLECT prompt.
type planHistoryEntry struct {
	StepNumber  int                    `json:"stepNumber"`
	ActionVerb  string                 `json:"actionVerb"`
	Description string                 `json:"description"`
	Inputs      map[string]interface{} `json:"inputs"`
	Outputs     map[string]interface{} `json:"outputs"`
}

// Trigger assembles the plan-history view from the latest sample and
// invokes REFLECT. The mission is expected to already be in Reflecting
// status (set by the caller, e.g. the telemetry aggregator) before Trigger
// runs; this method only handles the REFLECT call and the exit transition.
func (c *Coordinator) Trigger(ctx context.Context, missionID string, sample *model.TelemetrySample) {
	m, err := c.reg.Get(missionID)
	if err != nil {
		c.log.Warn("reflection triggered for unknown mission", zap.String("mission_id", missionID), zap.Error(err))
		return
	}

	if m.Status != model.StatusReflecting {
		// The Reflecting status itself is the re-entrancy guard: a mission
		// not already in Reflecting was not legitimately handed to us.
		c.log.Debug("ignoring reflection trigger for mission not in Reflecting status",
			zap.String("mission_id", missionID), zap.String("status", string(m.Status)))
		return
	}

	planHistory := buildPlanHistory(sample)
	workProducts := fmt.Sprintf("Mission Goal: %s. Current Status: %s.", m.Goal, m.Status)

	results, err := c.cm.ExecuteAction(ctx, client.ExecuteActionRequest{
		ActionVerb: "REFLECT",
		Inputs: map[string]interface{}{
			"missionId":    missionID,
			"plan_history": planHistory,
			"work_products": workProducts,
			"question":     reflectQuestion,
		},
	})
	if err != nil {
		c.log.Error("reflection invocation failed", zap.String("mission_id", missionID), zap.Error(err))
		_ = c.emitter.ApplyReflectionOutcome(ctx, missionID, model.StatusError, "Reflection process failed.")
		return
	}
	if len(results) == 0 {
		c.log.Error("reflection invocation returned no results", zap.String("mission_id", missionID))
		_ = c.emitter.ApplyReflectionOutcome(ctx, missionID, model.StatusError, "Reflection process failed.")
		return
	}

	first := results[0]
	switch first.Name {
	case "plan":
		// Appending the plan to execution is the Traffic Manager's
		// contract; Mission Control only performs the state transition.
		_ = c.emitter.ApplyReflectionOutcome(ctx, missionID, model.StatusRunning, "a new plan was generated")
	case "answer":
		answer := fmt.Sprintf("%v", first.Result)
		_ = c.emitter.ApplyReflectionOutcome(ctx, missionID, model.StatusCompleted, answer)
	default:
		c.log.Warn("unrecognized reflection result name", zap.String("mission_id", missionID), zap.String("name", first.Name))
		_ = c.emitter.ApplyReflectionOutcome(ctx, missionID, model.StatusError, "Reflection process failed.")
	}
}

func buildPlanHistory(sample *model.TelemetrySample) []planHistoryEntry {
	if sample == nil {
		return nil
	}
	var history []planHistoryEntry
	n := 0
	for _, agents := range sample.PerAgentStats {
		for _, agent := range agents {
			for _, step := range agent.Steps {
				n++
				history = append(history, planHistoryEntry{
					StepNumber:  n,
					ActionVerb:  step.ActionVerb,
					Description: step.ActionVerb,
					Inputs:      step.Inputs,
					Outputs:     map[string]interface{}{"result": step.Result},
				})
			}
		}
	}
	return history
}
