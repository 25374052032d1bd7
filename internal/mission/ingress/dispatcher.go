// Package ingress implements the common dispatcher that accepts the same
// message envelope from two sources -- an HTTP POST and a broker queue --
// and normalizes it into a lifecycle or telemetry call through a
// declarative command table, the way the rest of this codebase dispatches
// on a tagged message type rather than a type switch.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/events/bus"
	"github.com/cpravetz/stage7-sub007/internal/mission/humaninput"
	"github.com/cpravetz/stage7-sub007/internal/mission/lifecycle"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

// CommandType tags the recognized ingress commands.
type CommandType string

const (
	CmdCreateMission  CommandType = "CREATE_MISSION"
	CmdPause          CommandType = "PAUSE"
	CmdResume         CommandType = "RESUME"
	CmdAbort          CommandType = "ABORT"
	CmdSave           CommandType = "SAVE"
	CmdLoad           CommandType = "LOAD"
	CmdListMissions   CommandType = "LIST_MISSIONS"
	CmdUserMessage    CommandType = "USER_MESSAGE"
	CmdUserInputReq   CommandType = "USER_INPUT_REQUEST"
	CmdUserInputReply CommandType = "USER_INPUT_RESPONSE"
)

// handlerFunc executes one command, given the authenticated/derived
// identity and the raw envelope, and returns the handler's result value.
type handlerFunc func(ctx context.Context, env client.Envelope, userID string) (interface{}, error)

// Dispatcher normalizes HTTP and queue ingress into lifecycle/telemetry calls.
type Dispatcher struct {
	engine *lifecycle.Engine
	inputs *humaninput.Router
	tm     *client.TrafficManagerClient
	log    *logger.Logger
	table  map[CommandType]handlerFunc
}

// New builds a Dispatcher and its command table.
func New(engine *lifecycle.Engine, inputs *humaninput.Router, tm *client.TrafficManagerClient, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{engine: engine, inputs: inputs, tm: tm, log: log}
	d.table = map[CommandType]handlerFunc{
		CmdCreateMission:  d.handleCreate,
		CmdPause:          d.handlePause,
		CmdResume:         d.handleResume,
		CmdAbort:          d.handleAbort,
		CmdSave:           d.handleSave,
		CmdLoad:           d.handleLoad,
		CmdListMissions:   d.handleList,
		CmdUserMessage:    d.handleUserMessage,
		CmdUserInputReq:   d.handleUserInputRequest,
		CmdUserInputReply: d.handleUserInputResponse,
	}
	return d
}

// Dispatch routes env to the handler for its type, or to the base handler
// if the type is unrecognized. userID is already resolved by the caller:
// from the verified bearer token for HTTP, from the envelope for queue
// ingress.
func (d *Dispatcher) Dispatch(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	handler, ok := d.table[CommandType(env.Type)]
	if !ok {
		return d.handleBase(ctx, env, userID)
	}
	result, err := handler(ctx, env, userID)
	if err != nil {
		d.log.Warn("ingress command failed", zap.String("type", env.Type), zap.Error(err))
	}
	return result, err
}

// handleBase forwards an unrecognized type unchanged to the Traffic
// Manager's /message endpoint for routing elsewhere, rather than treating
// it as an error. It is not republished on the event bus.
func (d *Dispatcher) handleBase(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	return nil, d.tm.Message(ctx, env)
}

func decodeContent(env client.Envelope, out interface{}) error {
	data, err := json.Marshal(env.Content)
	if err != nil {
		return errors.ValidationError("content", "malformed command content")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.ValidationError("content", "malformed command content")
	}
	return nil
}

func (d *Dispatcher) handleCreate(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	var content lifecycle.CreateContent
	if err := decodeContent(env, &content); err != nil {
		return nil, err
	}
	m, err := d.engine.Create(ctx, content, env.ClientID, userID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"missionId": m.ID, "status": m.Status}, nil
}

func (d *Dispatcher) handlePause(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	return d.engine.Pause(ctx, env.MissionID)
}

func (d *Dispatcher) handleResume(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	return d.engine.Resume(ctx, env.MissionID)
}

func (d *Dispatcher) handleAbort(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	return nil, d.engine.Abort(ctx, env.MissionID)
}

func (d *Dispatcher) handleSave(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	var content struct {
		MissionName string `json:"missionName"`
	}
	_ = decodeContent(env, &content)
	return d.engine.Save(ctx, env.MissionID, content.MissionName)
}

func (d *Dispatcher) handleLoad(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	return d.engine.Load(ctx, env.MissionID, env.ClientID, userID)
}

func (d *Dispatcher) handleList(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	return d.engine.List(ctx, userID), nil
}

func (d *Dispatcher) handleUserMessage(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	var content lifecycle.HandleUserMessageContent
	if err := decodeContent(env, &content); err != nil {
		return nil, err
	}
	return nil, d.engine.HandleUserMessage(ctx, env.MissionID, env.ClientID, content.Message)
}

// UserInputRequestContent is the recognized body of a USER_INPUT_REQUEST
// command, declared by a step (via the Traffic Manager) that needs a
// human-provided answer before it can continue.
type UserInputRequestContent struct {
	RequestID string `json:"requestId"`
	StepID    string `json:"stepId"`
	AgentID   string `json:"agentId"`
}

func (d *Dispatcher) handleUserInputRequest(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	if env.MissionID == "" {
		return nil, errors.ValidationError("missionId", "required")
	}
	var content UserInputRequestContent
	if err := decodeContent(env, &content); err != nil {
		return nil, err
	}
	if content.RequestID == "" {
		return nil, errors.ValidationError("requestId", "required")
	}
	d.inputs.Register(model.PendingInput{
		RequestID: content.RequestID,
		MissionID: env.MissionID,
		StepID:    content.StepID,
		AgentID:   content.AgentID,
	})
	return map[string]interface{}{"requestId": content.RequestID, "registered": true}, nil
}

// UserInputResponseContent is the recognized body of a
// USER_INPUT_RESPONSE command.
type UserInputResponseContent struct {
	RequestID string `json:"requestId"`
	Response  string `json:"response"`
}

func (d *Dispatcher) handleUserInputResponse(ctx context.Context, env client.Envelope, userID string) (interface{}, error) {
	var content UserInputResponseContent
	if err := decodeContent(env, &content); err != nil {
		return nil, err
	}
	return nil, RespondToPendingInput(ctx, d.inputs, d.tm, d.log, content.RequestID, content.Response)
}

// RespondToPendingInput looks up requestID in the pending table, forwards
// the response to the owning agent, and removes the pending entry
// regardless of whether the forward succeeded -- the user should not
// re-submit to a stale request. A NotFound error (no such pending request)
// is the only failure mode propagated to the caller.
func RespondToPendingInput(ctx context.Context, inputs *humaninput.Router, tm *client.TrafficManagerClient, log *logger.Logger, requestID, response string) error {
	pending, err := inputs.Take(requestID)
	if err != nil {
		return err
	}

	env := client.Envelope{
		Type:      "USER_INPUT_RESPONSE",
		Sender:    "missioncontrol",
		Recipient: pending.AgentID,
		MissionID: pending.MissionID,
		Content: map[string]string{
			"missionId": pending.MissionID,
			"stepId":    pending.StepID,
			"agentId":   pending.AgentID,
			"response":  response,
		},
	}
	if err := tm.Message(ctx, env); err != nil {
		log.Warn("failed to forward user input response to traffic manager", zap.Error(err))
	}
	return nil
}

// SubscribeQueue registers the dispatcher as a queue-group consumer on the
// ingress subject, replying on correlation when the sender asked for one.
func (d *Dispatcher) SubscribeQueue(b bus.EventBus, subject, queue string) (bus.Subscription, error) {
	return b.QueueSubscribe(subject, queue, func(ctx context.Context, e *bus.Event) error {
		var env client.Envelope
		if err := remarshal(e.Data, &env); err != nil {
			d.log.Warn("dropping malformed queue envelope", zap.Error(err))
			return nil
		}

		userID := env.UserID
		if userID == "" {
			userID = "system"
		}

		result, err := d.Dispatch(ctx, env, userID)

		if env.ReplyTo == "" || env.CorrelationID == "" {
			return nil
		}

		reply := bus.NewEvent("reply", "missioncontrol", nil)
		if err != nil {
			reply.Data = map[string]interface{}{
				"type":          "ERROR",
				"correlationId": env.CorrelationID,
				"message":       err.Error(),
			}
		} else {
			reply.Data = map[string]interface{}{
				"type":          "RESPONSE",
				"correlationId": env.CorrelationID,
				"result":        result,
			}
		}
		return b.Publish(ctx, env.ReplyTo, reply)
	})
}

// remarshal round-trips an untyped map through JSON into a typed struct,
// swallowing shape mismatches as a decode error rather than a panic.
func remarshal(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return json.Unmarshal(data, out)
}
