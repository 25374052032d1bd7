// Package lifecycle implements the mission state machine: the command
// handlers that create, pause, resume, abort, save, load, list, and
// otherwise mutate a mission, each one calling out to the Traffic Manager
// and the Librarian and then emitting a status update to subscribers.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/humaninput"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
)

const missionsCollection = "missions"
const actionPlansCollection = "actionPlans"

// Engine is the mission lifecycle command handler set. Apart from the
// telemetry aggregator, which moves a quiescent mission into Reflecting
// directly through the registry, it is the only component that mutates
// missions (the reflection coordinator changes status only through
// ApplyReflectionOutcome).
type Engine struct {
	reg        *registry.Registry
	inputs     *humaninput.Router
	tm         *client.TrafficManagerClient
	librarian  *client.LibrarianClient
	postOffice *client.PostOfficeClient
	log        *logger.Logger
}

// New builds an Engine wired to its collaborators.
func New(reg *registry.Registry, inputs *humaninput.Router, tm *client.TrafficManagerClient, librarian *client.LibrarianClient, postOffice *client.PostOfficeClient, log *logger.Logger) *Engine {
	return &Engine{reg: reg, inputs: inputs, tm: tm, librarian: librarian, postOffice: postOffice, log: log}
}

// CreateContent is the recognized body of a CREATE_MISSION command.
type CreateContent struct {
	Goal           string `json:"goal"`
	Name           string `json:"name"`
	MissionContext string `json:"missionContext"`
}

// Create allocates a new mission, starts it on the Traffic Manager, and
// returns the mission once its initial transition has settled.
func (e *Engine) Create(ctx context.Context, content CreateContent, clientID, userID string) (*model.Mission, error) {
	if content.Goal == "" {
		return nil, errors.ValidationError("goal", "must not be empty")
	}

	if err := e.librarian.DeleteCollection(ctx, actionPlansCollection); err != nil {
		e.log.Warn("failed to clear action plan cache on mission create", zap.Error(err))
	}

	now := time.Now().UTC()
	name := content.Name
	if name == "" {
		name = defaultMissionName(now)
	}

	m := &model.Mission{
		ID:             uuid.New().String(),
		UserID:         userID,
		Name:           name,
		Goal:           content.Goal,
		MissionContext: content.MissionContext,
		Status:         model.StatusInitializing,
		CreatedAt:      now,
		UpdatedAt:      now,
		AttachedFiles:  []model.FileRef{},
	}
	e.reg.Insert(m)
	e.reg.Subscribe(clientID, m.ID)

	if err := e.persist(ctx, m); err != nil {
		e.log.Warn("failed to persist newly created mission", zap.Error(err))
	}

	inputs := map[string]interface{}{"goal": m.Goal}
	if m.MissionContext != "" {
		inputs["missionContext"] = m.MissionContext
	}
	createErr := e.tm.CreateAgent(ctx, client.CreateAgentRequest{
		ActionVerb:   "ACCOMPLISH",
		Inputs:       inputs,
		MissionID:    m.ID,
		Dependencies: []string{},
	})

	if createErr != nil {
		updated, _ := e.transition(m.ID, model.StatusError)
		e.emitStatus(ctx, m.ID, model.StatusError, fmt.Sprintf("failed to start mission: %v", createErr))
		if updated != nil {
			return updated, createErr
		}
		return m, createErr
	}

	updated, err := e.transition(m.ID, model.StatusRunning)
	if err != nil {
		return nil, err
	}
	e.emitStatus(ctx, m.ID, model.StatusRunning, "mission started")
	return updated, nil
}

// Pause moves a Running mission to Paused.
func (e *Engine) Pause(ctx context.Context, missionID string) (*model.Mission, error) {
	m, err := e.reg.Get(missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.StatusRunning {
		return nil, errors.ValidationError("status", "Pause is only valid from Running")
	}
	if err := e.tm.PauseAgents(ctx, missionID); err != nil {
		return nil, err
	}
	updated, err := e.transition(missionID, model.StatusPaused)
	if err != nil {
		return nil, err
	}
	e.emitStatus(ctx, missionID, model.StatusPaused, "mission paused")
	return updated, nil
}

// Resume moves a Paused mission back to Running.
func (e *Engine) Resume(ctx context.Context, missionID string) (*model.Mission, error) {
	m, err := e.reg.Get(missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.StatusPaused {
		return nil, errors.ValidationError("status", "Resume is only valid from Paused")
	}
	if err := e.tm.ResumeAgents(ctx, missionID); err != nil {
		return nil, err
	}
	updated, err := e.transition(missionID, model.StatusRunning)
	if err != nil {
		return nil, err
	}
	e.emitStatus(ctx, missionID, model.StatusRunning, "mission resumed")
	return updated, nil
}

// Abort tears a mission down: removes it from memory and from every
// client's subscription set, after emitting the Aborted status once.
func (e *Engine) Abort(ctx context.Context, missionID string) error {
	if _, err := e.reg.Get(missionID); err != nil {
		return err
	}
	if err := e.tm.AbortAgents(ctx, missionID); err != nil {
		e.log.Warn("abortAgents call failed, aborting locally regardless", zap.Error(err))
	}
	e.emitStatus(ctx, missionID, model.StatusAborted, "mission aborted")
	e.reg.Remove(missionID)
	e.inputs.CancelForMission(missionID)
	return nil
}

// Save persists the mission's current state, optionally renaming it first.
// Idempotent: calling it twice in a row yields the same persisted document.
func (e *Engine) Save(ctx context.Context, missionID string, missionName string) (*model.Mission, error) {
	updated, err := e.reg.Mutate(missionID, func(m *model.Mission) error {
		if missionName != "" && missionName != m.Name {
			m.Name = missionName
			m.UpdatedAt = time.Now().UTC()
		} else if m.Name == "" {
			m.Name = defaultMissionName(time.Now().UTC())
			m.UpdatedAt = time.Now().UTC()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, updated); err != nil {
		return nil, err
	}
	if err := e.tm.SaveAgents(ctx, missionID); err != nil {
		e.log.Warn("saveAgents call failed", zap.Error(err))
	}
	e.emitStatus(ctx, missionID, updated.Status, "mission saved")
	return updated, nil
}

// Load restores a persisted mission into memory, enforcing ownership.
func (e *Engine) Load(ctx context.Context, missionID, clientID, userID string) (*model.Mission, error) {
	var m model.Mission
	if err := e.librarian.LoadData(ctx, missionsCollection, missionID, &m); err != nil {
		return nil, errors.NotFound("mission", missionID)
	}
	if m.UserID != userID {
		return nil, errors.AccessDenied("mission belongs to a different user")
	}

	e.reg.Insert(&m)
	if err := e.tm.LoadAgents(ctx, missionID); err != nil {
		e.log.Warn("loadAgents call failed", zap.Error(err))
	}
	e.reg.Subscribe(clientID, missionID)
	e.emitStatus(ctx, missionID, m.Status, "mission loaded")
	return e.reg.Get(missionID)
}

// List returns the union of in-memory and persisted missions owned by
// userID, de-duplicated by id with the in-memory copy winning.
func (e *Engine) List(ctx context.Context, userID string) []model.Summary {
	inMemory := e.reg.ListByUser(userID)
	seen := make(map[string]bool, len(inMemory))
	for _, s := range inMemory {
		seen[s.ID] = true
	}

	var persisted []model.Mission
	query := map[string]interface{}{"userId": userID}
	if err := e.librarian.QueryData(ctx, missionsCollection, query, &persisted); err != nil {
		e.log.Warn("storage query failed during List, returning in-memory projection only", zap.Error(err))
		return inMemory
	}

	out := inMemory
	for _, m := range persisted {
		if seen[m.ID] {
			continue
		}
		out = append(out, m.ToSummary())
	}
	return out
}

// HandleUserMessageContent is the recognized body of a USER_MESSAGE command.
type HandleUserMessageContent struct {
	Message string `json:"message"`
}

// HandleUserMessage forwards a user's chat message to every agent working
// the mission.
func (e *Engine) HandleUserMessage(ctx context.Context, missionID, clientID, message string) error {
	updated, err := e.reg.Mutate(missionID, func(m *model.Mission) error {
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}

	env := client.Envelope{
		Type:      "USER_MESSAGE",
		Sender:    "user",
		Recipient: "agents",
		Content:   map[string]string{"missionId": missionID, "message": message},
		ClientID:  clientID,
	}
	if err := e.tm.DistributeUserMessage(ctx, env); err != nil {
		return err
	}
	e.emitStatus(ctx, missionID, updated.Status, "message delivered")
	return nil
}

// AddAttachedFile appends a file reference. Re-adding an id already
// present is a no-op on the collection.
func (e *Engine) AddAttachedFile(ctx context.Context, missionID string, f model.FileRef) (*model.Mission, error) {
	updated, err := e.reg.Mutate(missionID, func(m *model.Mission) error {
		for _, existing := range m.AttachedFiles {
			if existing.ID == f.ID {
				return nil
			}
		}
		m.AttachedFiles = append(m.AttachedFiles, f)
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, updated); err != nil {
		e.log.Warn("failed to persist mission after file add", zap.Error(err))
	}
	e.emitStatus(ctx, missionID, updated.Status, "file attached")
	return updated, nil
}

// RemoveAttachedFile removes a file reference by id. Unknown ids are
// ignored rather than erroring.
func (e *Engine) RemoveAttachedFile(ctx context.Context, missionID, fileID string) (*model.Mission, error) {
	updated, err := e.reg.Mutate(missionID, func(m *model.Mission) error {
		for i, f := range m.AttachedFiles {
			if f.ID == fileID {
				m.AttachedFiles = append(m.AttachedFiles[:i], m.AttachedFiles[i+1:]...)
				break
			}
		}
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, updated); err != nil {
		e.log.Warn("failed to persist mission after file remove", zap.Error(err))
	}
	e.emitStatus(ctx, missionID, updated.Status, "file removed")
	return updated, nil
}

// ApplyReflectionOutcome applies the reflection coordinator's decided exit
// transition (Reflecting -> Running/Completed/Error) and emits status. It
// is the sole mutation point the reflection coordinator is allowed to
// drive; the entry into Reflecting is written by the telemetry aggregator.
func (e *Engine) ApplyReflectionOutcome(ctx context.Context, missionID string, next model.Status, message string) error {
	updated, err := e.transition(missionID, next)
	if err != nil {
		return err
	}
	e.emitStatus(ctx, missionID, next, message)
	return nil
}

// transition applies a legal status change under the registry lock and
// stamps updatedAt. Returns ValidationError if the edge is not permitted.
func (e *Engine) transition(missionID string, next model.Status) (*model.Mission, error) {
	return e.reg.Mutate(missionID, func(m *model.Mission) error {
		if !model.IsValidTransition(m.Status, next) {
			return errors.ValidationError("status", fmt.Sprintf("cannot transition from %s to %s", m.Status, next))
		}
		m.Status = next
		m.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// persist writes the current mission state to the Librarian.
func (e *Engine) persist(ctx context.Context, m *model.Mission) error {
	return e.librarian.StoreData(ctx, missionsCollection, m.ID, m)
}

// emitStatus publishes a STATUS_UPDATE to every client subscribed to
// missionID. Publish failures are logged, never propagated to the caller.
func (e *Engine) emitStatus(ctx context.Context, missionID string, status model.Status, message string) {
	for _, clientID := range e.reg.ClientsFor(missionID) {
		env := client.Envelope{
			Type:      "STATUS_UPDATE",
			Sender:    "missioncontrol",
			ClientID:  clientID,
			MissionID: missionID,
			Content:   map[string]string{"status": string(status), "message": message},
		}
		if err := e.postOffice.Message(ctx, env); err != nil {
			e.log.Warn("failed to publish status update", zap.Error(err))
		}
	}
}

// defaultMissionName builds the "Mission <ISO timestamp>" fallback name,
// with colons replaced by hyphens so it is safe to use as a file name.
func defaultMissionName(t time.Time) string {
	iso := t.Format(time.RFC3339)
	return "Mission " + strings.ReplaceAll(iso, ":", "-")
}
