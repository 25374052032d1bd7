// Package model holds the value types Mission Control owns in memory:
// missions, attached files, client subscriptions, pending human inputs,
// and the ephemeral telemetry samples produced each tick.
package model

import "time"

// Status is a mission's position in the lifecycle state machine.
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusRunning       Status = "Running"
	StatusPaused        Status = "Paused"
	StatusAborted       Status = "Aborted"
	StatusCompleted     Status = "Completed"
	StatusError         Status = "Error"
	StatusReflecting    Status = "Reflecting"
)

// validTransitions enumerates every legal status -> status edge.
// Self-transitions are not listed here; operations that are idempotent
// (Save, AddAttachedFile) do not go through transition() at all.
var validTransitions = map[Status]map[Status]bool{
	StatusInitializing: {StatusRunning: true, StatusError: true},
	StatusRunning:       {StatusPaused: true, StatusAborted: true, StatusReflecting: true},
	StatusPaused:        {StatusRunning: true, StatusAborted: true},
	StatusCompleted:     {StatusAborted: true, StatusReflecting: true},
	StatusError:         {StatusAborted: true, StatusReflecting: true},
	StatusReflecting:    {StatusRunning: true, StatusCompleted: true, StatusError: true},
	StatusAborted:       {},
}

// IsValidTransition reports whether moving from s to next is permitted by
// the lifecycle state machine.
func IsValidTransition(s, next Status) bool {
	edges, ok := validTransitions[s]
	if !ok {
		return false
	}
	return edges[next]
}

// IsTerminal reports whether a mission in this status can ever transition
// again. Aborted is terminal; Completed is not, since it can still be
// revisited via Reflecting (though not in-memory once aborted).
func (s Status) IsTerminal() bool {
	return s == StatusAborted
}

// FileRef describes a file attached to a mission.
type FileRef struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"originalName"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimeType"`
	UploadedAt    time.Time `json:"uploadedAt"`
	UploadedBy    string    `json:"uploadedBy"`
	Description   string    `json:"description,omitempty"`
	IsDeliverable bool      `json:"isDeliverable,omitempty"`
	StepID        string    `json:"stepId,omitempty"`
}

// Mission is the central entity Mission Control owns.
type Mission struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	Goal           string    `json:"goal"`
	MissionContext string    `json:"missionContext,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	AttachedFiles  []FileRef `json:"attachedFiles"`
}

// Summary is the projection List(userId) returns.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Goal      string    `json:"goal"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToSummary projects a Mission to its List representation.
func (m *Mission) ToSummary() Summary {
	return Summary{
		ID:        m.ID,
		Name:      m.Name,
		Status:    m.Status,
		Goal:      m.Goal,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Clone returns a deep copy safe to hand to a caller outside the registry lock.
func (m *Mission) Clone() *Mission {
	if m == nil {
		return nil
	}
	cp := *m
	cp.AttachedFiles = append([]FileRef(nil), m.AttachedFiles...)
	return &cp
}

// PendingInput is a correlation record between a suspended step and the
// human answer it is waiting on.
type PendingInput struct {
	RequestID string `json:"requestId"`
	MissionID string `json:"missionId"`
	StepID    string `json:"stepId"`
	AgentID   string `json:"agentId"`
}
