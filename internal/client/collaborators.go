package client

import (
	"context"
	"fmt"
)

// TrafficManagerClient wraps the Traffic Manager's agent-execution API.
type TrafficManagerClient struct{ base *BaseClient }

func NewTrafficManagerClient(base *BaseClient) *TrafficManagerClient {
	return &TrafficManagerClient{base: base}
}

// CreateAgentRequest is the recognized payload for starting a mission.
type CreateAgentRequest struct {
	ActionVerb   string                 `json:"actionVerb"`
	Inputs       map[string]interface{} `json:"inputs"`
	MissionID    string                 `json:"missionId"`
	Dependencies []string               `json:"dependencies"`
}

func (c *TrafficManagerClient) CreateAgent(ctx context.Context, req CreateAgentRequest) error {
	return c.base.Do(ctx, "POST", "/createAgent", req, nil)
}

func (c *TrafficManagerClient) PauseAgents(ctx context.Context, missionID string) error {
	return c.base.Do(ctx, "POST", "/pauseAgents", map[string]string{"missionId": missionID}, nil)
}

func (c *TrafficManagerClient) ResumeAgents(ctx context.Context, missionID string) error {
	return c.base.Do(ctx, "POST", "/resumeAgents", map[string]string{"missionId": missionID}, nil)
}

func (c *TrafficManagerClient) AbortAgents(ctx context.Context, missionID string) error {
	return c.base.Do(ctx, "POST", "/abortAgents", map[string]string{"missionId": missionID}, nil)
}

func (c *TrafficManagerClient) SaveAgents(ctx context.Context, missionID string) error {
	return c.base.Do(ctx, "POST", "/saveAgents", map[string]string{"missionId": missionID}, nil)
}

func (c *TrafficManagerClient) LoadAgents(ctx context.Context, missionID string) error {
	return c.base.Do(ctx, "POST", "/loadAgents", map[string]string{"missionId": missionID}, nil)
}

// AgentStatistics is the raw, untrusted shape Traffic Manager reports back;
// the telemetry aggregator normalizes it defensively before use.
type AgentStatistics struct {
	AgentCountByStatus interface{} `json:"agentCountByStatus"`
	PerAgentStats      interface{} `json:"perAgentStats"`
}

func (c *TrafficManagerClient) GetAgentStatistics(ctx context.Context, missionID string) (*AgentStatistics, error) {
	var out AgentStatistics
	if err := c.base.Do(ctx, "GET", fmt.Sprintf("/getAgentStatistics/%s", missionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Envelope mirrors the common ingress/egress message shape (§4.1 of the
// wire contract): a typed, addressed message with optional correlation.
type Envelope struct {
	Type          string      `json:"type"`
	Sender        string      `json:"sender"`
	Recipient     string      `json:"recipient,omitempty"`
	Content       interface{} `json:"content,omitempty"`
	ClientID      string      `json:"clientId,omitempty"`
	UserID        string      `json:"userId,omitempty"`
	MissionID     string      `json:"missionId,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	ReplyTo       string      `json:"replyTo,omitempty"`
}

func (c *TrafficManagerClient) DistributeUserMessage(ctx context.Context, env Envelope) error {
	return c.base.Do(ctx, "POST", "/distributeUserMessage", env, nil)
}

func (c *TrafficManagerClient) Message(ctx context.Context, env Envelope) error {
	return c.base.Do(ctx, "POST", "/message", env, nil)
}

// LibrarianClient wraps the Librarian's generic persistence API. Mission
// Control never opens a database connection of its own; every read/write
// goes through these typed endpoints.
type LibrarianClient struct{ base *BaseClient }

func NewLibrarianClient(base *BaseClient) *LibrarianClient {
	return &LibrarianClient{base: base}
}

func (c *LibrarianClient) StoreData(ctx context.Context, collection, id string, data interface{}) error {
	body := map[string]interface{}{"collection": collection, "id": id, "data": data}
	return c.base.Do(ctx, "POST", "/storeData", body, nil)
}

func (c *LibrarianClient) LoadData(ctx context.Context, collection, id string, out interface{}) error {
	return c.base.Do(ctx, "GET", fmt.Sprintf("/loadData/%s?collection=%s", id, collection), nil, out)
}

func (c *LibrarianClient) QueryData(ctx context.Context, collection string, query map[string]interface{}, out interface{}) error {
	body := map[string]interface{}{"collection": collection, "query": query}
	return c.base.Do(ctx, "POST", "/queryData", body, out)
}

func (c *LibrarianClient) DeleteCollection(ctx context.Context, collection string) error {
	return c.base.Do(ctx, "POST", "/deleteCollection", map[string]string{"collection": collection}, nil)
}

// BrainClient wraps the Brain LLM counters service.
type BrainClient struct{ base *BaseClient }

func NewBrainClient(base *BaseClient) *BrainClient { return &BrainClient{base: base} }

// LLMCallStats is the raw response from Brain's getLLMCalls.
type LLMCallStats struct {
	LLMCalls       int `json:"llmCalls"`
	ActiveLLMCalls int `json:"activeLLMCalls"`
}

func (c *BrainClient) GetLLMCalls(ctx context.Context, missionID string) (*LLMCallStats, error) {
	var out LLMCallStats
	if err := c.base.Do(ctx, "GET", fmt.Sprintf("/getLLMCalls?missionId=%s", missionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EngineerClient wraps the Engineer plugin counters service.
type EngineerClient struct{ base *BaseClient }

func NewEngineerClient(base *BaseClient) *EngineerClient { return &EngineerClient{base: base} }

func (c *EngineerClient) Statistics(ctx context.Context, missionID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.base.Do(ctx, "GET", fmt.Sprintf("/statistics?missionId=%s", missionID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CapabilitiesManagerClient wraps the plugin-execution service, used here
// solely to invoke the REFLECT capability.
type CapabilitiesManagerClient struct{ base *BaseClient }

func NewCapabilitiesManagerClient(base *BaseClient) *CapabilitiesManagerClient {
	return &CapabilitiesManagerClient{base: base}
}

// ExecuteActionRequest is the recognized payload for invoking a capability.
type ExecuteActionRequest struct {
	ActionVerb string                 `json:"actionVerb"`
	Inputs     map[string]interface{} `json:"inputs"`
}

// ActionResult is the first element of executeAction's result list: either
// a new plan or a terminal answer.
type ActionResult struct {
	Name   string      `json:"name"`
	Result interface{} `json:"result"`
}

func (c *CapabilitiesManagerClient) ExecuteAction(ctx context.Context, req ExecuteActionRequest) ([]ActionResult, error) {
	var out []ActionResult
	if err := c.base.Do(ctx, "POST", "/executeAction", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostOfficeClient wraps the outbound message relay to connected clients.
type PostOfficeClient struct{ base *BaseClient }

func NewPostOfficeClient(base *BaseClient) *PostOfficeClient {
	return &PostOfficeClient{base: base}
}

func (c *PostOfficeClient) Message(ctx context.Context, env Envelope) error {
	return c.base.Do(ctx, "POST", "/message", env, nil)
}
