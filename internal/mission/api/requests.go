package api

import "time"

// agentStatisticsUpdateRequest is the body of POST /agentStatisticsUpdate.
// statistics is forwarded opaquely; only missionId is validated here, the
// actual numbers are re-fetched from the Traffic Manager on the push.
type agentStatisticsUpdateRequest struct {
	AgentID    string      `json:"agentId"`
	MissionID  string      `json:"missionId" binding:"required"`
	Statistics interface{} `json:"statistics"`
	Timestamp  time.Time   `json:"timestamp"`
}

// userInputResponseRequest is the body of POST /userInputResponse.
type userInputResponseRequest struct {
	RequestID string `json:"requestId" binding:"required"`
	Response  string `json:"response"`
}

// removeFileRequest is the body of POST /missions/{missionId}/files/remove.
type removeFileRequest struct {
	FileID string `json:"fileId" binding:"required"`
}
