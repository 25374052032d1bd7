// Package api exposes Mission Control's HTTP ingress: the dispatcher
// pass-through at /message plus the handful of endpoints that don't fit
// the envelope shape (file attachments, the statistics webhook, and the
// human-input response).
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/auth"
	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/humaninput"
	"github.com/cpravetz/stage7-sub007/internal/mission/ingress"
	"github.com/cpravetz/stage7-sub007/internal/mission/lifecycle"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/telemetry"
)

// Handlers wires the dispatcher and the lifecycle/telemetry collaborators
// the endpoints below can't reach through the envelope alone.
type Handlers struct {
	dispatcher *ingress.Dispatcher
	engine     *lifecycle.Engine
	inputs     *humaninput.Router
	tm         *client.TrafficManagerClient
	aggregator *telemetry.Aggregator
	log        *logger.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(dispatcher *ingress.Dispatcher, engine *lifecycle.Engine, inputs *humaninput.Router, tm *client.TrafficManagerClient, aggregator *telemetry.Aggregator, log *logger.Logger) *Handlers {
	return &Handlers{dispatcher: dispatcher, engine: engine, inputs: inputs, tm: tm, aggregator: aggregator, log: log}
}

// respondError maps an AppError (or any error) to its JSON body and status.
func respondError(c *gin.Context, err error) {
	status := errors.GetHTTPStatus(err)
	c.JSON(status, gin.H{"error": true, "message": err.Error()})
}

// message handles POST /message: the common envelope ingress. The caller
// identity is the verified bearer token's userId, since this is the
// privileged HTTP path.
func (h *Handlers) message(c *gin.Context) {
	var env client.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		respondError(c, errors.ValidationError("body", "malformed envelope"))
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), env, auth.UserID(c))
	if err != nil {
		c.JSON(errors.GetHTTPStatus(err), gin.H{"error": err.Error(), "message": "command failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok", "result": result})
}

// isWellFormedID rejects empty ids and ids carrying whitespace or path
// separators, without committing to any particular id scheme.
func isWellFormedID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, " \t\n/\\")
}

// agentStatisticsUpdate handles POST /agentStatisticsUpdate: a webhook from
// the Traffic Manager announcing that a mission's agent statistics changed.
// It validates the mission id, kicks an out-of-band telemetry push, and
// acknowledges immediately without waiting for the push to land.
func (h *Handlers) agentStatisticsUpdate(c *gin.Context) {
	var req agentStatisticsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || !isWellFormedID(req.MissionID) {
		respondError(c, errors.ValidationError("missionId", "must be a well-formed identifier"))
		return
	}

	h.aggregator.PushNow(req.MissionID)
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// userInputResponse handles POST /userInputResponse.
func (h *Handlers) userInputResponse(c *gin.Context) {
	var req userInputResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("body", "requestId is required"))
		return
	}

	if err := ingress.RespondToPendingInput(c.Request.Context(), h.inputs, h.tm, h.log, req.RequestID, req.Response); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// addFile handles POST /missions/{missionId}/files/add.
func (h *Handlers) addFile(c *gin.Context) {
	missionID := c.Param("missionId")
	var ref model.FileRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		respondError(c, errors.ValidationError("body", "malformed file reference"))
		return
	}

	m, err := h.engine.AddAttachedFile(c.Request.Context(), missionID, ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// removeFileByParam handles DELETE /missions/{missionId}/files/{fileId}.
func (h *Handlers) removeFileByParam(c *gin.Context) {
	h.removeFile(c, c.Param("fileId"))
}

// removeFileByBody handles POST /missions/{missionId}/files/remove.
func (h *Handlers) removeFileByBody(c *gin.Context) {
	var req removeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ValidationError("fileId", "required"))
		return
	}
	h.removeFile(c, req.FileID)
}

func (h *Handlers) removeFile(c *gin.Context, fileID string) {
	missionID := c.Param("missionId")
	m, err := h.engine.RemoveAttachedFile(c.Request.Context(), missionID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) logRoute(method, path string) {
	h.log.Debug("registered route", zap.String("method", method), zap.String("path", path))
}
