package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cpravetz/stage7-sub007/internal/auth"
)

// Register mounts Mission Control's HTTP surface on group, all of it
// behind bearer-token verification.
func Register(group *gin.RouterGroup, h *Handlers, verifier auth.Verifier) {
	group.Use(auth.Middleware(verifier))

	routes := []struct {
		method, path string
		handler      gin.HandlerFunc
	}{
		{"POST", "/message", h.message},
		{"POST", "/agentStatisticsUpdate", h.agentStatisticsUpdate},
		{"POST", "/userInputResponse", h.userInputResponse},
		{"POST", "/missions/:missionId/files/add", h.addFile},
		{"DELETE", "/missions/:missionId/files/:fileId", h.removeFileByParam},
		{"POST", "/missions/:missionId/files/remove", h.removeFileByBody},
	}

	for _, r := range routes {
		group.Handle(r.method, r.path, r.handler)
		h.logRoute(r.method, r.path)
	}
}
