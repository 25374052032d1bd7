package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpravetz/stage7-sub007/internal/auth"
	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/humaninput"
	"github.com/cpravetz/stage7-sub007/internal/mission/ingress"
	"github.com/cpravetz/stage7-sub007/internal/mission/lifecycle"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
	"github.com/cpravetz/stage7-sub007/internal/mission/telemetry"
)

type alwaysVerifier struct{ userID string }

func (v alwaysVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	return &auth.Claims{UserID: v.userID}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *humaninput.Router) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Default()

	collab := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(collab.Close)

	reg := registry.New()
	inputs := humaninput.New()
	tm := client.NewTrafficManagerClient(client.NewBaseClient("tm", collab.URL, "", time.Second, log))
	lib := client.NewLibrarianClient(client.NewBaseClient("lib", collab.URL, "", time.Second, log))
	po := client.NewPostOfficeClient(client.NewBaseClient("po", collab.URL, "", time.Second, log))
	brain := client.NewBrainClient(client.NewBaseClient("brain", collab.URL, "", time.Second, log))
	engineer := client.NewEngineerClient(client.NewBaseClient("engineer", collab.URL, "", time.Second, log))

	engine := lifecycle.New(reg, inputs, tm, lib, po, log)
	dispatcher := ingress.New(engine, inputs, tm, log)
	agg := telemetry.New(reg, tm, brain, engineer, po, time.Minute, time.Second, log)

	handlers := NewHandlers(dispatcher, engine, inputs, tm, agg, log)

	r := gin.New()
	group := r.Group("/")
	Register(group, handlers, alwaysVerifier{userID: "u1"})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, inputs
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer anything")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateThenListRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	createEnv := client.Envelope{
		Type:     "CREATE_MISSION",
		ClientID: "c1",
		Content:  map[string]interface{}{"goal": "G", "name": "N"},
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/message", createEnv)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	listEnv := client.Envelope{Type: "LIST_MISSIONS"}
	resp2 := doJSON(t, http.MethodPost, srv.URL+"/message", listEnv)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	results, ok := body["result"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	summary := results[0].(map[string]interface{})
	assert.Equal(t, "N", summary["name"])
	assert.Equal(t, string(model.StatusRunning), summary["status"])
}

func TestUserInputResponseUnknownRequestReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/userInputResponse", userInputResponseRequest{RequestID: "missing", Response: "yes"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserInputResponseKnownRequestReturns200AndConsumesEntry(t *testing.T) {
	srv, inputs := newTestServer(t)
	inputs.Register(model.PendingInput{RequestID: "r1", MissionID: "m1", StepID: "s1", AgentID: "a1"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/userInputResponse", userInputResponseRequest{RequestID: "r1", Response: "yes"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, inputs.Status("r1"))
}

func TestAgentStatisticsUpdateRejectsMalformedMissionID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/agentStatisticsUpdate", map[string]interface{}{"missionId": "has space"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentStatisticsUpdateAcknowledgesImmediately(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/agentStatisticsUpdate", map[string]interface{}{"missionId": "m1", "agentId": "a1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMessageWithoutBearerTokenIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/message", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
