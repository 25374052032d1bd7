package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
)

type recordingTrigger struct {
	mu        sync.Mutex
	triggered []string
}

func (r *recordingTrigger) Trigger(ctx context.Context, missionID string, sample *model.TelemetrySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered = append(r.triggered, missionID)
}

func jsonServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestCollectAndPublishSkipsMissionsNotInActiveStatus(t *testing.T) {
	log := logger.Default()
	reg := registry.New()
	reg.Insert(&model.Mission{ID: "m1", Status: model.StatusPaused})

	po := jsonServer(`{}`)
	defer po.Close()
	publishCount := 0
	po.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		publishCount++
		w.WriteHeader(http.StatusOK)
	})

	brain := jsonServer(`{}`)
	engineer := jsonServer(`{}`)
	tm := jsonServer(`{}`)
	defer brain.Close()
	defer engineer.Close()
	defer tm.Close()

	agg := New(
		reg,
		client.NewTrafficManagerClient(client.NewBaseClient("tm", tm.URL, "", time.Second, log)),
		client.NewBrainClient(client.NewBaseClient("brain", brain.URL, "", time.Second, log)),
		client.NewEngineerClient(client.NewBaseClient("engineer", engineer.URL, "", time.Second, log)),
		client.NewPostOfficeClient(client.NewBaseClient("po", po.URL, "", time.Second, log)),
		5*time.Second, time.Second, log,
	)

	agg.collectAndPublish(context.Background(), "m1", []string{"c1"})
	assert.Equal(t, 0, publishCount)
}

func TestCollectAndPublishTriggersReflectionWhenQuiescent(t *testing.T) {
	log := logger.Default()
	reg := registry.New()
	reg.Insert(&model.Mission{ID: "m1", Status: model.StatusCompleted})

	po := jsonServer(`{}`)
	brain := jsonServer(`{"llmCalls":1,"activeLLMCalls":0}`)
	engineer := jsonServer(`{}`)
	tm := jsonServer(`{"agentCountByStatus":{"RUNNING":0},"perAgentStats":{}}`)
	defer po.Close()
	defer brain.Close()
	defer engineer.Close()
	defer tm.Close()

	trigger := &recordingTrigger{}

	agg := New(
		reg,
		client.NewTrafficManagerClient(client.NewBaseClient("tm", tm.URL, "", time.Second, log)),
		client.NewBrainClient(client.NewBaseClient("brain", brain.URL, "", time.Second, log)),
		client.NewEngineerClient(client.NewBaseClient("engineer", engineer.URL, "", time.Second, log)),
		client.NewPostOfficeClient(client.NewBaseClient("po", po.URL, "", time.Second, log)),
		5*time.Second, time.Second, log,
	)
	agg.SetReflectionTrigger(trigger)

	agg.collectAndPublish(context.Background(), "m1", []string{"c1"})

	require.Len(t, trigger.triggered, 1)
	assert.Equal(t, "m1", trigger.triggered[0])
}

func TestTickSkipsWhenSubscriptionIndexEmpty(t *testing.T) {
	log := logger.Default()
	reg := registry.New()
	agg := New(reg, nil, nil, nil, nil, 5*time.Second, time.Second, log)
	agg.tick(context.Background())
}
