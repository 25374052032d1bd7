package reflection

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

type fakeEmitter struct {
	mu       sync.Mutex
	outcomes []struct {
		missionID string
		status    model.Status
		message   string
	}
}

func (f *fakeEmitter) ApplyReflectionOutcome(ctx context.Context, missionID string, next model.Status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, struct {
		missionID string
		status    model.Status
		message   string
	}{missionID, next, message})
	return nil
}

func newCoordinator(t *testing.T, cmBody string) (*Coordinator, *fakeEmitter, *registry.Registry) {
	t.Helper()
	log := logger.Default()
	cmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cmBody))
	}))
	t.Cleanup(cmServer.Close)

	reg := registry.New()
	emitter := &fakeEmitter{}
	cm := client.NewCapabilitiesManagerClient(client.NewBaseClient("cm", cmServer.URL, "", time.Second, log))
	return New(reg, cm, emitter, log), emitter, reg
}

func TestTriggerIgnoresMissionNotInReflectingStatus(t *testing.T) {
	c, emitter, reg := newCoordinator(t, `[{"name":"answer","result":"Done"}]`)
	reg.Insert(&model.Mission{ID: "m1", Status: model.StatusCompleted})

	c.Trigger(context.Background(), "m1", model.NewEmptyTelemetrySample())

	assert.Empty(t, emitter.outcomes)
}

func TestTriggerAnswerCompletesMission(t *testing.T) {
	c, emitter, reg := newCoordinator(t, `[{"name":"answer","result":"Done"}]`)
	reg.Insert(&model.Mission{ID: "m1", Goal: "G", Status: model.StatusReflecting})

	c.Trigger(context.Background(), "m1", model.NewEmptyTelemetrySample())

	require.Len(t, emitter.outcomes, 1)
	assert.Equal(t, model.StatusCompleted, emitter.outcomes[0].status)
	assert.Contains(t, emitter.outcomes[0].message, "Done")
}

func TestTriggerPlanReturnsToRunning(t *testing.T) {
	c, emitter, reg := newCoordinator(t, `[{"name":"plan","result":{}}]`)
	reg.Insert(&model.Mission{ID: "m1", Goal: "G", Status: model.StatusReflecting})

	c.Trigger(context.Background(), "m1", model.NewEmptyTelemetrySample())

	require.Len(t, emitter.outcomes, 1)
	assert.Equal(t, model.StatusRunning, emitter.outcomes[0].status)
}

func TestTriggerExceptionSetsError(t *testing.T) {
	c, emitter, reg := newCoordinator(t, `not json`)
	reg.Insert(&model.Mission{ID: "m1", Goal: "G", Status: model.StatusReflecting})

	c.Trigger(context.Background(), "m1", model.NewEmptyTelemetrySample())

	require.Len(t, emitter.outcomes, 1)
	assert.Equal(t, model.StatusError, emitter.outcomes[0].status)
	assert.Equal(t, "Reflection process failed.", emitter.outcomes[0].message)
}
