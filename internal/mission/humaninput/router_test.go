package humaninput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

func TestTakeUnknownRequestIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Take("r1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestTakeRemovesExactlyThatEntry(t *testing.T) {
	r := New()
	r.Register(model.PendingInput{RequestID: "r1", MissionID: "m1", StepID: "s1", AgentID: "a1"})
	r.Register(model.PendingInput{RequestID: "r2", MissionID: "m1", StepID: "s2", AgentID: "a1"})

	p, err := r.Take("r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", p.AgentID)

	_, err = r.Take("r1")
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, r.Status("r2"))
}

func TestCancelForMissionRemovesOnlyThatMission(t *testing.T) {
	r := New()
	r.Register(model.PendingInput{RequestID: "r1", MissionID: "m1"})
	r.Register(model.PendingInput{RequestID: "r2", MissionID: "m2"})

	r.CancelForMission("m1")

	assert.False(t, r.Status("r1"))
	assert.True(t, r.Status("r2"))
}
