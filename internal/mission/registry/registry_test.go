package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

func newMission(id, userID string, status model.Status) *model.Mission {
	now := time.Unix(1700000000, 0).UTC()
	return &model.Mission{
		ID:        id,
		UserID:    userID,
		Name:      "N",
		Goal:      "G",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGetUnknownMissionIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := New()
	r.Subscribe("c1", "m1")
	r.Subscribe("c1", "m1")
	pairs := r.Subscriptions()
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{ClientID: "c1", MissionID: "m1"}, pairs[0])
}

func TestUnsubscribeDropsEmptyClientEntry(t *testing.T) {
	r := New()
	r.Subscribe("c1", "m1")
	r.Unsubscribe("c1", "m1")
	assert.True(t, r.IsEmpty())
	assert.Empty(t, r.ClientsFor("m1"))
}

func TestRemoveScrubsAllSubscribers(t *testing.T) {
	r := New()
	r.Insert(newMission("m1", "u1", model.StatusRunning))
	r.Subscribe("c1", "m1")
	r.Subscribe("c2", "m1")

	r.Remove("m1")

	_, err := r.Get("m1")
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, r.ClientsFor("m1"))
	assert.True(t, r.IsEmpty())
}

func TestListByUserFiltersOwner(t *testing.T) {
	r := New()
	r.Insert(newMission("m1", "u1", model.StatusRunning))
	r.Insert(newMission("m2", "u2", model.StatusRunning))

	summaries := r.ListByUser("u1")
	require.Len(t, summaries, 1)
	assert.Equal(t, "m1", summaries[0].ID)
}

func TestMutateAppliesUnderLock(t *testing.T) {
	r := New()
	r.Insert(newMission("m1", "u1", model.StatusRunning))

	updated, err := r.Mutate("m1", func(m *model.Mission) error {
		m.Status = model.StatusPaused
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, updated.Status)

	fetched, err := r.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, fetched.Status)
}

func TestCloneIsolatesCallerFromRegistryState(t *testing.T) {
	r := New()
	r.Insert(newMission("m1", "u1", model.StatusRunning))

	m, err := r.Get("m1")
	require.NoError(t, err)
	m.Status = model.StatusAborted

	fetched, err := r.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, fetched.Status)
}
