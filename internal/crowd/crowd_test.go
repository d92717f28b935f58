package crowd

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefcounting(t *testing.T) {
	tr := NewTracker()
	user := uuid.New()

	const n = 3
	for i := 0; i < n; i++ {
		tr.Connect("lobby", user)
	}
	assert.True(t, tr.IsOnline(user))
	assert.True(t, tr.IsOnlineInRoom("lobby", user))
	assert.Equal(t, n, tr.Connections())

	for i := 0; i < n; i++ {
		assert.True(t, tr.IsOnline(user), "still online while refcount > 0")
		tr.Disconnect("lobby", user)
	}
	assert.False(t, tr.IsOnline(user))
	assert.False(t, tr.IsOnlineInRoom("lobby", user))
	assert.Equal(t, 0, tr.Connections())
	assert.Empty(t, tr.Ids("lobby"), "room entry removed when empty")
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.Disconnect("lobby", uuid.New())
	assert.Equal(t, 0, tr.Connections())
}

func TestIds(t *testing.T) {
	tr := NewTracker()
	a, b := uuid.New(), uuid.New()
	tr.Connect("round:x", a)
	tr.Connect("round:x", b)
	tr.Connect("round:x", b)

	ids := tr.Ids("round:x")
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, ids)
}

func TestPerRoomPresence(t *testing.T) {
	tr := NewTracker()
	user := uuid.New()
	tr.Connect("site", user)

	assert.True(t, tr.IsOnline(user))
	assert.False(t, tr.IsOnlineInRoom("lobby", user))
	assert.True(t, tr.IsOnlineInRoom("site", user))
}

type staticLister struct {
	ids []uuid.UUID
}

func (l *staticLister) RecentlyDeactivated(_ context.Context, _ time.Time) ([]uuid.UUID, error) {
	return l.ids, nil
}

func TestSweepPurgesDeactivated(t *testing.T) {
	tr := NewTracker()
	stale := uuid.New()
	fresh := uuid.New()
	tr.Connect("lobby", stale)
	tr.Connect("lobby", stale)
	tr.Connect("lobby", fresh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr.StartSweep(ctx, logrus.New(), &staticLister{ids: []uuid.UUID{stale}}, 10*time.Millisecond, time.Minute)

	require.Eventually(t, func() bool {
		return !tr.IsOnline(stale)
	}, time.Second, 10*time.Millisecond)

	assert.True(t, tr.IsOnline(fresh))
	assert.Equal(t, 1, tr.Connections(), "purge drops the whole refcount, not one")
}
