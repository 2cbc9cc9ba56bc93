package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, store *fakeRoomStore, opts Options) *Directory {
	t.Helper()
	sched := NewScheduler(testLogger())
	t.Cleanup(sched.Stop)
	return NewDirectory(store, &fakeMessageStore{}, &fakeQuestionStore{}, sched, testLogger(), opts)
}

func TestDirectory_GetOrLoadSharesState(t *testing.T) {
	store := newFakeRoomStore(testRoom())
	d := newTestDirectory(t, store, DefaultOptions())

	a, err := d.GetOrLoad(context.Background(), "room01")
	require.NoError(t, err)
	b, err := d.GetOrLoad(context.Background(), "room01")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, store.queries())
}

func TestDirectory_GetOrLoadConcurrent(t *testing.T) {
	store := newFakeRoomStore(testRoom())
	d := newTestDirectory(t, store, DefaultOptions())

	var wg sync.WaitGroup
	rooms := make([]*ActiveRoom, 16)
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := d.GetOrLoad(context.Background(), "room01")
			require.NoError(t, err)
			rooms[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.queries(), "concurrent loads share one store query")
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
}

func TestDirectory_GetOrLoadUnknownRoom(t *testing.T) {
	store := newFakeRoomStore()
	d := newTestDirectory(t, store, DefaultOptions())

	_, err := d.GetOrLoad(context.Background(), "nosuch")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, 0, d.Loaded(), "failed loads are not cached")

	// The room appearing later must be loadable; the failure was not sticky.
	store.mu.Lock()
	store.rooms["nosuch"] = Room{ID: "nosuch", Title: "late arrival"}
	store.mu.Unlock()

	r, err := d.GetOrLoad(context.Background(), "nosuch")
	require.NoError(t, err)
	assert.Equal(t, "late arrival", r.Room().Title)
}

func TestDirectory_RemoveRevalidatesEmptiness(t *testing.T) {
	store := newFakeRoomStore(testRoom())
	d := newTestDirectory(t, store, DefaultOptions())

	r, err := d.GetOrLoad(context.Background(), "room01")
	require.NoError(t, err)
	r.HandleSessionOpen(newFakeConn("c1"), testParticipant(1))

	d.Remove("room01")
	assert.Equal(t, 1, d.Loaded(), "occupied rooms must not be evicted")

	r.HandleSessionClose("c1", testParticipant(1))
	d.Remove("room01")
	assert.Equal(t, 0, d.Loaded())
}

func TestDirectory_ScheduledEvictionFires(t *testing.T) {
	store := newFakeRoomStore(testRoom())
	opts := DefaultOptions()
	opts.EvictionDelay = 10 * time.Millisecond
	d := newTestDirectory(t, store, opts)

	_, err := d.GetOrLoad(context.Background(), "room01")
	require.NoError(t, err)

	d.ScheduleEviction("room01")
	assert.Eventually(t, func() bool { return d.Loaded() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestDirectory_ScheduledEvictionSparesReoccupiedRoom(t *testing.T) {
	store := newFakeRoomStore(testRoom())
	opts := DefaultOptions()
	opts.EvictionDelay = 20 * time.Millisecond
	d := newTestDirectory(t, store, opts)

	r, err := d.GetOrLoad(context.Background(), "room01")
	require.NoError(t, err)

	d.ScheduleEviction("room01")
	r.HandleSessionOpen(newFakeConn("c1"), testParticipant(1))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, d.Loaded(), "a connection arriving before the eviction fires keeps the room alive")
}
