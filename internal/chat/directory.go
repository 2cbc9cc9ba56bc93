package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Directory holds the live state of every loaded room. Rooms are loaded on
// first use, shared by every connection, and evicted once they have sat
// empty long enough.
type Directory struct {
	rooms     RoomStore
	messages  MessageStore
	questions QuestionStore
	scheduler *Scheduler
	logger    *zap.Logger
	opts      Options

	mu      sync.Mutex
	entries map[string]*directoryEntry
}

// directoryEntry single-flights the load of one room: concurrent GetOrLoad
// callers for an unseen id share one store query and one ActiveRoom.
type directoryEntry struct {
	once sync.Once
	room *ActiveRoom
	err  error
}

// NewDirectory constructs an empty directory.
func NewDirectory(rooms RoomStore, messages MessageStore, questions QuestionStore, scheduler *Scheduler, logger *zap.Logger, opts Options) *Directory {
	return &Directory{
		rooms:     rooms,
		messages:  messages,
		questions: questions,
		scheduler: scheduler,
		logger:    logger,
		opts:      opts,
		entries:   make(map[string]*directoryEntry),
	}
}

// GetOrLoad returns the live state for roomID, loading it on first use.
// Unknown ids return ErrRoomNotFound; a failed load is not cached, so the
// next caller retries.
func (d *Directory) GetOrLoad(ctx context.Context, roomID string) (*ActiveRoom, error) {
	d.mu.Lock()
	e, ok := d.entries[roomID]
	if !ok {
		e = &directoryEntry{}
		d.entries[roomID] = e
	}
	d.mu.Unlock()

	e.once.Do(func() {
		e.room, e.err = d.load(ctx, roomID)
	})
	if e.err != nil {
		d.mu.Lock()
		if d.entries[roomID] == e {
			delete(d.entries, roomID)
		}
		d.mu.Unlock()
		return nil, e.err
	}
	return e.room, nil
}

func (d *Directory) load(ctx context.Context, roomID string) (*ActiveRoom, error) {
	room, err := d.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	active := NewActiveRoom(*room, d.messages, d.logger)
	active.handlers = []MessageHandler{
		NewGuessrHandler(active, d.questions, d.scheduler, d.logger, d.opts),
		NewBroadcastHandler(active),
	}
	d.logger.Info("conversation loaded", zap.String("conversation", roomID))
	return active, nil
}

// Remove unloads roomID's state, but only if the room still has zero open
// connections. A connection that arrived since the eviction was scheduled
// keeps the state alive.
func (d *Directory) Remove(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[roomID]
	if !ok || e.room == nil {
		return
	}
	if e.room.ConnectionCount() > 0 {
		return
	}
	delete(d.entries, roomID)
	d.logger.Info("conversation evicted", zap.String("conversation", roomID))
}

// ScheduleEviction queues a removal attempt after the configured eviction
// delay. The fired task re-validates emptiness, so scheduling is always
// safe.
func (d *Directory) ScheduleEviction(roomID string) {
	d.scheduler.Schedule(d.opts.EvictionDelay, func() {
		d.Remove(roomID)
	})
}

// Loaded returns the number of rooms currently held in memory.
func (d *Directory) Loaded() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
