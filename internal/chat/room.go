package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Frame is the outbound websocket envelope.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ActiveRoom is the in-memory state of one loaded conversation: its open
// connections, per-participant presence counters, and handler chain. All
// mutation happens under the room mutex; handler callbacks and sends run
// outside it so handlers may call back into the room.
type ActiveRoom struct {
	room     Room
	messages MessageStore
	logger   *zap.Logger

	mu         sync.RWMutex
	conns      map[string]Conn
	presence   map[string]int
	departedAt map[string]time.Time
	handlers   []MessageHandler

	now func() time.Time
}

// NewActiveRoom constructs the live state for room. The handler chain is
// attached by the directory after construction.
func NewActiveRoom(room Room, messages MessageStore, logger *zap.Logger) *ActiveRoom {
	return &ActiveRoom{
		room:       room,
		messages:   messages,
		logger:     logger.With(zap.String("conversation", room.ID)),
		conns:      make(map[string]Conn),
		presence:   make(map[string]int),
		departedAt: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Room returns the conversation record this state belongs to.
func (r *ActiveRoom) Room() Room { return r.room }

// HandleSessionOpen registers conn and counts a new session for p. The first
// concurrent session for a participant fires OnParticipantEnter on every
// handler; further tabs only bump the counter.
func (r *ActiveRoom) HandleSessionOpen(conn Conn, p *Participant) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.presence[p.ID]++
	entered := r.presence[p.ID] == 1
	if entered {
		delete(r.departedAt, p.ID)
	}
	handlers := r.handlers
	r.mu.Unlock()

	if !entered {
		return
	}
	for _, h := range handlers {
		h.OnParticipantEnter(p)
	}
}

// HandleSessionClose deregisters connID and, when p is non-nil, counts a
// closed session. The participant's last session stamps the departure time
// and fires OnParticipantExit. Returns true when the room now has zero open
// connections.
func (r *ActiveRoom) HandleSessionClose(connID string, p *Participant) bool {
	r.mu.Lock()
	delete(r.conns, connID)
	exited := false
	if p != nil {
		if r.presence[p.ID] > 0 {
			r.presence[p.ID]--
		}
		if r.presence[p.ID] == 0 {
			delete(r.presence, p.ID)
			r.departedAt[p.ID] = r.now()
			exited = true
		}
	}
	empty := len(r.conns) == 0
	handlers := r.handlers
	r.mu.Unlock()

	if exited {
		for _, h := range handlers {
			h.OnParticipantExit(p)
		}
	}
	return empty
}

// ConnectionCount returns the number of open connections.
func (r *ActiveRoom) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IsActive reports whether the participant currently counts as active:
// either at least one open session, or departed within leeway.
func (r *ActiveRoom) IsActive(participantID string, leeway time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.presence[participantID] > 0 {
		return true
	}
	if leeway <= 0 {
		return false
	}
	at, ok := r.departedAt[participantID]
	return ok && r.now().Sub(at) <= leeway
}

// ActiveParticipants returns the ids of participants with positive presence
// plus those departed within leeway. Leeway zero means currently connected
// only.
func (r *ActiveRoom) ActiveParticipants(leeway time.Duration) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := make(map[string]struct{}, len(r.presence))
	for id, n := range r.presence {
		if n > 0 {
			active[id] = struct{}{}
		}
	}
	if leeway > 0 {
		cutoff := r.now().Add(-leeway)
		for id, at := range r.departedAt {
			if !at.Before(cutoff) {
				active[id] = struct{}{}
			}
		}
	}
	return active
}

// Broadcast fans v out to every open connection, best effort. Send failures
// are logged and skipped; per-connection ordering is the Conn's job.
func (r *ActiveRoom) Broadcast(v any) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.SendJSON(v); err != nil {
			r.logger.Warn("broadcast send failed",
				zap.String("connection", c.ID()), zap.Error(err))
		}
	}
}

// Publish persists a message authored by p and broadcasts the stored record
// to the room.
func (r *ActiveRoom) Publish(ctx context.Context, p *Participant, target string, content json.RawMessage) error {
	msg, err := r.messages.Send(ctx, p, target, content, r.now())
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	r.Broadcast(Frame{Type: "message", Data: msg})
	return nil
}

// HandleMessage offers the action to the handler chain in order; the first
// handler that claims it wins.
func (r *ActiveRoom) HandleMessage(ctx context.Context, p *Participant, action string, data json.RawMessage) error {
	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()

	for _, h := range handlers {
		claimed, err := h.OnMessage(ctx, p, action, data)
		if claimed {
			return err
		}
	}
	return nil
}

// HandleNicknameChange broadcasts the updated participant record and
// re-fires OnParticipantEnter, so stateful handlers refresh whatever they
// hold under the old nickname.
func (r *ActiveRoom) HandleNicknameChange(p *Participant) {
	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()

	r.Broadcast(Frame{Type: "setNickname", Data: p})
	for _, h := range handlers {
		h.OnParticipantEnter(p)
	}
}
