package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []any
	closed bool
	fail   bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.fail {
		return fmt.Errorf("connection %s closed", c.id)
	}
	c.frames = append(c.frames, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.frames...)
}

// messagesSent filters the conn's frames down to broadcast message records.
func (c *fakeConn) messagesSent() []*Message {
	var out []*Message
	for _, f := range c.sent() {
		frame, ok := f.(Frame)
		if !ok || frame.Type != "message" {
			continue
		}
		if msg, ok := frame.Data.(*Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

// fakeMessageStore keeps messages in order of arrival.
type fakeMessageStore struct {
	mu   sync.Mutex
	seq  int
	sent []*Message
	err  error
}

func (s *fakeMessageStore) Send(ctx context.Context, sender *Participant, target string, content json.RawMessage, at time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	msg := &Message{
		ID:      fmt.Sprintf("m%03d", s.seq),
		Sender:  Sender{UserID: sender.UserID, Nickname: sender.Nickname},
		Time:    UnixMillis(at),
		Target:  target,
		Content: content,
	}
	s.sent = append(s.sent, msg)
	return msg, nil
}

func (s *fakeMessageStore) History(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sent
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]*Message(nil), msgs...), nil
}

func (s *fakeMessageStore) all() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.sent...)
}

// fakeRoomStore serves rooms from a map and counts queries.
type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[string]Room
	calls int
}

func newFakeRoomStore(rooms ...Room) *fakeRoomStore {
	s := &fakeRoomStore{rooms: make(map[string]Room)}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *fakeRoomStore) GetByID(ctx context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &r, nil
}

func (s *fakeRoomStore) queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeQuestionStore serves one fixed question.
type fakeQuestionStore struct {
	question *Question
}

func (s *fakeQuestionStore) Random(ctx context.Context, category string) (*Question, error) {
	if s.question == nil {
		return nil, ErrNoQuestions
	}
	return s.question, nil
}

// recordingHandler records presence callbacks and optionally claims actions.
type recordingHandler struct {
	mu     sync.Mutex
	enters []string
	exits  []string
	claims bool
	seen   []string
}

func (h *recordingHandler) OnMessage(ctx context.Context, p *Participant, action string, data json.RawMessage) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, action)
	return h.claims, nil
}

func (h *recordingHandler) OnParticipantEnter(p *Participant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enters = append(h.enters, p.ID)
}

func (h *recordingHandler) OnParticipantExit(p *Participant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exits = append(h.exits, p.ID)
}

func (h *recordingHandler) counts() (enters, exits int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.enters), len(h.exits)
}

func testParticipant(n int) *Participant {
	return &Participant{
		ID:       fmt.Sprintf("p%d", n),
		RoomID:   "room01",
		UserID:   fmt.Sprintf("u%d", n),
		Nickname: fmt.Sprintf("nick%d", n),
	}
}

func testRoom() Room {
	return Room{ID: "room01", Title: "test room"}
}

func testLogger() *zap.Logger { return zap.NewNop() }
