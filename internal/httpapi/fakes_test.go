package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/storage/postgres"
)

type fakeUserStore struct {
	mu    sync.Mutex
	next  int
	users map[string]postgres.User // by username
	pass  map[string]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users: make(map[string]postgres.User),
		pass:  make(map[string]string),
	}
}

func (f *fakeUserStore) Create(_ context.Context, username, password string) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return postgres.User{}, postgres.ErrUserExists
	}
	f.next++
	u := postgres.User{
		ID:       fmt.Sprintf("u%05d", f.next),
		Username: username,
		AuthType: postgres.AuthPassword,
	}
	f.users[username] = u
	f.pass[username] = password
	return u, nil
}

func (f *fakeUserStore) CreateGuest(_ context.Context) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	u := postgres.User{
		ID:       fmt.Sprintf("u%05d", f.next),
		Username: fmt.Sprintf("guest%06d", f.next),
		AuthType: postgres.AuthGuest,
	}
	f.users[u.Username] = u
	return u, nil
}

func (f *fakeUserStore) Authenticate(_ context.Context, username, password string) (postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return postgres.User{}, postgres.ErrUserNotFound
	}
	if u.AuthType != postgres.AuthPassword || f.pass[username] != password {
		return postgres.User{}, postgres.ErrInvalidCredentials
	}
	return u, nil
}

// fakeTokens mints predictable tokens and verifies against a fixed table.
type fakeTokens struct {
	mu    sync.Mutex
	users map[string]*chat.User // by token
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{users: make(map[string]*chat.User)}
}

func (f *fakeTokens) Mint(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + userID
	if _, ok := f.users[token]; !ok {
		f.users[token] = &chat.User{ID: userID, Username: "user-" + userID}
	}
	return token, nil
}

func (f *fakeTokens) register(u *chat.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + u.ID
	f.users[token] = u
	return token
}

func (f *fakeTokens) Verify(_ context.Context, token string) (*chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[token]
	if !ok {
		return nil, chat.ErrInvalidToken
	}
	return u, nil
}

type fakeConversationStore struct {
	mu        sync.Mutex
	next      int
	summaries []postgres.ConversationSummary
	owners    map[string]string // conversation id -> owner user id
	deleted   []string
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{owners: make(map[string]string)}
}

func (f *fakeConversationStore) Create(_ context.Context, owner *chat.User, title, nickname string, isPrivate bool, tags []string) (*chat.Room, *chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	room := &chat.Room{ID: fmt.Sprintf("c%05d", f.next), Title: title, IsPrivate: isPrivate}
	p := &chat.Participant{
		ID:       fmt.Sprintf("p%05d", f.next),
		RoomID:   room.ID,
		UserID:   owner.ID,
		Nickname: nickname,
		IsOwner:  true,
	}
	f.owners[room.ID] = owner.ID
	f.summaries = append(f.summaries, postgres.ConversationSummary{
		Room:     *room,
		Nickname: nickname,
		Tags:     tags,
	})
	return room, p, nil
}

func (f *fakeConversationStore) Delete(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[id]
	if !ok {
		return chat.ErrRoomNotFound
	}
	if owner != userID {
		return postgres.ErrNotOwner
	}
	delete(f.owners, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConversationStore) ListForUser(_ context.Context, _ string) ([]postgres.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postgres.ConversationSummary(nil), f.summaries...), nil
}

func (f *fakeConversationStore) ListForUserByTag(_ context.Context, _ string, tag string) ([]postgres.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []postgres.ConversationSummary
	for _, s := range f.summaries {
		for _, t := range s.Tags {
			if t == tag {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

type fakeRefresher struct {
	count int
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}

// Fakes for the chat core's persistence ports, used by the realtime tests.

type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[string]chat.Room
}

func newFakeRoomStore(rooms ...chat.Room) *fakeRoomStore {
	f := &fakeRoomStore{rooms: make(map[string]chat.Room)}
	for _, r := range rooms {
		f.rooms[r.ID] = r
	}
	return f
}

func (f *fakeRoomStore) GetByID(_ context.Context, id string) (*chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	return &r, nil
}

type fakeParticipantStore struct {
	mu   sync.Mutex
	next int
	all  []*chat.Participant
}

func (f *fakeParticipantStore) Find(_ context.Context, roomID, userID string) (*chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.all {
		if p.RoomID == roomID && p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeParticipantStore) Upsert(_ context.Context, roomID, userID, defaultNickname string) (*chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.all {
		if p.RoomID == roomID && p.UserID == userID {
			return p, nil
		}
	}
	f.next++
	p := &chat.Participant{
		ID:       fmt.Sprintf("p%02d", f.next),
		RoomID:   roomID,
		UserID:   userID,
		Nickname: defaultNickname,
	}
	f.all = append(f.all, p)
	return p, nil
}

func (f *fakeParticipantStore) List(_ context.Context, roomID string) ([]*chat.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*chat.Participant
	for _, p := range f.all {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParticipantStore) UpdateNickname(_ context.Context, participantID, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.all {
		if p.ID == participantID {
			p.Nickname = nickname
			return nil
		}
	}
	return fmt.Errorf("participant %q not found", participantID)
}

type fakeMessageStore struct {
	mu   sync.Mutex
	seq  int
	msgs []*chat.Message
}

func (f *fakeMessageStore) Send(_ context.Context, sender *chat.Participant, target string, content json.RawMessage, at time.Time) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := &chat.Message{
		ID:      fmt.Sprintf("m%03d", f.seq),
		Sender:  chat.Sender{UserID: sender.UserID, Nickname: sender.Nickname},
		Time:    chat.UnixMillis(at),
		Target:  target,
		Content: content,
	}
	f.msgs = append(f.msgs, m)
	return m, nil
}

func (f *fakeMessageStore) History(_ context.Context, _ string, limit int) ([]*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.msgs
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]*chat.Message(nil), msgs...), nil
}

type fakeQuestionStore struct{}

func (fakeQuestionStore) Random(context.Context, string) (*chat.Question, error) {
	return nil, chat.ErrNoQuestions
}

// fakeConn is an in-memory chat.Conn that records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []json.RawMessage
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, b)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.frames...)
}

func (c *fakeConn) lastFrame() map[string]any {
	frames := c.sent()
	if len(frames) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(frames[len(frames)-1], &m); err != nil {
		return nil
	}
	return m
}
