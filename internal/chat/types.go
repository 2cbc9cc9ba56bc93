// Package chat implements the realtime conversation core: the directory of
// loaded rooms, per-room presence and broadcast, the ordered message handler
// chain, and the guessr round state machine layered on top of it.
package chat

import (
	"encoding/json"
	"strconv"
	"time"
)

// User is an authenticated account as seen by the conversation core.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Room is the immutable record of a conversation, cached by value inside the
// room's in-memory state. Title and privacy are never mutated by this core.
type Room struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	IsPrivate bool   `json:"isPrivate"`
}

// Participant is a user's membership record within one room. Nickname is
// mutable; ID is stable for the conversation's lifetime.
type Participant struct {
	ID       string `json:"-"`
	RoomID   string `json:"-"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	IsOwner  bool   `json:"isOwner"`
}

// Sender is the subset of a participant embedded in serialized messages.
type Sender struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// UnixMillis serializes a time.Time as milliseconds since the epoch.
type UnixMillis time.Time

// MarshalJSON renders the timestamp as an integer millisecond count.
func (m UnixMillis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(m).UnixMilli(), 10)), nil
}

// UnmarshalJSON parses an integer millisecond count.
func (m *UnixMillis) UnmarshalJSON(b []byte) error {
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*m = UnixMillis(time.UnixMilli(ms).UTC())
	return nil
}

// Time returns the wrapped time.Time.
func (m UnixMillis) Time() time.Time { return time.Time(m) }

// Message is one persisted room message. Target carries the action that
// produced it ("message" payloads on the wire wrap one of these).
type Message struct {
	ID      string          `json:"id"`
	Sender  Sender          `json:"sender"`
	Time    UnixMillis      `json:"time"`
	Target  string          `json:"target"`
	Content json.RawMessage `json:"content"`
}

// Options carries the core's timing and game parameters.
type Options struct {
	// Leeway is the grace window during which a recently departed
	// participant still counts as active.
	Leeway time.Duration
	// ExitRecheckDelay is the delay before a round progress re-check after a
	// participant exit. Must not be shorter than Leeway.
	ExitRecheckDelay time.Duration
	// EvictionDelay is how long a room must stay empty before its state is
	// unloaded from the directory.
	EvictionDelay time.Duration
	// QuestionCategory is the question type drawn by guessr:start.
	QuestionCategory string
}

// DefaultOptions returns the production timing parameters.
func DefaultOptions() Options {
	return Options{
		Leeway:           5 * time.Second,
		ExitRecheckDelay: 5100 * time.Millisecond,
		EvictionDelay:    30 * time.Second,
		QuestionCategory: "LineGraph",
	}
}
