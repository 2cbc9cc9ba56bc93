package chat

import (
	"context"
	"encoding/json"
	"time"
)

// RoomStore loads conversation records for the directory.
type RoomStore interface {
	// GetByID returns the stored room or ErrRoomNotFound.
	GetByID(ctx context.Context, id string) (*Room, error)
}

// ParticipantStore manages membership records within a room.
type ParticipantStore interface {
	// Find returns the participant for userID in roomID, or nil when the
	// user has never joined the room.
	Find(ctx context.Context, roomID, userID string) (*Participant, error)
	// Upsert registers userID in roomID, creating the membership with
	// defaultNickname on first join, and returns the resulting participant.
	Upsert(ctx context.Context, roomID, userID, defaultNickname string) (*Participant, error)
	// List returns every participant ever registered in roomID.
	List(ctx context.Context, roomID string) ([]*Participant, error)
	// UpdateNickname persists a nickname change for the participant.
	UpdateNickname(ctx context.Context, participantID, nickname string) error
}

// MessageStore persists and retrieves room messages.
type MessageStore interface {
	// Send stores a new message authored by sender and returns the
	// persisted record, id and timestamp assigned.
	Send(ctx context.Context, sender *Participant, target string, content json.RawMessage, at time.Time) (*Message, error)
	// History returns up to limit of the room's most recent messages in
	// chronological order.
	History(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// QuestionStore supplies guessr questions.
type QuestionStore interface {
	// Random draws a random question of the given category from the most
	// recently imported source. Returns ErrNoQuestions when none exist.
	Random(ctx context.Context, category string) (*Question, error)
}

// TokenVerifier resolves an access token to the account it identifies.
type TokenVerifier interface {
	// Verify returns the token's user or ErrInvalidToken.
	Verify(ctx context.Context, token string) (*User, error)
}
