package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/pcahill/chartroom/internal/chat"
)

// MessageRepository persists conversation messages. It implements
// chat.MessageStore.
type MessageRepository struct {
	db *pgxpool.Pool

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewMessageRepository creates a MessageRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (r *MessageRepository) newID(at time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), r.entropy)
	if err != nil {
		return "", fmt.Errorf("generating message id: %w", err)
	}
	return id.String(), nil
}

// Send stores a new message authored by sender.
//
// Postcondition: Returns the persisted record with its id assigned. Message
// ids are ULIDs, so lexical order matches send order even for equal
// timestamps.
func (r *MessageRepository) Send(ctx context.Context, sender *chat.Participant, target string, content json.RawMessage, at time.Time) (*chat.Message, error) {
	if len(content) == 0 {
		content = json.RawMessage("null")
	}
	id, err := r.newID(at)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO messages (id, sender_id, time, target, content)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, sender.ID, at, target, content,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	return &chat.Message{
		ID:      id,
		Sender:  chat.Sender{UserID: sender.UserID, Nickname: sender.Nickname},
		Time:    chat.UnixMillis(at),
		Target:  target,
		Content: content,
	}, nil
}

// History returns up to limit of the conversation's most recent messages in
// chronological order.
func (r *MessageRepository) History(ctx context.Context, roomID string, limit int) ([]*chat.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.id, cu.user_id, cu.nickname, m.time, m.target, m.content
		 FROM messages m
		 JOIN conversation_users cu ON cu.id = m.sender_id
		 WHERE cu.conversation_id = $1
		 ORDER BY m.id DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		var m chat.Message
		var at time.Time
		if err := rows.Scan(&m.ID, &m.Sender.UserID, &m.Sender.Nickname,
			&at, &m.Target, &m.Content); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Time = chat.UnixMillis(at)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}

	// The query walks newest-first to honour the limit; clients want
	// chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
