package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/ids"
)

// ErrNotOwner is returned when a non-owner attempts to delete a conversation.
var ErrNotOwner = errors.New("not the conversation owner")

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Room          chat.Room  `json:"room"`
	Nickname      string     `json:"nickname"`
	Tags          []string   `json:"tags"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// ConversationRepository persists conversations, their participants, and
// their tags. It implements both chat.RoomStore and chat.ParticipantStore.
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a ConversationRepository backed by the
// given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a conversation with its owning participant and tags in one
// transaction.
//
// Precondition: title, nickname and tags have already been validated.
// Postcondition: Returns the new room and the owner's participant record.
func (r *ConversationRepository) Create(ctx context.Context, owner *chat.User, title, nickname string, isPrivate bool, tags []string) (*chat.Room, *chat.Participant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	room := &chat.Room{ID: ids.New(), Title: title, IsPrivate: isPrivate}
	_, err = tx.Exec(ctx,
		`INSERT INTO conversations (id, title, is_private) VALUES ($1, $2, $3)`,
		room.ID, room.Title, room.IsPrivate,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting conversation: %w", err)
	}

	participant := &chat.Participant{
		ID:       ids.New(),
		RoomID:   room.ID,
		UserID:   owner.ID,
		Nickname: nickname,
		IsOwner:  true,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_users (id, conversation_id, user_id, nickname, is_owner)
		 VALUES ($1, $2, $3, $4, true)`,
		participant.ID, room.ID, owner.ID, nickname,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting owner participant: %w", err)
	}

	for _, tag := range tags {
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_tags (conversation_id, tag) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			room.ID, tag,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("inserting tag: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing conversation: %w", err)
	}
	return room, participant, nil
}

// GetByID retrieves a conversation by id.
//
// Postcondition: Returns the room or chat.ErrRoomNotFound.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*chat.Room, error) {
	var room chat.Room
	err := r.db.QueryRow(ctx,
		`SELECT id, title, is_private FROM conversations WHERE id = $1`,
		id,
	).Scan(&room.ID, &room.Title, &room.IsPrivate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &room, nil
}

// Delete removes a conversation and everything hanging off it.
//
// Postcondition: Returns chat.ErrRoomNotFound for unknown ids and
// ErrNotOwner when userID does not own the conversation.
func (r *ConversationRepository) Delete(ctx context.Context, id, userID string) error {
	var ownerID string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM conversation_users
		 WHERE conversation_id = $1 AND is_owner`,
		id,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrRoomNotFound
		}
		return fmt.Errorf("querying conversation owner: %w", err)
	}
	if ownerID != userID {
		return ErrNotOwner
	}

	// Cascades take the participants, tags, and messages with it.
	tag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrRoomNotFound
	}
	return nil
}

// ListForUser returns every conversation the user participates in, newest
// activity first, with tags and last-message time.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	return r.list(ctx, userID, "")
}

// ListForUserByTag filters the user's conversations to those carrying tag.
func (r *ConversationRepository) ListForUserByTag(ctx context.Context, userID, tag string) ([]ConversationSummary, error) {
	return r.list(ctx, userID, tag)
}

func (r *ConversationRepository) list(ctx context.Context, userID, tag string) ([]ConversationSummary, error) {
	query := `
		SELECT c.id, c.title, c.is_private, cu.nickname,
		       coalesce(array_remove(array_agg(DISTINCT t.tag), NULL), '{}'),
		       (SELECT max(m.time) FROM messages m
		        JOIN conversation_users s ON s.id = m.sender_id
		        WHERE s.conversation_id = c.id)
		FROM conversations c
		JOIN conversation_users cu ON cu.conversation_id = c.id AND cu.user_id = $1
		LEFT JOIN conversation_tags t ON t.conversation_id = c.id
		GROUP BY c.id, c.title, c.is_private, cu.nickname`
	args := []any{userID}
	if tag != "" {
		query += `
		HAVING $2 = ANY(array_agg(t.tag))`
		args = append(args, tag)
	}
	query += `
		ORDER BY 6 DESC NULLS LAST, c.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.Room.ID, &s.Room.Title, &s.Room.IsPrivate,
			&s.Nickname, &s.Tags, &s.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversations: %w", err)
	}
	return out, nil
}

// Find returns the participant for userID in roomID, or nil when the user
// has never joined.
func (r *ConversationRepository) Find(ctx context.Context, roomID, userID string) (*chat.Participant, error) {
	var p chat.Participant
	err := r.db.QueryRow(ctx,
		`SELECT id, conversation_id, user_id, nickname, is_owner
		 FROM conversation_users
		 WHERE conversation_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&p.ID, &p.RoomID, &p.UserID, &p.Nickname, &p.IsOwner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying participant: %w", err)
	}
	return &p, nil
}

// Upsert registers userID in roomID, creating the membership with
// defaultNickname on first join.
//
// Postcondition: Returns the stored participant; an existing membership
// keeps its nickname.
func (r *ConversationRepository) Upsert(ctx context.Context, roomID, userID, defaultNickname string) (*chat.Participant, error) {
	var p chat.Participant
	err := r.db.QueryRow(ctx,
		`INSERT INTO conversation_users (id, conversation_id, user_id, nickname)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id, user_id)
		 DO UPDATE SET nickname = conversation_users.nickname
		 RETURNING id, conversation_id, user_id, nickname, is_owner`,
		ids.New(), roomID, userID, defaultNickname,
	).Scan(&p.ID, &p.RoomID, &p.UserID, &p.Nickname, &p.IsOwner)
	if err != nil {
		return nil, fmt.Errorf("upserting participant: %w", err)
	}
	return &p, nil
}

// List returns every participant ever registered in roomID.
func (r *ConversationRepository) List(ctx context.Context, roomID string) ([]*chat.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, user_id, nickname, is_owner
		 FROM conversation_users
		 WHERE conversation_id = $1
		 ORDER BY nickname`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var out []*chat.Participant
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Nickname, &p.IsOwner); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading participants: %w", err)
	}
	return out, nil
}

// UpdateNickname persists a nickname change.
//
// Precondition: nickname has already been validated.
func (r *ConversationRepository) UpdateNickname(ctx context.Context, participantID, nickname string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE conversation_users SET nickname = $1 WHERE id = $2`,
		nickname, participantID,
	)
	if err != nil {
		return fmt.Errorf("updating nickname: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s not found", participantID)
	}
	return nil
}
