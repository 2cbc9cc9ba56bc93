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

// QuestionRepository persists imported guessr questions grouped by import
// source. It implements chat.QuestionStore.
type QuestionRepository struct {
	db *pgxpool.Pool
}

// NewQuestionRepository creates a QuestionRepository backed by the given
// pool.
//
// Precondition: db must be a valid, open connection pool.
func NewQuestionRepository(db *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// CreateSource records one import run and returns its id. Questions saved
// under it supersede every earlier source.
func (r *QuestionRepository) CreateSource(ctx context.Context, title string, at time.Time) (string, error) {
	id := ids.New()
	_, err := r.db.Exec(ctx,
		`INSERT INTO question_sources (id, title, created_at) VALUES ($1, $2, $3)`,
		id, title, at,
	)
	if err != nil {
		return "", fmt.Errorf("inserting question source: %w", err)
	}
	return id, nil
}

// Save stores one question under the given source.
func (r *QuestionRepository) Save(ctx context.Context, sourceID, category string, data []byte) (*chat.Question, error) {
	q := &chat.Question{
		ID:       ids.New(),
		SourceID: sourceID,
		Category: category,
		Data:     data,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO questions (id, source_id, category, data) VALUES ($1, $2, $3, $4)`,
		q.ID, q.SourceID, q.Category, q.Data,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting question: %w", err)
	}
	return q, nil
}

// Random draws a uniformly random question of the given category from the
// most recent source only, so a fresh import immediately replaces the
// question bank.
//
// Postcondition: Returns chat.ErrNoQuestions when the bank is empty.
func (r *QuestionRepository) Random(ctx context.Context, category string) (*chat.Question, error) {
	var q chat.Question
	err := r.db.QueryRow(ctx,
		`SELECT q.id, q.source_id, q.category, q.data
		 FROM questions q
		 WHERE q.category = $1
		   AND q.source_id = (
		       SELECT id FROM question_sources ORDER BY created_at DESC LIMIT 1)
		 ORDER BY random()
		 LIMIT 1`,
		category,
	).Scan(&q.ID, &q.SourceID, &q.Category, &q.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrNoQuestions
		}
		return nil, fmt.Errorf("querying random question: %w", err)
	}
	return &q, nil
}

// CountBySource reports how many questions the given source holds.
func (r *QuestionRepository) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM questions WHERE source_id = $1`,
		sourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting questions: %w", err)
	}
	return n, nil
}
