package store

import (
	"context"

	"github.com/intelligrade/intelligrade/internal/model"
)

// RecordAttempt stores the result of a finished practice session.
func (s *Store) RecordAttempt(ctx context.Context, a model.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (session_id, exam_id, subject, kind, score, total, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.ExamID, a.Subject, a.Kind, a.Score, a.Total, a.Feedback, a.CreatedAt.UTC(),
	)
	return err
}

// ListAttempts returns attempts in creation order. An empty examID lists
// attempts for every exam.
func (s *Store) ListAttempts(ctx context.Context, examID string) ([]model.Attempt, error) {
	query := `SELECT id, session_id, exam_id, subject, kind, score, total, feedback, created_at FROM attempts`
	var args []any
	if examID != "" {
		query += ` WHERE exam_id = ?`
		args = append(args, examID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ExamID, &a.Subject, &a.Kind, &a.Score, &a.Total, &a.Feedback, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
