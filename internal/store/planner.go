package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
)

// SavePlan stores a planner entry under id, replacing any previous plan.
func (s *Store) SavePlan(id string, e model.PlannerEntry) error {
	schedule, err := json.Marshal(e.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO planner (id, exam, schedule, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET exam = excluded.exam, schedule = excluded.schedule, created_at = excluded.created_at`,
		id, e.Exam, string(schedule), e.Created.UTC(),
	)
	return err
}

// DeletePlan removes the plan stored under id. Missing ids are not an error.
func (s *Store) DeletePlan(id string) error {
	_, err := s.db.Exec(`DELETE FROM planner WHERE id = ?`, id)
	return err
}

// ListPlans returns all stored plans keyed by id.
func (s *Store) ListPlans() (map[string]model.PlannerEntry, error) {
	rows, err := s.db.Query(`SELECT id, exam, schedule, created_at FROM planner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make(map[string]model.PlannerEntry)
	for rows.Next() {
		var (
			id, schedule string
			e            model.PlannerEntry
			created      time.Time
		)
		if err := rows.Scan(&id, &e.Exam, &schedule, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(schedule), &e.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule for %s: %w", id, err)
		}
		e.Created = created
		plans[id] = e
	}
	return plans, rows.Err()
}
