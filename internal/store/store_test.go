package store

import (
	"context"
	"testing"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)

	// Missing key is not an error.
	v, err := s.GetPreference("theme")
	if err != nil {
		t.Fatalf("GetPreference: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty value, got %q", v)
	}

	if err := s.SetPreference("theme", "dark"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := s.SetPreference("theme", "light"); err != nil {
		t.Fatalf("SetPreference overwrite: %v", err)
	}
	v, err = s.GetPreference("theme")
	if err != nil {
		t.Fatalf("GetPreference: %v", err)
	}
	if v != "light" {
		t.Errorf("expected 'light', got %q", v)
	}
}

func TestPlanner(t *testing.T) {
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := model.PlannerEntry{
		Exam:     "AP Biology",
		Schedule: []model.StudyWeek{{Week: 1, Focus: "Unit 1", Goal: "Review"}},
		Created:  created,
	}

	if err := s.SavePlan("ap_biology", entry); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	entry.Schedule = append(entry.Schedule, model.StudyWeek{Week: 2, Focus: "Unit 2", Goal: "Review"})
	if err := s.SavePlan("ap_biology", entry); err != nil {
		t.Fatalf("SavePlan replace: %v", err)
	}
	if err := s.SavePlan("ap_chemistry", model.PlannerEntry{Exam: "AP Chemistry", Created: created}); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	plans, err := s.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	got := plans["ap_biology"]
	if got.Exam != "AP Biology" || len(got.Schedule) != 2 || got.Schedule[1].Focus != "Unit 2" {
		t.Errorf("unexpected plan: %+v", got)
	}
	if !got.Created.Equal(created) {
		t.Errorf("created = %v, want %v", got.Created, created)
	}

	if err := s.DeletePlan("ap_biology"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	if err := s.DeletePlan("missing"); err != nil {
		t.Fatalf("DeletePlan missing: %v", err)
	}
	plans, err = s.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if _, ok := plans["ap_biology"]; ok || len(plans) != 1 {
		t.Errorf("plan should be deleted: %v", plans)
	}
}

func TestAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	attempts := []model.Attempt{
		{SessionID: "s1", ExamID: "ap-biology", Subject: "AP Biology", Kind: model.AttemptMCQ, Score: 12, Total: 15, CreatedAt: now},
		{SessionID: "s2", ExamID: "ap-chemistry", Subject: "AP Chemistry", Kind: model.AttemptFreeResponse, Feedback: "**Strengths**", CreatedAt: now},
		{SessionID: "s3", ExamID: "ap-biology", Subject: "AP Biology", Kind: model.AttemptFullExam, Score: 40, Total: 55, CreatedAt: now},
	}
	for _, a := range attempts {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	tests := []struct {
		name   string
		examID string
		want   int
	}{
		{"all", "", 3},
		{"biology", "ap-biology", 2},
		{"none", "ap-latin", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAttempts(ctx, tt.examID)
			if err != nil {
				t.Fatalf("ListAttempts: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d attempts, got %d", tt.want, len(got))
			}
		})
	}

	all, _ := s.ListAttempts(ctx, "")
	if all[1].Kind != model.AttemptFreeResponse || all[1].Feedback != "**Strengths**" {
		t.Errorf("unexpected attempt: %+v", all[1])
	}
	if all[0].ID == 0 || all[0].Score != 12 || all[0].Total != 15 {
		t.Errorf("unexpected attempt: %+v", all[0])
	}
}

func TestExportAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp, err := s.ExportAttempts(ctx, "")
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if exp.Count != 0 || exp.Attempts == nil {
		t.Errorf("empty export should have a non-nil empty list: %+v", exp)
	}

	if err := s.RecordAttempt(ctx, model.Attempt{SessionID: "s1", ExamID: "ap-biology", Subject: "AP Biology", Kind: model.AttemptMCQ, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	exp, err = s.ExportAttempts(ctx, "ap-biology")
	if err != nil {
		t.Fatalf("ExportAttempts: %v", err)
	}
	if exp.Count != 1 || exp.ExportedAt.IsZero() {
		t.Errorf("unexpected export: %+v", exp)
	}
}
