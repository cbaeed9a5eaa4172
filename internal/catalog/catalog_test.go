package catalog

import (
	"testing"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"AP Biology", "ap-biology"},
		{"AP Physics C: Mechanics", "ap-physics-c-mechanics"},
		{"AP Chinese Language & Culture", "ap-chinese-language-culture"},
		{"  trailing  ", "trailing"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Slug(tt.title); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestCatalogIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range All() {
		if seen[e.ID] {
			t.Errorf("duplicate exam id %q", e.ID)
		}
		seen[e.ID] = true
	}
	if len(seen) != 37 {
		t.Errorf("expected 37 exams, got %d", len(seen))
	}
}

func TestFind(t *testing.T) {
	e, ok := Find("ap-united-states-history")
	if !ok {
		t.Fatal("expected to find APUSH")
	}
	if !e.HasType(model.TypeDBQ) {
		t.Error("APUSH should offer DBQ practice")
	}
	if _, ok := Find("nope"); ok {
		t.Error("unexpected match for unknown id")
	}
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name    string
		term    string
		wantMin int
		wantMax int
	}{
		{"empty matches all", "", 37, 37},
		{"title and description", "calculus", 4, 4},
		{"case insensitive", "CALCULUS", 4, 4},
		{"subject", "physics", 4, 4},
		{"description", "supply and demand", 1, 1},
		{"no match", "underwater basket weaving", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(Search(tt.term))
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Search(%q) returned %d exams, want [%d, %d]", tt.term, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestMockExam(t *testing.T) {
	t.Run("sample", func(t *testing.T) {
		mcq, frq := MockExam("AP Biology", false).Split()
		if len(mcq) != 5 || len(frq) != 1 {
			t.Fatalf("expected 5+1 questions, got %d+%d", len(mcq), len(frq))
		}
		if mcq[1].CorrectOptionIndex != 1 || mcq[4].CorrectOptionIndex != 0 {
			t.Errorf("answers should cycle through A-D, got %d and %d", mcq[1].CorrectOptionIndex, mcq[4].CorrectOptionIndex)
		}
		if mcq[0].Text != "AP Biology: Sample MCQ 1" {
			t.Errorf("mcq[0].Text = %q", mcq[0].Text)
		}
		if frq[0].Text != "AP Biology: Sample Free Response Question" {
			t.Errorf("frq[0].Text = %q", frq[0].Text)
		}
	})
	t.Run("full length", func(t *testing.T) {
		exam := MockExam("AP Biology", true)
		mcq, frq := exam.Split()
		if len(mcq) != 55 || len(frq) != 3 {
			t.Fatalf("expected 55+3 questions, got %d+%d", len(mcq), len(frq))
		}
		if exam.TimeLimitMinutes != 180 {
			t.Errorf("expected 180 minutes, got %d", exam.TimeLimitMinutes)
		}
	})
}

func TestPlannerID(t *testing.T) {
	if got := PlannerID("AP World  History: Modern"); got != "ap_world_history:_modern" {
		t.Errorf("PlannerID = %q", got)
	}
}

func TestStudyPlan(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	p := StudyPlan("AP Chemistry", now)
	if len(p.Schedule) != 12 {
		t.Fatalf("expected 12 weeks, got %d", len(p.Schedule))
	}
	if p.Schedule[0].Week != 1 || p.Schedule[11].Week != 12 {
		t.Errorf("weeks not numbered 1..12")
	}
	if p.Schedule[11].Focus != "AP Chemistry: Unit 12" {
		t.Errorf("unexpected focus %q", p.Schedule[11].Focus)
	}
	if !p.Created.Equal(now) {
		t.Errorf("expected created %v, got %v", now, p.Created)
	}
}
