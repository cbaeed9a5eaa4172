package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
)

const (
	sampleMCQ     = 5
	sampleFRQ     = 1
	fullLengthMCQ = 55
	fullLengthFRQ = 3
	planWeeks     = 12
)

var mockChoices = []string{"A", "B", "C", "D"}

// MockExam builds a locally generated mixed exam. Full-length exams carry
// 55 multiple-choice and 3 free-response questions, samples carry 5 and 1.
func MockExam(examName string, fullLength bool) model.FullExam {
	nMCQ, nFRQ, label, minutes := sampleMCQ, sampleFRQ, "Sample", 30
	if fullLength {
		nMCQ, nFRQ, label, minutes = fullLengthMCQ, fullLengthFRQ, "Full-Length", 180
	}

	mcq := make([]model.ExamQuestion, nMCQ)
	for i := range mcq {
		mcq[i] = model.ExamQuestion{
			ID:                 fmt.Sprintf("q%d", i+1),
			Kind:               model.KindMultipleChoice,
			Text:               fmt.Sprintf("%s: %s MCQ %d", examName, label, i+1),
			Options:            append([]string(nil), mockChoices...),
			CorrectOptionIndex: i % len(mockChoices),
		}
	}
	frq := make([]model.ExamQuestion, nFRQ)
	for i := range frq {
		text := fmt.Sprintf("%s: %s FRQ %d", examName, label, i+1)
		if !fullLength {
			text = fmt.Sprintf("%s: Sample Free Response Question", examName)
		}
		frq[i] = model.ExamQuestion{
			ID:   fmt.Sprintf("frq%d", i+1),
			Kind: model.KindFreeResponse,
			Text: text,
		}
	}

	return model.FullExam{
		Title:            examName + " Practice Exam",
		TimeLimitMinutes: minutes,
		Sections: []model.Section{
			{Title: "Multiple Choice", Questions: mcq},
			{Title: "Free Response", Questions: frq},
		},
	}
}

// MockGenerator serves locally mocked full exams. It satisfies the
// full-exam generator contract used by the session package.
type MockGenerator struct {
	FullLength bool
}

// GenerateFullExam returns a mocked exam for subject.
func (g MockGenerator) GenerateFullExam(_ context.Context, subject string) (model.FullExam, error) {
	return MockExam(subject, g.FullLength), nil
}

// PlannerID normalizes an exam name into a planner key: whitespace runs become
// underscores and the result is lower-cased.
func PlannerID(exam string) string {
	return strings.ToLower(strings.Join(strings.Fields(exam), "_"))
}

// StudyPlan generates the 12-week schedule for exam.
func StudyPlan(exam string, now time.Time) model.PlannerEntry {
	weeks := make([]model.StudyWeek, planWeeks)
	for i := range weeks {
		weeks[i] = model.StudyWeek{
			Week:  i + 1,
			Focus: fmt.Sprintf("%s: Unit %d", exam, min(i+1, planWeeks)),
			Goal:  "Practice problems, timed section, and review.",
		}
	}
	return model.PlannerEntry{Exam: exam, Schedule: weeks, Created: now}
}
