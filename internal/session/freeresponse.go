package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/intelligrade/intelligrade/internal/model"
)

// FreeResponseGenerator produces and grades free-response questions.
type FreeResponseGenerator interface {
	GenerateFreeResponse(ctx context.Context, subject string, qt model.QuestionType) (model.FreeResponseQuestion, error)
	GradeFreeResponse(ctx context.Context, subject, prompt, answer string, qt model.QuestionType) (string, error)
}

// FreeResponse is a single SAQ, DBQ, LEQ or FRQ session.
type FreeResponse struct {
	base
	gen      FreeResponseGenerator
	qtype    model.QuestionType
	question *model.FreeResponseQuestion
	answer   string
	feedback string
}

// FreeResponseSnapshot is an immutable copy of a FreeResponse session.
type FreeResponseSnapshot struct {
	ID       string                      `json:"id"`
	ExamID   string                      `json:"examId"`
	Subject  string                      `json:"subject"`
	Type     model.QuestionType          `json:"type"`
	Status   Status                      `json:"status"`
	InFlight bool                        `json:"inFlight"`
	Error    string                      `json:"error,omitempty"`
	Question *model.FreeResponseQuestion `json:"question,omitempty"`
	Answer   string                      `json:"answer"`
	Feedback string                      `json:"feedback,omitempty"`
}

// NewFreeResponse creates an idle free-response session of type qt.
func NewFreeResponse(exam model.APExam, qt model.QuestionType, gen FreeResponseGenerator, rec Recorder) (*FreeResponse, error) {
	if !qt.IsFreeResponse() {
		return nil, fmt.Errorf("not a free-response type: %q", qt)
	}
	f := &FreeResponse{gen: gen, qtype: qt}
	f.setup(exam, model.AttemptFreeResponse, rec)
	return f, nil
}

// Type returns the question type of the session.
func (f *FreeResponse) Type() model.QuestionType {
	return f.qtype
}

// Start generates the question. It is allowed from idle or error.
func (f *FreeResponse) Start(ctx context.Context) error {
	return f.generate(ctx, StatusIdle, StatusError)
}

// Retry regenerates the question from scratch after a failure, discarding
// any previous question and answer.
func (f *FreeResponse) Retry(ctx context.Context) error {
	return f.generate(ctx, StatusError)
}

func (f *FreeResponse) generate(ctx context.Context, from ...Status) error {
	f.mu.Lock()
	if err := f.begin(StatusGenerating, from...); err != nil {
		f.mu.Unlock()
		return err
	}
	f.question, f.answer, f.feedback = nil, "", ""
	subject, qt := f.exam.Title, f.qtype
	f.mu.Unlock()

	q, err := f.gen.GenerateFreeResponse(ctx, subject, qt)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if err != nil {
		f.fail(err)
		return err
	}
	f.question = &q
	f.setStatus(StatusAnswering)
	return nil
}

// SetAnswer replaces the draft answer.
func (f *FreeResponse) SetAnswer(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.status.Terminal():
		return ErrReadOnly
	case f.inFlight:
		return ErrBusy
	case f.status != StatusAnswering:
		return ErrInvalidState
	}
	f.answer = text
	return nil
}

// Submit sends the answer for grading. On success the session moves to
// review with the grader's feedback unchanged; on failure it moves to error.
func (f *FreeResponse) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.status == StatusAnswering && !f.inFlight && strings.TrimSpace(f.answer) == "" {
		f.mu.Unlock()
		return ErrEmptyAnswer
	}
	if err := f.begin(StatusGrading, StatusAnswering); err != nil {
		f.mu.Unlock()
		return err
	}
	subject, prompt, answer, qt := f.exam.Title, f.question.Prompt, f.answer, f.qtype
	f.mu.Unlock()

	feedback, err := f.gen.GradeFreeResponse(ctx, subject, prompt, answer, qt)

	f.mu.Lock()
	f.inFlight = false
	if err != nil {
		f.fail(err)
		f.mu.Unlock()
		return err
	}
	f.feedback = feedback
	f.setStatus(StatusReview)
	f.mu.Unlock()

	f.record(ctx, model.Attempt{Feedback: feedback})
	return nil
}

// Snapshot returns a copy of the session state.
func (f *FreeResponse) Snapshot() FreeResponseSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := FreeResponseSnapshot{
		ID:       f.id,
		ExamID:   f.exam.ID,
		Subject:  f.exam.Title,
		Type:     f.qtype,
		Status:   f.status,
		InFlight: f.inFlight,
		Error:    f.errMsg,
		Answer:   f.answer,
		Feedback: f.feedback,
	}
	if f.question != nil {
		q := *f.question
		q.Documents = append([]model.Document(nil), q.Documents...)
		s.Question = &q
	}
	return s
}
