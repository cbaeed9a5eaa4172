package session

import (
	"context"

	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
)

// unanswered marks a position with no recorded choice.
const unanswered = -1

// PracticeSetGenerator produces multiple-choice practice sets.
type PracticeSetGenerator interface {
	GeneratePracticeSet(ctx context.Context, subject string) ([]model.PracticeQuestion, error)
}

// Practice is a multiple-choice practice session.
type Practice struct {
	base
	gen       PracticeSetGenerator
	questions []model.PracticeQuestion
	answers   []int
	index     int
}

// PracticeSnapshot is an immutable copy of a Practice session for views.
type PracticeSnapshot struct {
	ID         string                   `json:"id"`
	ExamID     string                   `json:"examId"`
	Subject    string                   `json:"subject"`
	Status     Status                   `json:"status"`
	InFlight   bool                     `json:"inFlight"`
	Error      string                   `json:"error,omitempty"`
	Index      int                      `json:"index"`
	Total      int                      `json:"total"`
	Question   *model.PracticeQuestion  `json:"question,omitempty"`
	Selected   int                      `json:"selected"`
	Answers    []int                    `json:"answers"`
	Score      int                      `json:"score"`
	Percentage int                      `json:"percentage"`
	Review     []model.PracticeQuestion `json:"review,omitempty"`
}

// Answered reports whether the current question has a recorded choice.
func (s PracticeSnapshot) Answered() bool {
	return s.Selected != unanswered
}

// Last reports whether the current question is the final one.
func (s PracticeSnapshot) Last() bool {
	return s.Index == s.Total-1
}

// NewPractice creates an idle MCQ session for exam.
func NewPractice(exam model.APExam, gen PracticeSetGenerator, rec Recorder) *Practice {
	p := &Practice{gen: gen}
	p.setup(exam, model.AttemptMCQ, rec)
	return p
}

// Start generates the question set. It is allowed from idle or error.
func (p *Practice) Start(ctx context.Context) error {
	return p.generate(ctx, StatusIdle, StatusError)
}

// Retry regenerates the question set after a failure.
func (p *Practice) Retry(ctx context.Context) error {
	return p.generate(ctx, StatusError)
}

func (p *Practice) generate(ctx context.Context, from ...Status) error {
	p.mu.Lock()
	if err := p.begin(StatusGenerating, from...); err != nil {
		p.mu.Unlock()
		return err
	}
	subject := p.exam.Title
	p.mu.Unlock()

	questions, err := p.gen.GeneratePracticeSet(ctx, subject)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if err == nil && len(questions) == 0 {
		err = &llm.ServiceError{Op: "practice_set", Msg: llm.ErrEmptyExam.Error(), Err: llm.ErrEmptyExam}
	}
	if err != nil {
		p.questions, p.answers = nil, nil
		p.fail(err)
		return err
	}
	p.questions = questions
	p.answers = make([]int, len(questions))
	for i := range p.answers {
		p.answers[i] = unanswered
	}
	p.index = 0
	p.setStatus(StatusTaking)
	return nil
}

// SelectAnswer records choice for the current question. The last write wins.
func (p *Practice) SelectAnswer(choice int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.status.Terminal():
		return ErrReadOnly
	case p.status != StatusTaking:
		return ErrInvalidState
	}
	if choice < 0 || choice >= len(p.questions[p.index].Options) {
		return ErrOutOfRange
	}
	p.answers[p.index] = choice
	return nil
}

// Advance moves to the next question. While taking, the current question
// must be answered and advancing from the last question submits the set.
// After submission it only navigates.
func (p *Practice) Advance(ctx context.Context) error {
	p.mu.Lock()
	switch p.status {
	case StatusTaking:
		if p.answers[p.index] == unanswered {
			p.mu.Unlock()
			return ErrUnanswered
		}
		if p.index < len(p.questions)-1 {
			p.index++
			p.mu.Unlock()
			return nil
		}
		p.setStatus(StatusSubmitted)
		score, total := p.scoreLocked(), len(p.questions)
		p.mu.Unlock()
		p.record(ctx, model.Attempt{Score: score, Total: total})
		return nil
	case StatusSubmitted:
		defer p.mu.Unlock()
		if err := clampIndex(p.index+1, len(p.questions)); err != nil {
			return err
		}
		p.index++
		return nil
	default:
		p.mu.Unlock()
		return ErrInvalidState
	}
}

// Back moves to the previous question.
func (p *Practice) Back() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jumpLocked(p.index - 1)
}

// Jump moves to question i.
func (p *Practice) Jump(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jumpLocked(i)
}

// jumpLocked moves to question i. While taking, moving forward requires an
// answer for every question that is skipped over.
func (p *Practice) jumpLocked(i int) error {
	if p.status != StatusTaking && p.status != StatusSubmitted {
		return ErrInvalidState
	}
	if err := clampIndex(i, len(p.questions)); err != nil {
		return err
	}
	if p.status == StatusTaking {
		for j := p.index; j < i; j++ {
			if p.answers[j] == unanswered {
				return ErrUnanswered
			}
		}
	}
	p.index = i
	return nil
}

// Score counts the questions answered correctly.
func (p *Practice) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scoreLocked()
}

// Percentage returns the score as a rounded percentage of the set size.
func (p *Practice) Percentage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return percentage(p.scoreLocked(), len(p.questions))
}

func (p *Practice) scoreLocked() int {
	score := 0
	for i, q := range p.questions {
		if p.answers[i] == q.CorrectAnswerIndex {
			score++
		}
	}
	return score
}

// Snapshot returns a copy of the session state.
func (p *Practice) Snapshot() PracticeSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := PracticeSnapshot{
		ID:       p.id,
		ExamID:   p.exam.ID,
		Subject:  p.exam.Title,
		Status:   p.status,
		InFlight: p.inFlight,
		Error:    p.errMsg,
		Index:    p.index,
		Total:    len(p.questions),
		Selected: unanswered,
		Answers:  append([]int(nil), p.answers...),
	}
	if len(p.questions) > 0 {
		q := copyPractice(p.questions[p.index])
		s.Question = &q
		s.Selected = p.answers[p.index]
	}
	if p.status != StatusSubmitted {
		// Correctness stays hidden until the set is submitted.
		if s.Question != nil {
			s.Question.CorrectAnswerIndex = unanswered
			s.Question.Explanation = ""
		}
		return s
	}
	s.Score = p.scoreLocked()
	s.Percentage = percentage(s.Score, s.Total)
	s.Review = make([]model.PracticeQuestion, len(p.questions))
	for i, q := range p.questions {
		s.Review[i] = copyPractice(q)
	}
	return s
}

func copyPractice(q model.PracticeQuestion) model.PracticeQuestion {
	q.Options = append([]string(nil), q.Options...)
	return q
}
