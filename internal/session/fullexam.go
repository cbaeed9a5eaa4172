package session

import (
	"context"
	"strings"

	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
)

// FullExamGenerator produces sectioned full-length exams. Both the gateway
// and the catalog's local mock implement it.
type FullExamGenerator interface {
	GenerateFullExam(ctx context.Context, subject string) (model.FullExam, error)
}

// Position is a resolved index of a full exam: either MCQ Index or FRQ Index.
type Position struct {
	Kind     model.QuestionKind
	Index    int
	Question model.ExamQuestion
}

// FullExam is a mixed session over a flattened exam. Positions
// [0, len(mcq)) address multiple-choice questions and the following
// len(frq) positions address free-response questions.
type FullExam struct {
	base
	gen     FullExamGenerator
	title   string
	minutes int
	mcq     []model.ExamQuestion
	frq     []model.ExamQuestion
	choices []int
	texts   []string
	index   int
}

// FullExamSnapshot is an immutable copy of a FullExam session.
type FullExamSnapshot struct {
	ID               string              `json:"id"`
	ExamID           string              `json:"examId"`
	Subject          string              `json:"subject"`
	Title            string              `json:"examTitle"`
	TimeLimitMinutes int                 `json:"timeLimitMinutes"`
	Status           Status              `json:"status"`
	InFlight         bool                `json:"inFlight"`
	Error            string              `json:"error,omitempty"`
	Index            int                 `json:"index"`
	Total            int                 `json:"total"`
	MCQCount         int                 `json:"mcqCount"`
	FRQCount         int                 `json:"frqCount"`
	Current          *model.ExamQuestion `json:"current,omitempty"`
	Selected         int                 `json:"selected"`
	Text             string              `json:"text"`
	Choices          []int               `json:"choices"`
	Texts            []string            `json:"texts"`
	Score            int                 `json:"score"`
	Percentage       int                 `json:"percentage"`
}

// IsMCQ reports whether the current position is a multiple-choice question.
func (s FullExamSnapshot) IsMCQ() bool {
	return s.Index < s.MCQCount
}

// Last reports whether the current position is the final one.
func (s FullExamSnapshot) Last() bool {
	return s.Index == s.Total-1
}

// CanJump reports whether a jump to position i would be accepted.
func (s FullExamSnapshot) CanJump(i int) bool {
	if i < 0 || i >= s.Total {
		return false
	}
	switch s.Status {
	case StatusSubmitted:
		return true
	case StatusTaking:
		for j := s.Index; j < i; j++ {
			if !s.answered(j) {
				return false
			}
		}
		return true
	}
	return false
}

func (s FullExamSnapshot) answered(i int) bool {
	if i < s.MCQCount {
		return s.Choices[i] != unanswered
	}
	return strings.TrimSpace(s.Texts[i-s.MCQCount]) != ""
}

// NewFullExam creates an idle full-exam session.
func NewFullExam(exam model.APExam, gen FullExamGenerator, rec Recorder) *FullExam {
	e := &FullExam{gen: gen}
	e.setup(exam, model.AttemptFullExam, rec)
	return e
}

// Start generates the exam. It is allowed from idle or error.
func (e *FullExam) Start(ctx context.Context) error {
	return e.generate(ctx, StatusIdle, StatusError)
}

// Retry regenerates the exam after a failure.
func (e *FullExam) Retry(ctx context.Context) error {
	return e.generate(ctx, StatusError)
}

func (e *FullExam) generate(ctx context.Context, from ...Status) error {
	e.mu.Lock()
	if err := e.begin(StatusGenerating, from...); err != nil {
		e.mu.Unlock()
		return err
	}
	subject := e.exam.Title
	e.mu.Unlock()

	exam, err := e.gen.GenerateFullExam(ctx, subject)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	var mcq, frq []model.ExamQuestion
	if err == nil {
		mcq, frq = exam.Split()
		if len(mcq)+len(frq) == 0 {
			err = &llm.ServiceError{Op: "full_exam", Msg: llm.ErrEmptyExam.Error(), Err: llm.ErrEmptyExam}
		}
	}
	if err != nil {
		e.mcq, e.frq, e.choices, e.texts = nil, nil, nil, nil
		e.fail(err)
		return err
	}
	e.title, e.minutes = exam.Title, exam.TimeLimitMinutes
	e.mcq, e.frq = mcq, frq
	e.choices = make([]int, len(mcq))
	for i := range e.choices {
		e.choices[i] = unanswered
	}
	e.texts = make([]string, len(frq))
	e.index = 0
	e.setStatus(StatusTaking)
	return nil
}

func (e *FullExam) total() int {
	return len(e.mcq) + len(e.frq)
}

// Resolve maps a flat position to its question.
func (e *FullExam) Resolve(i int) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(i)
}

func (e *FullExam) resolveLocked(i int) (Position, error) {
	if err := clampIndex(i, e.total()); err != nil {
		return Position{}, err
	}
	if i < len(e.mcq) {
		return Position{Kind: model.KindMultipleChoice, Index: i, Question: e.mcq[i]}, nil
	}
	j := i - len(e.mcq)
	return Position{Kind: model.KindFreeResponse, Index: j, Question: e.frq[j]}, nil
}

func (e *FullExam) answeredLocked(i int) bool {
	if i < len(e.mcq) {
		return e.choices[i] != unanswered
	}
	return strings.TrimSpace(e.texts[i-len(e.mcq)]) != ""
}

// SelectChoice records a choice for the current multiple-choice question.
func (e *FullExam) SelectChoice(choice int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	if e.index >= len(e.mcq) {
		return ErrInvalidState
	}
	if choice < 0 || choice >= len(e.mcq[e.index].Options) {
		return ErrOutOfRange
	}
	e.choices[e.index] = choice
	return nil
}

// SetText records the answer to the current free-response question.
func (e *FullExam) SetText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.mutableLocked(); err != nil {
		return err
	}
	if e.index < len(e.mcq) {
		return ErrInvalidState
	}
	e.texts[e.index-len(e.mcq)] = text
	return nil
}

func (e *FullExam) mutableLocked() error {
	switch {
	case e.status.Terminal():
		return ErrReadOnly
	case e.status != StatusTaking:
		return ErrInvalidState
	}
	return nil
}

// Advance moves to the next position. While taking, the current position
// must be answered and advancing from the last one submits the exam.
func (e *FullExam) Advance(ctx context.Context) error {
	e.mu.Lock()
	switch e.status {
	case StatusTaking:
		if !e.answeredLocked(e.index) {
			e.mu.Unlock()
			return ErrUnanswered
		}
		if e.index < e.total()-1 {
			e.index++
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		return e.Submit(ctx)
	case StatusSubmitted:
		defer e.mu.Unlock()
		if err := clampIndex(e.index+1, e.total()); err != nil {
			return err
		}
		e.index++
		return nil
	default:
		e.mu.Unlock()
		return ErrInvalidState
	}
}

// Back moves to the previous position.
func (e *FullExam) Back() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jumpLocked(e.index - 1)
}

// Jump moves to position i.
func (e *FullExam) Jump(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jumpLocked(i)
}

// jumpLocked moves to position i. While taking, moving forward requires an
// answer for every position that is skipped over.
func (e *FullExam) jumpLocked(i int) error {
	if e.status != StatusTaking && e.status != StatusSubmitted {
		return ErrInvalidState
	}
	if err := clampIndex(i, e.total()); err != nil {
		return err
	}
	if e.status == StatusTaking {
		for j := e.index; j < i; j++ {
			if !e.answeredLocked(j) {
				return ErrUnanswered
			}
		}
	}
	e.index = i
	return nil
}

// Submit ends the exam. Unanswered questions score zero.
func (e *FullExam) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.status == StatusSubmitted {
		e.mu.Unlock()
		return ErrReadOnly
	}
	if e.status != StatusTaking {
		e.mu.Unlock()
		return ErrInvalidState
	}
	e.setStatus(StatusSubmitted)
	score, total := e.scoreLocked(), len(e.mcq)
	e.mu.Unlock()

	e.record(ctx, model.Attempt{Score: score, Total: total})
	return nil
}

// Score counts correctly answered multiple-choice questions.
func (e *FullExam) Score() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoreLocked()
}

func (e *FullExam) scoreLocked() int {
	score := 0
	for i, q := range e.mcq {
		if e.choices[i] == q.CorrectOptionIndex {
			score++
		}
	}
	return score
}

// Snapshot returns a copy of the session state.
func (e *FullExam) Snapshot() FullExamSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := FullExamSnapshot{
		ID:               e.id,
		ExamID:           e.exam.ID,
		Subject:          e.exam.Title,
		Title:            e.title,
		TimeLimitMinutes: e.minutes,
		Status:           e.status,
		InFlight:         e.inFlight,
		Error:            e.errMsg,
		Index:            e.index,
		Total:            e.total(),
		MCQCount:         len(e.mcq),
		FRQCount:         len(e.frq),
		Selected:         unanswered,
		Choices:          append([]int(nil), e.choices...),
		Texts:            append([]string(nil), e.texts...),
	}
	if pos, err := e.resolveLocked(e.index); err == nil {
		q := pos.Question
		q.Options = append([]string(nil), q.Options...)
		s.Current = &q
		if pos.Kind == model.KindMultipleChoice {
			s.Selected = e.choices[pos.Index]
		} else {
			s.Text = e.texts[pos.Index]
		}
	}
	if e.status != StatusSubmitted {
		if s.Current != nil {
			s.Current.CorrectOptionIndex = unanswered
			s.Current.Explanation = ""
		}
		return s
	}
	s.Score = e.scoreLocked()
	s.Percentage = percentage(s.Score, s.MCQCount)
	return s
}
