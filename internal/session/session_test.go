package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intelligrade/intelligrade/internal/catalog"
	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
)

var testExam = model.APExam{ID: "ap-biology", Title: "AP Biology"}

// fakeGen implements every generator interface. When release is non-nil,
// generation blocks until it is closed.
type fakeGen struct {
	mu       sync.Mutex
	calls    int
	started  chan struct{}
	release  chan struct{}
	set      []model.PracticeQuestion
	frq      model.FreeResponseQuestion
	feedback string
	err      error
	gradeErr error
}

func (f *fakeGen) enter() error {
	f.mu.Lock()
	f.calls++
	started, release, err := f.started, f.release, f.err
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeGen) GeneratePracticeSet(context.Context, string) ([]model.PracticeQuestion, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.set, nil
}

func (f *fakeGen) GenerateFreeResponse(_ context.Context, _ string, qt model.QuestionType) (model.FreeResponseQuestion, error) {
	if err := f.enter(); err != nil {
		return model.FreeResponseQuestion{}, err
	}
	q := f.frq
	q.Type = qt
	return q, nil
}

func (f *fakeGen) GradeFreeResponse(context.Context, string, string, string, model.QuestionType) (string, error) {
	if f.gradeErr != nil {
		return "", f.gradeErr
	}
	return f.feedback, nil
}

func (f *fakeGen) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []model.Attempt
	err      error
}

func (r *fakeRecorder) RecordAttempt(_ context.Context, a model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return r.err
}

func questions(correct ...int) []model.PracticeQuestion {
	qs := make([]model.PracticeQuestion, len(correct))
	for i, c := range correct {
		qs[i] = model.PracticeQuestion{
			Question:           "Q",
			Options:            []string{"a", "b", "c", "d"},
			CorrectAnswerIndex: c,
			Explanation:        "E",
		}
	}
	return qs
}

func startPractice(t *testing.T, gen *fakeGen, rec Recorder) *Practice {
	t.Helper()
	p := NewPractice(testExam, gen, rec)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return p
}

func TestPracticeScore(t *testing.T) {
	p := startPractice(t, &fakeGen{set: questions(2, 0)}, nil)
	ctx := context.Background()

	if err := p.SelectAnswer(2); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := p.Advance(ctx); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := p.SelectAnswer(1); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := p.Advance(ctx); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	snap := p.Snapshot()
	if snap.Status != StatusSubmitted {
		t.Fatalf("status = %s, want submitted", snap.Status)
	}
	for i := 0; i < 3; i++ {
		if got := p.Score(); got != 1 {
			t.Errorf("Score() = %d, want 1", got)
		}
	}
	if got := p.Percentage(); got != 50 {
		t.Errorf("Percentage() = %d, want 50", got)
	}
	if len(snap.Review) != 2 {
		t.Errorf("review should list all questions once submitted")
	}
}

func TestPracticeLastWriteWins(t *testing.T) {
	p := startPractice(t, &fakeGen{set: questions(3)}, nil)
	for _, c := range []int{0, 1, 3} {
		if err := p.SelectAnswer(c); err != nil {
			t.Fatalf("SelectAnswer(%d): %v", c, err)
		}
	}
	if got := p.Snapshot().Selected; got != 3 {
		t.Errorf("selected = %d, want 3", got)
	}
	if p.Score() != 1 {
		t.Error("last choice should count")
	}
}

func TestPracticeNavigation(t *testing.T) {
	p := startPractice(t, &fakeGen{set: questions(0, 1, 2)}, nil)
	ctx := context.Background()

	if err := p.Advance(ctx); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Advance without answer: got %v, want ErrUnanswered", err)
	}
	if p.Snapshot().Index != 0 {
		t.Fatal("index should not move while unanswered")
	}
	if err := p.Back(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Back at 0: got %v, want ErrOutOfRange", err)
	}
	if err := p.Jump(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Jump(3): got %v, want ErrOutOfRange", err)
	}
	if err := p.Jump(2); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Jump(2) past unanswered: got %v, want ErrUnanswered", err)
	}
	if p.Snapshot().Index != 0 {
		t.Fatal("Jump past an unanswered question moved the index")
	}
	if err := p.SelectAnswer(0); err != nil {
		t.Fatal(err)
	}
	if err := p.Jump(2); !errors.Is(err, ErrUnanswered) {
		t.Errorf("Jump(2) with Q2 unanswered: got %v, want ErrUnanswered", err)
	}
	if err := p.Jump(1); err != nil {
		t.Fatalf("Jump(1): %v", err)
	}
	if err := p.Jump(0); err != nil {
		t.Fatalf("Jump back: %v", err)
	}
	if err := p.Jump(1); err != nil {
		t.Fatal(err)
	}
	if err := p.SelectAnswer(1); err != nil {
		t.Fatal(err)
	}
	if err := p.Jump(2); err != nil {
		t.Fatalf("Jump(2) with earlier answers: %v", err)
	}
	if err := p.SelectAnswer(2); err != nil {
		t.Fatal(err)
	}
	if err := p.Advance(ctx); err != nil {
		t.Fatal(err)
	}
	snap := p.Snapshot()
	if snap.Status != StatusSubmitted || snap.Index != 2 {
		t.Fatalf("advancing from last: status %s index %d", snap.Status, snap.Index)
	}

	if err := p.SelectAnswer(0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SelectAnswer after submit: got %v, want ErrReadOnly", err)
	}
	if err := p.Jump(0); err != nil {
		t.Errorf("review navigation should be allowed: %v", err)
	}
	if err := p.Advance(ctx); err != nil {
		t.Errorf("review Advance: %v", err)
	}
	if got := p.Snapshot().Index; got != 1 {
		t.Errorf("index = %d, want 1", got)
	}
	if got := p.Snapshot().Answers; got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("answers = %v", got)
	}
}

func TestPracticeSnapshotHidesAnswers(t *testing.T) {
	p := startPractice(t, &fakeGen{set: questions(1)}, nil)
	if err := p.SelectAnswer(1); err != nil {
		t.Fatal(err)
	}
	snap := p.Snapshot()
	if snap.Question.CorrectAnswerIndex != unanswered || snap.Question.Explanation != "" {
		t.Errorf("taking snapshot leaks the answer: %+v", snap.Question)
	}
	if snap.Score != 0 || snap.Review != nil {
		t.Errorf("taking snapshot has score %d review %v", snap.Score, snap.Review)
	}

	if err := p.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap = p.Snapshot()
	if snap.Question.CorrectAnswerIndex != 1 || snap.Question.Explanation != "E" || snap.Score != 1 {
		t.Errorf("submitted snapshot = %+v", snap)
	}
}

func TestPracticeSelectOutOfRange(t *testing.T) {
	p := startPractice(t, &fakeGen{set: questions(0)}, nil)
	for _, c := range []int{-1, 4} {
		if err := p.SelectAnswer(c); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SelectAnswer(%d): got %v, want ErrOutOfRange", c, err)
		}
	}
}

func TestPracticeGenerationFailure(t *testing.T) {
	gen := &fakeGen{err: &llm.ServiceError{Op: "practice_set", Msg: "AI service unavailable"}}
	p := NewPractice(testExam, gen, nil)
	ctx := context.Background()

	if err := p.Start(ctx); !llm.IsServiceError(err) {
		t.Fatalf("Start: got %v, want ServiceError", err)
	}
	snap := p.Snapshot()
	if snap.Status != StatusError || snap.Error != "AI service unavailable" {
		t.Fatalf("snapshot = %+v", snap)
	}

	gen.mu.Lock()
	gen.err, gen.set = nil, questions(1)
	gen.mu.Unlock()
	if err := p.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if snap := p.Snapshot(); snap.Status != StatusTaking || snap.Error != "" {
		t.Errorf("after retry: %+v", snap)
	}
	if err := p.Retry(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Retry outside error: got %v, want ErrInvalidState", err)
	}
}

func TestPracticeEmptySet(t *testing.T) {
	p := NewPractice(testExam, &fakeGen{set: nil}, nil)
	err := p.Start(context.Background())
	if !llm.IsServiceError(err) || !errors.Is(err, llm.ErrEmptyExam) {
		t.Fatalf("Start with empty set: got %v", err)
	}
	if p.Snapshot().Status != StatusError {
		t.Error("empty set should leave the session in error")
	}
}

func TestPracticeBusy(t *testing.T) {
	gen := &fakeGen{set: questions(0), started: make(chan struct{}), release: make(chan struct{})}
	p := NewPractice(testExam, gen, nil)

	done := make(chan error, 1)
	go func() { done <- p.Start(context.Background()) }()
	<-gen.started

	if snap := p.Snapshot(); !snap.InFlight || snap.Status != StatusGenerating {
		t.Errorf("during generation: %+v", snap)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start: got %v, want ErrBusy", err)
	}
	close(gen.release)
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := gen.callCount(); n != 1 {
		t.Errorf("generator called %d times, want 1", n)
	}
}

func TestPracticeRecordsAttempt(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	p := startPractice(t, &fakeGen{set: questions(1)}, rec)
	if err := p.SelectAnswer(1); err != nil {
		t.Fatal(err)
	}
	if err := p.Advance(context.Background()); err != nil {
		t.Fatalf("Advance should ignore recorder failures: %v", err)
	}
	if len(rec.attempts) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(rec.attempts))
	}
	a := rec.attempts[0]
	if a.Score != 1 || a.Total != 1 || a.Kind != model.AttemptMCQ || a.SessionID != p.ID() || a.ExamID != "ap-biology" {
		t.Errorf("attempt = %+v", a)
	}
}

func TestFreeResponseFlow(t *testing.T) {
	feedback := "**Strengths**\n- Good.\n\n**Suggested Score**: 3/4"
	rec := &fakeRecorder{}
	gen := &fakeGen{frq: model.FreeResponseQuestion{Prompt: "Explain."}, feedback: feedback}
	f, err := NewFreeResponse(testExam, model.TypeSAQ, gen, rec)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := f.SetAnswer("x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetAnswer before start: got %v", err)
	}
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.Snapshot().Status != StatusAnswering {
		t.Fatal("expected answering")
	}
	if err := f.SetAnswer("   "); err != nil {
		t.Fatal(err)
	}
	if err := f.Submit(ctx); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("Submit blank: got %v, want ErrEmptyAnswer", err)
	}
	if err := f.SetAnswer("Because of diffusion."); err != nil {
		t.Fatal(err)
	}
	if err := f.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := f.Snapshot()
	if snap.Status != StatusReview || snap.Feedback != feedback {
		t.Errorf("snapshot = %+v", snap)
	}
	if err := f.SetAnswer("changed"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetAnswer in review: got %v, want ErrReadOnly", err)
	}
	if len(rec.attempts) != 1 || rec.attempts[0].Feedback != feedback {
		t.Errorf("attempts = %+v", rec.attempts)
	}
}

func TestFreeResponseGradingFailure(t *testing.T) {
	gen := &fakeGen{
		frq:      model.FreeResponseQuestion{Prompt: "Explain."},
		gradeErr: &llm.ServiceError{Op: "grade", Msg: "empty grading response"},
	}
	f, err := NewFreeResponse(testExam, model.TypeFRQ, gen, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_ = f.SetAnswer("answer")
	if err := f.Submit(ctx); err == nil {
		t.Fatal("expected grading error")
	}
	snap := f.Snapshot()
	if snap.Status != StatusError || snap.Error != "empty grading response" {
		t.Fatalf("snapshot = %+v", snap)
	}

	gen.gradeErr = nil
	if err := f.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if snap := f.Snapshot(); snap.Status != StatusAnswering || snap.Answer != "" {
		t.Errorf("retry should regenerate from scratch: %+v", snap)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.callCount())
	}
}

func TestNewFreeResponseRejectsMCQ(t *testing.T) {
	if _, err := NewFreeResponse(testExam, model.TypeMCQ, &fakeGen{}, nil); err == nil {
		t.Error("expected error for MCQ type")
	}
}

func startMock(t *testing.T) *FullExam {
	t.Helper()
	e := NewFullExam(testExam, catalog.MockGenerator{}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e
}

func TestFullExamResolve(t *testing.T) {
	e := startMock(t)
	snap := e.Snapshot()
	if snap.MCQCount != 5 || snap.FRQCount != 1 || snap.Total != 6 {
		t.Fatalf("counts = %d/%d/%d", snap.MCQCount, snap.FRQCount, snap.Total)
	}

	tests := []struct {
		pos   int
		kind  model.QuestionKind
		index int
	}{
		{0, model.KindMultipleChoice, 0},
		{4, model.KindMultipleChoice, 4},
		{5, model.KindFreeResponse, 0},
	}
	for _, tt := range tests {
		got, err := e.Resolve(tt.pos)
		if err != nil {
			t.Fatalf("Resolve(%d): %v", tt.pos, err)
		}
		if got.Kind != tt.kind || got.Index != tt.index {
			t.Errorf("Resolve(%d) = %v %d, want %v %d", tt.pos, got.Kind, got.Index, tt.kind, tt.index)
		}
	}
	if _, err := e.Resolve(6); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Resolve(6): got %v", err)
	}
}

func TestFullExamFlow(t *testing.T) {
	e := startMock(t)
	ctx := context.Background()

	if err := e.SetText("x"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetText on MCQ: got %v", err)
	}
	// mock correct index is i%4
	for i := 0; i < 5; i++ {
		if err := e.SelectChoice(i % 4); err != nil {
			t.Fatalf("SelectChoice at %d: %v", i, err)
		}
		if err := e.Advance(ctx); err != nil {
			t.Fatalf("Advance at %d: %v", i, err)
		}
	}

	snap := e.Snapshot()
	if snap.IsMCQ() || snap.Index != 5 {
		t.Fatalf("expected free-response position 5, got %d", snap.Index)
	}
	if err := e.SelectChoice(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SelectChoice on FRQ: got %v", err)
	}
	if err := e.Advance(ctx); !errors.Is(err, ErrUnanswered) {
		t.Errorf("Advance with blank FRQ: got %v", err)
	}
	if err := e.SetText("My essay."); err != nil {
		t.Fatal(err)
	}
	if err := e.Advance(ctx); err != nil {
		t.Fatal(err)
	}

	snap = e.Snapshot()
	if snap.Status != StatusSubmitted || snap.Score != 5 || snap.Percentage != 100 {
		t.Errorf("after submit: status %s score %d pct %d", snap.Status, snap.Score, snap.Percentage)
	}
	if err := e.SetText("edit"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetText after submit: got %v", err)
	}
	if err := e.Submit(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("second Submit: got %v", err)
	}
	if err := e.Jump(0); err != nil {
		t.Errorf("review Jump: %v", err)
	}
}

func TestFullExamJumpRequiresAnswers(t *testing.T) {
	e := startMock(t)
	last := e.Snapshot().Total - 1

	if err := e.Jump(last); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Jump(%d) past unanswered: got %v, want ErrUnanswered", last, err)
	}
	if snap := e.Snapshot(); snap.CanJump(1) || !snap.CanJump(0) {
		t.Error("CanJump should only allow the current position before any answer")
	}
	if cur := e.Snapshot().Current; cur.CorrectOptionIndex != unanswered || cur.Explanation != "" {
		t.Errorf("taking snapshot leaks the answer: %+v", cur)
	}
	for i := 0; i < last; i++ {
		if err := e.Jump(i); err != nil {
			t.Fatalf("Jump(%d): %v", i, err)
		}
		if err := e.SelectChoice(0); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Jump(0); err != nil {
		t.Fatal(err)
	}
	if !e.Snapshot().CanJump(last) {
		t.Error("CanJump(last) = false with every earlier answer")
	}
	if err := e.Jump(last); err != nil {
		t.Errorf("Jump(%d) with every earlier answer: %v", last, err)
	}
}

func TestFullExamEarlySubmit(t *testing.T) {
	e := startMock(t)
	if err := e.SelectChoice(1); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := e.Score(); got != 0 {
		t.Errorf("Score() = %d, want 0", got)
	}
}

type fixedExam model.FullExam

func (f fixedExam) GenerateFullExam(context.Context, string) (model.FullExam, error) {
	return model.FullExam(f), nil
}

func TestFullExamEmpty(t *testing.T) {
	e := NewFullExam(testExam, fixedExam{Title: "Empty"}, nil)
	if err := e.Start(context.Background()); !errors.Is(err, llm.ErrEmptyExam) {
		t.Fatalf("Start: got %v", err)
	}
	if snap := e.Snapshot(); snap.Status != StatusError || !strings.Contains(snap.Error, "empty") {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(0)
	p := NewPractice(testExam, &fakeGen{}, nil)
	e := NewFullExam(testExam, catalog.MockGenerator{}, nil)
	r.Add(p)
	r.Add(e)

	if r.Len() != 2 || p.ID() == e.ID() {
		t.Fatalf("Len = %d", r.Len())
	}
	got, ok := r.Get(p.ID())
	if !ok || got.(*Practice) != p {
		t.Error("Get should return the stored session")
	}
	r.Remove(p.ID())
	r.Remove("unknown")
	if _, ok := r.Get(p.ID()); ok || r.Len() != 1 {
		t.Error("Remove should destroy the session")
	}
}

func TestRegistryPrunesIdle(t *testing.T) {
	r := NewRegistry(time.Hour)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	stale := NewPractice(testExam, &fakeGen{}, nil)
	used := NewPractice(testExam, &fakeGen{}, nil)
	r.Add(stale)
	r.Add(used)

	clock = clock.Add(40 * time.Minute)
	if _, ok := r.Get(used.ID()); !ok {
		t.Fatal("session should still be live")
	}
	clock = clock.Add(30 * time.Minute)

	if n := r.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, ok := r.Get(stale.ID()); ok {
		t.Error("idle session should be pruned")
	}
	if _, ok := r.Get(used.ID()); !ok {
		t.Error("recently used session should survive")
	}

	// Lookups prune on their own once the interval has passed.
	clock = clock.Add(2 * time.Hour)
	if _, ok := r.Get(used.ID()); ok || r.Len() != 0 {
		t.Errorf("Len = %d after the idle timeout", r.Len())
	}
}

func TestRegistryWithoutTimeout(t *testing.T) {
	r := NewRegistry(0)
	clock := time.Now()
	r.now = func() time.Time { return clock }
	p := NewPractice(testExam, &fakeGen{}, nil)
	r.Add(p)
	clock = clock.Add(1000 * time.Hour)
	if n := r.Prune(); n != 0 || r.Len() != 1 {
		t.Errorf("Prune() = %d, Len = %d", n, r.Len())
	}
}
