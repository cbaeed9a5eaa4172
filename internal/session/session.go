// Package session implements the practice session state machines: MCQ sets,
// single free-response questions and full-length exams. Sessions are shared
// between HTTP handlers, so every session guards its state with a mutex and
// performs gateway calls outside the lock, marked by an in-flight flag.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/metrics"
	"github.com/intelligrade/intelligrade/internal/model"
)

var (
	ErrBusy         = errors.New("a request is already in progress")
	ErrReadOnly     = errors.New("answers can no longer be changed")
	ErrUnanswered   = errors.New("answer the current question first")
	ErrEmptyAnswer  = errors.New("answer must not be empty")
	ErrOutOfRange   = errors.New("position or choice out of range")
	ErrInvalidState = errors.New("operation not allowed in the current state")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusTaking     Status = "taking"
	StatusAnswering  Status = "answering"
	StatusGrading    Status = "grading"
	StatusSubmitted  Status = "submitted"
	StatusReview     Status = "review"
	StatusError      Status = "error"
)

// Terminal reports whether answers are read-only in this status.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusReview
}

// Recorder persists the result of a finished session.
type Recorder interface {
	RecordAttempt(ctx context.Context, a model.Attempt) error
}

// Session is the part common to every practice flow.
type Session interface {
	ID() string
	Exam() model.APExam
	Kind() model.AttemptKind
}

// base carries identity, status and the in-flight flag. Callers hold mu.
type base struct {
	mu       sync.Mutex
	id       string
	exam     model.APExam
	kind     model.AttemptKind
	status   Status
	inFlight bool
	errMsg   string
	recorder Recorder
}

func (b *base) setup(exam model.APExam, kind model.AttemptKind, rec Recorder) {
	b.id = uuid.NewString()
	b.exam = exam
	b.kind = kind
	b.status = StatusIdle
	b.recorder = rec
}

func (b *base) ID() string              { return b.id }
func (b *base) Exam() model.APExam      { return b.exam }
func (b *base) Kind() model.AttemptKind { return b.kind }

func (b *base) setStatus(to Status) {
	if b.status == to {
		return
	}
	slog.Debug("session transition", "id", b.id, "kind", b.kind, "from", b.status, "to", to)
	b.status = to
	metrics.Transition(string(b.kind), string(to))
}

// begin marks a gateway call in flight if the current status is one of from.
func (b *base) begin(to Status, from ...Status) error {
	if b.inFlight {
		return ErrBusy
	}
	allowed := false
	for _, s := range from {
		if b.status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	b.inFlight = true
	b.errMsg = ""
	b.setStatus(to)
	return nil
}

func (b *base) fail(err error) {
	b.errMsg = llm.Message(err)
	b.setStatus(StatusError)
	slog.Warn("session failed", "id", b.id, "kind", b.kind, "exam", b.exam.ID, "error", err)
}

// record stores a finished attempt. Storage failures are logged and ignored.
func (b *base) record(ctx context.Context, a model.Attempt) {
	if b.recorder == nil {
		return
	}
	a.SessionID = b.id
	a.ExamID = b.exam.ID
	a.Subject = b.exam.Title
	a.Kind = b.kind
	a.CreatedAt = time.Now().UTC()
	if err := b.recorder.RecordAttempt(ctx, a); err != nil {
		slog.Warn("record attempt", "id", b.id, "error", err)
	}
}

// percentage returns round(score/total*100), or 0 for an empty session.
func percentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

func clampIndex(i, total int) error {
	if i < 0 || i >= total {
		return ErrOutOfRange
	}
	return nil
}
