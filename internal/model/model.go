package model

import (
	"context"
	"time"
)

// Role represents a chat message role.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// ChatMessage is one entry of a tutor transcript.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// QuestionType is a free-response variant.
type QuestionType string

const (
	TypeMCQ QuestionType = "MCQ"
	TypeSAQ QuestionType = "SAQ"
	TypeDBQ QuestionType = "DBQ"
	TypeLEQ QuestionType = "LEQ"
	TypeFRQ QuestionType = "FRQ"
)

// IsFreeResponse reports whether t is one of SAQ, DBQ, LEQ or FRQ.
func (t QuestionType) IsFreeResponse() bool {
	switch t {
	case TypeSAQ, TypeDBQ, TypeLEQ, TypeFRQ:
		return true
	}
	return false
}

// ParseQuestionType validates a practice mode string.
func ParseQuestionType(s string) (QuestionType, bool) {
	t := QuestionType(s)
	if t == TypeMCQ || t.IsFreeResponse() {
		return t, true
	}
	return "", false
}

// PracticeQuestion is a generated multiple-choice question.
type PracticeQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

// Document is a source excerpt attached to a DBQ.
type Document struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// FreeResponseQuestion is a generated SAQ/DBQ/LEQ/FRQ prompt.
type FreeResponseQuestion struct {
	Type      QuestionType `json:"type"`
	Prompt    string       `json:"prompt"`
	Documents []Document   `json:"documents,omitempty"`
}

// QuestionKind discriminates full-exam questions.
type QuestionKind int

const (
	KindMultipleChoice QuestionKind = iota
	KindFreeResponse
)

func (k QuestionKind) String() string {
	if k == KindMultipleChoice {
		return "multiple_choice"
	}
	return "free_response"
}

// ExamQuestion is one question of a full-length exam.
// Options and CorrectOptionIndex are only meaningful for KindMultipleChoice.
type ExamQuestion struct {
	ID                 string       `json:"id"`
	Kind               QuestionKind `json:"-"`
	Text               string       `json:"questionText"`
	Options            []string     `json:"options,omitempty"`
	CorrectOptionIndex int          `json:"correctOptionIndex"`
	Explanation        string       `json:"explanation,omitempty"`
}

// Section groups questions of a full exam.
type Section struct {
	Title     string         `json:"sectionTitle"`
	Questions []ExamQuestion `json:"questions"`
}

// FullExam is a sectioned, full-length practice exam.
type FullExam struct {
	Title            string    `json:"examTitle"`
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
	Sections         []Section `json:"sections"`
}

// Split flattens the exam into its multiple-choice and free-response questions,
// preserving section order.
func (e FullExam) Split() (mcq, frq []ExamQuestion) {
	for _, s := range e.Sections {
		for _, q := range s.Questions {
			if q.Kind == KindMultipleChoice {
				mcq = append(mcq, q)
			} else {
				frq = append(frq, q)
			}
		}
	}
	return mcq, frq
}

// APExam describes one course in the catalog.
type APExam struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Subjects      []string       `json:"subjects"`
	MCQCount      int            `json:"mcqCount"`
	QuestionTypes []QuestionType `json:"questionTypes"`
}

// HasType reports whether the exam offers the given practice mode.
func (e APExam) HasType(t QuestionType) bool {
	for _, qt := range e.QuestionTypes {
		if qt == t {
			return true
		}
	}
	return false
}

// StudyWeek is one week of a generated study schedule.
type StudyWeek struct {
	Week  int    `json:"week"`
	Focus string `json:"focus"`
	Goal  string `json:"goal"`
}

// PlannerEntry is a saved study plan for one exam.
type PlannerEntry struct {
	Exam     string      `json:"exam"`
	Schedule []StudyWeek `json:"schedule"`
	Created  time.Time   `json:"created"`
}

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Toggle returns the opposite theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ParseTheme returns the theme named by s, defaulting to light.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// AttemptKind identifies which practice flow produced an attempt.
type AttemptKind string

const (
	AttemptMCQ          AttemptKind = "mcq"
	AttemptFreeResponse AttemptKind = "free_response"
	AttemptFullExam     AttemptKind = "full_exam"
)

// Attempt is the recorded result of a finished practice session.
type Attempt struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	ExamID    string      `json:"exam_id"`
	Subject   string      `json:"subject"`
	Kind      AttemptKind `json:"kind"`
	Score     int         `json:"score"`
	Total     int         `json:"total"`
	Feedback  string      `json:"feedback,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// AttemptExport is the top-level JSON structure written by the export command.
type AttemptExport struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Attempts   []Attempt `json:"attempts"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool
	RateLimit     float64 // AI requests per second per client, 0 disables
	RateBurst     int
	IdleTimeout   time.Duration // sessions and conversations unused this long are dropped, 0 keeps them
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

type themeCtxKey struct{}

// ContextWithTheme stores the active theme in context.
func ContextWithTheme(ctx context.Context, t Theme) context.Context {
	return context.WithValue(ctx, themeCtxKey{}, t)
}

// ThemeFromContext retrieves the theme from context, defaulting to light.
func ThemeFromContext(ctx context.Context) Theme {
	t, ok := ctx.Value(themeCtxKey{}).(Theme)
	if !ok {
		return ThemeLight
	}
	return t
}
