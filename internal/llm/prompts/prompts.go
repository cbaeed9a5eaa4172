package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/intelligrade/intelligrade/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const (
	// MinDocuments and MaxDocuments bound the source documents of a DBQ.
	MinDocuments = 5
	MaxDocuments = 7

	maxAnswerRunes = 10000
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// PracticeSetData holds template data for multiple-choice set prompts.
type PracticeSetData struct {
	Subject string
	Count   int
}

// FreeResponseData holds template data for free-response generation prompts.
type FreeResponseData struct {
	Subject      string
	Type         string
	MinDocuments int
	MaxDocuments int
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Subject string
	Type    string
	Prompt  string
	Answer  string
}

// Load parses the embedded prompt templates.
// It uses sync.Once to ensure templates are loaded only once.
func Load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.ParseFS(templateFS, "templates/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Tutor returns the tutor system instruction.
func Tutor() (string, error) {
	return render("tutor.tmpl", nil)
}

// PracticeSet builds the multiple-choice set generation prompt.
func PracticeSet(subject string, count int) (string, error) {
	return render("practice_set.tmpl", PracticeSetData{Subject: subject, Count: count})
}

// FreeResponse builds the generation prompt for one free-response question.
func FreeResponse(subject string, qt model.QuestionType) (string, error) {
	if !qt.IsFreeResponse() {
		return "", fmt.Errorf("not a free-response type: %q", qt)
	}
	return render("free_response.tmpl", FreeResponseData{
		Subject:      courseName(subject),
		Type:         string(qt),
		MinDocuments: MinDocuments,
		MaxDocuments: MaxDocuments,
	})
}

// Grade builds the grading prompt for a student's free-response answer.
func Grade(subject string, qt model.QuestionType, prompt, answer string) (string, error) {
	return render("grade.tmpl", GradeData{
		Subject: subject,
		Type:    string(qt),
		Prompt:  prompt,
		Answer:  SanitizeAnswer(answer),
	})
}

// FullExam builds the full-length exam generation prompt.
func FullExam(subject string) (string, error) {
	return render("full_exam.tmpl", struct{ Subject string }{courseName(subject)})
}

// courseName drops a leading "AP " so templates can write "AP {{.Subject}}".
func courseName(subject string) string {
	return strings.TrimPrefix(strings.TrimSpace(subject), "AP ")
}

// SanitizeAnswer strips delimiter tags a student could use to escape the
// answer block and truncates very long answers.
func SanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
