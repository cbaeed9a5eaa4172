package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/intelligrade/intelligrade/internal/llm/prompts"
	"github.com/intelligrade/intelligrade/internal/model"
)

const optionsPerQuestion = 4

type rawPracticeQuestion struct {
	Question           *string  `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	Explanation        *string  `json:"explanation"`
}

type rawPracticeSet struct {
	Questions []rawPracticeQuestion `json:"questions"`
}

type rawFreeResponse struct {
	Type      string        `json:"type"`
	Prompt    *string       `json:"prompt"`
	Documents []rawDocument `json:"documents"`
}

type rawDocument struct {
	Source  *string `json:"source"`
	Content *string `json:"content"`
}

type rawExamQuestion struct {
	ID                 *string  `json:"id"`
	QuestionText       *string  `json:"questionText"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
	Explanation        string   `json:"explanation"`
}

type rawSection struct {
	SectionTitle string            `json:"sectionTitle"`
	Questions    []rawExamQuestion `json:"questions"`
}

type rawFullExam struct {
	ExamTitle        string       `json:"examTitle"`
	TimeLimitMinutes int          `json:"timeLimitMinutes"`
	Sections         []rawSection `json:"sections"`
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even in JSON mode.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeStrict(data string, v any) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// parsePracticeSet accepts either a bare JSON array of questions or an object
// wrapping it under "questions". An empty set is an error.
func parsePracticeSet(raw string) ([]model.PracticeQuestion, error) {
	data := stripFences(raw)

	var items []rawPracticeQuestion
	if bytes.HasPrefix([]byte(data), []byte("[")) {
		if err := decodeStrict(data, &items); err != nil {
			return nil, fmt.Errorf("decode question array: %w", err)
		}
	} else {
		var wrapped rawPracticeSet
		if err := decodeStrict(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode question set: %w", err)
		}
		items = wrapped.Questions
	}

	if len(items) == 0 {
		return nil, ErrEmptyExam
	}

	out := make([]model.PracticeQuestion, 0, len(items))
	for i, it := range items {
		switch {
		case it.Question == nil || strings.TrimSpace(*it.Question) == "":
			return nil, fmt.Errorf("question %d: missing question text", i+1)
		case len(it.Options) != optionsPerQuestion:
			return nil, fmt.Errorf("question %d: expected %d options, got %d", i+1, optionsPerQuestion, len(it.Options))
		case it.CorrectAnswerIndex == nil:
			return nil, fmt.Errorf("question %d: missing correctAnswerIndex", i+1)
		case *it.CorrectAnswerIndex < 0 || *it.CorrectAnswerIndex >= optionsPerQuestion:
			return nil, fmt.Errorf("question %d: correctAnswerIndex %d out of range", i+1, *it.CorrectAnswerIndex)
		case it.Explanation == nil:
			return nil, fmt.Errorf("question %d: missing explanation", i+1)
		}
		out = append(out, model.PracticeQuestion{
			Question:           *it.Question,
			Options:            it.Options,
			CorrectAnswerIndex: *it.CorrectAnswerIndex,
			Explanation:        *it.Explanation,
		})
	}
	return out, nil
}

// parseFreeResponse validates a free-response reply for the requested type.
// DBQs need between 5 and 7 documents; other types never carry documents.
func parseFreeResponse(raw string, qt model.QuestionType) (model.FreeResponseQuestion, error) {
	var r rawFreeResponse
	if err := decodeStrict(stripFences(raw), &r); err != nil {
		return model.FreeResponseQuestion{}, fmt.Errorf("decode free-response question: %w", err)
	}
	if r.Prompt == nil || strings.TrimSpace(*r.Prompt) == "" {
		return model.FreeResponseQuestion{}, errors.New("missing prompt")
	}

	q := model.FreeResponseQuestion{Type: qt, Prompt: *r.Prompt}
	if qt != model.TypeDBQ {
		return q, nil
	}

	if r.Documents == nil {
		return model.FreeResponseQuestion{}, errors.New("DBQ reply has no documents")
	}
	if n := len(r.Documents); n < prompts.MinDocuments || n > prompts.MaxDocuments {
		return model.FreeResponseQuestion{}, fmt.Errorf("DBQ needs %d-%d documents, got %d", prompts.MinDocuments, prompts.MaxDocuments, n)
	}
	for i, d := range r.Documents {
		if d.Source == nil || d.Content == nil || strings.TrimSpace(*d.Source) == "" || strings.TrimSpace(*d.Content) == "" {
			return model.FreeResponseQuestion{}, fmt.Errorf("document %d: source and content are required", i+1)
		}
		q.Documents = append(q.Documents, model.Document{Source: *d.Source, Content: *d.Content})
	}
	return q, nil
}

// parseFullExam validates a full-length exam reply. A question with an
// "options" field is multiple choice, one without is free response.
func parseFullExam(raw string) (model.FullExam, error) {
	var r rawFullExam
	if err := decodeStrict(stripFences(raw), &r); err != nil {
		return model.FullExam{}, fmt.Errorf("decode full exam: %w", err)
	}
	if len(r.Sections) == 0 {
		return model.FullExam{}, ErrEmptyExam
	}

	exam := model.FullExam{Title: r.ExamTitle, TimeLimitMinutes: r.TimeLimitMinutes}
	seen := make(map[string]bool)
	total := 0
	for si, rs := range r.Sections {
		sec := model.Section{Title: rs.SectionTitle}
		for qi, rq := range rs.Questions {
			where := fmt.Sprintf("section %d question %d", si+1, qi+1)
			if rq.ID == nil || *rq.ID == "" {
				return model.FullExam{}, fmt.Errorf("%s: missing id", where)
			}
			if seen[*rq.ID] {
				return model.FullExam{}, fmt.Errorf("%s: duplicate id %q", where, *rq.ID)
			}
			seen[*rq.ID] = true
			if rq.QuestionText == nil || strings.TrimSpace(*rq.QuestionText) == "" {
				return model.FullExam{}, fmt.Errorf("%s: missing questionText", where)
			}

			q := model.ExamQuestion{ID: *rq.ID, Text: *rq.QuestionText, Explanation: rq.Explanation}
			if rq.Options != nil {
				if len(rq.Options) < 2 {
					return model.FullExam{}, fmt.Errorf("%s: multiple-choice question needs at least 2 options", where)
				}
				if rq.CorrectOptionIndex == nil || *rq.CorrectOptionIndex < 0 || *rq.CorrectOptionIndex >= len(rq.Options) {
					return model.FullExam{}, fmt.Errorf("%s: correctOptionIndex missing or out of range", where)
				}
				q.Kind = model.KindMultipleChoice
				q.Options = rq.Options
				q.CorrectOptionIndex = *rq.CorrectOptionIndex
			} else {
				if rq.CorrectOptionIndex != nil {
					return model.FullExam{}, fmt.Errorf("%s: correctOptionIndex without options", where)
				}
				q.Kind = model.KindFreeResponse
			}
			sec.Questions = append(sec.Questions, q)
			total++
		}
		exam.Sections = append(exam.Sections, sec)
	}
	if total == 0 {
		return model.FullExam{}, ErrEmptyExam
	}
	return exam, nil
}
