package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/intelligrade/intelligrade/internal/model"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `  {"a":1} `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1]\n```", `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePracticeSet(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"bare array", `[` + validQuestion + `]`, 1, false},
		{"wrapped", `{"questions":[` + validQuestion + `]}`, 1, false},
		{"fenced", "```json\n[" + validQuestion + "]\n```", 1, false},
		{"empty array", `[]`, 0, true},
		{"missing explanation", `[{"question":"Q","options":["a","b","c","d"],"correctAnswerIndex":0}]`, 0, true},
		{"index out of range", `[{"question":"Q","options":["a","b","c","d"],"correctAnswerIndex":4,"explanation":""}]`, 0, true},
		{"negative index", `[{"question":"Q","options":["a","b","c","d"],"correctAnswerIndex":-1,"explanation":""}]`, 0, true},
		{"five options", `[{"question":"Q","options":["a","b","c","d","e"],"correctAnswerIndex":0,"explanation":""}]`, 0, true},
		{"unknown field", `[{"question":"Q","options":["a","b","c","d"],"correctAnswerIndex":0,"explanation":"","extra":1}]`, 0, true},
		{"blank question", `[{"question":" ","options":["a","b","c","d"],"correctAnswerIndex":0,"explanation":""}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePracticeSet(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d questions, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := parsePracticeSet(`[]`); !errors.Is(err, ErrEmptyExam) {
		t.Errorf("empty set should report ErrEmptyExam, got %v", err)
	}
}

func dbqReply(n int) string {
	docs := make([]string, n)
	for i := range docs {
		docs[i] = `{"source":"S","content":"C"}`
	}
	return `{"prompt":"P","documents":[` + strings.Join(docs, ",") + `]}`
}

func TestParseFreeResponseDocuments(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{4, true},
		{5, false},
		{7, false},
		{8, true},
	}
	for _, tt := range tests {
		_, err := parseFreeResponse(dbqReply(tt.n), model.TypeDBQ)
		if (err != nil) != tt.wantErr {
			t.Errorf("%d documents: err = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
	}

	if _, err := parseFreeResponse(`{"prompt":"P","documents":[{"source":"","content":"C"},{"source":"S","content":"C"},{"source":"S","content":"C"},{"source":"S","content":"C"},{"source":"S","content":"C"}]}`, model.TypeDBQ); err == nil {
		t.Error("expected error for document without source")
	}
}

func TestParseFreeResponseTypeField(t *testing.T) {
	q, err := parseFreeResponse(`{"type":"LEQ","prompt":"Choose one."}`, model.TypeLEQ)
	if err != nil {
		t.Fatalf("parseFreeResponse: %v", err)
	}
	if q.Type != model.TypeLEQ || q.Prompt != "Choose one." {
		t.Errorf("unexpected question: %+v", q)
	}
}

func TestParseFullExam(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no sections", `{"examTitle":"T","timeLimitMinutes":10,"sections":[]}`},
		{"no questions", `{"examTitle":"T","timeLimitMinutes":10,"sections":[{"sectionTitle":"S","questions":[]}]}`},
		{"duplicate ids", `{"examTitle":"T","timeLimitMinutes":10,"sections":[{"sectionTitle":"S","questions":[{"id":"a","questionText":"x"},{"id":"a","questionText":"y"}]}]}`},
		{"index out of range", `{"examTitle":"T","timeLimitMinutes":10,"sections":[{"sectionTitle":"S","questions":[{"id":"a","questionText":"x","options":["1","2"],"correctOptionIndex":2}]}]}`},
		{"missing text", `{"examTitle":"T","timeLimitMinutes":10,"sections":[{"sectionTitle":"S","questions":[{"id":"a"}]}]}`},
		{"index without options", `{"examTitle":"T","timeLimitMinutes":10,"sections":[{"sectionTitle":"S","questions":[{"id":"a","questionText":"x","correctOptionIndex":0}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFullExam(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}
