// Package llm is the gateway to an OpenAI-compatible chat completion API.
// It builds prompts, validates structured replies and streams tutor answers.
// Every failure leaving the package is a *ServiceError.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/intelligrade/intelligrade/internal/llm/prompts"
	"github.com/intelligrade/intelligrade/internal/metrics"
	"github.com/intelligrade/intelligrade/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// PracticeSetSize is the number of questions requested per MCQ practice set.
const PracticeSetSize = 15

const (
	opTutor        = "tutor"
	opPracticeSet  = "practice_set"
	opFreeResponse = "free_response"
	opGrade        = "grade"
	opFullExam     = "full_exam"
	opPing         = "ping"

	msgInvalidExam     = "empty or invalid exam data"
	msgInvalidQuestion = "invalid question data"
	msgEmptyFeedback   = "empty grading response"
	msgUnavailable     = "AI service unavailable"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New creates a new gateway client. A zero timeout leaves calls bounded only
// by the caller's context.
func New(baseURL, apiKey, modelName string, timeout time.Duration) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Ping lists the models available upstream to check reachability.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveLLM(opPing, start, err) }()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return serviceErr(opPing, msgUnavailable, err)
	}
	slog.Debug("LLM models listed", "count", len(models.Models))
	return nil
}

// complete sends a single-turn request and returns the raw reply text.
func (c *Client) complete(ctx context.Context, op, prompt string, jsonMode bool, temperature float32) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", serviceErr(op, msgUnavailable, fmt.Errorf("LLM API call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", serviceErr(op, msgUnavailable, errors.New("LLM returned no choices"))
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "op", op, "raw", raw)
	return raw, nil
}

// GeneratePracticeSet requests a set of multiple-choice questions for the
// given exam title. The result is never empty.
func (c *Client) GeneratePracticeSet(ctx context.Context, subject string) (questions []model.PracticeQuestion, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLLM(opPracticeSet, start, err) }()

	prompt, err := prompts.PracticeSet(subject, PracticeSetSize)
	if err != nil {
		return nil, serviceErr(opPracticeSet, msgInvalidExam, err)
	}
	raw, err := c.complete(ctx, opPracticeSet, prompt, true, 0.7)
	if err != nil {
		return nil, err
	}
	questions, err = parsePracticeSet(raw)
	if err != nil {
		slog.Warn("invalid practice set", "subject", subject, "error", err)
		return nil, serviceErr(opPracticeSet, msgInvalidExam, err)
	}
	return questions, nil
}

// GenerateFreeResponse requests one free-response question of type qt.
func (c *Client) GenerateFreeResponse(ctx context.Context, subject string, qt model.QuestionType) (q model.FreeResponseQuestion, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLLM(opFreeResponse, start, err) }()

	prompt, err := prompts.FreeResponse(subject, qt)
	if err != nil {
		return model.FreeResponseQuestion{}, serviceErr(opFreeResponse, msgInvalidQuestion, err)
	}
	raw, err := c.complete(ctx, opFreeResponse, prompt, true, 0.7)
	if err != nil {
		return model.FreeResponseQuestion{}, err
	}
	q, err = parseFreeResponse(raw, qt)
	if err != nil {
		slog.Warn("invalid free-response question", "subject", subject, "type", qt, "error", err)
		return model.FreeResponseQuestion{}, serviceErr(opFreeResponse, msgInvalidQuestion, err)
	}
	return q, nil
}

// GradeFreeResponse returns markdown feedback on a student's answer. The
// feedback is returned exactly as the model wrote it.
func (c *Client) GradeFreeResponse(ctx context.Context, subject, promptText, answer string, qt model.QuestionType) (feedback string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLLM(opGrade, start, err) }()

	prompt, err := prompts.Grade(subject, qt, promptText, answer)
	if err != nil {
		return "", serviceErr(opGrade, msgEmptyFeedback, err)
	}
	feedback, err = c.complete(ctx, opGrade, prompt, false, 0.1)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(feedback) == "" {
		return "", serviceErr(opGrade, msgEmptyFeedback, nil)
	}
	return feedback, nil
}

// GenerateFullExam requests a sectioned full-length practice exam.
func (c *Client) GenerateFullExam(ctx context.Context, subject string) (exam model.FullExam, err error) {
	start := time.Now()
	defer func() { metrics.ObserveLLM(opFullExam, start, err) }()

	prompt, err := prompts.FullExam(subject)
	if err != nil {
		return model.FullExam{}, serviceErr(opFullExam, msgInvalidExam, err)
	}
	raw, err := c.complete(ctx, opFullExam, prompt, true, 0.3)
	if err != nil {
		return model.FullExam{}, err
	}
	exam, err = parseFullExam(raw)
	if err != nil {
		slog.Warn("invalid full exam", "subject", subject, "error", err)
		return model.FullExam{}, serviceErr(opFullExam, msgInvalidExam, err)
	}
	return exam, nil
}
