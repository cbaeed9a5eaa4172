package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/intelligrade/intelligrade/internal/llm/prompts"
	"github.com/intelligrade/intelligrade/internal/metrics"
	"github.com/intelligrade/intelligrade/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Stream delivers the fragments of one tutor reply in arrival order.
// Fragments is closed when the reply ends, fails or is cancelled; Err then
// reports the failure, if any. A Stream cannot be restarted.
type Stream struct {
	fragments chan string
	cancel    context.CancelFunc
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// Fragments returns the channel of text fragments.
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Err returns the terminal error once Fragments is closed. Cancellation by
// the caller is reported as context.Canceled wrapped in a *ServiceError.
func (s *Stream) Err() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the producer. It is safe to call more than once.
func (s *Stream) Cancel() {
	s.cancel()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// StreamTutorReply opens a streaming completion for the tutor, sending the
// system instruction, the prior history and the new user message. System
// notices in the history are not sent upstream.
func (c *Client) StreamTutorReply(ctx context.Context, history []model.ChatMessage, message string) (*Stream, error) {
	start := time.Now()

	instruction, err := prompts.Tutor()
	if err != nil {
		metrics.ObserveLLM(opTutor, start, err)
		return nil, serviceErr(opTutor, msgUnavailable, err)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instruction})
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case model.RoleModel:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	ctx, cancel := c.withTimeout(ctx)
	upstream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.7,
		Stream:      true,
	})
	if err != nil {
		cancel()
		metrics.ObserveLLM(opTutor, start, err)
		return nil, serviceErr(opTutor, msgUnavailable, err)
	}

	s := &Stream{
		fragments: make(chan string),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx, upstream, start)
	return s, nil
}

func (s *Stream) run(ctx context.Context, upstream *openai.ChatCompletionStream, start time.Time) {
	var err error
	defer func() {
		upstream.Close()
		s.cancel()
		if err != nil {
			s.fail(serviceErr(opTutor, msgUnavailable, err))
		}
		metrics.ObserveLLM(opTutor, start, err)
		close(s.fragments)
		close(s.done)
	}()

	for {
		var resp openai.ChatCompletionStreamResponse
		resp, err = upstream.Recv()
		if errors.Is(err, io.EOF) {
			err = nil
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			slog.Debug("tutor stream ended", "error", err)
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := resp.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		select {
		case s.fragments <- text:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}
