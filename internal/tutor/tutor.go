// Package tutor holds tutor conversations and drives the streaming reply for
// each user turn.
package tutor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
)

// ErrorNotice is appended as a system message when a reply fails.
const ErrorNotice = "Sorry, I encountered an error. Please try again."

var (
	ErrBusy         = errors.New("a reply is already in progress")
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Stream is one in-progress reply.
type Stream interface {
	Fragments() <-chan string
	Err() error
	Cancel()
}

// Streamer opens reply streams.
type Streamer interface {
	StreamReply(ctx context.Context, history []model.ChatMessage, message string) (Stream, error)
}

type gateway struct {
	client *llm.Client
}

// Gateway adapts the AI gateway to Streamer.
func Gateway(c *llm.Client) Streamer {
	return gateway{client: c}
}

func (g gateway) StreamReply(ctx context.Context, history []model.ChatMessage, message string) (Stream, error) {
	s, err := g.client.StreamTutorReply(ctx, history, message)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Conversation is an append-only tutor transcript. At most one reply is
// produced at a time.
type Conversation struct {
	id       string
	streamer Streamer

	mu       sync.Mutex
	messages []model.ChatMessage
	inFlight bool
}

// NewConversation creates an empty conversation.
func NewConversation(s Streamer) *Conversation {
	return &Conversation{id: uuid.NewString(), streamer: s}
}

// ID returns the conversation ID.
func (c *Conversation) ID() string {
	return c.id
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ChatMessage(nil), c.messages...)
}

// InFlight reports whether a reply is being produced.
func (c *Conversation) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Send appends the user's message and streams the tutor's reply into the
// transcript, calling onFragment for every fragment in order. If the reply
// fails the partial text is replaced by ErrorNotice. If ctx is cancelled the
// partial text is kept and ctx.Err() is returned.
func (c *Conversation) Send(ctx context.Context, text string, onFragment func(string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inFlight = true
	history := append([]model.ChatMessage(nil), c.messages...)
	c.messages = append(c.messages, model.ChatMessage{Role: model.RoleUser, Content: text})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	stream, err := c.streamer.StreamReply(ctx, history, text)
	if err != nil {
		c.appendNotice(-1)
		slog.Warn("tutor reply failed to start", "conversation", c.id, "error", err)
		return err
	}
	defer stream.Cancel()

	c.mu.Lock()
	reply := len(c.messages)
	c.messages = append(c.messages, model.ChatMessage{Role: model.RoleModel})
	c.mu.Unlock()

	for frag := range stream.Fragments() {
		c.mu.Lock()
		c.messages[reply].Content += frag
		c.mu.Unlock()
		if onFragment != nil {
			onFragment(frag)
		}
	}

	err = stream.Err()
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.mu.Lock()
		if c.messages[reply].Content == "" {
			c.messages = c.messages[:reply]
		}
		c.mu.Unlock()
		return ctxErr
	}
	if err != nil {
		c.appendNotice(reply)
		slog.Warn("tutor reply failed", "conversation", c.id, "error", err)
		return err
	}
	return nil
}

// appendNotice drops the message at index partial, if any, and appends the
// error notice.
func (c *Conversation) appendNotice(partial int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if partial >= 0 && partial < len(c.messages) {
		c.messages = append(c.messages[:partial], c.messages[partial+1:]...)
	}
	c.messages = append(c.messages, model.ChatMessage{Role: model.RoleSystem, Content: ErrorNotice})
}

type entry struct {
	conv     *Conversation
	lastSeen time.Time
}

// Registry holds open conversations by ID. Conversations unused for longer
// than the idle timeout are discarded while the registry is in use.
type Registry struct {
	streamer Streamer
	idle     time.Duration
	now      func() time.Time

	mu            sync.Mutex
	conversations map[string]*entry
	lastPrune     time.Time
}

// NewRegistry creates a registry whose conversations use s. An idle timeout
// of zero keeps conversations until they are closed.
func NewRegistry(s Streamer, idle time.Duration) *Registry {
	return &Registry{
		streamer:      s,
		idle:          idle,
		now:           time.Now,
		conversations: make(map[string]*entry),
	}
}

// Open creates and stores a new conversation.
func (r *Registry) Open() *Conversation {
	c := NewConversation(r.streamer)
	r.mu.Lock()
	now := r.now()
	r.pruneLocked(now)
	r.conversations[c.id] = &entry{conv: c, lastSeen: now}
	r.mu.Unlock()
	return c
}

// Get returns the conversation with the given ID and marks it as used.
func (r *Registry) Get(id string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.pruneLocked(now)
	e, ok := r.conversations[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = now
	return e.conv, true
}

// pruneLocked drops idle conversations, at most once a minute. A reply in
// flight keeps its conversation alive.
func (r *Registry) pruneLocked(now time.Time) {
	if r.idle <= 0 || now.Sub(r.lastPrune) < time.Minute {
		return
	}
	for id, e := range r.conversations {
		if now.Sub(e.lastSeen) > r.idle && !e.conv.InFlight() {
			delete(r.conversations, id)
		}
	}
	r.lastPrune = now
}

// Close discards the conversation and its transcript.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	delete(r.conversations, id)
	r.mu.Unlock()
}

// Len returns the number of open conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}
