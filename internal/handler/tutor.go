package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/intelligrade/intelligrade/internal/handler/views"
	"github.com/intelligrade/intelligrade/internal/markdown"
	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/tutor"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// frame is the websocket message format in both directions.
type frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

const (
	frameMessage  = "message"
	frameStop     = "stop"
	frameFragment = "fragment"
	frameDone     = "done"
	frameError    = "error"
)

func (h *Handler) conversation(w http.ResponseWriter, r *http.Request) (*tutor.Conversation, bool) {
	c, ok := h.tutors.Get(chi.URLParam(r, "id"))
	if !ok {
		h.notFound(w, r)
	}
	return c, ok
}

func (h *Handler) handleTutorHome(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.TutorStartPage())
}

func (h *Handler) handleTutorOpen(w http.ResponseWriter, r *http.Request) {
	c := h.tutors.Open()
	slog.Info("tutor conversation opened", "id", c.ID())
	h.redirect(w, r, "/tutor/"+c.ID())
}

func (h *Handler) handleTutorPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	render(w, r, http.StatusOK, views.TutorPage(c.ID(), c.Messages(), c.InFlight()))
}

// handleTutorClose discards the transcript and starts over in a new
// conversation.
func (h *Handler) handleTutorClose(w http.ResponseWriter, r *http.Request) {
	h.tutors.Close(chi.URLParam(r, "id"))
	h.handleTutorOpen(w, r)
}

// handleTutorSend produces a whole reply without streaming.
func (h *Handler) handleTutorSend(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	err := c.Send(r.Context(), r.FormValue("message"), nil)
	switch {
	case errors.Is(err, tutor.ErrBusy):
		errorPage(w, r, http.StatusConflict, err.Error())
		return
	case errors.Is(err, tutor.ErrEmptyMessage):
		errorPage(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Reply failures are already in the transcript.
	h.redirect(w, r, "/tutor/"+c.ID())
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// lastReply renders the newest model message for the "done" frame.
func lastReply(c *tutor.Conversation) string {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleModel {
			return markdown.HTML(msgs[i].Content)
		}
	}
	return ""
}

func (c *wsConn) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

// handleTutorWS streams replies over a websocket. Each "message" frame starts
// a reply whose fragments are sent as they arrive; a "stop" frame cancels it,
// keeping the partial text in the transcript.
func (h *Handler) handleTutorWS(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	ws := &wsConn{conn: conn}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running bool
		cancel  context.CancelFunc = func() {}
	)
	defer func() {
		mu.Lock()
		cancel()
		mu.Unlock()
		wg.Wait()
	}()

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "conversation", c.ID(), "error", err)
			}
			return
		}

		switch in.Type {
		case frameStop:
			mu.Lock()
			cancel()
			mu.Unlock()
		case frameMessage:
			mu.Lock()
			if running {
				mu.Unlock()
				_ = ws.send(frame{Type: frameError, Text: tutor.ErrBusy.Error()})
				continue
			}
			ctx, stop := context.WithCancel(r.Context())
			running, cancel = true, stop
			mu.Unlock()

			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				err := c.Send(ctx, text, func(frag string) {
					_ = ws.send(frame{Type: frameFragment, Text: frag})
				})
				mu.Lock()
				running = false
				stop()
				mu.Unlock()

				switch {
				case err == nil, errors.Is(err, context.Canceled):
					_ = ws.send(frame{Type: frameDone, HTML: lastReply(c)})
				case errors.Is(err, tutor.ErrBusy), errors.Is(err, tutor.ErrEmptyMessage):
					_ = ws.send(frame{Type: frameError, Text: err.Error()})
				default:
					_ = ws.send(frame{Type: frameError, Text: tutor.ErrorNotice})
				}
			}(in.Text)
		default:
			_ = ws.send(frame{Type: frameError, Text: "unknown frame type"})
		}
	}
}
