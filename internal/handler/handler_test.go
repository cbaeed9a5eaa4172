package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	appI18n "github.com/intelligrade/intelligrade/internal/i18n"
	"github.com/intelligrade/intelligrade/internal/llm"
	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/prefs"
	"github.com/intelligrade/intelligrade/internal/session"
	"github.com/intelligrade/intelligrade/internal/store"
	"github.com/intelligrade/intelligrade/internal/tutor"
)

// fakeGateway serves fixed content. When gradeRelease is set, grading blocks
// until it is closed.
type fakeGateway struct {
	practiceErr  error
	gradeStarted chan struct{}
	gradeRelease chan struct{}
}

func (g *fakeGateway) GeneratePracticeSet(context.Context, string) ([]model.PracticeQuestion, error) {
	if g.practiceErr != nil {
		return nil, g.practiceErr
	}
	return []model.PracticeQuestion{
		{Question: "Q1", Options: []string{"a", "b", "c", "d"}, CorrectAnswerIndex: 2, Explanation: "because"},
		{Question: "Q2", Options: []string{"a", "b", "c", "d"}, CorrectAnswerIndex: 0, Explanation: "because"},
	}, nil
}

func (g *fakeGateway) GenerateFreeResponse(_ context.Context, _ string, qt model.QuestionType) (model.FreeResponseQuestion, error) {
	return model.FreeResponseQuestion{Type: qt, Prompt: "Explain osmosis."}, nil
}

func (g *fakeGateway) GradeFreeResponse(context.Context, string, string, string, model.QuestionType) (string, error) {
	if g.gradeRelease != nil {
		close(g.gradeStarted)
		<-g.gradeRelease
	}
	return "Score: 3/4", nil
}

func (g *fakeGateway) GenerateFullExam(context.Context, string) (model.FullExam, error) {
	return model.FullExam{}, nil
}

type fakeStream struct {
	ch  chan string
	err error
}

func (s *fakeStream) Fragments() <-chan string { return s.ch }
func (s *fakeStream) Err() error                { return s.err }
func (s *fakeStream) Cancel()                   {}

// fakeStreamer replies "Hello there". With block set it sends "partial" and
// then waits for cancellation.
type fakeStreamer struct {
	block bool
}

func (f fakeStreamer) StreamReply(ctx context.Context, _ []model.ChatMessage, _ string) (tutor.Stream, error) {
	s := &fakeStream{ch: make(chan string)}
	go func() {
		defer close(s.ch)
		frags := []string{"Hello", " there"}
		if f.block {
			frags = []string{"partial"}
		}
		for _, frag := range frags {
			select {
			case s.ch <- frag:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
		if f.block {
			<-ctx.Done()
			s.err = ctx.Err()
		}
	}()
	return s, nil
}

type testApp struct {
	t      *testing.T
	h      *Handler
	store  *store.Store
	router http.Handler
	token  string
}

func newTestApp(t *testing.T, gw Gateway, streamer tutor.Streamer, cfg model.AppConfig) *testApp {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := New(gw, streamer, prefs.Load(st), st, cfg)
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testApp{t: t, h: h, store: st, router: r}
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	a.t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			a.token = c.Value
		}
	}
	return rec
}

// post sends a form with the CSRF token obtained by an earlier GET.
func (a *testApp) post(path string, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	if a.token == "" {
		a.t.Fatal("post before any GET: no CSRF token")
	}
	if form == nil {
		form = url.Values{}
	}
	form.Set(csrfFieldName, a.token)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: a.token})
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

// startSession posts to a start route and returns the new session ID.
func (a *testApp) startSession(path string, form url.Values) string {
	a.t.Helper()
	rec := a.post(path, form)
	requireStatus(a.t, rec, http.StatusSeeOther)
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/session/") {
		a.t.Fatalf("redirect to %q, want /session/{id}", loc)
	}
	return strings.TrimPrefix(loc, "/session/")
}

type snapshotJSON struct {
	Kind    string `json:"kind"`
	Session struct {
		Status     string `json:"status"`
		Score      int    `json:"score"`
		Percentage int    `json:"percentage"`
		MCQCount   int    `json:"mcqCount"`
		FRQCount   int    `json:"frqCount"`
		Feedback   string `json:"feedback"`
	} `json:"session"`
}

func (a *testApp) snapshot(id string) snapshotJSON {
	a.t.Helper()
	rec := a.get("/api/session/" + id)
	requireStatus(a.t, rec, http.StatusOK)
	var s snapshotJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		a.t.Fatalf("decode snapshot: %v", err)
	}
	return s
}

func TestPages(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/", http.StatusOK, "Study smarter"},
		{"/exams", http.StatusOK, "AP Biology"},
		{"/exams?q=physics", http.StatusOK, "AP Physics 1"},
		{"/exams?q=zzz", http.StatusOK, "No exams match"},
		{"/exams/ap-biology", http.StatusOK, "Free Response"},
		{"/exams/ap-research", http.StatusOK, "portfolio-based"},
		{"/exams/unknown", http.StatusNotFound, "Page not found"},
		{"/planner", http.StatusOK, "no study plans"},
		{"/session/unknown", http.StatusNotFound, "Page not found"},
		{"/healthz", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := a.get(tt.path)
			requireStatus(t, rec, tt.status)
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body does not contain %q", tt.want)
			}
		})
	}
}

func TestSessionJSONNotFound(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	rec := a.get("/api/session/missing")
	requireStatus(t, rec, http.StatusNotFound)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestCSRFRejected(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/theme", nil))
	requireStatus(t, rec, http.StatusForbidden)

	a.get("/")
	form := url.Values{csrfFieldName: {"forged"}}
	req := httptest.NewRequest(http.MethodPost, "/theme", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: a.token})
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusForbidden)
}

func TestThemeToggle(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	requireStatus(t, a.post("/theme", nil), http.StatusSeeOther)
	if body := a.get("/").Body.String(); !strings.Contains(body, `<body data-theme="dark">`) {
		t.Error("page should render with the dark theme")
	}
	if v, _ := a.store.GetPreference("theme"); v != "dark" {
		t.Errorf("persisted theme = %q, want dark", v)
	}
}

func TestPlanner(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	rec := a.post("/planner/ap-biology", nil)
	requireStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != "/planner" {
		t.Errorf("redirect = %q, want /planner", loc)
	}
	body := a.get("/planner").Body.String()
	if !strings.Contains(body, "AP Biology") || !strings.Contains(body, "Week 12") {
		t.Error("planner should list the 12-week AP Biology plan")
	}
	if body := a.get("/exams/ap-biology").Body.String(); !strings.Contains(body, "Remove from study planner") {
		t.Error("detail page should offer removal once planned")
	}

	requireStatus(t, a.post("/planner/ap-biology/delete", nil), http.StatusSeeOther)
	if body := a.get("/planner").Body.String(); !strings.Contains(body, "no study plans") {
		t.Error("planner should be empty after removal")
	}
	requireStatus(t, a.post("/planner/unknown", nil), http.StatusNotFound)
}

func TestPracticeFlow(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	id := a.startSession("/exams/ap-biology/practice/MCQ", nil)
	if body := a.get("/session/" + id).Body.String(); !strings.Contains(body, "Question 1 of 2") {
		t.Fatalf("session page should show the first question:\n%s", body)
	}

	requireStatus(t, a.post("/session/"+id+"/next", nil), http.StatusBadRequest)
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"2"}}), http.StatusSeeOther)
	for _, path := range []string{"/session/" + id, "/api/session/" + id} {
		if body := a.get(path).Body.String(); strings.Contains(body, "because") {
			t.Errorf("%s reveals the explanation before submission", path)
		}
	}
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"9"}}), http.StatusBadRequest)
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"x"}}), http.StatusBadRequest)
	requireStatus(t, a.post("/session/"+id+"/next", nil), http.StatusSeeOther)
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"1"}}), http.StatusSeeOther)
	requireStatus(t, a.post("/session/"+id+"/next", nil), http.StatusSeeOther)

	s := a.snapshot(id)
	if s.Kind != "mcq" || s.Session.Status != "submitted" || s.Session.Score != 1 || s.Session.Percentage != 50 {
		t.Errorf("snapshot = %+v, want submitted mcq with 1 (50%%)", s)
	}
	if body := a.get("/session/" + id).Body.String(); !strings.Contains(body, "Your score: 1 / 2 (50%)") {
		t.Error("result page should show the score")
	}

	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"0"}}), http.StatusBadRequest)

	attempts, err := a.store.ListAttempts(context.Background(), "ap-biology")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Score != 1 || attempts[0].Total != 2 {
		t.Errorf("attempts = %+v, want one scoring 1/2", attempts)
	}

	rec := a.post("/session/"+id+"/exit", nil)
	requireStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != "/exams/ap-biology" {
		t.Errorf("exit redirect = %q", loc)
	}
	requireStatus(t, a.get("/session/"+id), http.StatusNotFound)
}

func TestStartRejectsUnofferedMode(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")
	requireStatus(t, a.post("/exams/ap-biology/practice/DBQ", nil), http.StatusBadRequest)
	requireStatus(t, a.post("/exams/ap-biology/practice/XYZ", nil), http.StatusBadRequest)
	requireStatus(t, a.post("/exams/unknown/practice/MCQ", nil), http.StatusNotFound)
}

func TestGenerationFailureShowsRetry(t *testing.T) {
	gw := &fakeGateway{practiceErr: &llm.ServiceError{Op: "practice_set", Msg: "AI service unavailable"}}
	a := newTestApp(t, gw, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	id := a.startSession("/exams/ap-biology/practice/MCQ", nil)
	body := a.get("/session/" + id).Body.String()
	if !strings.Contains(body, "AI service unavailable") || !strings.Contains(body, "Try again") {
		t.Fatalf("error page should show the message and retry:\n%s", body)
	}

	gw.practiceErr = nil
	requireStatus(t, a.post("/session/"+id+"/retry", nil), http.StatusSeeOther)
	if s := a.snapshot(id); s.Session.Status != "taking" {
		t.Errorf("status after retry = %q, want taking", s.Session.Status)
	}
	requireStatus(t, a.post("/session/"+id+"/retry", nil), http.StatusBadRequest)
}

func TestFreeResponseBusy(t *testing.T) {
	gw := &fakeGateway{gradeStarted: make(chan struct{}), gradeRelease: make(chan struct{})}
	a := newTestApp(t, gw, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	id := a.startSession("/exams/ap-biology/practice/FRQ", nil)
	requireStatus(t, a.post("/session/"+id+"/submit", nil), http.StatusBadRequest)

	var wg sync.WaitGroup
	var first *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = a.post("/session/"+id+"/submit", url.Values{"answer": {"Water moves."}})
	}()
	<-gw.gradeStarted

	requireStatus(t, a.post("/session/"+id+"/submit", url.Values{"answer": {"again"}}), http.StatusConflict)
	close(gw.gradeRelease)
	wg.Wait()
	requireStatus(t, first, http.StatusSeeOther)

	s := a.snapshot(id)
	if s.Session.Status != "review" || s.Session.Feedback != "Score: 3/4" {
		t.Errorf("snapshot = %+v, want review with verbatim feedback", s)
	}
}

func TestMockExamFlow(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	id := a.startSession("/exams/ap-biology/mock", nil)
	s := a.snapshot(id)
	if s.Kind != "full_exam" || s.Session.MCQCount != 5 || s.Session.FRQCount != 1 {
		t.Fatalf("snapshot = %+v, want 5 MCQ and 1 FRQ", s)
	}

	requireStatus(t, a.post("/session/"+id+"/jump/9", nil), http.StatusBadRequest)
	requireStatus(t, a.post("/session/"+id+"/jump/5", nil), http.StatusBadRequest)
	for i := 0; i < 5; i++ {
		requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"0"}}), http.StatusSeeOther)
		requireStatus(t, a.post("/session/"+id+"/next", nil), http.StatusSeeOther)
	}
	requireStatus(t, a.post("/session/"+id+"/jump/0", nil), http.StatusSeeOther)
	requireStatus(t, a.post("/session/"+id+"/jump/5", nil), http.StatusSeeOther)
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"choice": {"0"}}), http.StatusBadRequest)
	requireStatus(t, a.post("/session/"+id+"/answer", url.Values{"text": {"An essay."}, "then": {"next"}}), http.StatusSeeOther)

	if s := a.snapshot(id); s.Session.Status != "submitted" {
		t.Errorf("status = %q, want submitted after answering the last position", s.Session.Status)
	}
}

func TestFullLengthMock(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	a.get("/")

	id := a.startSession("/exams/ap-biology/full", url.Values{"source": {"mock"}})
	s := a.snapshot(id)
	if s.Session.MCQCount != 55 || s.Session.FRQCount != 3 {
		t.Errorf("full mock has %d MCQ and %d FRQ, want 55 and 3", s.Session.MCQCount, s.Session.FRQCount)
	}

	// The fake gateway returns an empty exam, which is an error state.
	id = a.startSession("/exams/ap-biology/full", url.Values{"source": {"ai"}})
	if s := a.snapshot(id); s.Session.Status != "error" {
		t.Errorf("status = %q, want error for an empty exam", s.Session.Status)
	}
}

func TestRateLimit(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{RateLimit: 0.001, RateBurst: 1})
	a.get("/")

	a.startSession("/exams/ap-biology/practice/MCQ", nil)
	requireStatus(t, a.post("/exams/ap-biology/practice/MCQ", nil), http.StatusTooManyRequests)
	requireStatus(t, a.post("/theme", nil), http.StatusSeeOther)
}

func TestTutorSend(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})

	requireStatus(t, a.get("/tutor"), http.StatusOK)
	requireStatus(t, a.get("/tutor"), http.StatusOK)
	if n := a.h.tutors.Len(); n != 0 {
		t.Fatalf("GET /tutor opened %d conversations", n)
	}
	rec := a.post("/tutor", nil)
	requireStatus(t, rec, http.StatusSeeOther)
	path := rec.Header().Get("Location")
	a.get(path)

	requireStatus(t, a.post(path+"/send", url.Values{"message": {"  "}}), http.StatusBadRequest)
	requireStatus(t, a.post(path+"/send", url.Values{"message": {"What is ATP?"}}), http.StatusSeeOther)

	body := a.get(path).Body.String()
	if !strings.Contains(body, "What is ATP?") || !strings.Contains(body, "Hello there") {
		t.Errorf("transcript missing messages:\n%s", body)
	}

	rec = a.post(path+"/close", nil)
	requireStatus(t, rec, http.StatusSeeOther)
	if next := rec.Header().Get("Location"); next == path || !strings.HasPrefix(next, "/tutor/") {
		t.Errorf("close redirected to %q, want a new conversation", next)
	}
	requireStatus(t, a.get(path), http.StatusNotFound)
}

func dialTutor(t *testing.T, a *testApp) (*websocket.Conn, *tutor.Conversation) {
	t.Helper()
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	c := a.h.tutors.Open()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tutor/" + c.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, c
}

// readUntil reads frames until one of type stop and returns the fragments
// along with the frame that ended the read.
func readUntil(t *testing.T, conn *websocket.Conn, stop string) (string, frame) {
	t.Helper()
	var sb strings.Builder
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		switch f.Type {
		case frameFragment:
			sb.WriteString(f.Text)
		case stop:
			return sb.String(), f
		case frameError:
			t.Fatalf("unexpected error frame: %s", f.Text)
		}
	}
}

func TestTutorWebsocket(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{}, model.AppConfig{})
	conn, c := dialTutor(t, a)

	if err := conn.WriteJSON(frame{Type: frameMessage, Text: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, done := readUntil(t, conn, frameDone)
	if got != "Hello there" {
		t.Errorf("streamed %q, want %q", got, "Hello there")
	}
	if !strings.Contains(done.HTML, "<p>Hello there</p>") {
		t.Errorf("done frame html = %q, want rendered reply", done.HTML)
	}

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Role != model.RoleModel || msgs[1].Content != "Hello there" {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestTutorWebsocketStop(t *testing.T) {
	a := newTestApp(t, &fakeGateway{}, fakeStreamer{block: true}, model.AppConfig{})
	conn, c := dialTutor(t, a)

	if err := conn.WriteJSON(frame{Type: frameMessage, Text: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil || f.Type != frameFragment || f.Text != "partial" {
		t.Fatalf("first frame = %+v (%v), want fragment %q", f, err, "partial")
	}
	if err := conn.WriteJSON(frame{Type: frameStop}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	_, _ = readUntil(t, conn, frameDone)

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Content != "partial" {
		t.Errorf("stopped reply should keep the partial text: %+v", msgs)
	}
	if c.InFlight() {
		t.Error("conversation should be idle after stop")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{session.ErrReadOnly, http.StatusBadRequest},
		{session.ErrUnanswered, http.StatusBadRequest},
		{session.ErrEmptyAnswer, http.StatusBadRequest},
		{session.ErrOutOfRange, http.StatusBadRequest},
		{session.ErrInvalidState, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
