package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "IntelliGrade" {
		t.Errorf("T(AppTitle) = %q, want 'IntelliGrade'", got)
	}
	if got := T(ctx, "NavTutor"); got != "AI Tutor" {
		t.Errorf("T(NavTutor) = %q, want 'AI Tutor'", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "NavTutor"); got != "Tutor IA" {
		t.Errorf("T(NavTutor) = %q, want 'Tutor IA'", got)
	}
	if got := T(ctx, "TryAgain"); got != "Intentar de nuevo" {
		t.Errorf("T(TryAgain) = %q, want 'Intentar de nuevo'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "ExamsFound", 1); got != "1 exam" {
		t.Errorf("Tp(ExamsFound, 1) = %q, want '1 exam'", got)
	}
	if got := Tp(ctx, "ExamsFound", 37); got != "37 exams" {
		t.Errorf("Tp(ExamsFound, 37) = %q, want '37 exams'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "YourScore", map[string]any{"Score": 1, "Total": 2, "Percentage": 50})
	if got != "Your score: 1 / 2 (50%)" {
		t.Errorf("Td(YourScore) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestNegotiate(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"es-MX,es;q=0.9", "es"},
		{"fr-FR,en;q=0.5", "en"},
		{"de", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := Negotiate(tt.header); got != tt.want {
				t.Errorf("Negotiate(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Send")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Enviar" {
		t.Errorf("negotiated translation = %q, want 'Enviar'", got)
	}

	forced := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Send")
	}))
	forced.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Send" {
		t.Errorf("forced translation = %q, want 'Send'", got)
	}
}
