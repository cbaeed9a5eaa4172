package prefs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestThemePersists(t *testing.T) {
	s := newStore(t)

	p := Load(s)
	if p.Theme() != model.ThemeLight {
		t.Fatalf("default theme = %s, want light", p.Theme())
	}
	if got := p.ToggleTheme(); got != model.ThemeDark {
		t.Fatalf("ToggleTheme = %s, want dark", got)
	}

	if got := Load(s).Theme(); got != model.ThemeDark {
		t.Errorf("reloaded theme = %s, want dark", got)
	}
}

func TestPlannerPersists(t *testing.T) {
	s := newStore(t)
	p := Load(s)

	plan := p.AddPlannerItem("AP World History: Modern")
	if plan.ID != "ap_world_history:_modern" || len(plan.Schedule) != 12 {
		t.Fatalf("unexpected plan: %s with %d weeks", plan.ID, len(plan.Schedule))
	}
	p.AddPlannerItem("AP Biology")
	if !p.HasPlan("AP Biology") {
		t.Error("HasPlan should be true after adding")
	}

	reloaded := Load(s)
	if got := len(reloaded.Plans()); got != 2 {
		t.Fatalf("reloaded %d plans, want 2", got)
	}

	reloaded.RemovePlannerItem("AP Biology")
	reloaded.RemovePlannerItem("AP Latin")
	if reloaded.HasPlan("AP Biology") {
		t.Error("plan should be removed")
	}
	if got := len(Load(s).Plans()); got != 1 {
		t.Errorf("after removal %d plans persisted, want 1", got)
	}
}

func TestPlansOrder(t *testing.T) {
	p := Load(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	p.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}
	p.AddPlannerItem("AP Biology")
	p.AddPlannerItem("AP Chemistry")

	plans := p.Plans()
	if len(plans) != 2 || plans[0].Exam != "AP Chemistry" {
		t.Errorf("plans should be newest first: %+v", plans)
	}
}

// failingStorage fails every operation.
type failingStorage struct{}

var errStorage = errors.New("storage unavailable")

func (failingStorage) GetPreference(string) (string, error)              { return "", errStorage }
func (failingStorage) SetPreference(string, string) error                { return errStorage }
func (failingStorage) SavePlan(string, model.PlannerEntry) error         { return errStorage }
func (failingStorage) DeletePlan(string) error                           { return errStorage }
func (failingStorage) ListPlans() (map[string]model.PlannerEntry, error) { return nil, errStorage }

func TestBestEffort(t *testing.T) {
	p := Load(failingStorage{})
	if p.Theme() != model.ThemeLight {
		t.Error("failed load should fall back to light")
	}
	if p.ToggleTheme() != model.ThemeDark || p.Theme() != model.ThemeDark {
		t.Error("theme should change in memory despite save failure")
	}
	p.AddPlannerItem("AP Biology")
	if !p.HasPlan("AP Biology") {
		t.Error("plan should be kept in memory despite save failure")
	}
	p.RemovePlannerItem("AP Biology")
	if p.HasPlan("AP Biology") {
		t.Error("plan should be removed in memory despite delete failure")
	}
}

// slowStorage records theme saves and holds each one briefly so concurrent
// writers overlap.
type slowStorage struct {
	failingStorage
	mu    sync.Mutex
	saved []string
}

func (s *slowStorage) SetPreference(_, value string) error {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	s.saved = append(s.saved, value)
	s.mu.Unlock()
	return nil
}

func TestConcurrentTogglesSaveInOrder(t *testing.T) {
	st := &slowStorage{}
	p := Load(st)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ToggleTheme()
		}()
	}
	wg.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.saved) != 20 {
		t.Fatalf("saved %d times, want 20", len(st.saved))
	}
	for i, v := range st.saved {
		want := string(model.ThemeDark)
		if i%2 == 1 {
			want = string(model.ThemeLight)
		}
		if v != want {
			t.Fatalf("save %d = %s, want %s (saves %v)", i, v, want, st.saved)
		}
	}
	if last := st.saved[len(st.saved)-1]; last != string(p.Theme()) {
		t.Errorf("stored theme %s differs from in-memory %s", last, p.Theme())
	}
}
