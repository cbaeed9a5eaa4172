// Package prefs holds the application context shared by every view: the
// color theme and the study planner. State is loaded once at startup and
// saved on every change. Persistence is best effort; failures are logged and
// the in-memory state stays authoritative.
package prefs

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/intelligrade/intelligrade/internal/catalog"
	"github.com/intelligrade/intelligrade/internal/model"
)

const themeKey = "theme"

// Storage is the persistence used by Preferences.
type Storage interface {
	GetPreference(key string) (string, error)
	SetPreference(key, value string) error
	SavePlan(id string, e model.PlannerEntry) error
	DeletePlan(id string) error
	ListPlans() (map[string]model.PlannerEntry, error)
}

// Plan is a planner entry with its normalized id.
type Plan struct {
	ID string
	model.PlannerEntry
}

// Preferences is safe for concurrent use.
type Preferences struct {
	storage Storage
	now     func() time.Time

	// saveMu orders writers so storage sees changes in the order they
	// were applied in memory. Readers only take mu.
	saveMu sync.Mutex

	mu      sync.RWMutex
	theme   model.Theme
	planner map[string]model.PlannerEntry
}

// Load reads saved state from storage. A nil storage keeps state in memory
// only. Read failures fall back to defaults.
func Load(storage Storage) *Preferences {
	p := &Preferences{
		storage: storage,
		now:     time.Now,
		theme:   model.ThemeLight,
		planner: make(map[string]model.PlannerEntry),
	}
	if storage == nil {
		return p
	}

	if v, err := storage.GetPreference(themeKey); err != nil {
		slog.Warn("load theme", "error", err)
	} else {
		p.theme = model.ParseTheme(v)
	}

	plans, err := storage.ListPlans()
	if err != nil {
		slog.Warn("load planner", "error", err)
		return p
	}
	for id, e := range plans {
		p.planner[id] = e
	}
	slog.Debug("preferences loaded", "theme", p.theme, "plans", len(p.planner))
	return p
}

// Theme returns the current theme.
func (p *Preferences) Theme() model.Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theme
}

// ToggleTheme switches between light and dark and returns the new theme.
func (p *Preferences) ToggleTheme() model.Theme {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	p.theme = p.theme.Toggle()
	t := p.theme
	p.mu.Unlock()

	if p.storage != nil {
		if err := p.storage.SetPreference(themeKey, string(t)); err != nil {
			slog.Warn("save theme", "error", err)
		}
	}
	return t
}

// HasPlan reports whether a plan exists for exam.
func (p *Preferences) HasPlan(exam string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.planner[catalog.PlannerID(exam)]
	return ok
}

// Plans returns the planner entries, newest first.
func (p *Preferences) Plans() []Plan {
	p.mu.RLock()
	out := make([]Plan, 0, len(p.planner))
	for id, e := range p.planner {
		e.Schedule = append([]model.StudyWeek(nil), e.Schedule...)
		out = append(out, Plan{ID: id, PlannerEntry: e})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddPlannerItem generates a 12-week plan for exam, replacing any existing
// plan for the same exam.
func (p *Preferences) AddPlannerItem(exam string) Plan {
	id := catalog.PlannerID(exam)
	entry := catalog.StudyPlan(exam, p.now().UTC())

	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	p.planner[id] = entry
	p.mu.Unlock()

	if p.storage != nil {
		if err := p.storage.SavePlan(id, entry); err != nil {
			slog.Warn("save plan", "id", id, "error", err)
		}
	}
	return Plan{ID: id, PlannerEntry: entry}
}

// RemovePlannerItem deletes the plan for exam. Unknown exams are ignored.
func (p *Preferences) RemovePlannerItem(exam string) {
	id := catalog.PlannerID(exam)

	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	_, ok := p.planner[id]
	delete(p.planner, id)
	p.mu.Unlock()

	if ok && p.storage != nil {
		if err := p.storage.DeletePlan(id); err != nil {
			slog.Warn("delete plan", "id", id, "error", err)
		}
	}
}
