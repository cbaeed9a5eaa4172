// Package views holds the server-rendered pages. Pages are templ components;
// run `templ generate` after editing a .templ file.
package views

import (
	"context"
	"strconv"

	"github.com/intelligrade/intelligrade/internal/model"
	"github.com/intelligrade/intelligrade/internal/session"
)

// modeLabels maps a question type to its translation ID.
var modeLabels = map[model.QuestionType]string{
	model.TypeMCQ: "ModeMCQ",
	model.TypeSAQ: "ModeSAQ",
	model.TypeDBQ: "ModeDBQ",
	model.TypeLEQ: "ModeLEQ",
	model.TypeFRQ: "ModeFRQ",
}

type navLink struct {
	path  string
	label string
}

var navLinks = []navLink{
	{"/", "NavHome"},
	{"/exams", "NavExams"},
	{"/tutor", "NavTutor"},
	{"/planner", "NavPlanner"},
}

// link prefixes path with the deployment base path.
func link(ctx context.Context, path string) string {
	return model.BasePathFromContext(ctx) + path
}

func sessionPath(id, action string) string {
	return "/session/" + id + "/" + action
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// optionLetter returns A, B, C... for option index i.
func optionLetter(i int) string {
	return string(rune('A' + i))
}

// pending reports whether a session is in a state with no question to show.
func pending(st session.Status) bool {
	switch st {
	case session.StatusIdle, session.StatusGenerating, session.StatusGrading, session.StatusError:
		return true
	}
	return false
}

func examHeading(s session.FullExamSnapshot) string {
	if s.Title != "" {
		return s.Title
	}
	return s.Subject
}

// nextLabel is the translation ID of the forward button.
func nextLabel(last bool) string {
	if last {
		return "Finish"
	}
	return "Next"
}

func ariaBool(b bool) string {
	return strconv.FormatBool(b)
}
