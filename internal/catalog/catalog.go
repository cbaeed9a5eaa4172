// Package catalog holds the fixed list of AP courses offered for practice,
// locally mocked exam content, and the study-plan generator.
package catalog

import (
	"strings"

	"github.com/intelligrade/intelligrade/internal/model"
)

var (
	historyTypes  = []model.QuestionType{model.TypeMCQ, model.TypeSAQ, model.TypeDBQ, model.TypeLEQ}
	frqTypes      = []model.QuestionType{model.TypeMCQ, model.TypeFRQ}
	saqTypes      = []model.QuestionType{model.TypeMCQ, model.TypeSAQ, model.TypeFRQ}
	essayTypes    = []model.QuestionType{model.TypeMCQ, model.TypeLEQ}
	portfolioOnly = []model.QuestionType{}
)

func entry(title, description string, mcq int, types []model.QuestionType, subjects ...string) model.APExam {
	return model.APExam{
		ID:            Slug(title),
		Title:         title,
		Description:   description,
		Subjects:      subjects,
		MCQCount:      mcq,
		QuestionTypes: types,
	}
}

var exams = []model.APExam{
	entry("AP Art History", "Explore art across cultures from prehistory to today.", 80, saqTypes, "Arts", "History"),
	entry("AP Biology", "Evolution, cellular processes, energy, and ecology.", 60, frqTypes, "Science"),
	entry("AP Calculus AB", "Limits, derivatives, and integrals of single-variable functions.", 45, frqTypes, "Math"),
	entry("AP Calculus BC", "Everything in Calculus AB plus series and parametric functions.", 45, frqTypes, "Math"),
	entry("AP Capstone Seminar", "Investigate real-world issues from multiple perspectives.", 0, portfolioOnly, "Capstone"),
	entry("AP Capstone Research", "Design and conduct a year-long research project.", 0, portfolioOnly, "Capstone"),
	entry("AP Chemistry", "Atomic structure, bonding, reactions, kinetics, and equilibrium.", 60, frqTypes, "Science"),
	entry("AP Chinese Language & Culture", "Interpersonal, interpretive, and presentational Chinese.", 70, frqTypes, "World Languages"),
	entry("AP Comparative Government & Politics", "Compare political institutions of six core countries.", 55, frqTypes, "Social Studies"),
	entry("AP Computer Science A", "Object-oriented programming and problem solving in Java.", 40, frqTypes, "Computer Science"),
	entry("AP Computer Science Principles", "Computing innovations, data, algorithms, and the internet.", 70, []model.QuestionType{model.TypeMCQ}, "Computer Science"),
	entry("AP English Language & Composition", "Rhetorical analysis and argument writing.", 45, essayTypes, "English"),
	entry("AP English Literature & Composition", "Close reading and analysis of fiction, poetry, and drama.", 55, essayTypes, "English"),
	entry("AP Environmental Science", "Earth systems, ecosystems, pollution, and sustainability.", 80, frqTypes, "Science"),
	entry("AP European History", "European history from 1450 to the present.", 55, historyTypes, "History"),
	entry("AP French Language & Culture", "Communicate in French across cultural contexts.", 65, frqTypes, "World Languages"),
	entry("AP German Language & Culture", "Communicate in German across cultural contexts.", 65, frqTypes, "World Languages"),
	entry("AP Human Geography", "Patterns and processes shaping human understanding of Earth.", 60, frqTypes, "Social Studies"),
	entry("AP Italian Language & Culture", "Communicate in Italian across cultural contexts.", 65, frqTypes, "World Languages"),
	entry("AP Japanese Language & Culture", "Communicate in Japanese across cultural contexts.", 65, frqTypes, "World Languages"),
	entry("AP Latin", "Translate and analyze Vergil and Caesar.", 50, saqTypes, "World Languages"),
	entry("AP Macroeconomics", "National income, inflation, monetary and fiscal policy.", 60, frqTypes, "Social Studies", "Economics"),
	entry("AP Microeconomics", "Supply and demand, markets, and the role of government.", 60, frqTypes, "Social Studies", "Economics"),
	entry("AP Music Theory", "Musical notation, harmony, and aural skills.", 75, frqTypes, "Arts"),
	entry("AP Physics 1", "Algebra-based mechanics, energy, and waves.", 40, frqTypes, "Science", "Physics"),
	entry("AP Physics 2", "Fluids, thermodynamics, electricity, optics, and modern physics.", 40, frqTypes, "Science", "Physics"),
	entry("AP Physics C: Electricity & Magnetism", "Calculus-based electricity and magnetism.", 40, frqTypes, "Science", "Physics"),
	entry("AP Physics C: Mechanics", "Calculus-based kinematics, dynamics, and rotation.", 40, frqTypes, "Science", "Physics"),
	entry("AP Psychology", "Behavior and mental processes.", 75, frqTypes, "Social Studies"),
	entry("AP Research", "Independent research culminating in an academic paper.", 0, portfolioOnly, "Capstone"),
	entry("AP Seminar", "Team and individual research projects and presentations.", 0, portfolioOnly, "Capstone"),
	entry("AP Spanish Language & Culture", "Communicate in Spanish across cultural contexts.", 65, frqTypes, "World Languages"),
	entry("AP Spanish Literature & Culture", "Read and analyze Spanish-language literature.", 65, saqTypes, "World Languages"),
	entry("AP Statistics", "Exploring data, sampling, probability, and inference.", 40, frqTypes, "Math"),
	entry("AP United States Government & Politics", "Constitutional foundations and political institutions.", 55, frqTypes, "Social Studies"),
	entry("AP United States History", "American history from 1491 to the present.", 55, historyTypes, "History"),
	entry("AP World History: Modern", "Global history from 1200 CE to the present.", 55, historyTypes, "History"),
}

// All returns every exam in catalog order.
func All() []model.APExam {
	out := make([]model.APExam, len(exams))
	copy(out, exams)
	return out
}

// Find returns the exam with the given id.
func Find(id string) (model.APExam, bool) {
	for _, e := range exams {
		if e.ID == id {
			return e, true
		}
	}
	return model.APExam{}, false
}

// Search returns exams whose title, description or any subject contains term,
// case-insensitively. An empty term matches everything.
func Search(term string) []model.APExam {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return All()
	}
	var out []model.APExam
	for _, e := range exams {
		if matches(e, term) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e model.APExam, term string) bool {
	if strings.Contains(strings.ToLower(e.Title), term) ||
		strings.Contains(strings.ToLower(e.Description), term) {
		return true
	}
	for _, s := range e.Subjects {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

// Slug converts a title into a URL-safe identifier ("AP Physics C: Mechanics"
// becomes "ap-physics-c-mechanics").
func Slug(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		default:
			if !dash && sb.Len() > 0 {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
