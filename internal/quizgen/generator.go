package quizgen

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"quizroom-service/internal/domain"
)

// Generated is one procedurally built question before display-order shuffling.
type Generated struct {
	Text          string
	CorrectAnswer string
	WrongAnswers  []string
}

// Generator produces procedural questions and the per-run answer shuffles.
// It is not safe for concurrent use; materialization owns one instance per call.
type Generator struct {
	rnd *rand.Rand
}

func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded allows deterministic output in tests.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds count questions for the given subtype. The fractions and
// angles subtypes are declared in the enum but have no generator yet.
func (g *Generator) Generate(subtype domain.Subtype, count int) ([]Generated, error) {
	questions := make([]Generated, 0, count)
	for i := 0; i < count; i++ {
		switch subtype {
		case domain.SubtypeAdditionSingle:
			questions = append(questions, g.additionSingle())
		case domain.SubtypeAdditionDouble:
			questions = append(questions, g.additionDouble())
		default:
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSubtype, subtype)
		}
	}
	return questions, nil
}

func (g *Generator) additionSingle() Generated {
	a := g.intn(1, 9)
	b := g.intn(1, 9)
	correct := a + b
	return Generated{
		Text:          fmt.Sprintf("%d + %d = ?", a, b),
		CorrectAnswer: strconv.Itoa(correct),
		WrongAnswers:  g.distractors(correct, 3, 20),
	}
}

func (g *Generator) additionDouble() Generated {
	a := g.intn(10, 99)
	b := g.intn(10, 99)
	correct := a + b
	return Generated{
		Text:          fmt.Sprintf("%d + %d = ?", a, b),
		CorrectAnswer: strconv.Itoa(correct),
		WrongAnswers:  g.distractors(correct, 10, 0),
	}
}

// distractors perturbs correct by a bounded random offset until three unique
// values are collected. Candidates must be strictly positive and, when max is
// set, no larger than max. The spread widens after a retry budget so small
// answer domains cannot loop forever.
func (g *Generator) distractors(correct, spread, max int) []string {
	seen := make(map[int]struct{}, 3)
	wrong := make([]string, 0, 3)
	attempts := 0
	for len(wrong) < 3 {
		attempts++
		if attempts%24 == 0 {
			spread++
		}
		offset := g.intn(-spread, spread)
		candidate := correct + offset
		if candidate == correct || candidate <= 0 {
			continue
		}
		if max > 0 && candidate > max {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		wrong = append(wrong, strconv.Itoa(candidate))
	}
	return wrong
}

// ShuffleAnswers returns the display order for one question: the correct
// answer and its distractors in a random permutation. Called once per
// (run, question); the result is stored with the run so every client sees
// the same order.
func (g *Generator) ShuffleAnswers(correct string, wrong []string) []string {
	answers := make([]string, 0, len(wrong)+1)
	answers = append(answers, correct)
	answers = append(answers, wrong...)
	g.rnd.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	return answers
}

// ShuffleQuestions permutes a materialized question list in place.
func (g *Generator) ShuffleQuestions(questions []domain.Question) {
	g.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

func (g *Generator) intn(min, max int) int {
	return g.rnd.Intn(max-min+1) + min
}
