// Package grading scores single-choice answer sheets against a paper.
package grading

import (
	"math"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// Item is one question of a paper together with the section it sits in.
type Item struct {
	Question exam.Question
	Section  string
}

type Outcome int

const (
	Unattempted Outcome = iota
	Correct
	Incorrect
)

// Grade applies the marking policy to one response: full marks when correct,
// minus the negative marks when wrong, nothing when left blank.
func Grade(q exam.Question, selected *int) (Outcome, float64) {
	switch {
	case selected == nil:
		return Unattempted, 0
	case q.Correct(*selected):
		return Correct, q.Marks
	case q.NegativeMarks == 0:
		return Incorrect, 0
	default:
		return Incorrect, -q.NegativeMarks
	}
}

// Scorecard is the scored form of an answer sheet.
type Scorecard struct {
	Answers       []exam.Answer
	SectionScores map[string]exam.SectionScore
	TotalMarks    float64
	ObtainedMarks float64
	Percentage    float64
	Status        exam.ResultStatus
}

// Score grades answers against paper.
//
// Answers for questions that are not on the paper are dropped, and only the
// first answer per question counts. Paper questions without an answer count
// as unattempted. When totalMarks is 0 the sum of the paper's marks is used.
// Status is PASSED or FAILED when passPercentage is set, SUBMITTED otherwise.
func Score(paper []Item, answers []exam.Answer, totalMarks float64, passPercentage *float64) Scorecard {
	byID := make(map[string]Item, len(paper))
	sc := Scorecard{SectionScores: map[string]exam.SectionScore{}}
	var paperMarks float64
	for _, it := range paper {
		if _, dup := byID[it.Question.ID]; dup {
			continue
		}
		byID[it.Question.ID] = it
		paperMarks += it.Question.Marks
		sc.SectionScores[it.Section] = exam.SectionScore{}
	}

	seen := make(map[string]bool, len(answers))
	sc.Answers = make([]exam.Answer, 0, len(answers))
	for _, a := range answers {
		it, ok := byID[a.QuestionID]
		if !ok || seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true

		outcome, marks := Grade(it.Question, a.SelectedAnswer)
		scored := exam.Answer{
			QuestionID:     a.QuestionID,
			Section:        it.Section,
			SelectedAnswer: a.SelectedAnswer,
			MarksAwarded:   marks,
			TimeSpent:      a.TimeSpent,
		}
		ss := sc.SectionScores[it.Section]
		switch outcome {
		case Correct:
			scored.IsCorrect = boolPtr(true)
			ss.Correct++
		case Incorrect:
			scored.IsCorrect = boolPtr(false)
			ss.Incorrect++
		default:
			ss.Unattempted++
		}
		ss.Marks += marks
		sc.SectionScores[it.Section] = ss
		sc.ObtainedMarks += marks
		sc.Answers = append(sc.Answers, scored)
	}

	for id, it := range byID {
		if !seen[id] {
			ss := sc.SectionScores[it.Section]
			ss.Unattempted++
			sc.SectionScores[it.Section] = ss
		}
	}

	sc.TotalMarks = totalMarks
	if sc.TotalMarks <= 0 {
		sc.TotalMarks = paperMarks
	}
	sc.Percentage = Percentage(sc.ObtainedMarks, sc.TotalMarks)

	sc.Status = exam.StatusSubmitted
	if passPercentage != nil {
		sc.Status = exam.StatusFailed
		if sc.Percentage >= *passPercentage {
			sc.Status = exam.StatusPassed
		}
	}
	return sc
}

// Percentage is obtained/total*100 floored at zero, 0 when total is 0.
func Percentage(obtained, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Max(0, obtained/total*100)
}

func boolPtr(b bool) *bool { return &b }
