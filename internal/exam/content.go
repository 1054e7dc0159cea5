package exam

import (
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

type Exam struct {
	Meta        `bson:",inline"`
	Name        string `json:"name" bson:"name"`
	Code        string `json:"code" bson:"code"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

func (e Exam) Validate() error {
	var c apperr.Collector
	c.Require("name", e.Name)
	c.Require("code", e.Code)
	return c.Err()
}

func (e Exam) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", strings.ToUpper(e.Code))}
}

type Subject struct {
	Meta   `bson:",inline"`
	ExamID string `json:"examId" bson:"examId"`
	Name   string `json:"name" bson:"name"`
	Code   string `json:"code" bson:"code"`
}

func (s Subject) Validate() error {
	var c apperr.Collector
	c.Require("examId", s.ExamID)
	c.Require("name", s.Name)
	return c.Err()
}

func (s Subject) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("name", s.ExamID, strings.ToLower(s.Name))}
}

type Chapter struct {
	Meta      `bson:",inline"`
	SubjectID string `json:"subjectId" bson:"subjectId"`
	Name      string `json:"name" bson:"name"`
}

func (ch Chapter) Validate() error {
	var c apperr.Collector
	c.Require("subjectId", ch.SubjectID)
	c.Require("name", ch.Name)
	return c.Err()
}

func (ch Chapter) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("name", ch.SubjectID, strings.ToLower(ch.Name))}
}

type QuestionSet struct {
	Meta         `bson:",inline"`
	Name         string   `json:"name" bson:"name"`
	Code         string   `json:"code" bson:"code"`
	ExamID       string   `json:"examId" bson:"examId"`
	SubjectID    string   `json:"subjectId" bson:"subjectId"`
	ChapterID    string   `json:"chapterId" bson:"chapterId"`
	InstituteIDs []string `json:"instituteIds" bson:"instituteIds"`
}

func (q QuestionSet) Validate() error {
	var c apperr.Collector
	c.Require("name", q.Name)
	c.Require("code", q.Code)
	return c.Err()
}

func (q QuestionSet) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", strings.ToUpper(q.Code))}
}

type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Difficulties is the fixed draw order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

type Question struct {
	Meta          `bson:",inline"`
	QuestionSetID string     `json:"questionSetId" bson:"questionSetId"`
	Text          string     `json:"text" bson:"text"`
	Options       []string   `json:"options" bson:"options"`
	CorrectOption int        `json:"correctOption" bson:"correctOption"`
	Explanation   string     `json:"explanation,omitempty" bson:"explanation,omitempty"`
	Tags          []string   `json:"tags" bson:"tags"`
	Difficulty    Difficulty `json:"difficulty" bson:"difficulty"`
	Marks         float64    `json:"marks" bson:"marks"`
	NegativeMarks float64    `json:"negativeMarks" bson:"negativeMarks"`
}

func (q *Question) ApplyDefaults() {
	if q.Marks == 0 {
		q.Marks = 1
	}
	if q.Difficulty == "" {
		q.Difficulty = Medium
	}
}

func (q Question) Validate() error {
	var c apperr.Collector
	c.Require("questionSetId", q.QuestionSetID)
	c.Require("text", strings.TrimSpace(q.Text))
	if len(q.Options) < 2 {
		c.Add("options", "at least two options are required")
	}
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			c.Add("options."+strconv.Itoa(i), "must not be empty")
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		c.Add("correctOption", "must index one of the options")
	}
	if !q.Difficulty.Valid() {
		c.Add("difficulty", "must be Easy, Medium or Hard")
	}
	if q.Marks <= 0 {
		c.Add("marks", "must be positive")
	}
	if q.NegativeMarks < 0 {
		c.Add("negativeMarks", "must not be negative")
	}
	return c.Err()
}

func (q Question) UniqueKeys() []docstore.UniqueKey { return nil }

// Correct reports whether selected is the right option.
func (q Question) Correct(selected int) bool { return selected == q.CorrectOption }
