package exam

import (
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

type ResultStatus string

const (
	StatusInProgress ResultStatus = "IN_PROGRESS"
	StatusSubmitted  ResultStatus = "SUBMITTED"
	StatusPassed     ResultStatus = "PASSED"
	StatusFailed     ResultStatus = "FAILED"
)

// FinalStatuses are the statuses of a scored attempt.
var FinalStatuses = []ResultStatus{StatusSubmitted, StatusPassed, StatusFailed}

// FinalIn matches the status field of scored attempts.
func FinalIn() docstore.In {
	vs := make([]any, len(FinalStatuses))
	for i, st := range FinalStatuses {
		vs[i] = st
	}
	return docstore.In{Values: vs}
}

func (s ResultStatus) Final() bool {
	return s == StatusSubmitted || s == StatusPassed || s == StatusFailed
}

// PaperItem is one question drawn for an attempt.
type PaperItem struct {
	QuestionID string `json:"questionId" bson:"questionId"`
	Section    string `json:"section" bson:"section"`
}

// Answer is a submitted response. A nil SelectedAnswer is unattempted.
type Answer struct {
	QuestionID     string  `json:"questionId" bson:"questionId"`
	Section        string  `json:"section" bson:"section"`
	SelectedAnswer *int    `json:"selectedAnswer" bson:"selectedAnswer"`
	IsCorrect      *bool   `json:"isCorrect" bson:"isCorrect"`
	MarksAwarded   float64 `json:"marksAwarded" bson:"marksAwarded"`
	TimeSpent      int     `json:"timeSpent" bson:"timeSpent"`
}

type SectionScore struct {
	Correct     int     `json:"correct" bson:"correct"`
	Incorrect   int     `json:"incorrect" bson:"incorrect"`
	Unattempted int     `json:"unattempted" bson:"unattempted"`
	Marks       float64 `json:"marks" bson:"marks"`
}

type TestResult struct {
	Meta          `bson:",inline"`
	CourseID      string                  `json:"courseId" bson:"courseId"`
	TestID        string                  `json:"testId" bson:"testId"`
	StudentID     string                  `json:"studentId" bson:"studentId"`
	AttemptNumber int                     `json:"attemptNumber" bson:"attemptNumber"`
	Paper         []PaperItem             `json:"paper,omitempty" bson:"paper,omitempty"`
	Answers       []Answer                `json:"answers" bson:"answers"`
	SectionScores map[string]SectionScore `json:"sectionScores" bson:"sectionScores"`
	TotalMarks    float64                 `json:"totalMarks" bson:"totalMarks"`
	ObtainedMarks float64                 `json:"obtainedMarks" bson:"obtainedMarks"`
	Percentage    float64                 `json:"percentage" bson:"percentage"`
	Status        ResultStatus            `json:"status" bson:"status"`
	Rank          int                     `json:"rank" bson:"rank"`
	Remarks       string                  `json:"remarks,omitempty" bson:"remarks,omitempty"`
	TimeTaken     int                     `json:"timeTaken" bson:"timeTaken"`
	StartedAt     *time.Time              `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	SubmittedAt   *time.Time              `json:"submittedAt,omitempty" bson:"submittedAt,omitempty"`
}

func (r TestResult) Validate() error {
	var c apperr.Collector
	c.Require("testId", r.TestID)
	c.Require("studentId", r.StudentID)
	if r.AttemptNumber < 1 {
		c.Add("attemptNumber", "must be at least 1")
	}
	return c.Err()
}

// UniqueKeys makes (course, test, student, attempt) the single guard against
// double submission.
func (r TestResult) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("attempt", r.CourseID, r.TestID, r.StudentID, strconv.Itoa(r.AttemptNumber))}
}
