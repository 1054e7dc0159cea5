package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

type TestKind string

const (
	TestFixed  TestKind = "fixed"
	TestRandom TestKind = "random"
)

// Distribution is the number of questions to draw per difficulty.
type Distribution struct {
	Easy   int `json:"easy" bson:"easy"`
	Medium int `json:"medium" bson:"medium"`
	Hard   int `json:"hard" bson:"hard"`
}

func (d Distribution) Count(level Difficulty) int {
	switch level {
	case Easy:
		return d.Easy
	case Medium:
		return d.Medium
	case Hard:
		return d.Hard
	}
	return 0
}

func (d Distribution) Total() int { return d.Easy + d.Medium + d.Hard }

type Pool struct {
	QuestionSetID string       `json:"questionSetId" bson:"questionSetId"`
	Distribution  Distribution `json:"distribution" bson:"distribution"`
}

type Section struct {
	Name        string   `json:"name" bson:"name"`
	QuestionIDs []string `json:"questionIds,omitempty" bson:"questionIds,omitempty"`
	Pools       []Pool   `json:"pools,omitempty" bson:"pools,omitempty"`
}

// ScoreBand is a histogram bucket over percentage: Min inclusive, Max
// exclusive. A band whose Max is at least 100 also holds 100.
type ScoreBand struct {
	Label string  `json:"label" bson:"label"`
	Min   float64 `json:"min" bson:"min"`
	Max   float64 `json:"max" bson:"max"`
}

type Test struct {
	Meta            `bson:",inline"`
	Name            string      `json:"name" bson:"name"`
	Code            string      `json:"code" bson:"code"`
	Description     string      `json:"description,omitempty" bson:"description,omitempty"`
	Kind            TestKind    `json:"kind" bson:"kind"`
	TotalMarks      float64     `json:"totalMarks" bson:"totalMarks"`
	PassPercentage  *float64    `json:"passPercentage,omitempty" bson:"passPercentage,omitempty"`
	ScoreBands      []ScoreBand `json:"scoreBands,omitempty" bson:"scoreBands,omitempty"`
	DurationMinutes int         `json:"durationMinutes" bson:"durationMinutes"`
	InstituteIDs    []string    `json:"instituteIds" bson:"instituteIds"`
	Sections        []Section   `json:"sections" bson:"sections"`
}

func (t *Test) ApplyDefaults() {
	if t.Kind == "" {
		t.Kind = TestFixed
	}
}

func (t Test) Validate() error {
	var c apperr.Collector
	c.Require("name", t.Name)
	c.Require("code", t.Code)
	if t.Kind != TestFixed && t.Kind != TestRandom {
		c.Add("kind", "must be fixed or random")
	}
	if t.TotalMarks < 0 {
		c.Add("totalMarks", "must not be negative")
	}
	if p := t.PassPercentage; p != nil && (*p < 0 || *p > 100) {
		c.Add("passPercentage", "must be between 0 and 100")
	}
	for i, b := range t.ScoreBands {
		if b.Label == "" || b.Max <= b.Min {
			c.Add(fmt.Sprintf("scoreBands.%d", i), "needs a label and min < max")
		}
	}
	if len(t.Sections) == 0 {
		c.Add("sections", "at least one section is required")
	}
	seen := map[string]bool{}
	for i, s := range t.Sections {
		field := fmt.Sprintf("sections.%d", i)
		if strings.TrimSpace(s.Name) == "" {
			c.Add(field+".name", "is required")
		} else if seen[s.Name] {
			c.Add(field+".name", "must be unique within the test")
		}
		seen[s.Name] = true

		switch t.Kind {
		case TestFixed:
			if len(s.QuestionIDs) == 0 {
				c.Add(field+".questionIds", "a fixed section needs questions")
			}
			if len(s.Pools) > 0 {
				c.Add(field+".pools", "not allowed in a fixed test")
			}
		case TestRandom:
			if len(s.Pools) == 0 {
				c.Add(field+".pools", "a random section needs at least one pool")
			}
			for j, p := range s.Pools {
				pf := fmt.Sprintf("%s.pools.%d", field, j)
				if p.QuestionSetID == "" {
					c.Add(pf+".questionSetId", "is required")
				}
				d := p.Distribution
				if d.Easy < 0 || d.Medium < 0 || d.Hard < 0 {
					c.Add(pf+".distribution", "counts must not be negative")
				} else if d.Total() == 0 {
					c.Add(pf+".distribution", "must draw at least one question")
				}
			}
		}
	}
	return c.Err()
}

func (t Test) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", strings.ToUpper(t.Code))}
}

// QuestionIDs lists the questions of a fixed test in paper order.
func (t Test) QuestionIDs() []string {
	var ids []string
	for _, s := range t.Sections {
		ids = append(ids, s.QuestionIDs...)
	}
	return ids
}

type TestConfiguration struct {
	Meta            `bson:",inline"`
	TestID          string     `json:"testId" bson:"testId"`
	CourseID        string     `json:"courseId" bson:"courseId"`
	StartTime       *time.Time `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty" bson:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes" bson:"durationMinutes"`
	MaxAttempts     int        `json:"maxAttempts" bson:"maxAttempts"` // 0 means unlimited
	AllowRetake     bool       `json:"allowRetake" bson:"allowRetake"`
	AllowCopyPaste  bool       `json:"allowCopyPaste" bson:"allowCopyPaste"`
	PreparationMode bool       `json:"preparationMode" bson:"preparationMode"`
}

func (tc TestConfiguration) Validate() error {
	var c apperr.Collector
	c.Require("testId", tc.TestID)
	c.Require("courseId", tc.CourseID)
	if tc.StartTime != nil && tc.EndTime != nil && !tc.EndTime.After(*tc.StartTime) {
		c.Add("endTime", "must be after startTime")
	}
	if tc.DurationMinutes < 0 {
		c.Add("durationMinutes", "must not be negative")
	}
	if tc.MaxAttempts < 0 {
		c.Add("maxAttempts", "must not be negative")
	}
	return c.Err()
}

func (tc TestConfiguration) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("test_course", tc.TestID, tc.CourseID)}
}

type TestVisibility struct {
	Meta              `bson:",inline"`
	TestID            string   `json:"testId" bson:"testId"`
	IncludeGroups     []string `json:"includeGroups" bson:"includeGroups"`
	ExcludeGroups     []string `json:"excludeGroups" bson:"excludeGroups"`
	IncludeCandidates []string `json:"includeCandidates" bson:"includeCandidates"`
	ExcludeCandidates []string `json:"excludeCandidates" bson:"excludeCandidates"`
}

func (v TestVisibility) Validate() error {
	var c apperr.Collector
	c.Require("testId", v.TestID)
	return c.Err()
}

func (v TestVisibility) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("test", v.TestID)}
}

type Enrollment struct {
	Meta     `bson:",inline"`
	BatchID  string `json:"batchId" bson:"batchId"`
	CourseID string `json:"courseId" bson:"courseId"`
}

func (e Enrollment) Validate() error {
	var c apperr.Collector
	c.Require("batchId", e.BatchID)
	c.Require("courseId", e.CourseID)
	return c.Err()
}

func (e Enrollment) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("batch_course", e.BatchID, e.CourseID)}
}

type CourseSection struct {
	Name    string   `json:"name" bson:"name"`
	TestIDs []string `json:"testIds" bson:"testIds"`
}

type CourseModule struct {
	Name     string          `json:"name" bson:"name"`
	Sections []CourseSection `json:"sections" bson:"sections"`
}

type Course struct {
	Meta        `bson:",inline"`
	Name        string         `json:"name" bson:"name"`
	Code        string         `json:"code" bson:"code"`
	Description string         `json:"description,omitempty" bson:"description,omitempty"`
	Modules     []CourseModule `json:"modules" bson:"modules"`
}

func (co Course) Validate() error {
	var c apperr.Collector
	c.Require("name", co.Name)
	c.Require("code", co.Code)
	for i, m := range co.Modules {
		if m.Name == "" {
			c.Add(fmt.Sprintf("modules.%d.name", i), "is required")
		}
	}
	return c.Err()
}

func (co Course) UniqueKeys() []docstore.UniqueKey {
	return []docstore.UniqueKey{key("code", strings.ToUpper(co.Code))}
}
