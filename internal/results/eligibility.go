package results

import (
	"time"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// Eligibility is everything needed to decide whether a student may start a
// new attempt.
type Eligibility struct {
	Now           time.Time
	StudentID     string
	InstituteID   string
	GroupIDs      []string
	Enrolled      bool
	PriorAttempts int
	Test          exam.Test
	Config        *exam.TestConfiguration
	Visibility    *exam.TestVisibility
}

// CheckEligibility returns an Authorization error naming the first rule the
// student fails. Without a configuration a test allows a single attempt.
func CheckEligibility(e Eligibility) error {
	if len(e.Test.InstituteIDs) > 0 && !contains(e.Test.InstituteIDs, e.InstituteID) {
		return apperr.Forbidden("test is not offered to your institute")
	}
	if !e.Enrolled {
		return apperr.Forbidden("not enrolled in this course")
	}
	if v := e.Visibility; v != nil {
		if contains(v.ExcludeCandidates, e.StudentID) || overlaps(v.ExcludeGroups, e.GroupIDs) {
			return apperr.Forbidden("test is not visible to you")
		}
		restricted := len(v.IncludeCandidates) > 0 || len(v.IncludeGroups) > 0
		if restricted && !contains(v.IncludeCandidates, e.StudentID) && !overlaps(v.IncludeGroups, e.GroupIDs) {
			return apperr.Forbidden("test is not visible to you")
		}
	}

	c := e.Config
	if c == nil {
		if e.PriorAttempts > 0 {
			return apperr.Forbidden("test has already been attempted")
		}
		return nil
	}
	if c.StartTime != nil && e.Now.Before(*c.StartTime) {
		return apperr.Forbidden("test has not opened yet")
	}
	if c.EndTime != nil && e.Now.After(*c.EndTime) {
		return apperr.Forbidden("test window has closed")
	}
	if e.PriorAttempts > 0 && !c.AllowRetake {
		return apperr.Forbidden("retakes are not allowed for this test")
	}
	if c.MaxAttempts > 0 && e.PriorAttempts >= c.MaxAttempts {
		return apperr.Forbidden("attempt limit reached")
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}
