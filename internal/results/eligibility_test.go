package results

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	base := func() Eligibility {
		return Eligibility{
			Now:         now,
			StudentID:   "s1",
			InstituteID: "inst-a",
			GroupIDs:    []string{"g1"},
			Enrolled:    true,
			Test:        exam.Test{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Eligibility)
		reason string
	}{
		{"first attempt without config", func(e *Eligibility) {}, ""},
		{"second attempt without config", func(e *Eligibility) { e.PriorAttempts = 1 }, "test has already been attempted"},
		{"other institute", func(e *Eligibility) { e.Test.InstituteIDs = []string{"inst-b"} }, "test is not offered to your institute"},
		{"listed institute", func(e *Eligibility) { e.Test.InstituteIDs = []string{"inst-b", "inst-a"} }, ""},
		{"not enrolled", func(e *Eligibility) { e.Enrolled = false }, "not enrolled in this course"},
		{"excluded candidate", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{ExcludeCandidates: []string{"s1"}}
		}, "test is not visible to you"},
		{"excluded group", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{ExcludeGroups: []string{"g1"}}
		}, "test is not visible to you"},
		{"include list without student", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{IncludeGroups: []string{"g2"}, IncludeCandidates: []string{"s9"}}
		}, "test is not visible to you"},
		{"included by group", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{IncludeGroups: []string{"g1"}}
		}, ""},
		{"included by candidate", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{IncludeCandidates: []string{"s1"}}
		}, ""},
		{"exclusion beats inclusion", func(e *Eligibility) {
			e.Visibility = &exam.TestVisibility{IncludeCandidates: []string{"s1"}, ExcludeGroups: []string{"g1"}}
		}, "test is not visible to you"},
		{"not open yet", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{StartTime: &after}
		}, "test has not opened yet"},
		{"closed", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{EndTime: &before}
		}, "test window has closed"},
		{"inside window", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{StartTime: &before, EndTime: &after}
		}, ""},
		{"retake not allowed", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{}
			e.PriorAttempts = 1
		}, "retakes are not allowed for this test"},
		{"retake within limit", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{AllowRetake: true, MaxAttempts: 3}
			e.PriorAttempts = 2
		}, ""},
		{"attempt limit", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{AllowRetake: true, MaxAttempts: 3}
			e.PriorAttempts = 3
		}, "attempt limit reached"},
		{"unlimited retakes", func(e *Eligibility) {
			e.Config = &exam.TestConfiguration{AllowRetake: true}
			e.PriorAttempts = 40
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(&e)
			err := CheckEligibility(e)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			ae := apperr.As(err)
			assert.Equal(t, apperr.KindAuthorization, ae.Kind)
			assert.Equal(t, tt.reason, ae.Message)
		})
	}
}
