package results

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/assembly"
	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/docstore/docstoretest"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

var (
	student = rbac.Principal{UserID: "s1", Role: rbac.RoleStudent, InstituteID: "inst-a"}
	peer    = rbac.Principal{UserID: "s2", Role: rbac.RoleStudent, InstituteID: "inst-a"}
	coach   = rbac.Principal{UserID: "t1", Role: rbac.RoleTrainer, InstituteID: "inst-a"}
	root    = rbac.Principal{UserID: "root", Role: rbac.RoleSuperAdmin}
)

type spyInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (s *spyInvalidator) Invalidate(_ context.Context, testID, _ string) {
	s.mu.Lock()
	s.ids = append(s.ids, testID)
	s.mu.Unlock()
}

type env struct {
	store  docstore.Store
	svc    *Service
	events *audit.Log
	inv    *spyInvalidator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := docstoretest.New(t)
	events := audit.NewLog(store, log)
	inv := &spyInvalidator{}
	svc := NewService(store, assembly.New(store, rand.New(rand.NewSource(3))), events, inv, log)
	return &env{store: store, svc: svc, events: events, inv: inv}
}

func put[T any](t *testing.T, e *env, coll, id string, v T) {
	t.Helper()
	require.NoError(t, e.store.Insert(context.Background(), coll, id, v, nil))
}

func active(id string) exam.Meta {
	return exam.Meta{ID: id, InstituteID: "inst-a", Lifecycle: exam.LifecycleActive}
}

func (e *env) question(t *testing.T, id, set string, level exam.Difficulty, marks, negative float64) {
	put(t, e, exam.CollQuestions, id, exam.Question{
		Meta:          active(id),
		QuestionSetID: set,
		Text:          "question " + id,
		Options:       []string{"a", "b", "c", "d"},
		CorrectOption: 0,
		Difficulty:    level,
		Marks:         marks,
		NegativeMarks: negative,
	})
}

// fixedTest is the 2 x 50 marks, 12.5 penalty paper.
func (e *env) fixedTest(t *testing.T, id string) exam.Test {
	e.question(t, id+"-q1", "set", exam.Easy, 50, 12.5)
	e.question(t, id+"-q2", "set", exam.Easy, 50, 12.5)
	tt := exam.Test{
		Meta:       active(id),
		Name:       "Mock",
		Code:       id,
		Kind:       exam.TestFixed,
		TotalMarks: 100,
		Sections:   []exam.Section{{Name: "Physics", QuestionIDs: []string{id + "-q1", id + "-q2"}}},
	}
	put(t, e, exam.CollTests, id, tt)
	return tt
}

func pick(i int) *int { return &i }

func TestSubmitScoresAndPersists(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	r, err := e.svc.Submit(ctx, student, SubmitRequest{
		TestID: "t1",
		Answers: []exam.Answer{
			{QuestionID: "t1-q1", SelectedAnswer: pick(0)},
			{QuestionID: "t1-q2", SelectedAnswer: pick(2)},
			{QuestionID: "elsewhere", SelectedAnswer: pick(0)},
		},
		TimeTaken: 600,
	})
	require.NoError(t, err)

	assert.Equal(t, 37.5, r.ObtainedMarks)
	assert.Equal(t, 37.5, r.Percentage)
	assert.Equal(t, exam.StatusSubmitted, r.Status)
	assert.Equal(t, 1, r.AttemptNumber)
	assert.Equal(t, 1, r.Rank)
	assert.Equal(t, "s1", r.StudentID)
	assert.Equal(t, "inst-a", r.InstituteID)
	assert.Len(t, r.Answers, 2)
	assert.NotNil(t, r.SubmittedAt)

	var stored exam.TestResult
	require.NoError(t, e.store.Get(ctx, exam.CollTestResults, r.ID, &stored))
	assert.Equal(t, r.ObtainedMarks, stored.ObtainedMarks)
	assert.Equal(t, exam.SectionScore{Correct: 1, Incorrect: 1, Marks: 37.5}, stored.SectionScores["Physics"])

	events, err := e.events.ForKey(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ResultSubmitted, events[0].Type)
	assert.Equal(t, []string{"t1"}, e.inv.ids)
}

func TestSubmitTwiceIsDuplicate(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()
	req := SubmitRequest{TestID: "t1", Answers: []exam.Answer{{QuestionID: "t1-q1", SelectedAnswer: pick(0)}}}

	_, err := e.svc.Submit(ctx, student, req)
	require.NoError(t, err)
	_, err = e.svc.Submit(ctx, student, req)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDuplicateSubmission, apperr.KindOf(err))

	n, err := e.store.Count(ctx, exam.CollTestResults, docstore.Filter{"studentId": "s1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	req.AttemptNumber = 2
	_, err = e.svc.Submit(ctx, student, req)
	assert.Equal(t, "test has already been attempted", apperr.As(err).Message)

	req.AttemptNumber = 3
	_, err = e.svc.Submit(ctx, student, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	n, err = e.store.Count(ctx, exam.CollTestResults, docstore.Filter{"studentId": "s1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDirectSubmitHonoursConfiguration(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()
	closes := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	put(t, e, exam.CollUsers, "s1", exam.User{Meta: active("s1"), Role: rbac.RoleStudent, BatchIDs: []string{"b1"}})
	put(t, e, exam.CollTestConfigurations, "cfg", exam.TestConfiguration{
		Meta: active("cfg"), TestID: "t1", CourseID: "c1", AllowRetake: true, MaxAttempts: 2, EndTime: &closes,
	})
	req := SubmitRequest{TestID: "t1", CourseID: "c1"}

	_, err := e.svc.Submit(ctx, student, req)
	assert.Equal(t, "not enrolled in this course", apperr.As(err).Message)

	put(t, e, exam.CollEnrollments, "en", exam.Enrollment{Meta: active("en"), BatchID: "b1", CourseID: "c1"})
	for attempt := 1; attempt <= 2; attempt++ {
		req.AttemptNumber = attempt
		r, err := e.svc.Submit(ctx, student, req)
		require.NoError(t, err)
		assert.Equal(t, attempt, r.AttemptNumber)
	}

	req.AttemptNumber = 3
	_, err = e.svc.Submit(ctx, student, req)
	assert.Equal(t, "attempt limit reached", apperr.As(err).Message)

	put(t, e, exam.CollUsers, "s2", exam.User{Meta: active("s2"), Role: rbac.RoleStudent, BatchIDs: []string{"b1"}})
	e.svc.now = func() time.Time { return closes.Add(time.Hour) }
	_, err = e.svc.Submit(ctx, peer, SubmitRequest{TestID: "t1", CourseID: "c1"})
	assert.Equal(t, "test window has closed", apperr.As(err).Message)
}

func TestConcurrentSubmissionsStoreOne(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Submit(ctx, student, SubmitRequest{TestID: "t1"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.KindDuplicateSubmission, apperr.KindOf(err))
	}
	assert.Equal(t, 1, ok)
}

func TestSubmitRank(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	for i, marks := range []float64{90, 70, 80} {
		id := fmt.Sprintf("prior-%d", i)
		put(t, e, exam.CollTestResults, id, exam.TestResult{
			Meta:          active(id),
			TestID:        "t1",
			StudentID:     fmt.Sprintf("other-%d", i),
			AttemptNumber: 1,
			ObtainedMarks: marks,
			Status:        exam.StatusSubmitted,
		})
	}
	put(t, e, exam.CollTestResults, "open", exam.TestResult{
		Meta: active("open"), TestID: "t1", StudentID: "x", AttemptNumber: 1,
		ObtainedMarks: 99, Status: exam.StatusInProgress,
	})

	// t85 is a single question worth exactly 85.
	e.question(t, "q85", "set", exam.Easy, 85, 0)
	put(t, e, exam.CollTests, "t85", exam.Test{
		Meta: active("t85"), Name: "x", Code: "t85", Kind: exam.TestFixed, TotalMarks: 100,
		Sections: []exam.Section{{Name: "A", QuestionIDs: []string{"q85"}}},
	})
	for i, marks := range []float64{90, 70, 80} {
		id := fmt.Sprintf("p85-%d", i)
		put(t, e, exam.CollTestResults, id, exam.TestResult{
			Meta: active(id), TestID: "t85", StudentID: fmt.Sprintf("o-%d", i), AttemptNumber: 1,
			ObtainedMarks: marks, Status: exam.StatusSubmitted,
		})
	}

	r, err := e.svc.Submit(ctx, student, SubmitRequest{
		TestID:  "t85",
		Answers: []exam.Answer{{QuestionID: "q85", SelectedAnswer: pick(0)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 85.0, r.ObtainedMarks)
	assert.Equal(t, 2, r.Rank)

	r, err = e.svc.Submit(ctx, peer, SubmitRequest{TestID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 4, r.Rank, "in-progress attempts do not count")
}

func TestSubmitAuthorizationAndMissingTest(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, student, SubmitRequest{TestID: "t1", StudentID: "s2"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	_, err = e.svc.Submit(ctx, coach, SubmitRequest{TestID: "t1"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	_, err = e.svc.Submit(ctx, student, SubmitRequest{TestID: "nope"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	r, err := e.svc.Submit(ctx, root, SubmitRequest{TestID: "t1", StudentID: "s7"})
	require.NoError(t, err)
	assert.Equal(t, "s7", r.StudentID)
}

func TestPassFailStatus(t *testing.T) {
	e := newEnv(t)
	tt := e.fixedTest(t, "t1")
	pass := 40.0
	tt.PassPercentage = &pass
	require.NoError(t, e.store.Replace(context.Background(), exam.CollTests, "t1", tt, nil, nil))

	r, err := e.svc.Submit(context.Background(), student, SubmitRequest{
		TestID:  "t1",
		Answers: []exam.Answer{{QuestionID: "t1-q1", SelectedAnswer: pick(0)}},
	})
	require.NoError(t, err)
	assert.Equal(t, exam.StatusPassed, r.Status)

	r, err = e.svc.Submit(context.Background(), peer, SubmitRequest{TestID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, exam.StatusFailed, r.Status)
	assert.Zero(t, r.Percentage)
}

func (e *env) randomTest(t *testing.T) {
	for i := 0; i < 4; i++ {
		e.question(t, fmt.Sprintf("e%d", i), "pool", exam.Easy, 1, 0.25)
	}
	for i := 0; i < 2; i++ {
		e.question(t, fmt.Sprintf("h%d", i), "pool", exam.Hard, 2, 0.5)
	}
	put(t, e, exam.CollTests, "rt", exam.Test{
		Meta: active("rt"), Name: "Random", Code: "RT", Kind: exam.TestRandom,
		Sections: []exam.Section{{Name: "Mixed", Pools: []exam.Pool{
			{QuestionSetID: "pool", Distribution: exam.Distribution{Easy: 2, Hard: 1}},
		}}},
	})
}

func TestRandomAttemptLifecycle(t *testing.T) {
	e := newEnv(t)
	e.randomTest(t)
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, student, SubmitRequest{TestID: "rt"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	att, err := e.svc.Start(ctx, student, StartRequest{TestID: "rt"})
	require.NoError(t, err)
	assert.Equal(t, exam.StatusInProgress, att.Result.Status)
	assert.Equal(t, 1, att.Result.AttemptNumber)
	assert.Equal(t, 4.0, att.Result.TotalMarks)
	require.Len(t, att.Questions, 3)
	require.Len(t, att.Result.Paper, 3)

	again, err := e.svc.Start(ctx, student, StartRequest{TestID: "rt"})
	require.NoError(t, err)
	assert.Equal(t, att.Result.ID, again.Result.ID, "open attempt is resumed")
	assert.Equal(t, att.Result.Paper, again.Result.Paper)

	var answers []exam.Answer
	for _, q := range att.Questions {
		answers = append(answers, exam.Answer{QuestionID: q.ID, SelectedAnswer: pick(0)})
	}
	answers = append(answers, exam.Answer{QuestionID: "not-drawn", SelectedAnswer: pick(0)})

	r, err := e.svc.Submit(ctx, student, SubmitRequest{TestID: "rt", Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, att.Result.ID, r.ID)
	assert.Equal(t, 4.0, r.ObtainedMarks)
	assert.Equal(t, 100.0, r.Percentage)
	assert.Equal(t, att.Result.StartedAt.Unix(), r.StartedAt.Unix())
	assert.Len(t, r.Answers, 3)

	_, err = e.svc.Submit(ctx, student, SubmitRequest{TestID: "rt", Answers: answers})
	assert.Equal(t, apperr.KindDuplicateSubmission, apperr.KindOf(err))

	_, err = e.svc.Start(ctx, student, StartRequest{TestID: "rt"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), "no configuration means one attempt")

	events, err := e.events.ForKey(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.AttemptStarted, events[0].Type)
}

func TestStartInsufficientQuestions(t *testing.T) {
	e := newEnv(t)
	e.question(t, "e0", "thin", exam.Easy, 1, 0)
	e.question(t, "e1", "thin", exam.Easy, 1, 0)
	put(t, e, exam.CollTests, "rt", exam.Test{
		Meta: active("rt"), Name: "Random", Code: "RT", Kind: exam.TestRandom,
		Sections: []exam.Section{{Name: "A", Pools: []exam.Pool{
			{QuestionSetID: "thin", Distribution: exam.Distribution{Easy: 3}},
		}}},
	})

	_, err := e.svc.Start(context.Background(), student, StartRequest{TestID: "rt"})
	assert.Equal(t, apperr.KindInsufficientQuestions, apperr.KindOf(err))

	n, err := e.store.Count(context.Background(), exam.CollTestResults, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartWithCourseConfiguration(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	put(t, e, exam.CollUsers, "s1", exam.User{Meta: active("s1"), Name: "S", Email: "s1@x.io", Role: rbac.RoleStudent, BatchIDs: []string{"b1"}})
	put(t, e, exam.CollTestConfigurations, "cfg", exam.TestConfiguration{
		Meta: active("cfg"), TestID: "t1", CourseID: "c1", AllowRetake: true, MaxAttempts: 2,
	})

	_, err := e.svc.Start(ctx, student, StartRequest{TestID: "t1", CourseID: "c1"})
	assert.Equal(t, "not enrolled in this course", apperr.As(err).Message)

	put(t, e, exam.CollEnrollments, "en", exam.Enrollment{Meta: active("en"), BatchID: "b1", CourseID: "c1"})

	for attempt := 1; attempt <= 2; attempt++ {
		att, err := e.svc.Start(ctx, student, StartRequest{TestID: "t1", CourseID: "c1"})
		require.NoError(t, err)
		assert.Equal(t, attempt, att.Result.AttemptNumber)
		assert.Len(t, att.Questions, 2)

		_, err = e.svc.Submit(ctx, student, SubmitRequest{TestID: "t1", CourseID: "c1", AttemptNumber: attempt})
		require.NoError(t, err)
	}

	_, err = e.svc.Start(ctx, student, StartRequest{TestID: "t1", CourseID: "c1"})
	assert.Equal(t, "attempt limit reached", apperr.As(err).Message)
}

func TestStartRespectsWindow(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	opens := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	put(t, e, exam.CollUsers, "s1", exam.User{Meta: active("s1"), Role: rbac.RoleStudent, BatchIDs: []string{"b1"}})
	put(t, e, exam.CollEnrollments, "en", exam.Enrollment{Meta: active("en"), BatchID: "b1", CourseID: "c1"})
	put(t, e, exam.CollTestConfigurations, "cfg", exam.TestConfiguration{
		Meta: active("cfg"), TestID: "t1", CourseID: "c1", StartTime: &opens,
	})

	_, err := e.svc.Start(context.Background(), student, StartRequest{TestID: "t1", CourseID: "c1"})
	assert.Equal(t, "test has not opened yet", apperr.As(err).Message)

	e.svc.now = func() time.Time { return opens.Add(time.Minute) }
	_, err = e.svc.Start(context.Background(), student, StartRequest{TestID: "t1", CourseID: "c1"})
	assert.NoError(t, err)
}

func TestListings(t *testing.T) {
	e := newEnv(t)
	e.fixedTest(t, "t1")
	ctx := context.Background()

	for i, marks := range []float64{50, 80, 80, 20} {
		id := fmt.Sprintf("r%d", i)
		put(t, e, exam.CollTestResults, id, exam.TestResult{
			Meta: active(id), TestID: "t1", StudentID: fmt.Sprintf("s%d", i), AttemptNumber: 1,
			ObtainedMarks: marks, Status: exam.StatusSubmitted,
		})
	}

	elsewhere := exam.Meta{ID: "rb", InstituteID: "inst-b", Lifecycle: exam.LifecycleActive}
	put(t, e, exam.CollTestResults, "rb", exam.TestResult{
		Meta: elsewhere, TestID: "t1", StudentID: "b1", AttemptNumber: 1,
		ObtainedMarks: 99, Status: exam.StatusSubmitted,
	})

	rs, err := e.svc.ForTest(ctx, root, "t1")
	require.NoError(t, err)
	assert.Len(t, rs, 5)

	rs, err = e.svc.ForTest(ctx, coach, "t1")
	require.NoError(t, err)
	require.Len(t, rs, 4, "results of other institutes stay hidden")
	var got []string
	for _, r := range rs {
		got = append(got, fmt.Sprintf("%.0f:%d", r.ObtainedMarks, r.Rank))
	}
	assert.Equal(t, []string{"80:1", "80:1", "50:3", "20:4"}, got)

	_, err = e.svc.ForTest(ctx, student, "t1")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	page, err := e.svc.ForStudent(ctx, student, "", exam.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "s1", page.Data[0].StudentID)

	_, err = e.svc.ForStudent(ctx, student, "s2", exam.ListParams{})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	page, err = e.svc.ForStudent(ctx, coach, "s2", exam.ListParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}
