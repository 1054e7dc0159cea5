// Package results runs the attempt workflow: starting an attempt, scoring a
// submission and listing results.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/assembly"
	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Invalidator drops derived data of a test after a new result lands.
type Invalidator interface {
	Invalidate(ctx context.Context, testID, instituteID string)
}

type Service struct {
	tests        docstore.Collection[exam.Test]
	results      docstore.Collection[exam.TestResult]
	configs      docstore.Collection[exam.TestConfiguration]
	visibilities docstore.Collection[exam.TestVisibility]
	enrollments  docstore.Collection[exam.Enrollment]
	groups       docstore.Collection[exam.Group]
	users        docstore.Collection[exam.User]

	assembler   *assembly.Assembler
	events      *audit.Log
	invalidator Invalidator
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewService(store docstore.Store, asm *assembly.Assembler, events *audit.Log, inv Invalidator, log logrus.FieldLogger) *Service {
	return &Service{
		tests:        docstore.NewCollection[exam.Test](store, exam.CollTests),
		results:      docstore.NewCollection[exam.TestResult](store, exam.CollTestResults),
		configs:      docstore.NewCollection[exam.TestConfiguration](store, exam.CollTestConfigurations),
		visibilities: docstore.NewCollection[exam.TestVisibility](store, exam.CollTestVisibilities),
		enrollments:  docstore.NewCollection[exam.Enrollment](store, exam.CollEnrollments),
		groups:       docstore.NewCollection[exam.Group](store, exam.CollGroups),
		users:        docstore.NewCollection[exam.User](store, exam.CollUsers),
		assembler:    asm,
		events:       events,
		invalidator:  inv,
		log:          log.WithField("component", "results"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type StartRequest struct {
	TestID    string `json:"testId"`
	CourseID  string `json:"courseId"`
	StudentID string `json:"studentId,omitempty"`
}

// PaperQuestion is a question as shown to the candidate, without the key.
type PaperQuestion struct {
	ID            string   `json:"id"`
	Section       string   `json:"section"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	Marks         float64  `json:"marks"`
	NegativeMarks float64  `json:"negativeMarks"`
}

type Attempt struct {
	Result    exam.TestResult `json:"result"`
	Questions []PaperQuestion `json:"questions"`
}

type SubmitRequest struct {
	TestID        string        `json:"testId"`
	CourseID      string        `json:"courseId"`
	StudentID     string        `json:"studentId,omitempty"`
	AttemptNumber int           `json:"attemptNumber"`
	Answers       []exam.Answer `json:"answers"`
	TimeTaken     int           `json:"timeTaken"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	EndTime       *time.Time    `json:"endTime,omitempty"`
}

// Start opens a new attempt, or resumes the open one. Random tests draw
// their paper here.
func (s *Service) Start(ctx context.Context, p rbac.Principal, req StartRequest) (Attempt, error) {
	studentID, err := s.studentFor(p, req.StudentID)
	if err != nil {
		return Attempt{}, err
	}
	test, err := s.loadTest(ctx, p, req.TestID)
	if err != nil {
		return Attempt{}, err
	}

	prior, err := s.results.Find(ctx, docstore.Query{
		Filter: docstore.Filter{"courseId": req.CourseID, "testId": req.TestID, "studentId": studentID},
		Sort:   "attemptNumber",
		Desc:   true,
	})
	if err != nil {
		return Attempt{}, apperr.Server(err)
	}
	if len(prior) > 0 && prior[0].Status == exam.StatusInProgress {
		paper, err := s.assembler.Resolve(ctx, prior[0].Paper)
		if err != nil {
			return Attempt{}, err
		}
		return Attempt{Result: prior[0], Questions: publicPaper(paper)}, nil
	}

	elig, err := s.eligibility(ctx, p, test, req.CourseID, studentID)
	if err != nil {
		return Attempt{}, err
	}
	elig.PriorAttempts = len(prior)
	if err := CheckEligibility(elig); err != nil {
		return Attempt{}, err
	}

	var paper []grading.Item
	if test.Kind == exam.TestRandom {
		paper, err = s.assembler.Draw(ctx, test.Sections)
	} else {
		paper, err = s.assembler.Fixed(ctx, test)
	}
	if err != nil {
		return Attempt{}, err
	}

	now := s.now()
	r := exam.TestResult{
		Meta:          s.meta(p, test, now),
		CourseID:      req.CourseID,
		TestID:        req.TestID,
		StudentID:     studentID,
		AttemptNumber: len(prior) + 1,
		Paper:         assembly.PaperOf(paper),
		Answers:       []exam.Answer{},
		SectionScores: map[string]exam.SectionScore{},
		TotalMarks:    totalMarks(test, paper),
		Status:        exam.StatusInProgress,
		StartedAt:     &now,
	}
	if err := s.results.Insert(ctx, r.ID, r, r.UniqueKeys()); err != nil {
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return Attempt{}, apperr.Conflict("attempt is already being started")
		}
		return Attempt{}, s.serverError("insert attempt", err)
	}
	s.events.Record(ctx, audit.Event{
		InstituteID: r.InstituteID,
		Type:        audit.AttemptStarted,
		Key:         r.ID,
		ActorID:     p.UserID,
		Data:        map[string]any{"testId": r.TestID, "attemptNumber": r.AttemptNumber},
	})
	return Attempt{Result: r, Questions: publicPaper(paper)}, nil
}

// Submit scores an answer sheet and stores the result in one write. The
// attempt's unique key is the only duplicate guard: a second submission of
// the same attempt fails with DuplicateSubmission.
func (s *Service) Submit(ctx context.Context, p rbac.Principal, req SubmitRequest) (exam.TestResult, error) {
	studentID, err := s.studentFor(p, req.StudentID)
	if err != nil {
		return exam.TestResult{}, err
	}
	test, err := s.loadTest(ctx, p, req.TestID)
	if err != nil {
		return exam.TestResult{}, err
	}
	attempt := req.AttemptNumber
	if attempt < 1 {
		attempt = 1
	}

	open, err := s.results.Find(ctx, docstore.Query{Filter: docstore.Filter{
		"courseId":      req.CourseID,
		"testId":        req.TestID,
		"studentId":     studentID,
		"attemptNumber": attempt,
		"status":        exam.StatusInProgress,
	}, Limit: 1})
	if err != nil {
		return exam.TestResult{}, apperr.Server(err)
	}

	var (
		paper   []grading.Item
		started *exam.TestResult
	)
	switch {
	case len(open) > 0:
		started = &open[0]
		paper, err = s.assembler.Resolve(ctx, started.Paper)
	case test.Kind == exam.TestRandom:
		done, err := s.results.Count(ctx, docstore.Filter{
			"courseId":      req.CourseID,
			"testId":        req.TestID,
			"studentId":     studentID,
			"attemptNumber": attempt,
		})
		if err != nil {
			return exam.TestResult{}, apperr.Server(err)
		}
		if done > 0 {
			return exam.TestResult{}, apperr.DuplicateSubmission(req.TestID)
		}
		return exam.TestResult{}, apperr.Validation("a random test must be started before it is submitted")
	default:
		if err = s.admit(ctx, p, test, req.CourseID, studentID, attempt); err == nil {
			paper, err = s.assembler.Fixed(ctx, test)
		}
	}
	if err != nil {
		return exam.TestResult{}, err
	}

	sc := grading.Score(paper, req.Answers, test.TotalMarks, test.PassPercentage)

	// Rank counts strictly better finalised results, so ties share a rank.
	better, err := s.results.Count(ctx, docstore.Filter{
		"testId":        req.TestID,
		"status":        exam.FinalIn(),
		"obtainedMarks": docstore.Gt{Value: sc.ObtainedMarks},
	})
	if err != nil {
		return exam.TestResult{}, apperr.Server(err)
	}

	now := s.now()
	r := exam.TestResult{
		Meta:          s.meta(p, test, now),
		CourseID:      req.CourseID,
		TestID:        req.TestID,
		StudentID:     studentID,
		AttemptNumber: attempt,
		Paper:         assembly.PaperOf(paper),
		Answers:       sc.Answers,
		SectionScores: sc.SectionScores,
		TotalMarks:    sc.TotalMarks,
		ObtainedMarks: sc.ObtainedMarks,
		Percentage:    sc.Percentage,
		Status:        sc.Status,
		Rank:          int(better) + 1,
		TimeTaken:     timeTaken(req),
		StartedAt:     req.StartTime,
		SubmittedAt:   &now,
	}

	if started != nil {
		r.Meta = started.Meta
		r.LastUpdatedBy = p.UserID
		r.UpdatedAt = now
		r.StartedAt = started.StartedAt
		err = s.results.Replace(ctx, r.ID, r, r.UniqueKeys(), docstore.Filter{"status": exam.StatusInProgress})
	} else {
		err = s.results.Insert(ctx, r.ID, r, r.UniqueKeys())
	}
	switch {
	case errors.Is(err, docstore.ErrDuplicateKey), errors.Is(err, docstore.ErrConflict):
		return exam.TestResult{}, apperr.DuplicateSubmission(req.TestID)
	case err != nil:
		return exam.TestResult{}, s.serverError("store result", err)
	}

	s.log.WithFields(logrus.Fields{
		"result":   r.ID,
		"test":     r.TestID,
		"student":  r.StudentID,
		"attempt":  r.AttemptNumber,
		"obtained": r.ObtainedMarks,
		"rank":     r.Rank,
	}).Info("result submitted")
	s.events.Record(ctx, audit.Event{
		InstituteID: r.InstituteID,
		Type:        audit.ResultSubmitted,
		Key:         r.ID,
		ActorID:     p.UserID,
		Data: map[string]any{
			"testId":        r.TestID,
			"attemptNumber": r.AttemptNumber,
			"obtainedMarks": r.ObtainedMarks,
			"status":        string(r.Status),
		},
	})
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, r.TestID, r.InstituteID)
	}
	return r, nil
}

// ForStudent lists a student's results, newest first. Students only see their own.
func (s *Service) ForStudent(ctx context.Context, p rbac.Principal, studentID string, lp exam.ListParams) (exam.Page[exam.TestResult], error) {
	if studentID == "" {
		studentID = p.UserID
	}
	if !rbac.Can(p, "results:read", studentID) {
		return exam.Page[exam.TestResult]{}, apperr.Forbidden("not allowed to view these results")
	}
	f := docstore.Filter{"studentId": studentID}
	if !p.IsSuperAdmin() && p.Role != rbac.RoleStudent {
		f["instituteId"] = p.InstituteID
	}
	page, limit := lp.Page, lp.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > exam.MaxLimit {
		limit = exam.DefaultLimit
	}
	total, err := s.results.Count(ctx, f)
	if err != nil {
		return exam.Page[exam.TestResult]{}, apperr.Server(err)
	}
	data, err := s.results.Find(ctx, docstore.Query{
		Filter: f, Sort: "createdAt", Desc: true, Offset: (page - 1) * limit, Limit: limit,
	})
	if err != nil {
		return exam.Page[exam.TestResult]{}, apperr.Server(err)
	}
	return exam.Page[exam.TestResult]{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ForTest lists the finalised results of a test by obtained marks, highest
// first, with ranks recomputed over the current set.
func (s *Service) ForTest(ctx context.Context, p rbac.Principal, testID string) ([]exam.TestResult, error) {
	if !rbac.Can(p, "results:read", "") {
		return nil, apperr.Forbidden("not allowed to view results of this test")
	}
	if _, err := s.loadTest(ctx, p, testID); err != nil {
		return nil, err
	}
	f := docstore.Filter{"testId": testID, "status": exam.FinalIn()}
	if !p.IsSuperAdmin() {
		f["instituteId"] = p.InstituteID
	}
	rs, err := s.results.Find(ctx, docstore.Query{
		Filter: f,
		Sort:   "obtainedMarks",
		Desc:   true,
	})
	if err != nil {
		return nil, apperr.Server(err)
	}
	for i := range rs {
		if i > 0 && rs[i].ObtainedMarks == rs[i-1].ObtainedMarks {
			rs[i].Rank = rs[i-1].Rank
		} else {
			rs[i].Rank = i + 1
		}
	}
	return rs, nil
}

func (s *Service) studentFor(p rbac.Principal, requested string) (string, error) {
	switch {
	case p.Role == rbac.RoleStudent:
		if requested != "" && requested != p.UserID {
			return "", apperr.Forbidden("students may only take tests for themselves")
		}
		return p.UserID, nil
	case p.IsSuperAdmin():
		if requested == "" {
			return p.UserID, nil
		}
		return requested, nil
	}
	return "", apperr.Forbidden("only students take tests")
}

func (s *Service) loadTest(ctx context.Context, p rbac.Principal, id string) (exam.Test, error) {
	t, err := s.tests.Get(ctx, id)
	if err != nil {
		return exam.Test{}, exam.StoreError("test", id, err)
	}
	if !t.Active() {
		return exam.Test{}, apperr.NotFound("test", id)
	}
	if !p.IsSuperAdmin() && t.InstituteID != "" && t.InstituteID != p.InstituteID {
		return exam.Test{}, apperr.NotFound("test", id)
	}
	return t, nil
}

// admit checks a fixed-test submission that was never started: the attempt
// must be the next one and the student must be eligible for it.
func (s *Service) admit(ctx context.Context, p rbac.Principal, t exam.Test, courseID, studentID string, attempt int) error {
	prior, err := s.results.Count(ctx, docstore.Filter{"courseId": courseID, "testId": t.ID, "studentId": studentID})
	if err != nil {
		return apperr.Server(err)
	}
	switch next := int(prior) + 1; {
	case attempt < next:
		return apperr.DuplicateSubmission(t.ID)
	case attempt > next:
		return apperr.Validation(fmt.Sprintf("attempt %d cannot be submitted before attempt %d", attempt, next))
	}
	elig, err := s.eligibility(ctx, p, t, courseID, studentID)
	if err != nil {
		return err
	}
	elig.PriorAttempts = int(prior)
	return CheckEligibility(elig)
}

func (s *Service) eligibility(ctx context.Context, p rbac.Principal, t exam.Test, courseID, studentID string) (Eligibility, error) {
	e := Eligibility{Now: s.now(), StudentID: studentID, InstituteID: p.InstituteID, Test: t, Enrolled: true}

	if courseID != "" {
		cfgs, err := s.configs.Find(ctx, docstore.Query{Filter: docstore.Filter{
			"testId": t.ID, "courseId": courseID, "lifecycle": exam.LifecycleActive,
		}, Limit: 1})
		if err != nil {
			return e, apperr.Server(err)
		}
		if len(cfgs) > 0 {
			e.Config = &cfgs[0]
		}

		u, err := s.users.Get(ctx, studentID)
		if err != nil {
			return e, exam.StoreError("user", studentID, err)
		}
		if p.IsSuperAdmin() {
			e.InstituteID = u.InstituteID
		}
		n, err := s.enrollments.Count(ctx, docstore.Filter{
			"courseId":  courseID,
			"batchId":   docstore.InStrings(u.BatchIDs),
			"lifecycle": exam.LifecycleActive,
		})
		if err != nil {
			return e, apperr.Server(err)
		}
		e.Enrolled = n > 0
	}

	vis, err := s.visibilities.Find(ctx, docstore.Query{Filter: docstore.Filter{
		"testId": t.ID, "lifecycle": exam.LifecycleActive,
	}, Limit: 1})
	if err != nil {
		return e, apperr.Server(err)
	}
	if len(vis) > 0 {
		e.Visibility = &vis[0]
		groups, err := s.groups.Find(ctx, docstore.Query{Filter: docstore.Filter{
			"studentIds": studentID, "lifecycle": exam.LifecycleActive,
		}})
		if err != nil {
			return e, apperr.Server(err)
		}
		for _, g := range groups {
			e.GroupIDs = append(e.GroupIDs, g.ID)
		}
	}
	return e, nil
}

func (s *Service) meta(p rbac.Principal, t exam.Test, now time.Time) exam.Meta {
	inst := p.InstituteID
	if p.IsSuperAdmin() {
		inst = t.InstituteID
	}
	return exam.Meta{
		ID:            uuid.NewString(),
		InstituteID:   inst,
		Lifecycle:     exam.LifecycleActive,
		CreatedBy:     p.UserID,
		LastUpdatedBy: p.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Service) serverError(op string, err error) error {
	s.log.WithError(err).Error(op)
	return apperr.Server(err)
}

func totalMarks(t exam.Test, paper []grading.Item) float64 {
	if t.TotalMarks > 0 {
		return t.TotalMarks
	}
	var sum float64
	for _, it := range paper {
		sum += it.Question.Marks
	}
	return sum
}

func timeTaken(req SubmitRequest) int {
	if req.TimeTaken > 0 || req.StartTime == nil || req.EndTime == nil {
		return req.TimeTaken
	}
	return int(req.EndTime.Sub(*req.StartTime).Seconds())
}

func publicPaper(paper []grading.Item) []PaperQuestion {
	out := make([]PaperQuestion, len(paper))
	for i, it := range paper {
		q := it.Question
		out[i] = PaperQuestion{
			ID:            q.ID,
			Section:       it.Section,
			Text:          q.Text,
			Options:       q.Options,
			Marks:         q.Marks,
			NegativeMarks: q.NegativeMarks,
		}
	}
	return out
}
