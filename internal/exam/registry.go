package exam

import (
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

// Services bundles the CRUD service of every entity.
type Services struct {
	Institutes         *Service[Institute, *Institute]
	Batches            *Service[Batch, *Batch]
	Groups             *Service[Group, *Group]
	Users              *UserService
	Exams              *Service[Exam, *Exam]
	Subjects           *Service[Subject, *Subject]
	Chapters           *Service[Chapter, *Chapter]
	QuestionSets       *Service[QuestionSet, *QuestionSet]
	Questions          *QuestionService
	Tests              *Service[Test, *Test]
	TestConfigurations *Service[TestConfiguration, *TestConfiguration]
	TestVisibilities   *Service[TestVisibility, *TestVisibility]
	Enrollments        *Service[Enrollment, *Enrollment]
	Courses            *Service[Course, *Course]
}

func NewServices(store docstore.Store, log logrus.FieldLogger) *Services {
	sets := NewService[QuestionSet](store, CollQuestionSets, Options{
		Kind: "question set", Resource: "question-sets", Scoped: true,
		Filters: []string{"examId", "subjectId", "chapterId", "instituteIds"},
	}, log)
	refs := newPaperRefs(store)
	return &Services{
		Institutes: NewService[Institute](store, CollInstitutes, Options{
			Kind: "institute", Resource: "institutes", Filters: []string{"code"},
		}, log),
		Batches: NewService[Batch](store, CollBatches, Options{
			Kind: "batch", Resource: "batches", Scoped: true, Filters: []string{"code"},
		}, log),
		Groups: NewService[Group](store, CollGroups, Options{
			Kind: "group", Resource: "groups", Scoped: true, Filters: []string{"batchId", "studentIds"},
		}, log),
		Users: NewUserService(store, log),
		Exams: NewService[Exam](store, CollExams, Options{
			Kind: "exam", Resource: "exams", Filters: []string{"code"},
		}, log),
		Subjects: NewService[Subject](store, CollSubjects, Options{
			Kind: "subject", Resource: "subjects", Filters: []string{"examId"},
		}, log),
		Chapters: NewService[Chapter](store, CollChapters, Options{
			Kind: "chapter", Resource: "chapters", Filters: []string{"subjectId"},
		}, log),
		QuestionSets: sets,
		Questions:    NewQuestionService(store, sets, log),
		Tests: NewService[Test](store, CollTests, Options{
			Kind: "test", Resource: "tests", Scoped: true, Filters: []string{"kind", "code", "instituteIds"},
		}, log).WithCheck(refs.check),
		TestConfigurations: NewService[TestConfiguration](store, CollTestConfigurations, Options{
			Kind: "test configuration", Resource: "test-configurations", Scoped: true,
			Filters: []string{"testId", "courseId"},
		}, log),
		TestVisibilities: NewService[TestVisibility](store, CollTestVisibilities, Options{
			Kind: "test visibility", Resource: "test-visibilities", Scoped: true, Filters: []string{"testId"},
		}, log),
		Enrollments: NewService[Enrollment](store, CollEnrollments, Options{
			Kind: "enrollment", Resource: "enrollments", Scoped: true, Filters: []string{"batchId", "courseId"},
		}, log),
		Courses: NewService[Course](store, CollCourses, Options{
			Kind: "course", Resource: "courses", Scoped: true, Filters: []string{"code"},
		}, log),
	}
}
