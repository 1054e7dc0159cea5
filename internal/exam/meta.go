// Package exam holds the persisted entities of the examination service and the
// generic CRUD service that manages them.
package exam

import (
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

// Lifecycle replaces a boolean active flag. Soft delete moves a document to
// LifecycleInactive; reactivation moves it back.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleInactive Lifecycle = "inactive"
)

// Meta is embedded in every persisted entity.
type Meta struct {
	ID            string    `json:"id" bson:"_id"`
	InstituteID   string    `json:"instituteId" bson:"instituteId"`
	Lifecycle     Lifecycle `json:"lifecycle" bson:"lifecycle"`
	CreatedBy     string    `json:"createdBy" bson:"createdBy"`
	LastUpdatedBy string    `json:"lastUpdatedBy" bson:"lastUpdatedBy"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (m *Meta) Base() *Meta { return m }

func (m Meta) Active() bool { return m.Lifecycle == LifecycleActive }

// Entity is satisfied by a pointer to any persisted type.
type Entity[T any] interface {
	*T
	Base() *Meta
	Validate() error
	UniqueKeys() []docstore.UniqueKey
}

// defaulter is implemented by entities that fill unset fields before validation.
type defaulter interface {
	ApplyDefaults()
}

// Collection names.
const (
	CollInstitutes         = "institutes"
	CollBatches            = "batches"
	CollGroups             = "groups"
	CollUsers              = "users"
	CollCredentials        = "credentials"
	CollExams              = "exams"
	CollSubjects           = "subjects"
	CollChapters           = "chapters"
	CollQuestionSets       = "questionSets"
	CollQuestions          = "questions"
	CollTests              = "tests"
	CollTestConfigurations = "testConfigurations"
	CollTestVisibilities   = "testVisibilities"
	CollTestResults        = "testResults"
	CollEnrollments        = "enrollments"
	CollCourses            = "courses"
)

// Indexes lists the secondary fields queried by the services.
var Indexes = []docstore.IndexSpec{
	{Collection: CollInstitutes},
	{Collection: CollBatches, Fields: []string{"instituteId"}},
	{Collection: CollGroups, Fields: []string{"batchId", "studentIds"}},
	{Collection: CollUsers, Fields: []string{"instituteId", "role"}},
	{Collection: CollCredentials},
	{Collection: CollExams},
	{Collection: CollSubjects, Fields: []string{"examId"}},
	{Collection: CollChapters, Fields: []string{"subjectId"}},
	{Collection: CollQuestionSets, Fields: []string{"examId", "subjectId", "chapterId"}},
	{Collection: CollQuestions, Fields: []string{"questionSetId", "difficulty", "lifecycle"}},
	{Collection: CollTests, Fields: []string{"instituteId"}},
	{Collection: CollTestConfigurations, Fields: []string{"testId"}},
	{Collection: CollTestVisibilities},
	{Collection: CollTestResults, Fields: []string{"testId", "studentId", "obtainedMarks"}},
	{Collection: CollEnrollments, Fields: []string{"batchId", "courseId"}},
	{Collection: CollCourses},
}

func key(name string, parts ...string) docstore.UniqueKey {
	return docstore.UniqueKey{Name: name, Value: strings.Join(parts, "/")}
}
