package exam

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type QuestionService struct {
	*Service[Question, *Question]
	sets *Service[QuestionSet, *QuestionSet]
}

func NewQuestionService(store docstore.Store, sets *Service[QuestionSet, *QuestionSet], log logrus.FieldLogger) *QuestionService {
	return &QuestionService{
		Service: NewService[Question](store, CollQuestions, Options{
			Kind:     "question",
			Resource: "questions",
			Scoped:   true,
			Filters:  []string{"questionSetId", "difficulty", "tags"},
		}, log),
		sets: sets,
	}
}

// Clone copies a question into setID, or into its own set when setID is empty.
// The copy is a new active document owned by the caller.
func (s *QuestionService) Clone(ctx context.Context, p rbac.Principal, id, setID string) (Question, error) {
	src, err := s.Get(ctx, p, id)
	if err != nil {
		return Question{}, err
	}
	if setID == "" {
		setID = src.QuestionSetID
	}
	if err := s.checkSet(ctx, p, setID); err != nil {
		return Question{}, err
	}
	cp := src
	cp.Meta = Meta{InstituteID: src.InstituteID}
	cp.QuestionSetID = setID
	cp.Options = append([]string(nil), src.Options...)
	cp.Tags = append([]string(nil), src.Tags...)
	return s.Create(ctx, p, cp)
}

// Move reassigns a question to another set.
func (s *QuestionService) Move(ctx context.Context, p rbac.Principal, id, setID string) (Question, error) {
	if setID == "" {
		return Question{}, apperr.Validation("validation failed", apperr.FieldError{Field: "questionSetId", Message: "is required"})
	}
	q, err := s.Get(ctx, p, id)
	if err != nil {
		return Question{}, err
	}
	if err := s.checkSet(ctx, p, setID); err != nil {
		return Question{}, err
	}
	q.QuestionSetID = setID
	return s.Update(ctx, p, id, q)
}

// Import creates qs in setID. Every question is validated before the first
// insert so a bad item leaves the set untouched.
func (s *QuestionService) Import(ctx context.Context, p rbac.Principal, setID string, qs []Question) ([]Question, error) {
	if !rbac.Can(p, "questions:create", "") {
		return nil, apperr.Forbidden("not allowed to create question")
	}
	if len(qs) == 0 {
		return nil, apperr.Validation("no questions to import")
	}
	if err := s.checkSet(ctx, p, setID); err != nil {
		return nil, err
	}
	for i := range qs {
		qs[i].QuestionSetID = setID
		qs[i].ApplyDefaults()
		if err := qs[i].Validate(); err != nil {
			e := apperr.As(err)
			e.Message = "item " + strconv.Itoa(i+1) + ": " + e.Message
			return nil, e
		}
	}
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		created, err := s.Create(ctx, p, q)
		if err != nil {
			return out, err
		}
		out = append(out, created)
	}
	return out, nil
}

// InSet returns the active questions of setID visible to p, oldest first.
func (s *QuestionService) InSet(ctx context.Context, p rbac.Principal, setID string) ([]Question, error) {
	if !rbac.Can(p, "questions:read", "") {
		return nil, apperr.Forbidden("not allowed to view questions")
	}
	if _, err := s.sets.Get(ctx, p, setID); err != nil {
		return nil, err
	}
	f := docstore.Filter{"questionSetId": setID, "lifecycle": LifecycleActive}
	if !p.IsSuperAdmin() || p.InstituteID != "" {
		f["instituteId"] = docstore.InStrings([]string{p.InstituteID, ""})
	}
	qs, err := s.Collection().Find(ctx, docstore.Query{Filter: f, Sort: "createdAt"})
	if err != nil {
		return nil, apperr.Server(err)
	}
	return qs, nil
}

// checkSet requires setID to be an active set the caller can see.
func (s *QuestionService) checkSet(ctx context.Context, p rbac.Principal, setID string) error {
	set, err := s.sets.Get(ctx, p, setID)
	if err != nil {
		return err
	}
	if !set.Active() {
		return apperr.Validation("question set " + setID + " is inactive")
	}
	return nil
}
