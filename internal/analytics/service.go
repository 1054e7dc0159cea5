package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/cache"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type Service struct {
	tests   docstore.Collection[exam.Test]
	results docstore.Collection[exam.TestResult]
	cache   cache.Cache
	ttl     time.Duration
	log     logrus.FieldLogger
}

func NewService(store docstore.Store, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *Service {
	return &Service{
		tests:   docstore.NewCollection[exam.Test](store, exam.CollTests),
		results: docstore.NewCollection[exam.TestResult](store, exam.CollTestResults),
		cache:   c,
		ttl:     ttl,
		log:     log.WithField("component", "analytics"),
	}
}

// allInstitutes keys the summary a superadmin sees across every institute.
const allInstitutes = "*"

func cacheKey(testID, instituteID string) string {
	return "analytics:" + testID + ":" + instituteID
}

// ForTest returns the summary of a test's finalised results. Outside the
// superadmin role only results of the caller's institute are counted.
func (s *Service) ForTest(ctx context.Context, p rbac.Principal, testID string) (Summary, error) {
	t, err := s.tests.Get(ctx, testID)
	if err != nil {
		return Summary{}, exam.StoreError("test", testID, err)
	}
	if !p.IsSuperAdmin() && t.InstituteID != "" && t.InstituteID != p.InstituteID {
		return Summary{}, apperr.NotFound("test", testID)
	}
	f := docstore.Filter{"testId": testID, "status": exam.FinalIn()}
	scope := allInstitutes
	if !p.IsSuperAdmin() {
		scope = p.InstituteID
		f["instituteId"] = p.InstituteID
	}
	return cache.CacheOrExecute(ctx, s.cache, s.log, cacheKey(testID, scope), s.ttl, func() (Summary, error) {
		rs, err := s.results.Find(ctx, docstore.Query{Filter: f})
		if err != nil {
			return Summary{}, apperr.Server(err)
		}
		return Summarize(testID, rs, PolicyFor(t)), nil
	})
}

// Invalidate drops the cached summaries a new result of the institute changes.
func (s *Service) Invalidate(ctx context.Context, testID, instituteID string) {
	cache.SafeDelete(ctx, s.cache, s.log, cacheKey(testID, instituteID), cacheKey(testID, allInstitutes))
}
