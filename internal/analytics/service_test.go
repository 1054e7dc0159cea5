package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/cache"
	"github.com/mind-engage/mindengage-exams/internal/docstore/docstoretest"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func TestForTestIsScopedToInstitute(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := docstoretest.New(t)
	svc := NewService(store, cache.NewMemory(), time.Minute, log)
	ctx := context.Background()

	active := func(id, inst string) exam.Meta {
		return exam.Meta{ID: id, InstituteID: inst, Lifecycle: exam.LifecycleActive}
	}
	submit := func(id, inst string, marks float64) {
		require.NoError(t, store.Insert(ctx, exam.CollTestResults, id, exam.TestResult{
			Meta: active(id, inst), TestID: "shared", StudentID: id, AttemptNumber: 1,
			ObtainedMarks: marks, Percentage: marks, Status: exam.StatusSubmitted,
		}, nil))
	}
	// A global test taken by two institutes.
	require.NoError(t, store.Insert(ctx, exam.CollTests, "shared", exam.Test{
		Meta: active("shared", ""), Name: "Shared", Code: "SH", Kind: exam.TestFixed, TotalMarks: 100,
	}, nil))
	submit("a1", "inst-a", 90)
	submit("b1", "inst-b", 30)
	submit("b2", "inst-b", 40)

	a := rbac.Principal{UserID: "ta", Role: rbac.RoleTrainer, InstituteID: "inst-a"}
	b := rbac.Principal{UserID: "tb", Role: rbac.RoleTrainer, InstituteID: "inst-b"}
	root := rbac.Principal{UserID: "root", Role: rbac.RoleSuperAdmin}

	sum, err := svc.ForTest(ctx, a, "shared")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalAttempts)
	assert.Equal(t, 90.0, sum.LowestScore)

	sum, err = svc.ForTest(ctx, b, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalAttempts, "a cached summary of another institute is not reused")

	sum, err = svc.ForTest(ctx, root, "shared")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalAttempts)

	submit("a2", "inst-a", 70)
	svc.Invalidate(ctx, "shared", "inst-a")

	sum, err = svc.ForTest(ctx, a, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalAttempts)
	sum, err = svc.ForTest(ctx, root, "shared")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.TotalAttempts)
}
