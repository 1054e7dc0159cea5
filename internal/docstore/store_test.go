package docstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/docstore/docstoretest"
)

type item struct {
	ID     string   `json:"id" bson:"_id"`
	Code   string   `json:"code" bson:"code"`
	Status string   `json:"status" bson:"status"`
	Score  float64  `json:"score" bson:"score"`
	Tags   []string `json:"tags" bson:"tags"`
}

func (i item) keys() []docstore.UniqueKey {
	return []docstore.UniqueKey{{Name: "code", Value: i.Code}}
}

func TestSQLStore(t *testing.T) {
	runStoreSuite(t, docstoretest.New(t))
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := docstore.NewMongo(ctx, uri, "exams_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	require.NoError(t, s.EnsureIndexes(ctx, []docstore.IndexSpec{{Collection: "items", Fields: []string{"status"}}}))
	runStoreSuite(t, s)
}

func runStoreSuite(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	items := docstore.NewCollection[item](s, "items")

	a := item{ID: "a", Code: "A-1", Status: "active", Score: 70, Tags: []string{"x"}}
	b := item{ID: "b", Code: "B-1", Status: "active", Score: 90, Tags: []string{"x", "y"}}
	c := item{ID: "c", Code: "C-1", Status: "inactive", Score: 80, Tags: []string{}}
	for _, it := range []item{a, b, c} {
		require.NoError(t, items.Insert(ctx, it.ID, it, it.keys()))
	}

	t.Run("get", func(t *testing.T) {
		got, err := items.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, b, got)

		_, err = items.Get(ctx, "zzz")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("duplicate id and key", func(t *testing.T) {
		err := items.Insert(ctx, "a", item{ID: "a", Code: "fresh"}, nil)
		assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

		dup := item{ID: "d", Code: "A-1"}
		err = items.Insert(ctx, dup.ID, dup, dup.keys())
		assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

		_, err = items.Get(ctx, "d")
		assert.ErrorIs(t, err, docstore.ErrNotFound, "failed insert must not leave a document behind")
	})

	t.Run("find filter sort page", func(t *testing.T) {
		got, err := items.Find(ctx, docstore.Query{
			Filter: docstore.Filter{"status": "active"},
			Sort:   "score",
			Desc:   true,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)

		got, err = items.Find(ctx, docstore.Query{Filter: docstore.Filter{"tags": "y"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)

		got, err = items.Find(ctx, docstore.Query{Sort: "score", Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)

		got, err = items.Find(ctx, docstore.Query{Filter: docstore.Filter{"status": "archived"}})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("count", func(t *testing.T) {
		n, err := items.Count(ctx, docstore.Filter{"score": docstore.Gt{Value: 75}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = items.Count(ctx, docstore.Filter{docstore.IDField: docstore.InStrings([]string{"a", "c", "q"})})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("replace moves unique keys", func(t *testing.T) {
		c2 := c
		c2.Code = "C-2"
		require.NoError(t, items.Replace(ctx, c2.ID, c2, c2.keys(), nil))

		reuse := item{ID: "e", Code: "C-1"}
		require.NoError(t, items.Insert(ctx, reuse.ID, reuse, reuse.keys()))

		clash := c2
		clash.Code = "A-1"
		err := items.Replace(ctx, clash.ID, clash, clash.keys(), nil)
		assert.ErrorIs(t, err, docstore.ErrDuplicateKey)
	})

	t.Run("conditional replace", func(t *testing.T) {
		a2 := a
		a2.Status = "inactive"
		err := items.Replace(ctx, a2.ID, a2, a2.keys(), docstore.Filter{"status": "active"})
		require.NoError(t, err)

		err = items.Replace(ctx, a2.ID, a2, a2.keys(), docstore.Filter{"status": "active"})
		assert.ErrorIs(t, err, docstore.ErrConflict)

		err = items.Replace(ctx, "missing", a2, nil, nil)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("find by ids", func(t *testing.T) {
		got, err := items.Find(ctx, docstore.Query{
			Filter: docstore.Filter{docstore.IDField: docstore.InStrings([]string{"b", "c", "nope"}), "status": "active"},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)

		got, err = items.Find(ctx, docstore.Query{Filter: docstore.Filter{docstore.IDField: docstore.InStrings(nil)}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete releases keys", func(t *testing.T) {
		gone := item{ID: "f", Code: "F-1"}
		require.NoError(t, items.Insert(ctx, gone.ID, gone, gone.keys()))
		require.NoError(t, items.Delete(ctx, gone.ID))

		_, err := items.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.ErrorIs(t, items.Delete(ctx, gone.ID), docstore.ErrNotFound)

		again := item{ID: "g", Code: "F-1"}
		assert.NoError(t, items.Insert(ctx, again.ID, again, again.keys()))
	})
}
