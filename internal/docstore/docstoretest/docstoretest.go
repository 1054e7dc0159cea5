// Package docstoretest provides throwaway stores for package tests.
package docstoretest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

// New returns a store over a private in-memory SQLite database, closed when
// the test ends.
func New(t testing.TB) docstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	s := docstore.NewSQL(conn, db.DriverSQLite)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}
