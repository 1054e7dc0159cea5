package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndUniqueViolation(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, DriverSQLite, "file:connect_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer conn.Close()

	insert := func() error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO documents (collection, id, body, updated_at) VALUES ($1,$2,$3,$4)`,
			"c", "1", "{}", 0)
		return err
	}
	require.NoError(t, insert())
	err = insert()
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(assert.AnError))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Driver("oracle"), "")
	assert.Error(t, err)
}
