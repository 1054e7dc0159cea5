package audit

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/docstore/docstoretest"
)

func TestAppendAndForKey(t *testing.T) {
	log, _ := test.NewNullLogger()
	l := NewLog(docstoretest.New(t), log)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, Event{Type: ResultSubmitted, Key: "r1", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, l.Append(ctx, Event{Type: AttemptStarted, Key: "r1", CreatedAt: base}))
	l.Record(ctx, Event{Type: AttemptStarted, Key: "r2", Data: map[string]any{"attempt": 1}})

	events, err := l.ForKey(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, AttemptStarted, events[0].Type)
	assert.Equal(t, ResultSubmitted, events[1].Type)
	assert.NotEmpty(t, events[0].ID)

	other, err := l.ForKey(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.EqualValues(t, 1, other[0].Data["attempt"])
}

func TestRecordLogsFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	l := NewLog(docstoretest.New(t), log)
	ctx := context.Background()

	l.Record(ctx, Event{ID: "e1", Type: ResultSubmitted})
	l.Record(ctx, Event{ID: "e1", Type: ResultSubmitted})

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "append event", hook.LastEntry().Message)
}
