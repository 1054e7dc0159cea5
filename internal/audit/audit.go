// Package audit appends domain events to the events collection.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/docstore"
)

const Collection = "events"

const (
	AttemptStarted  = "AttemptStarted"
	ResultSubmitted = "ResultSubmitted"
)

type Event struct {
	ID          string         `json:"id" bson:"_id"`
	InstituteID string         `json:"instituteId" bson:"instituteId"`
	Type        string         `json:"type" bson:"type"`
	Key         string         `json:"key" bson:"key"`
	ActorID     string         `json:"actorId" bson:"actorId"`
	Data        map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdAt"`
}

type Log struct {
	events docstore.Collection[Event]
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewLog(store docstore.Store, log logrus.FieldLogger) *Log {
	return &Log{
		events: docstore.NewCollection[Event](store, Collection),
		log:    log.WithField("component", "audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *Log) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	return l.events.Insert(ctx, e.ID, e, nil)
}

// Record appends e and logs a failure instead of returning it. Used after the
// primary write has already succeeded.
func (l *Log) Record(ctx context.Context, e Event) {
	if err := l.Append(ctx, e); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{"type": e.Type, "key": e.Key}).Error("append event")
	}
}

// ForKey returns the events about one document, oldest first.
func (l *Log) ForKey(ctx context.Context, key string) ([]Event, error) {
	return l.events.Find(ctx, docstore.Query{Filter: docstore.Filter{"key": key}, Sort: "createdAt"})
}
