// Package docstore is the persistence interface used by every service: named
// collections of JSON-shaped documents addressed by id, with store-enforced
// unique keys.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("docstore: document not found")
	ErrDuplicateKey = errors.New("docstore: duplicate key")
	ErrConflict     = errors.New("docstore: precondition failed")
)

// IDField is the filter/sort name of a document's id in every backend.
const IDField = "id"

// UniqueKey is one uniqueness constraint value of a document, e.g.
// {Name: "code", Value: "JEE-2025"}. Two documents of the same collection may
// never share a key with the same name and value.
type UniqueKey struct {
	Name  string
	Value string
}

func (k UniqueKey) String() string { return k.Name + ":" + k.Value }

// Filter matches documents by top-level (or dotted) field name. A plain value
// means equality; when the document field is an array, equality means "contains".
type Filter map[string]any

// Gt matches numeric fields strictly greater than Value.
type Gt struct{ Value float64 }

// In matches fields equal to any of Values.
type In struct{ Values []any }

func InStrings(ss []string) In {
	vs := make([]any, len(ss))
	for i, s := range ss {
		vs[i] = s
	}
	return In{Values: vs}
}

type Query struct {
	Filter Filter
	Sort   string
	Desc   bool
	Offset int
	Limit  int // 0 = no limit
}

type Store interface {
	// Insert fails with ErrDuplicateKey when the id or any unique key is taken.
	Insert(ctx context.Context, coll, id string, doc any, keys []UniqueKey) error
	// Replace swaps the stored document and its unique keys. When cond is not
	// nil the stored document must match it, otherwise ErrConflict.
	Replace(ctx context.Context, coll, id string, doc any, keys []UniqueKey, cond Filter) error
	Get(ctx context.Context, coll, id string, out any) error
	// Delete removes a document and releases its unique keys.
	Delete(ctx context.Context, coll, id string) error
	// Find decodes the matching documents into out, a pointer to a slice.
	Find(ctx context.Context, coll string, q Query, out any) error
	Count(ctx context.Context, coll string, f Filter) (int64, error)
	Close(ctx context.Context) error
}

// IndexSpec names secondary fields worth indexing in backends that support it.
type IndexSpec struct {
	Collection string
	Fields     []string
}

// Indexer is implemented by backends that need explicit index creation.
type Indexer interface {
	EnsureIndexes(ctx context.Context, specs []IndexSpec) error
}
