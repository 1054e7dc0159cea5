package docstore

import "context"

// Collection is a typed view over one collection of a Store.
type Collection[T any] struct {
	store Store
	name  string
}

func NewCollection[T any](s Store, name string) Collection[T] {
	return Collection[T]{store: s, name: name}
}

func (c Collection[T]) Name() string { return c.name }

func (c Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := c.store.Get(ctx, c.name, id, &out)
	return out, err
}

func (c Collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	var out []T
	if err := c.store.Find(ctx, c.name, q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (c Collection[T]) Count(ctx context.Context, f Filter) (int64, error) {
	return c.store.Count(ctx, c.name, f)
}

func (c Collection[T]) Insert(ctx context.Context, id string, doc T, keys []UniqueKey) error {
	return c.store.Insert(ctx, c.name, id, doc, keys)
}

func (c Collection[T]) Replace(ctx context.Context, id string, doc T, keys []UniqueKey, cond Filter) error {
	return c.store.Replace(ctx, c.name, id, doc, keys, cond)
}

func (c Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}
