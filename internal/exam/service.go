package exam

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Options describes one CRUD resource.
type Options struct {
	Kind     string   // singular noun used in messages, e.g. "question"
	Resource string   // permission prefix, e.g. "questions"
	Scoped   bool     // documents belong to an institute
	Private  bool     // documents without an institute are not shared with institutes
	Filters  []string // fields accepted as list equality filters
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type ListParams struct {
	Page   int
	Limit  int
	Filter docstore.Filter
	Sort   string
	Desc   bool
}

type Page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// Service is the uniform CRUD service shared by every entity.
type Service[T any, P Entity[T]] struct {
	coll  docstore.Collection[T]
	opts  Options
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
	check func(ctx context.Context, v *T) error
}

func NewService[T any, P Entity[T]](store docstore.Store, collection string, opts Options, log logrus.FieldLogger) *Service[T, P] {
	return &Service[T, P]{
		coll:  docstore.NewCollection[T](store, collection),
		opts:  opts,
		log:   log.WithField("resource", opts.Resource),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithCheck adds a store-backed validation run on every create and update,
// after the document's own Validate.
func (s *Service[T, P]) WithCheck(check func(ctx context.Context, v *T) error) *Service[T, P] {
	s.check = check
	return s
}

func (s *Service[T, P]) Options() Options { return s.opts }

func (s *Service[T, P]) Collection() docstore.Collection[T] { return s.coll }

func (s *Service[T, P]) Create(ctx context.Context, p rbac.Principal, v T) (T, error) {
	var zero T
	if !rbac.Can(p, s.opts.Resource+":create", "") {
		return zero, apperr.Forbidden("not allowed to create " + s.opts.Kind)
	}
	ptr := P(&v)
	m := ptr.Base()
	now := s.now()
	*m = Meta{
		ID:            s.newID(),
		InstituteID:   m.InstituteID,
		Lifecycle:     LifecycleActive,
		CreatedBy:     p.UserID,
		LastUpdatedBy: p.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// a superadmin keeps the given institute, or falls back to the one it acts in
	if s.opts.Scoped && (!p.IsSuperAdmin() || m.InstituteID == "") {
		m.InstituteID = p.InstituteID
	}
	if d, ok := any(ptr).(defaulter); ok {
		d.ApplyDefaults()
	}
	if err := ptr.Validate(); err != nil {
		return zero, err
	}
	if s.check != nil {
		if err := s.check(ctx, &v); err != nil {
			return zero, err
		}
	}
	if err := s.coll.Insert(ctx, m.ID, v, ptr.UniqueKeys()); err != nil {
		return zero, StoreError(s.opts.Kind, m.ID, err)
	}
	s.log.WithFields(logrus.Fields{"id": m.ID, "by": p.UserID}).Debug("created")
	return v, nil
}

func (s *Service[T, P]) Get(ctx context.Context, p rbac.Principal, id string) (T, error) {
	v, err := s.coll.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, StoreError(s.opts.Kind, id, err)
	}
	if !s.visible(p, P(&v).Base()) {
		var zero T
		return zero, apperr.NotFound(s.opts.Kind, id)
	}
	return v, nil
}

// List returns one page. Without an explicit lifecycle filter only active
// documents are listed.
func (s *Service[T, P]) List(ctx context.Context, p rbac.Principal, lp ListParams) (Page[T], error) {
	f := docstore.Filter{}
	for k, v := range lp.Filter {
		f[k] = v
	}
	if _, ok := f["lifecycle"]; !ok {
		f["lifecycle"] = LifecycleActive
	}
	switch {
	case !s.opts.Scoped || (p.IsSuperAdmin() && p.InstituteID == ""):
	case s.opts.Private:
		f["instituteId"] = p.InstituteID
	default:
		f["instituteId"] = docstore.InStrings([]string{p.InstituteID, ""})
	}
	page, limit := normalizePage(lp.Page, lp.Limit)
	sortBy, desc := lp.Sort, lp.Desc
	if sortBy == "" {
		sortBy, desc = "createdAt", true
	}

	total, err := s.coll.Count(ctx, f)
	if err != nil {
		return Page[T]{}, apperr.Server(err)
	}
	data, err := s.coll.Find(ctx, docstore.Query{
		Filter: f,
		Sort:   sortBy,
		Desc:   desc,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return Page[T]{}, apperr.Server(err)
	}
	return Page[T]{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// Update replaces the editable fields of a document. Meta is kept from the
// stored version.
func (s *Service[T, P]) Update(ctx context.Context, p rbac.Principal, id string, v T) (T, error) {
	var zero T
	current, err := s.Get(ctx, p, id)
	if err != nil {
		return zero, err
	}
	cm := P(&current).Base()
	if !rbac.Can(p, s.opts.Resource+":update", cm.CreatedBy) {
		return zero, apperr.Forbidden("not allowed to update this " + s.opts.Kind)
	}
	ptr := P(&v)
	m := ptr.Base()
	*m = *cm
	m.LastUpdatedBy = p.UserID
	m.UpdatedAt = s.now()
	if d, ok := any(ptr).(defaulter); ok {
		d.ApplyDefaults()
	}
	if err := ptr.Validate(); err != nil {
		return zero, err
	}
	if s.check != nil {
		if err := s.check(ctx, &v); err != nil {
			return zero, err
		}
	}
	if err := s.coll.Replace(ctx, id, v, ptr.UniqueKeys(), nil); err != nil {
		return zero, StoreError(s.opts.Kind, id, err)
	}
	return v, nil
}

func (s *Service[T, P]) Deactivate(ctx context.Context, p rbac.Principal, id string) (T, error) {
	return s.setLifecycle(ctx, p, id, LifecycleInactive)
}

func (s *Service[T, P]) Activate(ctx context.Context, p rbac.Principal, id string) (T, error) {
	return s.setLifecycle(ctx, p, id, LifecycleActive)
}

func (s *Service[T, P]) setLifecycle(ctx context.Context, p rbac.Principal, id string, to Lifecycle) (T, error) {
	var zero T
	v, err := s.Get(ctx, p, id)
	if err != nil {
		return zero, err
	}
	ptr := P(&v)
	m := ptr.Base()
	if !rbac.Can(p, s.opts.Resource+":status", m.CreatedBy) {
		return zero, apperr.Forbidden("not allowed to change this " + s.opts.Kind)
	}
	if m.Lifecycle == to {
		return v, nil
	}
	m.Lifecycle = to
	m.LastUpdatedBy = p.UserID
	m.UpdatedAt = s.now()
	if err := s.coll.Replace(ctx, id, v, ptr.UniqueKeys(), nil); err != nil {
		return zero, StoreError(s.opts.Kind, id, err)
	}
	s.log.WithFields(logrus.Fields{"id": id, "lifecycle": to, "by": p.UserID}).Info("lifecycle changed")
	return v, nil
}

func (s *Service[T, P]) visible(p rbac.Principal, m *Meta) bool {
	if !s.opts.Scoped || p.IsSuperAdmin() {
		return true
	}
	if s.opts.Private {
		return m.InstituteID == p.InstituteID
	}
	return m.InstituteID == "" || m.InstituteID == p.InstituteID
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// StoreError translates document store failures into API errors.
func StoreError(kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return apperr.NotFound(kind, id)
	case errors.Is(err, docstore.ErrDuplicateKey):
		return apperr.DuplicateKey(kind)
	case errors.Is(err, docstore.ErrConflict):
		return apperr.Conflict(kind + " was modified concurrently")
	}
	return apperr.Server(err)
}
