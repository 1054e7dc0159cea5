package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// crudService is the surface of exam.Service that the generic routes use.
// UserService and QuestionService satisfy it through embedding.
type crudService[T any] interface {
	Options() exam.Options
	Create(ctx context.Context, p rbac.Principal, v T) (T, error)
	Get(ctx context.Context, p rbac.Principal, id string) (T, error)
	List(ctx context.Context, p rbac.Principal, lp exam.ListParams) (exam.Page[T], error)
	Update(ctx context.Context, p rbac.Principal, id string, v T) (T, error)
	Deactivate(ctx context.Context, p rbac.Principal, id string) (T, error)
	Activate(ctx context.Context, p rbac.Principal, id string) (T, error)
}

// decorator turns a written document into its response body.
type decorator[T any] func(ctx context.Context, v T) (any, error)

// mountCRUD registers list, get, create, update and the lifecycle routes of
// one resource on r.
func mountCRUD[T any](r chi.Router, svc crudService[T], log logrus.FieldLogger, decorate decorator[T]) {
	res := svc.Options().Resource
	filters := svc.Options().Filters
	if decorate == nil {
		decorate = func(_ context.Context, v T) (any, error) { return v, nil }
	}

	r.With(rbac.Require(res+":read")).Get("/", func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.List(r.Context(), principal(r), listParams(r, filters))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})

	r.With(rbac.Require(res+":read")).Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	r.With(rbac.Require(res+":create")).Post("/", func(w http.ResponseWriter, r *http.Request) {
		var in T
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, log, err)
			return
		}
		v, err := svc.Create(r.Context(), principal(r), in)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		body, err := decorate(r.Context(), v)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, body)
	})

	r.With(rbac.Require(res+":update")).Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in T
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, log, err)
			return
		}
		v, err := svc.Update(r.Context(), principal(r), chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		body, err := decorate(r.Context(), v)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	})

	lifecycle := func(change func(context.Context, rbac.Principal, string) (T, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			v, err := change(r.Context(), principal(r), chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		}
	}
	r.With(rbac.Require(res+":status")).Put("/{id}/deactivate", lifecycle(svc.Deactivate))
	r.With(rbac.Require(res+":status")).Put("/{id}/activate", lifecycle(svc.Activate))
}
