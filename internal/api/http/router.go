// Package http exposes the examination service over a chi router.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/analytics"
	"github.com/mind-engage/mindengage-exams/internal/assembly"
	"github.com/mind-engage/mindengage-exams/internal/auth"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/results"
	"github.com/mind-engage/mindengage-exams/internal/tenants"
)

type Deps struct {
	Store     docstore.Store
	Services  *exam.Services
	Results   *results.Service
	Analytics *analytics.Service
	Assembler *assembly.Assembler
	Auth      *auth.AuthService
	Tenants   *tenants.Resolver
	Log       logrus.FieldLogger

	CORSOrigins     []string
	EnableLocalAuth bool
	RequestTimeout  time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.Tenants == nil {
		d.Tenants = tenants.NewResolver("")
	}
	log := d.Log

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", d.Tenants.HeaderKey},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", ReadyHandler(d.Store))

	r.Route("/api", func(api chi.Router) {
		if d.EnableLocalAuth {
			api.Post("/auth/login", auth.LoginHandler(d.Auth, d.Services.Users, log))
		}

		api.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(d.Auth), tenants.Middleware(d.Tenants))
			mountResources(pr, d)
			pr.Route("/results", func(rr chi.Router) {
				rr.With(rbac.Require("results:start")).Post("/start", StartAttemptHandler(d.Results, log))
				rr.With(rbac.Require("results:submit")).Post("/submit", SubmitResultHandler(d.Results, log))
				rr.With(rbac.Require("results:read")).Get("/student", StudentResultsHandler(d.Results, log))
				rr.With(rbac.Require("results:read")).Get("/student/{studentId}", StudentResultsHandler(d.Results, log))
				rr.With(rbac.Require("results:read")).Get("/test/{testId}", TestResultsHandler(d.Results, log))
				rr.With(rbac.Require("results:analytics")).Get("/analytics/{testId}", AnalyticsHandler(d.Analytics, log))
			})
		})
	})
	return r
}

func mountResources(r chi.Router, d Deps) {
	s, log := d.Services, d.Log

	r.Route("/institutes", func(rr chi.Router) { mountCRUD[exam.Institute](rr, s.Institutes, log, nil) })
	r.Route("/batches", func(rr chi.Router) { mountCRUD[exam.Batch](rr, s.Batches, log, nil) })
	r.Route("/groups", func(rr chi.Router) { mountCRUD[exam.Group](rr, s.Groups, log, nil) })
	r.Route("/users", func(rr chi.Router) {
		rr.Get("/me", MeHandler(s.Users, log))
		rr.Put("/me/password", ChangePasswordHandler(s.Users, log))
		mountCRUD[exam.User](rr, s.Users, log, nil)
	})
	r.Route("/exams", func(rr chi.Router) { mountCRUD[exam.Exam](rr, s.Exams, log, nil) })
	r.Route("/subjects", func(rr chi.Router) { mountCRUD[exam.Subject](rr, s.Subjects, log, nil) })
	r.Route("/chapters", func(rr chi.Router) { mountCRUD[exam.Chapter](rr, s.Chapters, log, nil) })
	r.Route("/question-sets", func(rr chi.Router) {
		mountCRUD[exam.QuestionSet](rr, s.QuestionSets, log, nil)
		rr.With(rbac.Require("questions:create")).Post("/{id}/import", ImportQuestionsHandler(s.Questions, log))
		rr.With(rbac.Require("questions:read")).Get("/{id}/export", ExportQuestionsHandler(s.Questions, log))
	})
	r.Route("/questions", func(rr chi.Router) {
		mountCRUD[exam.Question](rr, s.Questions, log, nil)
		rr.With(rbac.Require("questions:create")).Post("/{id}/clone", CloneQuestionHandler(s.Questions, log))
		rr.With(rbac.Require("questions:update")).Put("/{id}/move", MoveQuestionHandler(s.Questions, log))
	})
	r.Route("/tests", func(rr chi.Router) {
		mountCRUD[exam.Test](rr, s.Tests, log, withInventoryWarnings(d.Assembler))
	})
	r.Route("/test-configurations", func(rr chi.Router) {
		mountCRUD[exam.TestConfiguration](rr, s.TestConfigurations, log, nil)
	})
	r.Route("/test-visibilities", func(rr chi.Router) {
		mountCRUD[exam.TestVisibility](rr, s.TestVisibilities, log, nil)
	})
	r.Route("/enrollments", func(rr chi.Router) { mountCRUD[exam.Enrollment](rr, s.Enrollments, log, nil) })
	r.Route("/courses", func(rr chi.Router) { mountCRUD[exam.Course](rr, s.Courses, log, nil) })
}

type testBody struct {
	exam.Test
	Warnings []string `json:"warnings,omitempty"`
}

// withInventoryWarnings reports random-test pools that the active question
// inventory cannot fill. The test is saved regardless; generation fails later.
func withInventoryWarnings(asm *assembly.Assembler) decorator[exam.Test] {
	return func(ctx context.Context, t exam.Test) (any, error) {
		body := testBody{Test: t}
		if t.Kind != exam.TestRandom || asm == nil {
			return body, nil
		}
		short, err := asm.CheckInventory(ctx, t.Sections)
		if err != nil {
			return nil, err
		}
		for _, s := range short {
			body.Warnings = append(body.Warnings, s.String())
		}
		return body, nil
	}
}

// ReadyHandler reports 503 until the store answers a trivial query.
func ReadyHandler(store docstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := store.Count(ctx, exam.CollInstitutes, docstore.Filter{"id": "-"}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
