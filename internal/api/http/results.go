package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/analytics"
	"github.com/mind-engage/mindengage-exams/internal/results"
)

// POST /api/results/start {"testId": "...", "courseId": "..."}
func StartAttemptHandler(svc *results.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req results.StartRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		att, err := svc.Start(r.Context(), principal(r), req)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, att)
	}
}

// POST /api/results/submit
func SubmitResultHandler(svc *results.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req results.SubmitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := svc.Submit(r.Context(), principal(r), req)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// GET /api/results/student[/{studentId}]?page=&limit=
func StudentResultsHandler(svc *results.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := svc.ForStudent(r.Context(), principal(r), chi.URLParam(r, "studentId"), listParams(r, nil))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// GET /api/results/test/{testId}
func TestResultsHandler(svc *results.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs, err := svc.ForTest(r.Context(), principal(r), chi.URLParam(r, "testId"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": rs, "total": len(rs)})
	}
}

// GET /api/results/analytics/{testId}
func AnalyticsHandler(svc *analytics.Service, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := svc.ForTest(r.Context(), principal(r), chi.URLParam(r, "testId"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
