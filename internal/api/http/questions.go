package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/qti"
)

const maxImportBytes = 16 << 20

type setTarget struct {
	QuestionSetID string `json:"questionSetId"`
}

// POST /api/questions/{id}/clone {"questionSetId": "..."}; an empty body
// clones into the source set.
func CloneQuestionHandler(svc *exam.QuestionService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in setTarget
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &in); err != nil {
				writeError(w, r, log, err)
				return
			}
		}
		q, err := svc.Clone(r.Context(), principal(r), chi.URLParam(r, "id"), in.QuestionSetID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// PUT /api/questions/{id}/move {"questionSetId": "..."}
func MoveQuestionHandler(svc *exam.QuestionService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in setTarget
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, log, err)
			return
		}
		q, err := svc.Move(r.Context(), principal(r), chi.URLParam(r, "id"), in.QuestionSetID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// POST /api/question-sets/{id}/import?difficulty=Easy
// Body is one QTI item document or a zipped content package.
func ImportQuestionsHandler(svc *exam.QuestionService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := exam.Difficulty(r.URL.Query().Get("difficulty"))
		if d == "" {
			d = exam.Medium
		}
		if !d.Valid() {
			writeError(w, r, log, apperr.Validation("validation failed", apperr.FieldError{Field: "difficulty", Message: "must be Easy, Medium or Hard"}))
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			writeError(w, r, log, apperr.Validation("unreadable upload: "+err.Error()))
			return
		}
		items, err := qti.Decode(body)
		if err != nil {
			writeError(w, r, log, apperr.Validation("invalid QTI content: "+err.Error()))
			return
		}
		qs := make([]exam.Question, 0, len(items))
		for _, it := range items {
			q, err := it.Question(d)
			if err != nil {
				writeError(w, r, log, apperr.Validation("invalid QTI content: "+err.Error()))
				return
			}
			qs = append(qs, q)
		}
		created, err := svc.Import(r.Context(), principal(r), chi.URLParam(r, "id"), qs)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"data": created, "total": len(created)})
	}
}

// GET /api/question-sets/{id}/export
func ExportQuestionsHandler(svc *exam.QuestionService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setID := chi.URLParam(r, "id")
		qs, err := svc.InSet(r.Context(), principal(r), setID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		pkg, err := qti.WritePackage(setID, qs)
		if err != nil {
			writeError(w, r, log, apperr.Server(err))
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", setID+".zip"))
		w.Header().Set("Content-Length", strconv.Itoa(len(pkg)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pkg)
	}
}
