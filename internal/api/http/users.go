package http

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// GET /api/users/me
func MeHandler(svc *exam.UserService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principal(r)
		u, err := svc.Collection().Get(r.Context(), p.UserID)
		if err != nil {
			writeError(w, r, log, exam.StoreError("user", p.UserID, err))
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// PUT /api/users/me/password
func ChangePasswordHandler(svc *exam.UserService, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, log, err)
			return
		}
		if req.OldPassword == "" {
			writeError(w, r, log, apperr.Validation("validation failed",
				apperr.FieldError{Field: "oldPassword", Message: "is required"}))
			return
		}
		if err := svc.ChangePassword(r.Context(), principal(r).UserID, req.OldPassword, req.NewPassword); err != nil {
			writeError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
