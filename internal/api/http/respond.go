package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err and logs server failures with their cause.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	if apperr.KindOf(err) == apperr.KindServer {
		entry := log.WithError(err).WithField("path", r.URL.Path)
		if id := requestID(r); id != "" {
			entry = entry.WithField("request_id", id)
		}
		entry.Error("request failed")
	}
	apperr.Write(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed JSON body: " + err.Error())
	}
	return nil
}

// principal is only called behind rbac.Require, which guarantees one.
func principal(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}

func parseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

// listParams reads page, limit, sort, order, lifecycle and the allowed
// equality filters from the query string.
func listParams(r *http.Request, filters []string) exam.ListParams {
	q := r.URL.Query()
	lp := exam.ListParams{
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), exam.DefaultLimit),
		Filter: docstore.Filter{},
	}
	for _, f := range filters {
		if v := strings.TrimSpace(q.Get(f)); v != "" {
			lp.Filter[f] = v
		}
	}
	switch q.Get("lifecycle") {
	case string(exam.LifecycleActive), string(exam.LifecycleInactive):
		lp.Filter["lifecycle"] = q.Get("lifecycle")
	case "all":
		lp.Filter["lifecycle"] = docstore.InStrings([]string{string(exam.LifecycleActive), string(exam.LifecycleInactive)})
	}
	if s := q.Get("sort"); sortable(s, filters) {
		lp.Sort = s
		lp.Desc = strings.EqualFold(q.Get("order"), "desc")
	}
	return lp
}

func sortable(field string, filters []string) bool {
	switch field {
	case "":
		return false
	case "createdAt", "updatedAt", "name", "code":
		return true
	}
	for _, f := range filters {
		if f == field {
			return true
		}
	}
	return false
}
