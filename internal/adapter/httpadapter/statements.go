package httpadapter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
)

// statementsQuery binds /api/pns. Hours defaults to 24.
type statementsQuery struct {
	Hours    int    `validate:"min=1,max=168"`
	Callback string `validate:"omitempty,max=64,callback"`
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	params := r.URL.Query()

	q := statementsQuery{Hours: 24, Callback: params.Get("callback")}
	if raw := params.Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hours: " + strconv.Quote(raw)})
			return
		}
		q.Hours = n
	}
	if err := s.validate.Struct(q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": describeValidation(err)})
		return
	}

	fc, err := s.statements.Recent(r.Context(), time.Duration(q.Hours)*time.Hour)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsTransportError(err) {
			status = http.StatusOK
		}
		s.logger.Warn("pns statements unavailable", "error", err, "kind", domain.ErrorKind(err), "status", status)
		writeCollection(w, status, q.Callback, domain.EmptyCollection(err.Error()))
		return
	}
	writeCollection(w, http.StatusOK, q.Callback, fc)
}
