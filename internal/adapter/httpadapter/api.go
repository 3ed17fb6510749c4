package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/adapter/filestore"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/domain"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/gateway"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request id on the read endpoint.
const RequestIDHeader = "X-Request-ID"

// defaultWindow is the range served when start or end is omitted.
const defaultWindow = 24 * time.Hour

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// cacheQuery binds the read endpoint's query string.
type cacheQuery struct {
	Start     string `validate:"omitempty,datetime=2006-01-02"`
	StartHour string `validate:"omitempty,datetime=15:04"`
	End       string `validate:"omitempty,datetime=2006-01-02"`
	EndHour   string `validate:"omitempty,datetime=15:04"`
	Callback  string `validate:"omitempty,max=64,callback"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("callback", func(fl validator.FieldLevel) bool {
		return callbackPattern.MatchString(fl.Field().String())
	})
	return v
}

func (q cacheQuery) queryRange(now time.Time) (domain.QueryRange, error) {
	if q.Start == "" || q.End == "" {
		return domain.TrailingRange(now, defaultWindow), nil
	}
	return domain.ParseQueryRange(q.Start, q.StartHour, q.End, q.EndHour)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, reqID)
	setCORS(w)
	logger := s.logger.With("request_id", reqID)

	params := r.URL.Query()
	q := cacheQuery{
		Start:     params.Get("start"),
		StartHour: params.Get("startHour"),
		End:       params.Get("end"),
		EndHour:   params.Get("endHour"),
		Callback:  params.Get("callback"),
	}
	if err := s.validate.Struct(q); err != nil {
		logger.Info("rejected query", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": describeValidation(err)})
		return
	}
	rng, err := q.queryRange(s.clock.Now())
	if err != nil {
		logger.Info("rejected query", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res := s.reports.Reports(r.Context(), rng)

	status := http.StatusOK
	if res.Err != nil && !res.Unavailable() {
		status = http.StatusInternalServerError
	}
	w.Header().Set(gateway.SourceHeader, string(res.Source))
	if res.Path != "" {
		w.Header().Set(gateway.PathHeader, string(res.Path))
	}
	w.Header().Set("X-LSR-Cached", strconv.FormatBool(res.Cached))

	logger.Info("query served",
		"range", rng.String(),
		"source", res.Source,
		"path", res.Path,
		"cached", res.Cached,
		"reports", len(res.Collection.Features),
		"status", status)

	writeCollection(w, status, q.Callback, res.Collection)
}

func (s *Server) handleSnapshotFile(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	name := r.PathValue("file")
	day, ok := filestore.DayFromFileName(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	data, err := s.snapshots.ReadRaw(day)
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	case err != nil:
		s.logger.Error("snapshot file read failed", "file", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot unreadable"})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeCollection(w http.ResponseWriter, status int, callback string, fc domain.FeatureCollection) {
	body, err := json.Marshal(fc)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode response"})
		return
	}
	if callback == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "%s(%s);", callback, body)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("invalid %s: %q", queryParam(fe.Field()), fe.Value())
}

func queryParam(field string) string {
	switch field {
	case "Start":
		return "start"
	case "StartHour":
		return "startHour"
	case "End":
		return "end"
	case "EndHour":
		return "endHour"
	case "Callback":
		return "callback"
	case "Hours":
		return "hours"
	default:
		return field
	}
}
