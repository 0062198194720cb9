package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jgoulah/homeenergy/internal/analytics"
	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/internal/ingest"
	"github.com/jgoulah/homeenergy/internal/pipeline"
	"github.com/jgoulah/homeenergy/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps an error kind onto a status. Upstream and internal
// failures get a generic message; the detail only goes to the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.Kind(err)

	var status int
	var msg string
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Error()
	case errors.Is(err, apperr.ErrModelUnavailable):
		status, msg = http.StatusServiceUnavailable, "model unavailable"
	case strings.HasPrefix(kind, "upstream_"):
		status, msg = http.StatusBadGateway, "upstream service failed"
	default:
		status, msg = http.StatusInternalServerError, "internal error"
	}

	s.log.Error("Request failed", "path", r.URL.Path, "kind", kind, "status", status, "error", err)
	writeJSON(w, status, errorBody{Error: msg})
}

// params reads a value from the query string, falling back to the JSON body
// of a POST request
type params struct {
	r    *http.Request
	body map[string]any
}

// newParams decodes the JSON body of a POST request. An empty body is
// allowed; one that is present but not a JSON object is a validation error.
func newParams(r *http.Request) (*params, error) {
	p := &params{r: r}
	if r.Method != http.MethodPost || r.Body == nil {
		return p, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&p.body); err != nil && !errors.Is(err, io.EOF) {
		return nil, &apperr.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return p, nil
}

func (p *params) get(names ...string) string {
	q := p.r.URL.Query()
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	for _, n := range names {
		switch v := p.body[n].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func parseDateParam(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return nil, &apperr.ValidationError{Field: field, Value: value, Message: "expected YYYY-MM-DD"}
	}
	return &d, nil
}

func parseRange(p *params) (*time.Time, *time.Time, error) {
	start, err := parseDateParam("start", p.get("start"))
	if err != nil {
		return nil, nil, err
	}
	end, err := parseDateParam("end", p.get("end"))
	if err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, &apperr.ValidationError{Field: "end", Value: end.Format(models.DateLayout), Message: "end is before start"}
	}
	return start, end, nil
}

// healthHandler reports store and model status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}

	modelStatus := map[string]string{}
	for name, err := range s.service.Models().Status(r.Context()) {
		if err != nil {
			modelStatus[name] = "unavailable"
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
			continue
		}
		modelStatus[name] = "ok"
	}
	body["models"] = modelStatus

	writeJSON(w, status, body)
}

// forecastHandler returns the next ?days days of total consumption.
// ?household narrows the input readings; the model stays global.
func (s *Server) forecastHandler(w http.ResponseWriter, r *http.Request) {
	p, err := newParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	days := s.opts.DefaultDays
	if v := p.get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, &apperr.ValidationError{Field: "days", Value: v, Message: "must be a positive integer"})
			return
		}
		days = n
	}

	points, err := s.service.Forecast(r.Context(), days, p.get("household", "HomeID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// anomaliesHandler scores every day of the matching households.
// Accepts household, start, end and debug as query params or JSON body.
func (s *Server) anomaliesHandler(w http.ResponseWriter, r *http.Request) {
	p, err := newParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start, end, err := parseRange(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	debug, _ := strconv.ParseBool(p.get("debug"))

	points, err := s.service.DetectAnomalies(r.Context(), pipeline.AnomalyRequest{
		HouseholdID: p.get("household", "HomeID"),
		Start:       start,
		End:         end,
		Debug:       debug,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

type uploadResponse struct {
	ingest.Stats
	Inserted int `json:"inserted"`
}

// uploadReadingsHandler ingests a CSV body. Bad rows are counted and
// skipped; the accepted rows are stored in one transaction.
func (s *Server) uploadReadingsHandler(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var batch []models.Reading
	stats, err := ingest.ReadCSV(body, ingest.NewNormalizer(), func(rd models.Reading) error {
		batch = append(batch, rd)
		return nil
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		s.writeError(w, r, &apperr.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	inserted, err := s.store.InsertReadings(r.Context(), batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log.Info("Readings uploaded", "accepted", stats.Accepted, "rejected", stats.Rejected, "inserted", inserted)
	writeJSON(w, http.StatusOK, uploadResponse{Stats: stats, Inserted: inserted})
}

// householdReadingsHandler lists one household's raw readings, optionally
// limited by ?start and ?end
func (s *Server) householdReadingsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := newParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	start, end, err := parseRange(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	readings, err := s.store.Readings(r.Context(), models.ReadingFilter{
		HouseholdID: mux.Vars(r)["id"],
		Start:       start,
		End:         end,
	})
	if err != nil {
		s.writeError(w, r, apperr.Upstream(apperr.StageFetch, err))
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// householdSummaryHandler compares one household against all households
func (s *Server) householdSummaryHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.Readings(r.Context(), models.ReadingFilter{})
	if err != nil {
		s.writeError(w, r, apperr.Upstream(apperr.StageFetch, err))
		return
	}

	id := mux.Vars(r)["id"]
	summary, ok := analytics.HouseholdSummary(id, all)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("no readings for household %s", id)})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// applianceSummaryHandler returns totals per appliance across all households
func (s *Server) applianceSummaryHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.Readings(r.Context(), models.ReadingFilter{})
	if err != nil {
		s.writeError(w, r, apperr.Upstream(apperr.StageFetch, err))
		return
	}
	writeJSON(w, http.StatusOK, analytics.Summarize(all))
}
