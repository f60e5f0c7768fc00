package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drewfead/sprintexport/internal/export"
	"github.com/drewfead/sprintexport/internal/jira"
	"github.com/drewfead/sprintexport/internal/logging"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// Handler returns the HTTP routes.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sprints/{id}/export.csv", d.serveSprintExport)
	mux.HandleFunc("GET /projects/{project}/export.csv", d.serveProjectExport)
	mux.HandleFunc("GET /sprints/{id}", d.serveSprintData)
	mux.HandleFunc("GET /status", d.serveStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return withRecovery(withRequestLog(mux))
}

func (d *Daemon) serveSprintExport(w http.ResponseWriter, r *http.Request) {
	writeResult(w, d.export(r.Context(), ticket.SprintID(r.PathValue("id"))))
}

func (d *Daemon) serveProjectExport(w http.ResponseWriter, r *http.Request) {
	project := strings.TrimSpace(r.PathValue("project"))
	if project == "" {
		writeFault(w, &export.Fault{Kind: export.KindMissingInput, Message: "project is required"})
		return
	}

	sprint, err := d.source.ResolveSprint(r.Context(), project)
	if errors.Is(err, jira.ErrNoSprint) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeFault(w, export.FaultFrom(err))
		return
	}
	writeResult(w, d.export(r.Context(), ticket.SprintID(strconv.Itoa(sprint.ID))))
}

func (d *Daemon) serveSprintData(w http.ResponseWriter, r *http.Request) {
	data, fault := d.Exporter().SprintData(r.Context(), ticket.SprintID(r.PathValue("id")))
	if fault != nil {
		writeFault(w, fault)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (d *Daemon) serveStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Status())
}

// writeResult sends the CSV as a download, or the fault as JSON.
func writeResult(w http.ResponseWriter, res *export.Result) {
	if res.Fault != nil {
		writeFault(w, res.Fault)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", res.ContentDisposition)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Body))
}

func writeFault(w http.ResponseWriter, f *export.Fault) {
	writeJSON(w, f.HTTPStatus(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		log := logging.With("request_id", id, "method", r.Method, "path", r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(logging.NewContext(r.Context(), log)))
		log.Info("http request", "status", rec.status, "duration", time.Since(start))
	})
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.CapturePanic(v, "path", r.URL.Path)
				writeFault(w, &export.Fault{Kind: export.KindUnknown, Message: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
