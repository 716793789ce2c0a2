// Package api exposes the note, patient, and alert lookups over HTTP.
// All algorithmic work lives in the detect pipeline; this layer is thin
// data plumbing over the note store and the alert cache.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caresync/caresync/internal/alertcache"
	"github.com/caresync/caresync/internal/detect"
	"github.com/caresync/caresync/internal/metrics"
	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/notestore"
	"github.com/caresync/caresync/internal/oracle"
)

// Server wires the note store, detector, and alert cache behind the API.
// A nil detector (oracle not configured) keeps the note and patient
// lookups working; the alert endpoints then answer with a warning so the
// caller can distinguish "not configured" from "no alerts found".
type Server struct {
	store     *notestore.Store
	detector  *detect.Detector
	cache     *alertcache.Cache
	maxAge    time.Duration
	configErr error
	logger    *slog.Logger
}

// NewServer creates a Server. configErr carries the oracle's
// configuration error when the detector could not be built.
func NewServer(store *notestore.Store, detector *detect.Detector, cache *alertcache.Cache, maxAge time.Duration, configErr error, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     store,
		detector:  detector,
		cache:     cache,
		maxAge:    maxAge,
		configErr: configErr,
		logger:    logger,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/alerts", s.handleAlerts)
	r.Get("/api/alerts/patient/{patientID}", s.handlePatientAlerts)
	r.Get("/api/notes", s.handleNotes)
	r.Get("/api/notes/{noteID}", s.handleNote)
	r.Get("/api/notes/patient/{patientID}", s.handlePatientNotes)
	r.Get("/api/patients", s.handlePatients)
	r.Get("/api/patients/{patientID}", s.handlePatient)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// alertsResponse is the alert endpoints' envelope. Warning is set only
// for the fatal configuration-error class, distinguishable from a normal
// empty result.
type alertsResponse struct {
	Alerts  []model.Alert `json:"alerts"`
	Count   int           `json:"count"`
	Warning string        `json:"warning,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.serveAlerts(w, r, alertcache.ScopeAll, notes, attachPatientNames(notes))
}

func (s *Server) handlePatientAlerts(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	var patientNotes []model.Note
	for _, n := range notes {
		if n.PatientID == patientID {
			patientNotes = append(patientNotes, n)
		}
	}
	s.serveAlerts(w, r, patientID, patientNotes, nil)
}

// serveAlerts runs the cached detection for one scope. decorate, when
// non-nil, post-processes the payload before it is written (cohort
// responses attach patient names).
func (s *Server) serveAlerts(w http.ResponseWriter, r *http.Request, key string, notes []model.Note, decorate func([]model.Alert) []model.Alert) {
	if len(notes) == 0 {
		writeJSON(w, http.StatusOK, alertsResponse{Alerts: []model.Alert{}, Count: 0})
		return
	}
	if s.configErr != nil {
		writeJSON(w, http.StatusOK, alertsResponse{
			Alerts:  []model.Alert{},
			Count:   0,
			Warning: s.configErr.Error(),
		})
		return
	}

	alerts, status, err := s.cache.GetOrRefresh(r.Context(), key, notes, s.maxAge,
		func(ctx context.Context) ([]model.Alert, error) {
			return s.detector.DetectDrift(ctx, notes)
		})
	if err != nil {
		if oracle.IsConfigError(err) {
			writeJSON(w, http.StatusOK, alertsResponse{
				Alerts:  []model.Alert{},
				Count:   0,
				Warning: err.Error(),
			})
			return
		}
		s.serverError(w, err)
		return
	}

	if decorate != nil {
		alerts = decorate(alerts)
	}

	w.Header().Set("X-Cache", string(status))
	w.Header().Set("X-Notes-Hash", s.store.Fingerprint())
	w.Header().Set("Cache-Control", "public, s-maxage=1800, stale-while-revalidate=3600")
	writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Count: len(alerts)})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes, "count": len(notes)})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	for _, n := range notes {
		if n.NoteID == noteID {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "note not found"})
}

func (s *Server) handlePatientNotes(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	out := []model.Note{}
	for _, n := range notes {
		if n.PatientID == patientID {
			out = append(out, n)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": out, "count": len(out)})
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	patients := notestore.Patients(notes)
	writeJSON(w, http.StatusOK, map[string]interface{}{"patients": patients, "count": len(patients)})
}

func (s *Server) handlePatient(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	notes, err := s.store.Load()
	if err != nil {
		s.serverError(w, err)
		return
	}
	for _, p := range notestore.Patients(notes) {
		if p.PatientID == patientID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "patient not found"})
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// attachPatientNames decorates cohort alerts with the patient name from
// the note data.
func attachPatientNames(notes []model.Note) func([]model.Alert) []model.Alert {
	names := make(map[string]string)
	for _, n := range notes {
		if n.PatientName != "" {
			if _, ok := names[n.PatientID]; !ok {
				names[n.PatientID] = n.PatientName
			}
		}
	}
	return func(alerts []model.Alert) []model.Alert {
		out := make([]model.Alert, len(alerts))
		copy(out, alerts)
		for i := range out {
			if name, ok := names[out[i].PatientID]; ok {
				out[i].PatientName = name
			} else if out[i].PatientName == "" {
				out[i].PatientName = "Unknown"
			}
		}
		return out
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
