package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caresync/caresync/internal/alertcache"
	"github.com/caresync/caresync/internal/detect"
	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/notestore"
	"github.com/caresync/caresync/internal/oracle"
)

const testNotesFile = `{
  "patients": [
    {
      "patient_id": "PT-401",
      "patient_name": "Jordan Reyes",
      "mrn": "MRN-88231",
      "notes": [
        {"note_id": "DX-401-n-001", "timestamp": "2026-02-21T06:42:00Z", "author_role": "MD", "note_text": "pain improved, plan unchanged"},
        {"note_id": "DX-401-n-002", "timestamp": "2026-02-21T09:10:00Z", "author_role": "RN", "note_text": "worsening pain 8/10, HR 116, increasing distention"}
      ]
    },
    {
      "patient_id": "PT-402",
      "patient_name": "Sam Okafor",
      "mrn": "MRN-91044",
      "notes": [
        {"note_id": "EX-402-n-001", "timestamp": "2026-02-21T07:00:00Z", "author_role": "ED_MD", "note_text": "on RA, sats 96%"}
      ]
    }
  ]
}`

// stubOracle returns a fixed judgment per patient.
type stubOracle struct {
	alerts map[string][]model.Alert
	err    error
}

func (s *stubOracle) Judge(ctx context.Context, patientID string, notes []model.Note) ([]model.Alert, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.alerts[patientID], nil
}

func newTestServer(t *testing.T, client oracle.Client, configErr error) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.json")
	if err := os.WriteFile(path, []byte(testNotesFile), 0o644); err != nil {
		t.Fatal(err)
	}
	store := notestore.New(path)

	var detector *detect.Detector
	if client != nil {
		detector = detect.New(client, detect.WithConcurrency(2))
	}
	return NewServer(store, detector, alertcache.New(), 30*time.Minute, configErr, nil)
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeAlerts(t *testing.T, rec *httptest.ResponseRecorder) alertsResponse {
	t.Helper()
	var resp alertsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubOracle{}, nil)
	rec := get(t, srv.Router(), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAlerts_CohortWithPatientNames(t *testing.T) {
	client := &stubOracle{alerts: map[string][]model.Alert{
		"PT-401": {{
			AlertID:       "a1",
			AlertType:     model.AlertSymptomProgressionConflict,
			Severity:      model.SeverityMedium,
			PatientID:     "PT-401",
			SourceNoteIDs: []string{"DX-401-n-002"},
			Description:   "worsening pain unacknowledged",
		}},
	}}
	srv := newTestServer(t, client, nil)
	router := srv.Router()

	rec := get(t, router, "/api/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeAlerts(t, rec)
	if resp.Count != 1 || len(resp.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", resp)
	}
	if resp.Alerts[0].PatientName != "Jordan Reyes" {
		t.Errorf("cohort response should carry the patient name, got %q", resp.Alerts[0].PatientName)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning: %q", resp.Warning)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request should be a MISS, got %q", rec.Header().Get("X-Cache"))
	}
	if rec.Header().Get("X-Notes-Hash") == "" {
		t.Error("expected notes hash header")
	}

	// The second request must be served from cache.
	rec = get(t, router, "/api/alerts")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request should be a HIT, got %q", rec.Header().Get("X-Cache"))
	}
}

func TestAlerts_PatientScope(t *testing.T) {
	client := &stubOracle{alerts: map[string][]model.Alert{
		"PT-401": {{AlertID: "a1", PatientID: "PT-401", SourceNoteIDs: []string{"DX-401-n-002"}}},
	}}
	srv := newTestServer(t, client, nil)
	router := srv.Router()

	rec := get(t, router, "/api/alerts/patient/PT-401")
	resp := decodeAlerts(t, rec)
	if resp.Count != 1 {
		t.Fatalf("expected 1 alert for PT-401, got %+v", resp)
	}

	rec = get(t, router, "/api/alerts/patient/PT-402")
	resp = decodeAlerts(t, rec)
	if resp.Count != 0 {
		t.Errorf("expected no alerts for PT-402, got %+v", resp)
	}
}

func TestAlerts_UnknownPatientIsEmptyNotError(t *testing.T) {
	srv := newTestServer(t, &stubOracle{}, nil)

	rec := get(t, srv.Router(), "/api/alerts/patient/PT-999")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeAlerts(t, rec)
	if resp.Count != 0 || resp.Alerts == nil {
		t.Errorf("expected empty alerts array, got %+v", resp)
	}
}

func TestAlerts_ConfigErrorYieldsWarning(t *testing.T) {
	cerr := &oracle.ConfigError{Reason: "OPENAI_API_KEY not set"}
	srv := newTestServer(t, nil, cerr)

	rec := get(t, srv.Router(), "/api/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with warning, got %d", rec.Code)
	}
	resp := decodeAlerts(t, rec)
	if resp.Warning == "" {
		t.Fatal("expected a warning distinguishing misconfiguration from no alerts")
	}
	if resp.Count != 0 || len(resp.Alerts) != 0 {
		t.Errorf("misconfigured server must not report alerts: %+v", resp)
	}
}

func TestAlerts_TransportFailureContained(t *testing.T) {
	client := &stubOracle{err: &oracle.TransportError{Err: errors.New("connection refused")}}
	srv := newTestServer(t, client, nil)

	rec := get(t, srv.Router(), "/api/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeAlerts(t, rec)
	if resp.Count != 0 || resp.Warning != "" {
		t.Errorf("transport failures contribute zero alerts without a warning: %+v", resp)
	}
}

func TestNotes_ListAndLookup(t *testing.T) {
	srv := newTestServer(t, &stubOracle{}, nil)
	router := srv.Router()

	rec := get(t, router, "/api/notes")
	var listing struct {
		Notes []model.Note `json:"notes"`
		Count int          `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 3 {
		t.Errorf("expected 3 notes, got %d", listing.Count)
	}

	rec = get(t, router, "/api/notes/DX-401-n-002")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var note model.Note
	if err := json.NewDecoder(rec.Body).Decode(&note); err != nil {
		t.Fatal(err)
	}
	if note.AuthorRole != "RN" {
		t.Errorf("wrong note returned: %+v", note)
	}

	rec = get(t, router, "/api/notes/DX-401-n-099")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown note, got %d", rec.Code)
	}

	rec = get(t, router, "/api/notes/patient/PT-402")
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 1 || listing.Notes[0].NoteID != "EX-402-n-001" {
		t.Errorf("unexpected patient notes: %+v", listing)
	}
}

func TestPatients_ListAndLookup(t *testing.T) {
	srv := newTestServer(t, &stubOracle{}, nil)
	router := srv.Router()

	rec := get(t, router, "/api/patients")
	var listing struct {
		Patients []model.Patient `json:"patients"`
		Count    int             `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 2 {
		t.Errorf("expected 2 patients, got %d", listing.Count)
	}

	rec = get(t, router, "/api/patients/PT-401")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p model.Patient
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "Jordan Reyes" || p.NoteCount != 2 {
		t.Errorf("unexpected patient: %+v", p)
	}

	rec = get(t, router, "/api/patients/PT-999")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown patient, got %d", rec.Code)
	}
}

func TestAlerts_EmptyStore(t *testing.T) {
	store := notestore.New(filepath.Join(t.TempDir(), "absent.json"))
	srv := NewServer(store, detect.New(&stubOracle{}), alertcache.New(), 30*time.Minute, nil, nil)

	rec := get(t, srv.Router(), "/api/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeAlerts(t, rec)
	if resp.Count != 0 || resp.Alerts == nil {
		t.Errorf("expected empty alerts payload, got %+v", resp)
	}
}
