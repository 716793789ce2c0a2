package detect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/oracle"
)

// fakeOracle returns canned judgments per patient id.
type fakeOracle struct {
	mu       sync.Mutex
	judge    func(patientID string, notes []model.Note) ([]model.Alert, error)
	seen     map[string][]model.Note
	requests int32
}

func (f *fakeOracle) Judge(ctx context.Context, patientID string, notes []model.Note) ([]model.Alert, error) {
	atomic.AddInt32(&f.requests, 1)
	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string][]model.Note)
	}
	f.seen[patientID] = notes
	f.mu.Unlock()
	return f.judge(patientID, notes)
}

func testNotes() []model.Note {
	return []model.Note{
		{NoteID: "DX-401-n-002", PatientID: "PT-401", AuthorRole: "RN", Timestamp: "2026-02-21T09:10:00Z", NoteText: "worsening pain 8/10, HR 116"},
		{NoteID: "DX-401-n-001", PatientID: "PT-401", AuthorRole: "MD", Timestamp: "2026-02-21T06:42:00Z", NoteText: "pain improved, continue plan"},
		{NoteID: "EX-402-n-001", PatientID: "PT-402", AuthorRole: "MD", Timestamp: "2026-02-21T07:00:00Z", NoteText: "stable overnight"},
	}
}

func TestDetector_GroupsAndSortsPerPatient(t *testing.T) {
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		return nil, nil
	}}
	d := New(fake, WithConcurrency(1))

	if _, err := d.DetectDrift(context.Background(), testNotes()); err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}

	if len(fake.seen) != 2 {
		t.Fatalf("expected 2 patients analyzed, got %d", len(fake.seen))
	}
	group := fake.seen["PT-401"]
	if len(group) != 2 {
		t.Fatalf("expected 2 notes for PT-401, got %d", len(group))
	}
	if group[0].NoteID != "DX-401-n-001" || group[1].NoteID != "DX-401-n-002" {
		t.Errorf("expected ascending timestamp order, got %s then %s", group[0].NoteID, group[1].NoteID)
	}
}

func TestDetector_OnePatientFailureDoesNotAbortBatch(t *testing.T) {
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		if patientID == "PT-401" {
			return nil, &oracle.TransportError{Err: errors.New("timeout")}
		}
		return []model.Alert{{
			AlertID:       "a-402",
			PatientID:     patientID,
			SourceNoteIDs: []string{"EX-402-n-001"},
		}}, nil
	}}
	d := New(fake)

	alerts, err := d.DetectDrift(context.Background(), testNotes())
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert from the healthy patient, got %d", len(alerts))
	}
	if alerts[0].PatientID != "PT-402" {
		t.Errorf("expected PT-402 alert, got %s", alerts[0].PatientID)
	}
}

func TestDetector_ParseErrorYieldsZeroAlerts(t *testing.T) {
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		return nil, &oracle.ParseError{Raw: "not json", Err: errors.New("bad")}
	}}
	d := New(fake)

	alerts, err := d.DetectDrift(context.Background(), testNotes())
	if err != nil {
		t.Fatalf("expected parse errors to be contained, got %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected 0 alerts, got %d", len(alerts))
	}
}

func TestDetector_ConfigErrorPropagates(t *testing.T) {
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		return nil, &oracle.ConfigError{Reason: "OPENAI_API_KEY not set"}
	}}
	d := New(fake)

	_, err := d.DetectDrift(context.Background(), testNotes())
	if err == nil {
		t.Fatal("expected configuration error to propagate")
	}
	if !oracle.IsConfigError(err) {
		t.Errorf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestDetector_EmptyInput(t *testing.T) {
	fake := &fakeOracle{judge: func(string, []model.Note) ([]model.Alert, error) { return nil, nil }}
	d := New(fake)

	alerts, err := d.DetectDrift(context.Background(), nil)
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("expected empty non-nil alert list, got %v", alerts)
	}
	if fake.requests != 0 {
		t.Errorf("expected no oracle calls for empty input, got %d", fake.requests)
	}
}

func TestDetector_AssignsAlertIDAndPatientID(t *testing.T) {
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		if patientID != "PT-402" {
			return nil, nil
		}
		return []model.Alert{{SourceNoteIDs: []string{"EX-402-n-001"}}}, nil
	}}
	d := New(fake)

	alerts, err := d.DetectDrift(context.Background(), testNotes())
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].AlertID == "" {
		t.Error("expected generated alert id")
	}
	if alerts[0].PatientID != "PT-402" {
		t.Errorf("expected patient id filled in, got %q", alerts[0].PatientID)
	}
}

func TestDetector_FullPipelineRepairsAndFilters(t *testing.T) {
	// One candidate with a transposed prefix survives repair; one
	// non-exclusive-plan candidate is suppressed.
	fake := &fakeOracle{judge: func(patientID string, notes []model.Note) ([]model.Alert, error) {
		if patientID != "PT-401" {
			return nil, nil
		}
		return []model.Alert{
			{
				AlertID:       "keep",
				AlertType:     model.AlertSymptomProgressionConflict,
				SourceNoteIDs: []string{"CX-401-n-001", "DX-401-n-002"},
				ConflictingFacts: []model.ConflictingFact{
					{Role: "MD", NoteID: "CX-401-n-001", Fact: model.Fact{Type: "patient_status", Value: "pain improved", SourceQuote: "pain improved"}},
					{Role: "RN", NoteID: "DX-401-n-002", Fact: model.Fact{Type: "patient_status", Value: "worsening pain 8/10, HR 116", SourceQuote: "worsening pain 8/10"}},
				},
				ConflictingFactTypes: []string{"patient_status"},
			},
			{
				AlertID:              "suppress",
				AlertType:            model.AlertSymptomProgressionConflict,
				SourceNoteIDs:        []string{"DX-401-n-001"},
				ConflictingFactTypes: []string{"treatment_plan", "patient_status"},
				ConflictingFacts: []model.ConflictingFact{
					{Role: "MD", NoteID: "DX-401-n-001", Fact: model.Fact{Type: "treatment_plan", Value: "NPO, IVF, monitor"}},
					{Role: "RN", NoteID: "DX-401-n-002", Fact: model.Fact{Type: "patient_status", Value: "nausea"}},
				},
			},
		}, nil
	}}
	d := New(fake)

	alerts, err := d.DetectDrift(context.Background(), testNotes())
	if err != nil {
		t.Fatalf("DetectDrift failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly the repaired alert, got %d", len(alerts))
	}
	if alerts[0].AlertID != "keep" {
		t.Errorf("expected alert %q, got %q", "keep", alerts[0].AlertID)
	}
	if alerts[0].SourceNoteIDs[0] != "DX-401-n-001" {
		t.Errorf("expected repaired source id, got %v", alerts[0].SourceNoteIDs)
	}
}

func TestFormatWindow(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{30, "30 minutes"},
		{150, "2 hours"},
		{60 * 50, "2 days"},
	}
	for _, tc := range cases {
		got := formatWindow(time.Duration(tc.minutes) * time.Minute)
		if got != tc.want {
			t.Errorf("formatWindow(%d min) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}
