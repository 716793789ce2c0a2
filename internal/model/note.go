package model

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// NoteIDPattern is the canonical shape of a note identifier:
// <PatientPrefix>-<patientNumber>-n-<sequence>, e.g. "DX-401-n-001".
var NoteIDPattern = regexp.MustCompile(`^([A-Z]+)-(\d+)-n-(\d+)$`)

// Note is a single clinical note as loaded from the note store.
// Notes are immutable; note_text is the only source of truth for
// quoted evidence.
type Note struct {
	NoteID      string `json:"note_id"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	MRN         string `json:"mrn"`
	Timestamp   string `json:"timestamp"`    // ISO-8601
	AuthorRole  string `json:"author_role"`  // MD, RN, RT, PT, ED_MD, ...
	NoteText    string `json:"note_text"`
}

// Common author roles seen in the note data. The field is an open set;
// these constants cover the roles the detection prompt calls out by name.
const (
	RoleMD   = "MD"
	RoleRN   = "RN"
	RoleRT   = "RT"
	RolePT   = "PT"
	RoleEDMD = "ED_MD"
)

// Time parses the note timestamp. Timestamps in the data files come in
// both "2026-02-21T06:42:00.000Z" and "2026-02-21 06:42:00" forms.
func (n Note) Time() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, n.Timestamp); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", n.Timestamp)
}

// Validate checks that a loaded note is usable by the detection pipeline.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.NoteID, validation.Required, validation.Match(NoteIDPattern)),
		validation.Field(&n.PatientID, validation.Required),
		validation.Field(&n.AuthorRole, validation.Required),
		validation.Field(&n.Timestamp, validation.Required, validation.By(func(interface{}) error {
			_, err := n.Time()
			return err
		})),
		validation.Field(&n.NoteText, validation.Required),
	)
}

// Patient is the aggregated per-patient view derived from notes.
type Patient struct {
	PatientID  string   `json:"patient_id"`
	Name       string   `json:"name"`
	MRN        string   `json:"mrn"`
	NoteCount  int      `json:"note_count"`
	Roles      []string `json:"roles"`
	LatestNote string   `json:"latest_note,omitempty"`
}
