// Package notestore loads the patient-note collection from a JSON file
// and exposes a content fingerprint usable for cache invalidation.
package notestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/caresync/caresync/internal/model"
)

// Store reads notes from a single JSON file. Two layouts are accepted:
// the nested {"patients": [{"patient_id": ..., "notes": [...]}]} form and
// a flat note array.
type Store struct {
	path   string
	logger *slog.Logger
}

// New creates a store over the given file path.
func New(path string) *Store {
	return &Store{path: path, logger: slog.Default()}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

type nestedFile struct {
	Patients []struct {
		PatientID   string       `json:"patient_id"`
		PatientName string       `json:"patient_name"`
		MRN         string       `json:"mrn"`
		Notes       []model.Note `json:"notes"`
	} `json:"patients"`
}

// Load reads and flattens the note collection. Records that fail
// validation are skipped with a warning rather than failing the load.
// A missing file yields an empty collection.
func (s *Store) Load() ([]model.Note, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("notes file not found", slog.String("path", s.path))
			return []model.Note{}, nil
		}
		return nil, fmt.Errorf("read notes file: %w", err)
	}

	notes, err := parseNotes(data)
	if err != nil {
		return nil, fmt.Errorf("parse notes file %s: %w", s.path, err)
	}

	valid := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			s.logger.Warn("skipping invalid note",
				slog.String("note_id", n.NoteID), slog.String("error", err.Error()))
			continue
		}
		valid = append(valid, n)
	}
	return valid, nil
}

func parseNotes(data []byte) ([]model.Note, error) {
	var nested nestedFile
	if err := json.Unmarshal(data, &nested); err == nil && len(nested.Patients) > 0 {
		var notes []model.Note
		for _, p := range nested.Patients {
			for _, n := range p.Notes {
				// Parent record is authoritative for patient identity.
				n.PatientID = p.PatientID
				n.PatientName = p.PatientName
				n.MRN = p.MRN
				notes = append(notes, n)
			}
		}
		return notes, nil
	}

	var flat []model.Note
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

// Fingerprint hashes the file content together with its modification
// time, so an edit to the underlying data invalidates cached alerts even
// within the cache max age. Returns "" when the file is unreadable.
func (s *Store) Fingerprint() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return ""
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Patients aggregates the per-patient view used by the listing API.
func Patients(notes []model.Note) []model.Patient {
	byID := make(map[string]*model.Patient)
	roles := make(map[string]map[string]bool)
	var order []string

	for _, n := range notes {
		p, ok := byID[n.PatientID]
		if !ok {
			p = &model.Patient{
				PatientID: n.PatientID,
				Name:      n.PatientName,
				MRN:       n.MRN,
			}
			byID[n.PatientID] = p
			roles[n.PatientID] = make(map[string]bool)
			order = append(order, n.PatientID)
		}
		p.NoteCount++
		roles[n.PatientID][n.AuthorRole] = true
		if n.Timestamp > p.LatestNote {
			p.LatestNote = n.Timestamp
		}
	}

	out := make([]model.Patient, 0, len(order))
	for _, id := range order {
		p := byID[id]
		for role := range roles[id] {
			p.Roles = append(p.Roles, role)
		}
		sort.Strings(p.Roles)
		out = append(out, *p)
	}
	return out
}
