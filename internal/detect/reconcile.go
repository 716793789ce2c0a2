package detect

import (
	"log/slog"
	"strings"

	"github.com/caresync/caresync/internal/model"
)

// Reconciler repairs and validates every note reference the oracle returns
// against the authoritative note set for one patient. The oracle is known
// to transpose identifier prefixes (CX-401-n-001 for DX-401-n-001) and to
// fabricate references outright; every claim must stay traceable to a real
// source document or be dropped.
type Reconciler struct {
	notes  []model.Note
	byID   map[string]model.Note
	prefix string
}

// NewReconciler builds a reconciler over the authoritative note set.
// All notes for one patient share one identifier prefix; it is derived
// from the first well-formed note id.
func NewReconciler(notes []model.Note) *Reconciler {
	r := &Reconciler{
		notes: notes,
		byID:  make(map[string]model.Note, len(notes)),
	}
	for _, n := range notes {
		r.byID[n.NoteID] = n
		if r.prefix == "" {
			if m := model.NoteIDPattern.FindStringSubmatch(n.NoteID); m != nil {
				r.prefix = m[1]
			}
		}
	}
	return r
}

// resolve repairs a single referenced identifier. Strategy, in order:
// exact match, prefix substitution, then a search by the patient/sequence
// components regardless of prefix.
func (r *Reconciler) resolve(id string) (string, bool) {
	if _, ok := r.byID[id]; ok {
		return id, true
	}

	m := model.NoteIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	wrongPrefix, patientNum, seq := m[1], m[2], m[3]

	if r.prefix != "" && wrongPrefix != r.prefix {
		candidate := r.prefix + "-" + patientNum + "-n-" + seq
		if _, ok := r.byID[candidate]; ok {
			slog.Debug("repaired note id", slog.String("from", id), slog.String("to", candidate))
			return candidate, true
		}
	}

	for _, n := range r.notes {
		nm := model.NoteIDPattern.FindStringSubmatch(n.NoteID)
		if nm != nil && nm[2] == patientNum && nm[3] == seq {
			slog.Debug("repaired note id", slog.String("from", id), slog.String("to", n.NoteID))
			return n.NoteID, true
		}
	}

	return "", false
}

// Reconcile returns the candidates with every note reference either
// corrected to a real note id or removed. Alerts left without any
// traceable source note are dropped, as are alerts whose surviving
// source_quote is not a verbatim substring of the referenced note's text.
func (r *Reconciler) Reconcile(candidates []model.Alert) []model.Alert {
	out := make([]model.Alert, 0, len(candidates))

	for _, alert := range candidates {
		sourceIDs := make([]string, 0, len(alert.SourceNoteIDs))
		seen := make(map[string]bool)
		for _, id := range alert.SourceNoteIDs {
			correct, ok := r.resolve(id)
			if !ok {
				slog.Warn("dropping unresolvable note reference",
					slog.String("alert_id", alert.AlertID), slog.String("note_id", id))
				continue
			}
			if !seen[correct] {
				seen[correct] = true
				sourceIDs = append(sourceIDs, correct)
			}
		}
		alert.SourceNoteIDs = sourceIDs

		if len(alert.SourceNoteIDs) == 0 {
			slog.Warn("dropping alert with no traceable evidence", slog.String("alert_id", alert.AlertID))
			continue
		}

		quotesOK := true
		for i := range alert.ConflictingFacts {
			cf := &alert.ConflictingFacts[i]
			if cf.NoteID == "" {
				continue
			}
			correct, ok := r.resolve(cf.NoteID)
			if !ok {
				// Keep the fact but flag it: the timestamp cannot be
				// populated and must never be invented.
				slog.Warn("conflicting fact references unknown note",
					slog.String("alert_id", alert.AlertID), slog.String("note_id", cf.NoteID))
				cf.NoteTimestamp = ""
				continue
			}
			cf.NoteID = correct
			note := r.byID[correct]
			// Never trust the oracle's timestamp.
			cf.NoteTimestamp = note.Timestamp

			if cf.Fact.SourceQuote != "" && !strings.Contains(note.NoteText, cf.Fact.SourceQuote) {
				slog.Warn("dropping alert with fabricated quote",
					slog.String("alert_id", alert.AlertID), slog.String("note_id", correct))
				quotesOK = false
				break
			}
		}
		if !quotesOK {
			continue
		}

		r.restoreTimestamps(&alert)
		out = append(out, alert)
	}

	return out
}

// restoreTimestamps derives the alert timestamp and time window from the
// repaired source notes instead of trusting the oracle's values.
func (r *Reconciler) restoreTimestamps(alert *model.Alert) {
	var earliest, latest model.Note
	var haveEarliest, haveLatest bool

	for _, id := range alert.SourceNoteIDs {
		note := r.byID[id]
		t, err := note.Time()
		if err != nil {
			continue
		}
		if !haveEarliest {
			earliest, latest = note, note
			haveEarliest, haveLatest = true, true
			continue
		}
		et, _ := earliest.Time()
		lt, _ := latest.Time()
		if t.Before(et) {
			earliest = note
		}
		if t.After(lt) {
			latest = note
		}
	}

	if haveLatest {
		alert.Timestamp = latest.Timestamp
	}
	if haveEarliest && haveLatest {
		et, _ := earliest.Time()
		lt, _ := latest.Time()
		alert.TimeWindow = formatWindow(lt.Sub(et))
	}
}
