package oracle

import (
	"strings"
	"testing"

	"github.com/caresync/caresync/internal/model"
)

func TestBuildPrompt_NoteBlocks(t *testing.T) {
	notes := []model.Note{
		{NoteID: "DX-401-n-001", PatientID: "PT-401", AuthorRole: "MD", Timestamp: "2026-02-21T06:42:00Z", NoteText: "on 2L NC, SpO2 95%"},
		{NoteID: "DX-401-n-002", PatientID: "PT-401", AuthorRole: "RT", Timestamp: "2026-02-21 09:10:00", NoteText: "4L NC, desat to 87% with ambulation"},
	}

	prompt := BuildPrompt("PT-401", notes)

	// Exact ids in brackets so the citation rule has something to cite.
	for _, want := range []string{"[DX-401-n-001]", "[DX-401-n-002]"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing note header %s", want)
		}
	}
	// Note text is passed through verbatim, no truncation or escaping.
	for _, want := range []string{"on 2L NC, SpO2 95%", "desat to 87% with ambulation"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing note text %q", want)
		}
	}
	// Space-separated timestamps are normalized to ISO-8601.
	if !strings.Contains(prompt, "2026-02-21T09:10:00Z") {
		t.Error("prompt should carry normalized RFC3339 timestamps")
	}
	if !strings.Contains(prompt, `"PT-401"`) {
		t.Error("prompt should pin the patient id in the output requirements")
	}
}

func TestBuildPrompt_Ordering(t *testing.T) {
	notes := []model.Note{
		{NoteID: "DX-401-n-001", AuthorRole: "MD", Timestamp: "2026-02-21T06:42:00Z", NoteText: "first"},
		{NoteID: "DX-401-n-002", AuthorRole: "RN", Timestamp: "2026-02-21T09:10:00Z", NoteText: "second"},
	}

	prompt := BuildPrompt("PT-401", notes)

	first := strings.Index(prompt, "Note 1 [DX-401-n-001]")
	second := strings.Index(prompt, "Note 2 [DX-401-n-002]")
	if first < 0 || second < 0 || first > second {
		t.Errorf("note blocks out of order: first=%d second=%d", first, second)
	}
}

func TestBuildPrompt_GuardrailsPresent(t *testing.T) {
	prompt := BuildPrompt("PT-401", nil)

	for _, want := range []string{
		"CITATION RULE",
		"QUALITY RULE",
		"non-exclusive routine plans",
		"plan_communication_drift",
		"unacknowledged_deterioration",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing instruction %q", want)
		}
	}
}
