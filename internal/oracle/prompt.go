package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/caresync/caresync/internal/model"
)

// systemPrompt biases the oracle toward returning only the schema we can
// verify downstream.
const systemPrompt = `You are a clinical decision support system. Analyze patient notes and return only valid JSON. Return a JSON object with an "alerts" array. Be precise and only flag real contradictions.`

// BuildPrompt renders one patient's time-sorted notes into the bounded
// judgment request. Each note block exposes the exact note_id in brackets
// and an ISO-8601 timestamp, followed by the untruncated note text. The
// guardrails and alert taxonomy are fixed instructions, not data: the
// deterministic post-filter enforces the same suppression rules again
// regardless of what the oracle returns.
func BuildPrompt(patientID string, notes []model.Note) string {
	blocks := make([]string, 0, len(notes))
	for i, note := range notes {
		ts := note.Timestamp
		if t, err := note.Time(); err == nil {
			ts = t.UTC().Format(time.RFC3339)
		}
		blocks = append(blocks, fmt.Sprintf("Note %d [%s] (%s, %s):\n%s",
			i+1, note.NoteID, note.AuthorRole, ts, note.NoteText))
	}
	notesText := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`You are a hospital clinical documentation drift detector.
Your job is to detect TRUE communication drift or safety-relevant contradictions across notes.

IMPORTANT CLINICAL GUARDRAILS:
- Do NOT flag normal progression over time (e.g., RA in ED -> oxygen later).
- Do NOT flag non-exclusive routine plans as contradictions (NPO, IVF, antibiotics, monitoring, PRN meds).
- A "contradiction" requires mutually incompatible claims about CURRENT state/plan.
- "Worsening symptoms" alone is NOT a contradiction with NPO. It may indicate deterioration ONLY if an earlier clinician claimed improvement/stability/discharge readiness without acknowledging the later worsening.
- Prefer the smallest number of high-quality alerts. If uncertain, output fewer alerts.

ALERT TYPES (use only these unless absolutely necessary):
- plan_communication_drift: patient/team mismatch about plan (e.g., patient believes surgery this morning vs surgery consult says no OR today). HIGH severity when patient expectation conflicts with documented plan.
- discharge_safety_conflict: discharge/readiness stated while instability exists (O2 >= 4L, SpO2 < 88, hypotension, severe symptoms, etc).
- unacknowledged_deterioration: later note shows objective worsening (vitals/O2/severe symptoms) that is not reconciled by later provider notes that still describe stable/improving/discharge-ready. HIGH severity when MD frames "improving, discharge tomorrow" while RT/RN document exertional desaturation to 86-87%% and inability to wean.
- oxygen_support_drift: conflicting oxygen support levels (e.g., MD documents "on 2L NC, SpO2 95%%" while RN/RT document 4L NC and exertional desats). MEDIUM or HIGH severity depending on clinical impact.
- symptom_progression_conflict: symptom worsening (pain, nausea, distention) with objective signs (HR >= 110, distention) that contradicts earlier stable/improving narrative. MEDIUM severity when RN documents worsening pain 8/10 + HR 116 + increasing distention while MD shortly after says "pain improved" without acknowledging trajectory change.
- medication_plan_conflict: incompatible med orders/administration vs documented plan (e.g., "hold anticoag" vs "given dose").
- workup_plan_conflict: conflicting statements about whether key workup is needed/done (e.g., "CTA negative" vs "CTA pending").
- documentation_source_conflict: "per chart" vs bedside measurement causing state mismatch.

KEY DETECTION RULES:
1. OXYGEN SUPPORT DRIFT: Flag when different roles document different oxygen support levels (e.g., MD: 2L NC vs RN/RT: 4L NC) especially if exertional desaturations are documented. This is NOT normal progression if both claims are about CURRENT state.
2. UNACKNOWLEDGED DETERIORATION: Flag when RT/RN document exertional desaturation to 86-87%% and inability to wean, while MD note frames "improving, discharge tomorrow" - this is HIGH severity unacknowledged deterioration.
3. PLAN COMMUNICATION DRIFT: Flag when RN documents patient believes surgery this morning while surgery consult says no OR today - this is HIGH severity plan communication drift.
4. SYMPTOM PROGRESSION CONFLICT: Flag when RN documents worsening pain 8/10 + HR 116 + increasing distention, while MD shortly after says "pain improved" and continues plan without acknowledging trajectory change - this is MEDIUM severity symptom progression conflict.

PATIENT NOTES:
%s

OUTPUT REQUIREMENTS:
Return ONLY a valid JSON object: { "alerts": [...] }.
Each alert must include:
- alert_id (unique)
- alert_type (one of the allowed types)
- severity: critical|high|medium|low
- patient_id: %q
- roles_involved: string[]
- conflicting_facts: [{ role, fact: { type, value, details, source_quote }, note_id, note_timestamp }]
- conflicting_fact_types: string[]
- time_window: string
- source_note_ids: string[]
- description: string
- timestamp: ISO timestamp of most recent involved note
- clinical_score: 1-10

CITATION RULE (CRITICAL):
You MUST use the EXACT note_id shown in the note header. For example, if the note header says [DX-401-n-001], you MUST use "DX-401-n-001" exactly. Do NOT change the prefix (DX, CX, etc.) or invent note IDs. Copy the note_id EXACTLY as it appears in brackets [ ] in the note header.

QUALITY RULE:
If you cannot quote exact text for each side of a conflict, do not create the alert. Every source_quote must be copied verbatim from the note text above.

IMPORTANT: Do NOT create alerts when:
- All notes are consistent and show improvement (e.g., improvement, vitals normalize, nursing aligns with plan) -> 0 alerts
- Later notes provide quantitative confirmation of earlier qualitative improvement
- Normal progression over time (earlier lower support -> later higher support is progression, not drift, unless both claim CURRENT state)`,
		notesText, patientID)
}
