package model

// Severity is the oracle-assigned alert severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Alert types form a fixed taxonomy. The oracle is instructed to use
// only these unless absolutely necessary.
const (
	AlertPlanCommunicationDrift      = "plan_communication_drift"
	AlertDischargeSafetyConflict     = "discharge_safety_conflict"
	AlertUnacknowledgedDeterioration = "unacknowledged_deterioration"
	AlertOxygenSupportDrift          = "oxygen_support_drift"
	AlertSymptomProgressionConflict  = "symptom_progression_conflict"
	AlertMedicationPlanConflict      = "medication_plan_conflict"
	AlertWorkupPlanConflict          = "workup_plan_conflict"
	AlertDocumentationSourceConflict = "documentation_source_conflict"
)

// Fact is one structured claim extracted from a note. SourceQuote must be
// a verbatim substring of the referenced note's text.
type Fact struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Details     string `json:"details,omitempty"`
	SourceQuote string `json:"source_quote"`
}

// ConflictingFact is one role's claim implicated in an alert. NoteTimestamp
// is always taken from the real note after reconciliation; an empty value
// marks a fact whose note reference could not be repaired.
type ConflictingFact struct {
	Role          string `json:"role"`
	Fact          Fact   `json:"fact"`
	NoteID        string `json:"note_id"`
	NoteTimestamp string `json:"note_timestamp"`
}

// Alert is the unit of output of the drift-detection pipeline. Every note
// identifier appearing anywhere in an Alert must exist in the input note
// set for its patient; alerts violating this after reconciliation are
// dropped, not repaired further.
type Alert struct {
	AlertID              string            `json:"alert_id"`
	AlertType            string            `json:"alert_type"`
	Severity             Severity          `json:"severity"`
	PatientID            string            `json:"patient_id"`
	PatientName          string            `json:"patient_name,omitempty"`
	RolesInvolved        []string          `json:"roles_involved"`
	ConflictingFacts     []ConflictingFact `json:"conflicting_facts"`
	ConflictingFactTypes []string          `json:"conflicting_fact_types"`
	TimeWindow           string            `json:"time_window"`
	SourceNoteIDs        []string          `json:"source_note_ids"`
	Description          string            `json:"description"`
	Timestamp            string            `json:"timestamp"`                // latest involved note's timestamp
	ClinicalScore        int               `json:"clinical_score,omitempty"` // 1-10
}
