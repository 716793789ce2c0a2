// Package oracle talks to the external structured-reasoning service that
// proposes candidate documentation contradictions. Its output is untrusted:
// every identifier and quote it returns is verified downstream.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/caresync/caresync/internal/model"
)

// Client obtains a raw alert-candidate list for one patient's notes.
// Implementations isolate all fallibility of the external service:
// a ConfigError is fatal to the whole run, TransportError and ParseError
// are contained per patient by the caller.
type Client interface {
	Judge(ctx context.Context, patientID string, notes []model.Note) ([]model.Alert, error)
}

// envelope is the schema-constrained shape requested from the service.
type envelope struct {
	Alerts json.RawMessage `json:"alerts"`
}

// parseCandidates decodes the oracle's {"alerts": [...]}
// payload. A payload that is not JSON, or whose alerts field is not an
// array, is a ParseError. Individual candidates that fail to decode are
// skipped with a diagnostic log rather than poisoning the batch.
func parseCandidates(content string) ([]model.Alert, error) {
	var env envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, &ParseError{Raw: content, Err: err}
	}
	if len(env.Alerts) == 0 {
		return nil, &ParseError{Raw: content, Err: fmt.Errorf("missing alerts field")}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(env.Alerts, &raw); err != nil {
		return nil, &ParseError{Raw: content, Err: fmt.Errorf("alerts is not a list: %w", err)}
	}

	candidates := make([]model.Alert, 0, len(raw))
	for i, item := range raw {
		var alert model.Alert
		if err := json.Unmarshal(item, &alert); err != nil {
			slog.Warn("skipping malformed alert candidate",
				slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, alert)
	}
	return candidates, nil
}
