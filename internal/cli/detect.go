package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caresync/caresync/internal/detect"
	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/notestore"
	"github.com/caresync/caresync/internal/oracle"
	"github.com/caresync/caresync/internal/worker"
)

var (
	detectNotesPath string
	detectPatient   string
	detectOutJSON   string
	detectTimeout   time.Duration
	detectModel     string
)

// detectCmd runs a one-shot drift detection over a notes file.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run drift detection over a notes file and print the alerts",
	Long: `Detect groups the notes by patient, obtains a structured judgment from
the reasoning service for each patient, repairs the note references it
returns, applies the clinical suppression rules, and prints the
surviving alerts.

Example:
  caresync detect --notes data/synthetic_notes.json
  caresync detect --notes data/synthetic_notes.json --patient PT-301 --json alerts.json`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectNotesPath, "notes", "data/synthetic_notes.json", "path to the notes JSON file")
	detectCmd.Flags().StringVar(&detectPatient, "patient", "", "restrict analysis to one patient id")
	detectCmd.Flags().StringVar(&detectOutJSON, "json", "", "write alerts JSON to this path (default: stdout)")
	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", 5*time.Minute, "overall detection timeout")
	detectCmd.Flags().StringVar(&detectModel, "model", "", "override the oracle model")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
	defer cancel()

	cfg := loadConfig()
	cfg.Notes.Path = detectNotesPath
	if detectModel != "" {
		cfg.Oracle.Model = detectModel
	}

	store := notestore.New(cfg.Notes.Path)
	notes, err := store.Load()
	if err != nil {
		return err
	}
	if detectPatient != "" {
		filtered := notes[:0]
		for _, n := range notes {
			if n.PatientID == detectPatient {
				filtered = append(filtered, n)
			}
		}
		notes = filtered
	}
	if len(notes) == 0 {
		fmt.Fprintln(os.Stderr, "No notes to analyze")
		return writeAlerts([]model.Alert{})
	}

	client, err := oracle.NewOpenAIClient(cfg.Oracle)
	if err != nil {
		var ce *oracle.ConfigError
		if errors.As(err, &ce) {
			return fmt.Errorf("%s (set OPENAI_API_KEY or add it to .env.local)", ce.Error())
		}
		return err
	}

	detector := detect.New(client,
		detect.WithConcurrency(cfg.Detection.Concurrency),
		detect.WithLimiter(worker.NewLimiter(cfg.Detection.RequestsPerSecond, cfg.Detection.Burst)),
	)

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing %d notes...\n", len(notes))
	}

	alerts, err := detector.DetectDrift(ctx, notes)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Detection complete: %d alerts\n", len(alerts))
	}
	return writeAlerts(alerts)
}

func writeAlerts(alerts []model.Alert) error {
	payload := map[string]interface{}{"alerts": alerts, "count": len(alerts)}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if detectOutJSON == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(detectOutJSON, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write alerts: %w", err)
	}
	fmt.Printf("Wrote %d alerts to %s\n", len(alerts), detectOutJSON)
	return nil
}
