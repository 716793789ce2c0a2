// Package detect orchestrates the clinical-note drift-detection pipeline:
// group notes by patient, obtain a structured judgment from the oracle,
// repair the note references it returns, and apply the deterministic
// clinical suppression rules.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/caresync/caresync/internal/metrics"
	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/oracle"
	"github.com/caresync/caresync/internal/worker"
)

// Detector runs the per-patient pipeline with bounded concurrency.
type Detector struct {
	client  oracle.Client
	pool    *worker.Pool
	limiter *worker.Limiter
	rules   []Rule
	logger  *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithConcurrency bounds the number of patients analyzed in parallel.
func WithConcurrency(n int) Option {
	return func(d *Detector) { d.pool = worker.NewPool(n) }
}

// WithLimiter throttles oracle calls.
func WithLimiter(l *worker.Limiter) Option {
	return func(d *Detector) { d.limiter = l }
}

// WithRules overrides the suppression rule table.
func WithRules(rules []Rule) Option {
	return func(d *Detector) { d.rules = rules }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// New creates a Detector using the given oracle client.
func New(client oracle.Client, opts ...Option) *Detector {
	d := &Detector{
		client:  client,
		pool:    worker.NewPool(4),
		limiter: worker.NewLimiter(0, 0),
		rules:   SuppressionRules(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// patientGroup is one patient's notes in ascending timestamp order.
type patientGroup struct {
	patientID string
	notes     []model.Note
}

// DetectDrift analyzes all notes and returns the union of per-patient
// alerts. Output ordering follows patient grouping order (first seen in
// the input) then oracle-returned order. A failure analyzing one patient
// contributes zero alerts and never aborts the batch; the only error ever
// returned is the oracle's configuration error, which is fatal to the
// whole call.
func (d *Detector) DetectDrift(ctx context.Context, notes []model.Note) ([]model.Alert, error) {
	start := time.Now()
	defer func() {
		metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	}()

	groups := groupByPatient(notes)
	if len(groups) == 0 {
		return []model.Alert{}, nil
	}

	results := make([][]model.Alert, len(groups))
	errs := make([]error, len(groups))

	tasks := make([]worker.Task, len(groups))
	for i, g := range groups {
		i, g := i, g
		tasks[i] = func(ctx context.Context) {
			results[i], errs[i] = d.analyzePatient(ctx, g)
		}
	}
	d.pool.Run(ctx, tasks)

	var all []model.Alert
	for i, g := range groups {
		if errs[i] != nil {
			if oracle.IsConfigError(errs[i]) {
				return nil, errs[i]
			}
			d.logger.Error("patient analysis failed",
				slog.String("patient_id", g.patientID), slog.String("error", errs[i].Error()))
			continue
		}
		all = append(all, results[i]...)
	}
	if all == nil {
		all = []model.Alert{}
	}

	metrics.AlertsEmitted.Add(float64(len(all)))
	return all, nil
}

// analyzePatient runs the per-patient pipeline: prompt -> oracle ->
// reconcile -> post-filter. Transport and parse failures are contained
// here and contribute zero alerts.
func (d *Detector) analyzePatient(ctx context.Context, g patientGroup) ([]model.Alert, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	candidates, err := d.client.Judge(ctx, g.patientID, g.notes)
	if err != nil {
		if oracle.IsConfigError(err) {
			metrics.OracleRequests.WithLabelValues("config_error").Inc()
			return nil, err
		}
		switch err.(type) {
		case *oracle.ParseError:
			metrics.OracleRequests.WithLabelValues("parse_error").Inc()
		default:
			metrics.OracleRequests.WithLabelValues("transport_error").Inc()
		}
		d.logger.Warn("oracle judgment unavailable",
			slog.String("patient_id", g.patientID), slog.String("error", err.Error()))
		return []model.Alert{}, nil
	}
	metrics.OracleRequests.WithLabelValues("ok").Inc()

	reconciler := NewReconciler(g.notes)
	alerts := reconciler.Reconcile(candidates)
	alerts = Filter(alerts, d.rules)

	for i := range alerts {
		if alerts[i].AlertID == "" {
			alerts[i].AlertID = fmt.Sprintf("alert_%s_%s", g.patientID, uuid.NewString())
		}
		if alerts[i].PatientID == "" {
			alerts[i].PatientID = g.patientID
		}
	}
	return alerts, nil
}

// groupByPatient groups notes by patient in first-seen order and sorts
// each group ascending by timestamp. Notes with unparseable timestamps
// sort by their raw timestamp string.
func groupByPatient(notes []model.Note) []patientGroup {
	byPatient := make(map[string][]model.Note)
	var order []string
	for _, n := range notes {
		if n.PatientID == "" {
			continue
		}
		if _, ok := byPatient[n.PatientID]; !ok {
			order = append(order, n.PatientID)
		}
		byPatient[n.PatientID] = append(byPatient[n.PatientID], n)
	}

	groups := make([]patientGroup, 0, len(order))
	for _, id := range order {
		group := byPatient[id]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			ti, erri := group[i].Time()
			tj, errj := group[j].Time()
			if erri != nil || errj != nil {
				return group[i].Timestamp < group[j].Timestamp
			}
			return ti.Before(tj)
		})
		groups = append(groups, patientGroup{patientID: id, notes: group})
	}
	return groups
}

// formatWindow renders a human-readable span between the earliest and
// latest involved notes.
func formatWindow(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
