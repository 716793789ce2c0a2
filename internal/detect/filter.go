package detect

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/caresync/caresync/internal/metrics"
	"github.com/caresync/caresync/internal/model"
)

// The suppression rules are an explicit predicate table so clinical
// reviewers can audit and extend the policy without touching control
// flow. Keyword lists are a placeholder policy pending real clinical
// review; they deliberately err toward suppressing known false
// positives rather than catching every true contradiction.
var (
	nonExclusivePlanPattern = regexp.MustCompile(`npo|ivf|monitor|prn|antibiotic|pain\s+control`)
	improvementPattern      = regexp.MustCompile(`improving|stable|better|resolved`)
	instabilityPattern      = regexp.MustCompile(`spo2\s*<|hr\s*>\s*110|hypotension|desat`)
)

// Rule is one deterministic suppression predicate: Drop returns true for
// alerts the rule identifies as a known false-positive class.
type Rule struct {
	Name string
	Drop func(model.Alert) bool
}

// SuppressionRules returns the post-filter rule table.
func SuppressionRules() []Rule {
	return []Rule{
		{Name: "non_exclusive_plan", Drop: isNonExclusivePlanFalsePositive},
	}
}

// Filter applies the suppression table to one patient's candidates and
// returns the survivors. It runs after reconciliation so pattern matching
// sees corrected data.
func Filter(alerts []model.Alert, rules []Rule) []model.Alert {
	out := make([]model.Alert, 0, len(alerts))
candidates:
	for _, alert := range alerts {
		for _, rule := range rules {
			if rule.Drop(alert) {
				slog.Info("suppressing alert",
					slog.String("rule", rule.Name), slog.String("alert_id", alert.AlertID))
				metrics.AlertsSuppressed.WithLabelValues(rule.Name).Inc()
				continue candidates
			}
		}
		out = append(out, alert)
	}
	return out
}

// isNonExclusivePlanFalsePositive identifies "plan vs status" candidates
// whose plan side is routine, non-exclusive care (fasting status, IV
// fluids, monitoring, PRN meds, antibiotics, pain control). Such orders
// coexist with many patient states and do not alone constitute a
// contradiction. The candidate is kept anyway when an escalating
// condition is present: a discharge mention, an improvement or
// stability claim, or objective vital-sign instability.
func isNonExclusivePlanFalsePositive(alert model.Alert) bool {
	hasPlanType := false
	hasStatusType := false
	for _, t := range alert.ConflictingFactTypes {
		lt := strings.ToLower(t)
		if lt == "treatment_plan" || strings.Contains(lt, "plan") {
			hasPlanType = true
		}
		if lt == "patient_status" || strings.Contains(lt, "status") || strings.Contains(lt, "symptom") {
			hasStatusType = true
		}
	}
	if !hasPlanType || !hasStatusType {
		return false
	}

	var planValues []string
	for _, cf := range alert.ConflictingFacts {
		factType := strings.ToLower(cf.Fact.Type)
		value := strings.ToLower(cf.Fact.Value)
		if strings.Contains(factType, "plan") ||
			strings.Contains(value, "npo") ||
			strings.Contains(value, "ivf") ||
			strings.Contains(value, "monitor") {
			planValues = append(planValues, value)
		}
	}
	if !nonExclusivePlanPattern.MatchString(strings.Join(planValues, " ")) {
		return false
	}

	if mentionsDischarge(alert) || mentionsImprovement(alert) || mentionsInstability(alert) {
		return false
	}
	return true
}

func mentionsDischarge(alert model.Alert) bool {
	if strings.Contains(strings.ToLower(alert.Description), "discharge") {
		return true
	}
	for _, cf := range alert.ConflictingFacts {
		if strings.Contains(strings.ToLower(cf.Fact.Value), "discharge") {
			return true
		}
	}
	return false
}

func mentionsImprovement(alert model.Alert) bool {
	for _, cf := range alert.ConflictingFacts {
		if improvementPattern.MatchString(strings.ToLower(cf.Fact.Value)) {
			return true
		}
	}
	return false
}

func mentionsInstability(alert model.Alert) bool {
	for _, cf := range alert.ConflictingFacts {
		if instabilityPattern.MatchString(strings.ToLower(cf.Fact.Value)) {
			return true
		}
	}
	return false
}
