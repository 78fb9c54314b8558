package escalation

import "time"

// FireResult is one escalation firing during a scan. Saturated marks a chain
// that exceeded again at max level under the stop behavior: nothing fired,
// but the no-op is reported so a saturated rule stays visible.
type FireResult struct {
	RuleID         string `json:"rule_id"`
	StepInstanceID string `json:"step_instance_id"`
	InstanceID     string `json:"instance_id"`
	Level          int    `json:"level"`
	Terminal       bool   `json:"terminal"`
	Saturated      bool   `json:"saturated,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ScanReport summarizes one escalation scan pass. RuleErrors keeps per-rule
// failures isolated: one broken rule never aborts the rest of the scan.
type ScanReport struct {
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	RulesScanned  int          `json:"rules_scanned"`
	StepsExamined int          `json:"steps_examined"`
	Fired         []FireResult `json:"fired,omitempty"`
	Saturated     []FireResult `json:"saturated,omitempty"`
	RuleErrors    []RuleError  `json:"rule_errors,omitempty"`
	Skipped       bool         `json:"skipped"`
}

// RuleError records a rule whose scan pass failed.
type RuleError struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}
