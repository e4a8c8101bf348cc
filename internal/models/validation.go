package models

import "time"

// CheckStatus is the outcome of a single quality check
type CheckStatus string

// Check statuses
const (
	StatusPass CheckStatus = "PASS"
	StatusFail CheckStatus = "FAIL"
	StatusWarn CheckStatus = "WARN"
)

// Check is one named data quality check
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Count  int         `json:"count"`
	Detail string      `json:"detail,omitempty"`
}

// ValidationReport is the advisory result of validating one dataset
type ValidationReport struct {
	Dataset       string      `json:"dataset"`
	TotalRecords  int         `json:"total_records"`
	Checks        []Check     `json:"checks"`
	Issues        []string    `json:"issues"`
	OverallStatus CheckStatus `json:"overall_status"`
	CheckedAt     time.Time   `json:"checked_at"`
}

// Failed reports whether any check failed
func (r ValidationReport) Failed() bool {
	return r.OverallStatus == StatusFail
}

// Passed returns the number of checks with PASS status
func (r ValidationReport) Passed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == StatusPass {
			n++
		}
	}
	return n
}

// Check returns the named check
func (r ValidationReport) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}
