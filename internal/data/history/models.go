package history

import "time"

const SchemaVersion = 2

// Run is one recorded fusion of a group.
type Run struct {
	RunID          string    `json:"run_id"`
	Group          string    `json:"group"`
	Timestamp      time.Time `json:"timestamp"`
	Strategy       string    `json:"strategy"`
	BaseUnit       string    `json:"base_unit"`
	UnitCount      int       `json:"unit_count"`
	FunctionsAdded int       `json:"functions_added"`
	ClassesAdded   int       `json:"classes_added"`
	Conflicts      int       `json:"conflicts"`
	Pending        int       `json:"pending"`
	Validated      bool      `json:"validated"`
	Success        bool      `json:"success"`
	MergedHash     string    `json:"merged_hash"`
}
