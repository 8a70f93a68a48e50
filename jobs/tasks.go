package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan recomputes integrity hashes for recent periods.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
)

// IntegrityScanPayload bounds how many recent periods one scan run covers.
type IntegrityScanPayload struct {
	Periods int `json:"periods"`
}

// NewIntegrityScanTask constructs an Asynq task for the ledger integrity scan.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}
