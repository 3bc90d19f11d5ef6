package model

import "time"

// ScanOutcome classifies one asset evaluation inside a scan cycle.
type ScanOutcome string

const (
	OutcomeSuccess  ScanOutcome = "SUCCESS"
	OutcomeRejected ScanOutcome = "REJECTED"
	OutcomeError    ScanOutcome = "ERROR"
)

// ScanLogEntry is an operator-facing record of one evaluation. Not authoritative state.
type ScanLogEntry struct {
	ID      string      `json:"id"`
	TS      time.Time   `json:"ts"`
	Asset   string      `json:"asset"`
	Outcome ScanOutcome `json:"outcome"`
	Message string      `json:"message"`
}
