package model

import (
	"time"
)

// IngestStatus is the lifecycle state of an ingestion run.
type IngestStatus string

const (
	IngestQueued    IngestStatus = "queued"
	IngestRunning   IngestStatus = "running"
	IngestSucceeded IngestStatus = "succeeded"
	IngestFailed    IngestStatus = "failed"
	IngestCancelled IngestStatus = "cancelled"
)

// Terminal reports whether s is a final state.
func (s IngestStatus) Terminal() bool {
	return s == IngestSucceeded || s == IngestFailed || s == IngestCancelled
}

// ReasonCode is a machine-readable cause for a per-record rejection.
type ReasonCode string

const (
	ReasonFetchFailed          ReasonCode = "fetch_failed"
	ReasonNoTransactions       ReasonCode = "no_transactions"
	ReasonMissingField         ReasonCode = "missing_field"
	ReasonInvalidChamber       ReasonCode = "invalid_chamber"
	ReasonBadTransactionDate   ReasonCode = "bad_transaction_date"
	ReasonBadDisclosureDate    ReasonCode = "bad_disclosure_date"
	ReasonBadTicker            ReasonCode = "bad_ticker"
	ReasonBadAmount            ReasonCode = "bad_amount"
	ReasonBadTransactionType   ReasonCode = "bad_transaction_type"
	ReasonDisclosureBeforeTxn  ReasonCode = "disclosure_before_transaction"
	ReasonAmountOrder          ReasonCode = "amount_min_gt_max"
	ReasonNegativeAmount       ReasonCode = "negative_amount"
	ReasonPoliticianUnresolved ReasonCode = "politician_unresolved"
	ReasonPersistFailed        ReasonCode = "persist_failed"
)

// RecordError is one entry in a run's bounded error list.
type RecordError struct {
	Reason   ReasonCode `json:"reason"`
	FilingID string     `json:"filing_id,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

// RunStats holds the counters accumulated by a run.
type RunStats struct {
	TotalSeen        int           `json:"total_seen"`
	Saved            int           `json:"saved"`
	SkippedDuplicate int           `json:"skipped_duplicate"`
	Errors           int           `json:"errors"`
	ErrorReasons     []RecordError `json:"error_reasons,omitempty"`
	// ErrorsDropped counts reasons not retained because the list was full.
	ErrorsDropped int `json:"errors_dropped,omitempty"`
}

// IngestionRun is one execution record of the pipeline.
type IngestionRun struct {
	ID              string       `json:"id"`
	Chambers        []Chamber    `json:"chambers"`
	StartDate       time.Time    `json:"start_date"`
	EndDate         time.Time    `json:"end_date"`
	Status          IngestStatus `json:"status"`
	Trigger         string       `json:"trigger"`
	Stats           RunStats     `json:"stats"`
	Attempts        int          `json:"attempts"`
	Error           string       `json:"error,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

// Trigger sources recorded on IngestionRun.Trigger.
const (
	TriggerManual = "manual"
	TriggerDaily  = "daily"
	TriggerWeekly = "weekly"
	TriggerCLI    = "cli"
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
