package models

import (
	"encoding/json"
	"time"
)

// BatchStatus is the lifecycle state of a bulk evaluation job.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusExpired    BatchStatus = "expired"
)

// Terminal reports whether no further polling can change the status.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusExpired:
		return true
	}
	return false
}

// NormalizeBatchStatus maps provider status strings onto the closed
// BatchStatus set. Provider-side intermediate states (validating,
// finalizing, cancelling) count as in_progress.
func NormalizeBatchStatus(provider string) BatchStatus {
	switch provider {
	case "queued", "validating":
		return BatchStatusQueued
	case "in_progress", "finalizing", "cancelling":
		return BatchStatusInProgress
	case "completed":
		return BatchStatusCompleted
	case "expired":
		return BatchStatusExpired
	default:
		return BatchStatusFailed
	}
}

// BatchJob is the durable handle of one submitted bulk job. Only the ID
// survives a process restart; everything else is re-derived by polling.
type BatchJob struct {
	ID          string      `json:"id"`
	Status      BatchStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	ItemCount   int         `json:"item_count"`
}

// RequestBody is the per-item payload submitted to the batch endpoint
// (OpenAI Responses API shape).
type RequestBody struct {
	Model        string  `json:"model"`
	Instructions string  `json:"instructions"`
	Input        string  `json:"input"`
	Temperature  float64 `json:"temperature"`
}

// InputRecord is one line of the input manifest.
type InputRecord struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
	// Rejected marks items that never reached the reasoning loop; they are
	// scored failed regardless of the batch output.
	Rejected     bool   `json:"rejected,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
}

// OutputRecord is one line of the output manifest downloaded from the
// batch endpoint.
type OutputRecord struct {
	CustomID string          `json:"custom_id"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}
