package models

import (
	"time"
)

// StartRunRequest represents the request body for starting a calculation run.
// Balances and transactions are optional; when omitted they are loaded from the store.
type StartRunRequest struct {
	From         FlexibleDate     `json:"from" binding:"required"`
	To           FlexibleDate     `json:"to" binding:"required"`
	Balances     []RawBalance     `json:"balances"`
	Transactions []RawTransaction `json:"transactions"`
	Reference    ReferenceData    `json:"reference"`
}

// StartRunResponse is returned once a run has been accepted
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

// VehicleProgress is the per-vehicle entry of a progress snapshot
type VehicleProgress struct {
	VehicleID string    `json:"vehicle_id"`
	Periods   int       `json:"periods"`
	Total     int       `json:"total"`
	Status    JobStatus `json:"status"`
}

// ProgressResponse is a point-in-time view of a run
type ProgressResponse struct {
	RunID         string            `json:"run_id"`
	Status        RunStatus         `json:"status"`
	PercentDone   float64           `json:"percent_done"`
	TimeRemaining time.Duration     `json:"time_remaining_ns"`
	Vehicles      []VehicleProgress `json:"vehicles"`
	Warnings      []Warning         `json:"warnings,omitempty"`
}

// RowsResponse wraps the persisted rows of a run
type RowsResponse struct {
	RunID string           `json:"run_id"`
	Rows  []CalculationRow `json:"rows"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
