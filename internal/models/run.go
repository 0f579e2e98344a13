package models

import "time"

// JobStatus is the lifecycle state a worker reports for its vehicle
type JobStatus string

const (
	StatusInitialization JobStatus = "Initialization"
	StatusWorking        JobStatus = "Working"
	StatusCompleted      JobStatus = "Completed"
	StatusFailed         JobStatus = "Failed"
)

// Progress is a status update sent from a worker to the aggregator.
// Periods counts the periods finished so far.
type Progress struct {
	VehicleID string    `json:"vehicle_id"`
	Periods   int       `json:"periods"`
	Total     int       `json:"total"`
	Status    JobStatus `json:"status"`
}

// MutationKind says how a batch should be applied to the store
type MutationKind string

const (
	MutationInsert MutationKind = "insert"
	MutationUpdate MutationKind = "update"
)

// Mutation describes a persistence change produced by a worker.
// Workers never write to the store; the writer applies these.
type Mutation struct {
	Kind      MutationKind     `json:"kind"`
	VehicleID string           `json:"vehicle_id"`
	Rows      []CalculationRow `json:"rows,omitempty"`
	Balances  []BalanceRecord  `json:"balances,omitempty"`
}

// RunStatus is the terminal or in-flight status of a whole run
type RunStatus string

const (
	RunPending   RunStatus = "Pending"
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// RunSummary is the persisted header of a calculation run
type RunSummary struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Periods    int       `json:"periods"`
	Vehicles   int       `json:"vehicles"`
	Rows       int       `json:"rows"`
	Warnings   []Warning `json:"warnings,omitempty"`
}
