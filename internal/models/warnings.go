package models

// WarningCode categorizes warnings by subsystem.
// W1xxx = graph/reference, W2xxx = investment math, W3xxx = ownership, W4xxx = orchestration.
type WarningCode string

const (
	WarnCycleDropped        WarningCode = "W1001" // vehicles removed because they sit on an ownership cycle
	WarnUnknownReference    WarningCode = "W1002" // investment has no classification metadata
	WarnSynthesizedBalance  WarningCode = "W2001" // end balance missing, start + cash flow assumed
	WarnIRRUnavailable      WarningCode = "W2002" // cash-flow series has no IRR
	WarnInvestmentSkipped   WarningCode = "W2003" // one investment failed and was left out of the period
	WarnOwnershipReconciled WarningCode = "W3001" // owner percentages rescaled to sum to 100
	WarnOwnerExited         WarningCode = "W3002" // owner fully exited the vehicle in the period
	WarnVehicleTimeout      WarningCode = "W4001" // vehicle exceeded its watchdog timeout
)

// Warning represents a non-fatal issue encountered during processing.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
