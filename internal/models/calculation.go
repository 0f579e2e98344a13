package models

import "strings"

// PathSeparator joins the entity names of a path-qualified row
const PathSeparator = " > "

// CalculationRow is one (period, owner, investment) result.
// StartNAV is implied from the other figures so that
// NAV = StartNAV + CashFlow + Gain holds for every row.
type CalculationRow struct {
	Period            string   `json:"period"`
	Source            string   `json:"source"`
	Vehicle           string   `json:"vehicle,omitempty"`
	Target            string   `json:"target"`
	Path              string   `json:"path,omitempty"`
	StartNAV          float64  `json:"start_nav"`
	CashFlow          float64  `json:"cash_flow"`
	NAV               float64  `json:"nav"`
	Gain              float64  `json:"gain"`
	ReturnPct         float64  `json:"return_pct"`
	MDDenominator     float64  `json:"md_denominator"`
	OwnershipPct      float64  `json:"ownership_pct"`
	Commitment        float64  `json:"commitment"`
	Unfunded          float64  `json:"unfunded"`
	IRR               *float64 `json:"irr_itd,omitempty"`
	OwnershipAdjusted bool     `json:"ownership_adjusted"`
	Tags              []string `json:"tags,omitempty"`
}

// ImplyStart sets StartNAV from NAV, CashFlow and Gain, so that
// StartNAV + CashFlow + Gain == NAV holds within every row.
//
// StartNAV is not carried over from the previous period. When an owner's
// reported balance is reconciled against its allocated share, the reconciled
// amount lands in NAV and not in Gain, so StartNAV for period N can differ
// from NAV for period N-1 on the same path. Chain periods through NAV, never
// through StartNAV.
func (r *CalculationRow) ImplyStart() {
	r.StartNAV = r.NAV - r.CashFlow - r.Gain
}

// JoinPath builds a path string from entity names
func JoinPath(names ...string) string {
	return strings.Join(names, PathSeparator)
}
