package models

// RawBalance is a balance row as it arrives from a file or request body.
// Optional numeric fields are pointers so that absence can be told apart from zero.
type RawBalance struct {
	Source      string       `json:"source" yaml:"source"`
	Target      string       `json:"target" yaml:"target"`
	Date        FlexibleDate `json:"date" yaml:"date"`
	Value       *float64     `json:"value" yaml:"value"`
	BalanceType string       `json:"balance_type" yaml:"balance_type"`
	SubAccount  string       `json:"sub_account" yaml:"sub_account"`
	Commitment  *float64     `json:"commitment" yaml:"commitment"`
	Unfunded    *float64     `json:"unfunded" yaml:"unfunded"`
	Tags        []string     `json:"tags" yaml:"tags"`
}

// RawTransaction is a transaction row as it arrives from a file or request body
type RawTransaction struct {
	Source          string       `json:"source" yaml:"source"`
	Target          string       `json:"target" yaml:"target"`
	Date            FlexibleDate `json:"date" yaml:"date"`
	Type            string       `json:"type" yaml:"type"`
	CashFlow        *float64     `json:"cash_flow" yaml:"cash_flow"`
	CommitmentDelta *float64     `json:"commitment_delta" yaml:"commitment_delta"`
	Timing          string       `json:"timing" yaml:"timing"`
}

// RawLedger is the document shape accepted by the ingestion layer
type RawLedger struct {
	Balances     []RawBalance     `json:"balances" yaml:"balances"`
	Transactions []RawTransaction `json:"transactions" yaml:"transactions"`
	Reference    ReferenceData    `json:"reference" yaml:"reference"`
}
