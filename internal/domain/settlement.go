package domain

import "time"

// SettlementStatusNotEligible is reported when no settlement row exists yet.
const SettlementStatusNotEligible = "not_eligible"

// Settlement is a per-(season, agent) payout record. Read-only: payouts are
// written by an external settlement process.
type Settlement struct {
	SeasonID     string     `json:"season_id"`
	AgentName    string     `json:"agent_name"`
	AmountFxUSD  float64    `json:"amount_fxusd"`
	Status       string     `json:"status"`
	PayoutTxHash string     `json:"payout_tx_hash,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// SettlementStatus is the API view of an agent's settlement: either the
// stored record, or a not_eligible placeholder when none exists.
type SettlementStatus struct {
	SeasonID     string     `json:"season_id"`
	AgentName    string     `json:"agent_name"`
	Status       string     `json:"status"`
	Message      string     `json:"message,omitempty"`
	AmountFxUSD  *float64   `json:"amount_fxusd,omitempty"`
	PayoutTxHash string     `json:"payout_tx_hash,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}
