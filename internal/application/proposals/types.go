package proposals

import "github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"

// Message kinds flowing through the evaluation workflow.
const (
	KindProposal   domain.Kind = "proposal"
	KindFinding    domain.Kind = "finding"
	KindAssessment domain.Kind = "assessment"
)

// Proposal is a vendor's offer to supply a popup shop.
type Proposal struct {
	Vendor       string  `json:"vendor"`
	Summary      string  `json:"summary"`
	PriceEUR     float64 `json:"price_eur,omitempty"`
	LeadTimeDays int     `json:"lead_time_days,omitempty"`
}

// ExpertFinding is one expert executor's verdict on a proposal.
type ExpertFinding struct {
	Expert      string `json:"expert"`
	Favorable   bool   `json:"favorable"`
	Notes       string `json:"notes"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Assessment is the aggregated outcome of the expert fan-in: the proposal is
// competitive only when every available expert found it favorable.
type Assessment struct {
	Proposal      Proposal        `json:"proposal"`
	IsCompetitive bool            `json:"is_competitive"`
	Findings      []ExpertFinding `json:"findings"`
	Rationale     string          `json:"rationale,omitempty"`
}

// Outcome is the workflow's terminal result.
type Outcome struct {
	Vendor     string     `json:"vendor"`
	Negotiated bool       `json:"negotiated"`
	Summary    string     `json:"summary"`
	Assessment Assessment `json:"assessment"`
}
