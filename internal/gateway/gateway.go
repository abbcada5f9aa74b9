package gateway

import (
	"context"
)

// DestinationKind selects how funds leave the platform.
type DestinationKind string

const (
	DestinationBank   DestinationKind = "bank"
	DestinationCrypto DestinationKind = "crypto"
)

// Destination describes where a disbursement lands. Bank fields and crypto
// fields are mutually exclusive.
type Destination struct {
	Kind          DestinationKind `json:"kind"`
	BankCode      string          `json:"bank_code,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	AccountName   string          `json:"account_name,omitempty"`
	Address       string          `json:"address,omitempty"`
	Network       string          `json:"network,omitempty"`
}

type DisbursementRequest struct {
	Reference   string
	AmountMicro int64
	Currency    string
	Destination Destination
	Narration   string
}

type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Disbursement is an explicit provider answer. Ambiguous outcomes are never
// represented here; they are returned as errors.
type Disbursement struct {
	Decision          Decision
	ProviderReference string
	Reason            string
}

func (d Disbursement) Accepted() bool {
	return d.Decision == DecisionAccepted
}

// Settlement is the provider's view of a previously requested disbursement.
// Outcome is one of domain.OutcomeSuccess, OutcomeFailed or OutcomePending.
type Settlement struct {
	Outcome           string
	ProviderReference string
	Reason            string
}

// Disburser sends money out through an external provider.
//
// Disburse returns a Disbursement for an explicit accept or reject and a
// non-nil error when the outcome is unknown (transport failure, 5xx,
// timeout). Callers must treat such an error as "maybe sent".
type Disburser interface {
	Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error)
	Status(ctx context.Context, reference string) (Settlement, error)
}
