package domain

// Transaction kinds.
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindTransfer   = "transfer"
	KindConversion = "conversion"
)

// Transaction methods.
const (
	MethodCard           = "card"
	MethodBankTransfer   = "bank_transfer"
	MethodCryptoTransfer = "crypto_transfer"
	MethodConversion     = "conversion"
)

// Transaction lifecycle. SUCCESS and FAILED are terminal.
const (
	TxStatusPending    = "PENDING"
	TxStatusProcessing = "PROCESSING"
	TxStatusSuccess    = "SUCCESS"
	TxStatusFailed     = "FAILED"
)

// Balance mutation directions.
const (
	DirectionAdd      = "add"
	DirectionSubtract = "subtract"
)

// Settlement outcomes reported by providers (webhook or status poll).
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomePending = "pending"
)

// Metadata keys shared between orchestrators and the reconciler.
const (
	MetaNeedsReconciliation       = "needs_reconciliation"
	MetaFailureReason             = "reason"
	MetaFeeShortfall              = "fee_shortfall"
	MetaHoldAmount                = "hold_micros"
	MetaProviderReferenceConflict = "provider_reference_conflict"
)

// RoleAdmin is the JWT role allowed to resolve stuck transactions.
const RoleAdmin = "admin"

// IsTerminal reports whether status can no longer change.
func IsTerminal(status string) bool {
	return status == TxStatusSuccess || status == TxStatusFailed
}
