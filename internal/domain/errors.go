package domain

import "errors"

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicateReference     = errors.New("duplicate reference")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWalletExists           = errors.New("wallet already exists")
	ErrVerificationRequired   = errors.New("verification required")
	ErrRateUnavailable        = errors.New("rate unavailable")
	ErrNoRateAvailable        = errors.New("no rate available")
	ErrProviderRejected       = errors.New("provider rejected the request")
	ErrProviderTimeout        = errors.New("provider timed out")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrReconciliationConflict = errors.New("reconciliation conflict")

	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrUnsupportedConversion  = errors.New("unsupported conversion pair")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidTransition      = errors.New("invalid transaction state transition")
	ErrExternalWalletNotFound = errors.New("external wallet not found")
	ErrInvalidAddress         = errors.New("invalid withdrawal address")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrUnsupportedMethod      = errors.New("unsupported method")
)
