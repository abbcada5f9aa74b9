package repository

import (
	"context"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract shared by the Postgres and in-memory stores.
type Querier interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)

	CreateWallet(ctx context.Context, arg CreateWalletParams) (models.Wallet, error)
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	CreateWalletBalance(ctx context.Context, arg BalanceKey) error
	GetWalletBalance(ctx context.Context, arg BalanceKey) (models.Balance, error)
	ListWalletBalances(ctx context.Context, userID uuid.UUID) ([]models.Balance, error)
	CreditBalance(ctx context.Context, arg BalanceChangeParams) (int64, error)
	DebitBalance(ctx context.Context, arg BalanceChangeParams) (int64, error)
	HoldFunds(ctx context.Context, arg BalanceChangeParams) (int64, error)
	ReleaseHold(ctx context.Context, arg BalanceChangeParams) (int64, error)
	CaptureHold(ctx context.Context, arg BalanceChangeParams) (int64, error)
	SumHeldByCurrency(ctx context.Context) ([]CurrencyTotal, error)

	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (models.Transaction, error)
	GetTransactionByProviderReference(ctx context.Context, providerReference string) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error)
	SetTransactionProviderReference(ctx context.Context, arg SetProviderReferenceParams) (int64, error)
	MergeTransactionMetadata(ctx context.Context, arg MergeMetadataParams) (int64, error)
	CountUserTransactionsSince(ctx context.Context, arg CountUserTransactionsSinceParams) (int64, error)
	ListUserTransactions(ctx context.Context, arg ListUserTransactionsParams) ([]models.Transaction, error)
	ListStaleTransactions(ctx context.Context, arg ListStaleTransactionsParams) ([]models.Transaction, error)
	SumOpenHoldsByCurrency(ctx context.Context) ([]CurrencyTotal, error)

	CreateConversion(ctx context.Context, arg CreateConversionParams) (models.Conversion, error)
	GetConversionByTransactionID(ctx context.Context, transactionID uuid.UUID) (models.Conversion, error)

	InsertRateSample(ctx context.Context, arg models.RateSample) error
	GetLatestRateSample(ctx context.Context, arg GetLatestRateSampleParams) (models.RateSample, error)

	UpsertExternalWallet(ctx context.Context, arg UpsertExternalWalletParams) (models.ExternalWallet, error)
	GetExternalWallet(ctx context.Context, arg ExternalWalletKey) (models.ExternalWallet, error)
	ListExternalWallets(ctx context.Context, userID uuid.UUID) ([]models.ExternalWallet, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
	ListAuditLog(ctx context.Context, entityType string, entityID uuid.UUID) ([]AuditLog, error)

	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error)
}

// CurrencyTotal is an aggregate amount per currency.
type CurrencyTotal struct {
	Currency string
	Total    int64
}

type AuditLog struct {
	ID         int64
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
	CreatedAt  time.Time
}

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
