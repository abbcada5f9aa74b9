package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService owns wallet balances. Every read-check-write is a single
// conditional UPDATE, so concurrent callers can never overdraw a slot.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

// GetBalance returns one currency slot of the user's wallet.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (models.Balance, error) {
	currency, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return models.Balance{}, err
	}
	b, err := s.store.Queries().GetWalletBalance(ctx, repository.BalanceKey{UserID: userID, Currency: currency})
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Balance{}, domain.ErrWalletNotFound
		}
		return models.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// GetWallet returns the wallet with every balance slot.
func (s *LedgerService) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	q := s.store.Queries()
	w, err := q.GetWalletByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Wallet{}, domain.ErrWalletNotFound
		}
		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	balances, err := q.ListWalletBalances(ctx, userID)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("list balances: %w", err)
	}
	w.Balances = balances
	return w, nil
}

// EnsureWallet returns the user's wallet, creating it with a zero balance in
// every supported currency on first use. A caller that loses a concurrent
// create gets ErrWalletExists.
func (s *LedgerService) EnsureWallet(ctx context.Context, identity domain.Identity) (models.Wallet, bool, error) {
	existing, err := s.GetWallet(ctx, identity.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return models.Wallet{}, false, err
	}

	var created models.Wallet
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := qtx.GetUser(ctx, identity.UserID); err != nil {
			if !repository.IsNotFound(err) {
				return fmt.Errorf("get user: %w", err)
			}
			if _, err := qtx.CreateUser(ctx, repository.CreateUserParams{
				ID:              identity.UserID,
				Email:           identity.Email,
				Role:            identity.Role,
				EmailVerified:   identity.EmailVerified,
				KYCVerified:     identity.KYCVerified,
				ProfileVerified: identity.ProfileVerified,
			}); err != nil && !repository.IsNotFound(err) {
				return fmt.Errorf("create user: %w", err)
			}
		}

		w, err := qtx.CreateWallet(ctx, repository.CreateWalletParams{ID: uuid.New(), UserID: identity.UserID})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return domain.ErrWalletExists
			}
			return fmt.Errorf("create wallet: %w", err)
		}
		for _, currency := range domain.Currencies {
			if err := qtx.CreateWalletBalance(ctx, repository.BalanceKey{UserID: identity.UserID, Currency: currency}); err != nil {
				return fmt.Errorf("create %s balance: %w", currency, err)
			}
		}
		balances, err := qtx.ListWalletBalances(ctx, identity.UserID)
		if err != nil {
			return fmt.Errorf("list balances: %w", err)
		}
		w.Balances = balances
		created = w
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return models.Wallet{}, false, domain.ErrWalletExists
		}
		return models.Wallet{}, false, err
	}

	zap.L().Info("wallet created", zap.String("user_id", identity.UserID.String()))
	return created, true, nil
}

// Mutate adds to or subtracts from a balance and returns the new balance.
// It never writes journal entries; callers record one for the same reference
// before mutating.
func (s *LedgerService) Mutate(ctx context.Context, q repository.Querier, userID uuid.UUID, currency string, amount int64, direction string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	change := repository.BalanceChangeParams{UserID: userID, Currency: currency, Amount: amount}

	switch direction {
	case domain.DirectionAdd:
		balance, err := q.CreditBalance(ctx, change)
		if err != nil {
			if repository.IsNotFound(err) {
				return 0, domain.ErrWalletNotFound
			}
			return 0, fmt.Errorf("credit balance: %w", err)
		}
		return balance, nil
	case domain.DirectionSubtract:
		balance, err := q.DebitBalance(ctx, change)
		if err != nil {
			return 0, s.explainShortfall(ctx, q, change, err)
		}
		return balance, nil
	default:
		return 0, fmt.Errorf("unknown balance direction %q", direction)
	}
}

// Hold reserves amount so it can no longer be spent.
func (s *LedgerService) Hold(ctx context.Context, q repository.Querier, userID uuid.UUID, currency string, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	change := repository.BalanceChangeParams{UserID: userID, Currency: currency, Amount: amount}
	if _, err := q.HoldFunds(ctx, change); err != nil {
		return s.explainShortfall(ctx, q, change, err)
	}
	return nil
}

// Release returns held funds to the available balance.
func (s *LedgerService) Release(ctx context.Context, q repository.Querier, userID uuid.UUID, currency string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if _, err := q.ReleaseHold(ctx, repository.BalanceChangeParams{UserID: userID, Currency: currency, Amount: amount}); err != nil {
		if repository.IsNotFound(err) {
			return fmt.Errorf("release hold of %d %s: held balance too small", amount, currency)
		}
		return fmt.Errorf("release hold: %w", err)
	}
	return nil
}

// Capture debits held funds and returns the new balance.
func (s *LedgerService) Capture(ctx context.Context, q repository.Querier, userID uuid.UUID, currency string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	balance, err := q.CaptureHold(ctx, repository.BalanceChangeParams{UserID: userID, Currency: currency, Amount: amount})
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, fmt.Errorf("capture hold of %d %s: held balance too small", amount, currency)
		}
		return 0, fmt.Errorf("capture hold: %w", err)
	}
	return balance, nil
}

// Available returns balance minus holds for a pre-check. The authoritative
// check is the conditional update.
func (s *LedgerService) Available(ctx context.Context, userID uuid.UUID, currency string) (int64, error) {
	b, err := s.GetBalance(ctx, userID, currency)
	if err != nil {
		return 0, err
	}
	return b.Available(), nil
}

// explainShortfall distinguishes a missing slot from insufficient funds after
// a conditional update matched no row.
func (s *LedgerService) explainShortfall(ctx context.Context, q repository.Querier, change repository.BalanceChangeParams, cause error) error {
	if !repository.IsNotFound(cause) {
		return fmt.Errorf("conditional balance update: %w", cause)
	}
	if _, err := q.GetWalletBalance(ctx, repository.BalanceKey{UserID: change.UserID, Currency: change.Currency}); err != nil {
		if repository.IsNotFound(err) {
			return domain.ErrWalletNotFound
		}
		return fmt.Errorf("get balance: %w", err)
	}
	return domain.ErrInsufficientFunds
}
