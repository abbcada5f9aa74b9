package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	NetworkBitcoin  = "bitcoin"
	NetworkEthereum = "ethereum"
	NetworkTron     = "tron"
)

var (
	btcLegacyAddress = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcBech32Address = regexp.MustCompile(`^bc1[ac-hj-np-z02-9]{11,71}$`)
	evmAddress       = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tronAddress      = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

type ExternalWalletRequest struct {
	Currency string
	Address  string
	Label    string
}

// ExternalWalletService manages saved crypto withdrawal destinations.
// They never hold balance.
type ExternalWalletService struct {
	store QueryStore
}

func NewExternalWalletService(store QueryStore) *ExternalWalletService {
	return &ExternalWalletService{store: store}
}

// Upsert validates the address for the coin and replaces any previous
// destination for that currency.
func (s *ExternalWalletService) Upsert(ctx context.Context, identity domain.Identity, req ExternalWalletRequest) (models.ExternalWallet, error) {
	if err := identity.Require(domain.GateEmail); err != nil {
		return models.ExternalWallet{}, err
	}
	currency, err := domain.NormalizeCurrency(req.Currency)
	if err != nil {
		return models.ExternalWallet{}, err
	}
	if !domain.IsCrypto(currency) {
		return models.ExternalWallet{}, fmt.Errorf("%w: external wallets are crypto only", domain.ErrUnsupportedCurrency)
	}
	address := strings.TrimSpace(req.Address)
	network, err := ValidateAddress(currency, address)
	if err != nil {
		return models.ExternalWallet{}, err
	}

	w, err := s.store.Queries().UpsertExternalWallet(ctx, repository.UpsertExternalWalletParams{
		UserID:   identity.UserID,
		Currency: currency,
		Address:  address,
		Label:    strings.TrimSpace(req.Label),
		Network:  network,
	})
	if err != nil {
		return models.ExternalWallet{}, fmt.Errorf("upsert external wallet: %w", err)
	}
	zap.L().Info("external wallet saved",
		zap.String("user_id", identity.UserID.String()),
		zap.String("currency", currency),
		zap.String("network", network),
	)
	return w, nil
}

func (s *ExternalWalletService) List(ctx context.Context, userID uuid.UUID) ([]models.ExternalWallet, error) {
	items, err := s.store.Queries().ListExternalWallets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list external wallets: %w", err)
	}
	return items, nil
}

// ValidateAddress checks the address syntax for currency and returns the
// network it belongs to.
func ValidateAddress(currency, address string) (string, error) {
	switch currency {
	case domain.CurrencyBTC:
		if btcLegacyAddress.MatchString(address) || btcBech32Address.MatchString(address) {
			return NetworkBitcoin, nil
		}
	case domain.CurrencyETH:
		if evmAddress.MatchString(address) {
			return NetworkEthereum, nil
		}
	case domain.CurrencyUSDT:
		if evmAddress.MatchString(address) {
			return NetworkEthereum, nil
		}
		if tronAddress.MatchString(address) {
			return NetworkTron, nil
		}
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	return "", fmt.Errorf("%w: %q is not a %s address", domain.ErrInvalidAddress, address, currency)
}
