package service

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertUSDToNGNChargesFlatFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyUSD, 100)

	res, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Reference:  "CNV-usd-ngn",
		Amount:     domain.NewMoney(units(100), domain.CurrencyUSD),
		ToCurrency: domain.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, res.Status)
	assert.Equal(t, units(150_000), res.ToAmount.Amount)
	assert.Equal(t, units(1_000), res.FeeCharged.Amount)
	assert.Equal(t, domain.CurrencyNGN, res.FeeCharged.Currency)
	assert.False(t, res.FeeShortfall)

	usd, _ := h.balance(t, identity.UserID, domain.CurrencyUSD)
	ngn, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, int64(0), usd)
	assert.Equal(t, units(149_000), ngn)

	tx, err := h.journal.Get(ctx, "CNV-usd-ngn")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, tx.Status)
	conv, err := h.store.Queries().GetConversionByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, conv.Rate.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, units(150_000), conv.ToAmountMicros)
}

func TestConvertNGNToUSDFallsBackToTargetForFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 200_000)

	res, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Amount:     domain.NewMoney(units(200_000), domain.CurrencyNGN),
		ToCurrency: domain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.Equal(t, units(100), res.ToAmount.Amount)
	assert.Equal(t, units(3_000), res.Fee.Amount)
	assert.Equal(t, domain.CurrencyUSD, res.FeeCharged.Currency)
	assert.Equal(t, int64(1_500_000), res.FeeCharged.Amount)

	ngn, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	usd, _ := h.balance(t, identity.UserID, domain.CurrencyUSD)
	assert.Equal(t, int64(0), ngn)
	assert.Equal(t, int64(98_500_000), usd)
}

func TestConvertRecordsFeeShortfall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyUSD, 1)

	res, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Reference:  "CNV-short",
		Amount:     domain.NewMoney(500_000, domain.CurrencyUSD),
		ToCurrency: domain.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.True(t, res.FeeShortfall)
	assert.Equal(t, domain.TxStatusSuccess, res.Status)

	ngn, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(750), ngn)

	tx, err := h.journal.Get(ctx, "CNV-short")
	require.NoError(t, err)
	assert.Equal(t, "1000", entryMetadata(t, tx.Metadata)[domain.MetaFeeShortfall])
}

func TestConvertWithoutRateWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyETH, 1)

	_, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Reference:  "CNV-norate",
		Amount:     domain.NewMoney(units(1), domain.CurrencyETH),
		ToCurrency: domain.CurrencyNGN,
	})
	require.ErrorIs(t, err, domain.ErrNoRateAvailable)

	_, err = h.journal.Get(ctx, "CNV-norate")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	eth, _ := h.balance(t, identity.UserID, domain.CurrencyETH)
	assert.Equal(t, units(1), eth)
}

func TestConvertRejectsUnsupportedPairsAndShortBalances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyUSD, 10)

	_, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Amount:     domain.NewMoney(units(5), domain.CurrencyUSD),
		ToCurrency: domain.CurrencyBTC,
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedConversion)

	_, err = h.conversions.Convert(ctx, identity, ConvertRequest{
		Amount:     domain.NewMoney(units(50), domain.CurrencyUSD),
		ToCurrency: domain.CurrencyNGN,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	unverified := identity
	unverified.EmailVerified = false
	_, err = h.conversions.Convert(ctx, unverified, ConvertRequest{
		Amount:     domain.NewMoney(units(5), domain.CurrencyUSD),
		ToCurrency: domain.CurrencyNGN,
	})
	require.ErrorIs(t, err, domain.ErrVerificationRequired)

	usd, _ := h.balance(t, identity.UserID, domain.CurrencyUSD)
	assert.Equal(t, units(10), usd)
}

func TestConvertCoinToNGN(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyBTC, 1)

	res, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Amount:     domain.NewMoney(10_000, domain.CurrencyBTC),
		ToCurrency: domain.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.Equal(t, units(1_000_000), res.ToAmount.Amount)
	assert.Equal(t, units(10_000), res.FeeCharged.Amount)

	ngn, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	btc, _ := h.balance(t, identity.UserID, domain.CurrencyBTC)
	assert.Equal(t, units(990_000), ngn)
	assert.Equal(t, units(1)-10_000, btc)
}
