package service

import (
	"context"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		currency string
		address  string
		network  string
		err      error
	}{
		{currency: domain.CurrencyBTC, address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", network: NetworkBitcoin},
		{currency: domain.CurrencyBTC, address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", network: NetworkBitcoin},
		{currency: domain.CurrencyBTC, address: "0x52908400098527886E0F7030069857D2E4169EE7", err: domain.ErrInvalidAddress},
		{currency: domain.CurrencyETH, address: "0x52908400098527886E0F7030069857D2E4169EE7", network: NetworkEthereum},
		{currency: domain.CurrencyETH, address: "0x5290", err: domain.ErrInvalidAddress},
		{currency: domain.CurrencyUSDT, address: "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8", network: NetworkTron},
		{currency: domain.CurrencyUSDT, address: "0x52908400098527886E0F7030069857D2E4169EE7", network: NetworkEthereum},
		{currency: domain.CurrencyNGN, address: "0123456789", err: domain.ErrUnsupportedCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.currency+"_"+tc.address, func(t *testing.T) {
			network, err := ValidateAddress(tc.currency, tc.address)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.network, network)
		})
	}
}

func TestExternalWalletUpsertReplaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()

	_, err := h.externals.Upsert(ctx, identity, ExternalWalletRequest{Currency: "btc", Address: "not-an-address"})
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = h.externals.Upsert(ctx, identity, ExternalWalletRequest{Currency: "usd", Address: "x"})
	require.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = h.externals.Upsert(ctx, identity, ExternalWalletRequest{Currency: "btc", Address: "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", Label: "cold"})
	require.NoError(t, err)
	w, err := h.externals.Upsert(ctx, identity, ExternalWalletRequest{Currency: "BTC", Address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", Label: "hot"})
	require.NoError(t, err)
	assert.Equal(t, "hot", w.Label)

	items, err := h.externals.List(ctx, identity.UserID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", items[0].Address)
}
