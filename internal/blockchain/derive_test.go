package blockchain

import (
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWalletAddress() string {
	return solana.NewWallet().PublicKey().String()
}

func TestDeriverDerive(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58(USDTMint)
	d := NewDeriver(mint)

	t.Run("matches associated token address", func(t *testing.T) {
		wallet := newWalletAddress()
		want, _, err := solana.FindAssociatedTokenAddress(solana.MustPublicKeyFromBase58(wallet), mint)
		require.NoError(t, err)

		got, err := d.Derive(wallet)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("deterministic and cached", func(t *testing.T) {
		wallet := newWalletAddress()
		assert.False(t, d.Cached(wallet))

		first, err := d.Derive(wallet)
		require.NoError(t, err)
		assert.True(t, d.Cached(wallet))

		size := d.Len()
		second, err := d.Derive(wallet)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, size, d.Len(), "second derivation must be a cache hit")
	})

	t.Run("different wallets derive different accounts", func(t *testing.T) {
		a, err := d.Derive(newWalletAddress())
		require.NoError(t, err)
		b, err := d.Derive(newWalletAddress())
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("different mints derive different accounts", func(t *testing.T) {
		wallet := newWalletAddress()
		other := NewDeriver(solana.NewWallet().PublicKey())

		a, err := d.Derive(wallet)
		require.NoError(t, err)
		b, err := other.Derive(wallet)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestDeriverInvalidAddress(t *testing.T) {
	d := NewDeriver(solana.MustPublicKeyFromBase58(USDTMint))

	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"not base58", "0OIl-not-a-key"},
		{"too short", "3yZe7d"},
		{"ethereum address", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Derive(tt.address)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAddress))

			var addrErr *AddressError
			require.ErrorAs(t, err, &addrErr)
			assert.Equal(t, tt.address, addrErr.Address)
			assert.False(t, d.Cached(tt.address), "failures are not cached")
		})
	}
}

func TestDeriverConcurrentAccess(t *testing.T) {
	d := NewDeriver(solana.MustPublicKeyFromBase58(USDTMint))
	wallets := []string{newWalletAddress(), newWalletAddress(), newWalletAddress()}

	var wg sync.WaitGroup
	results := make([][]solana.PublicKey, 8)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, w := range wallets {
				ata, err := d.Derive(w)
				assert.NoError(t, err)
				results[g] = append(results[g], ata)
			}
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, len(wallets), d.Len())
}
