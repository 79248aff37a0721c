package blockchain

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Deriver maps wallet addresses to their associated token account for a single mint.
//
// Derivation follows the canonical program-derived-address rule: seeds
// [wallet, token program, mint] under the associated token account program,
// bump searched from 255 downwards, first off-curve candidate wins.
// Results are cached for the lifetime of the Deriver and never evicted.
type Deriver struct {
	mint  solana.PublicKey
	cache sync.Map // wallet string -> solana.PublicKey
}

// NewDeriver creates a deriver bound to the given mint
func NewDeriver(mint solana.PublicKey) *Deriver {
	return &Deriver{mint: mint}
}

// Mint returns the mint the deriver is bound to
func (d *Deriver) Mint() solana.PublicKey {
	return d.mint
}

// Derive returns the associated token account of wallet for the deriver's mint
func (d *Deriver) Derive(wallet string) (solana.PublicKey, error) {
	if cached, ok := d.cache.Load(wallet); ok {
		return cached.(solana.PublicKey), nil
	}

	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return solana.PublicKey{}, &AddressError{Address: wallet, Err: err}
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, d.mint)
	if err != nil {
		return solana.PublicKey{}, &AddressError{Address: wallet, Err: err}
	}

	// Concurrent first derivations of the same wallet agree, keep whichever landed first.
	actual, _ := d.cache.LoadOrStore(wallet, ata)
	return actual.(solana.PublicKey), nil
}

// Cached reports whether wallet has already been derived
func (d *Deriver) Cached(wallet string) bool {
	_, ok := d.cache.Load(wallet)
	return ok
}

// Len returns the number of cached derivations
func (d *Deriver) Len() int {
	n := 0
	d.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
