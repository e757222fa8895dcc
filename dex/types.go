// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex implements a constant-product AMM exchange core.
// Pairs hold two-sided reserves mirrored from an external asset ledger,
// mint proportional ownership shares, and enforce the fee-adjusted
// constant-product invariant on every trade. A stateless Router computes
// amounts and drives multi-hop swaps with chained settlement.
package dex

import (
	"bytes"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Swap fee: 0.3%, applied by scaling input amounts by 997/1000.
const (
	FeeNumerator   = 997
	FeeDenominator = 1000
)

// Currency identifies a fungible asset held by the ledger.
// The zero address is not a valid pair member.
type Currency struct {
	Address common.Address
}

// IsZero returns true for the zero-value currency.
func (c Currency) IsZero() bool {
	return c.Address == (common.Address{})
}

// Cmp orders currencies by address bytes.
func (c Currency) Cmp(other Currency) int {
	return bytes.Compare(c.Address.Bytes(), other.Address.Bytes())
}

// SortCurrencies returns the pair in canonical order (smaller address
// first) so every caller and every pair agree on which side is token0.
func SortCurrencies(a, b Currency) (Currency, Currency, error) {
	if a.Address == b.Address {
		return Currency{}, Currency{}, ErrIdenticalAssets
	}
	if a.IsZero() || b.IsZero() {
		return Currency{}, Currency{}, ErrZeroAddress
	}
	if a.Cmp(b) < 0 {
		return a, b, nil
	}
	return b, a, nil
}

// PairKey uniquely identifies a pair. Token0 < Token1 always holds for
// keys built through NewPairKey.
type PairKey struct {
	Token0 Currency
	Token1 Currency
}

// NewPairKey builds the canonical key for an unordered currency pair.
func NewPairKey(a, b Currency) (PairKey, error) {
	t0, t1, err := SortCurrencies(a, b)
	if err != nil {
		return PairKey{}, err
	}
	return PairKey{Token0: t0, Token1: t1}, nil
}

// ID computes the unique pair identifier from the ordered tokens.
func (k PairKey) ID() common.Hash {
	h := blake3.New()
	h.Write(k.Token0.Address.Bytes())
	h.Write(k.Token1.Address.Bytes())
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// Account returns the synthetic ledger account that holds the pair's
// reserves. Derived from the pair ID so it is stable and cannot collide
// with externally owned accounts in practice.
func (k PairKey) Account() common.Address {
	id := k.ID()
	return common.BytesToAddress(id[12:])
}

// Errors returned by the dex core. Every failure aborts the whole
// operation and leaves state untouched.
var (
	ErrIdenticalAssets             = errors.New("identical assets")
	ErrZeroAddress                 = errors.New("zero address")
	ErrPairExists                  = errors.New("pair already exists")
	ErrPairNotFound                = errors.New("pair not found")
	ErrInvalidPath                 = errors.New("invalid path")
	ErrExpired                     = errors.New("deadline expired")
	ErrInsufficientInput           = errors.New("insufficient input amount")
	ErrInsufficientOutput          = errors.New("insufficient output amount")
	ErrExcessiveInput              = errors.New("excessive input amount")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientShares          = errors.New("insufficient shares")
	ErrNoInputProvided             = errors.New("no input provided")
	ErrNoOutputRequested           = errors.New("no output requested")
	ErrInvariantViolation          = errors.New("constant product invariant violation")
	ErrSlippageExceeded            = errors.New("slippage exceeded")
	ErrReentrant                   = errors.New("reentrancy detected")
	ErrArithmeticOverflow          = errors.New("arithmetic overflow")
	ErrInvalidAmount               = errors.New("invalid amount")
)
