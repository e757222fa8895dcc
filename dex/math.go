// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Rounding directions are part of each helper's contract: payouts round
// down in the pool's favor, required inputs round up in the pool's
// favor. Amounts are capped at 256 bits when they cross the ledger
// boundary; anything wider is ErrArithmeticOverflow, never wrapped.

// mulDivFloor returns floor(a * b / den).
func mulDivFloor(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	out := new(big.Int).Mul(a, b)
	return out.Div(out, den), nil
}

// mulDivCeil returns ceil(a * b / den).
func mulDivCeil(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	num := new(big.Int).Mul(a, b)
	out, rem := new(big.Int).DivMod(num, den, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, oneBig)
	}
	return out, nil
}

// sqrtFloor returns floor(sqrt(n)). n must be non-negative.
func sqrtFloor(n *big.Int) *big.Int {
	return new(big.Int).Sqrt(n)
}

// minBig returns the smaller of a and b.
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// toUint256 converts a non-negative big.Int to the ledger's balance
// width, rejecting negatives and values wider than 256 bits.
func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

var (
	zeroBig = big.NewInt(0)
	oneBig  = big.NewInt(1)
)

// isPositive reports whether v is a usable positive amount.
func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
