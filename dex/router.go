// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// =========================================================================
// Pure amount math
// =========================================================================

// Quote converts amountA to the equivalent amountB at the current
// reserve ratio, rounding down.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if !isPositive(amountA) {
		return nil, ErrInsufficientInput
	}
	if !isPositive(reserveA) || !isPositive(reserveB) {
		return nil, ErrInsufficientLiquidity
	}
	return mulDivFloor(amountA, reserveB, reserveA)
}

// GetAmountOut returns the maximum output for amountIn against the
// given reserves after the 0.3% fee:
//
//	out = floor(in*997*reserveOut / (reserveIn*1000 + in*997))
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !isPositive(amountIn) {
		return nil, ErrInsufficientInput
	}
	if !isPositive(reserveIn) || !isPositive(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(FeeNumerator))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(FeeDenominator))
	denominator.Add(denominator, inWithFee)
	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the minimum input that yields amountOut, rounded
// up so rounding never lands in the trader's favor:
//
//	in = floor(reserveIn*out*1000 / ((reserveOut-out)*997)) + 1
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if !isPositive(amountOut) {
		return nil, ErrInsufficientOutput
	}
	if !isPositive(reserveIn) || !isPositive(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, big.NewInt(FeeDenominator))
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, big.NewInt(FeeNumerator))
	in := numerator.Div(numerator, denominator)
	return in.Add(in, oneBig), nil
}

// =========================================================================
// Router
// =========================================================================

// Router computes trade and liquidity amounts and drives the pair
// operations needed to realize them. It holds no state beyond the
// registry reference; amounts are validated against caller-supplied
// deadline and slippage bounds.
type Router struct {
	factory *Factory
	ledger  Ledger
	log     log.Logger

	// nowFn supplies unix-second time for deadline checks;
	// overridable in tests.
	nowFn func() int64
}

// NewRouter creates a router over the factory's registry and ledger.
func NewRouter(factory *Factory, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Router{
		factory: factory,
		ledger:  factory.Ledger(),
		log:     logger,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// WithClock overrides the router clock for deterministic tests.
func (r *Router) WithClock(nowFn func() int64) {
	if nowFn != nil {
		r.nowFn = nowFn
	}
}

// ensureDeadline fails with ErrExpired once the deadline has passed.
// A zero deadline means no bound.
func (r *Router) ensureDeadline(deadline int64) error {
	if deadline != 0 && r.nowFn() > deadline {
		return ErrExpired
	}
	return nil
}

// reservesFor orients a pair's reserves so the first return value is
// the reserve of `input`.
func reservesFor(pair *Pair, input Currency) (*big.Int, *big.Int) {
	r0, r1 := pair.Reserves()
	if pair.Key().Token0 == input {
		return r0, r1
	}
	return r1, r0
}

// GetAmountsOut walks the route left to right, returning the amount
// vector [amountIn, ..., amountOut].
func (r *Router) GetAmountsOut(amountIn *big.Int, path []Currency) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		pair, err := r.factory.GetPair(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := reservesFor(pair, path[i])
		amounts[i+1], err = GetAmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// GetAmountsIn walks the route right to left, returning the amount
// vector [amountIn, ..., amountOut].
func (r *Router) GetAmountsIn(amountOut *big.Int, path []Currency) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		pair, err := r.factory.GetPair(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		reserveIn, reserveOut := reservesFor(pair, path[i-1])
		amounts[i-1], err = GetAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// =========================================================================
// Liquidity
// =========================================================================

// computeLiquidity picks the deposit amounts matching the pool's
// current ratio, bounded by the caller's desired maxima and minima.
func computeLiquidity(
	reserveA, reserveB *big.Int,
	amountADesired, amountBDesired *big.Int,
	amountAMin, amountBMin *big.Int,
) (*big.Int, *big.Int, error) {
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		// First deposit sets the price.
		return amountADesired, amountBDesired, nil
	}
	quotedB, err := Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if quotedB.Cmp(amountBDesired) <= 0 {
		if amountBMin != nil && quotedB.Cmp(amountBMin) < 0 {
			return nil, nil, ErrSlippageExceeded
		}
		return amountADesired, quotedB, nil
	}
	quotedA, err := Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	if amountAMin != nil && quotedA.Cmp(amountAMin) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	return quotedA, amountBDesired, nil
}

// AddLiquidity supplies (tokenA, tokenB) liquidity at the pool's
// current ratio and mints shares to `to`. The pair is created lazily on
// first reference.
func (r *Router) AddLiquidity(
	caller common.Address,
	tokenA, tokenB Currency,
	amountADesired, amountBDesired *big.Int,
	amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline int64,
) (amountA, amountB, shares *big.Int, err error) {
	if err := r.ensureDeadline(deadline); err != nil {
		return nil, nil, nil, err
	}
	if !isPositive(amountADesired) || !isPositive(amountBDesired) {
		return nil, nil, nil, ErrInsufficientInput
	}

	pair, err := r.factory.PairFor(tokenA, tokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	reserveA, reserveB := reservesFor(pair, tokenA)
	amountA, amountB, err = computeLiquidity(
		reserveA, reserveB, amountADesired, amountBDesired, amountAMin, amountBMin)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := r.pay(tokenA, caller, pair.Account(), amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := r.pay(tokenB, caller, pair.Account(), amountB); err != nil {
		return nil, nil, nil, err
	}
	shares, err = pair.Mint(to)
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, shares, nil
}

// RemoveLiquidity burns caller's shares and sends both proportional
// reserve amounts to `to`, enforcing per-side minima.
func (r *Router) RemoveLiquidity(
	caller common.Address,
	tokenA, tokenB Currency,
	shares *big.Int,
	amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline int64,
) (amountA, amountB *big.Int, err error) {
	if err := r.ensureDeadline(deadline); err != nil {
		return nil, nil, err
	}
	pair, err := r.factory.GetPair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}

	// Check the minima against the projected payout before touching
	// the pool so a slippage failure leaves state unchanged.
	reserveA, reserveB := reservesFor(pair, tokenA)
	total := pair.TotalShares()
	if !isPositive(shares) {
		return nil, nil, ErrInvalidAmount
	}
	if !isPositive(total) {
		return nil, nil, ErrInsufficientLiquidity
	}
	expectA, err := mulDivFloor(shares, reserveA, total)
	if err != nil {
		return nil, nil, err
	}
	expectB, err := mulDivFloor(shares, reserveB, total)
	if err != nil {
		return nil, nil, err
	}
	if amountAMin != nil && expectA.Cmp(amountAMin) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	if amountBMin != nil && expectB.Cmp(amountBMin) < 0 {
		return nil, nil, ErrSlippageExceeded
	}

	amount0, amount1, err := pair.Burn(caller, shares, to)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = amount0, amount1
	if pair.Key().Token0 != tokenA {
		amountA, amountB = amount1, amount0
	}
	return amountA, amountB, nil
}

// =========================================================================
// Swaps
// =========================================================================

// SwapExactIn trades a fixed input along `path`, requiring at least
// amountOutMin at the end. Returns the realized amount vector.
func (r *Router) SwapExactIn(
	caller common.Address,
	amountIn, amountOutMin *big.Int,
	path []Currency,
	to common.Address,
	deadline int64,
) ([]*big.Int, error) {
	if err := r.ensureDeadline(deadline); err != nil {
		return nil, err
	}
	amounts, err := r.GetAmountsOut(amountIn, path)
	if err != nil {
		return nil, err
	}
	if amountOutMin != nil && amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
		return nil, ErrInsufficientOutput
	}
	if err := r.settle(caller, amounts, path, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactOut trades along `path` for a fixed final output, requiring
// at most amountInMax at the start. Returns the realized amount vector.
func (r *Router) SwapExactOut(
	caller common.Address,
	amountOut, amountInMax *big.Int,
	path []Currency,
	to common.Address,
	deadline int64,
) ([]*big.Int, error) {
	if err := r.ensureDeadline(deadline); err != nil {
		return nil, err
	}
	amounts, err := r.GetAmountsIn(amountOut, path)
	if err != nil {
		return nil, err
	}
	if amountInMax != nil && amounts[0].Cmp(amountInMax) > 0 {
		return nil, ErrExcessiveInput
	}
	if err := r.settle(caller, amounts, path, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

// settle funds the first pair from the caller, then walks the hops.
// Each hop pays its output directly to the next pair's account
// (chained settlement); only the last hop pays the trader. The router
// itself never takes custody.
func (r *Router) settle(caller common.Address, amounts []*big.Int, path []Currency, to common.Address) error {
	first, err := r.factory.GetPair(path[0], path[1])
	if err != nil {
		return err
	}
	if err := r.pay(path[0], caller, first.Account(), amounts[0]); err != nil {
		return err
	}

	for i := 0; i < len(path)-1; i++ {
		pair, err := r.factory.GetPair(path[i], path[i+1])
		if err != nil {
			return err
		}
		recipient := to
		if i < len(path)-2 {
			next, err := r.factory.GetPair(path[i+1], path[i+2])
			if err != nil {
				return err
			}
			recipient = next.Account()
		}

		amount0Out, amount1Out := amounts[i+1], zeroBig
		if pair.Key().Token0 == path[i] {
			amount0Out, amount1Out = zeroBig, amounts[i+1]
		}
		if err := pair.Swap(caller, amount0Out, amount1Out, recipient); err != nil {
			return err
		}
	}
	return nil
}

// pay moves caller funds on the host's authority.
func (r *Router) pay(token Currency, from, to common.Address, amount *big.Int) error {
	u, err := toUint256(amount)
	if err != nil {
		return err
	}
	return r.ledger.Transfer(token, from, to, u)
}
