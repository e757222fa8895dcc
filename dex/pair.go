// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Pair is one constant-product pool for an unordered currency pair.
//
// Reserves are derived from the ledger balances the pair's synthetic
// account holds rather than tracked incrementally, so any direct
// transfer into the pair (a donation, or a trader's pre-funding for a
// swap) is absorbed into the next invariant check. Every mutating entry
// point re-reads the ledger for this reason.
//
// The pair trusts callers to supply liquidity at the current reserve
// ratio; ratio enforcement is the Router's job. Calling Mint directly
// with off-ratio amounts donates the excess to the pool.
type Pair struct {
	mu     sync.Mutex
	locked bool

	key     PairKey
	account common.Address

	ledger Ledger
	sink   EventSink
	log    log.Logger

	// Mirrors of the ledger balances the pair account holds,
	// refreshed after every state-changing operation.
	reserve0 *big.Int
	reserve1 *big.Int

	totalShares *big.Int
	shares      map[common.Address]*big.Int
}

func newPair(key PairKey, ledger Ledger, sink EventSink, logger log.Logger) *Pair {
	return &Pair{
		key:         key,
		account:     key.Account(),
		ledger:      ledger,
		sink:        sink,
		log:         logger,
		reserve0:    big.NewInt(0),
		reserve1:    big.NewInt(0),
		totalShares: big.NewInt(0),
		shares:      make(map[common.Address]*big.Int),
	}
}

// lock guards every mutating entry point against cross-call reentrancy
// through the ledger transfer hooks.
func (p *Pair) lock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		return ErrReentrant
	}
	p.locked = true
	return nil
}

func (p *Pair) unlock() {
	p.mu.Lock()
	p.locked = false
	p.mu.Unlock()
}

// Key returns the canonical pair key.
func (p *Pair) Key() PairKey { return p.key }

// Account returns the ledger account holding the pair's reserves.
func (p *Pair) Account() common.Address { return p.account }

// Reserves returns copies of the current reserve mirrors.
func (p *Pair) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// TotalShares returns the current share supply.
func (p *Pair) TotalShares() *big.Int {
	return new(big.Int).Set(p.totalShares)
}

// SharesOf returns account's share balance.
func (p *Pair) SharesOf(account common.Address) *big.Int {
	if bal, ok := p.shares[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// balances reads the pair account's live ledger balances.
func (p *Pair) balances() (*big.Int, *big.Int) {
	bal0 := p.ledger.BalanceOf(p.key.Token0, p.account).ToBig()
	bal1 := p.ledger.BalanceOf(p.key.Token1, p.account).ToBig()
	return bal0, bal1
}

// refresh updates the reserve mirrors to the given balances and
// announces the new reserves.
func (p *Pair) refresh(bal0, bal1 *big.Int) {
	p.reserve0 = bal0
	p.reserve1 = bal1
	p.sink.Emit(SyncEvent{
		Pair:     p.account,
		Reserve0: new(big.Int).Set(bal0),
		Reserve1: new(big.Int).Set(bal1),
	})
}

// Mint credits `to` with ownership shares for the liquidity already
// transferred to the pair account. The first deposit establishes the
// price and mints floor(sqrt(amount0*amount1)) shares; later deposits
// mint the minimum proportional amount, so off-ratio excess accrues to
// the pool. Returns the shares minted.
func (p *Pair) Mint(to common.Address) (*big.Int, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	bal0, bal1 := p.balances()
	amount0 := new(big.Int).Sub(bal0, p.reserve0)
	amount1 := new(big.Int).Sub(bal1, p.reserve1)
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		// Reserve mirror ahead of the ledger; resync and bail.
		p.refresh(bal0, bal1)
		return nil, ErrNoInputProvided
	}

	var minted *big.Int
	if p.totalShares.Sign() == 0 {
		minted = sqrtFloor(new(big.Int).Mul(amount0, amount1))
	} else {
		share0, err := mulDivFloor(amount0, p.totalShares, p.reserve0)
		if err != nil {
			return nil, err
		}
		share1, err := mulDivFloor(amount1, p.totalShares, p.reserve1)
		if err != nil {
			return nil, err
		}
		minted = minBig(share0, share1)
	}
	if minted.Sign() == 0 {
		return nil, ErrInsufficientLiquidityMinted
	}

	p.totalShares = new(big.Int).Add(p.totalShares, minted)
	bal, ok := p.shares[to]
	if !ok {
		bal = big.NewInt(0)
	}
	p.shares[to] = new(big.Int).Add(bal, minted)

	p.refresh(bal0, bal1)
	p.sink.Emit(MintEvent{
		Pair:    p.account,
		Account: to,
		Amount0: amount0,
		Amount1: amount1,
		Shares:  new(big.Int).Set(minted),
	})
	p.log.Debug("liquidity minted", "pair", p.account, "to", to, "shares", minted)
	return minted, nil
}

// Burn destroys `shares` of from's ownership and pays the proportional
// part of each reserve to `to`. Payouts use floor division; the pool,
// not the withdrawer, keeps the remainder.
func (p *Pair) Burn(from common.Address, shares *big.Int, to common.Address) (*big.Int, *big.Int, error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !isPositive(shares) {
		return nil, nil, ErrInvalidAmount
	}
	owned, ok := p.shares[from]
	if !ok || owned.Cmp(shares) < 0 {
		return nil, nil, ErrInsufficientShares
	}

	// Live balances, not the mirror, so donations are shared out too.
	bal0, bal1 := p.balances()
	amount0, err := mulDivFloor(shares, bal0, p.totalShares)
	if err != nil {
		return nil, nil, err
	}
	amount1, err := mulDivFloor(shares, bal1, p.totalShares)
	if err != nil {
		return nil, nil, err
	}

	p.shares[from] = new(big.Int).Sub(owned, shares)
	p.totalShares = new(big.Int).Sub(p.totalShares, shares)

	if err := p.payOut(p.key.Token0, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.payOut(p.key.Token1, to, amount1); err != nil {
		return nil, nil, err
	}

	p.refresh(p.balances())
	p.sink.Emit(BurnEvent{
		Pair:      p.account,
		Account:   from,
		Amount0:   amount0,
		Amount1:   amount1,
		Shares:    new(big.Int).Set(shares),
		Recipient: to,
	})
	p.log.Debug("liquidity burned", "pair", p.account, "from", from, "shares", shares)
	return amount0, amount1, nil
}

// Swap pays the requested output amounts to `to`, inferring the input
// from the balance the caller already transferred in, and enforces that
// the post-trade reserve product does not fall below the pre-trade
// product. Output transfers happen only after the invariant check.
func (p *Pair) Swap(caller common.Address, amount0Out, amount1Out *big.Int, to common.Address) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if amount0Out == nil {
		amount0Out = zeroBig
	}
	if amount1Out == nil {
		amount1Out = zeroBig
	}
	if amount0Out.Sign() < 0 || amount1Out.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrNoOutputRequested
	}
	// A pair can never be fully drained.
	if amount0Out.Cmp(p.reserve0) >= 0 || amount1Out.Cmp(p.reserve1) >= 0 {
		return ErrInsufficientLiquidity
	}

	bal0, bal1 := p.balances()
	amount0In := new(big.Int).Sub(bal0, p.reserve0)
	amount1In := new(big.Int).Sub(bal1, p.reserve1)
	if amount0In.Sign() < 0 {
		amount0In = big.NewInt(0)
	}
	if amount1In.Sign() < 0 {
		amount1In = big.NewInt(0)
	}
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrNoInputProvided
	}

	// (r0 - out0 + in0) * (r1 - out1 + in1) >= r0 * r1
	next0 := new(big.Int).Sub(p.reserve0, amount0Out)
	next0.Add(next0, amount0In)
	next1 := new(big.Int).Sub(p.reserve1, amount1Out)
	next1.Add(next1, amount1In)
	before := new(big.Int).Mul(p.reserve0, p.reserve1)
	after := new(big.Int).Mul(next0, next1)
	if after.Cmp(before) < 0 {
		return ErrInvariantViolation
	}

	if err := p.payOut(p.key.Token0, to, amount0Out); err != nil {
		return err
	}
	if err := p.payOut(p.key.Token1, to, amount1Out); err != nil {
		return err
	}

	p.refresh(p.balances())
	p.sink.Emit(SwapEvent{
		Pair:       p.account,
		Caller:     caller,
		Amount0In:  amount0In,
		Amount1In:  amount1In,
		Amount0Out: new(big.Int).Set(amount0Out),
		Amount1Out: new(big.Int).Set(amount1Out),
		Recipient:  to,
	})
	p.log.Debug("swap", "pair", p.account,
		"in0", amount0In, "in1", amount1In,
		"out0", amount0Out, "out1", amount1Out, "to", to)
	return nil
}

// Sync refreshes the reserve mirrors to the live ledger balances,
// absorbing any direct transfer into the pool.
func (p *Pair) Sync() error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	p.refresh(p.balances())
	return nil
}

// Skim transfers any balance in excess of the reserve mirrors to `to`.
func (p *Pair) Skim(to common.Address) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	bal0, bal1 := p.balances()
	excess0 := new(big.Int).Sub(bal0, p.reserve0)
	excess1 := new(big.Int).Sub(bal1, p.reserve1)
	if excess0.Sign() > 0 {
		if err := p.payOut(p.key.Token0, to, excess0); err != nil {
			return err
		}
	}
	if excess1.Sign() > 0 {
		if err := p.payOut(p.key.Token1, to, excess1); err != nil {
			return err
		}
	}
	return nil
}

// payOut transfers amount of token from the pair account, skipping
// zero amounts.
func (p *Pair) payOut(token Currency, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	u, err := toUint256(amount)
	if err != nil {
		return err
	}
	return p.ledger.Transfer(token, p.account, to, u)
}
