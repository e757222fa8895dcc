// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package farm implements a time-weighted staking reward engine.
// Accounts stake a designated receipt asset and accrue a separately
// funded reward asset linearly over a fixed window, proportional to
// their share of total stake at each point in time. Accrual is tracked
// with a single 1e18-scaled accumulator so pending rewards are computed
// without iterating accounts.
package farm

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/exchange/dex"
)

// Accumulator scale: accRewardPerShare carries 18 decimals of
// precision per unit of stake.
var accScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Errors returned by the engine.
var (
	ErrZeroAmount         = errors.New("zero amount")
	ErrNotStarted         = errors.New("reward window not started")
	ErrEnded              = errors.New("reward window ended")
	ErrInsufficientStaked = errors.New("insufficient staked balance")
	ErrReentrant          = errors.New("reentrancy detected")
	ErrInvalidConfig      = errors.New("invalid farm config")
)

// Config fixes the engine's tokens, window and budget at construction.
// The reward rate is totalReward/(endTime-startTime), floor; rounding
// dust stays unpaid.
type Config struct {
	StakeToken  dex.Currency
	RewardToken dex.Currency

	// Unix seconds. Rewards accrue over [StartTime, EndTime).
	StartTime int64
	EndTime   int64

	TotalReward *big.Int
}

// Verify checks the config invariants.
func (c Config) Verify() error {
	if c.StakeToken.IsZero() || c.RewardToken.IsZero() {
		return ErrInvalidConfig
	}
	if c.EndTime <= c.StartTime {
		return ErrInvalidConfig
	}
	if c.TotalReward == nil || c.TotalReward.Sign() <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Staker is one account's position. Records persist at zero stake
// after full withdrawal to preserve the reward-debt bookkeeping.
type Staker struct {
	// Amount is the current staked balance of the receipt asset.
	Amount *big.Int

	// RewardDebt is the accumulator value already settled for this
	// account, in the same scaled units as accRewardPerShare.
	RewardDebt *big.Int
}

// Engine is the staking reward engine. All mutating entry points
// catch the accumulator up to the current time first, then settle the
// caller's pending reward before changing balances.
type Engine struct {
	mu     sync.Mutex
	locked bool

	cfg     Config
	account common.Address

	ledger dex.Ledger
	sink   EventSink
	log    log.Logger

	// nowFn supplies unix-second time; overridable in tests.
	nowFn func() int64

	rewardPerSec *big.Int

	// accRewardPerShare is monotonically non-decreasing, scaled by
	// 1e18. lastAccrual is the high-water mark of accrued time so an
	// interval is never applied twice.
	accRewardPerShare *big.Int
	lastAccrual       int64

	totalStaked *big.Int
	paidOut     *big.Int
	stakers     map[common.Address]*Staker
}

// NewEngine builds an engine over the ledger. The engine's own ledger
// account (derived from the config) must be funded with the reward
// budget before the window opens.
func NewEngine(cfg Config, ledger dex.Ledger, sink EventSink, logger log.Logger) (*Engine, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}

	duration := big.NewInt(cfg.EndTime - cfg.StartTime)
	rate := new(big.Int).Div(cfg.TotalReward, duration)

	return &Engine{
		cfg:               cfg,
		account:           deriveAccount(cfg),
		ledger:            ledger,
		sink:              sink,
		log:               logger,
		nowFn:             func() int64 { return time.Now().Unix() },
		rewardPerSec:      rate,
		accRewardPerShare: big.NewInt(0),
		lastAccrual:       cfg.StartTime,
		totalStaked:       big.NewInt(0),
		paidOut:           big.NewInt(0),
		stakers:           make(map[common.Address]*Staker),
	}, nil
}

// deriveAccount computes the engine's synthetic ledger account.
func deriveAccount(cfg Config) common.Address {
	h := blake3.New()
	h.Write([]byte("farm/account"))
	h.Write(cfg.StakeToken.Address.Bytes())
	h.Write(cfg.RewardToken.Address.Bytes())
	var id [32]byte
	h.Digest().Read(id[:])
	return common.BytesToAddress(id[12:])
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(nowFn func() int64) {
	if nowFn != nil {
		e.nowFn = nowFn
	}
}

// Account returns the ledger account holding stake and reward funds.
func (e *Engine) Account() common.Address { return e.account }

// Config returns the engine's fixed parameters.
func (e *Engine) Config() Config { return e.cfg }

// RewardPerSecond returns the fixed accrual rate.
func (e *Engine) RewardPerSecond() *big.Int {
	return new(big.Int).Set(e.rewardPerSec)
}

// TotalStaked returns the sum of all staked balances.
func (e *Engine) TotalStaked() *big.Int {
	return new(big.Int).Set(e.totalStaked)
}

// StakedOf returns account's staked balance.
func (e *Engine) StakedOf(account common.Address) *big.Int {
	if st, ok := e.stakers[account]; ok {
		return new(big.Int).Set(st.Amount)
	}
	return big.NewInt(0)
}

// TotalPaid returns the rewards paid out since inception.
func (e *Engine) TotalPaid() *big.Int {
	return new(big.Int).Set(e.paidOut)
}

func (e *Engine) lock() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrReentrant
	}
	e.locked = true
	return nil
}

func (e *Engine) unlock() {
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// accrue catches the accumulator up to now, capped at the window end.
// Intervals with zero total stake advance the high-water mark without
// distributing; that slice of the budget is dropped, not deferred.
func (e *Engine) accrue(now int64) {
	upper := now
	if upper > e.cfg.EndTime {
		upper = e.cfg.EndTime
	}
	if upper <= e.lastAccrual {
		return
	}
	if e.totalStaked.Sign() == 0 {
		e.lastAccrual = upper
		return
	}

	elapsed := big.NewInt(upper - e.lastAccrual)
	reward := new(big.Int).Mul(e.rewardPerSec, elapsed)
	delta := new(big.Int).Mul(reward, accScale)
	delta.Div(delta, e.totalStaked)
	e.accRewardPerShare.Add(e.accRewardPerShare, delta)
	e.lastAccrual = upper
}

// pendingOf computes st's settled-since-last-action reward against the
// given accumulator value.
func pendingOf(st *Staker, acc *big.Int) *big.Int {
	earned := new(big.Int).Mul(st.Amount, acc)
	earned.Div(earned, accScale)
	return earned.Sub(earned, st.RewardDebt)
}

// settle pays st's pending reward to account, if any.
func (e *Engine) settle(account common.Address, st *Staker) error {
	pending := pendingOf(st, e.accRewardPerShare)
	if pending.Sign() <= 0 {
		return nil
	}
	if err := e.pay(e.cfg.RewardToken, account, pending); err != nil {
		return err
	}
	e.paidOut.Add(e.paidOut, pending)
	e.sink.Emit(RewardPaidEvent{Account: account, Amount: pending})
	e.log.Debug("reward paid", "account", account, "amount", pending)
	return nil
}

// resetDebt re-bases st so future accrual is measured from its new
// balance onward.
func resetDebt(st *Staker, acc *big.Int) {
	debt := new(big.Int).Mul(st.Amount, acc)
	st.RewardDebt = debt.Div(debt, accScale)
}

func (e *Engine) staker(account common.Address) *Staker {
	st, ok := e.stakers[account]
	if !ok {
		st = &Staker{Amount: big.NewInt(0), RewardDebt: big.NewInt(0)}
		e.stakers[account] = st
	}
	return st
}

// Stake deposits amount of the receipt asset for caller. An existing
// position settles its outstanding reward at the pre-stake balance
// first. Only allowed inside the reward window.
func (e *Engine) Stake(caller common.Address, amount *big.Int) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	now := e.nowFn()
	if now < e.cfg.StartTime {
		return ErrNotStarted
	}
	if now >= e.cfg.EndTime {
		return ErrEnded
	}

	e.accrue(now)
	st := e.staker(caller)
	if st.Amount.Sign() > 0 {
		if err := e.settle(caller, st); err != nil {
			return err
		}
	}

	u, err := toLedgerAmount(amount)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(e.cfg.StakeToken, caller, e.account, u); err != nil {
		return err
	}

	st.Amount = new(big.Int).Add(st.Amount, amount)
	e.totalStaked.Add(e.totalStaked, amount)
	resetDebt(st, e.accRewardPerShare)

	e.sink.Emit(DepositEvent{Account: caller, Amount: new(big.Int).Set(amount)})
	e.log.Debug("staked", "account", caller, "amount", amount, "total", e.totalStaked)
	return nil
}

// Withdraw returns amount of the receipt asset to caller, settling
// outstanding reward first. Allowed after the window ends.
func (e *Engine) Withdraw(caller common.Address, amount *big.Int) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	st, ok := e.stakers[caller]
	if !ok || st.Amount.Cmp(amount) < 0 {
		return ErrInsufficientStaked
	}

	e.accrue(e.nowFn())
	if err := e.settle(caller, st); err != nil {
		return err
	}

	if err := e.pay(e.cfg.StakeToken, caller, amount); err != nil {
		return err
	}
	st.Amount = new(big.Int).Sub(st.Amount, amount)
	e.totalStaked.Sub(e.totalStaked, amount)
	resetDebt(st, e.accRewardPerShare)

	e.sink.Emit(WithdrawEvent{Account: caller, Amount: new(big.Int).Set(amount)})
	e.log.Debug("withdrawn", "account", caller, "amount", amount, "total", e.totalStaked)
	return nil
}

// Claim settles the caller's pending reward and nothing else. Returns
// the amount paid.
func (e *Engine) Claim(caller common.Address) (*big.Int, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	e.accrue(e.nowFn())
	st, ok := e.stakers[caller]
	if !ok {
		return big.NewInt(0), nil
	}

	pending := pendingOf(st, e.accRewardPerShare)
	if err := e.settle(caller, st); err != nil {
		return nil, err
	}
	resetDebt(st, e.accRewardPerShare)
	return pending, nil
}

// EmergencyWithdraw returns the caller's entire stake and forfeits any
// pending reward. The forfeited slice stays in the accumulator and is
// shared by the remaining stakers.
func (e *Engine) EmergencyWithdraw(caller common.Address) (*big.Int, error) {
	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	st, ok := e.stakers[caller]
	if !ok || st.Amount.Sign() == 0 {
		return nil, ErrInsufficientStaked
	}

	e.accrue(e.nowFn())
	amount := st.Amount
	if err := e.pay(e.cfg.StakeToken, caller, amount); err != nil {
		return nil, err
	}
	e.totalStaked.Sub(e.totalStaked, amount)
	st.Amount = big.NewInt(0)
	resetDebt(st, e.accRewardPerShare)

	e.sink.Emit(EmergencyWithdrawEvent{Account: caller, Amount: amount})
	e.log.Debug("emergency withdraw", "account", caller, "amount", amount)
	return amount, nil
}

// PendingReward returns what a Claim would pay account right now,
// without mutating state. Deterministic per timestamp.
func (e *Engine) PendingReward(account common.Address) *big.Int {
	st, ok := e.stakers[account]
	if !ok {
		return big.NewInt(0)
	}

	acc := new(big.Int).Set(e.accRewardPerShare)
	upper := e.nowFn()
	if upper > e.cfg.EndTime {
		upper = e.cfg.EndTime
	}
	if upper > e.lastAccrual && e.totalStaked.Sign() > 0 {
		elapsed := big.NewInt(upper - e.lastAccrual)
		reward := new(big.Int).Mul(e.rewardPerSec, elapsed)
		delta := new(big.Int).Mul(reward, accScale)
		delta.Div(delta, e.totalStaked)
		acc.Add(acc, delta)
	}
	return pendingOf(st, acc)
}

// RemainingReward returns the part of the budget that has not accrued
// yet, at the fixed rate, as of now. Budget dropped during zero-stake
// intervals is not included.
func (e *Engine) RemainingReward() *big.Int {
	upper := e.nowFn()
	if upper < e.cfg.StartTime {
		upper = e.cfg.StartTime
	}
	if upper > e.cfg.EndTime {
		upper = e.cfg.EndTime
	}
	left := big.NewInt(e.cfg.EndTime - upper)
	return left.Mul(left, e.rewardPerSec)
}

// pay transfers amount of token out of the engine account.
func (e *Engine) pay(token dex.Currency, to common.Address, amount *big.Int) error {
	u, err := toLedgerAmount(amount)
	if err != nil {
		return err
	}
	return e.ledger.Transfer(token, e.account, to, u)
}

// toLedgerAmount converts to the ledger's 256-bit balance width.
func toLedgerAmount(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, dex.ErrArithmeticOverflow
	}
	return u, nil
}
