// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Ledger is the external fungible-asset ledger the exchange settles
// against. A pair's reserves are defined as the ledger balance its
// synthetic account holds, so every implementation must either apply a
// transfer fully or fail without any effect.
type Ledger interface {
	// BalanceOf returns the current balance of account in token.
	BalanceOf(token Currency, account common.Address) *uint256.Int

	// Transfer moves amount of token from one account to another.
	Transfer(token Currency, from, to common.Address, amount *uint256.Int) error
}

// MemLedger is an in-memory Ledger for hosts that do not bring their
// own balance store, and for tests.
type MemLedger struct {
	mu       sync.RWMutex
	balances map[Currency]map[common.Address]*uint256.Int
}

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances: make(map[Currency]map[common.Address]*uint256.Int),
	}
}

// BalanceOf implements Ledger.
func (l *MemLedger) BalanceOf(token Currency, account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if accounts, ok := l.balances[token]; ok {
		if bal, ok := accounts[account]; ok {
			return bal.Clone()
		}
	}
	return uint256.NewInt(0)
}

// Transfer implements Ledger. It fails without side effects when the
// sender balance is short.
func (l *MemLedger) Transfer(token Currency, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balance(token, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("ledger: balance %s short of %s for %s", fromBal, amount, from.Hex())
	}
	fromBal.Sub(fromBal, amount)
	l.balance(token, to).Add(l.balance(token, to), amount)
	return nil
}

// Mint credits an account out of thin air. Test and genesis helper.
func (l *MemLedger) Mint(token Currency, account common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balance(token, account)
	bal.Add(bal, amount)
}

// balance returns the mutable balance entry, creating it on first use.
// Callers hold l.mu.
func (l *MemLedger) balance(token Currency, account common.Address) *uint256.Int {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[token] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = uint256.NewInt(0)
		accounts[account] = bal
	}
	return bal
}
