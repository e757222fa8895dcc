// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Event is implemented by all notifications the core emits after a
// state-changing operation has been realized.
type Event interface {
	eventName() string
}

// EventSink receives events for external observers and indexers.
// Implementations must not call back into the emitting component.
type EventSink interface {
	Emit(ev Event)
}

// NoopSink discards all events.
type NoopSink struct{}

// Emit implements EventSink.
func (NoopSink) Emit(Event) {}

// PairCreatedEvent is emitted once when a pair is registered.
type PairCreatedEvent struct {
	Token0 Currency
	Token1 Currency
	Pair   common.Address
}

// MintEvent is emitted when liquidity shares are minted.
type MintEvent struct {
	Pair    common.Address
	Account common.Address
	Amount0 *big.Int
	Amount1 *big.Int
	Shares  *big.Int
}

// BurnEvent is emitted when liquidity shares are burned and the
// proportional reserves are paid out.
type BurnEvent struct {
	Pair      common.Address
	Account   common.Address
	Amount0   *big.Int
	Amount1   *big.Int
	Shares    *big.Int
	Recipient common.Address
}

// SwapEvent is emitted after a trade has settled.
type SwapEvent struct {
	Pair       common.Address
	Caller     common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	Recipient  common.Address
}

// SyncEvent is emitted whenever a pair's reserve mirror is refreshed.
type SyncEvent struct {
	Pair     common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (PairCreatedEvent) eventName() string { return "pair_created" }
func (MintEvent) eventName() string        { return "mint" }
func (BurnEvent) eventName() string        { return "burn" }
func (SwapEvent) eventName() string        { return "swap" }
func (SyncEvent) eventName() string        { return "sync" }
