// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package farm

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Event is implemented by all notifications the engine emits after a
// state-changing operation has been realized.
type Event interface {
	eventName() string
}

// EventSink receives events for external observers and indexers.
// Implementations must not call back into the engine.
type EventSink interface {
	Emit(ev Event)
}

// NoopSink discards all events.
type NoopSink struct{}

// Emit implements EventSink.
func (NoopSink) Emit(Event) {}

// DepositEvent is emitted when stake is deposited.
type DepositEvent struct {
	Account common.Address
	Amount  *big.Int
}

// WithdrawEvent is emitted when stake is returned.
type WithdrawEvent struct {
	Account common.Address
	Amount  *big.Int
}

// RewardPaidEvent is emitted when accrued reward is paid out.
type RewardPaidEvent struct {
	Account common.Address
	Amount  *big.Int
}

// EmergencyWithdrawEvent is emitted when a position exits forfeiting
// its pending reward.
type EmergencyWithdrawEvent struct {
	Account common.Address
	Amount  *big.Int
}

func (DepositEvent) eventName() string           { return "deposit" }
func (WithdrawEvent) eventName() string          { return "withdraw" }
func (RewardPaidEvent) eventName() string        { return "reward_paid" }
func (EmergencyWithdrawEvent) eventName() string { return "emergency_withdraw" }
