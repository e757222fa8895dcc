// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Factory maps every unordered currency pair to at most one Pair and
// creates pairs lazily. Pairs are never destroyed; a drained pair stays
// registered with zero reserves.
type Factory struct {
	mu sync.RWMutex

	ledger Ledger
	sink   EventSink
	log    log.Logger

	pairs    map[common.Hash]*Pair
	allPairs []*Pair
}

// NewFactory creates an empty registry over the given ledger. A nil
// sink discards events; a nil logger gets a default.
func NewFactory(ledger Ledger, sink EventSink, logger log.Logger) *Factory {
	if sink == nil {
		sink = NoopSink{}
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Factory{
		ledger: ledger,
		sink:   sink,
		log:    logger,
		pairs:  make(map[common.Hash]*Pair),
	}
}

// CreatePair registers the pair for (a, b). Idempotence is the caller's
// choice: duplicate creation fails with ErrPairExists.
func (f *Factory) CreatePair(a, b Currency) (*Pair, error) {
	key, err := NewPairKey(a, b)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := key.ID()
	if _, exists := f.pairs[id]; exists {
		return nil, ErrPairExists
	}

	pair := newPair(key, f.ledger, f.sink, f.log)
	f.pairs[id] = pair
	f.allPairs = append(f.allPairs, pair)

	f.sink.Emit(PairCreatedEvent{
		Token0: key.Token0,
		Token1: key.Token1,
		Pair:   pair.Account(),
	})
	f.log.Info("pair created",
		"token0", key.Token0.Address,
		"token1", key.Token1.Address,
		"pair", pair.Account())
	return pair, nil
}

// GetPair returns the pair for (a, b) in either order, or
// ErrPairNotFound.
func (f *Factory) GetPair(a, b Currency) (*Pair, error) {
	key, err := NewPairKey(a, b)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	pair, ok := f.pairs[key.ID()]
	if !ok {
		return nil, ErrPairNotFound
	}
	return pair, nil
}

// PairFor returns the pair for (a, b), creating it on first reference.
func (f *Factory) PairFor(a, b Currency) (*Pair, error) {
	pair, err := f.GetPair(a, b)
	if err == nil {
		return pair, nil
	}
	if err != ErrPairNotFound {
		return nil, err
	}
	pair, err = f.CreatePair(a, b)
	if err == ErrPairExists {
		// Lost a create race; the pair is there now.
		return f.GetPair(a, b)
	}
	return pair, err
}

// AllPairs returns the registered pairs in creation order.
func (f *Factory) AllPairs() []*Pair {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Pair, len(f.allPairs))
	copy(out, f.allPairs)
	return out
}

// PairCount returns the number of registered pairs.
func (f *Factory) PairCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allPairs)
}

// Ledger returns the asset ledger the factory's pairs settle against.
func (f *Factory) Ledger() Ledger { return f.ledger }
