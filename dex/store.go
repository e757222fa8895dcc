// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Storage key prefixes for exchange state snapshots.
var (
	pairStatePrefix = []byte("dex/pair")
	pairIndexKey    = storageKey([]byte("dex/index"), nil)
)

const pairSnapshotVersion = byte(1)

// storageKey derives a fixed-width database key from prefix and id.
func storageKey(prefix []byte, id []byte) []byte {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key [32]byte
	h.Digest().Read(key[:])
	return key[:]
}

// StateStore persists pair snapshots (reserve mirrors and share
// ledgers) so a host can checkpoint and restore exchange state. Ledger
// balances themselves live with the host's ledger and are not part of
// the snapshot.
type StateStore struct {
	db database.Database
}

// NewStateStore wraps a database.
func NewStateStore(db database.Database) *StateStore {
	return &StateStore{db: db}
}

// SavePair writes the pair's snapshot.
func (s *StateStore) SavePair(p *Pair) error {
	id := p.Key().ID()
	return s.db.Put(storageKey(pairStatePrefix, id[:]), encodePair(p))
}

// LoadPair fills the pair's reserves and share ledger from its
// snapshot. Returns database.ErrNotFound when no snapshot exists.
func (s *StateStore) LoadPair(p *Pair) error {
	id := p.Key().ID()
	raw, err := s.db.Get(storageKey(pairStatePrefix, id[:]))
	if err != nil {
		return err
	}
	return decodePair(p, raw)
}

// SaveFactory snapshots the pair index and every registered pair.
func (s *StateStore) SaveFactory(f *Factory) error {
	pairs := f.AllPairs()

	var index bytes.Buffer
	writeUint32(&index, uint32(len(pairs)))
	for _, p := range pairs {
		key := p.Key()
		index.Write(key.Token0.Address.Bytes())
		index.Write(key.Token1.Address.Bytes())
	}
	if err := s.db.Put(pairIndexKey, index.Bytes()); err != nil {
		return err
	}

	for _, p := range pairs {
		if err := s.SavePair(p); err != nil {
			return err
		}
	}
	return nil
}

// RestoreFactory recreates every indexed pair in the factory and loads
// its snapshot. The factory must be empty.
func (s *StateStore) RestoreFactory(f *Factory) error {
	raw, err := s.db.Get(pairIndexKey)
	if err != nil {
		return err
	}
	rd := bytes.NewReader(raw)
	count, err := readUint32(rd)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var a, b common.Address
		if _, err := rd.Read(a[:]); err != nil {
			return fmt.Errorf("pair index truncated: %w", err)
		}
		if _, err := rd.Read(b[:]); err != nil {
			return fmt.Errorf("pair index truncated: %w", err)
		}
		pair, err := f.CreatePair(Currency{Address: a}, Currency{Address: b})
		if err != nil {
			return err
		}
		if err := s.LoadPair(pair); err != nil {
			return err
		}
	}
	return nil
}

// =========================================================================
// Codec
// =========================================================================

func encodePair(p *Pair) []byte {
	var buf bytes.Buffer
	buf.WriteByte(pairSnapshotVersion)
	writeAmount(&buf, p.reserve0)
	writeAmount(&buf, p.reserve1)
	writeAmount(&buf, p.totalShares)

	holders := make([]common.Address, 0, len(p.shares))
	for addr, bal := range p.shares {
		if bal.Sign() > 0 {
			holders = append(holders, addr)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return bytes.Compare(holders[i][:], holders[j][:]) < 0
	})

	writeUint32(&buf, uint32(len(holders)))
	for _, addr := range holders {
		buf.Write(addr.Bytes())
		writeAmount(&buf, p.shares[addr])
	}
	return buf.Bytes()
}

func decodePair(p *Pair, raw []byte) error {
	rd := bytes.NewReader(raw)
	version, err := rd.ReadByte()
	if err != nil {
		return err
	}
	if version != pairSnapshotVersion {
		return fmt.Errorf("unknown pair snapshot version %d", version)
	}

	if p.reserve0, err = readAmount(rd); err != nil {
		return err
	}
	if p.reserve1, err = readAmount(rd); err != nil {
		return err
	}
	if p.totalShares, err = readAmount(rd); err != nil {
		return err
	}

	count, err := readUint32(rd)
	if err != nil {
		return err
	}
	p.shares = make(map[common.Address]*big.Int, count)
	for i := uint32(0); i < count; i++ {
		var addr common.Address
		if _, err := rd.Read(addr[:]); err != nil {
			return fmt.Errorf("pair snapshot truncated: %w", err)
		}
		bal, err := readAmount(rd)
		if err != nil {
			return err
		}
		p.shares[addr] = bal
	}
	return nil
}

// writeAmount encodes a non-negative big.Int as a 32-byte big-endian
// word, the ledger's native width.
func writeAmount(buf *bytes.Buffer, v *big.Int) {
	var word [32]byte
	v.FillBytes(word[:])
	buf.Write(word[:])
}

func readAmount(rd *bytes.Reader) (*big.Int, error) {
	var word [32]byte
	if _, err := rd.Read(word[:]); err != nil {
		return nil, fmt.Errorf("amount truncated: %w", err)
	}
	return new(big.Int).SetBytes(word[:]), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], v)
	buf.Write(word[:])
}

func readUint32(rd *bytes.Reader) (uint32, error) {
	var word [4]byte
	if _, err := rd.Read(word[:]); err != nil {
		return 0, fmt.Errorf("count truncated: %w", err)
	}
	return binary.BigEndian.Uint32(word[:]), nil
}
