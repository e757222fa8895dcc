// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package farm

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

const engineSnapshotVersion = byte(1)

var engineStatePrefix = []byte("farm/state")

// Store persists engine snapshots so a host can checkpoint and restore
// accrual state. Ledger balances are the host ledger's concern and not
// part of the snapshot.
type Store struct {
	db database.Database
}

// NewStore wraps a database.
func NewStore(db database.Database) *Store {
	return &Store{db: db}
}

func engineKey(e *Engine) []byte {
	h := blake3.New()
	h.Write(engineStatePrefix)
	h.Write(e.account.Bytes())
	var key [32]byte
	h.Digest().Read(key[:])
	return key[:]
}

// Save writes the engine's snapshot.
func (s *Store) Save(e *Engine) error {
	var buf bytes.Buffer
	buf.WriteByte(engineSnapshotVersion)
	writeWord(&buf, e.accRewardPerShare)
	writeWord(&buf, e.totalStaked)
	writeWord(&buf, e.paidOut)
	writeInt64(&buf, e.lastAccrual)

	accounts := make([]common.Address, 0, len(e.stakers))
	for addr := range e.stakers {
		accounts = append(accounts, addr)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(accounts)))
	buf.Write(word[:])
	for _, addr := range accounts {
		st := e.stakers[addr]
		buf.Write(addr.Bytes())
		writeWord(&buf, st.Amount)
		writeWord(&buf, st.RewardDebt)
	}
	return s.db.Put(engineKey(e), buf.Bytes())
}

// Load fills the engine's accrual state from its snapshot. Returns
// database.ErrNotFound when no snapshot exists.
func (s *Store) Load(e *Engine) error {
	raw, err := s.db.Get(engineKey(e))
	if err != nil {
		return err
	}
	rd := bytes.NewReader(raw)
	version, err := rd.ReadByte()
	if err != nil {
		return err
	}
	if version != engineSnapshotVersion {
		return fmt.Errorf("unknown farm snapshot version %d", version)
	}

	if e.accRewardPerShare, err = readWord(rd); err != nil {
		return err
	}
	if e.totalStaked, err = readWord(rd); err != nil {
		return err
	}
	if e.paidOut, err = readWord(rd); err != nil {
		return err
	}
	if e.lastAccrual, err = readInt64(rd); err != nil {
		return err
	}

	var word [4]byte
	if _, err := rd.Read(word[:]); err != nil {
		return fmt.Errorf("staker count truncated: %w", err)
	}
	count := binary.BigEndian.Uint32(word[:])
	e.stakers = make(map[common.Address]*Staker, count)
	for i := uint32(0); i < count; i++ {
		var addr common.Address
		if _, err := rd.Read(addr[:]); err != nil {
			return fmt.Errorf("staker snapshot truncated: %w", err)
		}
		amount, err := readWord(rd)
		if err != nil {
			return err
		}
		debt, err := readWord(rd)
		if err != nil {
			return err
		}
		e.stakers[addr] = &Staker{Amount: amount, RewardDebt: debt}
	}
	return nil
}

// writeWord encodes a non-negative big.Int as a 32-byte big-endian
// word.
func writeWord(buf *bytes.Buffer, v *big.Int) {
	var word [32]byte
	v.FillBytes(word[:])
	buf.Write(word[:])
}

func readWord(rd *bytes.Reader) (*big.Int, error) {
	var word [32]byte
	if _, err := rd.Read(word[:]); err != nil {
		return nil, fmt.Errorf("word truncated: %w", err)
	}
	return new(big.Int).SetBytes(word[:]), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], uint64(v))
	buf.Write(word[:])
}

func readInt64(rd *bytes.Reader) (int64, error) {
	var word [8]byte
	if _, err := rd.Read(word[:]); err != nil {
		return 0, fmt.Errorf("timestamp truncated: %w", err)
	}
	return int64(binary.BigEndian.Uint64(word[:])), nil
}
