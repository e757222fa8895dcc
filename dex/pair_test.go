// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = Currency{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	tokenB = Currency{Address: common.HexToAddress("0x2222222222222222222222222222222222222222")}
	tokenC = Currency{Address: common.HexToAddress("0x3333333333333333333333333333333333333333")}

	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func newTestFactory(t *testing.T) (*MemLedger, *Factory) {
	t.Helper()
	ledger := NewMemLedger()
	return ledger, NewFactory(ledger, nil, nil)
}

func fund(ledger *MemLedger, token Currency, account common.Address, amount int64) {
	ledger.Mint(token, account, uint256.NewInt(uint64(amount)))
}

// deposit transfers (amount0, amount1) from `from` into the pair
// account without minting. Token0/token1 orientation is the pair's.
func deposit(t *testing.T, ledger *MemLedger, pair *Pair, from common.Address, amount0, amount1 int64) {
	t.Helper()
	if amount0 > 0 {
		require.NoError(t, ledger.Transfer(pair.Key().Token0, from, pair.Account(), uint256.NewInt(uint64(amount0))))
	}
	if amount1 > 0 {
		require.NoError(t, ledger.Transfer(pair.Key().Token1, from, pair.Account(), uint256.NewInt(uint64(amount1))))
	}
}

func balanceOf(ledger *MemLedger, token Currency, account common.Address) int64 {
	return int64(ledger.BalanceOf(token, account).Uint64())
}

// seedPair creates an A/B pair funded with the given reserves, minted
// to alice.
func seedPair(t *testing.T, reserve0, reserve1 int64) (*MemLedger, *Factory, *Pair) {
	t.Helper()
	ledger, factory := newTestFactory(t)
	pair, err := factory.CreatePair(tokenA, tokenB)
	require.NoError(t, err)

	fund(ledger, pair.Key().Token0, alice, reserve0)
	fund(ledger, pair.Key().Token1, alice, reserve1)
	deposit(t, ledger, pair, alice, reserve0, reserve1)
	_, err = pair.Mint(alice)
	require.NoError(t, err)
	return ledger, factory, pair
}

func TestPairBootstrapMint(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 4000)

	// floor(sqrt(1000*4000)) = 2000
	require.Equal(t, int64(2000), pair.TotalShares().Int64())
	require.Equal(t, int64(2000), pair.SharesOf(alice).Int64())

	r0, r1 := pair.Reserves()
	require.Equal(t, int64(1000), r0.Int64())
	require.Equal(t, int64(4000), r1.Int64())
	require.Equal(t, int64(1000), balanceOf(ledger, pair.Key().Token0, pair.Account()))
	require.Equal(t, int64(4000), balanceOf(ledger, pair.Key().Token1, pair.Account()))
}

func TestPairProportionalMint(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 4000)

	fund(ledger, pair.Key().Token0, bob, 100)
	fund(ledger, pair.Key().Token1, bob, 400)
	deposit(t, ledger, pair, bob, 100, 400)
	minted, err := pair.Mint(bob)
	require.NoError(t, err)

	// min(100*2000/1000, 400*2000/4000) = 200
	require.Equal(t, int64(200), minted.Int64())
	require.Equal(t, int64(2200), pair.TotalShares().Int64())
	require.Equal(t, int64(200), pair.SharesOf(bob).Int64())
}

func TestPairMintOffRatio(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 4000)

	// Excess token1 is donated to the pool: min side governs.
	fund(ledger, pair.Key().Token0, bob, 100)
	fund(ledger, pair.Key().Token1, bob, 4000)
	deposit(t, ledger, pair, bob, 100, 4000)
	minted, err := pair.Mint(bob)
	require.NoError(t, err)
	require.Equal(t, int64(200), minted.Int64())

	// The donated excess now backs all shares.
	r0, r1 := pair.Reserves()
	require.Equal(t, int64(1100), r0.Int64())
	require.Equal(t, int64(8000), r1.Int64())
}

func TestPairMintDust(t *testing.T) {
	_, _, pair := seedPair(t, 1000, 4000)

	// No deposit since the last sync rounds to zero shares.
	_, err := pair.Mint(bob)
	require.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
	require.Equal(t, int64(2000), pair.TotalShares().Int64())
}

func TestPairBurn(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 4000)

	amount0, amount1, err := pair.Burn(alice, big.NewInt(500), bob)
	require.NoError(t, err)
	require.Equal(t, int64(250), amount0.Int64())
	require.Equal(t, int64(1000), amount1.Int64())

	require.Equal(t, int64(250), balanceOf(ledger, pair.Key().Token0, bob))
	require.Equal(t, int64(1000), balanceOf(ledger, pair.Key().Token1, bob))
	require.Equal(t, int64(1500), pair.TotalShares().Int64())
	require.Equal(t, int64(1500), pair.SharesOf(alice).Int64())

	r0, r1 := pair.Reserves()
	require.Equal(t, int64(750), r0.Int64())
	require.Equal(t, int64(3000), r1.Int64())
}

func TestPairBurnFloorsTowardPool(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	// 3 shares of 1000 over 1000 units: floor(3*1000/1000) = 3, but
	// with reserves 1001 the remainder stays in the pool.
	fund(ledger, pair.Key().Token0, bob, 1)
	deposit(t, ledger, pair, bob, 1, 0)
	require.NoError(t, pair.Sync())

	amount0, _, err := pair.Burn(alice, big.NewInt(3), bob)
	require.NoError(t, err)
	require.Equal(t, int64(3), amount0.Int64()) // floor(3*1001/1000)
}

func TestPairBurnInsufficientShares(t *testing.T) {
	_, _, pair := seedPair(t, 1000, 4000)

	_, _, err := pair.Burn(alice, big.NewInt(2001), bob)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = pair.Burn(bob, big.NewInt(1), bob)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = pair.Burn(alice, big.NewInt(0), bob)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPairSwap(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	fund(ledger, pair.Key().Token0, bob, 100)
	deposit(t, ledger, pair, bob, 100, 0)
	require.NoError(t, pair.Swap(bob, big.NewInt(0), big.NewInt(90), bob))

	require.Equal(t, int64(90), balanceOf(ledger, pair.Key().Token1, bob))
	r0, r1 := pair.Reserves()
	require.Equal(t, int64(1100), r0.Int64())
	require.Equal(t, int64(910), r1.Int64())
}

func TestPairSwapInvariantViolation(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	fund(ledger, pair.Key().Token0, bob, 100)
	deposit(t, ledger, pair, bob, 100, 0)

	// 1100 * 905 < 1000 * 1000 is false; 1100*905=995500 < 1e6.
	err := pair.Swap(bob, big.NewInt(0), big.NewInt(95), bob)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// Nothing was paid out.
	require.Equal(t, int64(0), balanceOf(ledger, pair.Key().Token1, bob))
}

func TestPairSwapValidation(t *testing.T) {
	_, _, pair := seedPair(t, 1000, 1000)

	err := pair.Swap(bob, big.NewInt(0), big.NewInt(0), bob)
	require.ErrorIs(t, err, ErrNoOutputRequested)

	err = pair.Swap(bob, big.NewInt(0), big.NewInt(1000), bob)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// Output requested without any input transferred in.
	err = pair.Swap(bob, big.NewInt(0), big.NewInt(1), bob)
	require.ErrorIs(t, err, ErrNoInputProvided)
}

func TestPairSwapDonationAbsorbed(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	// A donation counts as swap input for whoever calls next.
	fund(ledger, pair.Key().Token0, carol, 100)
	deposit(t, ledger, pair, carol, 100, 0)

	require.NoError(t, pair.Swap(bob, big.NewInt(0), big.NewInt(90), bob))
	require.Equal(t, int64(90), balanceOf(ledger, pair.Key().Token1, bob))
}

func TestPairInvariantMonotonic(t *testing.T) {
	ledger, _, pair := seedPair(t, 1_000_000, 1_000_000)
	fund(ledger, pair.Key().Token0, bob, 1_000_000)
	fund(ledger, pair.Key().Token1, bob, 1_000_000)

	product := func() *big.Int {
		r0, r1 := pair.Reserves()
		return new(big.Int).Mul(r0, r1)
	}

	last := product()
	for i, in := range []int64{5_000, 777, 123_456, 1, 90_909} {
		r0, r1 := pair.Reserves()
		var out *big.Int
		var err error
		if i%2 == 0 {
			out, err = GetAmountOut(big.NewInt(in), r0, r1)
			require.NoError(t, err)
			deposit(t, ledger, pair, bob, in, 0)
			require.NoError(t, pair.Swap(bob, big.NewInt(0), out, bob))
		} else {
			out, err = GetAmountOut(big.NewInt(in), r1, r0)
			require.NoError(t, err)
			deposit(t, ledger, pair, bob, 0, in)
			require.NoError(t, pair.Swap(bob, out, big.NewInt(0), bob))
		}
		next := product()
		require.GreaterOrEqual(t, next.Cmp(last), 0, "product shrank on step %d", i)
		last = next
	}
}

func TestPairSkim(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	fund(ledger, pair.Key().Token0, carol, 77)
	deposit(t, ledger, pair, carol, 77, 0)

	require.NoError(t, pair.Skim(bob))
	require.Equal(t, int64(77), balanceOf(ledger, pair.Key().Token0, bob))

	r0, _ := pair.Reserves()
	require.Equal(t, int64(1000), r0.Int64())
}

func TestPairSync(t *testing.T) {
	ledger, _, pair := seedPair(t, 1000, 1000)

	fund(ledger, pair.Key().Token0, carol, 77)
	deposit(t, ledger, pair, carol, 77, 0)

	require.NoError(t, pair.Sync())
	r0, r1 := pair.Reserves()
	require.Equal(t, int64(1077), r0.Int64())
	require.Equal(t, int64(1000), r1.Int64())
}

// reentrantLedger re-enters the pair from inside an outgoing transfer,
// the way a token with transfer hooks would.
type reentrantLedger struct {
	*MemLedger
	pair *Pair
	err  error
}

func (l *reentrantLedger) Transfer(token Currency, from, to common.Address, amount *uint256.Int) error {
	if l.pair != nil && from == l.pair.Account() {
		inner := l.pair
		l.pair = nil
		l.err = inner.Sync()
	}
	return l.MemLedger.Transfer(token, from, to, amount)
}

func TestPairReentrancyGuard(t *testing.T) {
	ledger := &reentrantLedger{MemLedger: NewMemLedger()}
	factory := NewFactory(ledger, nil, nil)
	pair, err := factory.CreatePair(tokenA, tokenB)
	require.NoError(t, err)

	fund(ledger.MemLedger, pair.Key().Token0, alice, 1000)
	fund(ledger.MemLedger, pair.Key().Token1, alice, 1000)
	deposit(t, ledger.MemLedger, pair, alice, 1000, 1000)
	_, err = pair.Mint(alice)
	require.NoError(t, err)

	// Arm the hook and trigger an outgoing transfer via Burn.
	ledger.pair = pair
	_, _, err = pair.Burn(alice, big.NewInt(100), bob)
	require.NoError(t, err)
	require.ErrorIs(t, ledger.err, ErrReentrant)
}
