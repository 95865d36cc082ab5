package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1", FormatEther(ether(1)))
	assert.Equal(t, "0.05", FormatEther(big.NewInt(50_000_000_000_000_000)))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestParseBetID(t *testing.T) {
	id, err := ParseBetID("0042")
	require.NoError(t, err)
	assert.Equal(t, "42", id.String())

	for _, bad := range []string{"", "-1", "+1", "abc", "1.5", "0x10"} {
		_, err := ParseBetID(bad)
		assert.ErrorIs(t, err, ErrBadBetID, bad)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256).String()
	_, err = ParseBetID(huge)
	assert.ErrorIs(t, err, ErrBadBetID)
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, ValidAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8"))
	assert.False(t, ValidAddress("70997970c51812dc3a010c7d01b50e0d17dc79c8"))
	assert.False(t, ValidAddress("0x1234"))

	sum, err := ChecksumAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	require.NoError(t, err)
	assert.Equal(t, alice.Hex(), sum)
}

func packedGetBet(t *testing.T, p1, p2 common.Address, status BetStatus) []interface{} {
	t.Helper()
	parsed, err := parseABI()
	require.NoError(t, err)
	hash := [32]byte{0xab}
	raw, err := parsed.Methods["getBet"].Outputs.Pack(
		p1, p2, ether(2), common.Address{}, uint8(status), uint8(ResultPending),
		big.NewInt(1_700_000_000), big.NewInt(0), hash,
	)
	require.NoError(t, err)
	out, err := parsed.Unpack("getBet", raw)
	require.NoError(t, err)
	return out
}

func TestBetFromOutputs(t *testing.T) {
	out := packedGetBet(t, alice, bob, BetActive)
	bet, err := betFromOutputs(big.NewInt(7), out)
	require.NoError(t, err)

	assert.Equal(t, "7", bet.ID)
	assert.Equal(t, alice.Hex(), bet.Player1)
	assert.Equal(t, "2", bet.AmountEther)
	assert.Equal(t, BetActive, bet.Status)
	assert.Equal(t, "active", bet.StatusName)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), bet.CreatedAt)
	assert.Nil(t, bet.CompletedAt)
	assert.True(t, bet.IsParticipant("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"))
	assert.False(t, bet.IsParticipant("0x90F79bf6EB2c4f870365E785982E1f101E93b906"))
	assert.False(t, bet.IsParticipant(""))
}

func TestBetFromOutputsZeroPlayerIsNotFound(t *testing.T) {
	out := packedGetBet(t, common.Address{}, common.Address{}, BetCreated)
	_, err := betFromOutputs(big.NewInt(99), out)
	assert.ErrorIs(t, err, ErrBetNotFound)
}

func TestPendingBetIgnoresZeroSecondPlayer(t *testing.T) {
	out := packedGetBet(t, alice, common.Address{}, BetCreated)
	bet, err := betFromOutputs(big.NewInt(3), out)
	require.NoError(t, err)
	assert.False(t, bet.IsParticipant(common.Address{}.Hex()))
	assert.True(t, bet.Status.Joinable())
}

func TestOfflineSkipsSettlement(t *testing.T) {
	var c Client = Offline{}
	assert.False(t, c.Enabled())

	r, err := c.DeclareWinner(context.Background(), "1", alice.Hex())
	require.NoError(t, err)
	assert.True(t, r.Skipped)
	r, err = c.DeclareDraw(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, r.Skipped)

	_, err = c.GetBet(context.Background(), "1")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestStatusNames(t *testing.T) {
	assert.Equal(t, "draw", BetDraw.String())
	assert.Equal(t, "disputed", BetDisputed.String())
	assert.False(t, BetCompleted.Joinable())
	assert.Equal(t, "player2", ResultPlayer2Wins.String())
}
