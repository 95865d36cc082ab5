package ledger

import (
	"context"
	"math/big"
	"sync"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type fakeNode struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
}

func (f *fakeNode) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeNode) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

type memCursor struct {
	block uint64
	set   bool
}

func (m *memCursor) LoadCursor(context.Context) (uint64, bool, error) { return m.block, m.set, nil }
func (m *memCursor) SaveCursor(_ context.Context, b uint64) error {
	m.block, m.set = b, true
	return nil
}

func eventLog(t *testing.T, name string, block uint64, bet int64, who *common.Address, args ...interface{}) types.Log {
	t.Helper()
	parsed, err := parseABI()
	require.NoError(t, err)
	ev := parsed.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	topics := []common.Hash{ev.ID, common.BigToHash(big.NewInt(bet))}
	if who != nil {
		topics = append(topics, common.BytesToHash(who.Bytes()))
	}
	return types.Log{
		Address:     contract,
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func TestPollerDecodesAndPublishes(t *testing.T) {
	node := &fakeNode{head: 10}
	node.logs = []types.Log{
		eventLog(t, "BetCreated", 11, 7, &alice, ether(1), [32]byte{1}),
		eventLog(t, "BetJoined", 12, 7, &bob, ether(2)),
		eventLog(t, "BetCompleted", 13, 7, &bob, big.NewInt(1_900_000_000_000_000_000), uint8(ResultPlayer2Wins)),
		eventLog(t, "DrawDeclared", 13, 8, nil, ether(1)),
	}
	cursor := &memCursor{}
	p, err := NewPoller(node, contract, WithCursorStore(cursor))
	require.NoError(t, err)

	ch, cancel := p.Subscribe(8)
	defer cancel()

	// first poll primes at head: nothing old is replayed
	events, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(10), p.Cursor())

	node.head = 13
	events, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, uint64(13), cursor.block)

	created := <-ch
	assert.Equal(t, EventBetCreated, created.Kind)
	assert.Equal(t, "7", created.BetID)
	assert.Equal(t, alice.Hex(), created.Address)
	assert.Equal(t, "1", created.Amount)
	assert.Equal(t, common.Hash([32]byte{1}).Hex(), created.GameHash)

	joined := <-ch
	assert.Equal(t, EventBetJoined, joined.Kind)
	assert.Equal(t, bob.Hex(), joined.Address)
	assert.Equal(t, "2", joined.Amount)

	completed := <-ch
	assert.Equal(t, EventBetCompleted, completed.Kind)
	assert.Equal(t, ResultPlayer2Wins, completed.Result)
	assert.Equal(t, "1.9", completed.Amount)

	draw := <-ch
	assert.Equal(t, EventDrawDeclared, draw.Kind)
	assert.Equal(t, "8", draw.BetID)
	assert.Empty(t, draw.Address)
}

func TestPollerResumesFromStoredCursor(t *testing.T) {
	node := &fakeNode{head: 20}
	node.logs = []types.Log{
		eventLog(t, "BetCancelled", 15, 3, &alice, ether(1)),
		eventLog(t, "BetCancelled", 5, 2, &alice, ether(1)),
	}
	p, err := NewPoller(node, contract, WithCursorStore(&memCursor{block: 9, set: true}))
	require.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventBetCancelled, events[0].Kind)
	assert.Equal(t, "3", events[0].BetID)
	assert.Equal(t, uint64(10), node.queries[0].FromBlock.Uint64())
}

func TestPollerRespectsMaxRange(t *testing.T) {
	node := &fakeNode{head: 100}
	p, err := NewPoller(node, contract, WithStartBlock(1), WithMaxRange(30))
	require.NoError(t, err)

	_, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(30), p.Cursor())
	_, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(60), p.Cursor())
}

func TestPollerSkipsUnknownLogs(t *testing.T) {
	node := &fakeNode{head: 1}
	node.logs = []types.Log{{
		Address:     contract,
		Topics:      []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		BlockNumber: 2,
	}}
	p, err := NewPoller(node, contract)
	require.NoError(t, err)
	_, err = p.PollOnce(context.Background())
	require.NoError(t, err)

	node.head = 2
	events, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(2), p.Cursor())
}
