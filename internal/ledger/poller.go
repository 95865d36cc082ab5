package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/obslog"
)

// LogSource is the slice of a node the poller needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// CursorStore persists the last fully processed block.
type CursorStore interface {
	LoadCursor(ctx context.Context) (uint64, bool, error)
	SaveCursor(ctx context.Context, block uint64) error
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption { return func(p *Poller) { p.interval = d } }

func WithStartBlock(b uint64) PollerOption { return func(p *Poller) { p.startBlock = b } }

func WithCursorStore(cs CursorStore) PollerOption { return func(p *Poller) { p.cursors = cs } }

// WithMaxRange caps the block span of one FilterLogs request.
func WithMaxRange(n uint64) PollerOption { return func(p *Poller) { p.maxRange = n } }

// Poller turns contract logs into a stream of typed events.
// The node offers no push filters, so it polls on an interval.
type Poller struct {
	src        LogSource
	abi        abi.ABI
	address    common.Address
	interval   time.Duration
	startBlock uint64
	maxRange   uint64
	cursors    CursorStore

	mu      sync.Mutex
	cursor  uint64
	primed  bool
	subs    map[int]chan Event
	nextSub int
}

func NewPoller(src LogSource, address common.Address, opts ...PollerOption) (*Poller, error) {
	parsed, err := parseABI()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	p := &Poller{
		src:      src,
		abi:      parsed,
		address:  address,
		interval: 5 * time.Second,
		maxRange: 2000,
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Subscribe registers a buffered listener. Slow listeners lose events rather than stall the poller.
func (p *Poller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Cursor returns the last processed block.
func (p *Poller) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			obslog.L().Warn("ledger_poll_failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Poller) prime(ctx context.Context, head uint64) error {
	if p.cursors != nil {
		if c, ok, err := p.cursors.LoadCursor(ctx); err != nil {
			return fmt.Errorf("load cursor: %w", err)
		} else if ok {
			p.cursor = c
			p.primed = true
			return nil
		}
	}
	switch {
	case p.startBlock > 0:
		p.cursor = p.startBlock - 1
	default:
		p.cursor = head
	}
	p.primed = true
	return nil
}

// PollOnce fetches and publishes logs up to the current head; it returns the events seen.
func (p *Poller) PollOnce(ctx context.Context) ([]Event, error) {
	head, err := p.src.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	p.mu.Lock()
	if !p.primed {
		if err := p.prime(ctx, head); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	from := p.cursor + 1
	p.mu.Unlock()

	if from > head {
		return nil, nil
	}
	to := head
	if p.maxRange > 0 && to-from+1 > p.maxRange {
		to = from + p.maxRange - 1
	}

	logs, err := p.src.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{p.address},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	var events []Event
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := p.decode(lg)
		if err != nil {
			obslog.L().Debug("ledger_log_skipped", zap.String("tx", lg.TxHash.Hex()), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}

	p.mu.Lock()
	p.cursor = to
	for _, ev := range events {
		p.publishLocked(ev)
	}
	p.mu.Unlock()

	if p.cursors != nil {
		if err := p.cursors.SaveCursor(ctx, to); err != nil {
			obslog.L().Warn("ledger_cursor_save_failed", zap.Uint64("block", to), zap.Error(err))
		}
	}
	return events, nil
}

func (p *Poller) publishLocked(ev Event) {
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			obslog.L().Warn("ledger_event_dropped", zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)), zap.String("bet_id", ev.BetID))
		}
	}
}

func (p *Poller) decode(lg types.Log) (Event, error) {
	if len(lg.Topics) < 2 {
		return Event{}, fmt.Errorf("log has %d topics", len(lg.Topics))
	}
	def, err := p.abi.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, err
	}
	data := map[string]interface{}{}
	if len(lg.Data) > 0 {
		if err := p.abi.UnpackIntoMap(data, def.Name, lg.Data); err != nil {
			return Event{}, fmt.Errorf("unpack %s: %w", def.Name, err)
		}
	}

	ev := Event{
		Kind:     EventKind(def.Name),
		BetID:    new(big.Int).SetBytes(lg.Topics[1].Bytes()).String(),
		Block:    lg.BlockNumber,
		TxHash:   lg.TxHash.Hex(),
		LogIndex: lg.Index,
	}
	indexedAddress := func() string {
		if len(lg.Topics) < 3 {
			return ""
		}
		return common.BytesToAddress(lg.Topics[2].Bytes()).Hex()
	}
	amount := func(key string) string {
		if v, ok := data[key].(*big.Int); ok {
			return FormatEther(v)
		}
		return ""
	}

	switch ev.Kind {
	case EventBetCreated:
		ev.Address = indexedAddress()
		ev.Amount = amount("amount")
		if h, ok := data["gameHash"].([32]byte); ok {
			ev.GameHash = common.Hash(h).Hex()
		}
	case EventBetJoined:
		ev.Address = indexedAddress()
		ev.Amount = amount("totalPool")
	case EventBetCompleted:
		ev.Address = indexedAddress()
		ev.Amount = amount("payout")
		if r, ok := data["result"].(uint8); ok {
			ev.Result = GameResult(r)
		}
	case EventDrawDeclared:
		ev.Amount = amount("refundAmount")
		ev.Result = ResultDraw
	case EventBetCancelled:
		ev.Address = indexedAddress()
		ev.Amount = amount("refundAmount")
	default:
		return Event{}, fmt.Errorf("unhandled event %s", def.Name)
	}
	return ev, nil
}
