package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/obslog"
)

type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	CallTimeout     time.Duration
	ConfirmTimeout  time.Duration
}

// Chain talks to the betting contract over JSON-RPC.
type Chain struct {
	cfg      Config
	client   *ethclient.Client
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
	chainID  *big.Int
	key      *ecdsa.PrivateKey

	sendMu sync.Mutex // one outstanding nonce at a time
}

func parseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(contractABI))
}

// Dial connects to the node and prepares the owner transactor.
func Dial(ctx context.Context, cfg Config) (*Chain, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" || strings.TrimSpace(cfg.ContractAddress) == "" || strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, fmt.Errorf("RPC_URL, CONTRACT_ADDRESS and OWNER_PRIVATE_KEY are required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address: %w", ErrBadAddress)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	parsed, err := parseABI()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("owner key: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	client, err := ethclient.DialContext(dctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(dctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &Chain{
		cfg:      cfg,
		client:   client,
		abi:      parsed,
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		chainID:  chainID,
		key:      key,
	}
	obslog.L().Info("ledger_connected",
		zap.String("contract", address.Hex()),
		zap.String("chain_id", chainID.String()),
		zap.String("owner", crypto.PubkeyToAddress(key.PublicKey).Hex()),
	)
	return c, nil
}

func (c *Chain) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
	}
}

func (c *Chain) Enabled() bool { return true }

// Address returns the contract address.
func (c *Chain) Address() common.Address { return c.address }

// ABI returns the parsed contract ABI.
func (c *Chain) ABI() abi.ABI { return c.abi }

// LogSource exposes the node for the event poller.
func (c *Chain) LogSource() LogSource { return c.client }

func (c *Chain) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: cctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (c *Chain) GetBet(ctx context.Context, betID string) (*Bet, error) {
	id, err := ParseBetID(betID)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, "getBet", id)
	if err != nil {
		return nil, err
	}
	bet, err := betFromOutputs(id, out)
	if err != nil {
		return nil, err
	}
	if expired, err := c.call(ctx, "isBetExpired", id); err == nil && len(expired) == 1 {
		bet.Expired, _ = expired[0].(bool)
	}
	return bet, nil
}

// betFromOutputs converts getBet return values; a zero player1 means no such bet.
func betFromOutputs(id *big.Int, out []interface{}) (*Bet, error) {
	if len(out) != 9 {
		return nil, fmt.Errorf("getBet: unexpected %d outputs", len(out))
	}
	p1, ok1 := out[0].(common.Address)
	p2, ok2 := out[1].(common.Address)
	amount, ok3 := out[2].(*big.Int)
	winner, ok4 := out[3].(common.Address)
	status, ok5 := out[4].(uint8)
	result, ok6 := out[5].(uint8)
	created, ok7 := out[6].(*big.Int)
	completed, ok8 := out[7].(*big.Int)
	hash, ok9 := out[8].([32]byte)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return nil, fmt.Errorf("getBet: unexpected output types")
	}
	if p1 == (common.Address{}) {
		return nil, ErrBetNotFound
	}
	bet := &Bet{
		ID:          id.String(),
		Player1:     p1.Hex(),
		Player2:     p2.Hex(),
		Amount:      amount,
		AmountEther: FormatEther(amount),
		Winner:      winner.Hex(),
		Status:      BetStatus(status),
		StatusName:  BetStatus(status).String(),
		Result:      GameResult(result),
		ResultName:  GameResult(result).String(),
		CreatedAt:   time.Unix(created.Int64(), 0).UTC(),
		GameHash:    common.Hash(hash).Hex(),
	}
	if completed.Sign() > 0 {
		t := time.Unix(completed.Int64(), 0).UTC()
		bet.CompletedAt = &t
	}
	return bet, nil
}

func (c *Chain) DeclareWinner(ctx context.Context, betID, winner string) (*Receipt, error) {
	id, err := ParseBetID(betID)
	if err != nil {
		return nil, err
	}
	if !ValidAddress(winner) {
		return nil, fmt.Errorf("winner %q: %w", winner, ErrBadAddress)
	}
	return c.transact(ctx, "declareWinner", id, common.HexToAddress(winner))
}

func (c *Chain) DeclareDraw(ctx context.Context, betID string) (*Receipt, error) {
	id, err := ParseBetID(betID)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, "declareDraw", id)
}

func (c *Chain) transact(ctx context.Context, method string, args ...interface{}) (*Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	opts.Context = sctx

	c.sendMu.Lock()
	tx, err := c.contract.Transact(opts, method, args...)
	c.sendMu.Unlock()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	obslog.L().Info("ledger_tx_sent", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	wctx, wcancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer wcancel()
	receipt, err := bind.WaitMined(wctx, c.client, tx)
	if err != nil {
		return nil, fmt.Errorf("%s wait: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}
	out := &Receipt{TxHash: tx.Hash().Hex(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.Block = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

func (c *Chain) PlayerStats(ctx context.Context, address string) (*PlayerStats, error) {
	if !ValidAddress(address) {
		return nil, ErrBadAddress
	}
	addr := common.HexToAddress(address)
	out, err := c.call(ctx, "getPlayerStats", addr)
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("getPlayerStats: unexpected %d outputs", len(out))
	}
	vals := make([]uint64, 4)
	for i, v := range out {
		n, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("getPlayerStats: output %d is %T", i, v)
		}
		vals[i] = n.Uint64()
	}
	return &PlayerStats{Address: addr.Hex(), Wins: vals[0], Losses: vals[1], Draws: vals[2], TotalGames: vals[3]}, nil
}

func (c *Chain) uintCall(ctx context.Context, method string) (*big.Int, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected %d outputs", method, len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: output is %T", method, out[0])
	}
	return n, nil
}

func (c *Chain) Status(ctx context.Context) (*ChainStatus, error) {
	total, err := c.uintCall(ctx, "betCounter")
	if err != nil {
		return nil, err
	}
	active, err := c.uintCall(ctx, "getActiveBetsCount")
	if err != nil {
		return nil, err
	}
	st := &ChainStatus{
		Enabled:    true,
		TotalBets:  total.Uint64(),
		ActiveBets: active.Uint64(),
		ChainID:    c.chainID.String(),
		Contract:   c.address.Hex(),
	}
	bctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if head, err := c.client.BlockNumber(bctx); err == nil {
		st.Block = head
	}
	return st, nil
}

// AvailableBets scans the newest bet ids for bets still waiting for a second player.
func (c *Chain) AvailableBets(ctx context.Context, limit int) ([]*Bet, error) {
	if limit <= 0 {
		limit = 50
	}
	counter, err := c.uintCall(ctx, "betCounter")
	if err != nil {
		return nil, err
	}
	out := []*Bet{}
	id := new(big.Int).Set(counter)
	for scanned := 0; scanned < limit && id.Sign() >= 0; scanned++ {
		bet, err := c.GetBet(ctx, id.String())
		switch {
		case err == nil:
			if bet.Status == BetCreated && !bet.Expired {
				out = append(out, bet)
			}
		case !errors.Is(err, ErrBetNotFound):
			return nil, err
		}
		id.Sub(id, big.NewInt(1))
	}
	return out, nil
}
