package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/agrosync/internal/agent"
	"github.com/mrz1836/agrosync/internal/binding"
	"github.com/mrz1836/agrosync/internal/config"
	"github.com/mrz1836/agrosync/internal/metrics"
)

type receiptDecoder func(c *binding.Contract, raw *types.Receipt, out *Receipt)

// projectCreatedDecoder pulls the new project ID from the ProjectCreated log.
func projectCreatedDecoder(c *binding.Contract, raw *types.Receipt, out *Receipt) {
	ev, ok := c.ABI.Events["ProjectCreated"]
	if !ok {
		return
	}
	for _, l := range raw.Logs {
		if l == nil || l.Address != c.Address || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] == ev.ID {
			out.ProjectID = l.Topics[1].Big()
			return
		}
	}
}

type pendingTx struct {
	tx       *types.Transaction
	method   string
	from     common.Address
	backend  agent.Backend
	contract *binding.Contract
	decode   receiptDecoder
	poll     time.Duration
	logger   *config.Logger
}

func (p *pendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

func (p *pendingTx) Wait(ctx context.Context) (*Receipt, error) {
	raw, err := p.waitMined(ctx)
	if err != nil {
		return nil, err
	}

	if raw.Status != types.ReceiptStatusSuccessful {
		err := revertError(p.method, p.replayReason(ctx, raw), nil)
		metrics.Global.RecordTxResult(err)
		p.logger.Error("ledger: %s %s reverted", p.method, p.tx.Hash().Hex())
		return nil, err
	}

	out := &Receipt{
		TxHash:  raw.TxHash,
		GasUsed: raw.GasUsed,
		Raw:     raw,
	}
	if raw.BlockNumber != nil {
		out.BlockNumber = raw.BlockNumber.Uint64()
	}
	if p.decode != nil {
		p.decode(p.contract, raw, out)
	}
	metrics.Global.RecordTxResult(nil)
	p.logger.Info("ledger: %s %s confirmed in block %d", p.method, p.tx.Hash().Hex(), out.BlockNumber)
	return out, nil
}

func (p *pendingTx) waitMined(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		raw, err := p.backend.TransactionReceipt(ctx, p.tx.Hash())
		if err == nil && raw != nil {
			return raw, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			p.logger.Debug("ledger: receipt poll for %s: %v", p.tx.Hash().Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayReason re-executes a reverted transaction at its block to recover the reason.
func (p *pendingTx) replayReason(ctx context.Context, raw *types.Receipt) string {
	msg := ethereum.CallMsg{
		From:  p.from,
		To:    p.tx.To(),
		Gas:   p.tx.Gas(),
		Value: p.tx.Value(),
		Data:  p.tx.Data(),
	}
	_, err := p.backend.CallContract(ctx, msg, raw.BlockNumber)
	reason, _ := RevertReason(err)
	return reason
}
