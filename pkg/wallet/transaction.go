package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/sirupsen/logrus"
)

// ClassifyReceipt maps a mined receipt onto the chain lifecycle. finalized
// is the number of the newest final block.
//
//   - status 0: included and reverted, terminal
//   - status 1 at or below finalized: accepted and succeeded, terminal
//   - status 1 above finalized: included and succeeded, not yet final
func ClassifyReceipt(receipt *types.Receipt, finalized *big.Int) chain.TxStatus {
	if receipt.Status == types.ReceiptStatusFailed {
		return chain.TxStatus{
			Finality:  chain.FinalityIncluded,
			Execution: chain.ExecutionReverted,
			Reason:    fmt.Sprintf("execution reverted in block %s", receipt.BlockNumber),
		}
	}

	if finalized != nil && receipt.BlockNumber != nil && receipt.BlockNumber.Cmp(finalized) <= 0 {
		return chain.TxStatus{Finality: chain.FinalityAccepted, Execution: chain.ExecutionSucceeded}
	}

	return chain.TxStatus{Finality: chain.FinalityIncluded, Execution: chain.ExecutionSucceeded}
}

// TransactionStatus reports the lifecycle state of txHash. A transaction the
// node has never heard of is reported as rejected, except during the
// DroppedAfter grace period following a broadcast from this client.
func (c *Client) TransactionStatus(ctx context.Context, txHash string) (chain.TxStatus, error) {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return chain.TxStatus{}, fmt.Errorf("invalid transaction hash %q", txHash)
	}
	hash := common.BytesToHash(raw)

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err == nil {
		finalized, err := c.finalizedBlock(ctx)
		if err != nil {
			return chain.TxStatus{}, err
		}
		status := ClassifyReceipt(receipt, finalized)
		if status.Succeeded() || status.Reverted() {
			c.forget(hash)
		}
		c.log.WithFields(logrus.Fields{
			"tx_hash": txHash,
			"block":   receipt.BlockNumber.String(),
			"status":  status.String(),
		}).Debug("Transaction receipt found")
		return status, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return chain.TxStatus{}, NewWalletError(ErrCodeRPCError, "failed to get receipt", err, txHash)
	}

	_, _, err = c.backend.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		return chain.TxStatus{Finality: chain.FinalityPending, Execution: chain.ExecutionUnknown}, nil
	case !errors.Is(err, ethereum.NotFound):
		return chain.TxStatus{}, NewWalletError(ErrCodeRPCError, "failed to get transaction", err, txHash)
	}

	if c.withinGrace(hash) {
		return chain.TxStatus{Finality: chain.FinalityPending, Execution: chain.ExecutionUnknown}, nil
	}

	c.forget(hash)
	return chain.TxStatus{
		Finality:  chain.FinalityRejected,
		Execution: chain.ExecutionUnknown,
		Reason:    "transaction not known to the node",
	}, nil
}

// finalizedBlock returns the newest final block number, either from the
// "finalized" tag or FinalityDepth blocks below the head.
func (c *Client) finalizedBlock(ctx context.Context) (*big.Int, error) {
	if c.config.FinalityDepth > 0 {
		head, err := c.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, NewWalletError(ErrCodeRPCError, "failed to get latest header", err, "")
		}
		depth := new(big.Int).SetUint64(c.config.FinalityDepth)
		return new(big.Int).Sub(head.Number, depth), nil
	}

	header, err := c.backend.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to get finalized header", err, "")
	}
	return header.Number, nil
}

func (c *Client) withinGrace(hash common.Hash) bool {
	c.mu.RLock()
	sentAt, ok := c.broadcast[hash]
	c.mu.RUnlock()

	return ok && c.clock.Now().Sub(sentAt) < c.config.DroppedAfter
}

// forget drops the grace entry of a transaction in a terminal state.
func (c *Client) forget(hash common.Hash) {
	c.mu.Lock()
	delete(c.broadcast, hash)
	c.mu.Unlock()
}
