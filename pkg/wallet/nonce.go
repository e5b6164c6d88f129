package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceManager hands out nonces per sender. The node's pending nonce is the
// baseline, but a nonce this process already broadcast is never reused even
// if the node has not caught up yet, which happens when one account appears
// more than once in a batch and the RPC sits behind a load balancer.
type NonceManager struct {
	mu   sync.Mutex
	used map[common.Address]uint64 // next nonce after the last broadcast
}

func newNonceManager() *NonceManager {
	return &NonceManager{used: make(map[common.Address]uint64)}
}

// Next returns the nonce to use for the sender's next transaction.
func (nm *NonceManager) Next(ctx context.Context, backend Backend, sender common.Address) (uint64, error) {
	nonce, err := backend.PendingNonceAt(ctx, sender)
	if err != nil {
		return 0, NewWalletError(ErrCodeRPCError, "failed to get nonce", err, sender.Hex())
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if next, ok := nm.used[sender]; ok && next > nonce {
		return next, nil
	}
	return nonce, nil
}

// Commit records that nonce was broadcast for sender.
func (nm *NonceManager) Commit(sender common.Address, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if next := nonce + 1; next > nm.used[sender] {
		nm.used[sender] = next
	}
}
