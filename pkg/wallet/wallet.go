// Package wallet implements chain.Client on an EVM chain with go-ethereum:
// balances, EIP-1559 fee estimates, signed submissions and transaction
// status, for either the native asset or an ERC20 token.
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Backend is the subset of *ethclient.Client the wallet uses.
type Backend interface {
	bind.ContractCaller

	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Client is a single-network wallet client. Signing keys are not held by the
// client; every estimate and submission receives the account's credential.
type Client struct {
	backend Backend
	config  Config
	chainID int64
	erc20   abi.ABI

	nonces *NonceManager
	clock  clock.Clock
	log    *logrus.Logger

	mu        sync.RWMutex
	broadcast map[common.Hash]time.Time
}

var _ chain.Client = (*Client)(nil)

// NewClient dials config.RPCURL, retrying per the config, and resolves the
// chain ID when it is not configured.
//
// Example:
//
//	client, err := NewClient(ctx, DefaultConfig("https://forno.celo.org"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	backend, err := dialWithRetry(ctx, config)
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to connect to network", err, "")
	}

	client, err := NewClientWithBackend(ctx, backend, config)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithBackend builds a Client on an existing backend.
func NewClientWithBackend(ctx context.Context, backend Backend, config Config) (*Client, error) {
	config.applyDefaults()

	parsed, err := ParseERC20ABI()
	if err != nil {
		return nil, err
	}

	chainID := config.ChainID
	if chainID == 0 {
		id, err := backend.ChainID(ctx)
		if err != nil {
			return nil, NewWalletError(ErrCodeRPCError, "failed to get chain ID", err, "")
		}
		chainID = id.Int64()
	}

	config.Logger.WithFields(logrus.Fields{
		"chain_id": chainID,
	}).Info("Wallet client ready")

	return &Client{
		backend:   backend,
		config:    config,
		chainID:   chainID,
		erc20:     parsed,
		nonces:    newNonceManager(),
		clock:     config.Clock,
		log:       config.Logger,
		broadcast: make(map[common.Hash]time.Time),
	}, nil
}

// ChainID returns the chain identifier used for signing.
func (c *Client) ChainID() int64 {
	return c.chainID
}

// Balance returns the balance of address in base units: the native balance
// when token is empty, otherwise the token contract's balanceOf.
func (c *Client) Balance(ctx context.Context, token, address string) (*big.Int, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	account := common.HexToAddress(address)

	var (
		balance *big.Int
		err     error
	)
	if token == "" {
		balance, err = c.backend.BalanceAt(ctx, account, nil)
		if err != nil {
			err = NewWalletError(ErrCodeRPCError, "failed to get balance", err, address)
		}
	} else {
		balance, err = c.tokenBalance(ctx, common.HexToAddress(token), account)
	}
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"address":     address,
		"balance_wei": balance.String(),
	}).Debug("Retrieved balance")

	return balance, nil
}

// EstimateFee quotes the fee of the transfer described by intent when sent
// from the credential's account.
func (c *Client) EstimateFee(ctx context.Context, credential string, intent chain.TransferIntent) (chain.FeeEstimate, error) {
	keys, err := NewKeyManager(credential)
	if err != nil {
		return chain.FeeEstimate{}, NewWalletError(ErrCodeInvalidPrivateKey, "failed to load credential", err, "")
	}

	to, value, data, err := c.callTarget(intent)
	if err != nil {
		return chain.FeeEstimate{}, err
	}

	from := keys.GetAddress()
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return chain.FeeEstimate{}, NewWalletError(ErrCodeGasEstimationFailed, "failed to estimate gas", err, from.Hex())
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return chain.FeeEstimate{}, NewWalletError(ErrCodeGasEstimationFailed, "failed to get tip cap", err, from.Hex())
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return chain.FeeEstimate{}, NewWalletError(ErrCodeRPCError, "failed to get latest header", err, "")
	}
	if head.BaseFee == nil {
		return chain.FeeEstimate{}, NewWalletError(ErrCodeUnsupportedChain, "latest block has no base fee", nil, "")
	}

	estimate := c.config.Gas.Estimate(gas, head.BaseFee, tip)

	c.log.WithFields(logrus.Fields{
		"address":   from.Hex(),
		"gas_limit": estimate.GasLimit,
		"fee_cap":   estimate.GasFeeCap.String(),
		"tip_cap":   estimate.GasTipCap.String(),
		"fee_wei":   estimate.SuggestedMaxFee.String(),
	}).Debug("Estimated fee")

	return estimate, nil
}

// Submit signs and broadcasts an EIP-1559 transaction using exactly the gas
// parameters of intent.Fee, and returns its hash.
func (c *Client) Submit(ctx context.Context, credential string, intent chain.TransferIntent) (string, error) {
	if intent.Fee == nil || intent.Fee.GasFeeCap == nil || intent.Fee.GasTipCap == nil || intent.Fee.GasLimit == 0 {
		return "", NewWalletError(ErrCodeMissingFee, "transfer has no accepted fee", nil, intent.Recipient)
	}

	keys, err := NewKeyManager(credential)
	if err != nil {
		return "", NewWalletError(ErrCodeInvalidPrivateKey, "failed to load credential", err, "")
	}
	from := keys.GetAddress()

	to, value, data, err := c.callTarget(intent)
	if err != nil {
		return "", err
	}

	nonce, err := c.nonces.Next(ctx, c.backend, from)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   bigInt(c.chainID),
		Nonce:     nonce,
		GasTipCap: intent.Fee.GasTipCap,
		GasFeeCap: intent.Fee.GasFeeCap,
		Gas:       intent.Fee.GasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signedTx, err := keys.SignTx(tx, c.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", NewWalletError(ErrCodeTransactionFailed, "failed to send transaction", err, from.Hex())
	}
	c.nonces.Commit(from, nonce)

	hash := signedTx.Hash()
	now := c.clock.Now()
	c.mu.Lock()
	for h, sentAt := range c.broadcast {
		if now.Sub(sentAt) >= c.config.DroppedAfter {
			delete(c.broadcast, h)
		}
	}
	c.broadcast[hash] = now
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"address":   from.Hex(),
		"recipient": intent.Recipient,
		"nonce":     nonce,
		"tx_hash":   hash.Hex(),
	}).Info("Transaction sent")

	return hash.Hex(), nil
}

// callTarget returns the destination, value and calldata of a transfer: a
// plain value transfer for the native asset, a transfer call otherwise.
func (c *Client) callTarget(intent chain.TransferIntent) (common.Address, *big.Int, []byte, error) {
	if err := ValidateAddress(intent.Recipient); err != nil {
		return common.Address{}, nil, nil, err
	}
	if intent.Amount == nil || intent.Amount.Sign() < 0 {
		return common.Address{}, nil, nil, fmt.Errorf("transfer amount must be non-negative")
	}
	recipient := common.HexToAddress(intent.Recipient)

	if intent.Token == "" {
		return recipient, new(big.Int).Set(intent.Amount), nil, nil
	}

	data, err := c.transferCalldata(recipient, intent.Amount)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return common.HexToAddress(intent.Token), new(big.Int), data, nil
}

// dialWithRetry attempts to connect, retrying per the configuration.
func dialWithRetry(ctx context.Context, config Config) (*ethclient.Client, error) {
	var client *ethclient.Client
	var err error

	for i := 0; i <= config.MaxRetries; i++ {
		client, err = ethclient.DialContext(ctx, config.RPCURL)
		if err == nil {
			return client, nil
		}

		if i < config.MaxRetries {
			config.Logger.WithFields(logrus.Fields{
				"attempt": i + 1,
				"error":   err,
			}).Debug("Retrying network connection")

			if sleepErr := config.Clock.Sleep(ctx, config.RetryDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.MaxRetries+1, err)
}

// Close closes the network connection.
func (c *Client) Close() {
	c.backend.Close()
	c.log.Debug("Closed network connection")
}
