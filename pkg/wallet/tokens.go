package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// erc20ABI is the minimal ABI needed to read and move a token balance.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// ParseERC20ABI parses the embedded token ABI.
func ParseERC20ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return abi.ABI{}, NewWalletError(ErrCodeInvalidABI, "failed to parse ABI", err, "")
	}
	return parsed, nil
}

// ContractABI verifies that contract code is deployed at address and
// returns the token ABI the client uses against it.
func (c *Client) ContractABI(ctx context.Context, address string) (abi.ABI, error) {
	if err := ValidateAddress(address); err != nil {
		return abi.ABI{}, err
	}

	code, err := c.backend.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return abi.ABI{}, NewWalletError(ErrCodeRPCError, "failed to get contract code", err, address)
	}
	if len(code) == 0 {
		return abi.ABI{}, NewWalletError(ErrCodeNoContractCode, "no contract deployed", bind.ErrNoCode, address)
	}

	c.log.WithField("contract", address).Debug("Verified token contract")
	return c.erc20, nil
}

// tokenBalance calls balanceOf on the token contract.
func (c *Client) tokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	contract := bind.NewBoundContract(token, c.erc20, c.backend, nil, nil)

	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account)
	if err != nil {
		return nil, NewWalletError(ErrCodeContractError, "failed to get token balance", err, account.Hex())
	}

	if len(out) == 0 {
		return nil, NewWalletError(ErrCodeContractError, "no balance returned", nil, account.Hex())
	}

	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, NewWalletError(ErrCodeContractError, "failed to convert balance to *big.Int", nil, account.Hex())
	}

	return balance, nil
}

// transferCalldata encodes transfer(recipient, amount).
func (c *Client) transferCalldata(recipient common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.erc20.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return data, nil
}
