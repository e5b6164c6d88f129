package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager holds one account's private key and the address derived from
// it. Job credentials are turned into a KeyManager per operation and never
// logged.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewKeyManager creates a key manager from a hex-encoded private key, with
// or without the 0x prefix.
//
// Example:
//
//	km, err := NewKeyManager("0x1234...")
//	if err != nil {
//	    return err
//	}
//	address := km.GetAddress()
func NewKeyManager(privateKeyHex string) (*KeyManager, error) {
	privateKeyHex = strings.TrimSpace(privateKeyHex)
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	privateKeyHex = strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &KeyManager{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// GetAddress returns the address derived from the private key.
func (km *KeyManager) GetAddress() common.Address {
	return km.address
}

// SignTx signs tx for the given chain with the latest signer it supports.
func (km *KeyManager) SignTx(tx *types.Transaction, chainID int64) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(bigInt(chainID))
	return types.SignTx(tx, signer, km.privateKey)
}
