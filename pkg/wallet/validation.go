package wallet

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// addressRegex checks for a "0x" prefix followed by exactly 40 hexadecimal characters.
	addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
)

// ValidateAddress performs format validation and, for mixed-case input,
// EIP-55 checksum verification. All-lowercase and all-uppercase hex are
// accepted without a checksum.
//
// Example:
//
//	if err := ValidateAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"); err != nil {
//	    return err
//	}
func ValidateAddress(address string) error {
	if !addressRegex.MatchString(address) {
		return NewWalletError(ErrCodeInvalidAddress, "invalid address format", nil, address)
	}

	body := address[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}

	if address != common.HexToAddress(address).Hex() {
		return NewWalletError(ErrCodeInvalidAddress, "invalid address checksum", nil, address)
	}

	return nil
}
