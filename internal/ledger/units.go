package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FormatEther renders a wei amount in ether without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// ParseBetID validates a decimal uint256 bet id.
func ParseBetID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-") {
		return nil, ErrBadBetID
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 || n.Cmp(maxUint256) > 0 {
		return nil, ErrBadBetID
	}
	return n, nil
}

// CanonicalBetID returns the bet id without leading zeros.
func CanonicalBetID(raw string) (string, error) {
	n, err := ParseBetID(raw)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// ValidAddress reports whether s is a 0x-prefixed 20 byte hex address.
func ValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ChecksumAddress normalises an address to EIP-55 form.
func ChecksumAddress(s string) (string, error) {
	if !ValidAddress(s) {
		return "", ErrBadAddress
	}
	return common.HexToAddress(s).Hex(), nil
}
