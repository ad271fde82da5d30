package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/layer-3/gamebridge/core"
	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount validates a decimal amount string and converts it to token
// base units. Amounts must be positive, use plain notation and carry no
// more fractional digits than the token has decimals.
func ParseAmount(s string, decimals uint8) (decimal.Decimal, uint64, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return decimal.Zero, 0, fmt.Errorf("%q: %w", s, core.ErrInvalidAmount)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, 0, fmt.Errorf("%q: %w", s, core.ErrInvalidAmount)
	}

	units := amount.Shift(int32(decimals))
	if !units.IsInteger() {
		return decimal.Zero, 0, fmt.Errorf("%q has more than %d decimals: %w", s, decimals, core.ErrInvalidAmount)
	}

	bi := units.BigInt()
	if !bi.IsUint64() {
		return decimal.Zero, 0, fmt.Errorf("%q is out of range: %w", s, core.ErrInvalidAmount)
	}

	return amount, bi.Uint64(), nil
}

// ParseWallet decodes a base58 ed25519 public key
func ParseWallet(wallet string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(wallet))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%q: %w", wallet, core.ErrInvalidWallet)
	}

	return pk, nil
}
