// Package ether converts between wei amounts and the decimal ether strings
// shown to users.
package ether

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const decimals = 18

var errTooPrecise = errors.New("more than 18 decimal places")

// Format renders wei as ether with at least one fractional digit,
// e.g. 0 -> "0.0", 1e18 -> "1.0", 3e16 -> "0.03".
func Format(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	s := decimal.NewFromBigInt(wei, -decimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Parse reads a decimal ether amount ("1", "0.03") into wei.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse ether %q: %w", s, err)
	}
	wei := d.Shift(decimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("parse ether %q: %w", s, errTooPrecise)
	}
	return wei.BigInt(), nil
}

// MustParse is Parse for constants.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ShortAddress abbreviates a 0x-prefixed 20 byte hex address to 0x1234...abcd.
// Anything that is not a full address yields "".
func ShortAddress(addr string) string {
	if len(addr) != 42 {
		return ""
	}
	return addr[:6] + "..." + addr[38:42]
}
