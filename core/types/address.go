package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account, contract, or currency. The zero address is a
// sentinel: it marks unknown content holders, the native coin as a currency,
// and the "general" slot in the access control list.
const (
	AddressLength = 20
	HashLength    = 32
)

// IsZeroAddress reports whether the address is the zero sentinel.
func IsZeroAddress(addr [AddressLength]byte) bool {
	var zero [AddressLength]byte
	return addr == zero
}

// HexAddress renders an address as a 0x-prefixed hex string.
func HexAddress(addr [AddressLength]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// HexHash renders a 32-byte identifier as a 0x-prefixed hex string.
func HexHash(h [HashLength]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

// ParseAddress decodes a 0x-prefixed or bare hex address.
func ParseAddress(s string) ([AddressLength]byte, error) {
	var out [AddressLength]byte
	raw, err := decodeHex(s, AddressLength)
	if err != nil {
		return out, fmt.Errorf("address: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

// ParseHash decodes a 0x-prefixed or bare hex 32-byte identifier.
func ParseHash(s string) ([HashLength]byte, error) {
	var out [HashLength]byte
	raw, err := decodeHex(s, HashLength)
	if err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHex(s string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != size*2 {
		return nil, fmt.Errorf("expected %d hex chars, got %d", size*2, len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
