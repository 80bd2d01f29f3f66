// Package types defines the core data model shared by the X1-Pulse monitor.
//
// An Endpoint is a monitored RPC target, an Observation is one poll result
// for it. Blockhashes follow Solana conventions and are base58 encoded.
package types

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// BlockhashSize is the decoded size of a blockhash in bytes.
const BlockhashSize = 32

var (
	// ErrEmptyBlockhash is returned for an empty blockhash string.
	ErrEmptyBlockhash = errors.New("empty blockhash")

	// ErrBlockhashLength is returned when a blockhash does not decode to
	// BlockhashSize bytes.
	ErrBlockhashLength = errors.New("blockhash must decode to 32 bytes")
)

// Blockhash is a decoded blockhash.
type Blockhash [BlockhashSize]byte

// ParseBlockhash decodes a base58 blockhash as reported by getLatestBlockhash.
func ParseBlockhash(s string) (Blockhash, error) {
	var h Blockhash
	if s == "" {
		return h, ErrEmptyBlockhash
	}
	if s == BlockhashUnavailable {
		return h, fmt.Errorf("blockhash %q", s)
	}

	data, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("blockhash base58: %w", err)
	}
	if len(data) != BlockhashSize {
		return h, fmt.Errorf("%w, got %d", ErrBlockhashLength, len(data))
	}
	copy(h[:], data)
	return h, nil
}

// String returns the base58 form.
func (h Blockhash) String() string {
	return base58.Encode(h[:])
}

// IsZero reports whether h is all zeros.
func (h Blockhash) IsZero() bool {
	return h == Blockhash{}
}
