// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification generates the one-time codes mailed to new accounts.
package verification

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

// CodeTTL is how long a freshly generated code stays valid.
const CodeTTL = 15 * time.Minute

var codeSpace = big.NewInt(1_000_000)

// Generator draws 6-digit codes from a random source.
type Generator struct {
	random io.Reader
}

// NewGenerator returns a generator reading from r. A nil reader selects crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{random: r}
}

// Generate returns a code uniform over 000000..999999.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.random, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ExpiresAt returns the expiry for a code generated at now.
func ExpiresAt(now time.Time) time.Time {
	return now.Add(CodeTTL)
}
