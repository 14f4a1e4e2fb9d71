// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"fmt"
	"strings"
)

const (
	// checksumLength is the number of characters of a descriptor checksum.
	checksumLength = 8

	// inputCharset is the set of characters a descriptor may contain,
	// ordered so that the checksum catches the most common typos.
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

	// checksumCharset is the bech32 character set.
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// generators are the coefficients of the BCH code generator polynomial.
var generators = [5]uint64{
	0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd,
}

// polymod feeds one symbol into the checksum state c.
func polymod(c uint64, val uint64) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ val

	for i, gen := range generators {
		if (c0>>uint(i))&1 == 1 {
			c ^= gen
		}
	}

	return c
}

// Checksum computes the 8 character checksum of a descriptor given without
// its `#` suffix.
func Checksum(desc string) (string, error) {
	var (
		c        uint64 = 1
		cls      uint64
		clsCount int
	)

	for i := 0; i < len(desc); i++ {
		pos := strings.IndexByte(inputCharset, desc[i])
		if pos < 0 {
			return "", fmt.Errorf("%w: invalid character %q at "+
				"position %d", ErrInvalidChecksum, desc[i], i)
		}

		// Every character contributes its low 5 bits as a symbol, the
		// high bits are grouped in threes.
		c = polymod(c, uint64(pos)&31)
		cls = cls*3 + uint64(pos>>5)
		clsCount++

		if clsCount == 3 {
			c = polymod(c, cls)
			cls = 0
			clsCount = 0
		}
	}

	if clsCount > 0 {
		c = polymod(c, cls)
	}

	for i := 0; i < checksumLength; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	var sb strings.Builder
	for i := 0; i < checksumLength; i++ {
		shift := 5 * uint(checksumLength-1-i)
		sb.WriteByte(checksumCharset[(c>>shift)&31])
	}

	return sb.String(), nil
}

// AddChecksum appends `#` and the checksum to a descriptor. A descriptor
// that already carries a checksum is verified and returned unchanged.
func AddChecksum(desc string) (string, error) {
	body, err := splitChecksum(desc)
	if err != nil {
		return "", err
	}

	sum, err := Checksum(body)
	if err != nil {
		return "", err
	}

	return body + "#" + sum, nil
}

// splitChecksum strips and verifies an optional checksum suffix, returning
// the descriptor body.
func splitChecksum(desc string) (string, error) {
	body, sum, found := strings.Cut(desc, "#")
	if !found {
		return desc, nil
	}

	if len(sum) != checksumLength {
		return "", fmt.Errorf("%w: expected %d characters, got %d",
			ErrInvalidChecksum, checksumLength, len(sum))
	}

	want, err := Checksum(body)
	if err != nil {
		return "", err
	}

	if sum != want {
		return "", fmt.Errorf("%w: got %s, expected %s",
			ErrInvalidChecksum, sum, want)
	}

	return body, nil
}
