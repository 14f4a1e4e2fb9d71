// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// fingerprintSize is the length of a BIP32 key fingerprint.
	fingerprintSize = 4

	// uncompressedPubKeySize is the length of an uncompressed public key.
	uncompressedPubKeySize = 65
)

// keyOrigin is the `[fingerprint/path]` prefix of a key expression.
type keyOrigin struct {
	fingerprint [fingerprintSize]byte
	path        []uint32
}

// keyExpr is a parsed key expression: a fixed public key, or an extended
// public key with a derivation suffix.
type keyExpr struct {
	origin *keyOrigin

	// pubKey is set for fixed keys.
	pubKey *btcec.PublicKey

	// compressed tells how a fixed key is serialized.
	compressed bool

	// xpub and the fields below are set for extended keys.
	xpub     *hdkeychain.ExtendedKey
	steps    []uint32
	wildcard bool
}

// parseKey parses a key expression such as
// `[c258d2e4/84h/1h/0h]tpub.../0/*` or a hex encoded public key.
func parseKey(s string, params *chaincfg.Params) (*keyExpr, error) {
	key := &keyExpr{}

	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated key origin in %q",
				ErrSyntax, s)
		}

		origin, err := parseOrigin(s[1:end])
		if err != nil {
			return nil, err
		}
		key.origin = origin
		s = s[end+1:]
	}

	body, suffix, hasSuffix := strings.Cut(s, "/")

	switch {
	case isHex(body):
		if hasSuffix {
			return nil, fmt.Errorf("%w: derivation steps after a "+
				"fixed public key", ErrInvalidKey)
		}

		raw, _ := hex.DecodeString(body)
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		key.pubKey = pub
		key.compressed = len(raw) == btcec.PubKeyBytesLenCompressed

		return key, nil

	case isExtendedKey(body):
		xkey, err := hdkeychain.NewKeyFromString(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}

		if !xkey.IsForNet(params) {
			return nil, fmt.Errorf("%w: extended key is not for %s",
				ErrNetworkMismatch, params.Name)
		}

		// Only the public half is ever needed.
		key.xpub, err = xkey.Neuter()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		key.compressed = true

		if hasSuffix {
			err := key.parseSteps(suffix)
			if err != nil {
				return nil, err
			}
		}

		return key, nil
	}

	wif, err := btcutil.DecodeWIF(body)
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognized key %q", ErrInvalidKey,
			body)
	}

	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("%w: WIF key is not for %s",
			ErrNetworkMismatch, params.Name)
	}

	if hasSuffix {
		return nil, fmt.Errorf("%w: derivation steps after a "+
			"fixed private key", ErrInvalidKey)
	}

	key.pubKey = wif.PrivKey.PubKey()
	key.compressed = wif.CompressPubKey

	return key, nil
}

// parseOrigin parses the inside of a `[...]` key origin.
func parseOrigin(s string) (*keyOrigin, error) {
	parts := strings.Split(s, "/")

	fp, err := hex.DecodeString(parts[0])
	if err != nil || len(fp) != fingerprintSize {
		return nil, fmt.Errorf("%w: invalid fingerprint %q", ErrSyntax,
			parts[0])
	}

	origin := &keyOrigin{}
	copy(origin.fingerprint[:], fp)

	for _, part := range parts[1:] {
		index, err := parseStep(part)
		if err != nil {
			return nil, err
		}
		origin.path = append(origin.path, index)
	}

	return origin, nil
}

// parseSteps parses the derivation suffix of an extended key. Only the last
// step may be a wildcard, and no step may be hardened since the key is
// public.
func (k *keyExpr) parseSteps(s string) error {
	parts := strings.Split(s, "/")

	for i, part := range parts {
		if part == "*" {
			if i != len(parts)-1 {
				return fmt.Errorf("%w: wildcard must be the last "+
					"step", ErrSyntax)
			}
			k.wildcard = true

			continue
		}

		if isHardenedMarker(part) {
			return fmt.Errorf("%w: step %q", ErrHardenedDerivation,
				part)
		}

		index, err := parseStep(part)
		if err != nil {
			return err
		}
		k.steps = append(k.steps, index)
	}

	return nil
}

// parseStep parses one path component. Hardened components carry a `h`, `H`
// or `'` suffix.
func parseStep(s string) (uint32, error) {
	hardened := isHardenedMarker(s)
	if hardened {
		s = s[:len(s)-1]
	}

	if s == "*" {
		return 0, fmt.Errorf("%w: hardened wildcard", ErrHardenedDerivation)
	}

	index, err := strconv.ParseUint(s, 10, 32)
	if err != nil || index >= hdkeychain.HardenedKeyStart {
		return 0, fmt.Errorf("%w: invalid path step %q", ErrSyntax, s)
	}

	if hardened {
		index += hdkeychain.HardenedKeyStart
	}

	return uint32(index), nil
}

// isHardenedMarker returns whether the step ends in a hardened marker.
func isHardenedMarker(s string) bool {
	if s == "" {
		return false
	}

	switch s[len(s)-1] {
	case 'h', 'H', '\'':
		return true
	}

	return false
}

// isHex returns whether s is a non-empty even length hex string.
func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}

// isExtendedKey returns whether s looks like a base58 extended key.
func isExtendedKey(s string) bool {
	for _, prefix := range []string{"xpub", "xprv", "tpub", "tprv"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

// isRange returns whether the key derives a different public key at every
// index.
func (k *keyExpr) isRange() bool {
	return k.xpub != nil && k.wildcard
}

// derivedKey is the public key of a key expression at an index, with its
// full BIP32 path for PSBT annotation.
type derivedKey struct {
	pubKey *btcec.PublicKey

	// serialized is the public key as it appears in scripts.
	serialized []byte

	// fingerprint and path are only meaningful when hasPath is set.
	fingerprint uint32
	path        []uint32
	hasPath     bool
}

// derive returns the public key at the given index. The index is ignored by
// keys without a wildcard.
func (k *keyExpr) derive(index uint32) (*derivedKey, error) {
	if k.xpub == nil {
		dk := &derivedKey{
			pubKey:     k.pubKey,
			serialized: k.serialize(k.pubKey),
		}

		if k.origin != nil {
			dk.fingerprint = k.origin.masterFingerprint()
			dk.path = append([]uint32(nil), k.origin.path...)
			dk.hasPath = true
		}

		return dk, nil
	}

	steps := k.steps
	if k.wildcard {
		steps = append(append([]uint32(nil), k.steps...), index)
	}

	child := k.xpub
	for _, step := range steps {
		var err error
		child, err = child.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive step %d: %w", step, err)
		}
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}

	dk := &derivedKey{
		pubKey:     pub,
		serialized: pub.SerializeCompressed(),
		hasPath:    true,
	}

	// Without an origin the extended key itself is the root of the path.
	if k.origin != nil {
		dk.fingerprint = k.origin.masterFingerprint()
		dk.path = append([]uint32(nil), k.origin.path...)
	} else {
		rootPub, err := k.xpub.ECPubKey()
		if err != nil {
			return nil, err
		}
		fp := btcutil.Hash160(rootPub.SerializeCompressed())
		dk.fingerprint = binary.LittleEndian.Uint32(fp[:fingerprintSize])
	}
	dk.path = append(dk.path, steps...)

	return dk, nil
}

// serialize returns the script encoding of a fixed key.
func (k *keyExpr) serialize(pub *btcec.PublicKey) []byte {
	if k.compressed {
		return pub.SerializeCompressed()
	}

	return pub.SerializeUncompressed()
}

// scriptSize is the length of the key as pushed in scripts.
func (k *keyExpr) scriptSize() int {
	if k.compressed {
		return btcec.PubKeyBytesLenCompressed
	}

	return uncompressedPubKeySize
}

// masterFingerprint returns the fingerprint in the little endian integer
// form used by PSBT derivation records.
func (o *keyOrigin) masterFingerprint() uint32 {
	return binary.LittleEndian.Uint32(o.fingerprint[:])
}
