// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package descriptor parses Bitcoin Core output descriptors over public keys
// and derives the locking scripts, PSBT key annotations and input sizes of
// the outputs they describe.
package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrSyntax is returned when a descriptor can't be parsed.
	ErrSyntax = errors.New("descriptor syntax error")

	// ErrInvalidChecksum is returned when the checksum suffix of a
	// descriptor doesn't match its body.
	ErrInvalidChecksum = errors.New("invalid descriptor checksum")

	// ErrUnsupported is returned for script expressions that are valid
	// descriptor syntax but can't be used here, such as taproot script
	// trees or raw scripts.
	ErrUnsupported = errors.New("unsupported descriptor")

	// ErrInvalidKey is returned for key expressions that aren't a valid
	// public key, extended key or WIF.
	ErrInvalidKey = errors.New("invalid key expression")

	// ErrHardenedDerivation is returned when a hardened step follows an
	// extended public key.
	ErrHardenedDerivation = errors.New("hardened derivation requires a " +
		"private key")

	// ErrNetworkMismatch is returned when a key belongs to another
	// network than the one the descriptor is parsed for.
	ErrNetworkMismatch = errors.New("key network mismatch")

	// ErrNoAddress is returned by Address for scripts without an address
	// form, such as bare multisig.
	ErrNoAddress = errors.New("script has no address form")
)

const (
	// maxMultisigKeys is the largest key count of a multisig expression.
	maxMultisigKeys = 20

	// maxBareMultisigKeys is the largest key count of a multisig
	// expression outside of sh and wsh, as allowed by standardness.
	maxBareMultisigKeys = 3
)

// kind is a script expression function.
type kind uint8

const (
	kindSh kind = iota
	kindWsh
	kindPkh
	kindWpkh
	kindPk
	kindTr
	kindMulti
	kindSortedMulti
)

// kindNames maps function names onto kinds.
var kindNames = map[string]kind{
	"sh":          kindSh,
	"wsh":         kindWsh,
	"pkh":         kindPkh,
	"wpkh":        kindWpkh,
	"pk":          kindPk,
	"tr":          kindTr,
	"multi":       kindMulti,
	"sortedmulti": kindSortedMulti,
}

// scriptCtx is the position of an expression in the script tree, which
// decides the functions allowed there.
type scriptCtx uint8

const (
	ctxTop scriptCtx = iota
	ctxP2SH
	ctxP2WSH
)

// node is one script expression.
type node struct {
	kind      kind
	keys      []*keyExpr
	threshold int
	sub       *node
}

// Descriptor is a parsed output descriptor.
type Descriptor struct {
	root   *node
	body   string
	params *chaincfg.Params
}

// Parse parses descriptor text for the given network. A `#` checksum suffix
// is optional and verified when present. Keys are always public: extended
// private keys are neutered and WIF keys reduced to their public key.
func Parse(desc string, params *chaincfg.Params) (*Descriptor, error) {
	body, err := splitChecksum(strings.TrimSpace(desc))
	if err != nil {
		return nil, err
	}

	root, err := parseExpr(body, ctxTop, params)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		root:   root,
		body:   body,
		params: params,
	}, nil
}

// parseExpr parses the script expression s found in context ctx.
func parseExpr(s string, ctx scriptCtx, params *chaincfg.Params) (*node,
	error) {

	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: expected a script expression, "+
			"got %q", ErrSyntax, s)
	}

	name := s[:open]
	args, err := splitArgs(s[open+1 : len(s)-1])
	if err != nil {
		return nil, err
	}

	k, ok := kindNames[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s()", ErrUnsupported, name)
	}

	if err := checkContext(k, ctx); err != nil {
		return nil, err
	}

	n := &node{kind: k}

	switch k {
	case kindSh, kindWsh:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s() takes one argument",
				ErrSyntax, name)
		}

		subCtx := ctxP2SH
		if k == kindWsh {
			subCtx = ctxP2WSH
		}

		n.sub, err = parseExpr(args[0], subCtx, params)
		if err != nil {
			return nil, err
		}

	case kindPkh, kindWpkh, kindPk, kindTr:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s() with a script tree",
				ErrUnsupported, name)
		}

		key, err := parseKey(args[0], params)
		if err != nil {
			return nil, err
		}

		segwit := k == kindWpkh || k == kindTr || ctx == ctxP2WSH
		if segwit && !key.compressed {
			return nil, fmt.Errorf("%w: uncompressed key in a "+
				"segwit script", ErrInvalidKey)
		}
		n.keys = []*keyExpr{key}

	case kindMulti, kindSortedMulti:
		err := n.parseMultisig(name, args, ctx, params)
		if err != nil {
			return nil, err
		}
	}

	return n, nil
}

// parseMultisig fills in the threshold and keys of a multisig expression.
func (n *node) parseMultisig(name string, args []string, ctx scriptCtx,
	params *chaincfg.Params) error {

	if len(args) < 2 {
		return fmt.Errorf("%w: %s() needs a threshold and keys",
			ErrSyntax, name)
	}

	threshold, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: invalid threshold %q", ErrSyntax,
			args[0])
	}

	keyCount := len(args) - 1
	maxKeys := maxMultisigKeys
	if ctx == ctxTop {
		maxKeys = maxBareMultisigKeys
	}

	switch {
	case threshold < 1 || threshold > keyCount:
		return fmt.Errorf("%w: threshold %d of %d keys", ErrSyntax,
			threshold, keyCount)

	case keyCount > maxKeys:
		return fmt.Errorf("%w: %d keys in %s()", ErrUnsupported,
			keyCount, name)
	}

	n.threshold = threshold
	for _, arg := range args[1:] {
		key, err := parseKey(arg, params)
		if err != nil {
			return err
		}

		if ctx == ctxP2WSH && !key.compressed {
			return fmt.Errorf("%w: uncompressed key in a segwit "+
				"script", ErrInvalidKey)
		}
		n.keys = append(n.keys, key)
	}

	// The redeem script of a P2SH output is pushed as one element.
	if ctx == ctxP2SH && n.multisigScriptSize() >
		txscript.MaxScriptElementSize {

		return fmt.Errorf("%w: redeem script exceeds %d bytes",
			ErrUnsupported, txscript.MaxScriptElementSize)
	}

	return nil
}

// checkContext rejects functions used where they are not allowed.
func checkContext(k kind, ctx scriptCtx) error {
	var allowed bool
	switch k {
	case kindSh, kindTr:
		allowed = ctx == ctxTop

	case kindWsh, kindWpkh:
		allowed = ctx != ctxP2WSH

	default:
		allowed = true
	}

	if !allowed {
		return fmt.Errorf("%w: misplaced script expression",
			ErrUnsupported)
	}

	return nil
}

// splitArgs splits a comma separated argument list at its top level.
func splitArgs(s string) ([]string, error) {
	var (
		args  []string
		depth int
		start int
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++

		case ')', ']', '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced %q",
					ErrSyntax, s[i])
			}

		case ',':
			if depth == 0 {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced brackets", ErrSyntax)
	}

	args = append(args, s[start:])
	for _, arg := range args {
		if arg == "" {
			return nil, fmt.Errorf("%w: empty argument", ErrSyntax)
		}
	}

	return args, nil
}

// IsRange returns whether the descriptor describes a different script at
// every index.
func (d *Descriptor) IsRange() bool {
	return d.root.isRange()
}

// isRange returns whether any key below the node is ranged.
func (n *node) isRange() bool {
	if n.sub != nil {
		return n.sub.isRange()
	}

	for _, key := range n.keys {
		if key.isRange() {
			return true
		}
	}

	return false
}

// String returns the descriptor with its checksum.
func (d *Descriptor) String() string {
	// The body was checked against the charset while parsing.
	s, _ := AddChecksum(d.body)

	return s
}

// Params returns the network the descriptor was parsed for.
func (d *Descriptor) Params() *chaincfg.Params {
	return d.params
}

// Address returns the address of the output at the given index.
func (d *Descriptor) Address(index uint32) (btcutil.Address, error) {
	derived, err := d.Derive(index)
	if err != nil {
		return nil, err
	}

	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		derived.PkScript, d.params,
	)
	if err != nil {
		return nil, err
	}

	switch class {
	case txscript.PubKeyHashTy, txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy:

		return addrs[0], nil
	}

	return nil, fmt.Errorf("%w: %v", ErrNoAddress, class)
}
