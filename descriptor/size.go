// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
)

const (
	// ecdsaSigSize is the largest DER encoded ECDSA signature with its
	// sighash flag.
	ecdsaSigSize = 73

	// schnorrSigSize is a schnorr signature with the default sighash,
	// which carries no flag byte.
	schnorrSigSize = schnorr.SignatureSize

	// p2shHashSize is the size of the script hash in a P2WPKH or P2SH
	// program.
	p2shHashSize = 20

	// p2wshHashSize is the size of the script hash of a P2WSH program.
	p2wshHashSize = 32

	// inputBaseSize is the outpoint, sequence and nothing else of an
	// input: 32 byte hash, 4 byte index and 4 byte sequence.
	inputBaseSize = 32 + 4 + 4
)

// InputSize is the largest satisfaction of a descriptor's script.
type InputSize struct {
	// ScriptSigSize is the size of the signature script, without its
	// length prefix.
	ScriptSigSize int

	// WitnessSize is the size of the serialized witness including its
	// item count, zero for inputs without a witness.
	WitnessSize int
}

// HasWitness returns whether the input spends a segwit output.
func (s InputSize) HasWitness() bool {
	return s.WitnessSize > 0
}

// Weight returns the weight the input adds to a transaction, not counting
// the segwit marker and flag.
func (s InputSize) Weight() btcunit.WeightUnit {
	base := inputBaseSize +
		wire.VarIntSerializeSize(uint64(s.ScriptSigSize)) +
		s.ScriptSigSize

	return btcunit.NewWeightUnit(uint64(
		base*blockchain.WitnessScaleFactor + s.WitnessSize,
	))
}

// MaxInputSize returns the size of the largest satisfaction of the
// descriptor's script, assuming high-R ECDSA signatures.
func (d *Descriptor) MaxInputSize() InputSize {
	return d.root.inputSize()
}

// inputSize returns the input size of a top level node.
func (n *node) inputSize() InputSize {
	switch n.kind {
	case kindSh:
		switch n.sub.kind {
		case kindWpkh:
			// The redeem script is the witness program.
			return InputSize{
				ScriptSigSize: pushSize(2 + p2shHashSize),
				WitnessSize:   witnessSize(n.sub.stack()),
			}

		case kindWsh:
			stack := append(n.sub.sub.stack(),
				n.sub.sub.scriptSize())

			return InputSize{
				ScriptSigSize: pushSize(2 + p2wshHashSize),
				WitnessSize:   witnessSize(stack),
			}
		}

		stack := append(n.sub.stack(), n.sub.scriptSize())

		return InputSize{ScriptSigSize: scriptSigSize(stack)}

	case kindWsh:
		stack := append(n.sub.stack(), n.sub.scriptSize())

		return InputSize{WitnessSize: witnessSize(stack)}

	case kindWpkh, kindTr:
		return InputSize{WitnessSize: witnessSize(n.stack())}
	}

	return InputSize{ScriptSigSize: scriptSigSize(n.stack())}
}

// stack returns the sizes of the stack elements satisfying a key or
// multisig node.
func (n *node) stack() []int {
	switch n.kind {
	case kindPk:
		return []int{ecdsaSigSize}

	case kindPkh, kindWpkh:
		return []int{ecdsaSigSize, n.keys[0].scriptSize()}

	case kindTr:
		return []int{schnorrSigSize}

	case kindMulti, kindSortedMulti:
		// CHECKMULTISIG pops one extra element, which is empty.
		stack := []int{0}
		for i := 0; i < n.threshold; i++ {
			stack = append(stack, ecdsaSigSize)
		}

		return stack
	}

	return nil
}

// scriptSize returns the size of the script of a key or multisig node, as
// used in a redeem or witness script.
func (n *node) scriptSize() int {
	switch n.kind {
	case kindPk:
		return pushSize(n.keys[0].scriptSize()) + 1

	case kindPkh:
		// DUP HASH160 <20> EQUALVERIFY CHECKSIG
		return 3 + p2shHashSize + 2

	case kindMulti, kindSortedMulti:
		return n.multisigScriptSize()
	}

	return 0
}

// multisigScriptSize returns the size of a multisig script: the threshold
// and key count opcodes, each key push and CHECKMULTISIG.
func (n *node) multisigScriptSize() int {
	size := smallIntSize(n.threshold) + smallIntSize(len(n.keys)) + 1
	for _, key := range n.keys {
		size += pushSize(key.scriptSize())
	}

	return size
}

// smallIntSize returns the encoded size of a script number as pushed by a
// script builder.
func smallIntSize(v int) int {
	if v <= 16 {
		return 1
	}

	// Numbers above 16 are pushed as one data byte.
	return 2
}

// pushSize returns the size of a minimal data push of n bytes.
func pushSize(n int) int {
	switch {
	case n == 0:
		return 1

	case n < txscript.OP_PUSHDATA1:
		return 1 + n

	case n <= 0xff:
		return 2 + n

	case n <= 0xffff:
		return 3 + n
	}

	return 5 + n
}

// scriptSigSize returns the size of a signature script pushing the stack.
func scriptSigSize(stack []int) int {
	var size int
	for _, item := range stack {
		size += pushSize(item)
	}

	return size
}

// witnessSize returns the serialized size of a witness holding the stack.
func witnessSize(stack []int) int {
	size := wire.VarIntSerializeSize(uint64(len(stack)))
	for _, item := range stack {
		size += wire.VarIntSerializeSize(uint64(item)) + item
	}

	return size
}
