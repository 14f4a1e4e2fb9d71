// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// baseUnit stores the canonical representation of a transaction size, which
// is weight units (wu). All other size units are views on it.
type baseUnit struct {
	wu uint64
}

// ToWU converts the unit to a WeightUnit.
func (b baseUnit) ToWU() WeightUnit {
	return WeightUnit{b}
}

// ToVB converts the unit to a VByte.
func (b baseUnit) ToVB() VByte {
	return VByte{b}
}

// VBytes returns the virtual size in vbytes, rounded up the way policy
// rounds it.
func (b baseUnit) VBytes() uint64 {
	return (b.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// WeightUnit is a transaction size in weight units, computed as
// `base size * 3 + total size`.
type WeightUnit struct {
	baseUnit
}

// NewWeightUnit creates a new WeightUnit.
func NewWeightUnit(val uint64) WeightUnit {
	return WeightUnit{baseUnit{wu: val}}
}

// Add returns the sum of two weights.
func (w WeightUnit) Add(other WeightUnit) WeightUnit {
	return NewWeightUnit(w.wu + other.wu)
}

// String returns the string representation of the weight unit.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", w.wu)
}

// VByte is a transaction size in virtual bytes, a quarter of its weight.
type VByte struct {
	baseUnit
}

// NewVByte creates a new VByte.
func NewVByte(val uint64) VByte {
	return VByte{baseUnit{wu: val * blockchain.WitnessScaleFactor}}
}

// String returns the string representation of the virtual byte.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.VBytes())
}

// KVByte is a transaction size in kilo-virtual-bytes.
type KVByte struct {
	baseUnit
}

// NewKVByte creates a new KVByte.
func NewKVByte(val uint64) KVByte {
	return KVByte{baseUnit{wu: val * kilo * blockchain.WitnessScaleFactor}}
}

// String returns the string representation of the kilo-virtual-byte.
func (k KVByte) String() string {
	return fmt.Sprintf("%d kvb", k.VBytes()/kilo)
}

// KWeightUnit is a transaction size in kilo-weight-units.
type KWeightUnit struct {
	baseUnit
}

// NewKWeightUnit creates a new KWeightUnit.
func NewKWeightUnit(val uint64) KWeightUnit {
	return KWeightUnit{baseUnit{wu: val * kilo}}
}

// String returns the string representation of the kilo-weight-unit.
func (k KWeightUnit) String() string {
	return fmt.Sprintf("%d kwu", k.wu/kilo)
}
