// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides fee rate and transaction size types that keep
// their value exactly, so that fee arithmetic never depends on the unit a
// rate happened to be quoted in.
package btcunit

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is a generic multiplier for kilo units.
	kilo = 1000

	// floatStringPrecision is the number of decimal places used when
	// rendering a fee rate. Three places keep 1 sat/kvb visible as
	// 0.001 sat/vb.
	floatStringPrecision = 3
)

var (
	// ErrInvalidFeeRate is returned when a fee rate quoted as a floating
	// point number is negative, NaN or infinite.
	ErrInvalidFeeRate = errors.New("invalid fee rate")

	// ZeroSatPerVByte is a fee rate of 0 sat/vb.
	ZeroSatPerVByte = NewSatPerVByte(0)

	// ZeroSatPerKVByte is a fee rate of 0 sat/kvb.
	ZeroSatPerKVByte = NewSatPerKVByte(0)
)

// baseFeeRate stores the canonical representation of a fee rate, which is
// satoshis per kilo-weight-unit (sat/kwu). All other fee rate units are
// views on this value.
type baseFeeRate struct {
	satsPerKWU *big.Rat
}

// newBaseFeeRate creates a fee rate of numerator sat/kwu divided by
// denominator. A zero denominator yields a zero rate.
func newBaseFeeRate(numerator btcutil.Amount, denominator uint64) baseFeeRate {
	if denominator == 0 {
		return baseFeeRate{satsPerKWU: big.NewRat(0, 1)}
	}

	return baseFeeRate{satsPerKWU: big.NewRat(
		int64(numerator), safeUint64ToInt64(denominator),
	)}
}

// ToSatPerVByte converts the fee rate to sat/vb.
func (f baseFeeRate) ToSatPerVByte() SatPerVByte {
	return SatPerVByte{f}
}

// ToSatPerKVByte converts the fee rate to sat/kvb.
func (f baseFeeRate) ToSatPerKVByte() SatPerKVByte {
	return SatPerKVByte{f}
}

// ToSatPerKWeight converts the fee rate to sat/kw.
func (f baseFeeRate) ToSatPerKWeight() SatPerKWeight {
	return SatPerKWeight{f}
}

// feeForWeight returns the exact fee for the given weight as a rational
// number of satoshis.
func (f baseFeeRate) feeForWeight(weight WeightUnit) *big.Rat {
	fee := new(big.Rat).Mul(
		f.rate(), big.NewRat(safeUint64ToInt64(weight.wu), kilo),
	)

	return fee
}

// FeeForWeight returns the fee for the given weight, rounded down to the
// satoshi.
func (f baseFeeRate) FeeForWeight(weight WeightUnit) btcutil.Amount {
	fee := f.feeForWeight(weight)

	quotient := new(big.Int).Quo(fee.Num(), fee.Denom())

	return btcutil.Amount(quotient.Int64())
}

// FeeForWeightRoundUp returns the fee for the given weight, rounded up to
// the satoshi.
func (f baseFeeRate) FeeForWeightRoundUp(weight WeightUnit) btcutil.Amount {
	fee := f.feeForWeight(weight)

	// Ceiling division: (num + denom - 1) / denom.
	result := new(big.Int).Add(fee.Num(), fee.Denom())
	result.Sub(result, big.NewInt(1))
	result.Quo(result, fee.Denom())

	return btcutil.Amount(result.Int64())
}

// FeeForVByte returns the fee for the given virtual size, rounded down.
func (f baseFeeRate) FeeForVByte(vb VByte) btcutil.Amount {
	return f.FeeForWeight(vb.ToWU())
}

// FeeForVByteRoundUp returns the fee for the given virtual size, rounded
// up.
func (f baseFeeRate) FeeForVByteRoundUp(vb VByte) btcutil.Amount {
	return f.FeeForWeightRoundUp(vb.ToWU())
}

// FeeRate is implemented by every view of a fee rate in this package.
type FeeRate interface {
	// rate returns the canonical sat/kwu value.
	rate() *big.Rat
}

// rate returns the canonical sat/kwu value.
// The zero value of a fee rate view is a zero rate.
func (f baseFeeRate) rate() *big.Rat {
	if f.satsPerKWU == nil {
		return new(big.Rat)
	}

	return f.satsPerKWU
}

// Cmp compares two fee rates regardless of the unit they are viewed in. It
// returns -1, 0 or +1 like big.Rat.Cmp.
func (f baseFeeRate) Cmp(other FeeRate) int {
	return f.rate().Cmp(other.rate())
}

// IsZero returns whether the fee rate is zero.
func (f baseFeeRate) IsZero() bool {
	return f.rate().Sign() == 0
}

// SatPerVByte is a fee rate viewed in sat/vbyte.
type SatPerVByte struct {
	baseFeeRate
}

// A compile-time assertion to ensure that all fee rate views implement the
// FeeRate interface.
var (
	_ FeeRate = SatPerVByte{}
	_ FeeRate = SatPerKVByte{}
	_ FeeRate = SatPerKWeight{}
)

// NewSatPerVByte creates a fee rate of rate sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return CalcSatPerVByte(rate, NewVByte(1))
}

// CalcSatPerVByte returns the fee rate paid by a fee over a virtual size.
func CalcSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	return SatPerVByte{newBaseFeeRate(fee*kilo, vb.wu)}
}

// NewSatPerVByteFromFloat creates a fee rate from a fractional sat/vb
// quote, as fee estimation services publish them. The quote is rounded to
// the nearest 0.001 sat/vb.
func NewSatPerVByteFromFloat(rate float64) (SatPerVByte, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 ||
		rate*kilo > math.MaxInt64 {

		return SatPerVByte{}, fmt.Errorf("%w: %v sat/vb",
			ErrInvalidFeeRate, rate)
	}

	// A milli-sat/vb is 1/4 sat/kwu.
	milliSats := int64(math.Round(rate * kilo))

	return SatPerVByte{baseFeeRate{satsPerKWU: big.NewRat(
		milliSats, blockchain.WitnessScaleFactor,
	)}}, nil
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	rate := new(big.Rat).Mul(
		s.rate(), big.NewRat(blockchain.WitnessScaleFactor, kilo),
	)

	return rate.FloatString(floatStringPrecision) + " sat/vb"
}

// SatPerKVByte is a fee rate viewed in sat/kvbyte, the unit of bitcoind's
// fee estimator and relay policy.
type SatPerKVByte struct {
	baseFeeRate
}

// NewSatPerKVByte creates a fee rate of rate sat/kvb.
func NewSatPerKVByte(rate btcutil.Amount) SatPerKVByte {
	return CalcSatPerKVByte(rate, NewKVByte(1))
}

// CalcSatPerKVByte returns the fee rate paid by a fee over a size in
// kilo-vbytes.
func CalcSatPerKVByte(fee btcutil.Amount, kvb KVByte) SatPerKVByte {
	return SatPerKVByte{newBaseFeeRate(fee*kilo, kvb.wu)}
}

// NewSatPerKVByteFromBTC creates a fee rate from a BTC/kvb quote, as
// returned by the estimatesmartfee RPC.
func NewSatPerKVByteFromBTC(btcPerKVB float64) (SatPerKVByte, error) {
	if math.IsNaN(btcPerKVB) || math.IsInf(btcPerKVB, 0) ||
		btcPerKVB < 0 {

		return SatPerKVByte{}, fmt.Errorf("%w: %v BTC/kvb",
			ErrInvalidFeeRate, btcPerKVB)
	}

	amt, err := btcutil.NewAmount(btcPerKVB)
	if err != nil {
		return SatPerKVByte{}, fmt.Errorf("%w: %w", ErrInvalidFeeRate,
			err)
	}

	return NewSatPerKVByte(amt), nil
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	rate := new(big.Rat).Mul(
		s.rate(), big.NewRat(blockchain.WitnessScaleFactor, 1),
	)

	return rate.FloatString(floatStringPrecision) + " sat/kvb"
}

// SatPerKWeight is a fee rate viewed in sat/kw.
type SatPerKWeight struct {
	baseFeeRate
}

// NewSatPerKWeight creates a fee rate of rate sat/kw.
func NewSatPerKWeight(rate btcutil.Amount) SatPerKWeight {
	return CalcSatPerKWeight(rate, NewKWeightUnit(1))
}

// CalcSatPerKWeight returns the fee rate paid by a fee over a weight in
// kilo-weight-units.
func CalcSatPerKWeight(fee btcutil.Amount, kwu KWeightUnit) SatPerKWeight {
	return SatPerKWeight{newBaseFeeRate(fee*kilo, kwu.wu)}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKWeight) String() string {
	return s.rate().FloatString(floatStringPrecision) + " sat/kw"
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at
// math.MaxInt64. Weights and sizes never get near the cap.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
