// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cbortree decodes CBOR into a small closed value tree holding only
// the kinds used by the airgapped UR formats: integers, byte and text
// strings, booleans, arrays, maps and tags. Anything else, such as floats,
// null or simple values, is rejected as malformed.
package cbortree

import (
	"fmt"
	"math"
)

// Value is a decoded CBOR item. It is a sealed interface and is only
// implemented by the types of this package.
type Value interface {
	// isValue is the sealed interface marker.
	isValue()

	// Kind returns the kind of the value.
	Kind() Kind
}

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	// KindInt is an unsigned or negative integer.
	KindInt Kind = iota

	// KindBytes is a byte string.
	KindBytes

	// KindText is a UTF-8 text string.
	KindText

	// KindBool is a boolean.
	KindBool

	// KindArray is an ordered sequence of values.
	KindArray

	// KindMap is a set of key/value pairs with unique keys.
	KindMap

	// KindTag is a tagged value.
	KindTag
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindBytes:
		return "byte string"
	case KindText:
		return "text string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Int is a CBOR integer. Non-negative integers hold their value in Magnitude.
// Negative integers set Negative and hold the encoded argument, so the value
// is -1 - Magnitude.
type Int struct {
	Negative  bool
	Magnitude uint64
}

// Uint returns the value of a non-negative integer. ok is false for negative
// integers.
func (i Int) Uint() (uint64, bool) {
	if i.Negative {
		return 0, false
	}

	return i.Magnitude, true
}

// Int64 returns the value as an int64. ok is false when it does not fit.
func (i Int) Int64() (int64, bool) {
	if i.Magnitude > math.MaxInt64 {
		return 0, false
	}

	if i.Negative {
		return -1 - int64(i.Magnitude), true
	}

	return int64(i.Magnitude), true
}

// Bytes is a CBOR byte string.
type Bytes []byte

// Text is a CBOR text string.
type Text string

// Bool is a CBOR boolean.
type Bool bool

// Array is a CBOR array.
type Array []Value

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map is a CBOR map. Keys are unique; the order of the entries carries no
// meaning.
type Map []Entry

// Get returns the value stored under the non-negative integer key.
func (m Map) Get(key uint64) (Value, bool) {
	for _, e := range m {
		k, ok := e.Key.(Int)
		if !ok || k.Negative || k.Magnitude != key {
			continue
		}

		return e.Value, true
	}

	return nil, false
}

// Tag is a CBOR tagged value.
type Tag struct {
	Number  uint64
	Content Value
}

// NewUint returns an Int holding the non-negative value v.
func NewUint(v uint64) Int {
	return Int{Magnitude: v}
}

func (Int) isValue()   {}
func (Bytes) isValue() {}
func (Text) isValue()  {}
func (Bool) isValue()  {}
func (Array) isValue() {}
func (Map) isValue()   {}
func (Tag) isValue()   {}

// Kind returns KindInt.
func (Int) Kind() Kind { return KindInt }

// Kind returns KindBytes.
func (Bytes) Kind() Kind { return KindBytes }

// Kind returns KindText.
func (Text) Kind() Kind { return KindText }

// Kind returns KindBool.
func (Bool) Kind() Kind { return KindBool }

// Kind returns KindArray.
func (Array) Kind() Kind { return KindArray }

// Kind returns KindMap.
func (Map) Kind() Kind { return KindMap }

// Kind returns KindTag.
func (Tag) Kind() Kind { return KindTag }

// A compile-time assertion to ensure that all value types implement the
// Value interface.
var (
	_ Value = Int{}
	_ Value = Bytes(nil)
	_ Value = Text("")
	_ Value = Bool(false)
	_ Value = Array(nil)
	_ Value = Map(nil)
	_ Value = Tag{}
)
