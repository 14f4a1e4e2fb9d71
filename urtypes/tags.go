// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"math"

	"github.com/btcsuite/btcsweep/cbortree"
)

// Registered CBOR tags of the crypto-* UR types.
const (
	TagHDKey    uint64 = 303
	TagKeypath  uint64 = 304
	TagCoinInfo uint64 = 305
	TagECKey    uint64 = 306
	TagAddress  uint64 = 307

	TagScriptHash        uint64 = 400
	TagWitnessScriptHash uint64 = 401
	TagPublicKey         uint64 = 402
	TagPubKeyHash        uint64 = 403
	TagWitnessPubKeyHash uint64 = 404
	TagCombo             uint64 = 405
	TagMultisig          uint64 = 406
	TagSortedMultisig    uint64 = 407
	TagRawScript         uint64 = 408
	TagTaproot           uint64 = 409
	TagCosigner          uint64 = 410
)

// tagRule states whether the outer tag of a value may be left out.
type tagRule uint8

const (
	// tagRequired rejects a value that is not wrapped in the tag.
	tagRequired tagRule = iota

	// tagOptional accepts both the tagged and the bare form.
	tagOptional
)

// unwrapTag checks that v carries the expected tag and returns its content.
// With tagOptional an untagged value is returned as is, but a value carrying
// a different tag is still rejected.
func unwrapTag(v cbortree.Value, tag uint64, rule tagRule) (cbortree.Value,
	error) {

	t, ok := v.(cbortree.Tag)
	if !ok {
		if rule == tagOptional {
			return v, nil
		}

		return nil, errorf(ErrUnexpectedTag, "expected tag %d, got "+
			"untagged %v", tag, v.Kind())
	}

	if t.Number != tag {
		return nil, errorf(ErrUnexpectedTag, "expected tag %d, got "+
			"tag %d", tag, t.Number)
	}

	return t.Content, nil
}

// fieldMap is the integer keyed map every crypto-* structure is built from.
type fieldMap struct {
	name   string
	fields cbortree.Map
}

// asFieldMap checks that v is a map and wraps it for field access. The name
// is used in error messages.
func asFieldMap(v cbortree.Value, name string) (fieldMap, error) {
	m, ok := v.(cbortree.Map)
	if !ok {
		return fieldMap{}, errorf(ErrInvalidField, "%s: expected map, "+
			"got %v", name, v.Kind())
	}

	return fieldMap{name: name, fields: m}, nil
}

// get returns the raw value of a field.
func (f fieldMap) get(key uint64) (cbortree.Value, bool) {
	return f.fields.Get(key)
}

// uintField returns an unsigned integer field. ok is false when the field is
// absent.
func (f fieldMap) uintField(key uint64) (uint64, bool, error) {
	v, ok := f.fields.Get(key)
	if !ok {
		return 0, false, nil
	}

	i, isInt := v.(cbortree.Int)
	if !isInt {
		return 0, false, errorf(ErrInvalidField, "%s field %d: "+
			"expected integer, got %v", f.name, key, v.Kind())
	}

	n, isUint := i.Uint()
	if !isUint {
		return 0, false, errorf(ErrInvalidField, "%s field %d: "+
			"negative integer", f.name, key)
	}

	return n, true, nil
}

// uint32Field returns an unsigned integer field that must fit in 32 bits.
func (f fieldMap) uint32Field(key uint64) (uint32, bool, error) {
	n, ok, err := f.uintField(key)
	if err != nil || !ok {
		return 0, ok, err
	}

	if n > math.MaxUint32 {
		return 0, false, errorf(ErrInvalidField, "%s field %d: value "+
			"%d exceeds 32 bits", f.name, key, n)
	}

	return uint32(n), true, nil
}

// boolField returns a boolean field, or def when the field is absent.
func (f fieldMap) boolField(key uint64, def bool) (bool, error) {
	v, ok := f.fields.Get(key)
	if !ok {
		return def, nil
	}

	b, isBool := v.(cbortree.Bool)
	if !isBool {
		return false, errorf(ErrInvalidField, "%s field %d: expected "+
			"bool, got %v", f.name, key, v.Kind())
	}

	return bool(b), nil
}

// bytesField returns a byte string field. ok is false when the field is
// absent.
func (f fieldMap) bytesField(key uint64) ([]byte, bool, error) {
	v, ok := f.fields.Get(key)
	if !ok {
		return nil, false, nil
	}

	b, isBytes := v.(cbortree.Bytes)
	if !isBytes {
		return nil, false, errorf(ErrInvalidField, "%s field %d: "+
			"expected byte string, got %v", f.name, key, v.Kind())
	}

	return []byte(b), true, nil
}

// requiredBytes returns a byte string field that must be present.
func (f fieldMap) requiredBytes(key uint64) ([]byte, error) {
	b, ok, err := f.bytesField(key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, errorf(ErrMissingField, "%s: missing field %d",
			f.name, key)
	}

	return b, nil
}

// textField returns a text string field, or the empty string when absent.
func (f fieldMap) textField(key uint64) (string, error) {
	v, ok := f.fields.Get(key)
	if !ok {
		return "", nil
	}

	s, isText := v.(cbortree.Text)
	if !isText {
		return "", errorf(ErrInvalidField, "%s field %d: expected "+
			"text, got %v", f.name, key, v.Kind())
	}

	return string(s), nil
}
