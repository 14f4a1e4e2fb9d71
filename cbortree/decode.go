// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cbortree

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// maxNestedLevels bounds the depth of decoded trees. Script trees nest at most
// a handful of levels, so anything deeper is hostile input.
const maxNestedLevels = 32

// ErrMalformed is returned when the input is not a well formed CBOR item, has
// trailing bytes, or contains an item kind outside the supported set.
var ErrMalformed = errors.New("malformed binary")

var (
	cachedDecMode     cbor.DecMode
	cachedDecModeErr  error
	cachedDecModeOnce sync.Once

	cachedEncMode     cbor.EncMode
	cachedEncModeErr  error
	cachedEncModeOnce sync.Once
)

// getDecMode returns the cached decoding mode, creating it on first use.
func getDecMode() (cbor.DecMode, error) {
	cachedDecModeOnce.Do(func() {
		opts := cbor.DecOptions{
			DupMapKey:        cbor.DupMapKeyEnforcedAPF,
			MaxNestedLevels:  maxNestedLevels,
			MapKeyByteString: cbor.MapKeyByteStringAllowed,
			IndefLength:      cbor.IndefLengthForbidden,
		}
		cachedDecMode, cachedDecModeErr = opts.DecMode()
	})

	return cachedDecMode, cachedDecModeErr
}

// getEncMode returns the cached encoding mode, creating it on first use.
func getEncMode() (cbor.EncMode, error) {
	cachedEncModeOnce.Do(func() {
		opts := cbor.EncOptions{
			Sort: cbor.SortCanonical,
		}
		cachedEncMode, cachedEncModeErr = opts.EncMode()
	})

	return cachedEncMode, cachedEncModeErr
}

// Decode parses data as exactly one CBOR item and converts it into a Value.
// Truncated input, trailing bytes, duplicate map keys, indefinite lengths and
// unsupported item kinds all fail with ErrMalformed.
func Decode(data []byte) (Value, error) {
	dm, err := getDecMode()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := dm.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return fromAny(raw)
}

// fromAny converts the generic result of the CBOR library into the closed
// Value tree.
func fromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case uint64:
		return Int{Magnitude: v}, nil

	case int64:
		if v >= 0 {
			return Int{Magnitude: uint64(v)}, nil
		}

		return Int{Negative: true, Magnitude: uint64(-1 - v)}, nil

	case []byte:
		return Bytes(v), nil

	case cbor.ByteString:
		return Bytes(v), nil

	case string:
		return Text(v), nil

	case bool:
		return Bool(v), nil

	case []any:
		arr := make(Array, 0, len(v))
		for i, item := range v {
			val, err := fromAny(item)
			if err != nil {
				return nil, fmt.Errorf("array item %d: %w", i, err)
			}
			arr = append(arr, val)
		}

		return arr, nil

	case map[any]any:
		return mapFromAny(v)

	case cbor.Tag:
		content, err := fromAny(v.Content)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", v.Number, err)
		}

		return Tag{Number: v.Number, Content: content}, nil

	case nil:
		return nil, fmt.Errorf("%w: null or undefined item",
			ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: unsupported item of type %T",
			ErrMalformed, raw)
	}
}

// mapFromAny converts a decoded map. Entries are sorted by key so that the
// resulting Value does not depend on Go map iteration order.
func mapFromAny(raw map[any]any) (Value, error) {
	m := make(Map, 0, len(raw))
	for k, v := range raw {
		key, err := fromAny(k)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}

		val, err := fromAny(v)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}

		m = append(m, Entry{Key: key, Value: val})
	}

	sort.Slice(m, func(i, j int) bool {
		return lessKey(m[i].Key, m[j].Key)
	})

	return m, nil
}

// lessKey orders map keys by kind first, then by value.
func lessKey(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return a.Kind() < b.Kind()
	}

	switch ka := a.(type) {
	case Int:
		kb := b.(Int)
		if ka.Negative != kb.Negative {
			return ka.Negative
		}
		if ka.Negative {
			return ka.Magnitude > kb.Magnitude
		}

		return ka.Magnitude < kb.Magnitude

	case Bytes:
		return string(ka) < string(b.(Bytes))

	case Text:
		return ka < b.(Text)

	case Bool:
		return !bool(ka) && bool(b.(Bool))
	}

	return false
}

// Encode serializes v using the canonical CBOR encoding.
func Encode(v Value) ([]byte, error) {
	raw, err := toAny(v)
	if err != nil {
		return nil, err
	}

	em, err := getEncMode()
	if err != nil {
		return nil, err
	}

	return em.Marshal(raw)
}

// EncodeBytes wraps data in a CBOR byte string. This is the payload format of
// a crypto-psbt UR.
func EncodeBytes(data []byte) ([]byte, error) {
	return Encode(Bytes(data))
}

// DecodeBytes is the inverse of EncodeBytes.
func DecodeBytes(data []byte) ([]byte, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}

	b, ok := v.(Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: expected byte string, got %v",
			ErrMalformed, v.Kind())
	}

	return b, nil
}

// toAny converts a Value into the generic form understood by the CBOR
// library.
func toAny(v Value) (any, error) {
	switch val := v.(type) {
	case Int:
		if !val.Negative {
			return val.Magnitude, nil
		}

		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("negative integer -1-%d out of "+
				"range", val.Magnitude)
		}

		return i, nil

	case Bytes:
		return []byte(val), nil

	case Text:
		return string(val), nil

	case Bool:
		return bool(val), nil

	case Array:
		out := make([]any, 0, len(val))
		for _, item := range val {
			raw, err := toAny(item)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}

		return out, nil

	case Map:
		out := make(map[any]any, len(val))
		for _, e := range val {
			key, err := keyToAny(e.Key)
			if err != nil {
				return nil, err
			}

			raw, err := toAny(e.Value)
			if err != nil {
				return nil, err
			}
			out[key] = raw
		}

		return out, nil

	case Tag:
		content, err := toAny(val.Content)
		if err != nil {
			return nil, err
		}

		return cbor.Tag{Number: val.Number, Content: content}, nil

	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// keyToAny converts a map key. Only comparable kinds are allowed as keys.
func keyToAny(v Value) (any, error) {
	switch key := v.(type) {
	case Bytes:
		return cbor.ByteString(key), nil

	case Int, Text, Bool:
		return toAny(key)

	default:
		return nil, fmt.Errorf("unsupported map key kind %v", v.Kind())
	}
}
