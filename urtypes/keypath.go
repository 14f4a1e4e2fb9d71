// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcsweep/cbortree"
)

// PathComponent is one step of a derivation path. The hardened flag is kept
// separately from the index, which is always below 2^31.
type PathComponent struct {
	// Index is the child index. It is meaningless when Wildcard is set.
	Index uint32

	// Wildcard marks a `*` step that stands for every index.
	Wildcard bool

	// Hardened marks a hardened derivation step.
	Hardened bool
}

// String renders the component the way descriptors do, e.g. `44h` or `*`.
func (c PathComponent) String() string {
	s := "*"
	if !c.Wildcard {
		s = strconv.FormatUint(uint64(c.Index), 10)
	}

	if c.Hardened {
		s += "h"
	}

	return s
}

// ChildIndex returns the BIP32 child number of a concrete component, with
// the hardened offset applied.
func (c PathComponent) ChildIndex() uint32 {
	if c.Hardened {
		return c.Index + hdkeychain.HardenedKeyStart
	}

	return c.Index
}

// Keypath is a crypto-keypath: a derivation path, the fingerprint of the key
// it starts from and the depth of the key it leads to.
type Keypath struct {
	// Components are the derivation steps in order.
	Components []PathComponent

	// SourceFingerprint is the fingerprint of the key the path starts
	// from. Zero means unknown.
	SourceFingerprint uint32

	// Depth is the depth of the derived key. When not encoded it equals
	// the number of components.
	Depth uint8
}

// String renders the components as `/44h/0h/0h`. The fingerprint is not part
// of the result.
func (k Keypath) String() string {
	var sb strings.Builder
	for _, c := range k.Components {
		sb.WriteByte('/')
		sb.WriteString(c.String())
	}

	return sb.String()
}

// HasWildcard returns whether any component is a wildcard.
func (k Keypath) HasWildcard() bool {
	for _, c := range k.Components {
		if c.Wildcard {
			return true
		}
	}

	return false
}

// decodeKeypath reconstructs a Keypath from a crypto-keypath map.
func decodeKeypath(v cbortree.Value, rule tagRule) (Keypath, error) {
	content, err := unwrapTag(v, TagKeypath, rule)
	if err != nil {
		return Keypath{}, err
	}

	fields, err := asFieldMap(content, "keypath")
	if err != nil {
		return Keypath{}, err
	}

	var path Keypath

	// A keypath may carry only a fingerprint and a depth.
	if raw, ok := fields.get(1); ok {
		path.Components, err = decodeComponents(raw)
		if err != nil {
			return Keypath{}, err
		}
	}

	path.SourceFingerprint, _, err = fields.uint32Field(2)
	if err != nil {
		return Keypath{}, err
	}

	depth, ok, err := fields.uintField(3)
	switch {
	case err != nil:
		return Keypath{}, err

	case !ok:
		depth = uint64(len(path.Components))

	case depth < uint64(len(path.Components)):
		return Keypath{}, errorf(ErrInvalidField, "keypath: depth %d "+
			"is less than the %d path components", depth,
			len(path.Components))
	}

	if depth > math.MaxUint8 {
		return Keypath{}, errorf(ErrInvalidField, "keypath: depth %d "+
			"out of range", depth)
	}
	path.Depth = uint8(depth)

	return path, nil
}

// decodeComponents reads the flat component array, which alternates a child
// index (or an empty array for a wildcard) with its hardened flag.
func decodeComponents(v cbortree.Value) ([]PathComponent, error) {
	arr, ok := v.(cbortree.Array)
	if !ok {
		return nil, errorf(ErrInvalidField, "keypath: components must "+
			"be an array, got %v", v.Kind())
	}

	if len(arr)%2 != 0 {
		return nil, errorf(ErrInvalidField, "keypath: odd number of "+
			"component items (%d)", len(arr))
	}

	components := make([]PathComponent, 0, len(arr)/2)
	for i := 0; i < len(arr); i += 2 {
		var c PathComponent

		switch index := arr[i].(type) {
		case cbortree.Int:
			n, isUint := index.Uint()
			if !isUint || n >= hdkeychain.HardenedKeyStart {
				return nil, errorf(ErrInvalidField, "keypath: "+
					"child index out of range in component "+
					"%d", i/2)
			}
			c.Index = uint32(n)

		case cbortree.Array:
			// Ranges of the form [low, high] are not used by any
			// descriptor we can render.
			if len(index) != 0 {
				return nil, errorf(ErrInvalidField, "keypath: "+
					"index ranges are not supported")
			}
			c.Wildcard = true

		default:
			return nil, errorf(ErrInvalidField, "keypath: "+
				"unexpected %v in component %d", arr[i].Kind(),
				i/2)
		}

		hardened, isBool := arr[i+1].(cbortree.Bool)
		if !isBool {
			return nil, errorf(ErrInvalidField, "keypath: hardened "+
				"flag of component %d must be a bool", i/2)
		}
		c.Hardened = bool(hardened)

		components = append(components, c)
	}

	return components, nil
}

// keypathField reads the optional keypath stored under key. The nested value
// must carry its tag.
func keypathField(f fieldMap, key uint64) (*Keypath, error) {
	v, ok := f.get(key)
	if !ok {
		return nil, nil
	}

	path, err := decodeKeypath(v, tagRequired)
	if err != nil {
		return nil, err
	}

	return &path, nil
}
