// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// Render renders a decoded script tree as output descriptor text, without a
// checksum. Rendering the same tree always yields the same text.
func Render(node ScriptNode) (string, error) {
	var sb strings.Builder
	if err := renderNode(&sb, node); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// renderNode writes the descriptor text of node into sb.
func renderNode(sb *strings.Builder, node ScriptNode) error {
	switch n := node.(type) {
	case *Wrapper:
		sb.WriteString(n.Kind.String())
		sb.WriteByte('(')
		if err := renderNode(sb, n.Inner); err != nil {
			return err
		}
		sb.WriteByte(')')

	case *Multisig:
		if n.Sorted {
			sb.WriteString("sortedmulti(")
		} else {
			sb.WriteString("multi(")
		}
		sb.WriteString(strconv.FormatUint(uint64(n.Threshold), 10))

		for _, key := range n.Keys {
			sb.WriteByte(',')

			s, err := RenderKey(key)
			if err != nil {
				return err
			}
			sb.WriteString(s)
		}
		sb.WriteByte(')')

	case *KeyLeaf:
		s, err := RenderKey(n.Key)
		if err != nil {
			return err
		}
		sb.WriteString(s)

	default:
		return fmt.Errorf("unknown script node %T", node)
	}

	return nil
}

// RenderKey renders a key expression: the origin in brackets, the key itself
// and the child derivation suffix. Bare public keys render as hex and bare
// private keys as WIF, both without an origin.
func RenderKey(k *KeyMaterial) (string, error) {
	if !k.IsExtended() {
		return renderBareKey(k)
	}

	var sb strings.Builder
	if k.Origin != nil {
		sb.WriteString(renderOrigin(k.Origin))
	}

	xkey, err := k.ExtendedKey()
	if err != nil {
		return "", err
	}
	sb.WriteString(xkey.String())

	if k.Children != nil {
		sb.WriteString(k.Children.String())
	}

	return sb.String(), nil
}

// renderOrigin renders the key origin prefix, such as `[d34db33f/44h/0h/0h]`.
// An unknown fingerprint renders as `m`. An origin without fingerprint and
// without components carries no information and renders as nothing.
func renderOrigin(origin *Keypath) string {
	if origin.SourceFingerprint == 0 && len(origin.Components) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteByte('[')
	if origin.SourceFingerprint == 0 {
		sb.WriteByte('m')
	} else {
		fmt.Fprintf(&sb, "%08x", origin.SourceFingerprint)
	}
	sb.WriteString(origin.String())
	sb.WriteByte(']')

	return sb.String()
}

// renderBareKey renders a key without chain code.
func renderBareKey(k *KeyMaterial) (string, error) {
	if !k.IsPrivate {
		return hex.EncodeToString(k.KeyData), nil
	}

	priv, _ := btcec.PrivKeyFromBytes(k.KeyData)
	wif, err := btcutil.NewWIF(priv, k.UseInfo.Network.Params(), true)
	if err != nil {
		return "", err
	}

	return wif.String(), nil
}
