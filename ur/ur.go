// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ur implements the `ur:<type>/<bytewords>` envelope used to move
// descriptors, addresses, keys and PSBTs to and from airgapped signers.
// Only single part URs are supported.
package ur

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/bytewords"
	"github.com/btcsuite/btcsweep/cbortree"
	"github.com/btcsuite/btcsweep/descriptor"
	"github.com/btcsuite/btcsweep/urtypes"
)

// scheme is the URI scheme of every UR, compared case-insensitively.
const scheme = "ur:"

// The UR types understood by this package.
const (
	TypePSBT    = "crypto-psbt"
	TypeOutput  = "crypto-output"
	TypeAddress = "crypto-address"
	TypeHDKey   = "crypto-hdkey"
	TypeECKey   = "crypto-eckey"
)

var (
	// ErrNotUR is returned when the text doesn't start with the UR scheme.
	ErrNotUR = errors.New("not a UR")

	// ErrInvalidType is returned for a UR type with characters outside
	// lowercase letters, digits and hyphens.
	ErrInvalidType = errors.New("invalid UR type")

	// ErrMultipart is returned for the sequence form of a UR, which
	// splits a payload over several parts.
	ErrMultipart = errors.New("multipart URs are not supported")

	// ErrUnexpectedType is returned when a UR of another type than the
	// one asked for is decoded.
	ErrUnexpectedType = errors.New("unexpected UR type")

	// ErrNetworkMismatch is returned when an address belongs to another
	// network than the selected one.
	ErrNetworkMismatch = errors.New("address network mismatch")
)

// UR is a decoded single part UR: its type and its binary payload.
type UR struct {
	Type string
	CBOR []byte
}

// New creates a UR after checking its type.
func New(urType string, cbor []byte) (*UR, error) {
	if err := checkType(urType); err != nil {
		return nil, err
	}

	return &UR{Type: urType, CBOR: cbor}, nil
}

// IsUR returns whether the text uses the UR scheme. The check ignores case
// since URs are often transported as uppercase QR codes.
func IsUR(s string) bool {
	return len(s) >= len(scheme) &&
		strings.EqualFold(s[:len(scheme)], scheme)
}

// Parse decodes a single part UR.
func Parse(s string) (*UR, error) {
	s = strings.TrimSpace(s)
	if !IsUR(s) {
		return nil, ErrNotUR
	}

	s = strings.ToLower(s[len(scheme):])

	parts := strings.Split(s, "/")
	switch {
	case len(parts) == 3:
		return nil, ErrMultipart

	case len(parts) != 2:
		return nil, fmt.Errorf("%w: expected ur:<type>/<payload>",
			ErrNotUR)
	}

	if err := checkType(parts[0]); err != nil {
		return nil, err
	}

	payload, err := bytewords.DecodeMinimal(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", parts[0], err)
	}

	log.Tracef("Decoded %s UR with a %d byte payload", parts[0],
		len(payload))

	return &UR{Type: parts[0], CBOR: payload}, nil
}

// checkType checks the UR type charset.
func checkType(urType string) error {
	if urType == "" {
		return fmt.Errorf("%w: empty", ErrInvalidType)
	}

	for _, c := range urType {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidType, urType)
		}
	}

	return nil
}

// String encodes the UR as text, with its payload in minimal bytewords.
func (u *UR) String() string {
	return scheme + u.Type + "/" + bytewords.EncodeMinimal(u.CBOR)
}

// parseType parses a UR and checks that it has the expected type.
func parseType(s, urType string) (*UR, error) {
	u, err := Parse(s)
	if err != nil {
		return nil, err
	}

	if u.Type != urType {
		return nil, fmt.Errorf("%w: got %s, want %s",
			ErrUnexpectedType, u.Type, urType)
	}

	return u, nil
}

// EncodePSBT serializes a PSBT as a crypto-psbt UR.
func EncodePSBT(packet *psbt.Packet) (string, error) {
	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize psbt: %w", err)
	}

	payload, err := cbortree.EncodeBytes(buf.Bytes())
	if err != nil {
		return "", err
	}

	u := &UR{Type: TypePSBT, CBOR: payload}

	return u.String(), nil
}

// DecodePSBT parses a crypto-psbt UR.
func DecodePSBT(s string) (*psbt.Packet, error) {
	u, err := parseType(s, TypePSBT)
	if err != nil {
		return nil, err
	}

	raw, err := cbortree.DecodeBytes(u.CBOR)
	if err != nil {
		return nil, err
	}

	return psbt.NewFromRawBytes(bytes.NewReader(raw), false)
}

// DecodeOutput decodes a crypto-output UR into descriptor text, with the
// descriptor checksum appended when withChecksum is set.
func DecodeOutput(s string, withChecksum bool) (string, error) {
	u, err := parseType(s, TypeOutput)
	if err != nil {
		return "", err
	}

	v, err := urtypes.DecodeBinary(u.CBOR)
	if err != nil {
		return "", err
	}

	node, err := urtypes.DecodeOutput(v)
	if err != nil {
		return "", err
	}

	desc, err := urtypes.Render(node)
	if err != nil {
		return "", err
	}

	if !withChecksum {
		return desc, nil
	}

	return descriptor.AddChecksum(desc)
}

// DecodeKey decodes a crypto-hdkey or crypto-eckey UR into a descriptor key
// expression.
func DecodeKey(s string) (string, error) {
	u, err := Parse(s)
	if err != nil {
		return "", err
	}

	v, err := urtypes.DecodeBinary(u.CBOR)
	if err != nil {
		return "", err
	}

	var key *urtypes.KeyMaterial
	switch u.Type {
	case TypeHDKey:
		key, err = urtypes.DecodeHDKey(v)

	case TypeECKey:
		key, err = urtypes.DecodeECKey(v)

	default:
		return "", fmt.Errorf("%w: %s is not a key", ErrUnexpectedType,
			u.Type)
	}
	if err != nil {
		return "", err
	}

	return urtypes.RenderKey(key)
}

// DecodeAddress decodes a crypto-address UR into an address of the given
// network.
func DecodeAddress(s string, params *chaincfg.Params) (btcutil.Address,
	error) {

	u, err := parseType(s, TypeAddress)
	if err != nil {
		return nil, err
	}

	v, err := urtypes.DecodeBinary(u.CBOR)
	if err != nil {
		return nil, err
	}

	addr, err := urtypes.DecodeAddress(v)
	if err != nil {
		return nil, err
	}

	if addr.Info.Network != urtypes.NetworkForParams(params) {
		return nil, fmt.Errorf("%w: %v address on %s",
			ErrNetworkMismatch, addr.Info.Network, params.Name)
	}

	return addr.BtcutilAddressForNet(params)
}

// ResolveDescriptor returns the descriptor text of s, decoding it first when
// it is a crypto-output UR. Other text is returned unchanged.
func ResolveDescriptor(s string, withChecksum bool) (string, error) {
	if !IsUR(s) {
		return s, nil
	}

	desc, err := DecodeOutput(s, withChecksum)
	if err != nil {
		return "", err
	}
	log.Debugf("Decoded output descriptor %s", desc)

	return desc, nil
}

// ResolveAddress returns the address of s, decoding it first when it is a
// crypto-address UR.
func ResolveAddress(s string, params *chaincfg.Params) (btcutil.Address,
	error) {

	if IsUR(s) {
		return DecodeAddress(s, params)
	}

	addr, err := btcutil.DecodeAddress(strings.TrimSpace(s), params)
	if err != nil {
		return nil, err
	}

	if !addr.IsForNet(params) {
		return nil, fmt.Errorf("%w: %s is not for %s",
			ErrNetworkMismatch, s, params.Name)
	}

	return addr, nil
}
