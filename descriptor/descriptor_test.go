package descriptor

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const (
	// srcXpub is the account key of a pkh wallet at [c258d2e4/44h/1h/0h].
	srcXpub = "tpubD6NzVbkrYhZ4Yg9Rz1bXTTrc4TqZ8odbPaXrnrWX6cbDsXvH96FLDeR" +
		"sckXohEkzGdAn5hbtK6iN7pCB1DeUpVwofEXCsN2StwWtU2SxE3f"

	// dstXpub is the account key of a wpkh wallet at [c258d2e4/84h/1h/1h].
	dstXpub = "tpubDDYkZojQFQjht8Tm4jsS3iuEmKjTiEGjG6KnuFNKKJb5A6ZUCUZKdvL" +
		"dSDWofKi4ToRCwb9poe1XdqfUnP4jaJjCB2Zwv11ZLgSbnZSNecE"

	srcReceive = "pkh([c258d2e4/44h/1h/0h]" + srcXpub + "/0/*)"
	srcChange  = "pkh([c258d2e4/44h/1h/0h]" + srcXpub + "/1/*)"
	dstReceive = "wpkh([c258d2e4/84h/1h/1h]" + dstXpub + "/0/*)"

	multiKey1 = "022f01e5e15cca351daff3843fb70f3c2f0a1bdd05e5af888a67784e" +
		"f3e10a2a01"
	multiKey2 = "03acd484e2f0c7f65309ad178a9f559abde09796974c57e714c35f11" +
		"0dfc27ccbe"
)

// fingerprint returns the PSBT form of the c258d2e4 master fingerprint.
func fingerprint() uint32 {
	return binary.LittleEndian.Uint32([]byte{0xc2, 0x58, 0xd2, 0xe4})
}

// TestChecksum tests descriptor checksum computation and verification.
func TestChecksum(t *testing.T) {
	t.Parallel()

	sum, err := Checksum("raw(deadbeef)")
	require.NoError(t, err)
	require.Equal(t, "89f8spxm", sum)

	withSum, err := AddChecksum(srcReceive)
	require.NoError(t, err)
	require.Equal(t, srcReceive+"#9stkkg35", withSum)

	// Adding a checksum to a checksummed descriptor verifies it.
	again, err := AddChecksum(withSum)
	require.NoError(t, err)
	require.Equal(t, withSum, again)

	_, err = AddChecksum(srcReceive + "#9stkkg36")
	require.ErrorIs(t, err, ErrInvalidChecksum)

	_, err = AddChecksum(srcReceive + "#9stkkg3")
	require.ErrorIs(t, err, ErrInvalidChecksum)

	_, err = Checksum("pkh(é)")
	require.ErrorIs(t, err, ErrInvalidChecksum)

	desc, err := Parse(srcChange+"#5ywhtapv", &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, srcChange+"#5ywhtapv", desc.String())

	_, err = Parse(srcChange+"#9stkkg35", &chaincfg.RegressionNetParams)
	require.ErrorIs(t, err, ErrInvalidChecksum)
}

// TestAddresses tests address derivation against known wallet addresses.
func TestAddresses(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		desc   string
		params *chaincfg.Params
		index  uint32
		want   string
	}{
		{
			name:   "pkh receive 0",
			desc:   srcReceive,
			params: &chaincfg.RegressionNetParams,
			index:  0,
			want:   "mn9qXHZsAQT6A1fkMvi5nmWmCzUEyLWZhv",
		},
		{
			name:   "pkh receive 1",
			desc:   srcReceive,
			params: &chaincfg.RegressionNetParams,
			index:  1,
			want:   "mqcxhkif3CQjmEWHGKJibMxRrNv8FKfnve",
		},
		{
			name:   "pkh receive 3",
			desc:   srcReceive,
			params: &chaincfg.RegressionNetParams,
			index:  3,
			want:   "mvCntejWFwemnhSsCU51s7UKHqV37jn41V",
		},
		{
			name:   "pkh change 0",
			desc:   srcChange,
			params: &chaincfg.RegressionNetParams,
			index:  0,
			want:   "mtDh4jQfAZg9DFnX6nirXLokjXN3tDtHUg",
		},
		{
			name:   "wpkh receive 1",
			desc:   dstReceive,
			params: &chaincfg.RegressionNetParams,
			index:  1,
			want:   "bcrt1qvctwrh8ckrex8daxya4xleaevcp299tt0v37w9",
		},
		{
			name:   "sh wpkh receive 1",
			desc:   "sh(" + dstReceive + ")",
			params: &chaincfg.RegressionNetParams,
			index:  1,
			want:   "2MtdoW22WZN9ZmGodwBNEpYSptmBbaWcPt6",
		},
		{
			name:   "tr receive 1",
			desc:   "tr(" + dstXpub + "/0/*)",
			params: &chaincfg.RegressionNetParams,
			index:  1,
			want: "bcrt1pndgq4cgf5qaw76hf5gy0fv0nayzu02pw96rzhxl3p6v96" +
				"n4xh8tq7lsf4h",
		},
		{
			name: "sh multi",
			desc: "sh(multi(2," + multiKey1 + "," + multiKey2 +
				"))",
			params: &chaincfg.MainNetParams,
			want:   "3GtEB3yg3r5de2cDJG48SkQwxfxJumKQdN",
		},
		{
			name: "sortedmulti ignores key order",
			desc: "sh(sortedmulti(2," + multiKey2 + "," +
				multiKey1 + "))",
			params: &chaincfg.MainNetParams,
			want:   "3GtEB3yg3r5de2cDJG48SkQwxfxJumKQdN",
		},
		{
			name: "wsh multi",
			desc: "wsh(multi(2," + multiKey1 + "," + multiKey2 +
				"))",
			params: &chaincfg.MainNetParams,
			want: "bc1q9fp9k0fgga9lkv92f7ard3cw4k42akru85s3luuctl9" +
				"zvzzvyypsnhf37q",
		},
		{
			name: "sh wsh multi",
			desc: "sh(wsh(multi(2," + multiKey1 + "," + multiKey2 +
				")))",
			params: &chaincfg.MainNetParams,
			want:   "3JBjEwcALoDzVM2NtKerLEfq8FWYSD8qp5",
		},
		{
			name:   "pkh fixed key",
			desc:   "pkh(" + multiKey1 + ")",
			params: &chaincfg.MainNetParams,
			want:   "1EhqbyUMvvs7BfL8goY6qcPbD6YKfPqb7e",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			desc, err := Parse(tc.desc, tc.params)
			require.NoError(t, err)

			addr, err := desc.Address(tc.index)
			require.NoError(t, err)
			require.Equal(t, tc.want, addr.EncodeAddress())
		})
	}
}

// TestDeriveAnnotations tests the scripts and key origins recorded for PSBT
// annotation.
func TestDeriveAnnotations(t *testing.T) {
	t.Parallel()

	params := &chaincfg.RegressionNetParams
	h := uint32(hdkeychain.HardenedKeyStart)

	desc, err := Parse(dstReceive, params)
	require.NoError(t, err)
	require.True(t, desc.IsRange())

	derived, err := desc.Derive(1)
	require.NoError(t, err)
	require.Nil(t, derived.RedeemScript)
	require.Nil(t, derived.WitnessScript)
	require.True(t, txscript.IsPayToWitnessPubKeyHash(derived.PkScript))

	require.Len(t, derived.Bip32Derivation, 1)
	deriv := derived.Bip32Derivation[0]
	require.Equal(t, "0398ed2f6a267f497d87cda8e5e52745a1c333635520a0ae"+
		"d2cb70b22be509719d", hex.EncodeToString(deriv.PubKey))
	require.Equal(t, fingerprint(), deriv.MasterKeyFingerprint)
	require.Equal(t, []uint32{84 + h, 1 + h, 1 + h, 0, 1}, deriv.Bip32Path)

	// Nested segwit records the witness program as redeem script.
	nested, err := Parse("sh("+dstReceive+")", params)
	require.NoError(t, err)

	derived, err = nested.Derive(1)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToScriptHash(derived.PkScript))
	require.True(t, txscript.IsPayToWitnessPubKeyHash(derived.RedeemScript))

	// Taproot records the x-only internal key.
	tr, err := Parse("tr([c258d2e4/86h/1h/0h]"+dstXpub+"/0/*)", params)
	require.NoError(t, err)

	derived, err = tr.Derive(1)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToTaproot(derived.PkScript))
	require.Equal(t, "98ed2f6a267f497d87cda8e5e52745a1c333635520a0aed2"+
		"cb70b22be509719d", hex.EncodeToString(derived.TaprootInternalKey))
	require.Len(t, derived.TaprootBip32Derivation, 1)
	require.Equal(t, []uint32{86 + h, 1 + h, 0 + h, 0, 1},
		derived.TaprootBip32Derivation[0].Bip32Path)

	// Without an origin the path starts at the extended key itself.
	bare, err := Parse("wpkh("+dstXpub+"/0/*)", params)
	require.NoError(t, err)

	derived, err = bare.Derive(1)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, derived.Bip32Derivation[0].Bip32Path)
	require.Equal(t,
		binary.LittleEndian.Uint32([]byte{0x6d, 0x4d, 0xf4, 0xa9}),
		derived.Bip32Derivation[0].MasterKeyFingerprint)

	// Multisig over fixed keys has scripts but no origins.
	wsh, err := Parse("sh(wsh(multi(2,"+multiKey1+","+multiKey2+")))",
		&chaincfg.MainNetParams)
	require.NoError(t, err)
	require.False(t, wsh.IsRange())

	derived, err = wsh.Derive(0)
	require.NoError(t, err)
	require.True(t, txscript.IsPayToWitnessScriptHash(derived.RedeemScript))
	require.Equal(t, "5221"+multiKey1+"21"+multiKey2+"52ae",
		hex.EncodeToString(derived.WitnessScript))
	require.Empty(t, derived.Bip32Derivation)
}

// TestParseErrors tests that invalid descriptors are rejected.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		desc   string
		params *chaincfg.Params
		err    error
	}{
		{
			name:   "hardened step after xpub",
			desc:   "wpkh(" + dstXpub + "/0h/*)",
			params: &chaincfg.RegressionNetParams,
			err:    ErrHardenedDerivation,
		},
		{
			name:   "hardened wildcard",
			desc:   "wpkh(" + dstXpub + "/0/*h)",
			params: &chaincfg.RegressionNetParams,
			err:    ErrHardenedDerivation,
		},
		{
			name:   "wrong network",
			desc:   dstReceive,
			params: &chaincfg.MainNetParams,
			err:    ErrNetworkMismatch,
		},
		{
			name:   "unknown function",
			desc:   "raw(deadbeef)",
			params: &chaincfg.MainNetParams,
			err:    ErrUnsupported,
		},
		{
			name:   "taproot script tree",
			desc:   "tr(" + multiKey1 + ",pk(" + multiKey2 + "))",
			params: &chaincfg.MainNetParams,
			err:    ErrUnsupported,
		},
		{
			name:   "wpkh inside wsh",
			desc:   "wsh(wpkh(" + multiKey1 + "))",
			params: &chaincfg.MainNetParams,
			err:    ErrUnsupported,
		},
		{
			name:   "nested sh",
			desc:   "sh(sh(pkh(" + multiKey1 + ")))",
			params: &chaincfg.MainNetParams,
			err:    ErrUnsupported,
		},
		{
			name:   "threshold above key count",
			desc:   "wsh(multi(3," + multiKey1 + "," + multiKey2 + "))",
			params: &chaincfg.MainNetParams,
			err:    ErrSyntax,
		},
		{
			name:   "zero threshold",
			desc:   "wsh(multi(0," + multiKey1 + "))",
			params: &chaincfg.MainNetParams,
			err:    ErrSyntax,
		},
		{
			name:   "bad key",
			desc:   "wpkh(02deadbeef)",
			params: &chaincfg.MainNetParams,
			err:    ErrInvalidKey,
		},
		{
			name:   "steps after fixed key",
			desc:   "wpkh(" + multiKey1 + "/0)",
			params: &chaincfg.MainNetParams,
			err:    ErrInvalidKey,
		},
		{
			name:   "bad fingerprint",
			desc:   "wpkh([c258d2/84h]" + multiKey1 + ")",
			params: &chaincfg.MainNetParams,
			err:    ErrSyntax,
		},
		{
			name:   "unbalanced",
			desc:   "wsh(multi(1," + multiKey1 + ")",
			params: &chaincfg.MainNetParams,
			err:    ErrSyntax,
		},
		{
			name:   "not an expression",
			desc:   multiKey1,
			params: &chaincfg.MainNetParams,
			err:    ErrSyntax,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.desc, tc.params)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestOriginMarkers tests that every hardened marker is accepted in a key
// origin and yields the same derivation.
func TestOriginMarkers(t *testing.T) {
	t.Parallel()

	var paths [][]uint32
	for _, marker := range []string{"h", "H", "'"} {
		origin := "[c258d2e4/84" + marker + "/1" + marker + "/1" +
			marker + "]"

		desc, err := Parse("wpkh("+origin+dstXpub+"/0/*)",
			&chaincfg.RegressionNetParams)
		require.NoError(t, err)

		derived, err := desc.Derive(0)
		require.NoError(t, err)
		paths = append(paths, derived.Bip32Derivation[0].Bip32Path)
	}

	require.Equal(t, paths[0], paths[1])
	require.Equal(t, paths[0], paths[2])
}

// TestNoAddress tests that bare scripts have no address.
func TestNoAddress(t *testing.T) {
	t.Parallel()

	desc, err := Parse("multi(1,"+multiKey1+","+multiKey2+")",
		&chaincfg.MainNetParams)
	require.NoError(t, err)

	_, err = desc.Address(0)
	require.ErrorIs(t, err, ErrNoAddress)
}
