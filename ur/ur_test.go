package ur

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/bytewords"
	"github.com/btcsuite/btcsweep/urtypes"
	"github.com/stretchr/testify/require"
)

const (
	// multisigUR is sh(multi(2, K1, K2)) over two bare keys.
	multisigUR = "ur:crypto-output/taadmhtaadmtoeadaoaolftaadeyoyaxhdclao" +
		"dladvwvyhhsgeccapewflrfhrlbsfndlbkcwutahvwpeloleioksglwfvybkd" +
		"radtaadeyoyaxhdclaxpstylrvowtstynguaspmchlenegonyryvtmsmtmsgs" +
		"hgvdbbsrhebybtztdisfrnpfadremh"

	multisigDesc = "sh(multi(2,022f01e5e15cca351daff3843fb70f3c2f0a1bdd05" +
		"e5af888a67784ef3e10a2a01,03acd484e2f0c7f65309ad178a9f559abde" +
		"09796974c57e714c35f110dfc27ccbe))"

	// psbtHex is an unsigned two input, two output PSBT.
	psbtHex = "70736274ff01009a020000000258e87a21b56daf0c23be8e7070456c3" +
		"36f7cbaa5c8757924f545887bb2abdd750000000000ffffffff838d0427d0e" +
		"c650a68aa46bb0b098aea4422c071b2ca78352a077959d07cea1d0100000000" +
		"ffffffff0270aaf00800000000160014d85c2b71d0060b09c9886aeb815e509" +
		"91dda124d00e1f5050000000016001400aea9a2e5f0f876a588df5546e8742d" +
		"1d87008f000000000000000000"

	psbtUR = "ur:crypto-psbt/hdosjojkidjyzmadaenyaoaeaeaeaohdvsknclrejnpeb" +
		"ncnrnmnjojofejzeojlkerdonspkpkkdkykfelokgprpyutkpaeaeaeaeaezmz" +
		"mzmzmlslgaaditiwpihbkispkfgrkbdaslewdfycprtjsprsgksecdratkkhkt" +
		"ikewdcaadaeaeaeaezmzmzmzmaojopkwtayaeaeaeaecmaebbtphhdnjstiamb" +
		"dassoloimwmlyhygdnlcatnbggtaevyykahaeaeaeaecmaebbaeplptoevwwty" +
		"akoonlourgofgvsjydpcaltaemyaeaeaeaeaeaeaeaeaebkgdcarh"

	// masterKeyHex is an untagged master private hdkey.
	masterKeyHex = "a301f503582100e8f32e723decf4051aefac8e2c93c9c5b214313" +
		"817cdb01a1494b917c8436b35045820873dff81c02f525623fd1fe5167eac" +
		"3a55a049de3d314bb42ee227ffed37d508"

	masterKeyXprv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3j" +
		"PPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"

	pubKeyHex = "022f01e5e15cca351daff3843fb70f3c2f0a1bdd05e5af888a67784ef" +
		"3e10a2a01"

	// addressHash is the payload of the address records below.
	addressHash = "77bff20c60e522dfaa3350c39b030a5d004e839a"
)

// makeUR builds the text of a UR from a hex payload.
func makeUR(t *testing.T, urType, payloadHex string) string {
	t.Helper()

	payload, err := hex.DecodeString(payloadHex)
	require.NoError(t, err)

	u, err := New(urType, payload)
	require.NoError(t, err)

	return u.String()
}

// TestIsUR tests UR detection.
func TestIsUR(t *testing.T) {
	t.Parallel()

	require.True(t, IsUR(multisigUR))
	require.True(t, IsUR(strings.ToUpper(multisigUR)))
	require.True(t, IsUR("Ur:crypto-psbt/"))
	require.False(t, IsUR(multisigDesc))
	require.False(t, IsUR("ur"))
	require.False(t, IsUR(""))
}

// TestParse tests envelope parsing and its failures.
func TestParse(t *testing.T) {
	t.Parallel()

	u, err := Parse(multisigUR)
	require.NoError(t, err)
	require.Equal(t, TypeOutput, u.Type)
	require.Equal(t, multisigUR, u.String())

	// QR codes carry URs in uppercase.
	upper, err := Parse(strings.ToUpper(multisigUR))
	require.NoError(t, err)
	require.Equal(t, u, upper)

	testCases := []struct {
		name string
		text string
		err  error
	}{
		{
			name: "not a UR",
			text: multisigDesc,
			err:  ErrNotUR,
		},
		{
			name: "missing payload",
			text: "ur:crypto-output",
			err:  ErrNotUR,
		},
		{
			name: "multipart",
			text: "ur:crypto-psbt/1-3/lpadaxcsencylobemohsgmoyadhdeynteelb",
			err:  ErrMultipart,
		},
		{
			name: "bad type",
			text: "ur:crypto_output/aeae",
			err:  ErrInvalidType,
		},
		{
			name: "empty type",
			text: "ur:/aeae",
			err:  ErrInvalidType,
		},
		{
			name: "bad checksum",
			text: multisigUR[:len(multisigUR)-2] + "ae",
			err:  bytewords.ErrInvalidChecksum,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.text)
			require.ErrorIs(t, err, tc.err)
		})
	}

	_, err = New("Crypto-PSBT", nil)
	require.ErrorIs(t, err, ErrInvalidType)
}

// TestPSBT tests the crypto-psbt round trip against a known encoding.
func TestPSBT(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(psbtHex)
	require.NoError(t, err)

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	require.NoError(t, err)

	encoded, err := EncodePSBT(packet)
	require.NoError(t, err)
	require.Equal(t, psbtUR, encoded)

	decoded, err := DecodePSBT(strings.ToUpper(encoded))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, decoded.Serialize(&buf))
	require.Equal(t, raw, buf.Bytes())

	_, err = DecodePSBT(multisigUR)
	require.ErrorIs(t, err, ErrUnexpectedType)
}

// TestDecodeOutput tests descriptor decoding with and without checksum.
func TestDecodeOutput(t *testing.T) {
	t.Parallel()

	desc, err := DecodeOutput(multisigUR, false)
	require.NoError(t, err)
	require.Equal(t, multisigDesc, desc)

	desc, err = DecodeOutput(multisigUR, true)
	require.NoError(t, err)
	require.Equal(t, multisigDesc+"#y9zthqta", desc)

	// Plain descriptors pass through untouched.
	desc, err = ResolveDescriptor(multisigDesc, true)
	require.NoError(t, err)
	require.Equal(t, multisigDesc, desc)

	desc, err = ResolveDescriptor(multisigUR, false)
	require.NoError(t, err)
	require.Equal(t, multisigDesc, desc)

	// A payload that is no script expression is a decode error.
	_, err = DecodeOutput(makeUR(t, TypeOutput, "a0"), false)
	require.True(t, urtypes.IsError(err, urtypes.ErrUnexpectedTag))

	_, err = DecodeOutput(makeUR(t, TypeOutput, "d901"), false)
	require.True(t, urtypes.IsError(err, urtypes.ErrMalformedBinary))
}

// TestDecodeKey tests key decoding.
func TestDecodeKey(t *testing.T) {
	t.Parallel()

	key, err := DecodeKey(makeUR(t, TypeHDKey, masterKeyHex))
	require.NoError(t, err)
	require.Equal(t, masterKeyXprv, key)

	key, err = DecodeKey(makeUR(t, TypeECKey, "a1035821"+pubKeyHex))
	require.NoError(t, err)
	require.Equal(t, pubKeyHex, key)

	_, err = DecodeKey(multisigUR)
	require.ErrorIs(t, err, ErrUnexpectedType)
}

// TestDecodeAddress tests address decoding and the network check.
func TestDecodeAddress(t *testing.T) {
	t.Parallel()

	mainnet := makeUR(t, TypeAddress, "a202000354"+addressHash)

	addr, err := DecodeAddress(mainnet, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2",
		addr.EncodeAddress())

	_, err = DecodeAddress(mainnet, &chaincfg.TestNet3Params)
	require.ErrorIs(t, err, ErrNetworkMismatch)

	// Test network records take the hrp of the selected network.
	testnet := makeUR(t, TypeAddress,
		"a301d90131a1020102020354"+addressHash)

	addr, err = ResolveAddress(testnet, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.EncodeAddress(), "bcrt1q"))

	addr, err = ResolveAddress(testnet, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr.EncodeAddress(), "tb1q"))

	// Plain addresses are parsed for the selected network.
	addr, err = ResolveAddress("mn9qXHZsAQT6A1fkMvi5nmWmCzUEyLWZhv",
		&chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, "mn9qXHZsAQT6A1fkMvi5nmWmCzUEyLWZhv",
		addr.EncodeAddress())

	_, err = ResolveAddress("mn9qXHZsAQT6A1fkMvi5nmWmCzUEyLWZhv",
		&chaincfg.MainNetParams)
	require.Error(t, err)

	_, err = DecodeAddress(multisigUR, &chaincfg.MainNetParams)
	require.ErrorIs(t, err, ErrUnexpectedType)
}
