package descriptor

import (
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcsweep/pkg/btcunit"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/stretchr/testify/require"
)

// uncompressedKey is the uncompressed encoding of the secp256k1 generator.
const uncompressedKey = "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d9" +
	"59f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d" +
	"08ffb10d4b8"

// TestMaxInputSize tests satisfaction sizes against the sizes the wallet
// uses for its own inputs, and against hand counted scripts.
func TestMaxInputSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		desc      string
		scriptSig int
		witness   int
		weight    uint64
	}{
		{
			name:      "pkh",
			desc:      srcReceive,
			scriptSig: txsizes.RedeemP2PKHSigScriptSize,
			weight: txsizes.RedeemP2PKHInputSize *
				blockchain.WitnessScaleFactor,
		},
		{
			name:    "wpkh",
			desc:    dstReceive,
			witness: txsizes.RedeemP2WPKHInputWitnessWeight,
			weight: txsizes.RedeemP2WPKHInputSize*
				blockchain.WitnessScaleFactor +
				txsizes.RedeemP2WPKHInputWitnessWeight,
		},
		{
			name:      "sh wpkh",
			desc:      "sh(" + dstReceive + ")",
			scriptSig: 23,
			witness:   txsizes.RedeemP2WPKHInputWitnessWeight,
			weight: txsizes.RedeemNestedP2WPKHInputSize*
				blockchain.WitnessScaleFactor +
				txsizes.RedeemP2WPKHInputWitnessWeight,
		},
		{
			// One item of a 64 byte signature.
			name:    "tr",
			desc:    "tr(" + dstXpub + "/0/*)",
			witness: 1 + 1 + 64,
			weight:  41*4 + 66,
		},
		{
			// <sig> <uncompressed key>.
			name:      "pkh uncompressed",
			desc:      "pkh(" + uncompressedKey + ")",
			scriptSig: 74 + 66,
			weight:    (40 + 1 + 140) * 4,
		},
		{
			// <sig> only.
			name:      "pk",
			desc:      "pk(" + multiKey1 + ")",
			scriptSig: 74,
			weight:    (40 + 1 + 74) * 4,
		},
		{
			// OP_0 <sig> <sig> <push 71 byte script>.
			name: "sh multi",
			desc: "sh(multi(2," + multiKey1 + "," + multiKey2 +
				"))",
			scriptSig: 1 + 74 + 74 + 72,
			weight:    (40 + 1 + 221) * 4,
		},
		{
			// Count, empty item, two signatures and the script.
			name: "wsh multi",
			desc: "wsh(multi(2," + multiKey1 + "," + multiKey2 +
				"))",
			witness: 1 + 1 + 74 + 74 + 72,
			weight:  41*4 + 222,
		},
		{
			name: "sh wsh multi",
			desc: "sh(wsh(multi(2," + multiKey1 + "," + multiKey2 +
				")))",
			scriptSig: 35,
			witness:   1 + 1 + 74 + 74 + 72,
			weight:    (40+1+35)*4 + 222,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			desc, err := Parse(tc.desc, &chaincfg.RegressionNetParams)
			require.NoError(t, err)

			size := desc.MaxInputSize()
			require.Equal(t, tc.scriptSig, size.ScriptSigSize)
			require.Equal(t, tc.witness, size.WitnessSize)
			require.Equal(t, tc.witness > 0, size.HasWitness())
			require.Equal(t, btcunit.NewWeightUnit(tc.weight),
				size.Weight())
		})
	}
}

// TestPushSize tests the push opcode boundaries.
func TestPushSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, pushSize(0))
	require.Equal(t, 34, pushSize(33))
	require.Equal(t, 76, pushSize(75))
	require.Equal(t, 78, pushSize(76))
	require.Equal(t, 257, pushSize(255))
	require.Equal(t, 259, pushSize(256))
}
