package mempool

import (
	"testing"

	"github.com/btcsuite/btcd/btcjson"
)

func TestDERSignatureR(t *testing.T) {
	// 0x30 0x0c | 0x02 0x04 r=01020304 | 0x02 0x04 s=0a0b0c0d
	sig := "300c02040102030402040a0b0c0d"
	if r := derSignatureR(sig); r != "01020304" {
		t.Errorf("Expected R 01020304, got %q", r)
	}

	// Sign-padding byte on R is stripped so reused nonces compare equal.
	padded := "300d0205008f02030402040a0b0c0d"
	if r := derSignatureR(padded); r != "8f020304" {
		t.Errorf("Expected padding stripped, got %q", r)
	}

	for _, garbage := range []string{"", "zz", "abcdef", "300c"} {
		if r := derSignatureR(garbage); r != "" {
			t.Errorf("Expected empty R for %q, got %q", garbage, r)
		}
	}
}

func TestSignatureRFromScriptSig(t *testing.T) {
	// P2PKH scriptSig: <push 0x0e> <DER sig> <push pubkey...>; only the
	// signature push matters here.
	vin := btcjson.Vin{
		ScriptSig: &btcjson.ScriptSig{
			Hex: "0e300c02040102030402040a0b0c0d",
		},
	}
	if r := signatureR(vin); r != "01020304" {
		t.Errorf("Expected R from scriptSig, got %q", r)
	}

	// Segwit: signature is the first witness element.
	witness := btcjson.Vin{Witness: []string{"300c02040102030402040a0b0c0d", "02deadbeef"}}
	if r := signatureR(witness); r != "01020304" {
		t.Errorf("Expected R from witness, got %q", r)
	}

	// No signature data at all.
	if r := signatureR(btcjson.Vin{}); r != "" {
		t.Errorf("Expected empty R for a bare input, got %q", r)
	}
}

func TestNormalizeScriptType(t *testing.T) {
	cases := map[string]string{
		"pubkeyhash":            "p2pkh",
		"pubkey":                "p2pk",
		"scripthash":            "p2sh",
		"witness_v0_keyhash":    "p2wpkh",
		"witness_v0_scripthash": "p2wsh",
		"witness_v1_taproot":    "p2tr",
		"nulldata":              "nulldata",
	}
	for in, want := range cases {
		if got := normalizeScriptType(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}
