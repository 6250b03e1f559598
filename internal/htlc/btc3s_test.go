package htlc

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
)

func mustKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.PubKey()
}

func TestBuildParseRoundTrip(t *testing.T) {
	_, hUser, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	_, hLP1, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	_, hLP2, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}

	claimKey := mustKey(t)
	refundKey := mustKey(t)

	data, err := BuildBTC3SScriptData(hUser, hLP1, hLP2, claimKey, refundKey, 800_000, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("BuildBTC3SScriptData: %v", err)
	}

	parsed, err := ParseBTC3SScript(data.Script)
	if err != nil {
		t.Fatalf("ParseBTC3SScript: %v", err)
	}

	if parsed.HUser != hUser || parsed.HLP1 != hLP1 || parsed.HLP2 != hLP2 {
		t.Errorf("hashlocks did not round-trip: got %+v", parsed)
	}
	if parsed.Timelock != 800_000 {
		t.Errorf("timelock did not round-trip: got %d", parsed.Timelock)
	}
	if !bytes.Equal(parsed.ClaimPubKey, data.ClaimPubKey) {
		t.Errorf("claim pubkey did not round-trip")
	}
	if !bytes.Equal(parsed.RefundPubKey, data.RefundPubKey) {
		t.Errorf("refund pubkey did not round-trip")
	}
	if parsed.ScriptHash != data.ScriptHash {
		t.Errorf("script hash mismatch after round-trip")
	}
}

func TestBuildRejectsNonDistinctHashlocks(t *testing.T) {
	_, h, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	claimKey := mustKey(t).SerializeCompressed()
	refundKey := mustKey(t).SerializeCompressed()

	if _, err := BuildBTC3SScript(h, h, h, claimKey, refundKey, 1); err == nil {
		t.Fatal("expected error for non-distinct hashlocks")
	}
}

func TestBuildRejectsZeroTimelock(t *testing.T) {
	_, hUser, _ := GenerateSecret()
	_, hLP1, _ := GenerateSecret()
	_, hLP2, _ := GenerateSecret()
	claimKey := mustKey(t).SerializeCompressed()
	refundKey := mustKey(t).SerializeCompressed()

	if _, err := BuildBTC3SScript(hUser, hLP1, hLP2, claimKey, refundKey, 0); err == nil {
		t.Fatal("expected error for zero timelock")
	}
}

func TestBuildRejectsBadPubkeyLength(t *testing.T) {
	_, hUser, _ := GenerateSecret()
	_, hLP1, _ := GenerateSecret()
	_, hLP2, _ := GenerateSecret()
	refundKey := mustKey(t).SerializeCompressed()

	if _, err := BuildBTC3SScript(hUser, hLP1, hLP2, []byte{0x01, 0x02}, refundKey, 100); err == nil {
		t.Fatal("expected error for short claim pubkey")
	}
}

func TestClaimWitnessOrder(t *testing.T) {
	var sUser, sLP1, sLP2 [32]byte
	sUser[0] = 0x01
	sLP1[0] = 0x02
	sLP2[0] = 0x03
	script := []byte{0xde, 0xad}
	sig := []byte{0xaa, 0xbb}

	w := BuildClaimWitness(sig, sUser, sLP1, sLP2, script)
	if len(w) != 6 {
		t.Fatalf("expected 6 witness items, got %d", len(w))
	}
	if !bytes.Equal(w[0], sig) {
		t.Errorf("witness[0] should be the signature")
	}
	if !bytes.Equal(w[1], sLP2[:]) {
		t.Errorf("witness[1] should be S_lp2")
	}
	if !bytes.Equal(w[2], sLP1[:]) {
		t.Errorf("witness[2] should be S_lp1")
	}
	if !bytes.Equal(w[3], sUser[:]) {
		t.Errorf("witness[3] should be S_user")
	}
	if !bytes.Equal(w[4], []byte{0x01}) {
		t.Errorf("witness[4] should select the claim branch")
	}
	if !bytes.Equal(w[5], script) {
		t.Errorf("witness[5] should be the redeem script")
	}
}

func TestRefundWitnessOrder(t *testing.T) {
	script := []byte{0xde, 0xad}
	sig := []byte{0xaa, 0xbb}
	w := BuildRefundWitness(sig, script)
	if len(w) != 3 {
		t.Fatalf("expected 3 witness items, got %d", len(w))
	}
	if !bytes.Equal(w[0], sig) || len(w[1]) != 0 || !bytes.Equal(w[2], script) {
		t.Errorf("unexpected refund witness shape: %+v", w)
	}
}

func TestAddressForScriptMatchesBuiltAddress(t *testing.T) {
	_, hUser, _ := GenerateSecret()
	_, hLP1, _ := GenerateSecret()
	_, hLP2, _ := GenerateSecret()
	claimKey := mustKey(t)
	refundKey := mustKey(t)

	data, err := BuildBTC3SScriptData(hUser, hLP1, hLP2, claimKey, refundKey, 12345, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatal(err)
	}

	addr, err := AddressForScript(data.Script, &chaincfg.TestNet3Params)
	if err != nil {
		t.Fatal(err)
	}
	if addr != data.Address {
		t.Errorf("AddressForScript = %q, want %q", addr, data.Address)
	}
}
