package htlc

import "testing"

func TestM1ParamsDistinctFromBTC(t *testing.T) {
	m1 := M1Params()
	if m1.Bech32HRPSegwit == "bc" {
		t.Fatal("M1 params must not reuse the BTC mainnet bech32 HRP")
	}
	if m1.Net == 0 {
		t.Fatal("M1 params must set a distinct wire magic")
	}
}

func TestM1BuildParseRoundTrip(t *testing.T) {
	_, hUser, _ := GenerateSecret()
	_, hLP1, _ := GenerateSecret()
	_, hLP2, _ := GenerateSecret()
	claimKey := mustKey(t)
	refundKey := mustKey(t)

	data, err := BuildM1ScriptData(hUser, hLP1, hLP2, claimKey, refundKey, 500_000, false)
	if err != nil {
		t.Fatalf("BuildM1ScriptData: %v", err)
	}

	parsed, err := ParseM1Script(data.Script)
	if err != nil {
		t.Fatalf("ParseM1Script: %v", err)
	}
	if parsed.HUser != hUser || parsed.HLP1 != hLP1 || parsed.HLP2 != hLP2 {
		t.Errorf("M1 hashlocks did not round-trip")
	}
	if parsed.Timelock != 500_000 {
		t.Errorf("M1 timelock did not round-trip: got %d", parsed.Timelock)
	}
}

func TestM1TestnetAddressDiffersFromMainnet(t *testing.T) {
	_, hUser, _ := GenerateSecret()
	_, hLP1, _ := GenerateSecret()
	_, hLP2, _ := GenerateSecret()
	claimKey := mustKey(t)
	refundKey := mustKey(t)

	mainnet, err := BuildM1ScriptData(hUser, hLP1, hLP2, claimKey, refundKey, 500_000, false)
	if err != nil {
		t.Fatal(err)
	}
	testnet, err := BuildM1ScriptData(hUser, hLP1, hLP2, claimKey, refundKey, 500_000, true)
	if err != nil {
		t.Fatal(err)
	}
	if mainnet.Address == testnet.Address {
		t.Error("expected M1 mainnet and testnet addresses to differ")
	}
}
