package htlc

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
)

// M1Params returns chaincfg-shaped network parameters for the M1
// settlement rail. M1 sats map 1:1 to BTC sats and its interpreter
// accepts the same opcode set BuildBTC3SScript emits, so M1 reuses the
// BTC script builder directly with its own bech32 HRP.
func M1Params() *chaincfg.Params {
	params := chaincfg.MainNetParams
	params.Bech32HRPSegwit = "m1"
	params.Net = 0x4d31_0000 // distinct wire magic so M1 addresses never collide with mainnet BTC ones
	return &params
}

// M1TestParams is the M1 testnet counterpart of M1Params.
func M1TestParams() *chaincfg.Params {
	params := chaincfg.TestNet3Params
	params.Bech32HRPSegwit = "tm1"
	params.Net = 0x4d31_7400
	return &params
}

// BuildM1ScriptData builds an M1 three-secret HTLC using the same
// redeem-script shape as BTC, parameterized by M1's network params.
func BuildM1ScriptData(hUser, hLP1, hLP2 [32]byte, claimPubKey, refundPubKey *btcec.PublicKey, timelock uint32, testnet bool) (*BTC3SScriptData, error) {
	params := M1Params()
	if testnet {
		params = M1TestParams()
	}
	return BuildBTC3SScriptData(hUser, hLP1, hLP2, claimPubKey, refundPubKey, timelock, params)
}

// ParseM1Script parses an M1 redeem script. Identical to
// ParseBTC3SScript since the opcode sequence is shared; kept as a
// distinct named entry point so callers never have to reason about
// which chain a *BTC3SScriptData came from by inspecting its shape.
func ParseM1Script(script []byte) (*BTC3SScriptData, error) {
	return ParseBTC3SScript(script)
}
