// Package htlc — BTC three-secret (3S) P2WSH script construction and
// parsing. Generalizes the two-branch, one-hashlock HTLC script into
// the three-hashlock claim branch FlowSwap's 3S scheme requires, plus a
// CLTV (absolute-height) refund branch.
package htlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// BTC3SScriptData is everything needed to fund, claim, or refund a BTC
// (or M1) three-secret HTLC output.
type BTC3SScriptData struct {
	Script     []byte
	Address    string
	ScriptHash [32]byte

	HUser, HLP1, HLP2 [32]byte
	ClaimPubKey       []byte // 33-byte compressed; claims with all three secrets
	RefundPubKey      []byte // 33-byte compressed; refunds after the timelock
	Timelock          uint32 // absolute block height (CLTV)
}

// BuildBTC3SScript builds the redeem script:
//
//	OP_IF
//	    OP_SHA256 <H_user> OP_EQUALVERIFY
//	    OP_SHA256 <H_lp1>  OP_EQUALVERIFY
//	    OP_SHA256 <H_lp2>  OP_EQUALVERIFY
//	    <claim_pubkey> OP_CHECKSIG
//	OP_ELSE
//	    <timelock> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <refund_pubkey> OP_CHECKSIG
//	OP_ENDIF
//
// The claim branch verifies the three preimages in the declared order
// (user, lp1, lp2) against the stack left by the witness, which is
// laid out bottom-to-top: <sig_S> <S_lp2> <S_lp1> <S_user> <1> <script>.
func BuildBTC3SScript(hUser, hLP1, hLP2 [32]byte, claimPubKey, refundPubKey []byte, timelock uint32) ([]byte, error) {
	if len(claimPubKey) != 33 {
		return nil, fmt.Errorf("htlc: claim pubkey must be 33 bytes, got %d", len(claimPubKey))
	}
	if len(refundPubKey) != 33 {
		return nil, fmt.Errorf("htlc: refund pubkey must be 33 bytes, got %d", len(refundPubKey))
	}
	if timelock == 0 {
		return nil, fmt.Errorf("htlc: timelock must be nonzero")
	}
	if hUser == hLP1 || hUser == hLP2 || hLP1 == hLP2 {
		return nil, fmt.Errorf("htlc: hashlocks must be pairwise distinct")
	}

	b := txscript.NewScriptBuilder()

	b.AddOp(txscript.OP_IF)
	for _, h := range [][32]byte{hUser, hLP1, hLP2} {
		b.AddOp(txscript.OP_SHA256)
		b.AddData(h[:])
		b.AddOp(txscript.OP_EQUALVERIFY)
	}
	b.AddData(claimPubKey)
	b.AddOp(txscript.OP_CHECKSIG)

	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(int64(timelock))
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(refundPubKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)

	return b.Script()
}

// BuildBTC3SScriptData builds the script and derives its P2WSH address
// for the given network parameters.
func BuildBTC3SScriptData(hUser, hLP1, hLP2 [32]byte, claimPubKey, refundPubKey *btcec.PublicKey, timelock uint32, params *chaincfg.Params) (*BTC3SScriptData, error) {
	claimBytes := claimPubKey.SerializeCompressed()
	refundBytes := refundPubKey.SerializeCompressed()

	script, err := BuildBTC3SScript(hUser, hLP1, hLP2, claimBytes, refundBytes, timelock)
	if err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	if err != nil {
		return nil, fmt.Errorf("htlc: derive p2wsh address: %w", err)
	}

	return &BTC3SScriptData{
		Script:       script,
		Address:      addr.EncodeAddress(),
		ScriptHash:   scriptHash,
		HUser:        hUser,
		HLP1:         hLP1,
		HLP2:         hLP2,
		ClaimPubKey:  claimBytes,
		RefundPubKey: refundBytes,
		Timelock:     timelock,
	}, nil
}

// BuildClaimWitness returns the witness stack for the claim branch:
// <sig> <S_lp2> <S_lp1> <S_user> <1> <script>.
func BuildClaimWitness(sig []byte, sUser, sLP1, sLP2 [32]byte, script []byte) [][]byte {
	return [][]byte{sig, sLP2[:], sLP1[:], sUser[:], {0x01}, script}
}

// BuildRefundWitness returns the witness stack for the refund branch:
// <sig> <0> <script>.
func BuildRefundWitness(sig []byte, script []byte) [][]byte {
	return [][]byte{sig, {}, script}
}

// P2WSHScriptPubKey returns the OP_0 <32-byte-hash> scriptPubKey for a
// redeem script.
func P2WSHScriptPubKey(script []byte) ([]byte, error) {
	h := sha256.Sum256(script)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(h[:])
	return b.Script()
}

// ParseBTC3SScript extracts the three hashlocks, both pubkeys, and the
// timelock from a redeem script previously built by BuildBTC3SScript.
// Round-tripping through Build then Parse must return the original
// fields.
func ParseBTC3SScript(script []byte) (*BTC3SScriptData, error) {
	tok := txscript.MakeScriptTokenizer(0, script)
	data := &BTC3SScriptData{Script: script}

	expectOp := func(op byte) error {
		if !tok.Next() {
			return fmt.Errorf("htlc: parse: unexpected end of script, err=%v", tok.Err())
		}
		if tok.Opcode() != op {
			return fmt.Errorf("htlc: parse: expected opcode 0x%x, got 0x%x", op, tok.Opcode())
		}
		return nil
	}
	expectPush := func(want int) ([]byte, error) {
		if !tok.Next() {
			return nil, fmt.Errorf("htlc: parse: unexpected end of script, err=%v", tok.Err())
		}
		d := tok.Data()
		if want > 0 && len(d) != want {
			return nil, fmt.Errorf("htlc: parse: expected %d-byte push, got %d", want, len(d))
		}
		return d, nil
	}

	if err := expectOp(txscript.OP_IF); err != nil {
		return nil, err
	}

	hashes := make([][32]byte, 0, 3)
	for i := 0; i < 3; i++ {
		if err := expectOp(txscript.OP_SHA256); err != nil {
			return nil, err
		}
		h, err := expectPush(32)
		if err != nil {
			return nil, err
		}
		var hh [32]byte
		copy(hh[:], h)
		hashes = append(hashes, hh)
		if err := expectOp(txscript.OP_EQUALVERIFY); err != nil {
			return nil, err
		}
	}
	data.HUser, data.HLP1, data.HLP2 = hashes[0], hashes[1], hashes[2]

	claimPubKey, err := expectPush(33)
	if err != nil {
		return nil, err
	}
	data.ClaimPubKey = claimPubKey
	if err := expectOp(txscript.OP_CHECKSIG); err != nil {
		return nil, err
	}

	if err := expectOp(txscript.OP_ELSE); err != nil {
		return nil, err
	}

	if !tok.Next() {
		return nil, fmt.Errorf("htlc: parse: missing timelock push, err=%v", tok.Err())
	}
	timelock, err := asScriptNum(tok.Data(), tok.Opcode())
	if err != nil {
		return nil, err
	}
	data.Timelock = uint32(timelock)

	if err := expectOp(txscript.OP_CHECKLOCKTIMEVERIFY); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_DROP); err != nil {
		return nil, err
	}
	refundPubKey, err := expectPush(33)
	if err != nil {
		return nil, err
	}
	data.RefundPubKey = refundPubKey
	if err := expectOp(txscript.OP_CHECKSIG); err != nil {
		return nil, err
	}
	if err := expectOp(txscript.OP_ENDIF); err != nil {
		return nil, err
	}

	scriptHash := sha256.Sum256(script)
	data.ScriptHash = scriptHash

	return data, nil
}

// asScriptNum interprets a tokenizer opcode/data pair pushed via
// AddInt64 as a little-endian signed script number.
func asScriptNum(data []byte, opcode byte) (int64, error) {
	if opcode >= txscript.OP_1 && opcode <= txscript.OP_16 {
		return int64(opcode-txscript.OP_1) + 1, nil
	}
	if opcode == txscript.OP_0 {
		return 0, nil
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("htlc: parse: empty timelock push")
	}
	var v int64
	for i, b := range data {
		v |= int64(b) << (8 * uint(i))
	}
	if data[len(data)-1]&0x80 != 0 {
		v &^= int64(0x80) << (8 * uint(len(data)-1))
		v = -v
	}
	return v, nil
}

// AddressForScript derives the P2WSH address for an arbitrary script
// under the given network params.
func AddressForScript(script []byte, params *chaincfg.Params) (string, error) {
	h := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(h[:], params)
	if err != nil {
		return "", fmt.Errorf("htlc: derive p2wsh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}
